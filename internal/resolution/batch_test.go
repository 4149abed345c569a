package resolution

import (
	"context"
	"errors"
	"testing"

	"github.com/bosocmputer/invoice_resolver/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveBatchLearnsWithinBatch(t *testing.T) {
	f := newFixture(t)
	flour := f.catalog.Add(common.KindProduct, "Мука пшеничная в/с", "")
	sugar := f.catalog.Add(common.KindProduct, "Сахар песок", "")
	supplier := f.catalog.Add(common.KindSupplier, `ООО "Ромашка"`, "7701234567")

	queries := []Query{
		{Kind: common.KindProduct, Text: "мука пшен в/с"},
		{Kind: common.KindProduct, Text: "Сахар песок"},
		{Kind: common.KindProduct, Text: "МУКА ПШЕН В/С"},
		{Kind: common.KindSupplier, Text: "неизвестно", TaxID: "7701234567"},
		{Kind: common.KindProduct, Text: "мука пшен  в/с"},
		{Kind: common.KindProduct, Text: "гвозди"},
	}

	results, err := f.engine.ResolveBatch(context.Background(), queries)
	require.NoError(t, err)
	require.Len(t, results, len(queries))

	assert.Equal(t, OutcomeAutoFuzzy, results[0].Outcome)
	assert.Equal(t, flour, *results[0].EntityID)
	assert.Equal(t, OutcomeExact, results[1].Outcome)
	assert.Equal(t, sugar, *results[1].EntityID)
	assert.Equal(t, OutcomeAliasHit, results[2].Outcome)
	assert.Equal(t, flour, *results[2].EntityID)
	assert.Equal(t, OutcomeExact, results[3].Outcome)
	assert.Equal(t, supplier, *results[3].EntityID)
	assert.Equal(t, OutcomeAliasHit, results[4].Outcome)
	assert.Equal(t, OutcomeNoMatch, results[5].Outcome)

	for i, q := range queries {
		assert.Equal(t, q.Text, results[i].Query)
	}
}

func TestResolveBatchReportsFailingLine(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.ResolveBatch(context.Background(), []Query{
		{Kind: common.KindProduct, Text: "сахар"},
		{Kind: common.KindProduct, Text: "bad\x00name"},
	})
	require.Error(t, err)

	var lineErr *common.LineError
	require.True(t, errors.As(err, &lineErr))
	assert.Equal(t, 2, lineErr.Line)
	assert.ErrorIs(t, err, common.ErrNormalizationInput)
}

func TestResolveBatchUnknownKind(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.ResolveBatch(context.Background(), []Query{{Kind: "warehouse", Text: "склад"}})
	assert.ErrorIs(t, err, common.ErrUnknownKind)
}

func TestResolveBatchEmpty(t *testing.T) {
	f := newFixture(t)

	results, err := f.engine.ResolveBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestResolveBatchCancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.engine.ResolveBatch(ctx, []Query{{Kind: common.KindProduct, Text: "сахар"}})
	assert.ErrorIs(t, err, context.Canceled)
}
