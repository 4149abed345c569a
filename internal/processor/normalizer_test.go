package processor

import (
	"testing"

	"github.com/bosocmputer/invoice_resolver/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSet(t *testing.T) *NormalizerSet {
	t.Helper()
	set, err := NewNormalizerSet(nil, nil)
	require.NoError(t, err)
	return set
}

func TestNormalizeProductNames(t *testing.T) {
	set := newTestSet(t)

	cases := map[string]string{
		"Мука пшеничная в/с":    "мука пшеничная в/с",
		"  мука   пшен  в/с ":   "мука пшен в/с",
		"Молоко 3,2% 1л шт.":    "молоко 3,2 1л",
		"(Сахар) - песок, 5 кг": "сахар песок 5 кг",
		"MOЛOKO":                "молоко",
		"м0л0ко":                "молоко",
		"0,5л":                  "0,5л",
		"Ёжик":                  "ежик",
		"Coca-Cola 0,33":        "coca-cola 0,33",
		"   ":                   "",
		"упак. шт":              "",
	}
	for raw, want := range cases {
		assert.Equal(t, want, set.Normalize(common.KindProduct, raw), raw)
	}
}

func TestNormalizeSupplierNames(t *testing.T) {
	set := newTestSet(t)

	assert.Equal(t, "ромашка", set.Normalize(common.KindSupplier, `ООО «Ромашка»`))
	assert.Equal(t, "иванов и.и", set.Normalize(common.KindSupplier, "ИП Иванов И.И."))
	assert.Equal(t, "acme", set.Normalize(common.KindSupplier, "ACME, LLC"))
	// noise lists are per kind
	assert.Equal(t, "ооо ромашка", set.Normalize(common.KindProduct, `ООО «Ромашка»`))
}

func TestNormalizeIsIdempotent(t *testing.T) {
	set := newTestSet(t)

	inputs := []string{
		"Мука пшеничная в/с", "MOЛOKO 3.2%", "м0л0к0", "a0б3в", "ООО «Ромашка» (г. Москва)",
		"Ёлка-пАлка", "++--//", "шт", "йрис", "Сыр \"Российский\" 45%, 1 кг",
		"0з0", "ип ип ип", "ao", "Tea Black 100g",
	}
	for _, kind := range common.Kinds {
		for _, in := range inputs {
			once := set.Normalize(kind, in)
			assert.Equal(t, once, set.Normalize(kind, once), "%s: %q", kind, in)
		}
	}
}

func TestNormalizeCustomNoise(t *testing.T) {
	set, err := NewNormalizerSet([]string{"Кор."}, []string{"ГУП"})
	require.NoError(t, err)

	assert.Equal(t, "яблоки шт", set.Normalize(common.KindProduct, "Яблоки кор шт"))
	assert.Equal(t, "водоканал", set.Normalize(common.KindSupplier, "ГУП Водоканал"))
}

func TestNewNormalizerRejectsChainedLookalikes(t *testing.T) {
	_, err := NewNormalizer(NormalizerOptions{Letters: map[rune]rune{'a': 'b', 'b': 'в'}})
	assert.Error(t, err)

	_, err = NewNormalizer(NormalizerOptions{Digits: map[rune]rune{'0': '1'}})
	assert.Error(t, err)
}

func TestValidateText(t *testing.T) {
	assert.NoError(t, ValidateText("Мука\tпшеничная"))
	assert.ErrorIs(t, ValidateText("\xff\xfe"), common.ErrNormalizationInput)
	assert.ErrorIs(t, ValidateText("мука\x00"), common.ErrNormalizationInput)
}
