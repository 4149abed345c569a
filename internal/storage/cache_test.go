package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bosocmputer/invoice_resolver/internal/common"
	"github.com/bosocmputer/invoice_resolver/internal/processor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lower(_ common.EntityKind, s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func TestCatalogCacheSnapshot(t *testing.T) {
	catalog := NewMemoryCatalog()
	aliases := NewMemoryAliasStore()
	ctx := context.Background()

	flour := catalog.Add(common.KindProduct, "Мука", "")
	sugar := catalog.Add(common.KindProduct, "Сахар", "")
	dup := catalog.Add(common.KindProduct, "МУКА", "")
	catalog.Add(common.KindProduct, "   ", "")
	require.NoError(t, aliases.Record(ctx, common.KindProduct, "мука в/с", flour))

	cache := NewCatalogCache(catalog, aliases, lower, time.Minute)
	snap, err := cache.Get(ctx, common.KindProduct)
	require.NoError(t, err)

	assert.Equal(t, []processor.Candidate{
		{Text: "мука", EntityID: flour},
		{Text: "сахар", EntityID: sugar},
		{Text: "мука", EntityID: dup},
		{Text: "мука в/с", EntityID: flour},
	}, snap.Candidates())

	id, ok := snap.Canonical("мука")
	assert.True(t, ok)
	assert.Equal(t, flour, id)
}

func TestCatalogCacheTTLAndInvalidate(t *testing.T) {
	catalog := NewMemoryCatalog()
	aliases := NewMemoryAliasStore()
	ctx := context.Background()
	catalog.Add(common.KindSupplier, "Ромашка", "")

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	cache := NewCatalogCache(catalog, aliases, lower, time.Minute)
	cache.now = func() time.Time { return now }

	first, err := cache.Get(ctx, common.KindSupplier)
	require.NoError(t, err)

	catalog.Add(common.KindSupplier, "Василек", "")
	same, err := cache.Get(ctx, common.KindSupplier)
	require.NoError(t, err)
	assert.Same(t, first, same)
	assert.Len(t, same.Entries, 1)

	cache.Invalidate(common.KindSupplier)
	fresh, err := cache.Get(ctx, common.KindSupplier)
	require.NoError(t, err)
	assert.Len(t, fresh.Entries, 2)

	catalog.Add(common.KindSupplier, "Ландыш", "")
	now = now.Add(2 * time.Minute)
	expired, err := cache.Get(ctx, common.KindSupplier)
	require.NoError(t, err)
	assert.Len(t, expired.Entries, 3)

	cache.Clear()
	_, err = cache.Get(ctx, common.KindProduct)
	require.NoError(t, err)
}
