package configs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	require.NoError(t, LoadConfig())

	assert.Equal(t, 0.92, RESOLVE_AUTO_THRESHOLD)
	assert.Equal(t, 0.70, RESOLVE_SUGGEST_THRESHOLD)
	assert.Equal(t, 3, RESOLVE_TOP_K)
	assert.Equal(t, 5*time.Minute, CATALOG_CACHE_TTL)
	assert.Nil(t, NORMALIZER_SUPPLIER_NOISE)
	assert.Empty(t, SYRVE_URL)
	assert.Equal(t, 30*time.Second, SYRVE_TIMEOUT)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("RESOLVE_AUTO_THRESHOLD", "0.95")
	t.Setenv("RESOLVE_SUGGEST_THRESHOLD", "0.6")
	t.Setenv("NORMALIZER_SUPPLIER_NOISE", "ооо, ип ,,llc")
	t.Setenv("CATALOG_CACHE_TTL", "30s")
	t.Setenv("DB_DRIVER", "sqlite")

	require.NoError(t, LoadConfig())

	assert.Equal(t, 0.95, RESOLVE_AUTO_THRESHOLD)
	assert.Equal(t, 0.6, RESOLVE_SUGGEST_THRESHOLD)
	assert.Equal(t, []string{"ооо", "ип", "llc"}, NORMALIZER_SUPPLIER_NOISE)
	assert.Equal(t, 30*time.Second, CATALOG_CACHE_TTL)
	assert.Equal(t, "sqlite", DB_DRIVER)
}

func TestLoadConfigRejectsInvertedThresholds(t *testing.T) {
	t.Setenv("RESOLVE_AUTO_THRESHOLD", "0.5")
	t.Setenv("RESOLVE_SUGGEST_THRESHOLD", "0.8")

	err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigRejectsUnknownDriver(t *testing.T) {
	t.Setenv("DB_DRIVER", "oracle")

	assert.Error(t, LoadConfig())
}

func TestInvalidNumbersFallBackToDefaults(t *testing.T) {
	t.Setenv("RESOLVE_TOP_K", "many")
	t.Setenv("ENABLE_IMAGE_PREPROCESSING", "maybe")

	require.NoError(t, LoadConfig())
	assert.Equal(t, 3, RESOLVE_TOP_K)
	assert.True(t, ENABLE_IMAGE_PREPROCESSING)
}
