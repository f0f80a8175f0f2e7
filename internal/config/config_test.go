package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_PATH", "/tmp/test.db")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/test.db", cfg.DatabasePath)
	assert.Equal(t, 30.0, cfg.TargetFoodCostPercent)
	assert.Equal(t, 90, cfg.OutdatedPriceDays)
	assert.Equal(t, 80.0, cfg.FuzzyMatchThreshold)
	assert.Equal(t, 180, cfg.ExcludeInventoryOlderThanDays)
	assert.Equal(t, "0.01", cfg.CostVarianceTolerance)
}

func TestLoadRequiresDatabasePath(t *testing.T) {
	t.Setenv("DATABASE_PATH", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_PATH", ":memory:")
	t.Setenv("OUTDATED_PRICE_DAYS", "45")
	t.Setenv("FUZZY_MATCH_THRESHOLD", "90")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 45, cfg.OutdatedPriceDays)
	assert.Equal(t, 90.0, cfg.FuzzyMatchThreshold)
}

func TestLoadHeaderMap(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "map.yaml")
	content := []byte(`
"Item Code":
  target: item_code
  type: string
"Product(s)":
  target: description
  type: string
  required: true
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	hm, err := LoadHeaderMap(path)
	require.NoError(t, err)
	assert.Equal(t, "description", hm["Product(s)"].Target)
	assert.True(t, hm["Product(s)"].Required)
}

func TestLoadHeaderMapMissingFile(t *testing.T) {
	_, err := LoadHeaderMap("/nonexistent/map.yaml")
	assert.Error(t, err)
}
