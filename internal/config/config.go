package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds every runtime option the cost core recognizes. Values come
// from the environment (optionally seeded from a .env file); thresholds
// fall back to the documented defaults.
type Config struct {
	DatabasePath string

	TargetFoodCostPercent        float64
	OutdatedPriceDays            int
	FuzzyMatchThreshold          float64
	ExcludeInventoryOlderThanDays int
	CostVarianceTolerance        string // decimal money units, parsed by callers

	UOMAliasFile  string
	HeaderMapFile string

	LogLevel    string
	Environment string

	Port        int
	MetricsPort int
}

// Load reads configuration from the environment. A missing .env file is
// fine; a missing DATABASE_PATH is not.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabasePath:                  os.Getenv("DATABASE_PATH"),
		TargetFoodCostPercent:         envFloat("TARGET_FOOD_COST_PERCENT", 30),
		OutdatedPriceDays:             envInt("OUTDATED_PRICE_DAYS", 90),
		FuzzyMatchThreshold:           envFloat("FUZZY_MATCH_THRESHOLD", 80),
		ExcludeInventoryOlderThanDays: envInt("EXCLUDE_INVENTORY_OLDER_THAN_DAYS", 180),
		CostVarianceTolerance:         envString("COST_VARIANCE_TOLERANCE", "0.01"),
		UOMAliasFile:                  os.Getenv("UOM_ALIAS_FILE"),
		HeaderMapFile:                 os.Getenv("HEADER_MAP_FILE"),
		LogLevel:                      envString("LOG_LEVEL", "info"),
		Environment:                   envString("ENVIRONMENT", "development"),
		Port:                          envInt("PORT", 8080),
		MetricsPort:                   envInt("METRICS_PORT", 9090),
	}

	if cfg.DatabasePath == "" {
		return nil, fmt.Errorf("DATABASE_PATH is required")
	}
	return cfg, nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
