package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ColumnSpec declares how one source CSV column maps onto a staging field.
// Header-to-field mappings are configuration data, not code: each source
// format ships its own map file.
type ColumnSpec struct {
	Target     string `yaml:"target"`
	Type       string `yaml:"type"` // string, float, integer, date, money
	Required   bool   `yaml:"required"`
	FlagIfEmpty bool  `yaml:"flag_if_empty"`
	FlagIfZero  bool  `yaml:"flag_if_zero"`
}

// HeaderMap maps source CSV header names to column specs.
type HeaderMap map[string]ColumnSpec

// LoadHeaderMap reads a header-map YAML file. A missing or malformed file
// fails startup: without the mapping, ingestion cannot name its fields.
func LoadHeaderMap(path string) (HeaderMap, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading header map %s: %w", path, err)
	}
	var hm HeaderMap
	if err := yaml.Unmarshal(raw, &hm); err != nil {
		return nil, fmt.Errorf("parsing header map %s: %w", path, err)
	}
	if len(hm) == 0 {
		return nil, fmt.Errorf("header map %s is empty", path)
	}
	return hm, nil
}

// DefaultInventoryHeaderMap covers the standard vendor item export layout.
// Deployments with different headers point HEADER_MAP_FILE at their own map.
func DefaultInventoryHeaderMap() HeaderMap {
	return HeaderMap{
		"Item Code":             {Target: "item_code", Type: "string"},
		"Product(s)":            {Target: "description", Type: "string", Required: true},
		"Vendor Name":           {Target: "vendor_name", Type: "string", FlagIfEmpty: true},
		"Pack Size":             {Target: "pack_size", Type: "string", FlagIfEmpty: true},
		"Contracted Price ($)":  {Target: "current_price", Type: "money", FlagIfZero: true},
		"Last Purchased Price ($)": {Target: "last_purchased_price", Type: "money"},
		"Last Purchased Date":   {Target: "last_purchased_date", Type: "date"},
		"Product Categories":    {Target: "product_categories", Type: "string"},
		"Yield Percent":         {Target: "yield_percent", Type: "float"},
	}
}
