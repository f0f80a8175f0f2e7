package models

import (
	"github.com/jinzhu/gorm"
	"github.com/shopspring/decimal"
)

// Dimension classifies a unit of measure. Conversion within a dimension is
// a factor multiply; crossing dimensions needs context (density, count
// weight, package size).
type Dimension string

const (
	DimensionWeight  Dimension = "weight"
	DimensionVolume  Dimension = "volume"
	DimensionCount   Dimension = "count"
	DimensionPackage Dimension = "package"
)

// BaseUnitFor returns the canonical base unit of a dimension. Package
// units have no factor of their own; they resolve as counts.
func BaseUnitFor(dim Dimension) string {
	switch dim {
	case DimensionWeight:
		return "g"
	case DimensionVolume:
		return "ml"
	default:
		return "each"
	}
}

// Unit is one canonical unit of measure. The table is seeded from the
// compiled-in defaults and read-only at runtime.
type Unit struct {
	gorm.Model
	Symbol    string    `gorm:"unique_index;not null"`
	Dimension Dimension `gorm:"index;not null"`
	ToBase    decimal.Decimal `gorm:"type:decimal(16,6)"` // factor to the dimension's base unit
	Imprecise bool // pinch, dash: flagged on cost lines, never trusted alone
}

// TableName sets the table name for Unit
func (Unit) TableName() string {
	return "units"
}

// UnitAlias maps a surface spelling onto a canonical unit symbol.
type UnitAlias struct {
	gorm.Model
	Alias  string `gorm:"unique_index;not null"`
	Symbol string `gorm:"index;not null"`
}

// TableName sets the table name for UnitAlias
func (UnitAlias) TableName() string {
	return "unit_aliases"
}

// IngredientDensity is a reference g/ml density keyed by ingredient name,
// used when an inventory item records no explicit density. Lookup is by
// longest contained name match.
type IngredientDensity struct {
	gorm.Model
	IngredientName string `gorm:"index;not null"`
	DensityGPerML  decimal.Decimal `gorm:"type:decimal(10,4);not null"`
	Source         string
}

// TableName sets the table name for IngredientDensity
func (IngredientDensity) TableName() string {
	return "ingredient_densities"
}
