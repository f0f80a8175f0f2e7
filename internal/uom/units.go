package uom

import (
	"github.com/shopspring/decimal"

	"platecost/internal/models"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// UnitDef declares a canonical unit with its factor to the dimension base
// (grams for weight, millilitres for volume, each otherwise).
type UnitDef struct {
	Symbol    string
	Dimension models.Dimension
	ToBase    decimal.Decimal
	Imprecise bool
}

// DefaultUnits is the built-in canonical unit table. It is loaded into the
// units table at startup and is read-only at runtime.
func DefaultUnits() []UnitDef {
	return []UnitDef{
		// Weight (base: gram)
		{Symbol: "g", Dimension: models.DimensionWeight, ToBase: d("1")},
		{Symbol: "kg", Dimension: models.DimensionWeight, ToBase: d("1000")},
		{Symbol: "mg", Dimension: models.DimensionWeight, ToBase: d("0.001")},
		{Symbol: "lb", Dimension: models.DimensionWeight, ToBase: d("453.592")},
		{Symbol: "oz", Dimension: models.DimensionWeight, ToBase: d("28.3495")},

		// Volume (base: millilitre)
		{Symbol: "ml", Dimension: models.DimensionVolume, ToBase: d("1")},
		{Symbol: "l", Dimension: models.DimensionVolume, ToBase: d("1000")},
		{Symbol: "cup", Dimension: models.DimensionVolume, ToBase: d("236.588")},
		{Symbol: "tbsp", Dimension: models.DimensionVolume, ToBase: d("14.7868")},
		{Symbol: "tsp", Dimension: models.DimensionVolume, ToBase: d("4.92892")},
		{Symbol: "fl oz", Dimension: models.DimensionVolume, ToBase: d("29.5735")},
		{Symbol: "gal", Dimension: models.DimensionVolume, ToBase: d("3785.412")},
		{Symbol: "qt", Dimension: models.DimensionVolume, ToBase: d("946.353")},
		{Symbol: "pt", Dimension: models.DimensionVolume, ToBase: d("473.176")},
		{Symbol: "pinch", Dimension: models.DimensionVolume, ToBase: d("0.31"), Imprecise: true},
		{Symbol: "dash", Dimension: models.DimensionVolume, ToBase: d("0.62"), Imprecise: true},

		// Count (base: each)
		{Symbol: "each", Dimension: models.DimensionCount, ToBase: d("1")},
		{Symbol: "doz", Dimension: models.DimensionCount, ToBase: d("12")},
		{Symbol: "slice", Dimension: models.DimensionCount, ToBase: d("1")},
		{Symbol: "loaf", Dimension: models.DimensionCount, ToBase: d("1")},
		{Symbol: "ct", Dimension: models.DimensionCount, ToBase: d("1")},

		// Package (treated as count unless the context supplies a size)
		{Symbol: "case", Dimension: models.DimensionPackage, ToBase: d("1")},
		{Symbol: "box", Dimension: models.DimensionPackage, ToBase: d("1")},
		{Symbol: "bag", Dimension: models.DimensionPackage, ToBase: d("1")},
		{Symbol: "bottle", Dimension: models.DimensionPackage, ToBase: d("1")},
		{Symbol: "jug", Dimension: models.DimensionPackage, ToBase: d("1")},
		{Symbol: "can", Dimension: models.DimensionPackage, ToBase: d("1")},
		{Symbol: "jar", Dimension: models.DimensionPackage, ToBase: d("1")},
		{Symbol: "pack", Dimension: models.DimensionPackage, ToBase: d("1")},
	}
}

// DefaultAliases maps normalized surface forms to canonical symbols. Keys
// are stored lowercased with dots removed and whitespace collapsed; the
// engine normalizes lookups the same way.
func DefaultAliases() map[string]string {
	return map[string]string{
		// Weight
		"gram": "g", "grams": "g", "gm": "g", "gr": "g", "grm": "g",
		"kilogram": "kg", "kilograms": "kg", "kilo": "kg", "kilos": "kg",
		"milligram": "mg", "milligrams": "mg",
		"pound": "lb", "pounds": "lb", "lbs": "lb",
		"ounce": "oz", "ounces": "oz",

		// Volume
		"milliliter": "ml", "milliliters": "ml", "millilitre": "ml", "millilitres": "ml",
		"liter": "l", "liters": "l", "litre": "l", "litres": "l", "ltr": "l",
		"cups": "cup",
		"tablespoon": "tbsp", "tablespoons": "tbsp", "tblsp": "tbsp",
		"teaspoon": "tsp", "teaspoons": "tsp",
		"floz": "fl oz", "fluid ounce": "fl oz", "fluid ounces": "fl oz", "fl": "fl oz",
		"gallon": "gal", "gallons": "gal",
		"quart": "qt", "quarts": "qt",
		"pint": "pt", "pints": "pt",

		// Count
		"ea": "each", "pc": "each", "piece": "each", "pieces": "each",
		"count": "each", "unit": "each", "units": "each",
		"portion": "each", "portions": "each",
		"serving": "each", "servings": "each",
		"slices": "slice", "loaves": "loaf",
		"dozen": "doz",

		// Package
		"cases": "case", "cs": "case",
		"boxes": "box", "bags": "bag",
		"bottles": "bottle", "jugs": "jug",
		"cans": "can", "jars": "jar",
		"packs": "pack", "package": "pack", "packages": "pack",
		"container": "pack", "containers": "pack",
	}
}
