package uom

import "github.com/shopspring/decimal"

// DensityDef seeds the ingredient_densities table for weight/volume
// conversion when an inventory item records no explicit density.
type DensityDef struct {
	IngredientName string
	DensityGPerML  decimal.Decimal
	Source         string
}

// DefaultDensities holds common g/ml densities from USDA and culinary
// reference data.
func DefaultDensities() []DensityDef {
	return []DensityDef{
		{"Water", d("1.0"), "Standard"},
		{"Milk", d("1.03"), "USDA"},
		{"Heavy Cream", d("0.994"), "USDA"},
		{"Oil", d("0.92"), "Average vegetable oil"},
		{"Olive Oil", d("0.915"), "USDA"},
		{"Vegetable Oil", d("0.92"), "USDA"},
		{"Vinegar", d("1.01"), "USDA"},
		{"Honey", d("1.42"), "USDA"},
		{"Corn Syrup", d("1.38"), "USDA"},
		{"Molasses", d("1.4"), "USDA"},
		{"All-Purpose Flour", d("0.529"), "King Arthur"},
		{"Flour", d("0.529"), "King Arthur"},
		{"Sugar", d("0.845"), "USDA"},
		{"Granulated Sugar", d("0.845"), "USDA"},
		{"Brown Sugar", d("0.721"), "USDA (packed)"},
		{"Powdered Sugar", d("0.56"), "USDA"},
		{"Salt", d("1.217"), "Table salt"},
		{"Kosher Salt", d("0.69"), "Diamond Crystal"},
		{"Baking Powder", d("0.721"), "USDA"},
		{"Baking Soda", d("0.689"), "USDA"},
		{"Cornstarch", d("0.629"), "USDA"},
		{"Butter", d("0.911"), "USDA"},
		{"Sour Cream", d("0.993"), "USDA"},
		{"Yogurt", d("1.03"), "USDA"},
		{"Cream Cheese", d("0.98"), "USDA"},
		{"Ketchup", d("1.14"), "USDA"},
		{"Mayonnaise", d("0.91"), "USDA"},
		{"Mustard", d("1.05"), "USDA"},
		{"Soy Sauce", d("1.2"), "USDA"},
		{"Hot Sauce", d("1.02"), "USDA"},
		{"Ground Beef", d("0.97"), "Approximate"},
		{"Chicken", d("1.04"), "Approximate"},
		{"Fish", d("1.0"), "Approximate"},
		{"BBQ Sauce", d("1.25"), "Approximate"},
		{"Ranch Dressing", d("0.95"), "Approximate"},
		{"Buffalo Sauce", d("1.02"), "Approximate"},
		{"Alfredo Sauce", d("1.1"), "Approximate"},
		{"Marinara Sauce", d("1.03"), "Approximate"},
		{"Pesto", d("0.95"), "Approximate"},
	}
}
