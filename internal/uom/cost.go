package uom

import (
	"fmt"

	"github.com/shopspring/decimal"

	"platecost/internal/models"
)

// CostResult carries an ingredient cost plus any advisory warnings raised
// while computing it.
type CostResult struct {
	Cost     decimal.Decimal
	Warnings []string
}

// IngredientCost prices (qty, unit) of an inventory item from its primary
// pack. The pack's inner quantity is converted to the dimension base, the
// price is spread over that base quantity, yield is applied, and the recipe
// quantity is converted to the same base. Intermediate results keep at
// least four fractional digits; only recipe totals are rounded to cents.
func (e *Engine) IngredientCost(item *models.InventoryItem, qty decimal.Decimal, unit string) (CostResult, error) {
	res := CostResult{Cost: decimal.Zero}

	packQty, packUnit := item.PackQty, item.PackUnit
	if !packQty.IsPositive() || packUnit == "" {
		// Fall back to parsing the raw pack string for legacy rows.
		_, packQty, packUnit = e.ParsePack(item.PackSize)
	}
	pu, ok := e.Canonicalize(packUnit)
	if !ok {
		return res, &ConversionError{From: packUnit, To: "", Missing: "unknown_unit"}
	}

	ru, ok := e.Canonicalize(unit)
	if !ok {
		return res, &ConversionError{From: unit, To: pu.Symbol, Missing: "unknown_unit"}
	}
	if ru.Imprecise {
		return res, &ConversionError{From: ru.Symbol, To: pu.Symbol, Missing: "dimension"}
	}

	basePackQty := packQty.Mul(pu.ToBase)
	if !basePackQty.IsPositive() {
		return res, &ConversionError{From: pu.Symbol, To: "", Missing: "dimension"}
	}
	pricePerBase := item.CurrentPrice.Div(basePackQty)

	yield := item.YieldPercent
	if yield.IsZero() {
		res.Warnings = append(res.Warnings, fmt.Sprintf("yield percent 0 on %q treated as 100", item.Description))
		yield = decimal.NewFromInt(100)
	}
	effectivePrice := pricePerBase.Div(yield.Div(decimal.NewFromInt(100)))

	ctx := Context{}
	if item.DensityGPerML.Valid {
		v := item.DensityGPerML.Decimal
		ctx.DensityGPerML = &v
	}
	if item.CountToWeightG.Valid {
		v := item.CountToWeightG.Decimal
		ctx.CountToWeightG = &v
	}

	baseUnit := models.BaseUnitFor(pu.Dimension)
	converted, err := e.Convert(qty, ru.Symbol, baseUnit, ctx)
	if err != nil {
		return res, err
	}

	res.Cost = converted.Mul(effectivePrice).Round(4)
	return res, nil
}
