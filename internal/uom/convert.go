package uom

import (
	"fmt"

	"github.com/shopspring/decimal"

	"platecost/internal/models"
)

// Context supplies the per-ingredient factors some conversion paths need.
type Context struct {
	DensityGPerML  *decimal.Decimal // weight <-> volume
	CountToWeightG *decimal.Decimal // count <-> weight
	PackageSize    *decimal.Decimal // explicit contents of a package unit
}

// ConversionError reports an impossible conversion path together with the
// context that would make it possible. Callers map Missing onto the
// ingredient's conversion status.
type ConversionError struct {
	From    string
	To      string
	Missing string // "density", "count_weight", "unknown_unit" or "dimension"
}

func (e *ConversionError) Error() string {
	switch e.Missing {
	case "density":
		return fmt.Sprintf("cannot convert %s to %s without density", e.From, e.To)
	case "count_weight":
		return fmt.Sprintf("cannot convert %s to %s without count-to-weight", e.From, e.To)
	case "unknown_unit":
		return fmt.Sprintf("unknown unit in conversion %s to %s", e.From, e.To)
	default:
		return fmt.Sprintf("cannot convert %s to %s: incompatible dimensions", e.From, e.To)
	}
}

// StatusFor maps a conversion failure onto a recipe-ingredient conversion
// status value.
func StatusFor(err error) string {
	ce, ok := err.(*ConversionError)
	if !ok {
		return models.ConversionUnitMismatch
	}
	switch ce.Missing {
	case "density":
		return models.ConversionNeedsDensity
	case "count_weight":
		return models.ConversionNeedsCountWeight
	case "unknown_unit":
		return models.ConversionUnparseable
	default:
		return models.ConversionUnitMismatch
	}
}

// effectiveDim folds package units into count unless the context supplies
// an explicit package size.
func effectiveDim(u UnitDef, ctx Context) models.Dimension {
	if u.Dimension == models.DimensionPackage && ctx.PackageSize == nil {
		return models.DimensionCount
	}
	return u.Dimension
}

// Convert converts a quantity between two canonical units. Same-dimension
// conversions go through the dimension base with exact decimal arithmetic;
// weight<->volume needs a density, count<->weight a count-to-weight factor.
// The engine never panics on an unknown path - it returns a ConversionError
// and lets the caller record the ingredient's conversion status.
func (e *Engine) Convert(q decimal.Decimal, from, to string, ctx Context) (decimal.Decimal, error) {
	fu, ok := e.Canonicalize(from)
	if !ok {
		return decimal.Zero, &ConversionError{From: from, To: to, Missing: "unknown_unit"}
	}
	tu, ok := e.Canonicalize(to)
	if !ok {
		return decimal.Zero, &ConversionError{From: from, To: to, Missing: "unknown_unit"}
	}

	if fu.Symbol == tu.Symbol {
		return q, nil
	}

	fromDim := effectiveDim(fu, ctx)
	toDim := effectiveDim(tu, ctx)

	fromFactor := fu.ToBase
	if fu.Dimension == models.DimensionPackage && ctx.PackageSize != nil {
		fromFactor = *ctx.PackageSize
	}
	toFactor := tu.ToBase
	if tu.Dimension == models.DimensionPackage && ctx.PackageSize != nil {
		toFactor = *ctx.PackageSize
	}

	if fromDim == toDim {
		return q.Mul(fromFactor).Div(toFactor), nil
	}

	// Weight <-> volume via density (g/ml).
	if fromDim == models.DimensionVolume && toDim == models.DimensionWeight {
		if ctx.DensityGPerML == nil || ctx.DensityGPerML.IsZero() {
			return decimal.Zero, &ConversionError{From: fu.Symbol, To: tu.Symbol, Missing: "density"}
		}
		grams := q.Mul(fromFactor).Mul(*ctx.DensityGPerML)
		return grams.Div(toFactor), nil
	}
	if fromDim == models.DimensionWeight && toDim == models.DimensionVolume {
		if ctx.DensityGPerML == nil || ctx.DensityGPerML.IsZero() {
			return decimal.Zero, &ConversionError{From: fu.Symbol, To: tu.Symbol, Missing: "density"}
		}
		ml := q.Mul(fromFactor).Div(*ctx.DensityGPerML)
		return ml.Div(toFactor), nil
	}

	// Count <-> weight via grams-per-each.
	if fromDim == models.DimensionCount && toDim == models.DimensionWeight {
		if ctx.CountToWeightG == nil || ctx.CountToWeightG.IsZero() {
			return decimal.Zero, &ConversionError{From: fu.Symbol, To: tu.Symbol, Missing: "count_weight"}
		}
		grams := q.Mul(fromFactor).Mul(*ctx.CountToWeightG)
		return grams.Div(toFactor), nil
	}
	if fromDim == models.DimensionWeight && toDim == models.DimensionCount {
		if ctx.CountToWeightG == nil || ctx.CountToWeightG.IsZero() {
			return decimal.Zero, &ConversionError{From: fu.Symbol, To: tu.Symbol, Missing: "count_weight"}
		}
		each := q.Mul(fromFactor).Div(*ctx.CountToWeightG)
		return each.Div(toFactor), nil
	}

	return decimal.Zero, &ConversionError{From: fu.Symbol, To: tu.Symbol, Missing: "dimension"}
}

// CanConvert reports whether a conversion path exists with the given
// context. Used by the reconciler's UOM gap audit.
func (e *Engine) CanConvert(from, to string, ctx Context) bool {
	_, err := e.Convert(decimal.NewFromInt(1), from, to, ctx)
	return err == nil
}
