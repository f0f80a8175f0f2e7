package reconcile

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"platecost/internal/costing"
	"platecost/internal/metrics"
	"platecost/internal/models"
	"platecost/internal/uom"
)

// Variance classes.
const (
	VarianceExact       = "exact"       // within a cent
	VarianceSmall       = "small"       // within a dime
	VarianceSignificant = "significant"
)

// Margin health classes for a menu item's food-cost percentage.
const (
	MarginExcellent  = "excellent"  // < 25
	MarginGood       = "good"       // 25-30
	MarginAcceptable = "acceptable" // 30-35
	MarginPoor       = "poor"       // > 35
)

// PricingIssue flags an inventory item the cost resolver cannot trust.
type PricingIssue struct {
	ItemID      uint   `json:"item_id"`
	ItemCode    string `json:"item_code,omitempty"`
	Description string `json:"description"`
	Issue       string `json:"issue"`
}

// UOMGap is a (vendor unit, recipe unit) pair in actual use that cannot
// convert with the context on record.
type UOMGap struct {
	VendorUnit string `json:"vendor_unit"`
	RecipeUnit string `json:"recipe_unit"`
	Missing    string `json:"missing"`
	Count      int    `json:"count"`
}

// VarianceEntry compares a recipe's calculated cost against its stated one.
type VarianceEntry struct {
	RecipeID   uint            `json:"recipe_id"`
	RecipeName string          `json:"recipe_name"`
	Calculated decimal.Decimal `json:"calculated"`
	Stated     decimal.Decimal `json:"stated"`
	Variance   decimal.Decimal `json:"variance"`
	Class      string          `json:"class"`
}

// MarginEntry classifies one priced menu item's food-cost percentage.
type MarginEntry struct {
	MenuItemID  uint            `json:"menu_item_id"`
	Name        string          `json:"name"`
	MenuPrice   decimal.Decimal `json:"menu_price"`
	FoodCost    decimal.Decimal `json:"food_cost"`
	FoodCostPct decimal.Decimal `json:"food_cost_pct"`
	Class       string          `json:"class"`
}

// SystemicIssue is a failure mode shared by enough recipes to indicate a
// data problem rather than a recipe problem.
type SystemicIssue struct {
	FailureMode    string   `json:"failure_mode"`
	Recipes        []string `json:"recipes"`
	Recommendation string   `json:"recommendation"`
}

// Report is one reconciliation run. It is a read-only audit product;
// nothing in it feeds back into authoritative tables.
type Report struct {
	RunID        string          `json:"run_id"`
	GeneratedAt  time.Time       `json:"generated_at"`
	Pricing      []PricingIssue  `json:"pricing_issues"`
	UOMGaps      []UOMGap        `json:"uom_gaps"`
	Variances    []VarianceEntry `json:"variances"`
	AccuracyRate decimal.Decimal `json:"accuracy_rate"` // share of exact+small, 0-100
	Margins      []MarginEntry   `json:"margins"`
	Systemic     []SystemicIssue `json:"systemic_issues"`
}

// Reconciler runs the audit checks. It reads authoritative tables only
// and never writes them.
type Reconciler struct {
	db           *gorm.DB
	engine       *uom.Engine
	resolver     *costing.Resolver
	outdatedDays int
	now          func() time.Time
}

// New wires a reconciler. outdatedDays is the staleness cutoff for
// purchase prices.
func New(db *gorm.DB, engine *uom.Engine, resolver *costing.Resolver, outdatedDays int) *Reconciler {
	return &Reconciler{db: db, engine: engine, resolver: resolver, outdatedDays: outdatedDays, now: time.Now}
}

// Run executes every check and assembles the report.
func (r *Reconciler) Run() (*Report, error) {
	start := time.Now()
	defer func() {
		metrics.BatchDuration.WithLabelValues("reconciliation").Observe(time.Since(start).Seconds())
	}()

	report := &Report{
		RunID:       uuid.New().String(),
		GeneratedAt: r.now(),
	}

	if err := r.checkPricing(report); err != nil {
		return nil, err
	}
	if err := r.checkUOMGaps(report); err != nil {
		return nil, err
	}
	audits, err := r.checkVariances(report)
	if err != nil {
		return nil, err
	}
	if err := r.checkMargins(report); err != nil {
		return nil, err
	}
	r.checkSystemic(report, audits)

	zap.L().Info("reconciliation finished",
		zap.String("run_id", report.RunID),
		zap.Int("pricing_issues", len(report.Pricing)),
		zap.Int("uom_gaps", len(report.UOMGaps)),
		zap.Int("variances", len(report.Variances)),
		zap.Int("systemic", len(report.Systemic)),
	)
	return report, nil
}

func (r *Reconciler) checkPricing(report *Report) error {
	var items []models.InventoryItem
	if err := r.db.Find(&items).Error; err != nil {
		return fmt.Errorf("loading inventory: %w", err)
	}
	cutoff := r.now().AddDate(0, 0, -r.outdatedDays)

	for _, item := range items {
		add := func(issue string) {
			report.Pricing = append(report.Pricing, PricingIssue{
				ItemID: item.ID, ItemCode: item.ItemCode, Description: item.Description, Issue: issue,
			})
		}
		if !item.CurrentPrice.IsPositive() {
			add("no positive current price")
		}
		if item.LastPurchasedDate != nil && item.LastPurchasedDate.Before(cutoff) {
			add(fmt.Sprintf("last purchase older than %d days", r.outdatedDays))
		}
		if !item.PackQty.IsPositive() || item.PackUnit == "" || !r.engine.Known(item.PackUnit) {
			add("unparseable pack size")
		}
	}
	return nil
}

// checkUOMGaps tests convertibility for every vendor/recipe unit pair in
// actual use, with the owning item's density and count-weight context.
func (r *Reconciler) checkUOMGaps(report *Report) error {
	var ingredients []models.RecipeIngredient
	if err := r.db.Where("inventory_id IS NOT NULL").Find(&ingredients).Error; err != nil {
		return fmt.Errorf("loading recipe ingredients: %w", err)
	}

	type gapKey struct{ vendor, recipe, missing string }
	gaps := make(map[gapKey]int)

	for _, ing := range ingredients {
		var item models.InventoryItem
		if err := r.db.First(&item, *ing.InventoryID).Error; err != nil {
			continue
		}
		if item.PackUnit == "" || ing.Unit == "" {
			continue
		}

		ctx := uom.Context{}
		if item.DensityGPerML.Valid {
			d := item.DensityGPerML.Decimal
			ctx.DensityGPerML = &d
		}
		if item.CountToWeightG.Valid {
			c := item.CountToWeightG.Decimal
			ctx.CountToWeightG = &c
		}
		if _, err := r.engine.Convert(decimal.NewFromInt(1), ing.Unit, item.PackUnit, ctx); err != nil {
			gaps[gapKey{item.PackUnit, ing.Unit, uom.StatusFor(err)}]++
		}
	}

	for key, count := range gaps {
		report.UOMGaps = append(report.UOMGaps, UOMGap{
			VendorUnit: key.vendor, RecipeUnit: key.recipe, Missing: key.missing, Count: count,
		})
	}
	return nil
}

// checkVariances recomputes every recipe and classifies the distance to
// its stated cost. The audits are returned for the systemic check so
// recipes are costed once per run.
func (r *Reconciler) checkVariances(report *Report) ([]*costing.AuditRecord, error) {
	var recipes []models.Recipe
	if err := r.db.Find(&recipes).Error; err != nil {
		return nil, fmt.Errorf("loading recipes: %w", err)
	}

	cent := decimal.RequireFromString("0.01")
	dime := decimal.RequireFromString("0.10")
	var audits []*costing.AuditRecord
	accurate := 0

	for _, recipe := range recipes {
		audit, _ := r.resolver.ComputeRecipeCost(recipe.ID)
		if audit == nil {
			continue
		}
		audits = append(audits, audit)

		if !recipe.StatedCost.Valid {
			continue
		}
		variance := audit.Total.Sub(recipe.StatedCost.Decimal)
		class := VarianceSignificant
		switch {
		case variance.Abs().LessThanOrEqual(cent):
			class = VarianceExact
		case variance.Abs().LessThanOrEqual(dime):
			class = VarianceSmall
		}
		if class != VarianceSignificant {
			accurate++
		}
		report.Variances = append(report.Variances, VarianceEntry{
			RecipeID:   recipe.ID,
			RecipeName: recipe.Name,
			Calculated: audit.Total.Round(4),
			Stated:     recipe.StatedCost.Decimal,
			Variance:   variance.Round(4),
			Class:      class,
		})
	}

	if n := len(report.Variances); n > 0 {
		report.AccuracyRate = decimal.NewFromInt(int64(accurate)).
			Div(decimal.NewFromInt(int64(n))).
			Mul(decimal.NewFromInt(100)).Round(1)
	}
	return audits, nil
}

func (r *Reconciler) checkMargins(report *Report) error {
	var items []models.MenuItem
	if err := r.db.Find(&items).Error; err != nil {
		return fmt.Errorf("loading menu items: %w", err)
	}

	for _, mi := range items {
		if !mi.MenuPrice.IsPositive() {
			continue
		}
		var recipe models.Recipe
		if err := r.db.First(&recipe, mi.RecipeID).Error; err != nil {
			continue
		}
		pct := recipe.FoodCost.Div(mi.MenuPrice).Mul(decimal.NewFromInt(100)).Round(2)

		class := MarginPoor
		switch {
		case pct.LessThan(decimal.NewFromInt(25)):
			class = MarginExcellent
		case pct.LessThanOrEqual(decimal.NewFromInt(30)):
			class = MarginGood
		case pct.LessThanOrEqual(decimal.NewFromInt(35)):
			class = MarginAcceptable
		}
		report.Margins = append(report.Margins, MarginEntry{
			MenuItemID:  mi.ID,
			Name:        mi.Name,
			MenuPrice:   mi.MenuPrice,
			FoodCost:    recipe.FoodCost,
			FoodCostPct: pct,
			Class:       class,
		})
	}
	return nil
}

// recommendations per failure mode, keyed by conversion status.
var recommendations = map[string]string{
	models.ConversionNeedsDensity:     "record density (g/ml) for the affected inventory items",
	models.ConversionNeedsCountWeight: "record count-to-weight (g per each) for the affected inventory items",
	models.ConversionUnparseable:      "repair pack sizes or relink ingredients flagged unparseable",
	models.ConversionUnitMismatch:     "review recipe units: the dimensions cannot reconcile",
}

// checkSystemic clusters per-recipe failures by mode; three or more
// recipes sharing one mode elevate it to a systemic recommendation.
func (r *Reconciler) checkSystemic(report *Report, audits []*costing.AuditRecord) {
	byMode := make(map[string][]string)
	for _, audit := range audits {
		modes := make(map[string]bool)
		for _, line := range audit.Lines {
			if line.ConversionStatus != models.ConversionOK {
				modes[line.ConversionStatus] = true
			}
		}
		for mode := range modes {
			byMode[mode] = append(byMode[mode], audit.RecipeName)
		}
	}

	for mode, recipes := range byMode {
		if len(recipes) < 3 {
			continue
		}
		rec := recommendations[mode]
		if rec == "" {
			rec = "investigate the shared failure mode"
		}
		report.Systemic = append(report.Systemic, SystemicIssue{
			FailureMode:    mode,
			Recipes:        recipes,
			Recommendation: rec,
		})
	}
}
