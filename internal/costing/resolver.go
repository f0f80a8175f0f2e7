package costing

import (
	"fmt"
	"strings"

	"github.com/jinzhu/gorm"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"platecost/internal/metrics"
	"platecost/internal/models"
	"platecost/internal/uom"
)

// Line is one ingredient's contribution to a recipe cost.
type Line struct {
	IngredientID     uint            `json:"ingredient_id"`
	Name             string          `json:"name"`
	Type             string          `json:"type"`
	Quantity         decimal.Decimal `json:"quantity"`
	Unit             string          `json:"unit"`
	Cost             decimal.Decimal `json:"cost"`
	ConversionStatus string          `json:"conversion_status"`
	Error            string          `json:"error,omitempty"`
}

// AuditRecord is the full result of costing one recipe. It is a report,
// never authoritative data; persisting the cached cost fields is a
// separate, explicit step.
type AuditRecord struct {
	RecipeID       uint                `json:"recipe_id"`
	RecipeName     string              `json:"recipe_name"`
	Total          decimal.Decimal     `json:"total"`
	PerServing     decimal.Decimal     `json:"per_serving"`
	FoodCostPct    decimal.NullDecimal `json:"food_cost_pct"`
	Margin         decimal.NullDecimal `json:"margin"`
	StatedCost     decimal.NullDecimal `json:"stated_cost"`
	Variance       decimal.NullDecimal `json:"variance"`
	Lines          []Line              `json:"lines"`
	Warnings       []string            `json:"warnings,omitempty"`
	Errors         []string            `json:"errors,omitempty"`
}

// CycleError reports a recipe that transitively contains itself. Path
// holds the recipe names from the top-level computation down to the
// repeated entry.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "recipe cycle detected: " + strings.Join(e.Path, " -> ")
}

// Resolver computes recipe food costs by recursive descent through prep
// recipes. Each top-level computation carries its own visit set and memo
// cache, so shared preps are costed once and cycles terminate.
type Resolver struct {
	db        *gorm.DB
	engine    *uom.Engine
	tolerance decimal.Decimal
}

// NewResolver wires a resolver. The variance tolerance is the money
// threshold past which calculated-vs-stated differences raise a warning.
func NewResolver(db *gorm.DB, engine *uom.Engine, tolerance decimal.Decimal) *Resolver {
	return &Resolver{db: db, engine: engine, tolerance: tolerance}
}

type computation struct {
	visiting map[uint]bool
	path     []string
	cache    map[uint]*AuditRecord
}

// ComputeRecipeCost costs one recipe. The audit is always returned, cost
// fields holding whatever partial sum was reachable; a non-nil error is
// either a load failure or a CycleError naming the cycle.
func (r *Resolver) ComputeRecipeCost(recipeID uint) (*AuditRecord, error) {
	c := &computation{
		visiting: make(map[uint]bool),
		cache:    make(map[uint]*AuditRecord),
	}
	audit, err := r.compute(recipeID, c)
	outcome := "ok"
	if err != nil {
		if _, isCycle := err.(*CycleError); isCycle {
			outcome = "cycle"
		} else {
			outcome = "error"
		}
	} else if audit != nil && len(audit.Errors) > 0 {
		outcome = "partial"
	}
	metrics.RecipesCosted.WithLabelValues(outcome).Inc()
	return audit, err
}

func (r *Resolver) compute(recipeID uint, c *computation) (*AuditRecord, error) {
	if cached, ok := c.cache[recipeID]; ok {
		return cached, nil
	}

	var recipe models.Recipe
	if err := r.db.First(&recipe, recipeID).Error; err != nil {
		return nil, fmt.Errorf("loading recipe %d: %w", recipeID, err)
	}

	if c.visiting[recipeID] {
		return nil, &CycleError{Path: append(append([]string{}, c.path...), recipe.Name)}
	}
	c.visiting[recipeID] = true
	c.path = append(c.path, recipe.Name)
	defer func() {
		delete(c.visiting, recipeID)
		c.path = c.path[:len(c.path)-1]
	}()

	audit := &AuditRecord{
		RecipeID:   recipe.ID,
		RecipeName: recipe.Name,
		Total:      decimal.Zero,
		StatedCost: recipe.StatedCost,
	}

	var ingredients []models.RecipeIngredient
	if err := r.db.Where("recipe_id = ?", recipe.ID).
		Order("sort_order, id").Find(&ingredients).Error; err != nil {
		return nil, fmt.Errorf("loading ingredients of %q: %w", recipe.Name, err)
	}

	var cycleErr *CycleError
	for _, ing := range ingredients {
		line := Line{
			IngredientID:     ing.ID,
			Name:             ing.IngredientName,
			Type:             ing.IngredientType,
			Quantity:         ing.Quantity,
			Unit:             ing.Unit,
			ConversionStatus: models.ConversionOK,
		}

		switch {
		case ing.InventoryID != nil:
			r.costProductLine(&line, &ing, audit)

		case ing.ChildRecipeID != nil:
			childCycle := r.costPrepLine(&line, &ing, audit, c)
			if childCycle != nil && cycleErr == nil {
				cycleErr = childCycle
			}

		default:
			line.Error = fmt.Sprintf("ingredient %q is not linked to inventory or a prep recipe", ing.IngredientName)
			line.ConversionStatus = models.ConversionUnparseable
			audit.Errors = append(audit.Errors, line.Error)
		}

		audit.Total = audit.Total.Add(line.Cost)
		audit.Lines = append(audit.Lines, line)
	}

	if recipe.ServingSize.IsPositive() {
		audit.PerServing = audit.Total.Div(recipe.ServingSize).Round(4)
	}
	if recipe.MenuPrice.IsPositive() {
		hundred := decimal.NewFromInt(100)
		audit.FoodCostPct = decimal.NullDecimal{
			Decimal: audit.Total.Div(recipe.MenuPrice).Mul(hundred).Round(2), Valid: true,
		}
		audit.Margin = decimal.NullDecimal{
			Decimal: recipe.MenuPrice.Sub(audit.Total).Div(recipe.MenuPrice).Mul(hundred).Round(2), Valid: true,
		}
	}
	if recipe.StatedCost.Valid {
		variance := audit.Total.Sub(recipe.StatedCost.Decimal)
		audit.Variance = decimal.NullDecimal{Decimal: variance.Round(4), Valid: true}
		if variance.Abs().GreaterThan(r.tolerance) {
			audit.Warnings = append(audit.Warnings,
				fmt.Sprintf("calculated cost %s differs from stated cost %s by %s",
					audit.Total.Round(4), recipe.StatedCost.Decimal, variance.Round(4)))
		}
	}

	c.cache[recipeID] = audit
	if cycleErr != nil {
		return audit, cycleErr
	}
	return audit, nil
}

func (r *Resolver) costProductLine(line *Line, ing *models.RecipeIngredient, audit *AuditRecord) {
	var item models.InventoryItem
	if err := r.db.First(&item, *ing.InventoryID).Error; err != nil {
		line.Error = fmt.Sprintf("inventory item %d not found for %q", *ing.InventoryID, ing.IngredientName)
		line.ConversionStatus = models.ConversionUnparseable
		audit.Errors = append(audit.Errors, line.Error)
		return
	}
	if !item.Costable() {
		line.Error = fmt.Sprintf("inventory item %q is not costable (needs review or missing pack)", item.Description)
		line.ConversionStatus = models.ConversionUnparseable
		audit.Errors = append(audit.Errors, line.Error)
		return
	}

	// Fall back to the seed density table when the item records none.
	if !item.DensityGPerML.Valid {
		if d := r.densityFor(item.Description); d != nil {
			item.DensityGPerML = decimal.NullDecimal{Decimal: *d, Valid: true}
		}
	}

	result, err := r.engine.IngredientCost(&item, ing.Quantity, ing.Unit)
	audit.Warnings = append(audit.Warnings, result.Warnings...)
	if err != nil {
		line.Error = err.Error()
		line.ConversionStatus = uom.StatusFor(err)
		audit.Errors = append(audit.Errors, fmt.Sprintf("%s: %s", ing.IngredientName, err))
		metrics.ConversionFailures.WithLabelValues(line.ConversionStatus).Inc()
		return
	}
	line.Cost = result.Cost
}

// costPrepLine recurses into a child prep recipe and prices the parent's
// share of its yield. A cycle below is reported on the line and bubbled up.
func (r *Resolver) costPrepLine(line *Line, ing *models.RecipeIngredient, audit *AuditRecord, c *computation) *CycleError {
	childAudit, err := r.compute(*ing.ChildRecipeID, c)
	if err != nil {
		if cycle, ok := err.(*CycleError); ok {
			line.Error = cycle.Error()
			line.ConversionStatus = models.ConversionUnparseable
			audit.Errors = append(audit.Errors, cycle.Error())
			return cycle
		}
		line.Error = err.Error()
		audit.Errors = append(audit.Errors, err.Error())
		return nil
	}
	audit.Warnings = append(audit.Warnings, childAudit.Warnings...)

	var child models.Recipe
	if err := r.db.First(&child, *ing.ChildRecipeID).Error; err != nil {
		line.Error = fmt.Sprintf("prep recipe %d not found", *ing.ChildRecipeID)
		audit.Errors = append(audit.Errors, line.Error)
		return nil
	}
	if !child.HasResolvableYield() {
		line.Error = fmt.Sprintf("prep recipe %q has no usable yield", child.Name)
		line.ConversionStatus = models.ConversionUnitMismatch
		audit.Errors = append(audit.Errors, line.Error)
		return nil
	}

	yieldUnit := child.PrepYieldUnit
	if strings.EqualFold(yieldUnit, "portions") || strings.EqualFold(yieldUnit, "portion") {
		yieldUnit = "each"
	}
	unitCost := childAudit.Total.Div(child.PrepYield.Decimal)

	ctx := uom.Context{}
	if d := r.densityFor(child.Name); d != nil {
		ctx.DensityGPerML = d
	}
	converted, err := r.engine.Convert(ing.Quantity, ing.Unit, yieldUnit, ctx)
	if err != nil {
		line.Error = fmt.Sprintf("cannot convert %s %s to yield unit %s of %q: %v",
			ing.Quantity, ing.Unit, yieldUnit, child.Name, err)
		line.ConversionStatus = uom.StatusFor(err)
		audit.Errors = append(audit.Errors, line.Error)
		metrics.ConversionFailures.WithLabelValues(line.ConversionStatus).Inc()
		return nil
	}
	line.Cost = converted.Mul(unitCost).Round(4)
	return nil
}

// densityFor looks an ingredient name up in the seed density table. The
// longest matching entry wins so "heavy cream" beats "cream".
func (r *Resolver) densityFor(name string) *decimal.Decimal {
	var rows []models.IngredientDensity
	if err := r.db.Find(&rows).Error; err != nil {
		return nil
	}
	lowered := strings.ToLower(name)
	var best *models.IngredientDensity
	for i := range rows {
		n := strings.ToLower(rows[i].IngredientName)
		if strings.Contains(lowered, n) {
			if best == nil || len(n) > len(best.IngredientName) {
				best = &rows[i]
			}
		}
	}
	if best == nil {
		return nil
	}
	d := best.DensityGPerML
	return &d
}

// SaveAudit persists the cached cost fields of a computed audit onto the
// recipe and its ingredient rows in one transaction.
func (r *Resolver) SaveAudit(audit *AuditRecord) error {
	tx := r.db.Begin()

	updates := map[string]interface{}{
		"food_cost":        audit.Total.Round(4),
		"per_serving_cost": audit.PerServing,
	}
	if audit.FoodCostPct.Valid {
		updates["food_cost_percentage"] = audit.FoodCostPct
	}
	if audit.Margin.Valid {
		updates["gross_margin"] = audit.Margin
	}
	if err := tx.Model(&models.Recipe{}).Where("id = ?", audit.RecipeID).
		Updates(updates).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("saving cost of recipe %d: %w", audit.RecipeID, err)
	}

	// prime_cost = food_cost + labor_cost
	if err := tx.Model(&models.Recipe{}).Where("id = ?", audit.RecipeID).
		Update("prime_cost", gorm.Expr("food_cost + labor_cost")).Error; err != nil {
		tx.Rollback()
		return err
	}

	for _, line := range audit.Lines {
		if err := tx.Model(&models.RecipeIngredient{}).Where("id = ?", line.IngredientID).
			Updates(map[string]interface{}{
				"cost":              line.Cost,
				"conversion_status": line.ConversionStatus,
			}).Error; err != nil {
			tx.Rollback()
			return err
		}
	}
	if err := tx.Commit().Error; err != nil {
		return err
	}

	zap.L().Debug("recipe cost saved",
		zap.Uint("recipe_id", audit.RecipeID),
		zap.String("total", audit.Total.String()),
	)
	return nil
}

// Dependents returns the ids of every recipe that transitively uses the
// given recipe as an ingredient, nearest parents first.
func (r *Resolver) Dependents(recipeID uint) ([]uint, error) {
	seen := map[uint]bool{recipeID: true}
	frontier := []uint{recipeID}
	var out []uint

	for len(frontier) > 0 {
		var parents []models.RecipeIngredient
		if err := r.db.Where("child_recipe_id IN (?)", frontier).
			Find(&parents).Error; err != nil {
			return nil, err
		}
		frontier = frontier[:0]
		for _, p := range parents {
			if !seen[p.RecipeID] {
				seen[p.RecipeID] = true
				frontier = append(frontier, p.RecipeID)
				out = append(out, p.RecipeID)
			}
		}
	}
	return out, nil
}
