package costing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"platecost/internal/metrics"
	"platecost/internal/models"
)

// Filter narrows a batch recalculation.
type Filter struct {
	RecipeType  string // "Recipe" or "PrepRecipe"; empty for both
	RecipeGroup string
}

// Outcome is one recipe's result within a batch recalculation.
type Outcome struct {
	RecipeID   uint            `json:"recipe_id"`
	RecipeName string          `json:"recipe_name"`
	FoodCost   decimal.Decimal `json:"food_cost"`
	Status     string          `json:"status"` // ok, partial, cycle, error
	Detail     string          `json:"detail,omitempty"`
}

// BatchAudit summarizes one batch recalculation run.
type BatchAudit struct {
	Total     int       `json:"total"`
	Succeeded int       `json:"succeeded"`
	Partial   int       `json:"partial"`
	Failed    int       `json:"failed"`
	Outcomes  []Outcome `json:"outcomes"`
	StartedAt time.Time `json:"started_at"`
	Duration  string    `json:"duration"`
}

// RecomputeAll recalculates the cached cost of every matching recipe,
// prep recipes first so parents always see fresh child totals. The run is
// idempotent on unchanged data and cancellable between recipes; recipes
// already saved stay saved.
func (r *Resolver) RecomputeAll(ctx context.Context, filter Filter) (*BatchAudit, error) {
	start := time.Now()
	audit := &BatchAudit{StartedAt: start}
	defer func() {
		audit.Duration = time.Since(start).String()
		metrics.BatchDuration.WithLabelValues("recompute_all").Observe(time.Since(start).Seconds())
	}()

	recipes, err := r.recipesInOrder(filter)
	if err != nil {
		return nil, err
	}

	for _, recipe := range recipes {
		if err := ctx.Err(); err != nil {
			zap.L().Warn("batch recalculation cancelled",
				zap.Int("completed", len(audit.Outcomes)),
				zap.Int("total", len(recipes)),
			)
			return audit, err
		}

		audit.Total++
		outcome := Outcome{RecipeID: recipe.ID, RecipeName: recipe.Name}

		rec, err := r.ComputeRecipeCost(recipe.ID)
		switch {
		case err != nil && rec == nil:
			outcome.Status = "error"
			outcome.Detail = err.Error()
			audit.Failed++
		case err != nil:
			// Cycle: the partial sum still gets saved so the report and
			// the cached value agree.
			outcome.Status = "cycle"
			outcome.Detail = err.Error()
			outcome.FoodCost = rec.Total
			audit.Failed++
			if saveErr := r.SaveAudit(rec); saveErr != nil {
				outcome.Detail += "; save failed: " + saveErr.Error()
			}
		default:
			outcome.FoodCost = rec.Total
			if saveErr := r.SaveAudit(rec); saveErr != nil {
				outcome.Status = "error"
				outcome.Detail = saveErr.Error()
				audit.Failed++
			} else if len(rec.Errors) > 0 {
				outcome.Status = "partial"
				outcome.Detail = rec.Errors[0]
				audit.Partial++
			} else {
				outcome.Status = "ok"
				audit.Succeeded++
			}
		}
		audit.Outcomes = append(audit.Outcomes, outcome)
	}

	zap.L().Info("batch recalculation finished",
		zap.Int("total", audit.Total),
		zap.Int("succeeded", audit.Succeeded),
		zap.Int("partial", audit.Partial),
		zap.Int("failed", audit.Failed),
	)
	return audit, nil
}

// recipesInOrder loads matching recipes with prep recipes first.
func (r *Resolver) recipesInOrder(filter Filter) ([]models.Recipe, error) {
	q := r.db.Model(&models.Recipe{})
	if filter.RecipeType != "" {
		q = q.Where("recipe_type = ?", filter.RecipeType)
	}
	if filter.RecipeGroup != "" {
		q = q.Where("recipe_group = ?", filter.RecipeGroup)
	}

	var recipes []models.Recipe
	if err := q.Order("CASE recipe_type WHEN 'PrepRecipe' THEN 0 ELSE 1 END, id").
		Find(&recipes).Error; err != nil {
		return nil, err
	}
	return recipes, nil
}
