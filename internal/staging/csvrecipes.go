package staging

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"platecost/internal/match"
	"platecost/internal/metrics"
	"platecost/internal/models"
)

// Recipe detail export headers.
const (
	hdrIngredient  = "Ingredient"
	hdrIngType     = "Type"
	hdrMeasurement = "Measurement"
	hdrYieldPct    = "Yield %"
	hdrUsableYield = "Usable Yield"
	hdrCost        = "Cost"
)

// Export filenames carry the recipe name plus a date suffix, e.g.
// "Bechamel Sauce_08_12_2025.csv".
var reFilenameDateSuffix = regexp.MustCompile(`[_\- ]+\d{1,2}[_\-]\d{1,2}[_\-]\d{2,4}$`)

// RecipeNameFromFilename derives the recipe name from a detail export
// file name by stripping the extension and any trailing date stamp.
func RecipeNameFromFilename(name string) string {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = reFilenameDateSuffix.ReplaceAllString(base, "")
	return strings.TrimSpace(base)
}

// StageRecipeCSV stages the ingredient lines of one recipe detail export.
// Measurements go through the unit parser; Product lines get fuzzy match
// suggestions against the live inventory so promotion can link them.
func (l *Loader) StageRecipeCSV(records []Record, sourceFile string) (*BatchSummary, error) {
	recipeName := RecipeNameFromFilename(sourceFile)
	if recipeName == "" {
		return nil, fmt.Errorf("cannot derive recipe name from %q", sourceFile)
	}

	batch := l.batchID("CSVRECIPE")
	summary := &BatchSummary{BatchID: batch, SourceFile: sourceFile}

	matcher := match.New(l.cfg.FuzzyMatchThreshold)
	candidates, err := l.inventoryCandidates()
	if err != nil {
		return nil, fmt.Errorf("loading match candidates: %w", err)
	}

	// The export's line set and the demotion of earlier lines for the
	// same recipe commit as one unit.
	tx := l.db.Begin()

	for i, rec := range records {
		summary.TotalRows++
		rowNum := i + 2

		row := models.StgCSVRecipe{
			StagingMeta: models.StagingMeta{
				ImportBatchID:     batch,
				SourceFilename:    sourceFile,
				OriginalRowNumber: rowNum,
				ReviewStatus:      models.ReviewPending,
				IsLatestVersion:   true,
			},
			RecipeName:     recipeName,
			IngredientName: cleanString(rec[hdrIngredient]),
			IngredientType: normalizeIngredientType(rec[hdrIngType]),
		}

		row.MeasurementRaw = rec[hdrMeasurement]
		if m := cleanString(rec[hdrMeasurement]); m != "" {
			l.engine.ClearErrors()
			qty, unit := l.engine.Parse(m)
			row.Quantity = decimal.NullDecimal{Decimal: qty, Valid: true}
			row.Unit = unit
			if len(l.engine.Errors()) > 0 {
				row.MeasurementFlag = models.FlagParseError
				row.NeedsReview = true
			}
		} else {
			row.MeasurementFlag = models.FlagEmpty
			row.NeedsReview = true
		}

		row.YieldPercentRaw = rec[hdrYieldPct]
		row.YieldPercent, _ = cleanPercentage(rec[hdrYieldPct])
		row.UsableYieldRaw = rec[hdrUsableYield]
		row.UsableYield, _ = cleanNumeric(rec[hdrUsableYield])
		row.CostRaw = rec[hdrCost]
		row.Cost, row.CostFlag = cleanMoney(rec[hdrCost])

		var issues []string
		if row.IngredientName == "" {
			row.NeedsReview = true
			issues = append(issues, "missing ingredient name")
		}

		if row.IngredientType == models.RecipeTypeRecipe || row.IngredientType == models.RecipeTypePrep {
			// Nested recipe line; resolved by name at promotion time.
		} else if row.IngredientName != "" {
			if id := l.exactInventoryID(row.IngredientName); id != nil {
				row.MatchedInventoryID = id
				row.MatchScore = decimal.NullDecimal{Decimal: decimal.NewFromInt(100), Valid: true}
			} else if best, ok := matcher.Best(row.IngredientName, candidates); ok {
				row.MatchedInventoryID = &best.InventoryID
				row.MatchScore = decimal.NullDecimal{Decimal: decimal.NewFromFloat(best.Score).Round(1), Valid: true}
			} else {
				row.NeedsReview = true
				issues = append(issues, fmt.Sprintf("no inventory match for %q", row.IngredientName))
			}
		}

		if len(issues) > 0 {
			row.ValidationErrors = mustJSON(issues)
			row.ReviewNotes = joinCapped(issues, 1000)
		}
		if row.NeedsReview {
			summary.NeedsReview++
		}

		row.DuplicateCheckHash = businessHash(recipeName, row.IngredientName, row.MeasurementRaw)

		if err := tx.Create(&row).Error; err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("staging line %d of %q: %w", rowNum, recipeName, err)
		}
		summary.Loaded++
		metrics.RowsStaged.WithLabelValues("csv_recipe").Inc()
	}

	// A newer export of the same recipe supersedes all earlier lines.
	if err := tx.Model(&models.StgCSVRecipe{}).
		Where("recipe_name = ? AND import_batch_id != ? AND is_latest_version = ?", recipeName, batch, true).
		Updates(map[string]interface{}{"is_latest_version": false, "replaced_by_batch": batch}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	zap.L().Info("recipe detail batch staged",
		zap.String("batch_id", batch),
		zap.String("recipe", recipeName),
		zap.Int("total", summary.TotalRows),
		zap.Int("loaded", summary.Loaded),
		zap.Int("needs_review", summary.NeedsReview),
	)
	return summary, nil
}

func normalizeIngredientType(raw string) string {
	switch strings.ToLower(cleanString(raw)) {
	case "preprecipe", "prep recipe", "prep":
		return models.RecipeTypePrep
	case "recipe":
		return models.RecipeTypeRecipe
	default:
		return "Product"
	}
}

func (l *Loader) inventoryCandidates() ([]match.Candidate, error) {
	var items []models.InventoryItem
	if err := l.db.Select("id, description").Find(&items).Error; err != nil {
		return nil, err
	}
	out := make([]match.Candidate, 0, len(items))
	for _, it := range items {
		out = append(out, match.Candidate{ID: it.ID, Description: it.Description})
	}
	return out, nil
}

func (l *Loader) exactInventoryID(name string) *uint {
	var item models.InventoryItem
	if err := l.db.Where("LOWER(description) = ?", strings.ToLower(strings.TrimSpace(name))).
		First(&item).Error; err != nil {
		return nil
	}
	return &item.ID
}
