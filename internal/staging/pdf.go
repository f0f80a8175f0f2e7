package staging

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"platecost/internal/metrics"
	"platecost/internal/models"
)

// PDFExtract is the record contract for recipes extracted upstream from
// PDF recipe cards. Byte-level PDF parsing happens outside this system;
// callers hand over the already-structured result.
type PDFExtract struct {
	Name        string           `json:"name"`
	PrefixCode  string           `json:"prefix_code"`
	RecipeType  string           `json:"recipe_type"`
	YieldQty    *decimal.Decimal `json:"yield_qty"`
	YieldUnit   string           `json:"yield_unit"`
	StatedCost  *decimal.Decimal `json:"stated_cost"`
	Procedure   string           `json:"procedure"`
	Station     string           `json:"station"`
	ShelfLife   string           `json:"shelf_life"`
	Allergens   []string         `json:"allergens"`
	Ingredients []PDFIngredient  `json:"ingredients"`
}

// PDFIngredient is one extracted ingredient line.
type PDFIngredient struct {
	Name        string `json:"name"`
	Measurement string `json:"measurement"`
	Type        string `json:"type"`
}

// StagePDFExtract stages one extracted recipe card as a recipe summary
// row plus its ingredient lines. Absent allergen data is recorded as
// unknown rather than allergen-free.
func (l *Loader) StagePDFExtract(extract PDFExtract) (*BatchSummary, error) {
	if extract.Name == "" {
		return nil, fmt.Errorf("pdf extract has no recipe name")
	}

	batch := l.batchID("PDFRECIPE")
	summary := &BatchSummary{BatchID: batch, SourceFile: extract.Name + ".pdf"}

	recipeType := extract.RecipeType
	if recipeType == "" {
		recipeType = models.RecipeTypeRecipe
	}

	row := models.StgRecipe{
		StagingMeta: models.StagingMeta{
			ImportBatchID:   batch,
			SourceFilename:  summary.SourceFile,
			ReviewStatus:    models.ReviewPending,
			IsLatestVersion: true,
		},
		RecipeName: cleanString(extract.Name),
		RecipeType: recipeType,
		Status:     "Draft",
		ShelfLife:  cleanString(extract.ShelfLife),
		PrefixCode: cleanString(extract.PrefixCode),
		Procedure:  extract.Procedure,
		Station:    cleanString(extract.Station),
		Allergens:  strings.Join(extract.Allergens, ","),
	}
	if extract.YieldQty != nil {
		row.YieldQuantity = decimal.NullDecimal{Decimal: *extract.YieldQty, Valid: true}
		row.YieldUnit = cleanString(extract.YieldUnit)
	}
	if extract.StatedCost != nil {
		row.FoodCost = decimal.NullDecimal{Decimal: *extract.StatedCost, Valid: true}
	}

	needsReview, hold, issues := l.validateRecipeRow(&row)
	if len(extract.Allergens) == 0 {
		needsReview = true
		issues = append(issues, "allergen data missing from extract, recorded as unknown")
	}
	row.NeedsReview = needsReview
	if hold {
		row.ReviewStatus = models.ReviewHold
	}
	if len(issues) > 0 {
		row.ValidationErrors = mustJSON(issues)
		row.ReviewNotes = joinCapped(issues, 1000)
	}

	row.DuplicateCheckHash = businessHash("", row.RecipeName, row.RecipeType)

	tx := l.db.Begin()
	if err := tx.Create(&row).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("staging pdf recipe %q: %w", extract.Name, err)
	}
	summary.TotalRows++
	summary.Loaded++
	if row.NeedsReview {
		summary.NeedsReview++
	}
	metrics.RowsStaged.WithLabelValues("pdf_recipe").Inc()

	for i, ing := range extract.Ingredients {
		line := models.StgCSVRecipe{
			StagingMeta: models.StagingMeta{
				ImportBatchID:     batch,
				SourceFilename:    summary.SourceFile,
				OriginalRowNumber: i + 1,
				ReviewStatus:      models.ReviewPending,
				IsLatestVersion:   true,
			},
			RecipeName:     row.RecipeName,
			IngredientName: cleanString(ing.Name),
			IngredientType: normalizeIngredientType(ing.Type),
			MeasurementRaw: ing.Measurement,
		}
		if m := cleanString(ing.Measurement); m != "" {
			l.engine.ClearErrors()
			qty, unit := l.engine.Parse(m)
			line.Quantity = decimal.NullDecimal{Decimal: qty, Valid: true}
			line.Unit = unit
			if len(l.engine.Errors()) > 0 {
				line.MeasurementFlag = models.FlagParseError
				line.NeedsReview = true
			}
		} else {
			line.MeasurementFlag = models.FlagEmpty
			line.NeedsReview = true
		}
		line.DuplicateCheckHash = businessHash(row.RecipeName, line.IngredientName, line.MeasurementRaw)

		if err := tx.Create(&line).Error; err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("staging pdf ingredient %q: %w", ing.Name, err)
		}
		summary.TotalRows++
		summary.Loaded++
		if line.NeedsReview {
			summary.NeedsReview++
		}
	}
	// A re-extracted card supersedes earlier staged versions of the same
	// recipe, summary and lines alike.
	if err := tx.Model(&models.StgRecipe{}).
		Where("recipe_name = ? AND import_batch_id != ? AND is_latest_version = ?", row.RecipeName, batch, true).
		Updates(map[string]interface{}{"is_latest_version": false, "replaced_by_batch": batch}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Model(&models.StgCSVRecipe{}).
		Where("recipe_name = ? AND import_batch_id != ? AND is_latest_version = ?", row.RecipeName, batch, true).
		Updates(map[string]interface{}{"is_latest_version": false, "replaced_by_batch": batch}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	zap.L().Info("pdf extract staged",
		zap.String("batch_id", batch),
		zap.String("recipe", row.RecipeName),
		zap.Int("ingredients", len(extract.Ingredients)),
	)
	return summary, nil
}
