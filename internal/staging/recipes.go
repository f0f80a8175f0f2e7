package staging

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"platecost/internal/metrics"
	"platecost/internal/models"
)

// xtraCHEF-style recipe summary headers. The layout is fixed by the export
// format, unlike inventory whose map is deployment configuration.
const (
	hdrLocationName   = "LocationName"
	hdrRecipeName     = "RecipeName"
	hdrStatus         = "Status"
	hdrRecipeGroup    = "RecipeGroup"
	hdrRecipeType     = "Type"
	hdrFoodCost       = "FoodCost"
	hdrFoodCostPct    = "FoodCostPercentage"
	hdrLaborCost      = "LaborCost"
	hdrLaborCostPct   = "LaborCostPercentage"
	hdrMenuPrice      = "MenuPrice"
	hdrGrossMargin    = "GrossMargin"
	hdrPrimeCost      = "PrimeCost"
	hdrPrimeCostPct   = "PrimeCostPercentage"
	hdrCostModified   = "CostModified"
	hdrShelfLife      = "ShelfLife"
	hdrShelfLifeUom   = "ShelfLifeUom"
	hdrPrepYield      = "PrepRecipeYield"
	hdrPrepYieldUom   = "PrepRecipeYieldUom"
	hdrServingSize    = "ServingSize"
	hdrServingSizeUom = "ServingSizeUom"
	hdrPerServing     = "PerServing"
)

// publishableStatuses pass validation without review.
var publishableStatuses = map[string]bool{
	"published": true, "approved": true, "active": true, "complete": true,
}

// StageRecipes stages recipe summary records with the full validation rule
// set: cost sanity thresholds, status gates, margin variance and prep
// recipe yield checks. Nothing is rejected; everything lands with flags.
func (l *Loader) StageRecipes(records []Record, sourceFile string) (*BatchSummary, error) {
	batch := l.batchID("RECIPE")
	summary := &BatchSummary{BatchID: batch, SourceFile: sourceFile}

	for i, rec := range records {
		summary.TotalRows++
		rowNum := i + 2

		row := models.StgRecipe{
			StagingMeta: models.StagingMeta{
				ImportBatchID:     batch,
				SourceFilename:    sourceFile,
				OriginalRowNumber: rowNum,
				ReviewStatus:      models.ReviewPending,
				IsLatestVersion:   true,
			},
			LocationName: cleanString(rec[hdrLocationName]),
			RecipeName:   cleanString(rec[hdrRecipeName]),
			Status:       cleanString(rec[hdrStatus]),
			RecipeGroup:  cleanString(rec[hdrRecipeGroup]),
			RecipeType:   cleanString(rec[hdrRecipeType]),
			ShelfLife:    cleanString(rec[hdrShelfLife]),
			ShelfLifeUom: cleanString(rec[hdrShelfLifeUom]),
		}

		row.FoodCostRaw = rec[hdrFoodCost]
		row.FoodCost, row.FoodCostFlag = cleanMoney(rec[hdrFoodCost])
		row.FoodCostPercentageRaw = rec[hdrFoodCostPct]
		row.FoodCostPercentage, row.FoodCostPercentageFlag = cleanPercentage(rec[hdrFoodCostPct])
		row.LaborCostRaw = rec[hdrLaborCost]
		row.LaborCost, _ = cleanMoney(rec[hdrLaborCost])
		row.LaborCostPercentageRaw = rec[hdrLaborCostPct]
		row.LaborCostPercentage, _ = cleanPercentage(rec[hdrLaborCostPct])
		row.MenuPriceRaw = rec[hdrMenuPrice]
		row.MenuPrice, row.MenuPriceFlag = cleanMoney(rec[hdrMenuPrice])
		row.GrossMarginRaw = rec[hdrGrossMargin]
		row.GrossMargin, row.GrossMarginFlag = cleanPercentage(rec[hdrGrossMargin])
		row.PrimeCostRaw = rec[hdrPrimeCost]
		row.PrimeCost, _ = cleanMoney(rec[hdrPrimeCost])
		row.PrimeCostPercentageRaw = rec[hdrPrimeCostPct]
		row.PrimeCostPercentage, _ = cleanPercentage(rec[hdrPrimeCostPct])
		row.CostModifiedDateRaw = rec[hdrCostModified]
		row.CostModifiedDate, row.CostModifiedDateFlag = cleanDate(rec[hdrCostModified])
		row.PerServingRaw = rec[hdrPerServing]
		row.PerServing, row.PerServingFlag = cleanMoney(rec[hdrPerServing])

		row.YieldQuantityRaw = rec[hdrPrepYield]
		row.YieldQuantity, _ = cleanNumeric(rec[hdrPrepYield])
		row.YieldUnit = cleanString(rec[hdrPrepYieldUom])
		row.ServingSizeRaw = rec[hdrServingSize]
		row.ServingSize, _ = cleanNumeric(rec[hdrServingSize])
		row.ServingSizeUom = cleanString(rec[hdrServingSizeUom])

		needsReview, holdStatus, issues := l.validateRecipeRow(&row)
		row.NeedsReview = needsReview
		if holdStatus {
			row.ReviewStatus = models.ReviewHold
		}
		if len(issues) > 0 {
			row.ValidationErrors = mustJSON(issues)
			row.ReviewNotes = joinCapped(issues, 1000)
		}
		if needsReview {
			summary.NeedsReview++
		}

		row.DuplicateCheckHash = businessHash(row.LocationName, row.RecipeName, row.RecipeType)
		var earlier models.StgRecipe
		if err := l.db.Where("duplicate_check_hash = ? AND import_batch_id != ?", row.DuplicateCheckHash, batch).
			Order("id").First(&earlier).Error; err == nil {
			row.IsDuplicate = true
			row.DuplicateOfStagingID = &earlier.ID
			summary.Duplicates++
		}

		// Remember an authoritative match for promotion upserts.
		var existing models.Recipe
		if err := l.db.Where("name = ?", row.RecipeName).First(&existing).Error; err == nil {
			row.MatchedRecipeID = &existing.ID
		}

		// Insert and the is_latest_version demotion of older rows for the
		// same recipe commit together.
		tx := l.db.Begin()
		err := tx.Create(&row).Error
		if err == nil {
			err = tx.Model(&models.StgRecipe{}).
				Where("recipe_name = ? AND import_batch_id != ? AND is_latest_version = ?", row.RecipeName, batch, true).
				Updates(map[string]interface{}{"is_latest_version": false, "replaced_by_batch": batch}).Error
		}
		if err == nil {
			err = tx.Commit().Error
		} else {
			tx.Rollback()
		}
		if err != nil {
			summary.Errors = append(summary.Errors, err.Error())
			zap.L().Error("recipe staging insert failed",
				zap.String("batch_id", batch),
				zap.Int("row", rowNum),
				zap.Error(err),
			)
			continue
		}
		summary.Loaded++
		metrics.RowsStaged.WithLabelValues("recipe").Inc()
	}

	zap.L().Info("recipe batch staged",
		zap.String("batch_id", batch),
		zap.Int("total", summary.TotalRows),
		zap.Int("loaded", summary.Loaded),
		zap.Int("needs_review", summary.NeedsReview),
		zap.Int("duplicates", summary.Duplicates),
	)
	return summary, nil
}

// validateRecipeRow applies the recipe business rules, returning whether
// the row needs review, whether it should be held, and the issue list.
func (l *Loader) validateRecipeRow(row *models.StgRecipe) (needsReview, hold bool, issues []string) {
	flag := func(msg string) {
		needsReview = true
		issues = append(issues, msg)
	}

	if row.RecipeName == "" {
		flag("missing recipe name")
	}

	if !row.FoodCost.Valid || row.FoodCost.Decimal.IsZero() {
		flag("zero or missing food cost")
	}

	if row.FoodCostPercentage.Valid {
		pct := row.FoodCostPercentage.Decimal
		switch {
		case pct.LessThan(decimal.NewFromInt(10)):
			flag(fmt.Sprintf("food cost percentage %s below 10", pct))
		case pct.GreaterThan(decimal.NewFromInt(100)):
			flag(fmt.Sprintf("food cost percentage %s exceeds 100", pct))
		case pct.GreaterThan(decimal.NewFromInt(40)):
			flag(fmt.Sprintf("food cost percentage %s above 40", pct))
		}
	}
	if row.FoodCostPercentageFlag == models.FlagPctAutoCorrected {
		flag("food cost percentage auto-corrected by factor 100")
	}

	if row.GrossMargin.Valid && row.GrossMargin.Decimal.LessThan(decimal.NewFromInt(60)) {
		flag(fmt.Sprintf("gross margin %s below 60", row.GrossMargin.Decimal))
	}

	status := strings.ToLower(row.Status)
	if status == "draft" {
		flag("draft recipe requires review before publishing")
		hold = true
	} else if !publishableStatuses[status] {
		flag(fmt.Sprintf("non-standard status %q requires manual approval", row.Status))
		hold = true
	}

	// Margin recomputation and variance against the stated margin.
	if row.MenuPrice.Valid && row.MenuPrice.Decimal.IsPositive() && row.FoodCost.Valid {
		price := row.MenuPrice.Decimal
		cost := row.FoodCost.Decimal
		hundred := decimal.NewFromInt(100)

		calcMargin := price.Sub(cost).Div(price).Mul(hundred)
		calcPct := cost.Div(price).Mul(hundred)
		row.CalculatedMargin = decimal.NullDecimal{Decimal: calcMargin.Round(2), Valid: true}
		row.CalculatedFoodCostPct = decimal.NullDecimal{Decimal: calcPct.Round(2), Valid: true}

		if calcMargin.IsNegative() {
			flag(fmt.Sprintf("negative margin calculated: %s", calcMargin.Round(1)))
		}
		if row.GrossMargin.Valid {
			variance := calcMargin.Sub(row.GrossMargin.Decimal)
			row.MarginVariance = decimal.NullDecimal{Decimal: variance.Round(2), Valid: true}
			if variance.Abs().GreaterThan(decimal.NewFromInt(5)) {
				flag(fmt.Sprintf("margin variance %s exceeds 5 points", variance.Round(2)))
			}
		}
	}

	if row.RecipeType == models.RecipeTypePrep {
		if !row.YieldQuantity.Valid || !row.YieldQuantity.Decimal.IsPositive() {
			flag("prep recipe missing yield quantity")
		}
		if row.YieldUnit == "" {
			flag("prep recipe missing yield unit")
		} else if !l.engine.Known(row.YieldUnit) {
			flag(fmt.Sprintf("prep recipe yield unit %q not recognized", row.YieldUnit))
		}
	}

	if row.RecipeType == models.RecipeTypeRecipe && row.PerServing.Valid && row.PerServing.Decimal.IsZero() {
		flag("zero per serving cost")
	}

	return needsReview, hold, issues
}
