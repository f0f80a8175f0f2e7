package promotion

import (
	"testing"
	"time"

	"github.com/jinzhu/gorm"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"platecost/internal/config"
	"platecost/internal/costing"
	"platecost/internal/database"
	"platecost/internal/match"
	"platecost/internal/models"
	"platecost/internal/staging"
	"platecost/internal/uom"
)

func testPromoter(t *testing.T) (*Promoter, *staging.Loader, *gorm.DB) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	engine := uom.NewEngine()
	cfg := &config.Config{
		DatabasePath:                  ":memory:",
		FuzzyMatchThreshold:           80,
		ExcludeInventoryOlderThanDays: 180,
		CostVarianceTolerance:         "0.01",
	}
	loader, err := staging.NewLoader(db, engine, cfg)
	require.NoError(t, err)

	resolver := costing.NewResolver(db, engine, decimal.RequireFromString("0.01"))
	p := New(db, engine, match.New(80), resolver)
	p.now = func() time.Time {
		return time.Date(2025, 8, 12, 12, 0, 0, 0, time.UTC)
	}
	return p, loader, db
}

func approveAll(t *testing.T, db *gorm.DB, model interface{}) {
	t.Helper()
	require.NoError(t, db.Model(model).
		Where("review_status != ?", models.ReviewRejected).
		Updates(map[string]interface{}{
			"review_status": models.ReviewApproved,
			"needs_review":  false,
		}).Error)
}

func TestPromoteInventoryInsertAndUpdate(t *testing.T) {
	p, loader, db := testPromoter(t)

	records := []staging.Record{{
		"Item Code":            "10001",
		"Product(s)":           "Flour, All Purpose",
		"Vendor Name":          "Sysco",
		"Pack Size":            "25 kg",
		"Contracted Price ($)": "$50.00",
		"Yield Percent":        "100",
	}}
	summary, err := loader.StageInventory(records, "week1.csv")
	require.NoError(t, err)
	approveAll(t, db, &models.StgInventoryItem{})

	report, err := p.PromoteBatch(summary.BatchID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.InventoryPromoted)

	var item models.InventoryItem
	require.NoError(t, db.Where("item_code = ?", "10001").First(&item).Error)
	assert.Equal(t, "50", item.CurrentPrice.String())
	assert.Equal(t, "25", item.PackQty.String())
	assert.Equal(t, "kg", item.PackUnit)
	assert.True(t, item.Costable())

	var vp models.VendorProduct
	require.NoError(t, db.Where("inventory_item_id = ?", item.ID).First(&vp).Error)
	assert.True(t, vp.IsPrimary)
	assert.Equal(t, "50", vp.VendorPrice.String())

	var staged models.StgInventoryItem
	require.NoError(t, db.First(&staged).Error)
	assert.True(t, staged.Committed)
	require.NotNil(t, staged.CommittedInventoryID)
	assert.Equal(t, item.ID, *staged.CommittedInventoryID)

	// A later batch with a new price updates the same item in place.
	records[0]["Contracted Price ($)"] = "$55.00"
	summary2, err := loader.StageInventory(records, "week2.csv")
	require.NoError(t, err)
	approveAll(t, db, &models.StgInventoryItem{})

	_, err = p.PromoteBatch(summary2.BatchID)
	require.NoError(t, err)

	var count int
	db.Model(&models.InventoryItem{}).Count(&count)
	assert.Equal(t, 1, count)
	require.NoError(t, db.First(&item, item.ID).Error)
	assert.Equal(t, "55", item.CurrentPrice.String())
}

func TestPromoteInventorySkipsUnapproved(t *testing.T) {
	p, loader, db := testPromoter(t)

	_, err := loader.StageInventory([]staging.Record{{
		"Product(s)": "Mystery Goods", "Pack Size": "garbled", "Contracted Price ($)": "$5.00",
	}}, "items.csv")
	require.NoError(t, err)

	report, err := p.PromoteBatch("")
	require.NoError(t, err)
	assert.Equal(t, 0, report.InventoryPromoted)

	var count int
	db.Model(&models.InventoryItem{}).Count(&count)
	assert.Equal(t, 0, count)
}

func stageAndApproveRecipe(t *testing.T, loader *staging.Loader, db *gorm.DB, name, recipeType string, fields map[string]string) {
	t.Helper()
	rec := staging.Record{
		"RecipeName": name,
		"Status":     "Published",
		"Type":       recipeType,
		"FoodCost":   "$1.00",
	}
	for k, v := range fields {
		rec[k] = v
	}
	_, err := loader.StageRecipes([]staging.Record{rec}, name+".csv")
	require.NoError(t, err)
	approveAll(t, db, &models.StgRecipe{})
}

func TestPromoteRecipeWithIngredients(t *testing.T) {
	p, loader, db := testPromoter(t)

	require.NoError(t, db.Create(&models.InventoryItem{
		ItemCode:     "10001",
		Description:  "Flour, All Purpose",
		CurrentPrice: decimal.NewFromInt(50),
		PackQty:      decimal.NewFromInt(25),
		PackUnit:     "kg",
		YieldPercent: decimal.NewFromInt(100),
	}).Error)

	stageAndApproveRecipe(t, loader, db, "Pizza Dough", models.RecipeTypePrep, map[string]string{
		"PrepRecipeYield": "2", "PrepRecipeYieldUom": "kg",
	})
	_, err := loader.StageRecipeCSV([]staging.Record{
		{"Ingredient": "All Purpose Flour", "Type": "Product", "Measurement": "1 kg"},
		{"Ingredient": "Unmatched Widget", "Type": "Product", "Measurement": "1 each"},
	}, "Pizza Dough_08_12_2025.csv")
	require.NoError(t, err)

	report, err := p.PromoteBatch("")
	require.NoError(t, err)
	assert.Equal(t, 1, report.RecipesPromoted)
	assert.Equal(t, 1, report.IngredientsLinked)
	assert.Equal(t, 1, report.IngredientsUnlinked)
	assert.Equal(t, 1, report.RecipesRecomputed)

	var recipe models.Recipe
	require.NoError(t, db.Where("name = ?", "Pizza Dough").First(&recipe).Error)
	assert.Equal(t, models.RecipeTypePrep, recipe.RecipeType)
	assert.True(t, recipe.NeedsReview) // unmatched ingredient flags the parent
	assert.Equal(t, "2", recipe.FoodCost.String())     // 1 kg at 2.00/kg
	require.True(t, recipe.StatedCost.Valid)

	var ings []models.RecipeIngredient
	require.NoError(t, db.Where("recipe_id = ?", recipe.ID).Order("sort_order").Find(&ings).Error)
	require.Len(t, ings, 2)
	assert.NotNil(t, ings[0].InventoryID)
	assert.Nil(t, ings[1].InventoryID)

	var lines []models.StgCSVRecipe
	require.NoError(t, db.Find(&lines).Error)
	for _, line := range lines {
		assert.True(t, line.Committed)
	}
}

func TestPromoteRecipesChildrenFirst(t *testing.T) {
	p, loader, db := testPromoter(t)

	require.NoError(t, db.Create(&models.InventoryItem{
		Description:  "Tomatoes, Crushed",
		CurrentPrice: decimal.NewFromInt(10),
		PackQty:      decimal.NewFromInt(5),
		PackUnit:     "kg",
		YieldPercent: decimal.NewFromInt(100),
	}).Error)

	// Stage the parent before the child; promotion must still commit the
	// child first so the parent's edge resolves.
	stageAndApproveRecipe(t, loader, db, "Spaghetti", models.RecipeTypeRecipe, nil)
	_, err := loader.StageRecipeCSV([]staging.Record{
		{"Ingredient": "Marinara", "Type": "PrepRecipe", "Measurement": "250 g"},
	}, "Spaghetti_08_12_2025.csv")
	require.NoError(t, err)

	stageAndApproveRecipe(t, loader, db, "Marinara", models.RecipeTypePrep, map[string]string{
		"PrepRecipeYield": "1", "PrepRecipeYieldUom": "kg",
	})
	_, err = loader.StageRecipeCSV([]staging.Record{
		{"Ingredient": "Tomatoes, Crushed", "Type": "Product", "Measurement": "1 kg"},
	}, "Marinara_08_12_2025.csv")
	require.NoError(t, err)

	report, err := p.PromoteBatch("")
	require.NoError(t, err)
	assert.Equal(t, 2, report.RecipesPromoted)
	assert.Empty(t, report.Errors)

	var parent models.Recipe
	require.NoError(t, db.Where("name = ?", "Spaghetti").First(&parent).Error)
	var edge models.RecipeIngredient
	require.NoError(t, db.Where("recipe_id = ?", parent.ID).First(&edge).Error)
	require.NotNil(t, edge.ChildRecipeID)

	// Marinara: 1 kg of tomatoes at 2.00/kg; Spaghetti uses a quarter.
	assert.Equal(t, "0.5", parent.FoodCost.String())
}

func TestPromoteSkipsPendingLineOnlyRecipes(t *testing.T) {
	p, loader, db := testPromoter(t)

	require.NoError(t, db.Create(&models.InventoryItem{
		ItemCode:     "10001",
		Description:  "Flour, All Purpose",
		CurrentPrice: decimal.NewFromInt(50),
		PackQty:      decimal.NewFromInt(25),
		PackUnit:     "kg",
		YieldPercent: decimal.NewFromInt(100),
	}).Error)

	// Detail lines with no summary row stay pending until reviewed.
	_, err := loader.StageRecipeCSV([]staging.Record{
		{"Ingredient": "All Purpose Flour", "Type": "Product", "Measurement": "1 kg"},
	}, "Focaccia_08_12_2025.csv")
	require.NoError(t, err)

	report, err := p.PromoteBatch("")
	require.NoError(t, err)
	assert.Equal(t, 0, report.RecipesPromoted)

	var count int
	db.Model(&models.Recipe{}).Count(&count)
	assert.Equal(t, 0, count)

	approveAll(t, db, &models.StgCSVRecipe{})

	report, err = p.PromoteBatch("")
	require.NoError(t, err)
	assert.Equal(t, 1, report.RecipesPromoted)

	var recipe models.Recipe
	require.NoError(t, db.Where("name = ?", "Focaccia").First(&recipe).Error)
}

func TestPromoteAbortsOnCycle(t *testing.T) {
	p, loader, db := testPromoter(t)

	stageAndApproveRecipe(t, loader, db, "Recipe A", models.RecipeTypePrep, map[string]string{
		"PrepRecipeYield": "1", "PrepRecipeYieldUom": "kg",
	})
	_, err := loader.StageRecipeCSV([]staging.Record{
		{"Ingredient": "Recipe B", "Type": "PrepRecipe", "Measurement": "1 kg"},
	}, "Recipe A_08_12_2025.csv")
	require.NoError(t, err)

	stageAndApproveRecipe(t, loader, db, "Recipe B", models.RecipeTypePrep, map[string]string{
		"PrepRecipeYield": "1", "PrepRecipeYieldUom": "kg",
	})
	_, err = loader.StageRecipeCSV([]staging.Record{
		{"Ingredient": "Recipe A", "Type": "PrepRecipe", "Measurement": "1 kg"},
	}, "Recipe B_08_12_2025.csv")
	require.NoError(t, err)

	_, err = p.PromoteBatch("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recipe cycle detected")
	assert.Contains(t, err.Error(), "Recipe A")
	assert.Contains(t, err.Error(), "Recipe B")

	// Nothing committed.
	var count int
	db.Model(&models.Recipe{}).Count(&count)
	assert.Equal(t, 0, count)
}

func TestPromoteIngredientEditsReplaceEdges(t *testing.T) {
	p, loader, db := testPromoter(t)

	require.NoError(t, db.Create(&models.InventoryItem{
		Description:  "Butter, Unsalted",
		CurrentPrice: decimal.NewFromInt(4),
		PackQty:      decimal.NewFromInt(1),
		PackUnit:     "lb",
		YieldPercent: decimal.NewFromInt(100),
	}).Error)
	require.NoError(t, db.Create(&models.InventoryItem{
		Description:  "Olive Oil",
		CurrentPrice: decimal.NewFromInt(20),
		PackQty:      decimal.NewFromInt(1),
		PackUnit:     "l",
		YieldPercent: decimal.NewFromInt(100),
	}).Error)

	stageAndApproveRecipe(t, loader, db, "Saute Base", models.RecipeTypePrep, map[string]string{
		"PrepRecipeYield": "500", "PrepRecipeYieldUom": "g",
	})
	_, err := loader.StageRecipeCSV([]staging.Record{
		{"Ingredient": "Butter, Unsalted", "Type": "Product", "Measurement": "1 lb"},
	}, "Saute Base_08_12_2025.csv")
	require.NoError(t, err)
	_, err = p.PromoteBatch("")
	require.NoError(t, err)

	// The next export swaps butter for oil; old edges must not linger.
	// With the summary already committed, the new lines need their own
	// approval before they promote.
	_, err = loader.StageRecipeCSV([]staging.Record{
		{"Ingredient": "Olive Oil", "Type": "Product", "Measurement": "500 ml"},
	}, "Saute Base_08_12_2025.csv")
	require.NoError(t, err)
	approveAll(t, db, &models.StgCSVRecipe{})
	_, err = p.PromoteBatch("")
	require.NoError(t, err)

	var recipe models.Recipe
	require.NoError(t, db.Where("name = ?", "Saute Base").First(&recipe).Error)
	var ings []models.RecipeIngredient
	require.NoError(t, db.Where("recipe_id = ?", recipe.ID).Find(&ings).Error)
	require.Len(t, ings, 1)
	assert.Equal(t, "Olive Oil", ings[0].IngredientName)
	assert.Equal(t, "10", recipe.FoodCost.String())
}
