package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"platecost/internal/config"
	"platecost/internal/costing"
	"platecost/internal/database"
	"platecost/internal/match"
	"platecost/internal/models"
	"platecost/internal/promotion"
	"platecost/internal/reconcile"
	"platecost/internal/staging"
	"platecost/internal/uom"
)

func testAPI(t *testing.T) *API {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		FuzzyMatchThreshold:           80,
		ExcludeInventoryOlderThanDays: 180,
		CostVarianceTolerance:         "0.01",
		OutdatedPriceDays:             90,
	}
	engine := uom.NewEngine()
	loader, err := staging.NewLoader(db, engine, cfg)
	require.NoError(t, err)
	resolver := costing.NewResolver(db, engine, decimal.RequireFromString("0.01"))
	promoter := promotion.New(db, engine, match.New(80), resolver)
	reconciler := reconcile.New(db, engine, resolver, 90)

	return New(db, loader, promoter, resolver, reconciler)
}

func recentDate() string {
	return time.Now().AddDate(0, 0, -7).Format("01/02/2006")
}

func doJSON(t *testing.T, a *API, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.Router.ServeHTTP(w, req)
	return w
}

func seedItem(t *testing.T, a *API, desc, packSize, packUnit string, packQty, price string) *models.InventoryItem {
	t.Helper()
	item := &models.InventoryItem{
		Description:    desc,
		PackSize:       packSize,
		PackOuterCount: decimal.NewFromInt(1),
		PackQty:        decimal.RequireFromString(packQty),
		PackUnit:       packUnit,
		YieldPercent:   decimal.NewFromInt(100),
		CurrentPrice:   decimal.RequireFromString(price),
	}
	require.NoError(t, a.DB.Create(item).Error)
	return item
}

func TestHealthEndpoint(t *testing.T) {
	a := testAPI(t)
	w := doJSON(t, a, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestStagingEndpointAndReview(t *testing.T) {
	a := testAPI(t)

	w := doJSON(t, a, http.MethodPost, "/api/v1/staging/inventory", gin.H{
		"source_file": "invoice.csv",
		"records": []staging.Record{{
			"Item Code":           "1001",
			"Product(s)":            "Flour, All Purpose",
			"Vendor Name":           "Sysco",
			"Pack Size":             "25 lb",
			"Contracted Price ($)":  "$18.50",
			"Last Purchased Date":   recentDate(),
		}},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var rows []models.StgInventoryItem
	require.NoError(t, a.DB.Find(&rows).Error)
	require.Len(t, rows, 1)

	w = doJSON(t, a, http.MethodPost, "/api/v1/staging/review", gin.H{
		"table":  "stg_inventory_items",
		"id":     rows[0].ID,
		"status": models.ReviewApproved,
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var row models.StgInventoryItem
	require.NoError(t, a.DB.First(&row, rows[0].ID).Error)
	assert.Equal(t, models.ReviewApproved, row.ReviewStatus)
}

func TestStagingEndpointRejectsMissingFields(t *testing.T) {
	a := testAPI(t)
	w := doJSON(t, a, http.MethodPost, "/api/v1/staging/inventory", gin.H{
		"source_file": "invoice.csv",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPromoteEndpointWithEmptyBody(t *testing.T) {
	a := testAPI(t)

	w := doJSON(t, a, http.MethodPost, "/api/v1/staging/inventory", gin.H{
		"source_file": "invoice.csv",
		"records": []staging.Record{{
			"Item Code":           "1001",
			"Product(s)":            "Butter, Unsalted",
			"Vendor Name":           "Sysco",
			"Pack Size":             "36 lb",
			"Contracted Price ($)":  "$98.00",
			"Last Purchased Date":   recentDate(),
		}},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	require.NoError(t, a.DB.Model(&models.StgInventoryItem{}).
		Update("review_status", models.ReviewApproved).Error)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/promotions", nil)
	w2 := httptest.NewRecorder()
	a.Router.ServeHTTP(w2, req)
	require.Equal(t, http.StatusOK, w2.Code)

	var count int
	a.DB.Model(&models.InventoryItem{}).Count(&count)
	assert.Equal(t, 1, count)
}

func TestRecipeCostEndpoint(t *testing.T) {
	a := testAPI(t)

	item := seedItem(t, a, "Butter, Unsalted", "1 lb", "g", "453.592", "4.00")
	recipe := &models.Recipe{Name: "Compound Butter", RecipeType: models.RecipeTypeRecipe}
	require.NoError(t, a.DB.Create(recipe).Error)
	require.NoError(t, a.DB.Create(&models.RecipeIngredient{
		RecipeID:       recipe.ID,
		InventoryID:    &item.ID,
		IngredientName: item.Description,
		IngredientType: models.IngredientTypeProduct,
		Quantity:       decimal.RequireFromString("226.796"),
		Unit:           "g",
	}).Error)

	w := doJSON(t, a, http.MethodGet, fmt.Sprintf("/api/v1/recipes/%d/cost", recipe.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var audit costing.AuditRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &audit))
	assert.Equal(t, "2", audit.Total.String())
}

func TestRecipeCostEndpointNotFound(t *testing.T) {
	a := testAPI(t)
	w := doJSON(t, a, http.MethodGet, "/api/v1/recipes/999/cost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAddIngredientRejectsCycle(t *testing.T) {
	a := testAPI(t)

	yield := decimal.NullDecimal{Decimal: decimal.NewFromInt(10), Valid: true}
	parent := &models.Recipe{Name: "Mother Sauce", RecipeType: models.RecipeTypePrep, PrepYield: yield, PrepYieldUnit: "each"}
	child := &models.Recipe{Name: "Derivative Sauce", RecipeType: models.RecipeTypePrep, PrepYield: yield, PrepYieldUnit: "each"}
	require.NoError(t, a.DB.Create(parent).Error)
	require.NoError(t, a.DB.Create(child).Error)

	w := doJSON(t, a, http.MethodPost, fmt.Sprintf("/api/v1/recipes/%d/ingredients", parent.ID), gin.H{
		"child_recipe_id": child.ID,
		"quantity":        "1",
		"unit":            "each",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, a, http.MethodPost, fmt.Sprintf("/api/v1/recipes/%d/ingredients", child.ID), gin.H{
		"child_recipe_id": parent.ID,
		"quantity":        "1",
		"unit":            "each",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAddIngredientRequiresExactlyOneTarget(t *testing.T) {
	a := testAPI(t)
	recipe := &models.Recipe{Name: "Soup", RecipeType: models.RecipeTypeRecipe}
	require.NoError(t, a.DB.Create(recipe).Error)

	w := doJSON(t, a, http.MethodPost, fmt.Sprintf("/api/v1/recipes/%d/ingredients", recipe.ID), gin.H{
		"quantity": "1",
		"unit":     "each",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteInventoryCascades(t *testing.T) {
	a := testAPI(t)

	item := seedItem(t, a, "Cream, Heavy", "1 qt", "ml", "946.353", "5.00")
	recipe := &models.Recipe{Name: "Ganache", RecipeType: models.RecipeTypeRecipe}
	require.NoError(t, a.DB.Create(recipe).Error)
	require.NoError(t, a.DB.Create(&models.RecipeIngredient{
		RecipeID:       recipe.ID,
		InventoryID:    &item.ID,
		IngredientName: item.Description,
		IngredientType: models.IngredientTypeProduct,
		Quantity:       decimal.NewFromInt(100),
		Unit:           "ml",
	}).Error)

	w := doJSON(t, a, http.MethodDelete, fmt.Sprintf("/api/v1/inventory/%d", item.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var edges int
	a.DB.Model(&models.RecipeIngredient{}).Where("recipe_id = ?", recipe.ID).Count(&edges)
	assert.Equal(t, 0, edges)

	var updated models.Recipe
	require.NoError(t, a.DB.First(&updated, recipe.ID).Error)
	assert.True(t, updated.FoodCost.IsZero())
}

func TestVendorProductPrimaryMirrorsPrice(t *testing.T) {
	a := testAPI(t)

	item := seedItem(t, a, "Olive Oil", "1 gal", "ml", "3785.412", "30.00")
	vendor := &models.Vendor{Name: "Sysco"}
	require.NoError(t, a.DB.Create(vendor).Error)
	other := &models.Vendor{Name: "US Foods"}
	require.NoError(t, a.DB.Create(other).Error)

	w := doJSON(t, a, http.MethodPost, "/api/v1/vendor-products", gin.H{
		"InventoryItemID": item.ID,
		"VendorID":        vendor.ID,
		"VendorPrice":     "30.00",
		"PackSize":        "1 gal",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, a, http.MethodPost, "/api/v1/vendor-products", gin.H{
		"InventoryItemID": item.ID,
		"VendorID":        other.ID,
		"VendorPrice":     "27.50",
		"PackSize":        "1 gal",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var vps []models.VendorProduct
	require.NoError(t, a.DB.Where("inventory_item_id = ?", item.ID).Order("id").Find(&vps).Error)
	require.Len(t, vps, 2)
	assert.True(t, vps[0].IsPrimary)
	assert.False(t, vps[1].IsPrimary)

	w = doJSON(t, a, http.MethodPut, fmt.Sprintf("/api/v1/vendor-products/%d", vps[1].ID), gin.H{
		"is_primary": true,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var first, second models.VendorProduct
	require.NoError(t, a.DB.First(&first, vps[0].ID).Error)
	require.NoError(t, a.DB.First(&second, vps[1].ID).Error)
	assert.False(t, first.IsPrimary)
	assert.True(t, second.IsPrimary)

	var updated models.InventoryItem
	require.NoError(t, a.DB.First(&updated, item.ID).Error)
	assert.Equal(t, "27.5", updated.CurrentPrice.String())
}

func TestMenuMembershipUnique(t *testing.T) {
	a := testAPI(t)

	w := doJSON(t, a, http.MethodPost, "/api/v1/menus", gin.H{"Name": "Dinner"})
	require.Equal(t, http.StatusCreated, w.Code)
	var menu models.Menu
	require.NoError(t, a.DB.Where("name = ?", "Dinner").First(&menu).Error)

	item := &models.MenuItem{Name: "Pasta", MenuPrice: decimal.NewFromInt(18)}
	require.NoError(t, a.DB.Create(item).Error)

	w = doJSON(t, a, http.MethodPost, fmt.Sprintf("/api/v1/menus/%d/items", menu.ID), gin.H{
		"menu_item_id": item.ID,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, a, http.MethodPost, fmt.Sprintf("/api/v1/menus/%d/items", menu.ID), gin.H{
		"menu_item_id": item.ID,
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestActivateMenuVersionDemotesPrior(t *testing.T) {
	a := testAPI(t)

	first := &models.MenuVersion{Name: "Spring 2025", IsActive: true}
	second := &models.MenuVersion{Name: "Summer 2025"}
	require.NoError(t, a.DB.Create(first).Error)
	require.NoError(t, a.DB.Create(second).Error)

	w := doJSON(t, a, http.MethodPost, fmt.Sprintf("/api/v1/menu-versions/%d/activate", second.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var v1, v2 models.MenuVersion
	require.NoError(t, a.DB.First(&v1, first.ID).Error)
	require.NoError(t, a.DB.First(&v2, second.ID).Error)
	assert.False(t, v1.IsActive)
	assert.True(t, v2.IsActive)
}

func TestRecomputeEndpoint(t *testing.T) {
	a := testAPI(t)

	item := seedItem(t, a, "Sugar, Granulated", "25 lb", "g", "11339.8", "20.00")
	recipe := &models.Recipe{Name: "Simple Syrup", RecipeType: models.RecipeTypeRecipe}
	require.NoError(t, a.DB.Create(recipe).Error)
	require.NoError(t, a.DB.Create(&models.RecipeIngredient{
		RecipeID:       recipe.ID,
		InventoryID:    &item.ID,
		IngredientName: item.Description,
		IngredientType: models.IngredientTypeProduct,
		Quantity:       decimal.RequireFromString("1133.98"),
		Unit:           "g",
	}).Error)

	w := doJSON(t, a, http.MethodPost, "/api/v1/costs/recompute", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var updated models.Recipe
	require.NoError(t, a.DB.First(&updated, recipe.ID).Error)
	assert.Equal(t, "2", updated.FoodCost.String())
}

func TestReconciliationEndpoint(t *testing.T) {
	a := testAPI(t)
	seedItem(t, a, "Salt, Kosher", "3 lb", "g", "1360.776", "4.00")

	w := doJSON(t, a, http.MethodPost, "/api/v1/reconciliation", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var report reconcile.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.NotEmpty(t, report.RunID)
}
