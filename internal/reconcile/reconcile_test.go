package reconcile

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jinzhu/gorm"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"platecost/internal/costing"
	"platecost/internal/database"
	"platecost/internal/models"
	"platecost/internal/uom"
)

func testReconciler(t *testing.T) (*Reconciler, *gorm.DB) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	engine := uom.NewEngine()
	resolver := costing.NewResolver(db, engine, decimal.RequireFromString("0.01"))
	r := New(db, engine, resolver, 90)
	r.now = func() time.Time {
		return time.Date(2025, 8, 12, 9, 0, 0, 0, time.UTC)
	}
	return r, db
}

func TestPricingCoverage(t *testing.T) {
	r, db := testReconciler(t)

	stale := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	fresh := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	hundred := decimal.NewFromInt(100)

	require.NoError(t, db.Create(&models.InventoryItem{
		Description: "Healthy Item", CurrentPrice: decimal.NewFromInt(10),
		PackQty: decimal.NewFromInt(1), PackUnit: "kg", YieldPercent: hundred,
		LastPurchasedDate: &fresh,
	}).Error)
	require.NoError(t, db.Create(&models.InventoryItem{
		Description: "Free Item",
		PackQty:     decimal.NewFromInt(1), PackUnit: "kg", YieldPercent: hundred,
	}).Error)
	require.NoError(t, db.Create(&models.InventoryItem{
		Description: "Stale Item", CurrentPrice: decimal.NewFromInt(5),
		PackQty: decimal.NewFromInt(1), PackUnit: "kg", YieldPercent: hundred,
		LastPurchasedDate: &stale,
	}).Error)
	require.NoError(t, db.Create(&models.InventoryItem{
		Description: "Broken Pack", CurrentPrice: decimal.NewFromInt(5),
		YieldPercent: hundred,
	}).Error)

	report, err := r.Run()
	require.NoError(t, err)

	issues := map[string]string{}
	for _, p := range report.Pricing {
		issues[p.Description] = p.Issue
	}
	assert.NotContains(t, issues, "Healthy Item")
	assert.Equal(t, "no positive current price", issues["Free Item"])
	assert.Equal(t, "last purchase older than 90 days", issues["Stale Item"])
	assert.Equal(t, "unparseable pack size", issues["Broken Pack"])
}

func TestUOMGapDetection(t *testing.T) {
	r, db := testReconciler(t)

	item := models.InventoryItem{
		Description: "Specialty Syrup", CurrentPrice: decimal.NewFromInt(12),
		PackQty: decimal.NewFromInt(1), PackUnit: "kg",
		YieldPercent: decimal.NewFromInt(100),
	}
	require.NoError(t, db.Create(&item).Error)

	for _, name := range []string{"Glaze One", "Glaze Two"} {
		recipe := models.Recipe{Name: name}
		require.NoError(t, db.Create(&recipe).Error)
		require.NoError(t, db.Create(&models.RecipeIngredient{
			RecipeID: recipe.ID, InventoryID: &item.ID,
			IngredientName: "Specialty Syrup", IngredientType: models.IngredientTypeProduct,
			Quantity: decimal.NewFromInt(1), Unit: "cup",
		}).Error)
	}

	report, err := r.Run()
	require.NoError(t, err)
	require.Len(t, report.UOMGaps, 1)
	gap := report.UOMGaps[0]
	assert.Equal(t, "kg", gap.VendorUnit)
	assert.Equal(t, "cup", gap.RecipeUnit)
	assert.Equal(t, models.ConversionNeedsDensity, gap.Missing)
	assert.Equal(t, 2, gap.Count)
}

func TestVarianceClassification(t *testing.T) {
	r, db := testReconciler(t)

	flour := models.InventoryItem{
		Description: "Flour, All Purpose", CurrentPrice: decimal.NewFromInt(50),
		PackQty: decimal.NewFromInt(25), PackUnit: "kg",
		YieldPercent: decimal.NewFromInt(100),
	}
	require.NoError(t, db.Create(&flour).Error)

	// Calculated cost for 500 g is exactly 1.0000.
	cases := []struct {
		name   string
		stated string
		class  string
	}{
		{"Exact Card", "1.00", VarianceExact},
		{"Close Card", "1.08", VarianceSmall},
		{"Far Card", "2.50", VarianceSignificant},
	}
	for _, tc := range cases {
		recipe := models.Recipe{
			Name:       tc.name,
			StatedCost: decimal.NullDecimal{Decimal: decimal.RequireFromString(tc.stated), Valid: true},
		}
		require.NoError(t, db.Create(&recipe).Error)
		require.NoError(t, db.Create(&models.RecipeIngredient{
			RecipeID: recipe.ID, InventoryID: &flour.ID,
			IngredientName: "Flour, All Purpose", IngredientType: models.IngredientTypeProduct,
			Quantity: decimal.NewFromInt(500), Unit: "g",
		}).Error)
	}

	report, err := r.Run()
	require.NoError(t, err)
	require.Len(t, report.Variances, 3)

	classes := map[string]string{}
	for _, v := range report.Variances {
		classes[v.RecipeName] = v.Class
	}
	assert.Equal(t, VarianceExact, classes["Exact Card"])
	assert.Equal(t, VarianceSmall, classes["Close Card"])
	assert.Equal(t, VarianceSignificant, classes["Far Card"])
	// Two of three within tolerance.
	assert.Equal(t, "66.7", report.AccuracyRate.String())
}

func TestMarginHealth(t *testing.T) {
	r, db := testReconciler(t)

	cases := []struct {
		name  string
		cost  string
		price string
		class string
	}{
		{"Star Dish", "2.00", "10.00", MarginExcellent},
		{"Solid Dish", "2.80", "10.00", MarginGood},
		{"Edge Dish", "3.40", "10.00", MarginAcceptable},
		{"Problem Dish", "4.50", "10.00", MarginPoor},
	}
	for _, tc := range cases {
		recipe := models.Recipe{Name: tc.name, FoodCost: decimal.RequireFromString(tc.cost)}
		require.NoError(t, db.Create(&recipe).Error)
		require.NoError(t, db.Create(&models.MenuItem{
			Name: tc.name, RecipeID: recipe.ID,
			MenuPrice: decimal.RequireFromString(tc.price),
		}).Error)
	}
	// Unpriced items are skipped.
	require.NoError(t, db.Create(&models.MenuItem{Name: "Market Price"}).Error)

	report, err := r.Run()
	require.NoError(t, err)
	require.Len(t, report.Margins, 4)

	classes := map[string]string{}
	for _, m := range report.Margins {
		classes[m.Name] = m.Class
	}
	for _, tc := range cases {
		assert.Equal(t, tc.class, classes[tc.name], tc.name)
	}
}

func TestSystemicErrorClustering(t *testing.T) {
	r, db := testReconciler(t)

	syrup := models.InventoryItem{
		Description: "Specialty Syrup", CurrentPrice: decimal.NewFromInt(12),
		PackQty: decimal.NewFromInt(1), PackUnit: "kg",
		YieldPercent: decimal.NewFromInt(100),
	}
	require.NoError(t, db.Create(&syrup).Error)

	for _, name := range []string{"Glaze A", "Glaze B", "Glaze C"} {
		recipe := models.Recipe{Name: name}
		require.NoError(t, db.Create(&recipe).Error)
		require.NoError(t, db.Create(&models.RecipeIngredient{
			RecipeID: recipe.ID, InventoryID: &syrup.ID,
			IngredientName: "Specialty Syrup", IngredientType: models.IngredientTypeProduct,
			Quantity: decimal.NewFromInt(1), Unit: "cup",
		}).Error)
	}

	report, err := r.Run()
	require.NoError(t, err)
	require.Len(t, report.Systemic, 1)
	issue := report.Systemic[0]
	assert.Equal(t, models.ConversionNeedsDensity, issue.FailureMode)
	assert.Len(t, issue.Recipes, 3)
	assert.Contains(t, issue.Recommendation, "density")
}

func TestReportWriters(t *testing.T) {
	r, db := testReconciler(t)

	require.NoError(t, db.Create(&models.InventoryItem{
		Description: "Free Item", PackQty: decimal.NewFromInt(1), PackUnit: "kg",
		YieldPercent: decimal.NewFromInt(100),
	}).Error)

	report, err := r.Run()
	require.NoError(t, err)
	require.NotEmpty(t, report.RunID)

	var jsonBuf bytes.Buffer
	require.NoError(t, report.WriteJSON(&jsonBuf))
	assert.Contains(t, jsonBuf.String(), report.RunID)
	assert.Contains(t, jsonBuf.String(), "no positive current price")

	var csvBuf bytes.Buffer
	require.NoError(t, report.WriteCSV(&csvBuf))
	lines := strings.Split(strings.TrimSpace(csvBuf.String()), "\n")
	assert.Equal(t, "section,subject,detail,value,class", lines[0])
	assert.Contains(t, csvBuf.String(), "pricing,Free Item")

	var mdBuf bytes.Buffer
	require.NoError(t, report.WriteMarkdown(&mdBuf))
	assert.Contains(t, mdBuf.String(), "# Reconciliation Report")
	assert.Contains(t, mdBuf.String(), "Free Item")

	dir := t.TempDir()
	paths, err := report.WriteBundle(dir)
	require.NoError(t, err)
	require.Len(t, paths, 3)
	for _, p := range paths {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.True(t, info.Size() > 0, p)
		assert.Equal(t, dir, filepath.Dir(p))
	}
}

func TestReconcilerDoesNotMutate(t *testing.T) {
	r, db := testReconciler(t)

	flour := models.InventoryItem{
		Description: "Flour, All Purpose", CurrentPrice: decimal.NewFromInt(50),
		PackQty: decimal.NewFromInt(25), PackUnit: "kg",
		YieldPercent: decimal.NewFromInt(100),
	}
	require.NoError(t, db.Create(&flour).Error)
	recipe := models.Recipe{Name: "Bread", FoodCost: decimal.RequireFromString("9.99")}
	require.NoError(t, db.Create(&recipe).Error)
	require.NoError(t, db.Create(&models.RecipeIngredient{
		RecipeID: recipe.ID, InventoryID: &flour.ID,
		IngredientName: "Flour, All Purpose", IngredientType: models.IngredientTypeProduct,
		Quantity: decimal.NewFromInt(500), Unit: "g",
	}).Error)

	_, err := r.Run()
	require.NoError(t, err)

	// The stored (stale) food cost is untouched; reconciliation reports,
	// it does not refresh.
	var after models.Recipe
	require.NoError(t, db.First(&after, recipe.ID).Error)
	assert.Equal(t, "9.99", after.FoodCost.String())
}
