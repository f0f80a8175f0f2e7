package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/gorm"

	"platecost/internal/costing"
	"platecost/internal/promotion"
	"platecost/internal/reconcile"
	"platecost/internal/staging"
)

// API is the HTTP surface over the cost core. Handlers stay thin; all
// business behavior lives in the wired components.
type API struct {
	Router     *gin.Engine
	DB         *gorm.DB
	Loader     *staging.Loader
	Promoter   *promotion.Promoter
	Resolver   *costing.Resolver
	Reconciler *reconcile.Reconciler
}

// New creates the API and registers its routes.
func New(db *gorm.DB, loader *staging.Loader, promoter *promotion.Promoter, resolver *costing.Resolver, reconciler *reconcile.Reconciler) *API {
	a := &API{
		Router:     gin.Default(),
		DB:         db,
		Loader:     loader,
		Promoter:   promoter,
		Resolver:   resolver,
		Reconciler: reconciler,
	}
	a.setupRoutes()
	return a
}

// setupRoutes configures all API endpoints
func (a *API) setupRoutes() {
	a.Router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "platecost API is running"})
	})

	v1 := a.Router.Group("/api/v1")
	{
		// Staging and review
		v1.POST("/staging/inventory", a.StageInventory)
		v1.POST("/staging/recipes", a.StageRecipes)
		v1.POST("/staging/recipe-csv", a.StageRecipeCSV)
		v1.POST("/staging/pdf", a.StagePDFExtract)
		v1.POST("/staging/review", a.SetReviewStatus)
		v1.POST("/staging/duplicates", a.ResolveDuplicate)

		// Promotion and costing
		v1.POST("/promotions", a.PromoteBatch)
		v1.GET("/recipes/:id/cost", a.ComputeRecipeCost)
		v1.POST("/costs/recompute", a.RecomputeAll)

		// Reconciliation
		v1.POST("/reconciliation", a.RunReconciliation)

		// Authoritative CRUD
		v1.GET("/recipes", a.ListRecipes)
		v1.POST("/recipes", a.CreateRecipe)
		v1.GET("/recipes/:id", a.GetRecipe)
		v1.PUT("/recipes/:id", a.UpdateRecipe)
		v1.DELETE("/recipes/:id", a.DeleteRecipe)
		v1.POST("/recipes/:id/ingredients", a.AddRecipeIngredient)

		v1.GET("/inventory", a.ListInventory)
		v1.POST("/inventory", a.CreateInventoryItem)
		v1.GET("/inventory/:id", a.GetInventoryItem)
		v1.PUT("/inventory/:id", a.UpdateInventoryItem)
		v1.DELETE("/inventory/:id", a.DeleteInventoryItem)

		v1.POST("/vendor-products", a.CreateVendorProduct)
		v1.PUT("/vendor-products/:id", a.UpdateVendorProduct)

		v1.GET("/menus", a.ListMenus)
		v1.POST("/menus", a.CreateMenu)
		v1.POST("/menus/:id/items", a.AddMenuItem)
		v1.DELETE("/menus/:id", a.DeleteMenu)

		v1.GET("/menu-versions", a.ListMenuVersions)
		v1.POST("/menu-versions", a.CreateMenuVersion)
		v1.POST("/menu-versions/:id/activate", a.ActivateMenuVersion)
	}
}
