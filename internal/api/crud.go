package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/gorm"
	"github.com/shopspring/decimal"

	"platecost/internal/models"
)

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

// Recipe CRUD

func (a *API) ListRecipes(c *gin.Context) {
	q := a.DB.Model(&models.Recipe{})
	if rt := c.Query("type"); rt != "" {
		q = q.Where("recipe_type = ?", rt)
	}
	if group := c.Query("group"); group != "" {
		q = q.Where("recipe_group = ?", group)
	}
	var recipes []models.Recipe
	if err := q.Order("name").Find(&recipes).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, recipes)
}

func (a *API) CreateRecipe(c *gin.Context) {
	var recipe models.Recipe
	if err := c.ShouldBindJSON(&recipe); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if recipe.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "recipe name is required"})
		return
	}
	if err := a.DB.Create(&recipe).Error; err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, recipe)
}

func (a *API) GetRecipe(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var recipe models.Recipe
	if err := a.DB.First(&recipe, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "recipe not found"})
		return
	}
	var ingredients []models.RecipeIngredient
	a.DB.Where("recipe_id = ?", id).Order("sort_order, id").Find(&ingredients)
	c.JSON(http.StatusOK, gin.H{"recipe": recipe, "ingredients": ingredients})
}

func (a *API) UpdateRecipe(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var recipe models.Recipe
	if err := a.DB.First(&recipe, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "recipe not found"})
		return
	}
	var updates map[string]interface{}
	if err := c.ShouldBindJSON(&updates); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// The cached cost fields belong to the resolver.
	delete(updates, "food_cost")
	delete(updates, "per_serving_cost")
	delete(updates, "prime_cost")
	delete(updates, "id")
	if err := a.DB.Model(&recipe).Updates(updates).Error; err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, recipe)
}

// DeleteRecipe removes a recipe and its ingredient edges. Edges pointing
// at it from parents are unlinked and those parents flagged for review.
func (a *API) DeleteRecipe(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var recipe models.Recipe
	if err := a.DB.First(&recipe, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "recipe not found"})
		return
	}

	var parentIDs []uint
	var parentEdges []models.RecipeIngredient
	a.DB.Where("child_recipe_id = ?", id).Find(&parentEdges)
	for _, edge := range parentEdges {
		parentIDs = append(parentIDs, edge.RecipeID)
	}

	tx := a.DB.Begin()
	if err := tx.Where("recipe_id = ?", id).Delete(&models.RecipeIngredient{}).Error; err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := tx.Model(&models.RecipeIngredient{}).Where("child_recipe_id = ?", id).
		Updates(map[string]interface{}{
			"child_recipe_id":   nil,
			"conversion_status": models.ConversionUnparseable,
		}).Error; err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(parentIDs) > 0 {
		if err := tx.Model(&models.Recipe{}).Where("id IN (?)", parentIDs).
			Update("needs_review", true).Error; err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	if err := tx.Where("recipe_id = ?", id).Delete(&models.MenuItem{}).Error; err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := tx.Delete(&recipe).Error; err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := tx.Commit().Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	a.recomputeQuietly(parentIDs)
	c.JSON(http.StatusOK, gin.H{"message": "recipe deleted"})
}

type ingredientRequest struct {
	InventoryID    *uint  `json:"inventory_id"`
	ChildRecipeID  *uint  `json:"child_recipe_id"`
	IngredientName string `json:"ingredient_name"`
	Quantity       string `json:"quantity" binding:"required"`
	Unit           string `json:"unit" binding:"required"`
}

// AddRecipeIngredient appends one edge to a recipe. Exactly one of
// inventory_id and child_recipe_id must be set, and a prep edge may not
// close a cycle.
func (a *API) AddRecipeIngredient(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var recipe models.Recipe
	if err := a.DB.First(&recipe, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "recipe not found"})
		return
	}

	var req ingredientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if (req.InventoryID == nil) == (req.ChildRecipeID == nil) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "exactly one of inventory_id and child_recipe_id must be set"})
		return
	}
	qty, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid quantity"})
		return
	}

	ing := models.RecipeIngredient{
		RecipeID:         id,
		InventoryID:      req.InventoryID,
		ChildRecipeID:    req.ChildRecipeID,
		IngredientName:   req.IngredientName,
		IngredientType:   models.IngredientTypeProduct,
		Quantity:         qty,
		Unit:             req.Unit,
		ConversionStatus: models.ConversionOK,
	}

	if req.ChildRecipeID != nil {
		ing.IngredientType = models.IngredientTypePrep
		if err := a.checkAcyclic(id, *req.ChildRecipeID); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		if ing.IngredientName == "" {
			var child models.Recipe
			if err := a.DB.First(&child, *req.ChildRecipeID).Error; err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "child recipe not found"})
				return
			}
			ing.IngredientName = child.Name
		}
	}

	var max struct{ Max int }
	a.DB.Model(&models.RecipeIngredient{}).Where("recipe_id = ?", id).
		Select("COALESCE(MAX(sort_order), -1) AS max").Scan(&max)
	ing.SortOrder = max.Max + 1

	if err := a.DB.Create(&ing).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	a.recomputeQuietly([]uint{id})
	c.JSON(http.StatusCreated, ing)
}

// checkAcyclic walks down from the proposed child; reaching the parent
// means the new edge would close a cycle.
func (a *API) checkAcyclic(parentID, childID uint) error {
	if parentID == childID {
		return fmt.Errorf("recipe cannot contain itself")
	}
	frontier := []uint{childID}
	seen := map[uint]bool{childID: true}
	for len(frontier) > 0 {
		var edges []models.RecipeIngredient
		if err := a.DB.Where("recipe_id IN (?) AND child_recipe_id IS NOT NULL", frontier).
			Find(&edges).Error; err != nil {
			return err
		}
		frontier = frontier[:0]
		for _, e := range edges {
			if *e.ChildRecipeID == parentID {
				return fmt.Errorf("edge would create a recipe cycle")
			}
			if !seen[*e.ChildRecipeID] {
				seen[*e.ChildRecipeID] = true
				frontier = append(frontier, *e.ChildRecipeID)
			}
		}
	}
	return nil
}

// Inventory CRUD

func (a *API) ListInventory(c *gin.Context) {
	q := a.DB.Model(&models.InventoryItem{})
	if v := c.Query("vendor"); v != "" {
		q = q.Where("vendor_name = ?", v)
	}
	if c.Query("needs_review") == "true" {
		q = q.Where("needs_review = ?", true)
	}
	var items []models.InventoryItem
	if err := q.Order("description").Find(&items).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, items)
}

func (a *API) CreateInventoryItem(c *gin.Context) {
	var item models.InventoryItem
	if err := c.ShouldBindJSON(&item); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if item.Description == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "description is required"})
		return
	}
	if err := a.DB.Create(&item).Error; err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (a *API) GetInventoryItem(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var item models.InventoryItem
	if err := a.DB.First(&item, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "inventory item not found"})
		return
	}
	c.JSON(http.StatusOK, item)
}

func (a *API) UpdateInventoryItem(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var item models.InventoryItem
	if err := a.DB.First(&item, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "inventory item not found"})
		return
	}
	var updates map[string]interface{}
	if err := c.ShouldBindJSON(&updates); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	delete(updates, "id")
	if err := a.DB.Model(&item).Updates(updates).Error; err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	// Price or pack edits change every recipe using the item.
	var edges []models.RecipeIngredient
	a.DB.Where("inventory_id = ?", id).Find(&edges)
	var recipeIDs []uint
	for _, e := range edges {
		recipeIDs = append(recipeIDs, e.RecipeID)
	}
	a.recomputeQuietly(recipeIDs)

	c.JSON(http.StatusOK, item)
}

// DeleteInventoryItem removes an item, its vendor associations and every
// recipe edge referencing it, then recomputes the affected recipes.
func (a *API) DeleteInventoryItem(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var item models.InventoryItem
	if err := a.DB.First(&item, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "inventory item not found"})
		return
	}

	var edges []models.RecipeIngredient
	a.DB.Where("inventory_id = ?", id).Find(&edges)
	var recipeIDs []uint
	for _, e := range edges {
		recipeIDs = append(recipeIDs, e.RecipeID)
	}

	tx := a.DB.Begin()
	if err := tx.Where("inventory_id = ?", id).Delete(&models.RecipeIngredient{}).Error; err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := tx.Where("inventory_item_id = ?", id).Delete(&models.VendorProduct{}).Error; err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := tx.Delete(&item).Error; err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := tx.Commit().Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	a.recomputeQuietly(recipeIDs)
	c.JSON(http.StatusOK, gin.H{"message": "inventory item deleted"})
}

// Vendor products

func (a *API) CreateVendorProduct(c *gin.Context) {
	var vp models.VendorProduct
	if err := c.ShouldBindJSON(&vp); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if vp.InventoryItemID == 0 || vp.VendorID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "inventory_item_id and vendor_id are required"})
		return
	}

	tx := a.DB.Begin()
	var primaries int
	tx.Model(&models.VendorProduct{}).
		Where("inventory_item_id = ? AND is_primary = ?", vp.InventoryItemID, true).
		Count(&primaries)
	if primaries == 0 {
		vp.IsPrimary = true
	} else if vp.IsPrimary {
		if err := a.demoteOtherPrimaries(tx, vp.InventoryItemID, 0); err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	if err := tx.Create(&vp).Error; err != nil {
		tx.Rollback()
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if vp.IsPrimary {
		if err := a.mirrorPrimaryPrice(tx, &vp); err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	if err := tx.Commit().Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, vp)
}

func (a *API) UpdateVendorProduct(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var vp models.VendorProduct
	if err := a.DB.First(&vp, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "vendor product not found"})
		return
	}
	var req struct {
		VendorPrice *string `json:"vendor_price"`
		PackSize    *string `json:"pack_size"`
		IsPrimary   *bool   `json:"is_primary"`
		IsActive    *bool   `json:"is_active"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tx := a.DB.Begin()
	if req.VendorPrice != nil {
		price, err := decimal.NewFromString(*req.VendorPrice)
		if err != nil {
			tx.Rollback()
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid vendor price"})
			return
		}
		vp.VendorPrice = price
	}
	if req.PackSize != nil {
		vp.PackSize = *req.PackSize
	}
	if req.IsActive != nil {
		vp.IsActive = *req.IsActive
	}
	if req.IsPrimary != nil && *req.IsPrimary && !vp.IsPrimary {
		if err := a.demoteOtherPrimaries(tx, vp.InventoryItemID, vp.ID); err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		vp.IsPrimary = true
	}
	if err := tx.Save(&vp).Error; err != nil {
		tx.Rollback()
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if vp.IsPrimary {
		if err := a.mirrorPrimaryPrice(tx, &vp); err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	if err := tx.Commit().Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, vp)
}

func (a *API) demoteOtherPrimaries(tx *gorm.DB, itemID, keepID uint) error {
	q := tx.Model(&models.VendorProduct{}).
		Where("inventory_item_id = ? AND is_primary = ?", itemID, true)
	if keepID != 0 {
		q = q.Where("id != ?", keepID)
	}
	return q.Update("is_primary", false).Error
}

// mirrorPrimaryPrice keeps the item's working price aligned with its
// primary vendor offering.
func (a *API) mirrorPrimaryPrice(tx *gorm.DB, vp *models.VendorProduct) error {
	return tx.Model(&models.InventoryItem{}).Where("id = ?", vp.InventoryItemID).
		Update("current_price", vp.VendorPrice).Error
}

// Menus

func (a *API) ListMenus(c *gin.Context) {
	var menus []models.Menu
	if err := a.DB.Order("name").Find(&menus).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, menus)
}

func (a *API) CreateMenu(c *gin.Context) {
	var menu models.Menu
	if err := c.ShouldBindJSON(&menu); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if menu.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "menu name is required"})
		return
	}
	if err := a.DB.Create(&menu).Error; err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, menu)
}

// AddMenuItem creates or links a menu item into a menu. The junction is
// unique per (menu, item); relinking is a no-op conflict.
func (a *API) AddMenuItem(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var menu models.Menu
	if err := a.DB.First(&menu, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "menu not found"})
		return
	}

	var req struct {
		MenuItemID uint   `json:"menu_item_id"`
		Name       string `json:"name"`
		RecipeID   uint   `json:"recipe_id"`
		MenuGroup  string `json:"menu_group"`
		MenuPrice  string `json:"menu_price"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	itemID := req.MenuItemID
	if itemID == 0 {
		if req.Name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "menu_item_id or name is required"})
			return
		}
		item := models.MenuItem{Name: req.Name, RecipeID: req.RecipeID, MenuGroup: req.MenuGroup}
		if req.MenuPrice != "" {
			price, err := decimal.NewFromString(req.MenuPrice)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid menu price"})
				return
			}
			item.MenuPrice = price
		}
		if err := a.DB.Create(&item).Error; err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		itemID = item.ID
	}

	link := models.MenuMenuItem{MenuID: id, MenuItemID: itemID}
	if err := a.DB.Create(&link).Error; err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "menu item already on this menu"})
		return
	}
	c.JSON(http.StatusCreated, link)
}

func (a *API) DeleteMenu(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var menu models.Menu
	if err := a.DB.First(&menu, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "menu not found"})
		return
	}
	tx := a.DB.Begin()
	if err := tx.Where("menu_id = ?", id).Delete(&models.MenuMenuItem{}).Error; err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := tx.Delete(&menu).Error; err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := tx.Commit().Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "menu deleted"})
}

// Menu versions

func (a *API) ListMenuVersions(c *gin.Context) {
	var versions []models.MenuVersion
	if err := a.DB.Order("id desc").Find(&versions).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, versions)
}

func (a *API) CreateMenuVersion(c *gin.Context) {
	var version models.MenuVersion
	if err := c.ShouldBindJSON(&version); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if version.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "version name is required"})
		return
	}
	if version.IsActive {
		// Activation goes through the activate endpoint so the demote
		// stays atomic.
		version.IsActive = false
	}
	if err := a.DB.Create(&version).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, version)
}

// ActivateMenuVersion makes one version active and demotes the prior
// active version in the same transaction.
func (a *API) ActivateMenuVersion(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var version models.MenuVersion
	if err := a.DB.First(&version, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "menu version not found"})
		return
	}

	tx := a.DB.Begin()
	if err := tx.Model(&models.MenuVersion{}).Where("is_active = ? AND id != ?", true, id).
		Update("is_active", false).Error; err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := tx.Model(&version).Update("is_active", true).Error; err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := tx.Commit().Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, version)
}

// recomputeQuietly refreshes cached costs after a CRUD edit. Failures are
// reported in logs by the resolver, not to the HTTP caller: the edit
// itself already succeeded.
func (a *API) recomputeQuietly(recipeIDs []uint) {
	seen := make(map[uint]bool)
	queue := append([]uint{}, recipeIDs...)
	for _, id := range recipeIDs {
		if deps, err := a.Resolver.Dependents(id); err == nil {
			queue = append(queue, deps...)
		}
	}
	for _, id := range queue {
		if seen[id] {
			continue
		}
		seen[id] = true
		if audit, _ := a.Resolver.ComputeRecipeCost(id); audit != nil {
			_ = a.Resolver.SaveAudit(audit)
		}
	}
}
