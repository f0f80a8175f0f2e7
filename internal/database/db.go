package database

import (
	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite" // SQLite dialect
	_ "github.com/mattn/go-sqlite3"            // SQLite driver

	"platecost/internal/models"
)

// Open initializes the database connection and brings the schema up to
// date. The store is single-writer; concurrent requests serialize here.
func Open(dbPath string) (*gorm.DB, error) {
	db, err := gorm.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := Seed(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func migrate(db *gorm.DB) error {
	db.AutoMigrate(
		&models.Unit{},
		&models.UnitAlias{},
		&models.IngredientDensity{},
		&models.Vendor{},
		&models.InventoryItem{},
		&models.VendorProduct{},
		&models.Recipe{},
		&models.RecipeIngredient{},
		&models.Menu{},
		&models.MenuItem{},
		&models.MenuMenuItem{},
		&models.MenuVersion{},
		&models.StgInventoryItem{},
		&models.StgRecipe{},
		&models.StgCSVRecipe{},
	)
	if db.Error != nil {
		return db.Error
	}

	db.Model(&models.RecipeIngredient{}).AddIndex("idx_recipe_ingredients_recipe", "recipe_id")
	db.Model(&models.InventoryItem{}).AddIndex("idx_inventory_item_code", "item_code")
	db.Model(&models.InventoryItem{}).AddIndex("idx_inventory_description", "description")
	db.Model(&models.Recipe{}).AddIndex("idx_recipes_name", "name")
	return db.Error
}
