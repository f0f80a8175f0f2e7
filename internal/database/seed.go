package database

import (
	"github.com/jinzhu/gorm"

	"platecost/internal/models"
	"platecost/internal/uom"
)

// Seed loads the canonical unit table, alias set and default ingredient
// densities when they are not already present. These tables are read-only
// at runtime and only reloaded on startup.
func Seed(db *gorm.DB) error {
	var unitCount int
	db.Model(&models.Unit{}).Count(&unitCount)
	if unitCount == 0 {
		for _, u := range uom.DefaultUnits() {
			rec := models.Unit{
				Symbol:    u.Symbol,
				Dimension: u.Dimension,
				ToBase:    u.ToBase,
				Imprecise: u.Imprecise,
			}
			if err := db.Create(&rec).Error; err != nil {
				return err
			}
		}
	}

	var aliasCount int
	db.Model(&models.UnitAlias{}).Count(&aliasCount)
	if aliasCount == 0 {
		for alias, symbol := range uom.DefaultAliases() {
			rec := models.UnitAlias{Alias: alias, Symbol: symbol}
			if err := db.Create(&rec).Error; err != nil {
				return err
			}
		}
	}

	var densityCount int
	db.Model(&models.IngredientDensity{}).Count(&densityCount)
	if densityCount == 0 {
		for _, dd := range uom.DefaultDensities() {
			rec := models.IngredientDensity{
				IngredientName: dd.IngredientName,
				DensityGPerML:  dd.DensityGPerML,
				Source:         dd.Source,
			}
			if err := db.Create(&rec).Error; err != nil {
				return err
			}
		}
	}

	return nil
}
