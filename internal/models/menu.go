package models

import (
	"github.com/jinzhu/gorm"
	"github.com/shopspring/decimal"
)

// Menu is a named collection of menu items, e.g. "Master", "Current",
// "Future". Membership lives on the menu_menu_items junction.
type Menu struct {
	gorm.Model
	Name        string `gorm:"unique_index;not null"`
	Description string
	IsActive    bool `gorm:"default:true"`
}

// TableName sets the table name for Menu
func (Menu) TableName() string {
	return "menus"
}

// MenuItem links a recipe to a priced, grouped menu position. The same
// named item may exist in multiple menu versions with different prices.
type MenuItem struct {
	gorm.Model
	Name          string `gorm:"index;not null"`
	RecipeID      uint   `gorm:"index"`
	MenuGroup     string
	MenuPrice     decimal.Decimal `gorm:"type:decimal(12,2)"`
	MenuVersionID uint            `gorm:"index"`
}

// TableName sets the table name for MenuItem
func (MenuItem) TableName() string {
	return "menu_items"
}

// MenuMenuItem is the membership junction between menus and menu items.
type MenuMenuItem struct {
	gorm.Model
	MenuID     uint `gorm:"unique_index:idx_menu_menu_item;not null"`
	MenuItemID uint `gorm:"unique_index:idx_menu_menu_item;not null"`
}

// TableName sets the table name for MenuMenuItem
func (MenuMenuItem) TableName() string {
	return "menu_menu_items"
}

// MenuVersion is a time-indexed snapshot of the menu. At most one version
// is active; activating a version demotes the prior active one in the
// same transaction.
type MenuVersion struct {
	gorm.Model
	Name     string `gorm:"not null"`
	IsActive bool
	Notes    string
}

// TableName sets the table name for MenuVersion
func (MenuVersion) TableName() string {
	return "menu_versions"
}
