package models

import (
	"github.com/jinzhu/gorm"
	"github.com/shopspring/decimal"
)

// Recipe types
const (
	RecipeTypeRecipe = "Recipe"
	RecipeTypePrep   = "PrepRecipe"
)

// Recipe statuses considered publishable without review
const (
	RecipeStatusDraft     = "Draft"
	RecipeStatusPublished = "Published"
	RecipeStatusApproved  = "Approved"
	RecipeStatusActive    = "Active"
	RecipeStatusComplete  = "Complete"
)

// Recipe is a named, typed composition of ingredients. A PrepRecipe is a
// recipe used as an ingredient in other recipes; its yield quantity and
// unit must resolve for parents to be costed.
type Recipe struct {
	gorm.Model
	Name               string `gorm:"unique_index;not null"`
	Status             string
	RecipeGroup        string
	RecipeType         string          `gorm:"default:'Recipe'"`
	FoodCost           decimal.Decimal `gorm:"type:decimal(12,4)"` // cached, refreshed by the resolver
	FoodCostPercentage decimal.NullDecimal `gorm:"type:decimal(8,2)"`
	LaborCost          decimal.Decimal `gorm:"type:decimal(12,4)"`
	PrimeCost          decimal.Decimal `gorm:"type:decimal(12,4)"` // food + labor
	MenuPrice          decimal.Decimal `gorm:"type:decimal(12,2)"`
	GrossMargin        decimal.NullDecimal `gorm:"type:decimal(8,2)"`
	ServingSize        decimal.Decimal `gorm:"type:decimal(10,4)"`
	ServingSizeUnit    string
	PerServingCost     decimal.Decimal `gorm:"type:decimal(12,4)"`
	PrepYield          decimal.NullDecimal `gorm:"type:decimal(12,4)"`
	PrepYieldUnit      string
	StatedCost         decimal.NullDecimal `gorm:"type:decimal(12,4)"` // externally stated (PDF) cost
	PrefixCode         string
	Procedure          string `gorm:"type:text"`
	Allergens          string
	ShelfLife          string
	ShelfLifeUom       string
	Station            string
	NeedsReview        bool
}

// TableName sets the table name for Recipe
func (Recipe) TableName() string {
	return "recipes"
}

// IsPrep reports whether the recipe is a prep recipe.
func (r *Recipe) IsPrep() bool {
	return r.RecipeType == RecipeTypePrep
}

// HasResolvableYield reports whether both yield quantity and unit are set,
// which parents need before this recipe can be used as an ingredient.
func (r *Recipe) HasResolvableYield() bool {
	return r.PrepYield.Valid && r.PrepYield.Decimal.IsPositive() && r.PrepYieldUnit != ""
}

// Conversion statuses recorded on a recipe ingredient after parsing
const (
	ConversionOK             = "ok"
	ConversionNeedsDensity   = "needs_density"
	ConversionNeedsCountWeight = "needs_count_weight"
	ConversionUnparseable    = "unparseable"
	ConversionUnitMismatch   = "unit_mismatch"
)

// Ingredient types on a recipe edge
const (
	IngredientTypeProduct = "Product"
	IngredientTypePrep    = "PrepRecipe"
)

// RecipeIngredient is an edge from a parent recipe to either an inventory
// item or a child prep recipe. Exactly one of InventoryID and ChildRecipeID
// is set; the parent->child graph must stay acyclic.
type RecipeIngredient struct {
	gorm.Model
	RecipeID         uint `gorm:"index;not null"`
	InventoryID      *uint
	ChildRecipeID    *uint
	IngredientName   string
	IngredientType   string
	Quantity         decimal.Decimal `gorm:"type:decimal(12,4)"`
	Unit             string          // surface unit as written in the source
	CanonicalQty     decimal.Decimal `gorm:"type:decimal(12,4)"`
	CanonicalUnit    string
	Cost             decimal.Decimal `gorm:"type:decimal(12,4)"`
	ConversionStatus string `gorm:"default:'ok'"`
	SortOrder        int    // insertion order, costing iterates in this order
}

// TableName sets the table name for RecipeIngredient
func (RecipeIngredient) TableName() string {
	return "recipe_ingredients"
}
