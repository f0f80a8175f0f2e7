package models

import (
	"time"

	"github.com/jinzhu/gorm"
	"github.com/shopspring/decimal"
)

// Review statuses for staged rows
const (
	ReviewPending  = "pending"
	ReviewApproved = "approved"
	ReviewHold     = "hold"
	ReviewRejected = "rejected"
)

// Field flags attached when cleaning altered the meaning of a value
const (
	FlagEmpty              = "empty"
	FlagConvertedFromFloat = "converted_from_float"
	FlagInvalidDate        = "invalid_date"
	FlagParseError         = "parse_error"
	FlagPctAutoCorrected   = "percentage_auto_corrected"
	FlagHighPercentage     = "high_percentage_flagged"
)

// StagingMeta carries the review workflow state shared by every staging
// table. Rows are never rejected at ingest; ambiguous ones are flagged
// and held for a human before promotion.
type StagingMeta struct {
	ImportBatchID        string `gorm:"index;not null"`
	SourceFilename       string
	OriginalRowNumber    int
	DuplicateCheckHash   string `gorm:"index"`
	IsDuplicate          bool
	DuplicateOfStagingID *uint
	NeedsReview          bool
	ReviewStatus         string `gorm:"default:'pending'"`
	ReviewNotes          string `gorm:"type:text"`
	ValidationErrors     string `gorm:"type:text"` // JSON array of messages
	IsLatestVersion      bool   `gorm:"default:true"`
	ReplacedByBatch      string
	Committed            bool
	CommittedAt          *time.Time
}

// StgInventoryItem holds one imported inventory row, raw and cleaned side
// by side, pending review and promotion.
type StgInventoryItem struct {
	gorm.Model
	StagingMeta

	ItemCodeRaw     string
	ItemCode        string
	ItemCodeFlag    string
	DescriptionRaw  string
	Description     string
	DescriptionFlag string
	VendorNameRaw   string
	VendorName      string
	VendorNameFlag  string

	PackSizeRaw  string
	PackSize     string
	PackSizeFlag string
	PackQty      decimal.NullDecimal `gorm:"type:decimal(12,4)"`
	PackUnit     string

	CurrentPriceRaw  string
	CurrentPrice     decimal.NullDecimal `gorm:"type:decimal(12,4)"`
	CurrentPriceFlag string

	LastPurchasedPriceRaw  string
	LastPurchasedPrice     decimal.NullDecimal `gorm:"type:decimal(12,4)"`
	LastPurchasedPriceFlag string
	LastPurchasedDateRaw   string
	LastPurchasedDate      *time.Time
	LastPurchasedDateFlag  string

	ProductCategoriesRaw string
	ProductCategories    string

	YieldPercentRaw  string
	YieldPercent     decimal.NullDecimal `gorm:"type:decimal(6,2)"`
	YieldPercentFlag string

	CommittedInventoryID *uint
}

// TableName sets the table name for StgInventoryItem
func (StgInventoryItem) TableName() string {
	return "stg_inventory_items"
}

// StgRecipe holds one imported recipe-summary row.
type StgRecipe struct {
	gorm.Model
	StagingMeta

	LocationName string
	RecipeName   string `gorm:"index"`
	Status       string
	RecipeGroup  string
	RecipeType   string

	FoodCostRaw  string
	FoodCost     decimal.NullDecimal `gorm:"type:decimal(12,4)"`
	FoodCostFlag string

	FoodCostPercentageRaw  string
	FoodCostPercentage     decimal.NullDecimal `gorm:"type:decimal(8,2)"`
	FoodCostPercentageFlag string

	LaborCostRaw string
	LaborCost    decimal.NullDecimal `gorm:"type:decimal(12,4)"`

	LaborCostPercentageRaw string
	LaborCostPercentage    decimal.NullDecimal `gorm:"type:decimal(8,2)"`

	MenuPriceRaw  string
	MenuPrice     decimal.NullDecimal `gorm:"type:decimal(12,2)"`
	MenuPriceFlag string

	GrossMarginRaw  string
	GrossMargin     decimal.NullDecimal `gorm:"type:decimal(8,2)"`
	GrossMarginFlag string

	PrimeCostRaw string
	PrimeCost    decimal.NullDecimal `gorm:"type:decimal(12,4)"`

	PrimeCostPercentageRaw string
	PrimeCostPercentage    decimal.NullDecimal `gorm:"type:decimal(8,2)"`

	CostModifiedDateRaw  string
	CostModifiedDate     *time.Time
	CostModifiedDateFlag string

	ShelfLife    string
	ShelfLifeUom string

	// Populated only by extracted recipe cards.
	PrefixCode string
	Procedure  string `gorm:"type:text"`
	Station    string
	Allergens  string // comma separated; empty means unknown, not none

	YieldQuantityRaw string
	YieldQuantity    decimal.NullDecimal `gorm:"type:decimal(12,4)"`
	YieldUnit        string

	ServingSizeRaw  string
	ServingSize     decimal.NullDecimal `gorm:"type:decimal(10,4)"`
	ServingSizeUom  string

	PerServingRaw  string
	PerServing     decimal.NullDecimal `gorm:"type:decimal(12,4)"`
	PerServingFlag string

	CalculatedMargin        decimal.NullDecimal `gorm:"type:decimal(8,2)"`
	CalculatedFoodCostPct   decimal.NullDecimal `gorm:"type:decimal(8,2)"`
	MarginVariance          decimal.NullDecimal `gorm:"type:decimal(8,2)"`

	MatchedRecipeID   *uint
	CommittedRecipeID *uint
}

// TableName sets the table name for StgRecipe
func (StgRecipe) TableName() string {
	return "stg_recipes"
}

// StgCSVRecipe holds one ingredient line of a recipe-detail CSV export.
// The recipe name and export timestamp come from the source file name.
type StgCSVRecipe struct {
	gorm.Model
	StagingMeta

	RecipeName     string `gorm:"index"`
	IngredientName string
	IngredientType string // Product or PrepRecipe

	MeasurementRaw  string
	Quantity        decimal.NullDecimal `gorm:"type:decimal(12,4)"`
	Unit            string
	MeasurementFlag string

	YieldPercentRaw string
	YieldPercent    decimal.NullDecimal `gorm:"type:decimal(6,2)"`

	UsableYieldRaw string
	UsableYield    decimal.NullDecimal `gorm:"type:decimal(6,2)"`

	CostRaw  string
	Cost     decimal.NullDecimal `gorm:"type:decimal(12,4)"`
	CostFlag string

	MatchedInventoryID *uint
	MatchScore         decimal.NullDecimal `gorm:"type:decimal(5,1)"`

	CommittedRecipeID *uint
}

// TableName sets the table name for StgCSVRecipe
func (StgCSVRecipe) TableName() string {
	return "stg_csv_recipes"
}
