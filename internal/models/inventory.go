package models

import (
	"time"

	"github.com/jinzhu/gorm"
	"github.com/shopspring/decimal"
)

// Vendor represents a supplier we purchase from
type Vendor struct {
	gorm.Model
	Name     string `gorm:"unique_index;not null"`
	IsActive bool   `gorm:"default:true"`
}

// TableName sets the table name for Vendor
func (Vendor) TableName() string {
	return "vendors"
}

// InventoryItem is the authoritative record for a purchasable good. It is
// created from approved staging rows and mutated by price refreshes and
// explicit edits. Items whose pack size fails to parse are marked
// NeedsReview and excluded from costing until repaired.
type InventoryItem struct {
	gorm.Model
	ItemCode          string `gorm:"index"` // stable code; empty for legacy rows
	Description       string `gorm:"index;not null"`
	VendorName        string
	CurrentPrice      decimal.Decimal `gorm:"type:decimal(12,4)"`
	PackSize          string          // raw pack string, e.g. "4 x 1 gal"
	PackOuterCount    decimal.Decimal `gorm:"type:decimal(10,4)"` // outer count of a multi-pack, 1 if none
	PackQty           decimal.Decimal `gorm:"type:decimal(12,4)"` // inner quantity per pack
	PackUnit          string          // canonical unit of the inner quantity
	YieldPercent      decimal.Decimal `gorm:"type:decimal(6,2)"` // 0-100, default 100
	DensityGPerML     decimal.NullDecimal `gorm:"type:decimal(10,4)"`
	CountToWeightG    decimal.NullDecimal `gorm:"type:decimal(10,4)"`
	ProductCategories string
	CloseWatch        bool
	LastPurchasedDate  *time.Time
	LastPurchasedPrice decimal.NullDecimal `gorm:"type:decimal(12,4)"`
	NeedsReview        bool
}

// TableName sets the table name for InventoryItem
func (InventoryItem) TableName() string {
	return "inventory"
}

// Costable reports whether the item may be used by the cost resolver.
func (i *InventoryItem) Costable() bool {
	return !i.NeedsReview && i.PackQty.IsPositive() && i.PackUnit != ""
}

// VendorProduct associates an inventory item with a vendor's offering of it.
// At most one association per item is primary; the item's current price
// mirrors the primary's vendor price.
type VendorProduct struct {
	gorm.Model
	InventoryItemID uint `gorm:"index;not null"`
	VendorID        uint `gorm:"index;not null"`
	VendorItemCode  string
	PackSize        string
	VendorPrice     decimal.Decimal `gorm:"type:decimal(12,4)"`
	IsPrimary       bool
	IsActive        bool `gorm:"default:true"`
}

// TableName sets the table name for VendorProduct
func (VendorProduct) TableName() string {
	return "vendor_products"
}
