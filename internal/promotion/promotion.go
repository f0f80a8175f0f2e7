package promotion

import (
	"fmt"
	"strings"
	"time"

	"github.com/jinzhu/gorm"
	"go.uber.org/zap"

	"platecost/internal/costing"
	"platecost/internal/match"
	"platecost/internal/metrics"
	"platecost/internal/models"
	"platecost/internal/uom"
)

// Report summarizes one promotion run.
type Report struct {
	BatchID             string   `json:"batch_id,omitempty"`
	InventoryPromoted   int      `json:"inventory_promoted"`
	RecipesPromoted     int      `json:"recipes_promoted"`
	IngredientsLinked   int      `json:"ingredients_linked"`
	IngredientsUnlinked int      `json:"ingredients_unlinked"`
	RecipesRecomputed   int      `json:"recipes_recomputed"`
	Skipped             int      `json:"skipped"`
	Errors              []string `json:"errors,omitempty"`
}

// Promoter moves approved staging rows into the authoritative tables.
// Recipes are committed in dependency order inside one transaction; the
// whole batch is visible together or not at all.
type Promoter struct {
	db       *gorm.DB
	engine   *uom.Engine
	matcher  *match.Matcher
	resolver *costing.Resolver
	now      func() time.Time
}

// New wires a promoter.
func New(db *gorm.DB, engine *uom.Engine, matcher *match.Matcher, resolver *costing.Resolver) *Promoter {
	return &Promoter{db: db, engine: engine, matcher: matcher, resolver: resolver, now: time.Now}
}

// PromoteBatch promotes the approved rows of one batch, or of every
// uncommitted batch when batchID is empty. The batch prefix selects the
// staging table.
func (p *Promoter) PromoteBatch(batchID string) (*Report, error) {
	start := time.Now()
	defer func() {
		metrics.BatchDuration.WithLabelValues("promote_batch").Observe(time.Since(start).Seconds())
	}()

	report := &Report{BatchID: batchID}

	doInventory := batchID == "" || strings.HasPrefix(batchID, "INV_")
	doRecipes := batchID == "" || !strings.HasPrefix(batchID, "INV_")

	if doInventory {
		if err := p.promoteInventory(batchID, report); err != nil {
			return report, err
		}
	}
	if doRecipes {
		if err := p.promoteRecipes(batchID, report); err != nil {
			return report, err
		}
	}

	zap.L().Info("promotion finished",
		zap.String("batch_id", batchID),
		zap.Int("inventory", report.InventoryPromoted),
		zap.Int("recipes", report.RecipesPromoted),
		zap.Int("recomputed", report.RecipesRecomputed),
	)
	return report, nil
}

func (p *Promoter) promoteInventory(batchID string, report *Report) error {
	q := p.db.Where("review_status = ? AND committed = ? AND is_latest_version = ?",
		models.ReviewApproved, false, true)
	if batchID != "" {
		q = q.Where("import_batch_id = ?", batchID)
	}
	var rows []models.StgInventoryItem
	if err := q.Order("id").Find(&rows).Error; err != nil {
		return fmt.Errorf("loading staged inventory: %w", err)
	}

	for i := range rows {
		if err := p.promoteInventoryRow(&rows[i]); err != nil {
			report.Errors = append(report.Errors, err.Error())
			report.Skipped++
			continue
		}
		report.InventoryPromoted++
		metrics.RowsPromoted.WithLabelValues("inventory").Inc()
	}
	return nil
}

// promoteInventoryRow upserts one authoritative item and its vendor
// linkage inside a transaction.
func (p *Promoter) promoteInventoryRow(row *models.StgInventoryItem) error {
	tx := p.db.Begin()

	item, err := p.findItem(tx, row)
	if err != nil {
		tx.Rollback()
		return err
	}

	item.ItemCode = row.ItemCode
	item.Description = row.Description
	item.VendorName = row.VendorName
	item.PackSize = row.PackSize
	item.ProductCategories = row.ProductCategories
	item.LastPurchasedDate = row.LastPurchasedDate
	item.LastPurchasedPrice = row.LastPurchasedPrice
	if row.CurrentPrice.Valid {
		item.CurrentPrice = row.CurrentPrice.Decimal
	}
	if row.YieldPercent.Valid {
		item.YieldPercent = row.YieldPercent.Decimal
	}

	outer, qty, unit := p.engine.ParsePack(row.PackSize)
	item.PackOuterCount = outer
	item.PackQty = qty
	item.PackUnit = unit
	item.NeedsReview = row.PackSizeFlag == models.FlagParseError

	if err := tx.Save(item).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("promoting item %q: %w", row.Description, err)
	}

	if row.VendorName != "" {
		if err := p.linkVendor(tx, item, row); err != nil {
			tx.Rollback()
			return err
		}
	}

	now := p.now()
	if err := tx.Model(row).Updates(map[string]interface{}{
		"committed":              true,
		"committed_at":           now,
		"committed_inventory_id": item.ID,
	}).Error; err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

// findItem locates the authoritative item for a staged row by its
// business key: exact item code first, then exact description.
func (p *Promoter) findItem(tx *gorm.DB, row *models.StgInventoryItem) (*models.InventoryItem, error) {
	var item models.InventoryItem
	if row.ItemCode != "" {
		err := tx.Where("item_code = ?", row.ItemCode).First(&item).Error
		if err == nil {
			return &item, nil
		}
		if !gorm.IsRecordNotFoundError(err) {
			return nil, err
		}
	}
	err := tx.Where("LOWER(description) = ?", strings.ToLower(row.Description)).First(&item).Error
	if err == nil {
		return &item, nil
	}
	if gorm.IsRecordNotFoundError(err) {
		return &models.InventoryItem{}, nil
	}
	return nil, err
}

// linkVendor upserts the vendor and the vendor-product association. The
// first association for an item becomes primary; a primary's price change
// mirrors onto the item.
func (p *Promoter) linkVendor(tx *gorm.DB, item *models.InventoryItem, row *models.StgInventoryItem) error {
	var vendor models.Vendor
	err := tx.Where("name = ?", row.VendorName).First(&vendor).Error
	if gorm.IsRecordNotFoundError(err) {
		vendor = models.Vendor{Name: row.VendorName, IsActive: true}
		err = tx.Create(&vendor).Error
	}
	if err != nil {
		return fmt.Errorf("vendor %q: %w", row.VendorName, err)
	}

	var vp models.VendorProduct
	err = tx.Where("inventory_item_id = ? AND vendor_id = ?", item.ID, vendor.ID).First(&vp).Error
	if gorm.IsRecordNotFoundError(err) {
		var primaries int
		tx.Model(&models.VendorProduct{}).
			Where("inventory_item_id = ? AND is_primary = ?", item.ID, true).Count(&primaries)
		vp = models.VendorProduct{
			InventoryItemID: item.ID,
			VendorID:        vendor.ID,
			VendorItemCode:  row.ItemCode,
			IsPrimary:       primaries == 0,
			IsActive:        true,
		}
	} else if err != nil {
		return err
	}

	vp.PackSize = row.PackSize
	if row.CurrentPrice.Valid {
		vp.VendorPrice = row.CurrentPrice.Decimal
	}
	if err := tx.Save(&vp).Error; err != nil {
		return err
	}

	// The item's working price follows its primary association.
	if vp.IsPrimary && row.CurrentPrice.Valid {
		if err := tx.Model(item).Update("current_price", vp.VendorPrice).Error; err != nil {
			return err
		}
	}
	return nil
}
