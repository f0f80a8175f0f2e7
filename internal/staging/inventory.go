package staging

import (
	"encoding/json"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"platecost/internal/metrics"
	"platecost/internal/models"
)

// StageInventory stages vendor inventory records. Two exclusion rules run
// before insertion: rows with no product description and rows whose last
// purchase is older than the configured cutoff are counted and dropped,
// never staged. Everything else is inserted, parse failures included.
func (l *Loader) StageInventory(records []Record, sourceFile string) (*BatchSummary, error) {
	batch := l.batchID("INV")
	summary := &BatchSummary{BatchID: batch, SourceFile: sourceFile}
	cutoff := l.now().AddDate(0, 0, -l.cfg.ExcludeInventoryOlderThanDays)

	// Invert the header map so lookups run by target field name.
	byTarget := make(map[string]string, len(l.headerMap))
	for header, spec := range l.headerMap {
		byTarget[spec.Target] = header
	}
	field := func(rec Record, target string) string {
		header, ok := byTarget[target]
		if !ok {
			return ""
		}
		return rec[header]
	}

	for i, rec := range records {
		summary.TotalRows++
		rowNum := i + 2 // header occupies line 1

		description := cleanString(field(rec, "description"))
		if description == "" {
			summary.ExcludedNoProduct++
			metrics.RowsExcluded.WithLabelValues("inventory", "no_product").Inc()
			continue
		}

		lastDate, lastDateFlag := cleanDate(field(rec, "last_purchased_date"))
		if lastDate != nil && lastDate.Before(cutoff) {
			summary.ExcludedOldPurchases++
			metrics.RowsExcluded.WithLabelValues("inventory", "old_purchase").Inc()
			continue
		}

		row := models.StgInventoryItem{
			StagingMeta: models.StagingMeta{
				ImportBatchID:     batch,
				SourceFilename:    sourceFile,
				OriginalRowNumber: rowNum,
				ReviewStatus:      models.ReviewPending,
				IsLatestVersion:   true,
			},
			ItemCodeRaw:           field(rec, "item_code"),
			ItemCode:              cleanString(field(rec, "item_code")),
			DescriptionRaw:        field(rec, "description"),
			Description:           description,
			VendorNameRaw:         field(rec, "vendor_name"),
			VendorName:            cleanString(field(rec, "vendor_name")),
			PackSizeRaw:           field(rec, "pack_size"),
			PackSize:              cleanString(field(rec, "pack_size")),
			ProductCategoriesRaw:  field(rec, "product_categories"),
			ProductCategories:     cleanString(field(rec, "product_categories")),
			LastPurchasedDateRaw:  field(rec, "last_purchased_date"),
			LastPurchasedDate:     lastDate,
			LastPurchasedDateFlag: lastDateFlag,
		}

		var issues []string

		row.CurrentPrice, row.CurrentPriceFlag = cleanMoney(field(rec, "current_price"))
		row.LastPurchasedPrice, row.LastPurchasedPriceFlag = cleanMoney(field(rec, "last_purchased_price"))
		row.YieldPercent, row.YieldPercentFlag = cleanPercentage(field(rec, "yield_percent"))

		// Parse the pack size through the UOM engine. An unparseable pack
		// stages fine but the owning item stays unusable for costing until
		// a human repairs it.
		if row.PackSize != "" {
			l.engine.ClearErrors()
			_, qty, unit := l.engine.ParsePack(row.PackSize)
			row.PackQty = decimal.NullDecimal{Decimal: qty, Valid: true}
			row.PackUnit = unit
			if parseErrs := l.engine.Errors(); len(parseErrs) > 0 {
				row.PackSizeFlag = models.FlagParseError
				issues = append(issues, "pack_size: "+parseErrs[0].Message)
				row.NeedsReview = true
			}
		} else {
			row.PackSizeFlag = models.FlagEmpty
			issues = append(issues, "pack_size: required field is empty")
			row.NeedsReview = true
		}

		// Header-map validation rules.
		for _, spec := range l.headerMap {
			if spec.Required || spec.FlagIfEmpty {
				if cleanString(field(rec, spec.Target)) == "" {
					issues = append(issues, spec.Target+": required field is empty")
					row.NeedsReview = true
				}
			}
			if spec.FlagIfZero && spec.Target == "current_price" &&
				row.CurrentPrice.Valid && row.CurrentPrice.Decimal.IsZero() {
				issues = append(issues, "current_price: value is zero")
				row.NeedsReview = true
			}
		}
		if row.CurrentPriceFlag == models.FlagParseError {
			issues = append(issues, "current_price: unparseable value")
			row.NeedsReview = true
		}
		if row.LastPurchasedDateFlag == models.FlagInvalidDate {
			issues = append(issues, "last_purchased_date: invalid date")
			row.NeedsReview = true
		}

		row.DuplicateCheckHash = businessHash(row.VendorName, row.ItemCode, row.Description)
		var earlier models.StgInventoryItem
		if err := l.db.Where("duplicate_check_hash = ? AND import_batch_id != ?", row.DuplicateCheckHash, batch).
			Order("id").First(&earlier).Error; err == nil {
			row.IsDuplicate = true
			row.DuplicateOfStagingID = &earlier.ID
			summary.Duplicates++
		}

		if len(issues) > 0 {
			row.ValidationErrors = mustJSON(issues)
			row.ReviewNotes = joinCapped(issues, 1000)
		}
		if row.NeedsReview {
			summary.NeedsReview++
		}

		// Insert and supersession of earlier versions land together or
		// not at all.
		tx := l.db.Begin()
		err := tx.Create(&row).Error
		if err == nil {
			err = tx.Model(&models.StgInventoryItem{}).
				Where("duplicate_check_hash = ? AND import_batch_id != ? AND is_latest_version = ?", row.DuplicateCheckHash, batch, true).
				Updates(map[string]interface{}{"is_latest_version": false, "replaced_by_batch": batch}).Error
		}
		if err == nil {
			err = tx.Commit().Error
		} else {
			tx.Rollback()
		}
		if err != nil {
			summary.Errors = append(summary.Errors, err.Error())
			zap.L().Error("staging insert failed",
				zap.String("batch_id", batch),
				zap.Int("row", rowNum),
				zap.Error(err),
			)
			continue
		}
		summary.Loaded++
		metrics.RowsStaged.WithLabelValues("inventory").Inc()
	}

	zap.L().Info("inventory batch staged",
		zap.String("batch_id", batch),
		zap.Int("total", summary.TotalRows),
		zap.Int("loaded", summary.Loaded),
		zap.Int("needs_review", summary.NeedsReview),
		zap.Int("excluded_no_product", summary.ExcludedNoProduct),
		zap.Int("excluded_old_purchases", summary.ExcludedOldPurchases),
	)
	return summary, nil
}

func mustJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func joinCapped(parts []string, max int) string {
	s := ""
	for i, p := range parts {
		if i > 0 {
			s += "; "
		}
		s += p
	}
	if len(s) > max {
		s = s[:max]
	}
	return s
}
