package staging

import (
	"fmt"

	"go.uber.org/zap"

	"platecost/internal/models"
)

// DuplicateAction decides what happens to a staged row flagged as a
// duplicate of an earlier import.
type DuplicateAction string

const (
	// DuplicateReject discards the new row.
	DuplicateReject DuplicateAction = "reject"
	// DuplicateCreateVersion keeps both rows by suffixing the new row's
	// name, so promotion creates a distinct record instead of updating.
	DuplicateCreateVersion DuplicateAction = "create_version"
	// DuplicateMerge approves the new row so promotion updates the
	// existing live record in place.
	DuplicateMerge DuplicateAction = "merge"
)

var validReviewStatuses = map[string]bool{
	models.ReviewPending:  true,
	models.ReviewApproved: true,
	models.ReviewHold:     true,
	models.ReviewRejected: true,
}

// stagingModel maps a public table name to its model so review operations
// stay closed over the known staging tables.
func stagingModel(table string) (interface{}, error) {
	switch table {
	case models.StgInventoryItem{}.TableName():
		return &models.StgInventoryItem{}, nil
	case models.StgRecipe{}.TableName():
		return &models.StgRecipe{}, nil
	case models.StgCSVRecipe{}.TableName():
		return &models.StgCSVRecipe{}, nil
	default:
		return nil, fmt.Errorf("unknown staging table %q", table)
	}
}

// SetReviewStatus moves one staged row through the review workflow.
// Approving clears the needs_review flag; other transitions leave it for
// the audit trail.
func (l *Loader) SetReviewStatus(table string, id uint, status, notes string) error {
	if !validReviewStatuses[status] {
		return fmt.Errorf("invalid review status %q", status)
	}
	model, err := stagingModel(table)
	if err != nil {
		return err
	}

	updates := map[string]interface{}{"review_status": status}
	if notes != "" {
		updates["review_notes"] = notes
	}
	if status == models.ReviewApproved {
		updates["needs_review"] = false
	}

	res := l.db.Model(model).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("no %s row with id %d", table, id)
	}

	zap.L().Info("review status updated",
		zap.String("table", table),
		zap.Uint("id", id),
		zap.String("status", status),
	)
	return nil
}

// SetReviewStatusByName addresses recipe staging rows by recipe name
// instead of id, touching only the latest version of each row.
func (l *Loader) SetReviewStatusByName(table, recipeName, status, notes string) error {
	if !validReviewStatuses[status] {
		return fmt.Errorf("invalid review status %q", status)
	}
	model, err := stagingModel(table)
	if err != nil {
		return err
	}
	if _, ok := model.(*models.StgInventoryItem); ok {
		return fmt.Errorf("%s rows are not addressable by recipe name", table)
	}

	updates := map[string]interface{}{"review_status": status}
	if notes != "" {
		updates["review_notes"] = notes
	}
	if status == models.ReviewApproved {
		updates["needs_review"] = false
	}

	res := l.db.Model(model).
		Where("recipe_name = ? AND is_latest_version = ?", recipeName, true).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("no %s rows for recipe %q", table, recipeName)
	}

	zap.L().Info("review status updated",
		zap.String("table", table),
		zap.String("recipe", recipeName),
		zap.String("status", status),
	)
	return nil
}

// ResolveDuplicate applies one of the three duplicate dispositions to a
// staged row. Only rows actually marked as duplicates are eligible.
func (l *Loader) ResolveDuplicate(table string, id uint, action DuplicateAction) error {
	model, err := stagingModel(table)
	if err != nil {
		return err
	}

	var meta struct {
		IsDuplicate          bool
		DuplicateOfStagingID *uint
	}
	if err := l.db.Model(model).Where("id = ?", id).
		Select("is_duplicate, duplicate_of_staging_id").Scan(&meta).Error; err != nil {
		return fmt.Errorf("loading %s row %d: %w", table, id, err)
	}
	if !meta.IsDuplicate {
		return fmt.Errorf("%s row %d is not flagged as a duplicate", table, id)
	}

	switch action {
	case DuplicateReject:
		return l.db.Model(model).Where("id = ?", id).Updates(map[string]interface{}{
			"review_status": models.ReviewRejected,
			"needs_review":  false,
		}).Error

	case DuplicateCreateVersion:
		nameColumn := "description"
		if table != (models.StgInventoryItem{}.TableName()) {
			nameColumn = "recipe_name"
		}
		var current struct{ Name string }
		if err := l.db.Model(model).Where("id = ?", id).
			Select(nameColumn + " AS name").Scan(&current).Error; err != nil {
			return err
		}
		var version int
		l.db.Model(model).
			Where("duplicate_check_hash = (SELECT duplicate_check_hash FROM "+table+" WHERE id = ?)", id).
			Count(&version)
		versioned := fmt.Sprintf("%s (v%d)", current.Name, version)

		return l.db.Model(model).Where("id = ?", id).Updates(map[string]interface{}{
			nameColumn:      versioned,
			"review_status": models.ReviewApproved,
			"needs_review":  false,
			"is_duplicate":  false,
		}).Error

	case DuplicateMerge:
		// Promotion upserts by business key, so approving the row is
		// enough for the new values to overwrite the live record.
		return l.db.Model(model).Where("id = ?", id).Updates(map[string]interface{}{
			"review_status": models.ReviewApproved,
			"needs_review":  false,
		}).Error

	default:
		return fmt.Errorf("unknown duplicate action %q", action)
	}
}
