package promotion

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jinzhu/gorm"
	"go.uber.org/zap"

	"platecost/internal/match"
	"platecost/internal/metrics"
	"platecost/internal/models"
)

// promoteRecipes commits approved recipe rows and their ingredient lines.
// The whole recipe set commits in one transaction, children before
// parents; a cycle aborts the entire commit.
func (p *Promoter) promoteRecipes(batchID string, report *Report) error {
	summaries, err := p.approvedRecipeRows(batchID)
	if err != nil {
		return err
	}
	lines, err := p.stagedLines(batchID)
	if err != nil {
		return err
	}

	byName := make(map[string]*models.StgRecipe, len(summaries))
	for i := range summaries {
		byName[summaries[i].RecipeName] = &summaries[i]
	}
	linesByName := make(map[string][]models.StgCSVRecipe)
	for _, line := range lines {
		linesByName[line.RecipeName] = append(linesByName[line.RecipeName], line)
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	// A recipe with no approved summary row promotes only once every one
	// of its staged lines has itself been approved.
	for name, recipeLines := range linesByName {
		if _, ok := byName[name]; ok {
			continue
		}
		if allApproved(recipeLines) {
			names = append(names, name)
		} else {
			delete(linesByName, name)
		}
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil
	}

	order, err := topoOrder(names, linesByName)
	if err != nil {
		return err
	}

	tx := p.db.Begin()
	var promoted []uint
	for _, name := range order {
		recipeID, linked, unlinked, err := p.commitRecipe(tx, name, byName[name], linesByName[name])
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("promoting recipe %q: %w", name, err)
		}
		promoted = append(promoted, recipeID)
		report.RecipesPromoted++
		report.IngredientsLinked += linked
		report.IngredientsUnlinked += unlinked
		metrics.RowsPromoted.WithLabelValues("recipe").Inc()
	}
	if err := tx.Commit().Error; err != nil {
		return err
	}

	p.recompute(promoted, report)
	return nil
}

func (p *Promoter) approvedRecipeRows(batchID string) ([]models.StgRecipe, error) {
	q := p.db.Where("review_status = ? AND committed = ? AND is_latest_version = ?",
		models.ReviewApproved, false, true)
	if batchID != "" {
		q = q.Where("import_batch_id = ?", batchID)
	}
	var rows []models.StgRecipe
	if err := q.Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("loading staged recipes: %w", err)
	}
	return rows, nil
}

// stagedLines returns the latest non-rejected ingredient lines, either of
// one batch or of every recipe with uncommitted lines.
func (p *Promoter) stagedLines(batchID string) ([]models.StgCSVRecipe, error) {
	q := p.db.Where("is_latest_version = ? AND review_status != ?", true, models.ReviewRejected)
	if batchID != "" {
		q = q.Where("import_batch_id = ?", batchID)
	} else {
		q = q.Where("committed = ?", false)
	}
	var lines []models.StgCSVRecipe
	if err := q.Order("original_row_number, id").Find(&lines).Error; err != nil {
		return nil, fmt.Errorf("loading staged ingredient lines: %w", err)
	}
	return lines, nil
}

func allApproved(lines []models.StgCSVRecipe) bool {
	for _, line := range lines {
		if line.ReviewStatus != models.ReviewApproved {
			return false
		}
	}
	return len(lines) > 0
}

// topoOrder sorts the promoted recipes children-first using the staged
// prep-recipe edges. A cycle among the promoted recipes aborts with an
// error naming it.
func topoOrder(names []string, linesByName map[string][]models.StgCSVRecipe) ([]string, error) {
	inSet := make(map[string]bool, len(names))
	for _, n := range names {
		inSet[n] = true
	}

	// parent -> children edges restricted to the promoted set.
	children := make(map[string][]string)
	for _, parent := range names {
		for _, line := range linesByName[parent] {
			if line.IngredientType == models.RecipeTypePrep && inSet[line.IngredientName] {
				children[parent] = append(children[parent], line.IngredientName)
			}
		}
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(names))
	var order []string
	var path []string

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			cycleStart := 0
			for i, n := range path {
				if n == name {
					cycleStart = i
					break
				}
			}
			cycle := append(append([]string{}, path[cycleStart:]...), name)
			return fmt.Errorf("recipe cycle detected: %s", strings.Join(cycle, " -> "))
		}
		state[name] = visiting
		path = append(path, name)
		for _, child := range children[name] {
			if err := visit(child); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		state[name] = done
		order = append(order, name)
		return nil
	}

	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// commitRecipe upserts one authoritative recipe and replaces its
// ingredient edges, then marks the staging provenance committed.
func (p *Promoter) commitRecipe(tx *gorm.DB, name string, summary *models.StgRecipe, lines []models.StgCSVRecipe) (uint, int, int, error) {
	var recipe models.Recipe
	err := tx.Where("name = ?", name).First(&recipe).Error
	if gorm.IsRecordNotFoundError(err) {
		recipe = models.Recipe{Name: name, RecipeType: models.RecipeTypeRecipe}
	} else if err != nil {
		return 0, 0, 0, err
	}

	if summary != nil {
		applySummary(&recipe, summary)
	}
	if err := tx.Save(&recipe).Error; err != nil {
		return 0, 0, 0, err
	}

	linked, unlinked := 0, 0
	if len(lines) > 0 {
		// Replace the edge set atomically so ingredient edits land whole.
		if err := tx.Where("recipe_id = ?", recipe.ID).
			Delete(&models.RecipeIngredient{}).Error; err != nil {
			return 0, 0, 0, err
		}
		for i, line := range lines {
			ing, ok, err := p.buildIngredient(tx, recipe.ID, i, line)
			if err != nil {
				return 0, 0, 0, err
			}
			if ok {
				linked++
			} else {
				unlinked++
			}
			if err := tx.Create(ing).Error; err != nil {
				return 0, 0, 0, err
			}
		}
		if unlinked > 0 {
			if err := tx.Model(&recipe).Update("needs_review", true).Error; err != nil {
				return 0, 0, 0, err
			}
		}
	}

	now := p.now()
	if summary != nil {
		if err := tx.Model(summary).Updates(map[string]interface{}{
			"committed":           true,
			"committed_at":        now,
			"committed_recipe_id": recipe.ID,
		}).Error; err != nil {
			return 0, 0, 0, err
		}
	}
	for _, line := range lines {
		if err := tx.Model(&models.StgCSVRecipe{}).Where("id = ?", line.ID).
			Updates(map[string]interface{}{
				"committed":           true,
				"committed_at":        now,
				"committed_recipe_id": recipe.ID,
			}).Error; err != nil {
			return 0, 0, 0, err
		}
	}
	return recipe.ID, linked, unlinked, nil
}

// applySummary copies staged summary fields onto the authoritative
// recipe. The staged food cost becomes the stated cost; the cached
// food_cost stays owned by the resolver.
func applySummary(recipe *models.Recipe, row *models.StgRecipe) {
	if row.Status != "" {
		recipe.Status = row.Status
	}
	if row.RecipeGroup != "" {
		recipe.RecipeGroup = row.RecipeGroup
	}
	if row.RecipeType != "" {
		recipe.RecipeType = row.RecipeType
	}
	if row.FoodCost.Valid {
		recipe.StatedCost = row.FoodCost
	}
	if row.LaborCost.Valid {
		recipe.LaborCost = row.LaborCost.Decimal
	}
	if row.MenuPrice.Valid {
		recipe.MenuPrice = row.MenuPrice.Decimal
	}
	if row.GrossMargin.Valid {
		recipe.GrossMargin = row.GrossMargin
	}
	if row.ServingSize.Valid {
		recipe.ServingSize = row.ServingSize.Decimal
		recipe.ServingSizeUnit = row.ServingSizeUom
	}
	if row.YieldQuantity.Valid {
		recipe.PrepYield = row.YieldQuantity
		recipe.PrepYieldUnit = row.YieldUnit
	}
	if row.ShelfLife != "" {
		recipe.ShelfLife = row.ShelfLife
		recipe.ShelfLifeUom = row.ShelfLifeUom
	}
	if row.PrefixCode != "" {
		recipe.PrefixCode = row.PrefixCode
	}
	if row.Procedure != "" {
		recipe.Procedure = row.Procedure
	}
	if row.Station != "" {
		recipe.Station = row.Station
	}
	if row.Allergens != "" {
		recipe.Allergens = row.Allergens
	}
}

// buildIngredient resolves one staged line into an edge. Product lines
// re-resolve against live inventory: staged match first, then exact
// description, then fuzzy; prep lines resolve against recipes by name.
// The bool result reports whether the line ended up linked.
func (p *Promoter) buildIngredient(tx *gorm.DB, recipeID uint, order int, line models.StgCSVRecipe) (*models.RecipeIngredient, bool, error) {
	ing := &models.RecipeIngredient{
		RecipeID:         recipeID,
		IngredientName:   line.IngredientName,
		IngredientType:   line.IngredientType,
		Unit:             line.Unit,
		ConversionStatus: models.ConversionOK,
		SortOrder:        order,
	}
	if line.Quantity.Valid {
		ing.Quantity = line.Quantity.Decimal
	}

	if line.IngredientType == models.RecipeTypePrep || line.IngredientType == models.RecipeTypeRecipe {
		var child models.Recipe
		err := tx.Where("name = ?", line.IngredientName).First(&child).Error
		if err == nil {
			ing.ChildRecipeID = &child.ID
			return ing, true, nil
		}
		if !gorm.IsRecordNotFoundError(err) {
			return nil, false, err
		}
		ing.ConversionStatus = models.ConversionUnparseable
		zap.L().Warn("prep recipe not found at promotion",
			zap.String("ingredient", line.IngredientName),
			zap.Uint("recipe_id", recipeID),
		)
		return ing, false, nil
	}

	ing.IngredientType = models.IngredientTypeProduct

	if line.MatchedInventoryID != nil {
		var item models.InventoryItem
		if err := tx.First(&item, *line.MatchedInventoryID).Error; err == nil {
			ing.InventoryID = &item.ID
			return ing, true, nil
		}
	}
	var item models.InventoryItem
	err := tx.Where("LOWER(description) = ?", strings.ToLower(line.IngredientName)).First(&item).Error
	if err == nil {
		ing.InventoryID = &item.ID
		return ing, true, nil
	}
	if !gorm.IsRecordNotFoundError(err) {
		return nil, false, err
	}

	candidates, err := p.candidates(tx)
	if err != nil {
		return nil, false, err
	}
	if best, ok := p.matcher.Best(line.IngredientName, candidates); ok {
		id := best.InventoryID
		ing.InventoryID = &id
		return ing, true, nil
	}

	ing.ConversionStatus = models.ConversionUnparseable
	return ing, false, nil
}

func (p *Promoter) candidates(tx *gorm.DB) ([]match.Candidate, error) {
	var items []models.InventoryItem
	if err := tx.Select("id, description").Find(&items).Error; err != nil {
		return nil, err
	}
	out := make([]match.Candidate, 0, len(items))
	for _, it := range items {
		out = append(out, match.Candidate{ID: it.ID, Description: it.Description})
	}
	return out, nil
}

// recompute refreshes the cached costs of the promoted recipes and every
// recipe transitively depending on them. Order already has children
// first, so parents see fresh totals.
func (p *Promoter) recompute(promoted []uint, report *Report) {
	seen := make(map[uint]bool)
	queue := append([]uint{}, promoted...)
	for _, id := range promoted {
		deps, err := p.resolver.Dependents(id)
		if err != nil {
			report.Errors = append(report.Errors, err.Error())
			continue
		}
		queue = append(queue, deps...)
	}

	for _, id := range queue {
		if seen[id] {
			continue
		}
		seen[id] = true
		audit, err := p.resolver.ComputeRecipeCost(id)
		if audit != nil {
			if saveErr := p.resolver.SaveAudit(audit); saveErr != nil {
				report.Errors = append(report.Errors, saveErr.Error())
				continue
			}
			report.RecipesRecomputed++
		}
		if err != nil {
			report.Errors = append(report.Errors, err.Error())
		}
	}
}
