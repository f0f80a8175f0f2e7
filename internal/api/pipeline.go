package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"platecost/internal/costing"
	"platecost/internal/staging"
)

type stageRequest struct {
	SourceFile string           `json:"source_file" binding:"required"`
	Records    []staging.Record `json:"records" binding:"required"`
}

func (a *API) StageInventory(c *gin.Context) {
	var req stageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	summary, err := a.Loader.StageInventory(req.Records, req.SourceFile)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, summary)
}

func (a *API) StageRecipes(c *gin.Context) {
	var req stageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	summary, err := a.Loader.StageRecipes(req.Records, req.SourceFile)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, summary)
}

func (a *API) StageRecipeCSV(c *gin.Context) {
	var req stageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	summary, err := a.Loader.StageRecipeCSV(req.Records, req.SourceFile)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, summary)
}

func (a *API) StagePDFExtract(c *gin.Context) {
	var extract staging.PDFExtract
	if err := c.ShouldBindJSON(&extract); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	summary, err := a.Loader.StagePDFExtract(extract)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, summary)
}

func (a *API) SetReviewStatus(c *gin.Context) {
	var req struct {
		Table      string `json:"table" binding:"required"`
		ID         uint   `json:"id"`
		RecipeName string `json:"recipe_name"`
		Status     string `json:"status" binding:"required"`
		Notes      string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var err error
	switch {
	case req.ID != 0:
		err = a.Loader.SetReviewStatus(req.Table, req.ID, req.Status, req.Notes)
	case req.RecipeName != "":
		err = a.Loader.SetReviewStatusByName(req.Table, req.RecipeName, req.Status, req.Notes)
	default:
		err = fmt.Errorf("one of id and recipe_name is required")
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "review status updated"})
}

func (a *API) ResolveDuplicate(c *gin.Context) {
	var req struct {
		Table  string `json:"table" binding:"required"`
		ID     uint   `json:"id" binding:"required"`
		Action string `json:"action" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := a.Loader.ResolveDuplicate(req.Table, req.ID, staging.DuplicateAction(req.Action)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "duplicate resolved"})
}

func (a *API) PromoteBatch(c *gin.Context) {
	var req struct {
		BatchID string `json:"batch_id"`
	}
	// Body is optional: no batch id means promote everything approved.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	report, err := a.Promoter.PromoteBatch(req.BatchID)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "report": report})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (a *API) ComputeRecipeCost(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid recipe id"})
		return
	}
	audit, err := a.Resolver.ComputeRecipeCost(uint(id))
	if err != nil {
		if audit != nil {
			// Cycle: the partial audit is still useful to the caller.
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "audit": audit})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, audit)
}

func (a *API) RecomputeAll(c *gin.Context) {
	var req struct {
		RecipeType  string `json:"recipe_type"`
		RecipeGroup string `json:"recipe_group"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	audit, err := a.Resolver.RecomputeAll(c.Request.Context(), costing.Filter{
		RecipeType:  req.RecipeType,
		RecipeGroup: req.RecipeGroup,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "audit": audit})
		return
	}
	c.JSON(http.StatusOK, audit)
}

func (a *API) RunReconciliation(c *gin.Context) {
	report, err := a.Reconciler.Run()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}
