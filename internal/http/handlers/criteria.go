package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/weison-t/thereader/internal/db"
	"github.com/weison-t/thereader/internal/models"
	"github.com/weison-t/thereader/internal/scoring"
)

type criteriaPatch struct {
	ID      int64              `json:"id" validate:"required,gt=0"`
	Updates map[string]*string `json:"updates" validate:"required,min=1"`
}

type criteriaActionRequest struct {
	Action  string          `json:"action" validate:"required,oneof=batchUpdate reset"`
	Updates []criteriaPatch `json:"updates" validate:"required_if=Action batchUpdate,dive"`
}

// @Summary Rubric rows with per-customer-type totals
// @Tags criteria
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/criteria [get]
func (h *Handler) Criteria(c *gin.Context) {
	ctx, cancel := h.readCtx(c)
	defer cancel()
	t, ok, err := h.Store.Criteria(ctx)
	if err != nil {
		h.fail(c, "DB_ERROR", "Failed to load criteria", err)
		return
	}
	if t.Columns == nil {
		t.Columns = []string{}
	}
	c.JSON(http.StatusOK, gin.H{
		"exists":  ok,
		"columns": t.Columns,
		"rows":    t.Records(),
		"totals":  scoring.RubricTotals(t),
	})
}

// @Summary Edit one rubric row
// @Tags criteria
// @Accept json
// @Produce json
// @Param body body criteriaPatch true "row id and column values"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Router /api/criteria [patch]
func (h *Handler) UpdateCriteria(c *gin.Context) {
	var req criteriaPatch
	if !h.bind(c, &req) {
		return
	}
	row, err := h.Store.UpdateCriteria(c.Request.Context(), db.CriteriaUpdate{ID: req.ID, Updates: req.Updates})
	if err != nil {
		h.fail(c, "DB_ERROR", "Failed to update criteria", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "row": row})
}

// @Summary Batch edit or reload the rubric
// @Description action=batchUpdate applies all updates in one transaction, reset reloads the latest stored CSV.
// @Tags criteria
// @Accept json
// @Produce json
// @Param body body criteriaActionRequest true "action"
// @Success 200 {object} map[string]any
// @Router /api/criteria [post]
func (h *Handler) CriteriaAction(c *gin.Context) {
	var req criteriaActionRequest
	if !h.bind(c, &req) {
		return
	}
	ctx := c.Request.Context()

	if req.Action == "reset" {
		res, err := h.Ingest.ReloadFromStorage(ctx, models.DatasetCriteriaScoring)
		if err != nil {
			h.fail(c, "DB_ERROR", "Failed to reload criteria", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "rows": res.Rows, "object": res.Object})
		return
	}

	updates := make([]db.CriteriaUpdate, 0, len(req.Updates))
	for _, u := range req.Updates {
		updates = append(updates, db.CriteriaUpdate{ID: u.ID, Updates: u.Updates})
	}
	n, err := h.Store.BatchUpdateCriteria(ctx, updates)
	if err != nil {
		h.fail(c, "DB_ERROR", "Failed to update criteria", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "updated": n})
}
