package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/weison-t/thereader/internal/db"
	"github.com/weison-t/thereader/internal/insights"
)

type reportRequest struct {
	Action  string `json:"action" validate:"required,oneof=reset process"`
	Replace bool   `json:"replace"`
}

// @Summary Build or reset processed_data
// @Tags reports
// @Accept json
// @Produce json
// @Param body body reportRequest true "action"
// @Success 200 {object} map[string]any
// @Router /api/processed-data [post]
func (h *Handler) ProcessedDataAction(c *gin.Context) {
	var req reportRequest
	if !h.bind(c, &req) {
		return
	}
	n, err := h.Reports.Processed(c.Request.Context(), req.Action, req.Replace)
	if err != nil {
		h.fail(c, "DB_ERROR", "Failed to build processed data", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "inserted": n})
}

// @Summary Copy processed_data into scoring_data, or reset it
// @Tags reports
// @Accept json
// @Produce json
// @Param body body reportRequest true "action"
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]any
// @Router /api/scoring-data [post]
func (h *Handler) ScoringDataAction(c *gin.Context) {
	var req reportRequest
	if !h.bind(c, &req) {
		return
	}
	n, err := h.Reports.Scoring(c.Request.Context(), req.Action, req.Replace)
	if err != nil {
		h.fail(c, "DB_ERROR", "Failed to build scoring data", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "inserted": n})
}

// @Summary processed_data rows
// @Tags reports
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/processed-data [get]
func (h *Handler) ProcessedData(c *gin.Context) {
	h.report(c, db.ProcessedData)
}

// @Summary scoring_data rows
// @Tags reports
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/scoring-data [get]
func (h *Handler) ScoringData(c *gin.Context) {
	h.report(c, db.ScoringData)
}

func (h *Handler) report(c *gin.Context, name string) {
	ctx, cancel := h.readCtx(c)
	defer cancel()
	rows, err := h.Store.Report(ctx, name)
	if err != nil {
		h.fail(c, "DB_ERROR", "Failed to load "+name, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "rows": rows})
}

// @Summary Dashboard aggregates
// @Tags insights
// @Produce json
// @Param source query string false "processed | sampling"
// @Param days query int false "only count the last N days"
// @Success 200 {object} insights.Result
// @Router /api/insights [get]
func (h *Handler) GetInsights(c *gin.Context) {
	ctx, cancel := h.readCtx(c)
	defer cancel()

	var days *int
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "days must be an integer", raw)
			return
		}
		if n < 0 {
			n = 0
		}
		days = &n
	}

	res, err := h.Insights.Get(ctx, insights.ParseSource(c.Query("source")), days)
	if err != nil {
		h.fail(c, "DB_ERROR", "Failed to compute insights", err)
		return
	}
	c.JSON(http.StatusOK, res)
}
