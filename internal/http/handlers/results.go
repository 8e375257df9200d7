package handlers

import (
	"encoding/csv"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/weison-t/thereader/internal/db"
	"github.com/weison-t/thereader/internal/models"
	"github.com/weison-t/thereader/internal/service"
)

const exportLimit = 1000

type responseResultRequest struct {
	Action  string `json:"action" validate:"omitempty,oneof=init reset process"`
	Replace bool   `json:"replace"`
	Limit   int    `json:"limit" validate:"omitempty,min=1,max=1000"`
}

// @Summary Manage and run scoring
// @Description action=init creates the results table, reset empties it, process scores the sample.
// @Tags scoring
// @Accept json
// @Produce json
// @Param body body responseResultRequest false "action"
// @Success 200 {object} service.ProcessResult
// @Failure 400 {object} map[string]any
// @Router /api/response-result [post]
func (h *Handler) ResponseResultAction(c *gin.Context) {
	var req responseResultRequest
	if !h.bind(c, &req) {
		return
	}
	ctx := c.Request.Context()

	switch req.Action {
	case "reset":
		if err := h.Scoring.Reset(ctx); err != nil {
			h.fail(c, "DB_ERROR", "Failed to reset results", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	case "process":
		res, err := h.Scoring.Process(ctx, service.ProcessOptions{Replace: req.Replace, Limit: req.Limit})
		if err != nil {
			h.fail(c, "PROCESSING_ERROR", "Processing failed", err)
			return
		}
		c.JSON(http.StatusOK, res)
	default:
		if err := h.Scoring.Init(ctx); err != nil {
			h.fail(c, "DB_ERROR", "Failed to create results table", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

// @Summary List scoring results or download them as CSV
// @Tags scoring
// @Produce json
// @Produce text/csv
// @Param limit query int false "1..200, default 50"
// @Param offset query int false "offset"
// @Param download query string false "csv"
// @Success 200 {object} map[string]any
// @Router /api/response-result [get]
func (h *Handler) ResponseResults(c *gin.Context) {
	ctx, cancel := h.readCtx(c)
	defer cancel()
	if err := h.Store.EnsureResultsTable(ctx); err != nil {
		h.fail(c, "DB_ERROR", "Failed to create results table", err)
		return
	}

	if c.Query("download") == "csv" {
		rows, err := h.Store.ExportResults(ctx, exportLimit)
		if err != nil {
			h.fail(c, "DB_ERROR", "Failed to export results", err)
			return
		}
		c.Header("Content-Disposition", "attachment; filename=response_result.csv")
		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Status(http.StatusOK)
		w := csv.NewWriter(c.Writer)
		_ = w.Write(db.ResultColumns)
		for _, r := range rows {
			_ = w.Write(resultRecord(r))
		}
		w.Flush()
		if err := w.Error(); err != nil {
			h.Logger.Error().Err(err).Msg("csv export interrupted")
		}
		return
	}

	rows, total, err := h.Store.ListResults(ctx, queryInt(c, "limit", 50), queryInt(c, "offset", 0))
	if err != nil {
		h.fail(c, "DB_ERROR", "Failed to list results", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "rowsTotal": total, "columns": db.ResultColumns, "rows": rows})
}

// resultRecord renders r in db.ResultColumns order; NULL becomes "".
func resultRecord(r models.ScoringResult) []string {
	str := func(p *string) string {
		if p == nil {
			return ""
		}
		return *p
	}
	return []string{
		r.ID, r.SourceKey, str(r.SamplingID), str(r.StartTime), str(r.CompletionTime), str(r.QAName), str(r.ChatLink),
		str(r.AgentCallerName), str(r.ChatDateTime), str(r.ChatDuration),
		r.OpeningResponseTime, r.OngoingResponseTime, r.HoldingManagement, r.ClosingManagement,
		r.VerificationEfficiency, r.Thoroughness, r.Proactiveness, r.RelevanceAndClarity,
		r.LanguageNaturalFlow, r.Correction, r.ProperEmpathyAcknowledgement,
		r.OverallChatHandlingCustomerExperience,
		strconv.FormatBool(r.BreachConfidentialityAutoFailed), strconv.FormatBool(r.RudenessUnprofessionalismAutoFailed),
		str(r.CSATRating), str(r.CSATHandlingCategory), str(r.QualityAssuranceFeedback),
		strconv.FormatFloat(r.FinalScore, 'f', -1, 64), strconv.FormatBool(r.Degraded), r.CreatedAt.UTC().Format(time.RFC3339),
	}
}
