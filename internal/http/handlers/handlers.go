package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/weison-t/thereader/internal/db"
	"github.com/weison-t/thereader/internal/models"
	"github.com/weison-t/thereader/internal/scoring"
	"github.com/weison-t/thereader/internal/secret"
	"github.com/weison-t/thereader/internal/service"
	"github.com/weison-t/thereader/internal/storage"
)

type Handler struct {
	Store     *db.Store
	Objects   storage.ObjectStore
	Ingest    *service.Ingestor
	Rebuild   *service.Rebuilder
	Scoring   *service.ScoringService
	Reports   *service.Reports
	Insights  *service.InsightsService
	Settings  *service.SettingsService
	Validator *validator.Validate
	Logger    zerolog.Logger

	// ReadTimeout bounds read-only queries; zero leaves the request context alone.
	ReadTimeout time.Duration
}

// healthTables are reported by /api/health/tables in this order.
var healthTables = []string{
	models.DatasetRawChat,
	models.DatasetAgentInfo,
	models.DatasetCriteriaScoring,
	db.ProcessedData,
	models.DatasetSnapshot,
	models.DatasetSampling,
	db.ResponseResult,
}

func (h *Handler) readCtx(c *gin.Context) (context.Context, context.CancelFunc) {
	if h.ReadTimeout <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), h.ReadTimeout)
}

// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 503 {object} map[string]any
// @Router /healthz [get]
func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// @Summary Storage and database reachability
// @Tags health
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/health/storage [get]
func (h *Handler) HealthStorage(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	out := gin.H{"storage": "ok", "database": "ok"}
	status := http.StatusOK
	if err := h.Objects.Ping(ctx); err != nil {
		out["storage"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if err := h.Store.Ping(ctx); err != nil {
		out["database"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	out["ok"] = status == http.StatusOK
	c.JSON(status, out)
}

// @Summary Table existence and row counts
// @Tags health
// @Produce json
// @Success 200 {object} map[string]models.TableStat
// @Router /api/health/tables [get]
func (h *Handler) HealthTables(c *gin.Context) {
	ctx, cancel := h.readCtx(c)
	defer cancel()
	stats, err := h.Store.TableStats(ctx, healthTables)
	if err != nil {
		h.fail(c, "DB_ERROR", "Failed to inspect tables", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "tables": stats})
}

// @Summary Latest scoring run
// @Tags runs
// @Produce json
// @Success 200 {object} models.ScoringRun
// @Router /api/runs/latest [get]
func (h *Handler) RunsLatest(c *gin.Context) {
	ctx, cancel := h.readCtx(c)
	defer cancel()
	run, err := h.Store.LatestRun(ctx)
	if err != nil {
		h.fail(c, "DB_ERROR", "Failed to fetch run", err)
		return
	}
	if run == nil {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "No runs yet", nil)
		return
	}
	c.JSON(http.StatusOK, run)
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}

// errorStatus maps configuration and missing-source errors to 400 and
// everything else to 500 under fallback.
func errorStatus(err error, fallback string) (int, string) {
	switch {
	case errors.Is(err, db.ErrTableMissing),
		errors.Is(err, service.ErrUnsupportedDataset),
		errors.Is(err, service.ErrNotCSV),
		errors.Is(err, service.ErrEmptyCSV),
		errors.Is(err, service.ErrNoStoredFile):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, scoring.ErrMissingCredential),
		errors.Is(err, scoring.ErrMissingRubric),
		errors.Is(err, secret.ErrNoKey),
		errors.Is(err, secret.ErrMalformed):
		return http.StatusBadRequest, "CONFIG_ERROR"
	case errors.Is(err, service.ErrInvalidModel),
		errors.Is(err, db.ErrNoColumns):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, pgx.ErrNoRows):
		return http.StatusNotFound, "NOT_FOUND"
	}
	return http.StatusInternalServerError, fallback
}

func (h *Handler) fail(c *gin.Context, fallback, message string, err error) {
	status, code := errorStatus(err, fallback)
	if status >= http.StatusInternalServerError {
		h.Logger.Error().Err(err).Str("path", c.FullPath()).Msg(message)
	} else {
		message = err.Error()
	}
	writeError(c, status, code, message, err.Error())
}

// bind decodes an optional JSON body into dst and validates it. An empty
// body leaves dst at its zero value.
func (h *Handler) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", err.Error())
		return false
	}
	if err := h.Validator.Struct(dst); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", validationDetails(err))
		return false
	}
	return true
}

func validationDetails(err error) any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	out := make([]gin.H, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, gin.H{"field": fe.Field(), "rule": fe.Tag(), "param": fe.Param()})
	}
	return out
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}
