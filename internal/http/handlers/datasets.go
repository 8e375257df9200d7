package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/weison-t/thereader/internal/models"
	"github.com/weison-t/thereader/internal/service"
)

const uploadPreviewRows = 5

var uploadDatasets = []string{models.DatasetRawChat, models.DatasetAgentInfo, models.DatasetCriteriaScoring}

type ingestObjectRequest struct {
	Type       string `json:"type" validate:"required,oneof=raw_chat agent_info criteria_scoring"`
	ObjectPath string `json:"objectPath" validate:"required"`
}

type presignRequest struct {
	Type     string `json:"type" validate:"required,oneof=raw_chat agent_info criteria_scoring"`
	Filename string `json:"filename" validate:"required"`
}

// @Summary Upload a dataset CSV
// @Description Multipart form with "type" and "file", or JSON {type, objectPath} for a file already PUT through a presigned URL.
// @Tags datasets
// @Accept multipart/form-data
// @Produce json
// @Param type formData string true "raw_chat | agent_info | criteria_scoring"
// @Param file formData file true "CSV file"
// @Success 200 {object} service.UploadResult
// @Failure 400 {object} map[string]any
// @Router /api/upload [post]
func (h *Handler) Upload(c *gin.Context) {
	ctx := c.Request.Context()
	if strings.HasPrefix(c.ContentType(), "application/json") {
		var req ingestObjectRequest
		if !h.bind(c, &req) {
			return
		}
		res, err := h.Ingest.IngestObject(ctx, req.Type, req.ObjectPath)
		if err != nil {
			h.fail(c, "DB_ERROR", "Failed to ingest object", err)
			return
		}
		c.JSON(http.StatusOK, res)
		return
	}

	dataset := c.PostForm("type")
	fh, err := c.FormFile("file")
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "file required", nil)
		return
	}
	f, err := fh.Open()
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "failed to open file", err.Error())
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "failed to read file", err.Error())
		return
	}

	res, err := h.Ingest.Upload(ctx, dataset, fh.Filename, data)
	if err != nil {
		h.fail(c, "DB_ERROR", "Failed to import dataset", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary Latest stored upload per dataset, or a table preview
// @Tags datasets
// @Produce json
// @Param type query string false "dataset"
// @Param preview query string false "return the first rows of the table"
// @Success 200 {object} map[string]any
// @Router /api/upload [get]
func (h *Handler) Uploads(c *gin.Context) {
	ctx, cancel := h.readCtx(c)
	defer cancel()
	dataset := c.Query("type")

	if dataset != "" && !service.Uploadable(dataset) {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid type", nil)
		return
	}
	if dataset != "" && c.Query("preview") != "" {
		p, err := h.Store.Preview(ctx, dataset, uploadPreviewRows)
		if err != nil {
			h.fail(c, "DB_ERROR", "Failed to preview dataset", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"type": dataset, "exists": p.Exists, "columns": p.Columns, "rows": p.Rows, "total": p.Total})
		return
	}

	names := uploadDatasets
	if dataset != "" {
		names = []string{dataset}
	}
	out := gin.H{}
	for _, name := range names {
		latest, err := h.Ingest.Latest(ctx, name)
		if err != nil {
			h.fail(c, "STORAGE_ERROR", "Failed to list uploads", err)
			return
		}
		out[name] = latest
	}
	c.JSON(http.StatusOK, out)
}

// @Summary Delete a dataset with its stored files
// @Tags datasets
// @Produce json
// @Param type query string true "dataset"
// @Success 200 {object} map[string]any
// @Router /api/upload [delete]
func (h *Handler) DeleteUpload(c *gin.Context) {
	removed, err := h.Ingest.Delete(c.Request.Context(), c.Query("type"))
	if err != nil {
		h.fail(c, "DB_ERROR", "Failed to delete dataset", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "removed_objects": removed})
}

// @Summary Presigned upload URL
// @Tags datasets
// @Accept json
// @Produce json
// @Success 200 {object} service.PresignResult
// @Router /api/upload/presign [post]
func (h *Handler) PresignUpload(c *gin.Context) {
	var req presignRequest
	if !h.bind(c, &req) {
		return
	}
	res, err := h.Ingest.PresignUpload(c.Request.Context(), req.Type, strings.TrimSpace(req.Filename))
	if err != nil {
		h.fail(c, "STORAGE_ERROR", "Failed to create signed URL", err)
		return
	}
	c.JSON(http.StatusOK, res)
}
