package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/weison-t/thereader/internal/models"
	"github.com/weison-t/thereader/internal/sampling"
	"github.com/weison-t/thereader/internal/service"
)

// @Summary Paginated raw chat in snapshot shape
// @Tags snapshot
// @Produce json
// @Param page query int false "page, from 1"
// @Param pageSize query int false "1..200, default 20"
// @Success 200 {object} service.RawChatPage
// @Router /api/raw-chat [get]
func (h *Handler) RawChat(c *gin.Context) {
	ctx, cancel := h.readCtx(c)
	defer cancel()
	page, err := h.Rebuild.RawChatPage(ctx, queryInt(c, "page", 1), queryInt(c, "pageSize", service.DefaultPageSize))
	if err != nil {
		h.fail(c, "DB_ERROR", "Failed to load raw chat", err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// @Summary Preview the chat snapshot
// @Tags snapshot
// @Produce json
// @Success 200 {object} models.Preview
// @Router /api/data-snapshot [get]
func (h *Handler) SnapshotPreview(c *gin.Context) {
	ctx, cancel := h.readCtx(c)
	defer cancel()
	p, err := h.Store.Preview(ctx, models.DatasetSnapshot, service.SamplingPreviewRows)
	if err != nil {
		h.fail(c, "DB_ERROR", "Failed to preview snapshot", err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary Rebuild the chat snapshot
// @Tags snapshot
// @Produce json
// @Success 200 {object} service.SnapshotResult
// @Router /api/data-snapshot [post]
func (h *Handler) RebuildSnapshot(c *gin.Context) {
	res, err := h.Rebuild.Snapshot(c.Request.Context())
	if err != nil {
		h.fail(c, "DB_ERROR", "Failed to rebuild snapshot", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary Current sample preview
// @Tags sampling
// @Produce json
// @Success 200 {object} models.Preview
// @Router /api/sampling [get]
func (h *Handler) SamplingPreview(c *gin.Context) {
	ctx, cancel := h.readCtx(c)
	defer cancel()
	p, err := h.Rebuild.SamplingPreview(ctx)
	if err != nil {
		h.fail(c, "DB_ERROR", "Failed to preview sampling data", err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary Draw a new sample from the snapshot
// @Tags sampling
// @Accept json
// @Produce json
// @Param body body sampling.Request false "sampling knobs"
// @Success 200 {object} service.SamplingResult
// @Failure 400 {object} map[string]any
// @Router /api/sampling [post]
func (h *Handler) Sample(c *gin.Context) {
	var req sampling.Request
	if !h.bind(c, &req) {
		return
	}
	res, err := h.Rebuild.Sampling(c.Request.Context(), req.Params())
	if err != nil {
		h.fail(c, "DB_ERROR", "Failed to build sampling data", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary Drop the current sample
// @Tags sampling
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/sampling [delete]
func (h *Handler) DeleteSampling(c *gin.Context) {
	if err := h.Rebuild.DeleteSampling(c.Request.Context()); err != nil {
		h.fail(c, "DB_ERROR", "Failed to drop sampling data", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
