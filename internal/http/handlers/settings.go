package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/weison-t/thereader/internal/ai"
	"github.com/weison-t/thereader/internal/models"
	"github.com/weison-t/thereader/internal/service"
)

type apiSettingsRequest struct {
	Action           string   `json:"action" validate:"omitempty,oneof=test testModel"`
	Provider         string   `json:"provider" validate:"omitempty,eq=OpenAI"`
	Model            string   `json:"model"`
	OpenAIKey        *string  `json:"openai_key"`
	MonthlyBudgetUSD *float64 `json:"monthly_budget_usd" validate:"omitempty,gte=0"`
}

type agentSettingsRequest struct {
	RubricUnderstanding *string `json:"rubric_understanding" validate:"omitempty,max=20000"`
}

// @Summary Provider settings or monthly usage
// @Tags settings
// @Produce json
// @Param mode query string false "usage"
// @Success 200 {object} service.APISettings
// @Router /api/settings/api [get]
func (h *Handler) APISettings(c *gin.Context) {
	ctx, cancel := h.readCtx(c)
	defer cancel()
	if c.Query("mode") == "usage" {
		u, err := h.Settings.Usage(ctx)
		if err != nil {
			h.fail(c, "DB_ERROR", "Failed to load usage", err)
			return
		}
		c.JSON(http.StatusOK, u)
		return
	}
	s, err := h.Settings.API(ctx)
	if err != nil {
		h.fail(c, "DB_ERROR", "Failed to load settings", err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// @Summary Save provider settings, or test a key or model
// @Tags settings
// @Accept json
// @Produce json
// @Param body body apiSettingsRequest true "settings"
// @Success 200 {object} service.APISettings
// @Failure 400 {object} map[string]any
// @Router /api/settings/api [put]
func (h *Handler) SaveAPISettings(c *gin.Context) {
	var req apiSettingsRequest
	if !h.bind(c, &req) {
		return
	}
	ctx := c.Request.Context()
	key := ""
	if req.OpenAIKey != nil {
		key = *req.OpenAIKey
	}

	switch req.Action {
	case "test":
		if err := h.Settings.TestKey(ctx, key); err != nil {
			h.probeFailed(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	case "testModel":
		label := req.Model
		if label == "" {
			current, err := h.Settings.API(ctx)
			if err != nil {
				h.fail(c, "DB_ERROR", "Failed to load settings", err)
				return
			}
			label = current.Model
		}
		if err := h.Settings.TestModel(ctx, key, label); err != nil {
			h.probeFailed(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "model": label, "model_id": ai.ModelID(label)})
		return
	}

	s, err := h.Settings.SaveAPI(ctx, service.APISettingsUpdate{
		Provider:         req.Provider,
		Model:            req.Model,
		APIKey:           req.OpenAIKey,
		MonthlyBudgetUSD: req.MonthlyBudgetUSD,
	})
	if err != nil {
		h.fail(c, "DB_ERROR", "Failed to save settings", err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// probeFailed reports a rejected key or model with the provider status when known.
func (h *Handler) probeFailed(c *gin.Context, err error) {
	status, code := errorStatus(err, "CONFIG_ERROR")
	if status == http.StatusInternalServerError {
		status = http.StatusBadRequest
		if ps := ai.StatusCode(err); ps == http.StatusTooManyRequests {
			status = ps
		}
	}
	writeError(c, status, code, "Provider check failed", err.Error())
}

// @Summary Agent rubric guidance
// @Tags settings
// @Produce json
// @Success 200 {object} models.AgentConfig
// @Router /api/settings/agent [get]
func (h *Handler) AgentSettings(c *gin.Context) {
	ctx, cancel := h.readCtx(c)
	defer cancel()
	cfg, err := h.Settings.Agent(ctx)
	if err != nil {
		h.fail(c, "DB_ERROR", "Failed to load agent settings", err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// @Summary Save agent rubric guidance
// @Tags settings
// @Accept json
// @Produce json
// @Param body body agentSettingsRequest true "guidance"
// @Success 200 {object} models.AgentConfig
// @Router /api/settings/agent [put]
func (h *Handler) SaveAgentSettings(c *gin.Context) {
	var req agentSettingsRequest
	if !h.bind(c, &req) {
		return
	}
	cfg := models.AgentConfig{RubricUnderstanding: req.RubricUnderstanding}
	if err := h.Settings.SaveAgent(c.Request.Context(), cfg); err != nil {
		h.fail(c, "DB_ERROR", "Failed to save agent settings", err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}
