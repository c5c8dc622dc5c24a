// README: AI intent handler (Gemini-backed free-form post parsing).
package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"hitch/internal/ai"
)

type IntentHandler struct {
	provider ai.IntentProvider
}

func NewIntentHandler(provider ai.IntentProvider) *IntentHandler {
	return &IntentHandler{provider: provider}
}

type intentReq struct {
	Message string `json:"message"`
}

// Parse handles POST /api/intent.
func (h *IntentHandler) Parse(c *gin.Context) {
	if h.provider == nil {
		writeError(c, http.StatusServiceUnavailable, "intent parsing not configured")
		return
	}

	var req intentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		writeError(c, http.StatusBadRequest, "missing message")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	intent, err := h.provider.ParseTripIntent(ctx, req.Message, map[string]string{
		"current_date": time.Now().Format("2006-01-02"),
	})
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(c, http.StatusOK, intent)
}
