package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"wellnest/llm"
)

// LLMHandler is the stateless chat proxy. It never touches persistence.
type LLMHandler struct {
	client *llm.Client
}

func NewLLMHandler(client *llm.Client) *LLMHandler {
	return &LLMHandler{client: client}
}

func (h *LLMHandler) Chat(c *gin.Context) {
	var req struct {
		Messages []llm.Turn `json:"messages" binding:"required,min=1,dive"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.client.Complete(c.Request.Context(), req.Messages, c.GetHeader("X-Api-Key"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
