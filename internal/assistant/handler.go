package assistant

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/visaform/checkout-billing/internal/capability"
)

// Handler exposes the capability registry to the chat bridge.
type Handler struct {
	reg *capability.Registry
	log *zap.Logger
}

func NewHandler(reg *capability.Registry, log *zap.Logger) *Handler {
	return &Handler{reg: reg, log: log}
}

// Register mounts the assistant routes. The credential middleware should
// already be applied to the group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/session", h.handleCreateSession)
	rg.GET("/assistant/tools", h.handleList)
	rg.POST("/assistant/tools/:name", h.handleDispatch)
}

// handleCreateSession mints a fresh form-session identifier. State is created
// lazily on the first field write.
func (h *Handler) handleCreateSession(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessionId": uuid.New().String()})
}

func (h *Handler) handleList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tools": h.reg.List()})
}

func (h *Handler) handleDispatch(c *gin.Context) {
	name := c.Param("name")
	input, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body"})
		return
	}
	if len(input) == 0 {
		input = []byte("{}")
	}

	result, err := h.reg.Dispatch(c.Request.Context(), name, input)
	if err != nil {
		switch {
		case errors.Is(err, capability.ErrUnknown):
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown tool: " + name})
		case errors.Is(err, capability.ErrBadInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.log.Error("tool dispatch failed", zap.String("tool", name), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "tool execution failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": result})
}
