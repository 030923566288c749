package usage

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler exposes budget state and spend recording to credential bearers.
type Handler struct {
	tracker *Tracker
	log     *zap.Logger
}

func NewHandler(tracker *Tracker, log *zap.Logger) *Handler {
	return &Handler{tracker: tracker, log: log}
}

// Register mounts the usage routes. Middleware must already be applied to the
// group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("/usage", h.handleSnapshot)
	rg.POST("/usage/spend", h.handleSpend)
}

func (h *Handler) handleSnapshot(c *gin.Context) {
	claims := ClaimsFrom(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer credential"})
		return
	}
	snap, err := h.tracker.Snapshot(c.Request.Context(), claims)
	if err != nil {
		h.log.Error("usage snapshot failed", zap.String("subject", claims.Subject), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) handleSpend(c *gin.Context) {
	claims := ClaimsFrom(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer credential"})
		return
	}

	var body struct {
		AIUnits        int64 `json:"aiUnits"`
		ComputeSeconds int64 `json:"computeSeconds"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid spend payload"})
		return
	}
	if body.AIUnits < 0 || body.ComputeSeconds < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "spend must be non-negative"})
		return
	}

	if err := h.tracker.Spend(c.Request.Context(), claims, body.AIUnits, body.ComputeSeconds); err != nil {
		if errors.Is(err, ErrBudgetExhausted) {
			c.JSON(http.StatusPaymentRequired, gin.H{"error": "Budget exhausted"})
			return
		}
		h.log.Error("spend failed", zap.String("subject", claims.Subject), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	snap, err := h.tracker.Snapshot(c.Request.Context(), claims)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, snap)
}
