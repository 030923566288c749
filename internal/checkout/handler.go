package checkout

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/visaform/checkout-billing/internal/config"
	"github.com/visaform/checkout-billing/internal/credential"
	"github.com/visaform/checkout-billing/internal/ledger"
	"github.com/visaform/checkout-billing/internal/payments"
)

// PaymentGetter is satisfied by payments.Client. Decoupled here so handler
// tests can point at an httptest provider.
type PaymentGetter interface {
	GetPayment(ctx context.Context, id string) (*payments.Payment, error)
}

// Handler exposes the redemption endpoint: settled payment in, credential out.
type Handler struct {
	ledger   *ledger.Ledger
	provider PaymentGetter
	token    config.TokenConfig
	log      *zap.Logger
}

func NewHandler(l *ledger.Ledger, provider PaymentGetter, token config.TokenConfig, log *zap.Logger) *Handler {
	return &Handler{ledger: l, provider: provider, token: token, log: log}
}

// Register mounts the checkout routes.
func (h *Handler) Register(r *gin.Engine) {
	r.POST("/checkout/verify", h.handleVerify)
}

func (h *Handler) handleVerify(c *gin.Context) {
	var body struct {
		PaymentID string `json:"paymentId"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.PaymentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "paymentId is required"})
		return
	}

	if h.token.SigningSecret == "" {
		h.log.Error("signing secret not configured")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server misconfigured"})
		return
	}

	verify := func(ctx context.Context, paymentID string) (ledger.Settlement, error) {
		p, err := h.provider.GetPayment(ctx, paymentID)
		if err != nil {
			return ledger.Settlement{}, err
		}
		return ledger.Settlement{Settled: p.Settled(), Status: p.Status}, nil
	}

	issue := func() (string, error) {
		budget := credential.Budget{
			AIUnits:        h.token.BudgetAIUnits,
			ComputeSeconds: h.token.BudgetComputeSec,
			Window:         h.token.BudgetWindow,
		}
		ttl := time.Duration(h.token.TTLSec) * time.Second
		return credential.Issue(body.PaymentID, h.token.ProjectID, []byte(h.token.SigningSecret), budget, ttl)
	}

	token, err := h.ledger.Redeem(c.Request.Context(), body.PaymentID, verify, issue)
	if err != nil {
		var notSettled *ledger.NotSettledError
		switch {
		case errors.As(err, &notSettled):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":  "Payment not completed",
				"status": notSettled.Status,
			})
		case errors.Is(err, ledger.ErrVerifyUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Payment verification failed"})
		default:
			h.log.Error("redemption failed", zap.String("payment", body.PaymentID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}
