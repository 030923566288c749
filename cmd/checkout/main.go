package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/visaform/checkout-billing/internal/assistant"
	"github.com/visaform/checkout-billing/internal/capability"
	"github.com/visaform/checkout-billing/internal/checkout"
	"github.com/visaform/checkout-billing/internal/config"
	"github.com/visaform/checkout-billing/internal/form"
	"github.com/visaform/checkout-billing/internal/ledger"
	"github.com/visaform/checkout-billing/internal/payments"
	"github.com/visaform/checkout-billing/internal/usage"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync() //nolint:errcheck

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatal("redis ping failed", zap.Error(err))
	}

	// ── Payment provider client ───────────────────────────────────────────────
	provider := payments.NewClient(cfg.Payments.APIURL, cfg.Payments.APIKey)

	// ── Redemption ledger (record TTL = credential validity window) ───────────
	ledg := ledger.New(rdb, time.Duration(cfg.Token.TTLSec)*time.Second, log)

	// ── Form state + assistant capabilities ───────────────────────────────────
	formStore := form.NewStore(rdb, time.Duration(cfg.Session.TTLSec)*time.Second)
	registry := capability.NewRegistry()
	if err := assistant.RegisterFormTools(registry, formStore); err != nil {
		log.Fatal("capability registration failed", zap.Error(err))
	}

	// ── Usage tracking ────────────────────────────────────────────────────────
	tracker := usage.NewTracker(rdb)

	// ── HTTP server ───────────────────────────────────────────────────────────
	r := newRouter(cfg, ledg, provider, registry, tracker, log)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	log.Info("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	log.Info("shutdown complete")
}

// newRouter mounts all routes: the public checkout endpoint plus the
// credential-protected /api group.
func newRouter(
	cfg *config.Config,
	ledg *ledger.Ledger,
	provider checkout.PaymentGetter,
	registry *capability.Registry,
	tracker *usage.Tracker,
	log *zap.Logger,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	checkout.NewHandler(ledg, provider, cfg.Token, log).Register(r)

	api := r.Group("/api", usage.Middleware([]byte(cfg.Token.SigningSecret)))
	usage.NewHandler(tracker, log).Register(api)
	assistant.NewHandler(registry, log).Register(api)

	return r
}
