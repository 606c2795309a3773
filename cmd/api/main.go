package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"

	"voice-orchestrator/internal/audit"
	"voice-orchestrator/internal/auth"
	"voice-orchestrator/internal/calls"
	"voice-orchestrator/internal/config"
	"voice-orchestrator/internal/dialer"
	"voice-orchestrator/internal/httpapi"
	"voice-orchestrator/internal/metrics"
	"voice-orchestrator/internal/reporting"
	"voice-orchestrator/internal/telephony"
	"voice-orchestrator/pkg/logger"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log, logCloser := logger.New(cfg.App.Env, cfg.App.LogFile)
	defer logCloser.Close()
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	verifier, err := telephony.NewSignatureVerifier(cfg.Telnyx.PublicKey, cfg.Telnyx.WebhookTolerance)
	if err != nil {
		log.Error("telnyx public key invalid", "err", err)
		os.Exit(1)
	}

	be, err := openBackends(rootCtx, cfg, log)
	if err != nil {
		log.Error("storage init failed", "storage", cfg.App.Storage, "err", err)
		os.Exit(1)
	}
	defer be.Close()

	provider := telephony.NewTelnyxProvider(telephony.TelnyxConfig{
		APIKey:       cfg.Telnyx.APIKey,
		ConnectionID: cfg.Telnyx.ConnectionID,
		BaseURL:      cfg.Telnyx.BaseURL,
		Timeout:      cfg.Telnyx.HTTPTimeout,
	})
	if !provider.Configured() {
		log.Warn("telnyx credentials missing, call starts will fail with NOT_CONFIGURED")
	}

	store := calls.NewNotifyingStore(be.store, be.bus, log)
	auditor := audit.NewService(be.audit)
	h := httpapi.Handlers{
		Auth: authManager,
		Calls: calls.NewService(calls.Deps{
			Store:    store,
			Provider: provider,
			Numbers:  be.numbers,
			Guard:    be.guard,
			Audit:    auditor,
			Log:      log,
		}),
		Processor: calls.NewProcessor(store, provider, cfg.Calls.BridgeDialTimeout, log).WithAudit(auditor),
		Setup:     dialer.NumbersSetup{Numbers: be.numbers},
		Feed:      be.bus,
		Reports:   reporting.NewService(store),
		Verifier:  verifier,
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log, "/healthz", "/readyz", "/metrics"))
	r.Use(metrics.Middleware())

	registerRoutes(r, routeDeps{
		handlers:  h,
		auth:      authManager,
		health:    be.health,
		devTokens: !cfg.IsProduction(),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Live feed websockets set their own write deadlines.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "storage", cfg.App.Storage)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	// Ends live feed subscriptions so hijacked websocket handlers return.
	be.bus.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
