// GrantHub — Grants Management Back End
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	granthubapi "github.com/d9705996/granthub/internal/api"
	"github.com/d9705996/granthub/internal/api/handler"
	"github.com/d9705996/granthub/internal/assess"
	"github.com/d9705996/granthub/internal/audit"
	"github.com/d9705996/granthub/internal/auth"
	"github.com/d9705996/granthub/internal/comms"
	"github.com/d9705996/granthub/internal/config"
	"github.com/d9705996/granthub/internal/db"
	"github.com/d9705996/granthub/internal/grant"
	"github.com/d9705996/granthub/internal/health"
	"github.com/d9705996/granthub/internal/notify"
	"github.com/d9705996/granthub/internal/observability"
	"github.com/d9705996/granthub/internal/ratelimit"
	"github.com/d9705996/granthub/internal/seed"
	"github.com/d9705996/granthub/internal/version"
	"github.com/d9705996/granthub/internal/worker"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	// Missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Observability -------------------------------------------------------
	obs, log, err := observability.New(ctx, &observability.Config{
		ServiceName:    "granthub",
		ServiceVersion: version.Version,
		LogLevel:       cfg.Log.Level,
		LogFormat:      cfg.Log.Format,
		OTLPEndpoint:   cfg.OTel.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer obs.Shutdown(context.Background())
	slog.SetDefault(log)
	log.Info("starting granthub", "version", version.Version, "commit", version.Commit, "db_driver", cfg.DB.Driver)

	// --- Database ------------------------------------------------------------
	// db.New opens the connection, runs migrations (AutoMigrate for SQLite,
	// golang-migrate for Postgres), and returns the GORM handle plus an
	// optional pgxpool (non-nil only for postgres, used by River).
	gormDB, pool, err := db.New(ctx, &cfg.DB)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	if pool != nil {
		defer pool.Close()
	}
	log.Info("database ready", "driver", cfg.DB.Driver)

	// --- Seed admin ----------------------------------------------------------
	if err := seed.EnsureAdmin(ctx, gormDB, seed.AdminOptions{
		Email:    cfg.App.SeedAdminEmail,
		Password: cfg.App.SeedAdminPassword,
	}, log); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	// --- Domain services -----------------------------------------------------
	var mailer notify.Mailer
	if cfg.Mail.APIKey != "" {
		mailer = notify.NewSendGridMailer(cfg.Mail.APIKey, cfg.Mail.FromAddress, cfg.Mail.FromName)
	} else {
		mailer = notify.NewLogMailer(log)
	}
	notifier := notify.New(gormDB, mailer, log, cfg.Mail.FrontendURL)
	grants := grant.NewService(gormDB, notifier)
	assessments := assess.NewService(gormDB, grants, notifier)
	messaging := comms.NewService(gormDB, notifier)
	recorder := audit.NewRecorder(gormDB, log)
	refresh := auth.NewRefreshStore(gormDB, cfg.JWT.RefreshTTL)
	documents := grant.NewDocumentStore(gormDB, cfg.Media.Dir, int64(cfg.Media.MaxUploadMB)<<20)

	// --- Worker queue --------------------------------------------------------
	// River migrations only run when Postgres is available.
	if pool != nil {
		if err := worker.MigrateRiver(ctx, pool); err != nil {
			return fmt.Errorf("river migrations: %w", err)
		}
		log.Info("river migrations applied")
	}

	wq, err := worker.New(ctx, pool, cfg.DB.Driver, cfg.Worker.Concurrency, gormDB, notifier, log)
	if err != nil {
		return fmt.Errorf("create worker: %w", err)
	}
	if err := wq.Start(ctx); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := wq.Stop(stopCtx); err != nil {
			log.Error("worker stop error", "err", err)
		}
	}()

	// --- HTTP routes ---------------------------------------------------------
	loginLimiter := ratelimit.New(cfg.RateLimit.LoginAttempts, cfg.RateLimit.LoginWindow)
	go loginLimiter.PruneLoop(ctx)

	accountHandler := handler.NewAccountHandler(gormDB, refresh, mailer, recorder,
		cfg.JWT.Secret, cfg.JWT.AccessTTL, cfg.Mail.FrontendURL)
	applicationHandler := handler.NewApplicationHandler(gormDB, grants, recorder)

	mux := http.NewServeMux()
	granthubapi.RegisterRoutes(mux, granthubapi.Deps{
		Health:        health.New(db.NewPinger(gormDB)),
		Account:       accountHandler,
		Applications:  applicationHandler,
		Documents:     handler.NewDocumentHandler(gormDB, applicationHandler, documents, recorder),
		Assessments:   handler.NewAssessmentHandler(gormDB, assessments, applicationHandler),
		Communication: handler.NewCommunicationHandler(gormDB, messaging),
		Notifications: handler.NewNotificationHandler(gormDB, notifier),
		Audit:         handler.NewAuditHandler(gormDB, recorder),
		Recorder:      recorder,
		LoginLimiter:  loginLimiter,
		JWTSecret:     cfg.JWT.Secret,
	})
	// Prometheus metrics endpoint
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Start server --------------------------------------------------------
	log.Info("http server listening", "addr", srv.Addr)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info("server stopped cleanly")
	return nil
}
