// Package main is the entrypoint for the htmlshot API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/htmlshot/htmlshot/internal/api"
	"github.com/htmlshot/htmlshot/internal/api/handler"
	mw "github.com/htmlshot/htmlshot/internal/api/middleware"
	"github.com/htmlshot/htmlshot/internal/api/response"
	"github.com/htmlshot/htmlshot/internal/auth"
	"github.com/htmlshot/htmlshot/internal/config"
	"github.com/htmlshot/htmlshot/internal/crypto"
	"github.com/htmlshot/htmlshot/internal/history"
	"github.com/htmlshot/htmlshot/internal/ratelimit"
	"github.com/htmlshot/htmlshot/internal/render"
	"github.com/htmlshot/htmlshot/internal/store"
	"github.com/htmlshot/htmlshot/internal/telemetry"
)

const shutdownTimeout = 30 * time.Second

const sweepInterval = time.Minute

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is a development convenience; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	pgStore := store.NewPostgresStore(pool)

	// Revocation and rate-limit state live in Redis when configured, so
	// multiple instances share one view; otherwise in-process maps with
	// background sweeps.
	var revocations auth.RevocationStore
	var windows ratelimit.WindowStore
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("parse redis URL: %w", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		slog.Info("redis connected")

		revocations = auth.NewRedisRevocationStore(client)
		windows = ratelimit.NewRedisWindowStore(client)
	} else {
		memRevocations := auth.NewMemoryRevocationStore()
		memRevocations.StartSweeper(ctx, sweepInterval)
		memWindows := ratelimit.NewMemoryWindowStore()
		memWindows.StartSweeper(ctx, sweepInterval)

		revocations = memRevocations
		windows = memWindows
	}

	codec := crypto.NewCodec(cfg.Encryption.Key)
	if !codec.Enabled() {
		slog.Warn("ENCRYPTION_KEY not set; conversion bodies will be stored as tagged plaintext")
	}

	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, revocations)
	keys := auth.NewAPIKeyService(pgStore)
	limiter := ratelimit.NewLimiter(windows)

	// The browser itself starts lazily on the first conversion.
	renderer := render.NewRenderer(cfg.Render)
	defer renderer.Close()

	writer := history.NewWriter(pgStore, codec)
	metrics := telemetry.New()

	if err := ensureAdmin(ctx, pgStore, cfg.Auth); err != nil {
		return fmt.Errorf("ensure admin account: %w", err)
	}

	authDeps := handler.AuthDeps{
		Store:        pgStore,
		Tokens:       tokens,
		TokenTTL:     cfg.Auth.TokenTTL,
		SecureCookie: !cfg.IsDevelopment(),
	}

	deps := api.Dependencies{
		Auth:      mw.NewAuth(tokens, keys),
		RateLimit: mw.NewRateLimit(limiter, metrics),

		HealthHandler:  healthHandler(pgStore),
		MetricsHandler: metrics.Handler(),

		LoginHandler:          handler.NewLoginHandler(authDeps),
		RegisterHandler:       handler.NewRegisterHandler(authDeps),
		LogoutHandler:         handler.NewLogoutHandler(authDeps),
		MeHandler:             handler.NewMeHandler(),
		ChangePasswordHandler: handler.NewChangePasswordHandler(authDeps),

		ConvertHandler: handler.NewConvertHandler(handler.ConvertDeps{
			Renderer:     renderer,
			History:      writer,
			Metrics:      metrics,
			DefaultWidth: cfg.Render.DefaultWidth,
			MaxWidth:     cfg.Render.MaxWidth,
			MaxHeight:    cfg.Render.MaxHeight,
			Development:  cfg.IsDevelopment(),
		}),

		ListConversionsHandler:  handler.NewListConversionsHandler(writer),
		DeleteConversionHandler: handler.NewDeleteConversionHandler(writer),

		CreateKeyHandler:     handler.NewCreateKeyHandler(keys),
		ListKeysHandler:      handler.NewListKeysHandler(pgStore),
		DeactivateKeyHandler: handler.NewDeactivateKeyHandler(pgStore),

		AdminListUsersHandler:        handler.NewAdminListUsersHandler(pgStore),
		AdminCreateUserHandler:       handler.NewAdminCreateUserHandler(pgStore),
		AdminDeleteUserHandler:       handler.NewAdminDeleteUserHandler(pgStore),
		AdminListInvitationsHandler:  handler.NewAdminListInvitationsHandler(pgStore),
		AdminCreateInvitationHandler: handler.NewAdminCreateInvitationHandler(pgStore),
		AdminDeleteInvitationHandler: handler.NewAdminDeleteInvitationHandler(pgStore),
		AdminGetSettingsHandler:      handler.NewAdminGetSettingsHandler(pgStore),
		AdminUpdateSettingsHandler:   handler.NewAdminUpdateSettingsHandler(pgStore),
	}

	router := api.NewRouter(deps)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// ensureAdmin bootstraps or repairs the admin account named in the
// environment. With no admin credentials configured it does nothing.
func ensureAdmin(ctx context.Context, s store.Store, cfg config.AuthConfig) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}

	_, err := s.GetUserByEmail(ctx, cfg.AdminEmail)
	if err == nil {
		return s.SetUserAdmin(ctx, cfg.AdminEmail, true)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	hash, err := auth.HashPassword(cfg.AdminPassword)
	if err != nil {
		return err
	}
	if _, err := s.CreateUser(ctx, cfg.AdminEmail, hash, true); err != nil {
		return err
	}
	slog.Info("admin account created", "email", cfg.AdminEmail)
	return nil
}

// healthHandler checks database connectivity.
func healthHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.Ping(r.Context()); err != nil {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"Database unreachable", nil)
			return
		}
		response.JSON(w, map[string]any{"status": "ok"})
	}
}
