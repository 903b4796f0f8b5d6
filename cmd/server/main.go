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

	"github.com/google/uuid"

	"github.com/HammerMeetNail/chessticulate/internal/config"
	"github.com/HammerMeetNail/chessticulate/internal/database"
	"github.com/HammerMeetNail/chessticulate/internal/handlers"
	"github.com/HammerMeetNail/chessticulate/internal/logging"
	"github.com/HammerMeetNail/chessticulate/internal/middleware"
	"github.com/HammerMeetNail/chessticulate/internal/realtime"
	"github.com/HammerMeetNail/chessticulate/internal/services"
	"github.com/HammerMeetNail/chessticulate/internal/services/worker"
	"github.com/HammerMeetNail/chessticulate/internal/tracing"
)

func main() {
	if err := run(); err != nil {
		logging.Error("Application error", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}

func run() error {
	logger := logging.New()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	level := logging.ParseLevel(cfg.LogLevel)
	logger.SetLevel(level)
	logging.SetDefaultLevel(level)

	logger.Info("Starting chessticulate server...", map[string]interface{}{"env": cfg.Server.Environment})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(tctx); err != nil {
			logger.Warn("Tracer shutdown failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	// Connect to PostgreSQL
	logger.Info("Connecting to PostgreSQL", map[string]interface{}{
		"host": cfg.Database.Host,
		"port": cfg.Database.Port,
	})
	db, err := database.NewPostgresDB(cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL")

	// Run migrations
	logger.Info("Running database migrations...")
	migrator, err := database.NewMigrator(cfg.Database.DSN(), database.DefaultMigrationsPath)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		return fmt.Errorf("running migrations: %w", err)
	}
	_ = migrator.Close()
	logger.Info("Migrations completed")

	// Connect to Redis
	logger.Info("Connecting to Redis", map[string]interface{}{
		"addr": cfg.Redis.Addr(),
	})
	redisDB, err := database.NewRedisDB(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() { _ = redisDB.Close() }()
	logger.Info("Connected to Redis")

	// Initialize services
	dbAdapter := services.NewPoolAdapter(db.Pool)
	redisAdapter := services.NewRedisAdapter(redisDB.Client)

	ttl := services.TTLPolicy{
		InvitationTTL: cfg.Game.InvitationTTL,
		MoveTimeout:   cfg.Game.MoveTimeout,
	}

	userService := services.NewUserService(dbAdapter)
	authService := services.NewAuthService(redisAdapter, jwtSecret(cfg, logger), time.Duration(cfg.Auth.JWTTTLDays)*24*time.Hour)

	cache, err := services.NewGameCache(cfg.Game.CacheSize)
	if err != nil {
		return err
	}

	hub := realtime.NewHub(authService)
	emailSink := services.NewEmailSink(services.NewEmailProvider(&cfg.Email), dbAdapter, cfg.Email.BaseURL)
	notifier := services.NewNotifier(hub, emailSink)
	notifier.SetAsyncContext(ctx)

	dispatcher := services.NewMoveDispatcher(worker.NewClient(cfg.Worker.BaseURL), redisAdapter, services.DispatcherConfig{
		CallTimeout:    cfg.Worker.CallTimeout,
		MaxAttempts:    cfg.Worker.MaxAttempts,
		BackoffInitial: cfg.Worker.BackoffInitial,
		BackoffMax:     cfg.Worker.BackoffMax,
	})

	repo := services.NewGameRepository(dbAdapter)
	gameService := services.NewGameService(repo, dispatcher, ttl, services.GameServiceOptions{
		Cache:   cache,
		Events:  notifier,
		Journal: redisAdapter,
	})
	invitationService := services.NewInvitationService(dbAdapter, ttl, cfg.Game.OneActiveGamePerUser, notifier)
	reconciler := services.NewReconciler(repo, redisAdapter, cache, notifier)

	sweeper := services.NewSweeper(invitationService, gameService, reconciler, redisAdapter, cfg.Game.SweepInterval)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	go hub.Run(ctx)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(db, redisDB)
	authHandler := handlers.NewAuthHandler(userService, authService)
	userHandler := handlers.NewUserHandler(userService, authService)
	invitationHandler := handlers.NewInvitationHandler(invitationService)
	gameHandler := handlers.NewGameHandler(gameService)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(authService)
	securityHeaders := middleware.NewSecurityHeaders(!cfg.Server.IsDevelopment())
	requestLogger := middleware.NewRequestLogger(logger)

	authLimiter := middleware.NewAuthRateLimiter(redisDB.Client, cfg.RateLimit.AuthPerMinute)
	moveLimiter := middleware.NewMoveRateLimiter(redisDB.Client, cfg.RateLimit.MovesPerMinute)
	inviteLimiter := middleware.NewRateLimiter(redisDB.Client, cfg.RateLimit.MovesPerMinute, time.Minute, "ratelimit:invitations:", middleware.KeyByUser, true)

	requireAuth := func(h http.HandlerFunc) http.Handler {
		return authMiddleware.RequireAuth(h)
	}

	// Set up router
	mux := http.NewServeMux()

	// Health endpoints (no auth, no rate limit)
	mux.HandleFunc("GET /health", healthHandler.Health)
	mux.HandleFunc("GET /ready", healthHandler.Ready)

	// Auth endpoints
	mux.Handle("POST /api/auth/register", authLimiter.Middleware(http.HandlerFunc(authHandler.Register)))
	mux.Handle("POST /api/auth/login", authLimiter.Middleware(http.HandlerFunc(authHandler.Login)))
	mux.Handle("POST /api/auth/logout", requireAuth(authHandler.Logout))

	// User endpoints
	mux.Handle("GET /api/users/me", requireAuth(userHandler.Me))
	mux.Handle("DELETE /api/users/me", requireAuth(userHandler.DeleteMe))
	mux.Handle("GET /api/users", requireAuth(userHandler.List))
	mux.HandleFunc("GET /api/users/{id}", userHandler.Get)

	// Invitation endpoints
	mux.Handle("POST /api/invitations", authMiddleware.RequireAuth(inviteLimiter.Middleware(http.HandlerFunc(invitationHandler.Create))))
	mux.Handle("GET /api/invitations", requireAuth(invitationHandler.List))
	mux.Handle("GET /api/invitations/{id}", requireAuth(invitationHandler.Get))
	mux.Handle("POST /api/invitations/{id}/accept", requireAuth(invitationHandler.Accept))
	mux.Handle("POST /api/invitations/{id}/decline", requireAuth(invitationHandler.Decline))
	mux.Handle("POST /api/invitations/{id}/cancel", requireAuth(invitationHandler.Cancel))

	// Game endpoints
	mux.HandleFunc("GET /api/games", gameHandler.List)
	mux.HandleFunc("GET /api/games/{id}", gameHandler.Get)
	mux.HandleFunc("GET /api/games/{id}/moves", gameHandler.Moves)
	mux.Handle("POST /api/games/{id}/moves", authMiddleware.RequireAuth(moveLimiter.Middleware(http.HandlerFunc(gameHandler.SubmitMove))))
	mux.Handle("POST /api/games/{id}/resign", requireAuth(gameHandler.Resign))
	mux.Handle("POST /api/games/{id}/suggest", authMiddleware.RequireAuth(moveLimiter.Middleware(http.HandlerFunc(gameHandler.Suggest))))
	mux.HandleFunc("GET /api/moves", gameHandler.ListMoves)

	// Realtime events (authenticates its own token)
	mux.HandleFunc("GET /api/events", hub.HandleWS)

	// Build middleware chain (order matters: outermost first)
	var handler http.Handler = mux
	handler = authMiddleware.Authenticate(handler)
	handler = securityHeaders.Apply(handler)
	handler = requestLogger.Apply(handler)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// No read or write timeout: both would cut long-lived event streams.
		IdleTimeout: 60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server listening", map[string]interface{}{
			"addr": addr,
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Server is shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	server.SetKeepAlivesEnabled(false)
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Could not gracefully shutdown the server", map[string]interface{}{
			"error": err.Error(),
		})
	}

	logger.Info("Server stopped")
	return nil
}

// jwtSecret returns the configured secret. Development may run without one;
// tokens then do not survive a restart.
func jwtSecret(cfg *config.Config, logger *logging.Logger) string {
	if cfg.Auth.JWTSecret != "" {
		return cfg.Auth.JWTSecret
	}
	logger.Warn("JWT_SECRET not set, using an ephemeral development secret")
	return uuid.NewString() + uuid.NewString()
}
