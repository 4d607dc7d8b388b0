package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"accounts-api/internal/auth"
	"accounts-api/internal/config"
	"accounts-api/internal/db"
	"accounts-api/internal/maintenance"
	"accounts-api/internal/media"
	"accounts-api/internal/observability"
	"accounts-api/internal/ratelimit"
	"accounts-api/internal/user"
)

const authPathPrefix = "/api/v1/auth"

type Options struct {
	LoadDotEnv    bool
	RunMigrations bool
}

type Runtime struct {
	Handler http.Handler
	Close   func() error
}

// Build wires every dependency and returns the ready-to-serve handler.
func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := observability.NewLogger()

	if err := observability.InitSentry(cfg.SentryDSN, cfg.AppEnv); err != nil {
		logger.Error("init_sentry_failed", "error", err.Error())
	}

	database, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(cfg.DBMaxOpenConns)
	database.SetMaxIdleConns(cfg.DBMaxIdleConns)
	database.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	database.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if options.RunMigrations {
		if err := db.RunMigrations(context.Background(), database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := pingRedis(redisClient); err != nil {
		_ = database.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL)
	cookies := auth.NewCookieCodec(cfg.CookieSecret, !cfg.IsDevelopment())
	authRepo := auth.NewRepository(database)
	authService := auth.NewService(authRepo, tokens, cfg.BcryptCost)
	authHandler := auth.NewHandler(authService, cookies)

	storage, err := media.NewStorage(cfg.UploadsDir)
	if err != nil {
		_ = database.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init upload storage: %w", err)
	}
	userRepo := user.NewRepository(database)
	userHandler := user.NewHandler(userRepo, storage, logger)

	cleanupHandler := maintenance.NewCleanupHandler(authRepo, logger, cfg.CronSecret, cfg.RefreshTTL)

	limiter := ratelimit.NewLimiter(redisClient)
	authPolicy := ratelimit.Policy{
		Name:    "auth",
		Points:  cfg.AuthRateLimitPoints,
		Window:  cfg.AuthRateLimitWindow,
		Block:   cfg.AuthRateLimitBlock,
		Message: "Too many login attempts, please try again later.",
	}
	generalPolicy := ratelimit.Policy{
		Name:    "general",
		Points:  cfg.GeneralRateLimitPoints,
		Window:  cfg.GeneralRateLimitWindow,
		Message: "Rate limit exceeded, please try again later.",
	}

	guard := func(next http.Handler) http.Handler {
		return auth.Guard(cookies, tokens, next)
	}
	authLimit := func(next http.Handler) http.Handler {
		return ratelimit.Middleware(limiter, authPolicy, next)
	}

	mux := http.NewServeMux()
	mux.Handle("POST "+authPathPrefix+"/register", authLimit(http.HandlerFunc(authHandler.Register)))
	mux.Handle("POST "+authPathPrefix+"/login", authLimit(http.HandlerFunc(authHandler.Login)))
	mux.HandleFunc("POST "+authPathPrefix+"/refresh", authHandler.Refresh)
	mux.Handle("GET "+authPathPrefix+"/logout", guard(http.HandlerFunc(authHandler.Logout)))
	mux.Handle("DELETE "+authPathPrefix+"/delete", guard(http.HandlerFunc(authHandler.Delete)))
	mux.Handle("PATCH "+authPathPrefix+"/update", guard(http.HandlerFunc(authHandler.UpdateProfile)))
	mux.Handle("PATCH "+authPathPrefix+"/change-password", authLimit(guard(http.HandlerFunc(authHandler.ChangePassword))))

	mux.Handle("POST /api/v1/upload-image", guard(http.HandlerFunc(userHandler.UploadImage)))
	mux.Handle("DELETE /api/v1/delete-image/{imageName}", guard(http.HandlerFunc(userHandler.DeleteImage)))
	mux.Handle("GET /api/v1/images", guard(http.HandlerFunc(userHandler.ListImages)))

	mux.Handle("GET /uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(storage.Dir()))))
	mux.HandleFunc("GET /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("GET /health", healthHandler(database, redisClient))

	handler := observability.RecoverMiddleware(logger,
		observability.RequestLoggingMiddleware(logger,
			ratelimit.GeneralMiddleware(limiter, generalPolicy, authPathPrefix, mux)))

	return &Runtime{
		Handler: handler,
		Close: func() error {
			observability.FlushSentry()
			_ = redisClient.Close()
			return database.Close()
		},
	}, nil
}

func pingRedis(client *redis.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return client.Ping(ctx).Err()
}

func healthHandler(database *sql.DB, redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		health := "ok"
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			health = "degraded"
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			status = http.StatusServiceUnavailable
			health = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": health,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}
