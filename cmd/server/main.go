package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/yukikurage/task-tracker-api/internal/auth"
	"github.com/yukikurage/task-tracker-api/internal/config"
	"github.com/yukikurage/task-tracker-api/internal/database"
	"github.com/yukikurage/task-tracker-api/internal/handlers"
	"github.com/yukikurage/task-tracker-api/internal/logger"
	"github.com/yukikurage/task-tracker-api/internal/repository"
	"github.com/yukikurage/task-tracker-api/internal/services"
	"github.com/yukikurage/task-tracker-api/internal/utils"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Init(logger.Options{})
		log := logger.Get()
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger.Init(logger.Options{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	log := logger.Get()

	gin.SetMode(cfg.GinMode)

	// Connect to database
	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	hasher, err := auth.NewPasswordHasher(cfg.Auth.PasswordHasher)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid password hasher")
	}

	if err := database.SeedSuperadmin(db, cfg.Superadmin, hasher); err != nil {
		log.Fatal().Err(err).Msg("failed to seed superadmin")
	}

	secret := []byte(cfg.Auth.JWTSecret)
	if len(secret) == 0 {
		secret, err = utils.GenerateSecret(32)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to generate signing secret")
		}
		log.Warn().Msg("JWT_SECRET is not set; using a random key, sessions will not survive a restart")
	}
	tokens := auth.NewTokenService(secret, cfg.Auth.TokenTTL)
	log.Info().Dur("token_ttl", tokens.TTL()).Msg("token service ready")

	// Optional token denylist
	var (
		redisClient *redis.Client
		denylist    auth.Denylist
	)
	if cfg.Redis.Addr != "" {
		redisClient, err = auth.ConnectRedis(context.Background(), auth.RedisConfig{
			Addr: cfg.Redis.Addr,
			DB:   cfg.Redis.DB,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		denylist = auth.NewRedisDenylist(redisClient)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("token denylist enabled")
	}

	userRepo := repository.NewUserRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	commentRepo := repository.NewCommentRepository(db)

	authOpts := []services.AuthOption{services.WithRoleSelection(cfg.Auth.AllowRegistrationRole)}
	if denylist != nil {
		authOpts = append(authOpts, services.WithDenylist(denylist))
	}
	authService := services.NewAuthService(userRepo, hasher, tokens, authOpts...)
	userService := services.NewUserService(userRepo, hasher, authService)
	taskService := services.NewTaskService(taskRepo, userRepo, commentRepo)

	router, err := handlers.NewRouter(handlers.RouterDeps{
		DB:          db,
		Redis:       redisClient,
		Denylist:    denylist,
		Tokens:      tokens,
		UserRepo:    userRepo,
		AuthService: authService,
		UserService: userService,
		TaskService: taskService,
		Cookies: handlers.CookieConfig{
			Secure: cfg.Auth.CookieSecure,
			Domain: cfg.Auth.CookieDomain,
		},
		AllowedOrigins: cfg.AllowedOrigins(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build router")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
