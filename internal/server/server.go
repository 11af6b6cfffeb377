package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/activity-api/internal/config"
	"github.com/noah-isme/activity-api/internal/handler"
	"github.com/noah-isme/activity-api/internal/middleware"
	"github.com/noah-isme/activity-api/internal/repository"
	"github.com/noah-isme/activity-api/internal/router"
	"github.com/noah-isme/activity-api/internal/service"
	"github.com/noah-isme/activity-api/internal/utils"
	"github.com/noah-isme/activity-api/pkg/events"
	"github.com/noah-isme/activity-api/pkg/token"
)

// Options carries the infrastructure the HTTP application is built on.
type Options struct {
	Config    config.Config
	DB        *gorm.DB
	Redis     *redis.Client
	Publisher events.Publisher
	Logger    zerolog.Logger
}

// New wires repositories, services and handlers into a fiber application.
func New(opts Options) *fiber.App {
	cfg := opts.Config
	logger := opts.Logger
	debug := cfg.IsDevelopment()

	validate := utils.NewValidator()
	tokens := token.NewManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)

	userRepo := repository.NewUserRepository(opts.DB)
	activityRepo := repository.NewActivityRepository(opts.DB)

	authService := service.NewAuthService(userRepo, tokens, validate, logger)
	userService := service.NewUserService(userRepo, validate, logger)
	activityService := service.NewActivityService(activityRepo, opts.Redis, cfg.StatsCacheTTL, opts.Publisher, validate, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		ErrorHandler: errorHandler(logger, debug),
	})

	middleware.Register(app, middleware.Config{
		Logger:       &logger,
		AllowOrigins: cfg.CORSAllowOrigin,
		AccessLog:    debug,
	})
	router.Register(app, cfg, router.Dependencies{
		AuthHandler:     handler.NewAuthHandler(authService, logger, debug),
		UserHandler:     handler.NewUserHandler(userService, logger, debug),
		ActivityHandler: handler.NewActivityHandler(activityService, logger, cfg.AppVersion, debug),
		JWTMiddleware:   middleware.JWTProtected(tokens),
		AuthRateLimiter: middleware.RateLimit("auth", cfg.AuthRateLimit, cfg.AuthRateWindow),
	})

	return app
}

// errorHandler renders errors that escape handlers using the response envelope.
func errorHandler(logger zerolog.Logger, debug bool) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return utils.SendError(c, fiberErr.Code, fiberErr.Message)
		}

		logger.Error().Err(err).Str("path", c.Path()).Str("correlation_id", middleware.GetCorrelationID(c)).Msg("unhandled error")
		return utils.ServerError(c, "Server error", err, debug)
	}
}
