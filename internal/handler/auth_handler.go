package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/activity-api/internal/dto"
	"github.com/noah-isme/activity-api/internal/service"
	"github.com/noah-isme/activity-api/internal/utils"
)

// AuthHandler exposes registration, login and account endpoints.
type AuthHandler struct {
	service service.AuthService
	logger  zerolog.Logger
	debug   bool
}

// NewAuthHandler constructs the handler. debug exposes internal error text in 500 responses.
func NewAuthHandler(service service.AuthService, logger zerolog.Logger, debug bool) *AuthHandler {
	return &AuthHandler{
		service: service,
		logger:  logger.With().Str("component", "auth_handler").Logger(),
		debug:   debug,
	}
}

// RegisterPublic attaches the unauthenticated routes. limiter may be nil.
func (h *AuthHandler) RegisterPublic(router fiber.Router, limiter fiber.Handler) {
	if limiter == nil {
		limiter = func(c *fiber.Ctx) error { return c.Next() }
	}
	router.Post("/register", limiter, h.register)
	router.Post("/login", limiter, h.login)
}

// RegisterProtected attaches routes that need an authenticated user.
func (h *AuthHandler) RegisterProtected(router fiber.Router) {
	router.Get("/me", h.me)
	router.Put("/password", h.changePassword)
}

func (h *AuthHandler) register(c *fiber.Ctx) error {
	var payload dto.RegisterRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "Invalid input")
	}

	response, err := h.service.Register(c.UserContext(), payload)
	if err != nil {
		switch {
		case isValidationError(err):
			return failValidation(c, err)
		case errors.Is(err, service.ErrEmailTaken):
			return utils.SendError(c, fiber.StatusBadRequest, "Email already registered.")
		default:
			requestLogger(h.logger, c).Error().Err(err).Msg("failed to register user")
			return utils.ServerError(c, "Server error", err, h.debug)
		}
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "Registration successful", response)
}

func (h *AuthHandler) login(c *fiber.Ctx) error {
	var payload dto.LoginRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "Invalid input")
	}

	response, err := h.service.Login(c.UserContext(), payload)
	if err != nil {
		switch {
		case isValidationError(err):
			return failValidation(c, err)
		case errors.Is(err, service.ErrInvalidEmail):
			return utils.SendError(c, fiber.StatusBadRequest, "Invalid Email")
		case errors.Is(err, service.ErrInvalidPassword):
			return utils.SendError(c, fiber.StatusBadRequest, "Invalid Password")
		default:
			requestLogger(h.logger, c).Error().Err(err).Msg("failed to log in user")
			return utils.ServerError(c, "Server error", err, h.debug)
		}
	}

	return utils.SendSuccess(c, "Login successful", response)
}

func (h *AuthHandler) me(c *fiber.Ctx) error {
	user, err := h.service.Me(c.UserContext(), userIDFromContext(c))
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "User not found")
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to load current user")
		return utils.ServerError(c, "Server error", err, h.debug)
	}

	return utils.SendSuccess(c, "Current user", user)
}

func (h *AuthHandler) changePassword(c *fiber.Ctx) error {
	var payload dto.ChangePasswordRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "Invalid input")
	}

	err := h.service.ChangePassword(c.UserContext(), userIDFromContext(c), payload)
	if err != nil {
		switch {
		case isValidationError(err):
			return failValidation(c, err)
		case errors.Is(err, service.ErrInvalidPassword):
			return utils.SendError(c, fiber.StatusBadRequest, "Invalid Password")
		case errors.Is(err, service.ErrUserNotFound):
			return utils.SendError(c, fiber.StatusNotFound, "User not found")
		default:
			requestLogger(h.logger, c).Error().Err(err).Msg("failed to change password")
			return utils.ServerError(c, "Server error", err, h.debug)
		}
	}

	return utils.SendSuccess(c, "Password updated", nil)
}
