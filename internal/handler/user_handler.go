package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/activity-api/internal/dto"
	"github.com/noah-isme/activity-api/internal/middleware"
	"github.com/noah-isme/activity-api/internal/models"
	"github.com/noah-isme/activity-api/internal/service"
	"github.com/noah-isme/activity-api/internal/utils"
)

// UserHandler exposes the administrative user routes.
type UserHandler struct {
	service service.UserService
	logger  zerolog.Logger
	debug   bool
}

// NewUserHandler constructs the handler.
func NewUserHandler(service service.UserService, logger zerolog.Logger, debug bool) *UserHandler {
	return &UserHandler{
		service: service,
		logger:  logger.With().Str("component", "user_handler").Logger(),
		debug:   debug,
	}
}

// Register attaches user routes to an authenticated router group.
func (h *UserHandler) Register(router fiber.Router) {
	router.Get("/admin/dashboard", middleware.RequireRole(models.RoleAdmin), h.dashboard)
	router.Get("", middleware.WithAuth(h.list, middleware.AuthOptions{Permission: models.PermissionUsersRead}))
	router.Post("", middleware.WithAuth(h.create, middleware.AuthOptions{Permission: models.PermissionUsersCreate}))
	router.Patch("/:id/access", middleware.WithAuth(h.updateAccess, middleware.AuthOptions{Role: middleware.AuthRoleAdmin}))
}

func (h *UserHandler) dashboard(c *fiber.Ctx) error {
	response, err := h.service.Dashboard(c.UserContext())
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to build admin dashboard")
		return utils.ServerError(c, "Server error", err, h.debug)
	}
	return utils.SendSuccess(c, response.Message, response)
}

func (h *UserHandler) list(c *fiber.Ctx) error {
	page, err := parseQueryInt(c, "page")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page")
	}
	if page <= 0 {
		page = 1
	}

	pageSize, err := parseQueryInt(c, "page_size")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page size")
	}
	if pageSize <= 0 {
		pageSize = 25
	} else if pageSize > 200 {
		pageSize = 200
	}

	response, err := h.service.List(c.UserContext(), dto.UserListRequest{
		Page:     page,
		PageSize: pageSize,
		Role:     c.Query("role"),
	})
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to list users")
		return utils.ServerError(c, "Server error", err, h.debug)
	}

	return utils.SendSuccess(c, "Users fetched successfully", response)
}

func (h *UserHandler) create(c *fiber.Ctx) error {
	var payload dto.UserCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "Invalid input")
	}

	response, err := h.service.Create(c.UserContext(), payload)
	if err != nil {
		switch {
		case isValidationError(err):
			return failValidation(c, err)
		case errors.Is(err, service.ErrEmailTaken):
			return utils.SendError(c, fiber.StatusBadRequest, "User already exists")
		default:
			requestLogger(h.logger, c).Error().Err(err).Msg("failed to create user")
			return utils.ServerError(c, "Server error", err, h.debug)
		}
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "User created successfully", response)
}

func (h *UserHandler) updateAccess(c *fiber.Ctx) error {
	userID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid user id")
	}

	var payload dto.UserAccessUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "Invalid input")
	}

	response, err := h.service.UpdateAccess(c.UserContext(), userID, payload)
	if err != nil {
		switch {
		case isValidationError(err):
			return failValidation(c, err)
		case errors.Is(err, service.ErrInvalidRole):
			return utils.SendError(c, fiber.StatusBadRequest, "Invalid role")
		case errors.Is(err, service.ErrUserNotFound):
			return utils.SendError(c, fiber.StatusNotFound, "User not found")
		default:
			requestLogger(h.logger, c).Error().Err(err).Msg("failed to update user access")
			return utils.ServerError(c, "Server error", err, h.debug)
		}
	}

	return utils.SendSuccess(c, "User access updated", response)
}
