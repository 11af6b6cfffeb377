package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/activity-api/internal/dto"
	"github.com/noah-isme/activity-api/internal/middleware"
	"github.com/noah-isme/activity-api/internal/models"
	"github.com/noah-isme/activity-api/internal/service"
	"github.com/noah-isme/activity-api/internal/utils"
)

const healthPingTimeout = 2 * time.Second

// ActivityHandler exposes activity logging and analytics endpoints.
type ActivityHandler struct {
	service service.ActivityService
	logger  zerolog.Logger
	version string
	debug   bool
}

// NewActivityHandler constructs the handler.
func NewActivityHandler(service service.ActivityService, logger zerolog.Logger, version string, debug bool) *ActivityHandler {
	return &ActivityHandler{
		service: service,
		logger:  logger.With().Str("component", "activity_handler").Logger(),
		version: version,
		debug:   debug,
	}
}

// RegisterPublic attaches the unauthenticated activity routes.
func (h *ActivityHandler) RegisterPublic(router fiber.Router) {
	router.Get("/health", h.health)
}

// Register attaches activity routes to an authenticated router group.
func (h *ActivityHandler) Register(router fiber.Router) {
	router.Post("", h.create)
	router.Post("/batch", h.createBatch)
	router.Get("", h.list)
	router.Get("/stats", h.stats)
	router.Get("/popular-pages", h.popularPages)
	router.Get("/hourly", h.hourly)
	router.Get("/user/:userId", h.listByUser)
	router.Delete("/cleanup", middleware.RequirePermission(models.PermissionActivityCleanup), h.cleanup)
}

func (h *ActivityHandler) create(c *fiber.Ctx) error {
	var payload dto.ActivityCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	response, err := h.service.Log(c.UserContext(), payload, c.IP())
	if err != nil {
		if handled, resp := failActivityValidation(c, err); handled {
			return resp
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to log activity")
		return utils.ServerError(c, "Failed to log activity", err, h.debug)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "Activity logged successfully", response)
}

func (h *ActivityHandler) createBatch(c *fiber.Ctx) error {
	var payload dto.ActivityBatchRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "Activities must be a non-empty array")
	}

	response, err := h.service.LogBatch(c.UserContext(), payload, c.IP())
	if err != nil {
		if handled, resp := failActivityValidation(c, err); handled {
			return resp
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to log activity batch")
		return utils.ServerError(c, "Failed to log batch activities", err, h.debug)
	}

	message := fmt.Sprintf("%d activities logged successfully", response.Count)
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, message, response)
}

func (h *ActivityHandler) list(c *fiber.Ctx) error {
	limit, offset, err := parsePaging(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	window, err := parseWindow(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	req := dto.ActivityListRequest{
		Limit:     limit,
		Offset:    offset,
		StartDate: window.StartDate,
		EndDate:   window.EndDate,
		Method:    c.Query("method"),
		Pathname:  c.Query("pathname"),
		IP:        c.Query("ip"),
		SessionID: c.Query("sessionId"),
		SortBy:    strings.TrimSpace(c.Query("sortBy")),
		SortOrder: strings.TrimSpace(c.Query("sortOrder")),
	}

	if raw := strings.TrimSpace(c.Query("userId")); raw != "" {
		userID, err := parseQueryInt(c, "userId")
		if err != nil || userID <= 0 {
			return utils.SendError(c, fiber.StatusBadRequest, "Invalid userId")
		}
		id := uint(userID)
		req.UserID = &id
	}

	response, err := h.service.List(c.UserContext(), req)
	if err != nil {
		if handled, resp := failActivityValidation(c, err); handled {
			return resp
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to list activities")
		return utils.ServerError(c, "Failed to fetch activities", err, h.debug)
	}

	return utils.SendSuccess(c, "Activities fetched successfully", response)
}

func (h *ActivityHandler) stats(c *fiber.Ctx) error {
	window, err := parseWindow(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	response, err := h.service.Stats(c.UserContext(), dto.ActivityStatsRequest{
		ActivityWindowRequest: window,
		GroupBy:               c.Query("groupBy"),
	})
	if err != nil {
		if handled, resp := failActivityValidation(c, err); handled {
			return resp
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to compute activity stats")
		return utils.ServerError(c, "Failed to fetch activity statistics", err, h.debug)
	}

	return utils.SendSuccess(c, "Activity statistics", response)
}

func (h *ActivityHandler) popularPages(c *fiber.Ctx) error {
	window, err := parseWindow(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	limit, err := parseQueryInt(c, "limit")
	if err != nil || (c.Query("limit") != "" && (limit < 1 || limit > service.MaxPopularLimit)) {
		return utils.SendError(c, fiber.StatusBadRequest, fmt.Sprintf("Invalid limit: must be between 1 and %d", service.MaxPopularLimit))
	}

	response, err := h.service.PopularPages(c.UserContext(), dto.PopularPagesRequest{
		ActivityWindowRequest: window,
		Limit:                 limit,
	})
	if err != nil {
		if handled, resp := failActivityValidation(c, err); handled {
			return resp
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to compute popular pages")
		return utils.ServerError(c, "Failed to fetch popular pages", err, h.debug)
	}

	return utils.SendSuccess(c, "Popular pages", response)
}

func (h *ActivityHandler) hourly(c *fiber.Ctx) error {
	window, err := parseWindow(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	response, err := h.service.Hourly(c.UserContext(), window)
	if err != nil {
		if handled, resp := failActivityValidation(c, err); handled {
			return resp
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to compute hourly activity")
		return utils.ServerError(c, "Failed to fetch hourly activity", err, h.debug)
	}

	return utils.SendSuccess(c, "Hourly activity", response)
}

func (h *ActivityHandler) listByUser(c *fiber.Ctx) error {
	userID, err := parseIDParam(c, "userId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "Invalid userId")
	}

	limit, offset, err := parsePaging(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	response, err := h.service.ListByUser(c.UserContext(), userID, limit, offset)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Uint("target_user_id", userID).Msg("failed to list user activities")
		return utils.ServerError(c, "Failed to fetch user activities", err, h.debug)
	}

	return utils.SendSuccess(c, "User activities fetched successfully", response)
}

func (h *ActivityHandler) cleanup(c *fiber.Ctx) error {
	days, err := parseQueryInt(c, "days")
	if err != nil || (c.Query("days") != "" && days < 1) {
		return utils.SendError(c, fiber.StatusBadRequest, "days must be a positive integer")
	}

	response, err := h.service.Cleanup(c.UserContext(), dto.ActivityCleanupRequest{
		Days:   days,
		DryRun: strings.EqualFold(strings.TrimSpace(c.Query("dryRun")), "true"),
	})
	if err != nil {
		if handled, resp := failActivityValidation(c, err); handled {
			return resp
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to clean up activities")
		return utils.ServerError(c, "Failed to cleanup activities", err, h.debug)
	}

	requestLogger(h.logger, c).Info().
		Uint("user_id", userIDFromContext(c)).
		Bool("dry_run", response.DryRun).
		Int64("matched", response.MatchedCount).
		Msg("activity cleanup executed")
	return utils.SendSuccess(c, response.Message, response)
}

func (h *ActivityHandler) health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), healthPingTimeout)
	defer cancel()

	payload := dto.ActivityHealthResponse{
		Timestamp: time.Now().UTC(),
		Version:   h.version,
	}

	if err := h.service.Ping(ctx); err != nil {
		payload.Status = "unhealthy"
		payload.Database = "disconnected"
		payload.Error = err.Error()
		return c.Status(fiber.StatusServiceUnavailable).JSON(utils.APIResponse{
			Success: false,
			Message: "Service unhealthy",
			Data:    payload,
			Error:   err.Error(),
		})
	}

	payload.Status = "healthy"
	payload.Database = "connected"
	return utils.SendSuccess(c, "Service healthy", payload)
}

func parsePaging(c *fiber.Ctx) (int, int, error) {
	limit, err := parseQueryInt(c, "limit")
	if err != nil || (c.Query("limit") != "" && (limit < 1 || limit > service.MaxListLimit)) {
		return 0, 0, fmt.Errorf("Invalid limit: must be between 1 and %d", service.MaxListLimit)
	}
	if limit == 0 {
		limit = service.DefaultListLimit
	}

	offset, err := parseQueryInt(c, "offset")
	if err != nil || offset < 0 {
		return 0, 0, errors.New("Invalid offset: must be a non-negative integer")
	}

	return limit, offset, nil
}

func parseWindow(c *fiber.Ctx) (dto.ActivityWindowRequest, error) {
	start, err := parseQueryTime(c, "startDate")
	if err != nil {
		return dto.ActivityWindowRequest{}, errors.New("Invalid startDate")
	}
	end, err := parseQueryTime(c, "endDate")
	if err != nil {
		return dto.ActivityWindowRequest{}, errors.New("Invalid endDate")
	}
	return dto.ActivityWindowRequest{StartDate: start, EndDate: end}, nil
}
