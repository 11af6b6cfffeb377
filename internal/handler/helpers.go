package handler

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/activity-api/internal/middleware"
	"github.com/noah-isme/activity-api/internal/service"
	"github.com/noah-isme/activity-api/internal/utils"
)

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

// parseQueryTime returns nil when key is absent.
func parseQueryTime(c *fiber.Ctx, key string) (*time.Time, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return nil, nil
	}
	parsed, err := service.ParseTime(value)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func parseIDParam(c *fiber.Ctx, key string) (uint, error) {
	parsed, err := strconv.ParseUint(strings.TrimSpace(c.Params(key)), 10, 64)
	if err != nil || parsed == 0 {
		return 0, errors.New("invalid id")
	}
	return uint(parsed), nil
}

func userIDFromContext(c *fiber.Ctx) uint {
	return middleware.UserID(c)
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

// failValidation answers 400 "Invalid input" with per-field details.
func failValidation(c *fiber.Ctx, err error) error {
	return utils.Fail(c, fiber.StatusBadRequest, "Invalid input", utils.ValidationDetails(err))
}

// failActivityValidation maps rejected activity input onto a 400 response.
func failActivityValidation(c *fiber.Ctx, err error) (bool, error) {
	var activityErr *service.ActivityValidationError
	if errors.As(err, &activityErr) {
		var details interface{}
		if len(activityErr.Details) > 0 {
			details = activityErr.Details
		}
		return true, utils.Fail(c, fiber.StatusBadRequest, activityErr.Message, details)
	}
	if isValidationError(err) {
		return true, failValidation(c, err)
	}
	return false, nil
}
