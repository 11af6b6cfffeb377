package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/noah-isme/activity-api/internal/dto"
	"github.com/noah-isme/activity-api/internal/models"
	"github.com/noah-isme/activity-api/internal/repository"
)

// UserService exposes the administrative user operations.
type UserService interface {
	Dashboard(ctx context.Context) (dto.AdminDashboardResponse, error)
	Create(ctx context.Context, payload dto.UserCreateRequest) (dto.UserCreateResponse, error)
	List(ctx context.Context, req dto.UserListRequest) (dto.UserListResponse, error)
	UpdateAccess(ctx context.Context, userID uint, payload dto.UserAccessUpdateRequest) (dto.UserResponse, error)
}

type userService struct {
	users            repository.UserRepository
	validator        *validator.Validate
	sanitizer        *bluemonday.Policy
	logger           zerolog.Logger
	generatePassword func() (string, error)
}

// NewUserService constructs the admin user service.
func NewUserService(users repository.UserRepository, validator *validator.Validate, logger zerolog.Logger) UserService {
	return &userService{
		users:            users,
		validator:        validator,
		sanitizer:        bluemonday.StrictPolicy(),
		logger:           logger.With().Str("component", "user_service").Logger(),
		generatePassword: randomPassword,
	}
}

func (s *userService) Dashboard(ctx context.Context) (dto.AdminDashboardResponse, error) {
	counts, err := s.users.CountByRole(ctx)
	if err != nil {
		return dto.AdminDashboardResponse{}, fmt.Errorf("count users: %w", err)
	}

	byRole := map[string]int64{
		models.RoleUser:      0,
		models.RoleAdmin:     0,
		models.RoleModerator: 0,
	}
	var total int64
	for _, row := range counts {
		byRole[row.Role] = row.Total
		total += row.Total
	}

	return dto.AdminDashboardResponse{
		Message:     "Welcome Admin!",
		TotalUsers:  total,
		UsersByRole: byRole,
	}, nil
}

func (s *userService) Create(ctx context.Context, payload dto.UserCreateRequest) (dto.UserCreateResponse, error) {
	payload.Email = strings.ToLower(strings.TrimSpace(payload.Email))
	payload.Name = plainText(s.sanitizer, payload.Name)
	payload.Description = plainText(s.sanitizer, payload.Description)
	if err := s.validator.Struct(payload); err != nil {
		return dto.UserCreateResponse{}, err
	}

	exists, err := s.users.ExistsByEmail(ctx, payload.Email)
	if err != nil {
		return dto.UserCreateResponse{}, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return dto.UserCreateResponse{}, ErrEmailTaken
	}

	initial, err := s.generatePassword()
	if err != nil {
		return dto.UserCreateResponse{}, fmt.Errorf("generate password: %w", err)
	}

	user := models.User{
		Name:        payload.Name,
		Email:       payload.Email,
		Age:         int(payload.Age),
		Description: payload.Description,
		Role:        models.RoleUser,
	}
	user.SetPassword(initial)

	if err := s.users.Create(ctx, &user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return dto.UserCreateResponse{}, ErrEmailTaken
		}
		return dto.UserCreateResponse{}, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info().Uint("user_id", user.ID).Msg("user created by admin")
	return dto.UserCreateResponse{
		User:            dto.NewUserResponse(user),
		InitialPassword: initial,
	}, nil
}

func (s *userService) List(ctx context.Context, req dto.UserListRequest) (dto.UserListResponse, error) {
	users, total, err := s.users.List(ctx, repository.UserFilter{
		Page:     req.Page,
		PageSize: req.PageSize,
		Role:     strings.ToLower(strings.TrimSpace(req.Role)),
	})
	if err != nil {
		return dto.UserListResponse{}, fmt.Errorf("list users: %w", err)
	}

	items := make([]dto.UserResponse, 0, len(users))
	for _, user := range users {
		items = append(items, dto.NewUserResponse(user))
	}

	pagination := dto.PaginationMeta{
		Page:       maxInt(req.Page, 1),
		PageSize:   req.PageSize,
		TotalItems: total,
		TotalPages: 1,
	}
	if req.PageSize > 0 {
		pagination.TotalPages = int(math.Ceil(float64(total) / float64(req.PageSize)))
	}

	return dto.UserListResponse{Items: items, Pagination: pagination}, nil
}

func (s *userService) UpdateAccess(ctx context.Context, userID uint, payload dto.UserAccessUpdateRequest) (dto.UserResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.UserResponse{}, err
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return dto.UserResponse{}, ErrUserNotFound
		}
		return dto.UserResponse{}, fmt.Errorf("find user: %w", err)
	}

	if payload.Role != nil {
		role := strings.ToLower(strings.TrimSpace(*payload.Role))
		if !models.IsValidRole(role) {
			return dto.UserResponse{}, ErrInvalidRole
		}
		user.Role = role
	}
	if payload.Permissions != nil {
		user.Permissions = datatypes.JSONSlice[string](normalizePermissions(payload.Permissions))
	}

	if err := s.users.Save(ctx, &user); err != nil {
		return dto.UserResponse{}, fmt.Errorf("save user: %w", err)
	}

	s.logger.Info().Uint("user_id", user.ID).Str("role", user.Role).Msg("user access updated")
	return dto.NewUserResponse(user), nil
}

func normalizePermissions(permissions []string) []string {
	seen := make(map[string]struct{}, len(permissions))
	result := make([]string, 0, len(permissions))
	for _, permission := range permissions {
		p := strings.ToLower(strings.TrimSpace(permission))
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		result = append(result, p)
	}
	return result
}

// randomPassword returns 12 hex characters from crypto/rand.
func randomPassword() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
