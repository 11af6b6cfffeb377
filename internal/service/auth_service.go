package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/noah-isme/activity-api/internal/dto"
	"github.com/noah-isme/activity-api/internal/models"
	"github.com/noah-isme/activity-api/internal/repository"
	"github.com/noah-isme/activity-api/pkg/token"
)

// TokenIssuer signs access tokens for authenticated users.
type TokenIssuer interface {
	Issue(subject token.Subject) (string, error)
	TTL() time.Duration
}

// AuthService handles registration, login and credential changes.
type AuthService interface {
	Register(ctx context.Context, payload dto.RegisterRequest) (dto.AuthResponse, error)
	Login(ctx context.Context, payload dto.LoginRequest) (dto.AuthResponse, error)
	Me(ctx context.Context, userID uint) (dto.UserResponse, error)
	ChangePassword(ctx context.Context, userID uint, payload dto.ChangePasswordRequest) error
}

type authService struct {
	users     repository.UserRepository
	tokens    TokenIssuer
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
}

// NewAuthService constructs the auth service.
func NewAuthService(users repository.UserRepository, tokens TokenIssuer, validator *validator.Validate, logger zerolog.Logger) AuthService {
	return &authService{
		users:     users,
		tokens:    tokens,
		validator: validator,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "auth_service").Logger(),
	}
}

func (s *authService) Register(ctx context.Context, payload dto.RegisterRequest) (dto.AuthResponse, error) {
	payload.Email = strings.ToLower(strings.TrimSpace(payload.Email))
	payload.Name = plainText(s.sanitizer, payload.Name)
	if err := s.validator.Struct(payload); err != nil {
		return dto.AuthResponse{}, err
	}

	exists, err := s.users.ExistsByEmail(ctx, payload.Email)
	if err != nil {
		return dto.AuthResponse{}, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return dto.AuthResponse{}, ErrEmailTaken
	}

	user := models.User{
		Name:  payload.Name,
		Email: payload.Email,
		Age:   int(payload.Age),
		Role:  models.RoleUser,
	}
	user.SetPassword(payload.Password)

	if err := s.users.Create(ctx, &user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return dto.AuthResponse{}, ErrEmailTaken
		}
		s.logger.Error().Err(err).Msg("failed to create user")
		return dto.AuthResponse{}, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info().Uint("user_id", user.ID).Msg("user registered")
	return s.authResponse(user)
}

func (s *authService) Login(ctx context.Context, payload dto.LoginRequest) (dto.AuthResponse, error) {
	payload.Email = strings.ToLower(strings.TrimSpace(payload.Email))
	if err := s.validator.Struct(payload); err != nil {
		return dto.AuthResponse{}, err
	}

	user, err := s.users.FindByEmail(ctx, payload.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return dto.AuthResponse{}, ErrInvalidEmail
		}
		return dto.AuthResponse{}, fmt.Errorf("find user: %w", err)
	}

	if !user.CheckPassword(payload.Password) {
		s.logger.Info().Uint("user_id", user.ID).Msg("login rejected: invalid password")
		return dto.AuthResponse{}, ErrInvalidPassword
	}

	return s.authResponse(user)
}

func (s *authService) Me(ctx context.Context, userID uint) (dto.UserResponse, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return dto.UserResponse{}, err
	}
	return dto.NewUserResponse(user), nil
}

func (s *authService) ChangePassword(ctx context.Context, userID uint, payload dto.ChangePasswordRequest) error {
	if err := s.validator.Struct(payload); err != nil {
		return err
	}

	user, err := s.findUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.CheckPassword(payload.CurrentPassword) {
		return ErrInvalidPassword
	}

	user.SetPassword(payload.NewPassword)
	if err := s.users.Save(ctx, &user); err != nil {
		return fmt.Errorf("save user: %w", err)
	}

	s.logger.Info().Uint("user_id", user.ID).Msg("password changed")
	return nil
}

func (s *authService) findUser(ctx context.Context, userID uint) (models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

func (s *authService) authResponse(user models.User) (dto.AuthResponse, error) {
	signed, err := s.tokens.Issue(token.Subject{
		UserID:      user.ID,
		Email:       user.Email,
		Role:        user.Role,
		Permissions: []string(user.Permissions),
	})
	if err != nil {
		return dto.AuthResponse{}, fmt.Errorf("issue token: %w", err)
	}

	return dto.AuthResponse{
		Token:     signed,
		ExpiresIn: int64(s.tokens.TTL() / time.Second),
		User:      dto.NewUserSummary(user),
	}, nil
}
