package dto

import (
	"time"

	"github.com/noah-isme/activity-api/internal/models"
)

// UserResponse serializes a user without credentials.
type UserResponse struct {
	ID          uint      `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Age         int       `json:"age"`
	Description string    `json:"description"`
	Role        string    `json:"role"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewUserResponse converts a user model into a DTO.
func NewUserResponse(user models.User) UserResponse {
	permissions := []string(user.Permissions)
	if permissions == nil {
		permissions = []string{}
	}

	return UserResponse{
		ID:          user.ID,
		Name:        user.Name,
		Email:       user.Email,
		Age:         user.Age,
		Description: user.Description,
		Role:        user.Role,
		Permissions: permissions,
		CreatedAt:   user.CreatedAt,
		UpdatedAt:   user.UpdatedAt,
	}
}

// UserCreateRequest is the admin payload for creating a user with a generated password.
type UserCreateRequest struct {
	Name        string      `json:"name" validate:"required,min=1"`
	Email       string      `json:"email" validate:"required,email"`
	Age         FlexibleInt `json:"age" validate:"gte=0"`
	Description string      `json:"description" validate:"max=2000"`
}

// UserCreateResponse is returned after an admin creates a user.
type UserCreateResponse struct {
	User            UserResponse `json:"user"`
	InitialPassword string       `json:"initialPassword"`
}

// UserListRequest defines pagination for listing users.
type UserListRequest struct {
	Page     int
	PageSize int
	Role     string
}

// UserListResponse wraps a paginated user list.
type UserListResponse struct {
	Items      []UserResponse `json:"items"`
	Pagination PaginationMeta `json:"pagination"`
}

// UserAccessUpdateRequest patches role and permissions of a user.
type UserAccessUpdateRequest struct {
	Role        *string  `json:"role" validate:"omitempty,oneof=user admin moderator"`
	Permissions []string `json:"permissions" validate:"omitempty,dive,required,max=64"`
}

// AdminDashboardResponse is returned by the admin dashboard route.
type AdminDashboardResponse struct {
	Message     string           `json:"message"`
	TotalUsers  int64            `json:"totalUsers"`
	UsersByRole map[string]int64 `json:"usersByRole"`
}
