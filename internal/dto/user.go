package dto

import (
	"time"

	"github.com/yukikurage/task-tracker-api/internal/models"
)

// UserDTO is the public profile of an account. The password hash is never
// part of it.
type UserDTO struct {
	ID        uint64      `json:"id"`
	Email     string      `json:"email"`
	Username  string      `json:"username"`
	Role      models.Role `json:"role"`
	CreatedAt time.Time   `json:"created_at"`
}

// TokenResponse is returned by login and refresh.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
}

// ToUserDTO converts a User model to UserDTO
func ToUserDTO(user models.User) UserDTO {
	return UserDTO{
		ID:        user.ID,
		Email:     user.Email,
		Username:  user.Username,
		Role:      user.Role,
		CreatedAt: user.CreatedAt,
	}
}
