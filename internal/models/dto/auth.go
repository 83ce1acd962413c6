package dto

import (
	"time"

	"github.com/Hata214/BackEnd/internal/models"
)

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Identifier string `json:"identifier"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

type LoginResponse struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	Role      models.Role    `json:"role"`
	User      models.Account `json:"user"`
}

// LoginFailure is the body detail for rejected login attempts.
type LoginFailure struct {
	Reason            string `json:"reason"`
	AttemptsRemaining *int   `json:"attempts_remaining,omitempty"`
	MinutesRemaining  *int   `json:"minutes_remaining,omitempty"`
}

type RoleChangeRequest struct {
	Identifier string `json:"identifier"`
	Email      string `json:"email"`
}

type RoleChangeResponse struct {
	ID    string      `json:"id"`
	Email string      `json:"email"`
	Role  models.Role `json:"role"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}
