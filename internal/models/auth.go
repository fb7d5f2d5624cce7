package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RegisterRequest holds the registration payload. VAO signups additionally
// require the shared secret key.
type RegisterRequest struct {
	Name      string   `json:"name" validate:"required"`
	Mobile    string   `json:"mobile" validate:"required,min=10"`
	Password  string   `json:"password" validate:"required,min=6"`
	Role      UserRole `json:"role" validate:"required"`
	Village   string   `json:"village" validate:"required"`
	SecretKey string   `json:"secret_key"`
}

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Mobile   string   `json:"mobile" validate:"required"`
	Password string   `json:"password" validate:"required"`
	Role     UserRole `json:"role"`
}

// AuthResponse returns the issued token and user info.
type AuthResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	User        UserInfo  `json:"user"`
	IssuedAt    time.Time `json:"issued_at"`
}

// UpdateProfileRequest is the self-service profile edit payload. Changing the
// village does not cascade to previously submitted requests.
type UpdateProfileRequest struct {
	Name    string `json:"name"`
	Village string `json:"village"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Mobile  string   `json:"mobile"`
	Role    UserRole `json:"role"`
	Village string   `json:"village"`
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID  string   `json:"user_id"`
	Role    UserRole `json:"role"`
	Village string   `json:"village"`
	Name    string   `json:"name"`
	Mobile  string   `json:"mobile"`
	jwt.RegisteredClaims
}
