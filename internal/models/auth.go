package models

import "github.com/golang-jwt/jwt/v5"

// RegisterRequest holds the fields required to create an account.
type RegisterRequest struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterResponse confirms a successful registration.
type RegisterResponse struct {
	ID      string `json:"id"`
	Message string `json:"msg"`
}

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse returns the issued access token and the new or reused refresh token.
type LoginResponse struct {
	Message      string `json:"msg"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// RefreshTokenRequest carries the opaque refresh token for refresh and logout.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// RefreshTokenResponse returns a freshly minted access token.
type RefreshTokenResponse struct {
	Message     string `json:"msg"`
	AccessToken string `json:"accessToken"`
	ExpiresIn   int64  `json:"expiresIn"`
}

// UpdateProfileRequest lists the profile fields a user may change. Nil fields are left untouched.
type UpdateProfileRequest struct {
	Username *string `json:"username" validate:"omitempty,min=1"`
	Email    *string `json:"email" validate:"omitempty,email"`
}

// ProfileResponse wraps a user profile for the profile endpoints.
type ProfileResponse struct {
	Message string `json:"msg,omitempty"`
	User    *User  `json:"user"`
}

// MessageResponse is a bare confirmation payload.
type MessageResponse struct {
	Message string `json:"msg"`
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID   string   `json:"id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}
