package service

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/session-auth-api/internal/models"
)

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 7 * 24 * time.Hour
	refreshTokenBytes      = 64
)

// TokenConfig defines the signing secret and lifetimes used by the TokenIssuer.
type TokenConfig struct {
	Secret          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	Issuer          string
}

// TokenIssuer mints signed access tokens and opaque refresh token values.
type TokenIssuer struct {
	config TokenConfig
	now    func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer. Zero lifetimes fall back to 15 minutes and 7 days.
func NewTokenIssuer(config TokenConfig) (*TokenIssuer, error) {
	if config.Secret == "" {
		return nil, errors.New("token secret is required")
	}
	if config.AccessTokenTTL <= 0 {
		config.AccessTokenTTL = defaultAccessTokenTTL
	}
	if config.RefreshTokenTTL <= 0 {
		config.RefreshTokenTTL = defaultRefreshTokenTTL
	}
	return &TokenIssuer{config: config, now: time.Now}, nil
}

// AccessTokenTTL returns the configured access token lifetime.
func (i *TokenIssuer) AccessTokenTTL() time.Duration {
	return i.config.AccessTokenTTL
}

// IssueAccessToken signs an HS256 token carrying the user's id, username and roles.
func (i *TokenIssuer) IssueAccessToken(user *models.User) (string, time.Time, error) {
	issuedAt := i.now().UTC()
	expiresAt := issuedAt.Add(i.config.AccessTokenTTL)
	roles := make([]string, len(user.Roles))
	copy(roles, user.Roles)

	claims := &models.JWTClaims{
		UserID:   user.ID,
		Username: user.Username,
		Roles:    roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.config.Issuer,
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(i.config.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ParseAccessToken verifies the signature and expiry of an access token and returns its claims.
func (i *TokenIssuer) ParseAccessToken(tokenString string) (*models.JWTClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	}
	if i.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.config.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(i.config.Secret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// NewRefreshTokenValue returns 512 bits of randomness, hex encoded.
func (i *TokenIssuer) NewRefreshTokenValue() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// RefreshExpiryFromNow returns the absolute expiry for a refresh token minted now.
func (i *TokenIssuer) RefreshExpiryFromNow() time.Time {
	return i.now().UTC().Add(i.config.RefreshTokenTTL)
}
