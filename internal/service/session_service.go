package service

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/session-auth-api/internal/models"
	"github.com/noah-isme/session-auth-api/internal/repository"
	appErrors "github.com/noah-isme/session-auth-api/pkg/errors"
)

// RefreshTokenStore persists refresh tokens. Implementations report absent records with
// sql.ErrNoRows and duplicate token values with repository.ErrDuplicateKey.
type RefreshTokenStore interface {
	FindActiveByUser(ctx context.Context, userID string) (*models.RefreshToken, error)
	Create(ctx context.Context, token *models.RefreshToken) error
	FindByValue(ctx context.Context, value string) (*models.RefreshToken, error)
	Delete(ctx context.Context, id string) error
	Revoke(ctx context.Context, value string) (*models.RefreshToken, error)
}

// refreshState is the state of a user's current refresh token as seen at login.
type refreshState int

const (
	refreshNone refreshState = iota
	refreshActive
	refreshExpired
)

func (s refreshState) String() string {
	switch s {
	case refreshActive:
		return "active"
	case refreshExpired:
		return "expired"
	default:
		return "none"
	}
}

// classifyRefreshToken maps a non-revoked stored token (or its absence) to a refreshState.
// Login only reuses a token strictly before its expiry; at the expiry instant it rotates.
func classifyRefreshToken(token *models.RefreshToken, now time.Time) refreshState {
	switch {
	case token == nil:
		return refreshNone
	case !token.ExpiryDate.After(now):
		return refreshExpired
	default:
		return refreshActive
	}
}

// SessionService orchestrates login, refresh and logout over the credential and token stores.
type SessionService struct {
	credentials *CredentialService
	issuer      *TokenIssuer
	tokens      RefreshTokenStore
	metrics     *MetricsService
	logger      *zap.Logger
	now         func() time.Time
}

// NewSessionService constructs a SessionService. metrics may be nil.
func NewSessionService(credentials *CredentialService, issuer *TokenIssuer, tokens RefreshTokenStore, metrics *MetricsService, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		credentials: credentials,
		issuer:      issuer,
		tokens:      tokens,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// Register creates an account through the credential store.
func (s *SessionService) Register(ctx context.Context, req models.RegisterRequest) (*models.RegisterResponse, error) {
	id, err := s.credentials.Register(ctx, req)
	s.record(EventRegister, err)
	if err != nil {
		return nil, err
	}
	return &models.RegisterResponse{ID: id, Message: "User registered successfully!"}, nil
}

// Login verifies credentials, records login statistics and returns an access token together
// with the user's current refresh token, minting a new one when none is active.
func (s *SessionService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	res, err := s.login(ctx, req)
	s.record(EventLogin, err)
	return res, err
}

func (s *SessionService) login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	user, err := s.credentials.Verify(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	user, err = s.credentials.RecordLogin(ctx, user.ID, now)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("login statistics updated", zap.String("user_id", user.ID), zap.Int64("login_count", user.LoginCount))

	accessToken, _, err := s.issuer.IssueAccessToken(user)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	existing, err := s.tokens.FindActiveByUser(ctx, user.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Storage(err, "failed to fetch refresh token")
	}
	if err != nil {
		existing = nil
	}

	state := classifyRefreshToken(existing, now)
	s.metrics.RecordRefreshState(state.String())
	s.logger.Debug("refresh token state at login", zap.String("user_id", user.ID), zap.Stringer("state", state))

	var refreshToken string
	switch state {
	case refreshActive:
		refreshToken = existing.Token
	case refreshExpired:
		if err := s.tokens.Delete(ctx, existing.ID); err != nil {
			return nil, appErrors.Storage(err, "failed to delete expired refresh token")
		}
		refreshToken, err = s.mintRefreshToken(ctx, user.ID)
	case refreshNone:
		refreshToken, err = s.mintRefreshToken(ctx, user.ID)
	}
	if err != nil {
		return nil, err
	}

	return &models.LoginResponse{
		Message:      "Login successful",
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.issuer.AccessTokenTTL().Seconds()),
	}, nil
}

func (s *SessionService) mintRefreshToken(ctx context.Context, userID string) (string, error) {
	value, err := s.issuer.NewRefreshTokenValue()
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create refresh token")
	}

	token := &models.RefreshToken{
		Token:      value,
		UserID:     userID,
		ExpiryDate: s.issuer.RefreshExpiryFromNow(),
		CreatedAt:  s.now().UTC(),
	}
	if err := s.tokens.Create(ctx, token); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return "", appErrors.Clone(appErrors.ErrDuplicateToken, "")
		}
		return "", appErrors.Storage(err, "failed to persist refresh token")
	}
	return value, nil
}

// Refresh exchanges a valid refresh token for a new access token. The refresh token itself is
// neither rotated nor extended. Expired tokens are deleted and must be replaced through Login.
func (s *SessionService) Refresh(ctx context.Context, req models.RefreshTokenRequest) (*models.RefreshTokenResponse, error) {
	res, err := s.refresh(ctx, req)
	s.record(EventRefresh, err)
	return res, err
}

func (s *SessionService) refresh(ctx context.Context, req models.RefreshTokenRequest) (*models.RefreshTokenResponse, error) {
	if strings.TrimSpace(req.RefreshToken) == "" {
		return nil, appErrors.Clone(appErrors.ErrMissingToken, "")
	}

	stored, err := s.tokens.FindByValue(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidToken, "")
		}
		return nil, appErrors.Storage(err, "failed to fetch refresh token")
	}

	if stored.ExpiredAt(s.now()) {
		if err := s.tokens.Delete(ctx, stored.ID); err != nil {
			return nil, appErrors.Storage(err, "failed to delete expired refresh token")
		}
		return nil, appErrors.Clone(appErrors.ErrTokenExpired, "")
	}

	user, err := s.credentials.GetProfile(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, appErrors.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrInvalidToken, "refresh token owner no longer exists")
		}
		return nil, err
	}

	accessToken, _, err := s.issuer.IssueAccessToken(user)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate access token")
	}

	return &models.RefreshTokenResponse{
		Message:     "Token refreshed successfully",
		AccessToken: accessToken,
		ExpiresIn:   int64(s.issuer.AccessTokenTTL().Seconds()),
	}, nil
}

// Logout permanently revokes the refresh token, whatever its current state.
func (s *SessionService) Logout(ctx context.Context, req models.RefreshTokenRequest) error {
	err := s.logout(ctx, req)
	s.record(EventLogout, err)
	return err
}

func (s *SessionService) logout(ctx context.Context, req models.RefreshTokenRequest) error {
	if strings.TrimSpace(req.RefreshToken) == "" {
		return appErrors.WithStatus(appErrors.ErrMissingToken, http.StatusBadRequest)
	}

	if _, err := s.tokens.Revoke(ctx, req.RefreshToken); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "refresh token not found")
		}
		return appErrors.Storage(err, "failed to revoke refresh token")
	}
	return nil
}

// GetProfile returns the user's profile without credentials.
func (s *SessionService) GetProfile(ctx context.Context, userID string) (*models.User, error) {
	return s.credentials.GetProfile(ctx, userID)
}

// UpdateProfile changes the supplied profile fields.
func (s *SessionService) UpdateProfile(ctx context.Context, userID string, req models.UpdateProfileRequest) (*models.User, error) {
	return s.credentials.UpdateProfile(ctx, userID, req)
}

// ValidateAccessToken parses and validates an access token returning the claims.
func (s *SessionService) ValidateAccessToken(token string) (*models.JWTClaims, error) {
	claims, err := s.issuer.ParseAccessToken(token)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}
	return claims, nil
}

func (s *SessionService) record(event string, err error) {
	if err == nil {
		s.metrics.RecordAuthEvent(event, OutcomeSuccess, "")
		return
	}
	appErr := appErrors.FromError(err)
	s.metrics.RecordAuthEvent(event, OutcomeFailure, appErr.Code)
	if appErr.Status >= http.StatusInternalServerError {
		s.logger.Warn("auth operation failed", zap.String("event", event), zap.Error(err))
	}
}
