package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/session-auth-api/internal/models"
	"github.com/noah-isme/session-auth-api/internal/repository"
	appErrors "github.com/noah-isme/session-auth-api/pkg/errors"
)

type credentialRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdateProfile(ctx context.Context, user *models.User) error
	RecordLogin(ctx context.Context, id string, ts time.Time) (*models.User, error)
}

// CredentialService registers users, verifies passwords and manages profiles.
type CredentialService struct {
	repo      credentialRepository
	hasher    *PasswordHasher
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCredentialService creates an instance of CredentialService.
func NewCredentialService(repo credentialRepository, hasher *PasswordHasher, validate *validator.Validate, logger *zap.Logger) *CredentialService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if hasher == nil {
		hasher = NewPasswordHasher(MinPasswordCost)
	}
	return &CredentialService{repo: repo, hasher: hasher, validator: validate, logger: logger}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a user with a hashed password and returns the new user ID.
func (s *CredentialService) Register(ctx context.Context, req models.RegisterRequest) (string, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = normalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}

	if err := s.ensureAvailable(ctx, "", req.Username, req.Email); err != nil {
		return "", err
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: passwordHash,
		Roles:        pq.StringArray{models.RoleUser},
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return "", appErrors.Clone(appErrors.ErrDuplicateCredential, "user already exists")
		}
		return "", appErrors.Storage(err, "failed to create user")
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID))
	return user.ID, nil
}

// Verify checks the presented password against the stored hash for the email.
// Unknown email and wrong password produce the same error.
func (s *CredentialService) Verify(ctx context.Context, email, password string) (*models.User, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "all fields are required")
	}

	user, err := s.repo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.hasher.CompareUnknown(password)
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid credentials")
		}
		return nil, appErrors.Storage(err, "failed to fetch user")
	}

	if !s.hasher.Compare(user.PasswordHash, password) {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid credentials")
	}
	return user, nil
}

// RecordLogin increments the login counter and stamps the last login time.
func (s *CredentialService) RecordLogin(ctx context.Context, userID string, at time.Time) (*models.User, error) {
	user, err := s.repo.RecordLogin(ctx, userID, at)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Storage(err, "failed to update login statistics")
	}
	return user, nil
}

// GetProfile returns a user by ID.
func (s *CredentialService) GetProfile(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Storage(err, "failed to load user")
	}
	return user, nil
}

// UpdateProfile changes only the supplied username and email fields.
func (s *CredentialService) UpdateProfile(ctx context.Context, userID string, req models.UpdateProfileRequest) (*models.User, error) {
	if req.Username != nil {
		trimmed := strings.TrimSpace(*req.Username)
		req.Username = &trimmed
	}
	if req.Email != nil {
		normalized := normalizeEmail(*req.Email)
		req.Email = &normalized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}

	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	var username, email string
	if req.Username != nil && *req.Username != user.Username {
		username = *req.Username
	}
	if req.Email != nil && *req.Email != user.Email {
		email = *req.Email
	}
	if username == "" && email == "" {
		return user, nil
	}

	if err := s.ensureAvailable(ctx, user.ID, username, email); err != nil {
		return nil, err
	}

	if username != "" {
		user.Username = username
	}
	if email != "" {
		user.Email = email
	}

	if err := s.repo.UpdateProfile(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateKey):
			return nil, appErrors.Clone(appErrors.ErrDuplicateCredential, "username or email already exists")
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Storage(err, "failed to update user")
	}
	return user, nil
}

// ensureAvailable fails when the username or email already belongs to a user other than selfID.
// Empty values are skipped.
func (s *CredentialService) ensureAvailable(ctx context.Context, selfID, username, email string) error {
	if email != "" {
		existing, err := s.repo.FindByEmail(ctx, email)
		if err == nil && existing.ID != selfID {
			return appErrors.Clone(appErrors.ErrDuplicateCredential, "email already exists")
		}
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return appErrors.Storage(err, "failed to check email uniqueness")
		}
	}
	if username != "" {
		existing, err := s.repo.FindByUsername(ctx, username)
		if err == nil && existing.ID != selfID {
			return appErrors.Clone(appErrors.ErrDuplicateCredential, "username already exists")
		}
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return appErrors.Storage(err, "failed to check username uniqueness")
		}
	}
	return nil
}
