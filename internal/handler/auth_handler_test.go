package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/session-auth-api/internal/middleware"
	"github.com/noah-isme/session-auth-api/internal/models"
	appErrors "github.com/noah-isme/session-auth-api/pkg/errors"
)

type sessionServiceMock struct {
	registerErr error
	loginErr    error
	refreshErr  error
	logoutErr   error
	profileErr  error

	lastRefresh models.RefreshTokenRequest
	lastLogout  models.RefreshTokenRequest
	lastUpdate  models.UpdateProfileRequest
	lastUserID  string
}

func (m *sessionServiceMock) Register(ctx context.Context, req models.RegisterRequest) (*models.RegisterResponse, error) {
	if m.registerErr != nil {
		return nil, m.registerErr
	}
	return &models.RegisterResponse{ID: "u-1", Message: "User registered successfully!"}, nil
}

func (m *sessionServiceMock) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if m.loginErr != nil {
		return nil, m.loginErr
	}
	return &models.LoginResponse{Message: "Login successful", AccessToken: "access", RefreshToken: "refresh", ExpiresIn: 900}, nil
}

func (m *sessionServiceMock) Refresh(ctx context.Context, req models.RefreshTokenRequest) (*models.RefreshTokenResponse, error) {
	m.lastRefresh = req
	if m.refreshErr != nil {
		return nil, m.refreshErr
	}
	return &models.RefreshTokenResponse{Message: "Token refreshed successfully", AccessToken: "access-2", ExpiresIn: 900}, nil
}

func (m *sessionServiceMock) Logout(ctx context.Context, req models.RefreshTokenRequest) error {
	m.lastLogout = req
	return m.logoutErr
}

func (m *sessionServiceMock) GetProfile(ctx context.Context, userID string) (*models.User, error) {
	m.lastUserID = userID
	if m.profileErr != nil {
		return nil, m.profileErr
	}
	return &models.User{ID: userID, Username: "alice", Email: "alice@example.com", PasswordHash: "secret-hash"}, nil
}

func (m *sessionServiceMock) UpdateProfile(ctx context.Context, userID string, req models.UpdateProfileRequest) (*models.User, error) {
	m.lastUserID = userID
	m.lastUpdate = req
	if m.profileErr != nil {
		return nil, m.profileErr
	}
	user := &models.User{ID: userID, Username: "alice", Email: "alice@example.com"}
	if req.Username != nil {
		user.Username = *req.Username
	}
	return user, nil
}

func newAuthRouter(svc sessionService, authenticated bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	requireAuth := func(c *gin.Context) {
		if !authenticated {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u-1", Username: "alice"})
		c.Next()
	}
	RegisterAuthRoutes(r.Group("/api"), NewAuthHandler(svc), requireAuth)
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Data  map[string]interface{} `json:"data"`
	Error *appErrors.Error       `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestAuthHandlerRegister(t *testing.T) {
	r := newAuthRouter(&sessionServiceMock{}, false)

	w := doJSON(t, r, http.MethodPost, "/api/auth/register", models.RegisterRequest{Username: "alice", Email: "alice@example.com", Password: "pw"})
	assert.Equal(t, http.StatusCreated, w.Code)
	env := decode(t, w)
	assert.Equal(t, "User registered successfully!", env.Data["msg"])
}

func TestAuthHandlerRegisterDuplicate(t *testing.T) {
	r := newAuthRouter(&sessionServiceMock{registerErr: appErrors.Clone(appErrors.ErrDuplicateCredential, "email already exists")}, false)

	w := doJSON(t, r, http.MethodPost, "/api/auth/register", models.RegisterRequest{Username: "alice", Email: "alice@example.com", Password: "pw"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	env := decode(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, "DUPLICATE_CREDENTIAL", env.Error.Code)
}

func TestAuthHandlerRegisterMalformedBody(t *testing.T) {
	r := newAuthRouter(&sessionServiceMock{}, false)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode(t, w).Error.Code)
}

func TestAuthHandlerLogin(t *testing.T) {
	r := newAuthRouter(&sessionServiceMock{}, false)

	w := doJSON(t, r, http.MethodPost, "/api/auth/login", models.LoginRequest{Email: "alice@example.com", Password: "pw"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	env := decode(t, w)
	assert.Equal(t, "access", env.Data["accessToken"])
	assert.Equal(t, "refresh", env.Data["refreshToken"])
}

func TestAuthHandlerLoginInvalidCredentials(t *testing.T) {
	r := newAuthRouter(&sessionServiceMock{loginErr: appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid credentials")}, false)

	w := doJSON(t, r, http.MethodPost, "/api/auth/login", models.LoginRequest{Email: "alice@example.com", Password: "bad"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", decode(t, w).Error.Code)
}

func TestAuthHandlerRefresh(t *testing.T) {
	svc := &sessionServiceMock{}
	r := newAuthRouter(svc, false)

	w := doJSON(t, r, http.MethodPost, "/api/auth/refresh", models.RefreshTokenRequest{RefreshToken: "abc"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc", svc.lastRefresh.RefreshToken)
	assert.Equal(t, "access-2", decode(t, w).Data["accessToken"])
}

func TestAuthHandlerRefreshErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "missing", err: appErrors.ErrMissingToken, status: http.StatusUnauthorized, code: "MISSING_TOKEN"},
		{name: "invalid", err: appErrors.ErrInvalidToken, status: http.StatusForbidden, code: "INVALID_TOKEN"},
		{name: "expired", err: appErrors.ErrTokenExpired, status: http.StatusForbidden, code: "TOKEN_EXPIRED"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newAuthRouter(&sessionServiceMock{refreshErr: tc.err}, false)
			w := doJSON(t, r, http.MethodPost, "/api/auth/refresh", nil)
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.code, decode(t, w).Error.Code)
		})
	}
}

func TestAuthHandlerRefreshEmptyBodyReachesService(t *testing.T) {
	svc := &sessionServiceMock{refreshErr: appErrors.ErrMissingToken}
	r := newAuthRouter(svc, false)

	w := doJSON(t, r, http.MethodPost, "/api/auth/refresh", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, svc.lastRefresh.RefreshToken)
}

func TestAuthHandlerLogout(t *testing.T) {
	svc := &sessionServiceMock{}
	r := newAuthRouter(svc, false)

	w := doJSON(t, r, http.MethodPost, "/api/auth/logout", models.RefreshTokenRequest{RefreshToken: "abc"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc", svc.lastLogout.RefreshToken)
	assert.Equal(t, "Logout successful", decode(t, w).Data["msg"])
}

func TestAuthHandlerLogoutNotFound(t *testing.T) {
	r := newAuthRouter(&sessionServiceMock{logoutErr: appErrors.Clone(appErrors.ErrNotFound, "refresh token not found")}, false)

	w := doJSON(t, r, http.MethodPost, "/api/auth/logout", models.RefreshTokenRequest{RefreshToken: "abc"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decode(t, w).Error.Code)
}

func TestAuthHandlerStorageErrorIsAttachedToContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var captured []*gin.Error
	r.Use(func(c *gin.Context) {
		c.Next()
		captured = c.Errors
	})
	RegisterAuthRoutes(r.Group("/api"), NewAuthHandler(&sessionServiceMock{logoutErr: appErrors.ErrStorage}), func(c *gin.Context) { c.Next() })

	w := doJSON(t, r, http.MethodPost, "/api/auth/logout", models.RefreshTokenRequest{RefreshToken: "abc"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Len(t, captured, 1)
}

func TestAuthHandlerGetProfile(t *testing.T) {
	svc := &sessionServiceMock{}
	r := newAuthRouter(svc, true)

	w := doJSON(t, r, http.MethodGet, "/api/auth/profile", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u-1", svc.lastUserID)
	assert.NotContains(t, w.Body.String(), "secret-hash")

	user, ok := decode(t, w).Data["user"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "alice", user["username"])
}

func TestAuthHandlerGetProfileRequiresAuth(t *testing.T) {
	r := newAuthRouter(&sessionServiceMock{}, false)
	w := doJSON(t, r, http.MethodGet, "/api/auth/profile", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandlerGetProfileWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/auth/profile", nil)

	NewAuthHandler(&sessionServiceMock{}).GetProfile(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandlerUpdateProfile(t *testing.T) {
	svc := &sessionServiceMock{}
	r := newAuthRouter(svc, true)

	w := doJSON(t, r, http.MethodPut, "/api/auth/profile", map[string]string{"username": "bob"})
	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.lastUpdate.Username)
	assert.Equal(t, "bob", *svc.lastUpdate.Username)
	assert.Nil(t, svc.lastUpdate.Email)

	env := decode(t, w)
	assert.Equal(t, "Profile updated successfully", env.Data["msg"])
}

func TestAuthHandlerUpdateProfileNotFound(t *testing.T) {
	r := newAuthRouter(&sessionServiceMock{profileErr: appErrors.Clone(appErrors.ErrNotFound, "user not found")}, true)

	w := doJSON(t, r, http.MethodPut, "/api/auth/profile", map[string]string{"email": "x@example.com"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuthHandlerRefreshChunkedEmptyBody(t *testing.T) {
	svc := &sessionServiceMock{refreshErr: appErrors.ErrMissingToken}
	r := newAuthRouter(svc, false)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", io.MultiReader())
	req.Header.Set("Content-Type", "application/json")
	require.Equal(t, int64(-1), req.ContentLength)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "MISSING_TOKEN", decode(t, w).Error.Code)
	assert.Empty(t, svc.lastRefresh.RefreshToken)
}
