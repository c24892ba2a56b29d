package handler

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hrms-api/internal/models"
	appErrors "github.com/noah-isme/hrms-api/pkg/errors"
)

type authServiceStub struct {
	loginReq     models.LoginRequest
	logoutToken  string
	logoutUserID string
	err          error
}

func (s *authServiceStub) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	s.loginReq = req
	if s.err != nil {
		return nil, s.err
	}
	return &models.LoginResponse{AccessToken: "access", RefreshToken: "refresh", ExpiresIn: 900}, nil
}

func (s *authServiceStub) RefreshToken(ctx context.Context, req models.RefreshTokenRequest) (*models.RefreshTokenResponse, error) {
	return &models.RefreshTokenResponse{AccessToken: "access-2", RefreshToken: "refresh-2"}, s.err
}

func (s *authServiceStub) Logout(ctx context.Context, refreshToken string, userID string, meta models.LoginRequest) error {
	s.logoutToken = refreshToken
	s.logoutUserID = userID
	return s.err
}

func (s *authServiceStub) Me(ctx context.Context, userID string) (*models.UserInfo, error) {
	return &models.UserInfo{ID: userID, Role: models.RoleEmployee}, s.err
}

func TestAuthHandlerLogin(t *testing.T) {
	svc := &authServiceStub{}
	router := newTestRouter(nil)
	h := NewAuthHandler(svc)
	router.POST("/auth/login", h.Login)

	rec := serve(router, http.MethodPost, "/auth/login", strings.NewReader(`{"email":"e1@corp.test","password":"secret"}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "e1@corp.test", svc.loginReq.Email)
	assert.Contains(t, rec.Body.String(), `"accessToken":"access"`)

	rec = serve(router, http.MethodPost, "/auth/login", strings.NewReader(`{`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.err = appErrors.ErrInvalidCredentials
	rec = serve(router, http.MethodPost, "/auth/login", strings.NewReader(`{"email":"e1@corp.test","password":"bad"}`), "application/json")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, errorCodeOf(t, rec))
}

func TestAuthHandlerLogout(t *testing.T) {
	svc := &authServiceStub{}
	router := newTestRouter(empClaims)
	h := NewAuthHandler(svc)
	router.POST("/auth/logout", h.Logout)

	rec := serve(router, http.MethodPost, "/auth/logout", strings.NewReader(`{"refreshToken":"r-1"}`), "application/json")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "r-1", svc.logoutToken)
	assert.Equal(t, "emp-1", svc.logoutUserID)

	rec = serve(router, http.MethodPost, "/auth/logout", nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "", svc.logoutToken)

	svc.logoutToken = "unset"
	rec = serveChunked(router, http.MethodPost, "/auth/logout", strings.NewReader(""), "application/json")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "", svc.logoutToken)
}

func TestAuthHandlerMe(t *testing.T) {
	router := newTestRouter(empClaims)
	router.GET("/auth/me", NewAuthHandler(&authServiceStub{}).Me)

	rec := serve(router, http.MethodGet, "/auth/me", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"emp-1"`)

	anonymous := newTestRouter(nil)
	anonymous.GET("/auth/me", NewAuthHandler(&authServiceStub{}).Me)
	rec = serve(anonymous, http.MethodGet, "/auth/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
