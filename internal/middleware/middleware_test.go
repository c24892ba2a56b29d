package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hrms-api/internal/models"
	"github.com/noah-isme/hrms-api/internal/service"
	appErrors "github.com/noah-isme/hrms-api/pkg/errors"
)

type staticValidator map[string]*models.JWTClaims

func (v staticValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := v[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

var testTokens = staticValidator{
	"hr-token":  {UserID: "hr-1", Role: models.RoleHR},
	"emp-token": {UserID: "emp-1", Role: models.RoleEmployee},
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	return body.Error.Code
}

func TestJWTMiddleware(t *testing.T) {
	router := newRouter()
	router.GET("/me", JWT(testTokens), func(c *gin.Context) {
		c.String(http.StatusOK, CurrentUser(c).UserID)
	})

	cases := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"missing header", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, ""},
		{"empty token", "Bearer   ", http.StatusUnauthorized, ""},
		{"unknown token", "Bearer nope", http.StatusUnauthorized, ""},
		{"valid", "Bearer emp-token", http.StatusOK, "emp-1"},
		{"case insensitive scheme", "bearer hr-token", http.StatusOK, "hr-1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, tc.body, rec.Body.String())
			} else {
				assert.Equal(t, appErrors.ErrUnauthorized.Code, errorCode(t, rec))
			}
		})
	}
}

func TestRequireRoles(t *testing.T) {
	router := newRouter()
	router.POST("/review", JWT(testTokens), RequireRoles(models.RoleHR), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	router.POST("/anonymous", RequireRoles(models.RoleHR), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	serve := func(path, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, serve("/review", "hr-token").Code)

	rec := serve("/review", "emp-token")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, rec))

	rec = serve("/anonymous", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestResponseMeta(t *testing.T) {
	router := newRouter()
	router.Use(WithResponseMeta())
	router.GET("/", func(c *gin.Context) {
		SetCacheHit(c, true)
		c.JSON(http.StatusOK, ExtractMeta(c))
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &meta))
	assert.Equal(t, true, meta["cached"])
	assert.Contains(t, meta, "processingTimeMs")
}

func TestMetricsMiddlewareUsesRoutePattern(t *testing.T) {
	metrics := service.NewMetricsService()
	router := newRouter()
	router.Use(Metrics(metrics, "/health"))
	router.GET("/documents/:id", func(c *gin.Context) { c.String(http.StatusOK, "0123456789") })
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/documents/abc", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/wp-login.php", nil))

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `hrms_http_requests_total{method="GET",path="/documents/:id",status="200"} 1`)
	assert.Contains(t, body, `hrms_http_response_size_bytes_sum{method="GET",path="/documents/:id"} 10`)
	assert.Contains(t, body, `hrms_http_requests_total{method="GET",path="unmatched",status="404"} 1`)
	assert.NotContains(t, body, "/documents/abc")
	assert.NotContains(t, body, "/wp-login.php")
	assert.NotContains(t, body, `path="/health"`)
}

func TestBodyLimit(t *testing.T) {
	router := newRouter()
	router.POST("/", BodyLimit(8), func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("12345678")))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(make([]byte, 9))))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

type auditRecorder struct {
	mu      sync.Mutex
	entries []*models.AuditLog
}

func (r *auditRecorder) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, log)
	return nil
}

func TestAuditRecordsSuccessfulRequests(t *testing.T) {
	recorder := &auditRecorder{}
	router := newRouter()
	router.GET("/documents/:id/download", JWT(testTokens), Audit(recorder, nil, models.AuditActionDocumentAccess, "document", "id"), func(c *gin.Context) {
		if c.Param("id") == "missing" {
			c.Status(http.StatusNotFound)
			return
		}
		time.Sleep(time.Millisecond)
		c.Status(http.StatusOK)
	})

	for _, id := range []string{"doc-1", "missing"} {
		req := httptest.NewRequest(http.MethodGet, "/documents/"+id+"/download", nil)
		req.Header.Set("Authorization", "Bearer emp-token")
		router.ServeHTTP(httptest.NewRecorder(), req)
	}

	require.Len(t, recorder.entries, 1)
	entry := recorder.entries[0]
	assert.Equal(t, models.AuditActionDocumentAccess, entry.Action)
	assert.Equal(t, "document", entry.Resource)
	require.NotNil(t, entry.ResourceID)
	assert.Equal(t, "doc-1", *entry.ResourceID)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, "emp-1", *entry.UserID)
}
