package requestid

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveWithID(t *testing.T, incoming string) (header, stored string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/", func(c *gin.Context) {
		stored = Value(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if incoming != "" {
		req.Header.Set(headerKey, incoming)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Header().Get(headerKey), stored
}

func TestMiddlewareKeepsValidIncomingID(t *testing.T) {
	header, stored := serveWithID(t, "upload-7f3a.2")
	assert.Equal(t, "upload-7f3a.2", header)
	assert.Equal(t, header, stored)
}

func TestMiddlewareReplacesUnsafeIDs(t *testing.T) {
	for _, incoming := range []string{"", "evil\nlevel=error", strings.Repeat("a", maxLength+1)} {
		header, stored := serveWithID(t, incoming)
		_, err := uuid.Parse(header)
		assert.NoError(t, err, "incoming %q", incoming)
		assert.Equal(t, header, stored)
	}
}

func TestValueWithoutMiddleware(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Equal(t, "", Value(c))
}
