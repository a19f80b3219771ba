package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/erp/connector/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newBodyRouter(limit int64) *gin.Engine {
	router := gin.New()
	router.Use(RequestID(), BodyLimit(limit))
	router.POST("/api/v1/erp/orders", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.String(http.StatusBadRequest, "body too large")
			return
		}
		c.String(http.StatusOK, "ok")
	})
	router.GET("/api/v1/erp/orders", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return router
}

func TestBodyLimit(t *testing.T) {
	t.Run("allows request within limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/erp/orders", bytes.NewReader([]byte("small body")))
		w := serve(newBodyRouter(1024), req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("rejects declared length over the limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/erp/orders", strings.NewReader(strings.Repeat("x", 200)))
		req.ContentLength = 200
		w := serve(newBodyRouter(100), req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		info := decodeError(t, w)
		assert.Equal(t, dto.ErrCodeRequestTooLarge, info.Code)
		assert.NotEmpty(t, info.RequestID)
	})

	t.Run("allows GET requests", func(t *testing.T) {
		w := serve(newBodyRouter(10), httptest.NewRequest(http.MethodGet, "/api/v1/erp/orders", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("caps chunked bodies while reading", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/erp/orders", strings.NewReader(strings.Repeat("x", 100)))
		req.ContentLength = -1
		w := serve(newBodyRouter(50), req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("zero limit disables the check", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/erp/orders", strings.NewReader(strings.Repeat("x", 100)))
		w := serve(newBodyRouter(0), req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}
