package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/erp/connector/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiter(t *testing.T) {
	t.Run("allows bursts up to the limit", func(t *testing.T) {
		limiter := NewRateLimiter(5, time.Minute)
		defer limiter.Stop()

		for i := 0; i < 5; i++ {
			assert.True(t, limiter.Allow("client1"), "request %d should be allowed", i+1)
		}
		assert.False(t, limiter.Allow("client1"))
	})

	t.Run("separate limits per client", func(t *testing.T) {
		limiter := NewRateLimiter(2, time.Minute)
		defer limiter.Stop()

		assert.True(t, limiter.Allow("clientA"))
		assert.True(t, limiter.Allow("clientA"))
		assert.False(t, limiter.Allow("clientA"))

		assert.True(t, limiter.Allow("clientB"))
		assert.Equal(t, 1, limiter.Remaining("clientB"))
		assert.Equal(t, 2, limiter.Remaining("unknown"))
	})

	t.Run("refills over the window", func(t *testing.T) {
		limiter := NewRateLimiter(2, 100*time.Millisecond)
		defer limiter.Stop()

		assert.True(t, limiter.Allow("client3"))
		assert.True(t, limiter.Allow("client3"))
		assert.False(t, limiter.Allow("client3"))

		time.Sleep(120 * time.Millisecond)
		assert.True(t, limiter.Allow("client3"))
	})

	t.Run("concurrent access", func(t *testing.T) {
		limiter := NewRateLimiter(100, time.Minute)
		defer limiter.Stop()

		var wg sync.WaitGroup
		var mu sync.Mutex
		allowed := 0
		for i := 0; i < 200; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if limiter.Allow("shared") {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 100, allowed)
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := NewRateLimiter(2, time.Minute)
	defer limiter.Stop()

	cfg := DefaultTenantConfig()
	cfg.HeaderEnabled = true

	router := gin.New()
	router.Use(RequestID(), TenantMiddleware(cfg), RateLimit(limiter))
	router.GET("/api/v1/erp/articles", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	request := func(tenant uuid.UUID) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/erp/articles", nil)
		req.Header.Set(TenantHeaderKey, tenant.String())
		return serve(router, req)
	}

	tenantA, tenantB := uuid.New(), uuid.New()

	w := request(tenantA)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusOK, request(tenantA).Code)

	w = request(tenantA)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, dto.ErrCodeRateLimited, decodeError(t, w).Code)
	retryAfter, err := strconv.Atoi(w.Header().Get("Retry-After"))
	assert.NoError(t, err)
	assert.Positive(t, retryAfter)

	// buckets are per tenant
	assert.Equal(t, http.StatusOK, request(tenantB).Code)
}

func TestRateLimitByKey(t *testing.T) {
	limiter := NewRateLimiter(1, time.Minute)
	defer limiter.Stop()

	router := gin.New()
	router.Use(RateLimitByKey(limiter, func(c *gin.Context) string {
		return c.GetHeader("X-API-Key")
	}))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	send := func(key string) int {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("X-API-Key", key)
		return serve(router, req).Code
	}

	assert.Equal(t, http.StatusOK, send("key1"))
	assert.Equal(t, http.StatusTooManyRequests, send("key1"))
	assert.Equal(t, http.StatusOK, send("key2"))
}
