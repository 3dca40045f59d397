package middleware_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"learncoins-ledger/internal/adapter/http/middleware"
	"learncoins-ledger/internal/adapter/storage/memory"
	redisStore "learncoins-ledger/internal/adapter/storage/redis"
	"learncoins-ledger/internal/core/ports"
	"learncoins-ledger/internal/core/ports/mocks"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

func setupRateLimitRouter(store ports.RateLimitStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	rule := middleware.RateLimitRule{Limit: 3, Window: time.Minute}
	r.GET("/test", middleware.RateLimiter(store, "test", rule, zerolog.Nop()), func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	return r
}

func TestRateLimiter_Stores(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	stores := map[string]ports.RateLimitStore{
		"redis":  redisStore.NewRateLimitStore(client),
		"memory": memory.NewRateLimitStore(),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			router := setupRateLimitRouter(store)

			for i := 0; i < 3; i++ {
				w := httptest.NewRecorder()
				router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
				assert.Equal(t, http.StatusOK, w.Code, "request %d should succeed", i+1)
				assert.NotEmpty(t, w.Header().Get("X-RateLimit-Limit"))
				assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))
				assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
			}

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
			assert.Equal(t, http.StatusTooManyRequests, w.Code)
			assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
			assert.NotEmpty(t, w.Header().Get("Retry-After"))
			assert.Contains(t, w.Body.String(), "RATE_001")
		})
	}
}

func TestRateLimiter_DegradedModeAllows(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockRateLimitStore(ctrl)
	store.EXPECT().Allow(gomock.Any(), gomock.Any(), 3, time.Minute).Return(nil, errors.New("redis: connection refused"))

	router := setupRateLimitRouter(store)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
}

func TestDefaultRateLimitRules(t *testing.T) {
	rules := middleware.DefaultRateLimitRules()
	for _, group := range []string{"ledger", "pin", "daily_reward", "market_write", "read"} {
		rule, ok := rules[group]
		assert.True(t, ok, group)
		assert.Positive(t, rule.Limit)
	}
}
