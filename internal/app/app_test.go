package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/ironlog/internal/config"
	"github.com/dropDatabas3/ironlog/internal/refresh"
)

func devConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Storage.DSN = ""
	cfg.JWT.KeyFile = ""
	cfg.Provider.JWKSURL = ""
	cfg.Provider.JWKSFile = ""
	cfg.Rate.Enabled = true
	return cfg
}

func TestBuildInMemoryAndServeReadyz(t *testing.T) {
	cfg := devConfig(t)
	cfg.Cache.Kind = "memory"

	c, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	assert.Nil(t, c.DB)
	assert.NotNil(t, c.Sweeper)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
		Cache  struct {
			Driver string `json:"driver"`
		} `json:"cache"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body.Status)
	assert.Equal(t, "ok", body.Checks["signing_key"])
	assert.Equal(t, "ok", body.Checks["cache"])
	assert.Equal(t, "memory", body.Cache.Driver)

	rec = httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBuildFallsBackToMemoryWhenRedisIsDown(t *testing.T) {
	cfg := devConfig(t)
	cfg.Cache.Kind = "redis"
	cfg.Cache.Redis.Addr = "127.0.0.1:1"

	c, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	_, isRedis := c.Cache.(redisBacked)
	assert.False(t, isRedis)
	assert.NotNil(t, c.Sweeper)

	ctx := context.Background()
	pair, err := c.Tokens.IssuePair(ctx, "nobody", "user")
	require.NoError(t, err)
	_, err = c.Tokens.Rotate(ctx, pair.Refresh.Raw, "")
	assert.ErrorIs(t, err, refresh.ErrInvalidRefreshToken, "unknown subject cannot rotate")
}

func TestBuildRejectsUnknownPolicy(t *testing.T) {
	cfg := devConfig(t)
	cfg.Revocation.FailurePolicy = "maybe"
	_, err := Build(context.Background(), cfg)
	assert.Error(t, err)
}
