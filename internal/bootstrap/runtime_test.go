package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"helpmatch/internal/config"
	"helpmatch/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Env:      "development",
		DBDriver: "sqlite",
		DBPath:   ":memory:",
		LogLevel: "error",
	}
}

func TestInitRuntime_WithRedisAndFixture(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.RedisURL = mr.Addr()

	path := filepath.Join(t.TempDir(), "fixture.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
users:
  - username: alice
    role: requester
  - username: bob
    role: helper
requests:
  - requester: alice
    title: Rake leaves
    category: yardwork
    claimed_by: bob
`), 0o600))

	ctx := context.Background()
	rt, err := InitRuntime(ctx, cfg, Options{SeedFixture: path})
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close(ctx) })

	require.NotNil(t, rt.Redis)
	var req models.Request
	require.NoError(t, rt.DB.Where("title = ?", "Rake leaves").First(&req).Error)
	assert.Equal(t, models.RequestStatusClaimed, req.Status)
}

func TestInitRuntime_RedisUnavailable(t *testing.T) {
	cfg := testConfig(t)
	cfg.RedisURL = "redis://127.0.0.1:1"

	ctx := context.Background()
	rt, err := InitRuntime(ctx, cfg, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close(ctx) })

	assert.Nil(t, rt.Redis)
	assert.NoError(t, rt.DB.Exec("SELECT 1").Error)
}

func TestInitRuntime_BadFixture(t *testing.T) {
	cfg := testConfig(t)
	_, err := InitRuntime(context.Background(), cfg, Options{SeedFixture: filepath.Join(t.TempDir(), "missing.yaml")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open fixture")
}
