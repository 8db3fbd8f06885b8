package bootstrap

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"triage_worker/adapter/in/worker"
	"triage_worker/adapter/out/persistence"
	"triage_worker/config"
	"triage_worker/infra/middleware"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScheduleConfig(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Taipei")
	require.NoError(t, err)

	cfg := &config.Config{BatchIntervalMin: 15, ReportAt: "18:05", EvictAt: "01:00"}
	schedule, err := newScheduleConfig(cfg, loc)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, schedule.BatchEvery)
	assert.Equal(t, worker.Clock{Hour: 18, Minute: 5}, schedule.ReportAt)
	assert.Equal(t, worker.Clock{Hour: 1, Minute: 0}, schedule.EvictAt)
	assert.Equal(t, loc, schedule.Location)

	cfg = &config.Config{ReportAt: "25:00", EvictAt: "01:00"}
	_, err = newScheduleConfig(cfg, loc)
	assert.Error(t, err)

	// zero interval keeps the default
	cfg = &config.Config{ReportAt: "17:30", EvictAt: "00:30"}
	schedule, err = newScheduleConfig(cfg, loc)
	require.NoError(t, err)
	assert.Equal(t, worker.DefaultScheduleConfig().BatchEvery, schedule.BatchEvery)
}

func TestNewKVStore(t *testing.T) {
	ctx := context.Background()
	deps := &Dependencies{}

	kv, err := newKVStore(ctx, &config.Config{StoreBackend: "memory"}, deps)
	require.NoError(t, err)
	assert.IsType(t, &persistence.MemoryKV{}, kv)

	kv, err = newKVStore(ctx, &config.Config{
		StoreBackend: "sqlite",
		StoreDSN:     filepath.Join(t.TempDir(), "triage.db"),
	}, deps)
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, "analysis:2024-03-04:m1", "{}"))
	got, err := kv.List(ctx, "analysis:2024-03-04:")
	require.NoError(t, err)
	assert.Len(t, got, 1)
	require.NoError(t, kv.Close())

	_, err = newKVStore(ctx, &config.Config{StoreBackend: "sqlite"}, deps)
	assert.ErrorContains(t, err, "STORE_DSN")

	_, err = newKVStore(ctx, &config.Config{StoreBackend: "redis"}, deps)
	assert.ErrorContains(t, err, "REDIS_URL")

	_, err = newKVStore(ctx, &config.Config{StoreBackend: "mongo"}, deps)
	assert.ErrorContains(t, err, "MONGODB_URL")

	_, err = newKVStore(ctx, &config.Config{StoreBackend: "etcd"}, deps)
	assert.ErrorContains(t, err, "unknown store_backend")
}

func TestNewGenerator(t *testing.T) {
	gen := newGenerator(&config.Config{LLMProvider: "openai", OpenAIModel: "gpt-4o-mini"})
	assert.Equal(t, "gpt-4o-mini", gen.Model())
	assert.False(t, gen.Available())

	gen = newGenerator(&config.Config{LLMProvider: "gemini", GeminiModel: "gemini-2.0-flash", GeminiAPIKey: "k"})
	assert.Equal(t, "gemini-2.0-flash", gen.Model())
	assert.True(t, gen.Available())
}

func TestNewAPI_RequiresToken(t *testing.T) {
	deps := &Dependencies{
		Config:   &config.Config{AdminJWTSecret: "s3cret"},
		Location: time.UTC,
		KV:       persistence.NewMemoryKV(),
	}
	app := NewAPI(deps)

	resp, err := app.Test(httptest.NewRequest("GET", "/ready", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("POST", "/v1/evict", nil))
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)

	token, err := middleware.IssueToken("s3cret", "ops", time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest("GET", "/v1/stats?dates=bad", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.NotEqual(t, 401, resp.StatusCode)
}
