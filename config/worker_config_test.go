package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"triage_worker/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.LLMProvider)
	assert.Equal(t, 3, cfg.LLMRateLimit)
	assert.Equal(t, time.Second, cfg.LLMRateWindow())
	assert.Equal(t, 50, cfg.BatchLimit)
	assert.Equal(t, 100, cfg.ReprocessPageSize)
	assert.Equal(t, "Asia/Taipei", cfg.Timezone)
	assert.Equal(t, DefaultSingleKeywords, cfg.Rules.SingleKeywords)
	assert.Equal(t, DefaultCombinationKeywords, cfg.Rules.CombinationKeywords)
	assert.Equal(t, DefaultSenderRules(), cfg.Rules.SenderRules)
	assert.Equal(t, DefaultLabels(), cfg.Labels)
	assert.True(t, cfg.EnableSlackNotifications)

	// analyses must survive between run-batch and report invocations
	assert.Equal(t, "sqlite", cfg.StoreBackend)
	assert.Equal(t, DefaultSQLiteDSN, cfg.StoreDSN)
}

func TestLoad_StoreBackend(t *testing.T) {
	t.Chdir(t.TempDir())

	tests := []struct {
		name    string
		env     map[string]string
		backend string
		dsn     string
	}{
		{"explicit memory", map[string]string{"STORE_BACKEND": "memory"}, "memory", ""},
		{"sqlite with dsn", map[string]string{"STORE_BACKEND": "sqlite", "STORE_DSN": "/var/lib/triage/kv.db"}, "sqlite", "/var/lib/triage/kv.db"},
		{"postgres keeps empty dsn", map[string]string{"STORE_BACKEND": "postgres"}, "postgres", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := Load("")
			require.NoError(t, err)
			assert.Equal(t, tt.backend, cfg.StoreBackend)
			assert.Equal(t, tt.dsn, cfg.StoreDSN)
		})
	}
}

func TestLoad_EnvOverridesAndPlaceholderKey(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GEMINI_API_KEY", PlaceholderGeminiKey)
	t.Setenv("LLM_RATE_LIMIT", "5")
	t.Setenv("LABELS_CHECKED", "done")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Empty(t, cfg.GeminiAPIKey)
	assert.Equal(t, 5, cfg.LLMRateLimit)
	assert.Equal(t, "done", cfg.Labels.Checked)
}

func TestLoad_YAMLRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "triage.yaml")
	yaml := `
keywords:
  single: [退信]
  combinations:
    - [帳號, 盜用]
ignore:
  sender_rules:
    - name: bounce
      sender_contains: [mailer-daemon@]
      subject_prefix: "Undelivered"
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"退信"}, cfg.Rules.SingleKeywords)
	assert.Equal(t, [][]string{{"帳號", "盜用"}}, cfg.Rules.CombinationKeywords)
	require.Len(t, cfg.Rules.SenderRules, 1)
	assert.Equal(t, "Undelivered", cfg.Rules.SenderRules[0].SubjectPrefix)

	rules := cfg.Rules.KeywordRules()
	require.Len(t, rules, 2)
	assert.Equal(t, "帳號 + 盜用", rules[1].Label())
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())

	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad timezone", map[string]string{"TIMEZONE": "Mars/Olympus"}},
		{"bad report time", map[string]string{"REPORT_AT": "5pm"}},
		{"unknown provider", map[string]string{"LLM_PROVIDER": "claude"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			require.Error(t, err)
			assert.True(t, apperr.HasCode(err, apperr.CodeConfigError))
		})
	}
}

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock("17:30")
	require.NoError(t, err)
	assert.Equal(t, 17, h)
	assert.Equal(t, 30, m)
}
