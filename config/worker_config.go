package config

import (
	"fmt"
	"strings"
	"time"

	"triage_worker/core/domain"
	"triage_worker/pkg/apperr"

	"github.com/spf13/viper"
)

// PlaceholderGeminiKey is shipped in sample configs and treated as unset.
const PlaceholderGeminiKey = "YOUR_GEMINI_API_KEY"

// DefaultSQLiteDSN is the analysis store file used when store_backend is sqlite and no DSN is set.
// Each CLI command is its own process, so the default store has to outlive it.
const DefaultSQLiteDSN = "triage.db"

type Config struct {
	Environment string

	// LLM
	LLMProvider     string
	GeminiAPIKey    string
	GeminiModel     string
	GeminiEndpoint  string
	OpenAIAPIKey    string
	OpenAIModel     string
	UseAI           bool
	LLMRateLimit    int
	LLMRateWindowMS int
	LLMTimeoutSec   int

	// Slack
	SlackWebhookURL          string
	SlackLLMErrorChannel     string
	EnableSlackNotifications bool

	// Gmail
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRefreshToken string
	GmailUser          string

	// Storage
	StoreBackend string
	StoreDSN     string
	StoreTable   string
	RedisURL     string
	MongoDBURL   string
	MongoDBName  string

	// Batch
	BatchLimit        int
	ReprocessPageSize int
	LookbackHours     int

	// Scheduler
	Timezone         string
	BatchIntervalMin int
	ReportAt         string
	EvictAt          string

	// Admin API
	AdminAddr      string
	AdminJWTSecret string

	// Logging
	LogLevel  string
	LogFormat string

	Rules  Rules
	Labels domain.LabelSet
}

// Rules holds the operator-curated matching lists.
type Rules struct {
	SingleKeywords      []string            `mapstructure:"single"`
	CombinationKeywords [][]string          `mapstructure:"combinations"`
	ExcludedDomains     []string            `mapstructure:"excluded"`
	IgnoredDomains      []string            `mapstructure:"ignored"`
	IgnoreBodyPhrases   []string            `mapstructure:"body_phrases"`
	SenderRules         []domain.SenderRule `mapstructure:"sender_rules"`
}

// KeywordRules flattens the keyword lists into rules, singles first.
func (r Rules) KeywordRules() []domain.KeywordRule {
	rules := make([]domain.KeywordRule, 0, len(r.SingleKeywords)+len(r.CombinationKeywords))
	for _, k := range r.SingleKeywords {
		rules = append(rules, domain.SingleKeyword(k))
	}
	for _, c := range r.CombinationKeywords {
		if len(c) == 0 {
			continue
		}
		rules = append(rules, domain.CombinationKeyword(c...))
	}
	return rules
}

// Default rule lists
var (
	DefaultSingleKeywords      = []string{"大量寄送失敗", "大量異常", "大量失敗", "大量退信"}
	DefaultCombinationKeywords = [][]string{{"詐騙", "異常"}}
	DefaultExcludedDomains     = []string{"newsleopard.com", "newsleopard.tw", "softech.com.tw", "calendly.com"}
	DefaultIgnoredDomains      = []string{"newsleopard.tw"}
	DefaultIgnoreBodyPhrases   = []string{"申請寄件者身份驗證", "簡訊網域申請", "簡訊白名單申請"}
)

// DefaultSenderRules returns the built-in automated sender rules.
func DefaultSenderRules() []domain.SenderRule {
	return []domain.SenderRule{
		{
			Name:           "mailgun-domain-verified",
			SenderContains: []string{"support@mailgun.net"},
			SubjectPrefix:  "Good news -",
			SubjectSuffix:  "is now verified",
		},
		{
			Name:            "newsleopard-support",
			SenderContains:  []string{"service@newsleopard.com", "service@newsleopard.tw"},
			SubjectContains: []string{"電子豹", "NewsLeopard"},
		},
	}
}

// DefaultLabels returns the built-in label names.
func DefaultLabels() domain.LabelSet {
	return domain.LabelSet{
		Checked: "監控已檢查",
		Keyword: "監控關鍵字",
		AI:      "監控AI建議注意",
		Legacy:  []string{"監控已Slack", "監控AI已Slack"},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")

	v.SetDefault("llm_provider", "gemini")
	v.SetDefault("gemini_api_key", "")
	v.SetDefault("gemini_model", "gemini-2.0-flash")
	v.SetDefault("gemini_endpoint", "https://generativelanguage.googleapis.com/v1")
	v.SetDefault("openai_api_key", "")
	v.SetDefault("openai_model", "gpt-4o-mini")
	v.SetDefault("use_ai", true)
	v.SetDefault("llm_rate_limit", 3)
	v.SetDefault("llm_rate_window_ms", 1000)
	v.SetDefault("llm_timeout_sec", 30)

	v.SetDefault("slack_webhook_url", "")
	v.SetDefault("slack_llm_error_channel", "")
	v.SetDefault("enable_slack_notifications", true)

	v.SetDefault("google_client_id", "")
	v.SetDefault("google_client_secret", "")
	v.SetDefault("google_refresh_token", "")
	v.SetDefault("gmail_user", "me")

	v.SetDefault("store_backend", "sqlite")
	v.SetDefault("store_dsn", "")
	v.SetDefault("store_table", "triage_kv")
	v.SetDefault("redis_url", "")
	v.SetDefault("mongodb_url", "")
	v.SetDefault("mongodb_database", "triage")

	v.SetDefault("batch_limit", 50)
	v.SetDefault("reprocess_page_size", 100)
	v.SetDefault("lookback_hours", 24)

	v.SetDefault("timezone", "Asia/Taipei")
	v.SetDefault("batch_interval_min", 5)
	v.SetDefault("report_at", "17:30")
	v.SetDefault("evict_at", "00:30")

	v.SetDefault("admin_addr", ":8080")
	v.SetDefault("admin_jwt_secret", "")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")

	v.SetDefault("keywords.single", DefaultSingleKeywords)
	v.SetDefault("domains.excluded", DefaultExcludedDomains)
	v.SetDefault("domains.ignored", DefaultIgnoredDomains)
	v.SetDefault("ignore.body_phrases", DefaultIgnoreBodyPhrases)

	labels := DefaultLabels()
	v.SetDefault("labels.checked", labels.Checked)
	v.SetDefault("labels.keyword", labels.Keyword)
	v.SetDefault("labels.ai", labels.AI)
	v.SetDefault("labels.legacy", labels.Legacy)
}

// Load resolves configuration from defaults, an optional YAML file and the environment.
// An empty path looks for triage.yaml in the working directory.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("triage")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{
		Environment: v.GetString("env"),

		LLMProvider:     strings.ToLower(v.GetString("llm_provider")),
		GeminiAPIKey:    v.GetString("gemini_api_key"),
		GeminiModel:     v.GetString("gemini_model"),
		GeminiEndpoint:  v.GetString("gemini_endpoint"),
		OpenAIAPIKey:    v.GetString("openai_api_key"),
		OpenAIModel:     v.GetString("openai_model"),
		UseAI:           v.GetBool("use_ai"),
		LLMRateLimit:    v.GetInt("llm_rate_limit"),
		LLMRateWindowMS: v.GetInt("llm_rate_window_ms"),
		LLMTimeoutSec:   v.GetInt("llm_timeout_sec"),

		SlackWebhookURL:          v.GetString("slack_webhook_url"),
		SlackLLMErrorChannel:     v.GetString("slack_llm_error_channel"),
		EnableSlackNotifications: v.GetBool("enable_slack_notifications"),

		GoogleClientID:     v.GetString("google_client_id"),
		GoogleClientSecret: v.GetString("google_client_secret"),
		GoogleRefreshToken: v.GetString("google_refresh_token"),
		GmailUser:          v.GetString("gmail_user"),

		StoreBackend: strings.ToLower(v.GetString("store_backend")),
		StoreDSN:     v.GetString("store_dsn"),
		StoreTable:   v.GetString("store_table"),
		RedisURL:     v.GetString("redis_url"),
		MongoDBURL:   v.GetString("mongodb_url"),
		MongoDBName:  v.GetString("mongodb_database"),

		BatchLimit:        v.GetInt("batch_limit"),
		ReprocessPageSize: v.GetInt("reprocess_page_size"),
		LookbackHours:     v.GetInt("lookback_hours"),

		Timezone:         v.GetString("timezone"),
		BatchIntervalMin: v.GetInt("batch_interval_min"),
		ReportAt:         v.GetString("report_at"),
		EvictAt:          v.GetString("evict_at"),

		AdminAddr:      v.GetString("admin_addr"),
		AdminJWTSecret: v.GetString("admin_jwt_secret"),

		LogLevel:  v.GetString("log_level"),
		LogFormat: v.GetString("log_format"),

		Rules: Rules{
			SingleKeywords:    v.GetStringSlice("keywords.single"),
			ExcludedDomains:   v.GetStringSlice("domains.excluded"),
			IgnoredDomains:    v.GetStringSlice("domains.ignored"),
			IgnoreBodyPhrases: v.GetStringSlice("ignore.body_phrases"),
		},
		Labels: domain.LabelSet{
			Checked: v.GetString("labels.checked"),
			Keyword: v.GetString("labels.keyword"),
			AI:      v.GetString("labels.ai"),
			Legacy:  v.GetStringSlice("labels.legacy"),
		},
	}

	if err := v.UnmarshalKey("keywords.combinations", &cfg.Rules.CombinationKeywords); err != nil {
		return nil, fmt.Errorf("keywords.combinations: %w", err)
	}
	if !v.IsSet("keywords.combinations") {
		cfg.Rules.CombinationKeywords = DefaultCombinationKeywords
	}
	if err := v.UnmarshalKey("ignore.sender_rules", &cfg.Rules.SenderRules); err != nil {
		return nil, fmt.Errorf("ignore.sender_rules: %w", err)
	}
	if !v.IsSet("ignore.sender_rules") {
		cfg.Rules.SenderRules = DefaultSenderRules()
	}

	if cfg.StoreBackend == "sqlite" && cfg.StoreDSN == "" {
		cfg.StoreDSN = DefaultSQLiteDSN
	}
	if cfg.GeminiAPIKey == PlaceholderGeminiKey {
		cfg.GeminiAPIKey = ""
	}

	if err := cfg.Validate(); err != nil {
		return nil, apperr.ConfigError(err.Error())
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	for _, at := range []string{c.ReportAt, c.EvictAt} {
		if _, _, err := ParseClock(at); err != nil {
			return err
		}
	}
	switch c.LLMProvider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("unknown llm_provider %q", c.LLMProvider)
	}
	if c.Labels.Checked == "" {
		return fmt.Errorf("labels.checked must not be empty")
	}
	return nil
}

// Location returns the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// LLMRateWindow returns the rolling window LLMRateLimit applies to.
func (c *Config) LLMRateWindow() time.Duration {
	if c.LLMRateWindowMS <= 0 {
		return time.Second
	}
	return time.Duration(c.LLMRateWindowMS) * time.Millisecond
}

// LLMTimeout returns the per-call classifier timeout.
func (c *Config) LLMTimeout() time.Duration {
	if c.LLMTimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.LLMTimeoutSec) * time.Second
}

// ParseClock parses an "HH:MM" wall clock time.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q, want HH:MM", s)
	}
	return t.Hour(), t.Minute(), nil
}
