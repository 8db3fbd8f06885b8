package bootstrap

import (
	"context"
	"fmt"
	"time"

	httpadapter "triage_worker/adapter/in/http"
	"triage_worker/adapter/in/worker"
	"triage_worker/adapter/out/messaging"
	"triage_worker/adapter/out/mongodb"
	"triage_worker/adapter/out/persistence"
	"triage_worker/adapter/out/provider"
	"triage_worker/config"
	"triage_worker/core/agent/llm"
	"triage_worker/core/port/out"
	"triage_worker/core/service/analysis"
	"triage_worker/core/service/classification"
	"triage_worker/core/service/notification"
	"triage_worker/core/service/report"
	"triage_worker/core/service/triage"
	"triage_worker/infra/database"
	"triage_worker/pkg/cache"
	"triage_worker/pkg/httputil"
	"triage_worker/pkg/logger"
	"triage_worker/pkg/ratelimit"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// Dependencies is the wired object graph shared by the CLI commands and the admin API.
type Dependencies struct {
	Config   *config.Config
	Location *time.Location

	Redis   *redis.Client
	MongoDB *mongo.Client

	KV      out.KVStore
	Archive out.ReportArchive // nil without MongoDB
	Mailbox out.Mailbox

	Generator  out.TextGenerator
	Limiter    ratelimit.Limiter
	Classifier *llm.Classifier

	Notifications *notification.Service
	Analyses      *analysis.Store
	Triage        *triage.Service
	Report        *report.Service
	Lock          *cache.RunLock
	Scheduler     *worker.Scheduler
}

// NewDependencies builds every component from cfg. The returned cleanup closes
// connections in reverse order of creation.
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, fmt.Errorf("timezone: %w", err)
	}
	deps := &Dependencies{Config: cfg, Location: loc}

	// Redis (선택)
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedis(cfg.RedisURL)
		if err != nil {
			if cfg.StoreBackend == "redis" {
				return fail(fmt.Errorf("redis: %w", err))
			}
			logger.Warn("Redis connection failed, using process-local lock and limiter: %v", err)
		} else {
			deps.Redis = redisClient
			cleanups = append(cleanups, func() { redisClient.Close() })
			logger.Info("Redis connected")
		}
	}

	// MongoDB (선택) - report archive, optionally also the KV backend
	if cfg.MongoDBURL != "" {
		mongoClient, err := mongodb.NewClient(cfg.MongoDBURL)
		if err != nil {
			if cfg.StoreBackend == "mongo" {
				return fail(fmt.Errorf("mongodb: %w", err))
			}
			logger.Warn("MongoDB connection failed, report archive disabled: %v", err)
		} else {
			deps.MongoDB = mongoClient
			if cfg.StoreBackend != "mongo" {
				cleanups = append(cleanups, func() {
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					mongoClient.Disconnect(ctx)
				})
			}

			archive := mongodb.NewReportAdapter(mongoClient.Database(cfg.MongoDBName), mongodb.DefaultReportRetention)
			if err := archive.EnsureIndexes(ctx); err != nil {
				logger.Warn("Failed to ensure report archive indexes: %v", err)
			}
			deps.Archive = archive
			logger.Info("MongoDB report archive initialized (db=%s)", cfg.MongoDBName)
		}
	}

	// Analysis store
	kv, err := newKVStore(ctx, cfg, deps)
	if err != nil {
		return fail(err)
	}
	deps.KV = kv
	cleanups = append(cleanups, func() {
		if err := kv.Close(); err != nil {
			logger.Warn("Failed to close KV store: %v", err)
		}
	})
	deps.Analyses = analysis.NewStore(kv, loc)
	logger.Info("Analysis store initialized (backend=%s)", cfg.StoreBackend)

	// Gmail
	mailbox, err := provider.NewGmailMailbox(ctx, &provider.GmailConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RefreshToken: cfg.GoogleRefreshToken,
		User:         cfg.GmailUser,
	})
	if err != nil {
		return fail(fmt.Errorf("gmail: %w", err))
	}
	deps.Mailbox = mailbox

	// Slack
	var notifier out.Notifier
	if cfg.SlackWebhookURL != "" {
		webhook, err := messaging.NewSlackWebhook(cfg.SlackWebhookURL, nil)
		if err != nil {
			return fail(fmt.Errorf("slack: %w", err))
		}
		notifier = webhook
	} else if cfg.EnableSlackNotifications {
		logger.Warn("ENABLE_SLACK_NOTIFICATIONS is set but SLACK_WEBHOOK_URL is empty, notifications disabled")
	}
	deps.Notifications = notification.NewService(notifier, notification.Config{
		Enabled:      cfg.EnableSlackNotifications,
		ErrorChannel: cfg.SlackLLMErrorChannel,
		Location:     loc,
	})

	// LLM
	deps.Generator = newGenerator(cfg)
	if deps.Redis != nil {
		deps.Limiter = ratelimit.NewRedisSlidingWindow(deps.Redis, "classifier", cfg.LLMRateLimit, cfg.LLMRateWindow())
	} else {
		deps.Limiter = ratelimit.NewSlidingWindow(cfg.LLMRateLimit, ratelimit.WithWindow(cfg.LLMRateWindow()))
	}
	deps.Classifier = llm.NewClassifier(deps.Generator, deps.Limiter, deps.Notifications, cfg.UseAI)
	logger.Info("Classifier initialized (provider=%s, model=%s, ai=%v)", cfg.LLMProvider, deps.Generator.Model(), cfg.UseAI)

	// Services
	ignore := classification.NewIgnorePolicy(cfg.Rules.IgnoredDomains, cfg.Rules.IgnoreBodyPhrases, cfg.Rules.SenderRules)
	deps.Triage = triage.NewService(triage.Deps{
		Mailbox:    deps.Mailbox,
		Classifier: deps.Classifier,
		Store:      deps.Analyses,
		Alerts:     deps.Notifications,
		Matcher:    classification.NewKeywordMatcher(cfg.Rules.KeywordRules()),
		Ignore:     ignore,
	}, triage.Config{
		UseAI:             cfg.UseAI,
		Labels:            cfg.Labels,
		ExcludedDomains:   cfg.Rules.ExcludedDomains,
		BatchLimit:        cfg.BatchLimit,
		ReprocessPageSize: cfg.ReprocessPageSize,
		LookbackHours:     cfg.LookbackHours,
		Location:          loc,
	})
	deps.Report = report.NewService(
		deps.Mailbox,
		deps.Analyses,
		deps.Classifier,
		deps.Notifications,
		deps.Archive,
		cfg.Labels,
		loc,
	)

	// Scheduler
	deps.Lock = cache.NewRunLock(deps.Redis, cache.DefaultLockTTL)
	schedule, err := newScheduleConfig(cfg, loc)
	if err != nil {
		return fail(err)
	}
	deps.Scheduler = worker.NewScheduler(deps.Triage, deps.Report, deps.Analyses, deps.Lock, schedule)

	return deps, cleanup, nil
}

func newKVStore(ctx context.Context, cfg *config.Config, deps *Dependencies) (out.KVStore, error) {
	switch cfg.StoreBackend {
	case "memory":
		logger.Warn("Using in-memory analysis store, analyses are lost when the process exits")
		return persistence.NewMemoryKV(), nil

	case "redis":
		if deps.Redis == nil {
			return nil, fmt.Errorf("store_backend redis requires REDIS_URL")
		}
		return persistence.NewRedisKV(deps.Redis, persistence.DefaultRedisPrefix), nil

	case database.DialectPostgres, database.DialectMySQL, database.DialectSQLite:
		if cfg.StoreDSN == "" {
			return nil, fmt.Errorf("store_backend %s requires STORE_DSN", cfg.StoreBackend)
		}
		db, err := database.NewSQL(cfg.StoreBackend, cfg.StoreDSN)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", cfg.StoreBackend, err)
		}
		kv, err := persistence.NewSQLKV(ctx, db, cfg.StoreBackend, cfg.StoreTable)
		if err != nil {
			db.Close()
			return nil, err
		}
		return kv, nil

	case "mongo":
		if deps.MongoDB == nil {
			return nil, fmt.Errorf("store_backend mongo requires MONGODB_URL")
		}
		return mongodb.NewKVAdapter(deps.MongoDB, cfg.MongoDBName), nil

	default:
		return nil, fmt.Errorf("unknown store_backend %q", cfg.StoreBackend)
	}
}

func newGenerator(cfg *config.Config) out.TextGenerator {
	client := httputil.NewClient(httputil.LLMClientConfig(cfg.LLMTimeout()))
	if cfg.LLMProvider == "openai" {
		return llm.NewOpenAIGenerator(llm.OpenAIConfig{
			APIKey:     cfg.OpenAIAPIKey,
			Model:      cfg.OpenAIModel,
			HTTPClient: client,
		})
	}
	return llm.NewGeminiGenerator(llm.GeminiConfig{
		APIKey:     cfg.GeminiAPIKey,
		Model:      cfg.GeminiModel,
		Endpoint:   cfg.GeminiEndpoint,
		HTTPClient: client,
	})
}

func newScheduleConfig(cfg *config.Config, loc *time.Location) (*worker.ScheduleConfig, error) {
	schedule := worker.DefaultScheduleConfig()
	schedule.Location = loc
	if cfg.BatchIntervalMin > 0 {
		schedule.BatchEvery = time.Duration(cfg.BatchIntervalMin) * time.Minute
	}

	h, m, err := config.ParseClock(cfg.ReportAt)
	if err != nil {
		return nil, err
	}
	schedule.ReportAt = worker.Clock{Hour: h, Minute: m}

	h, m, err = config.ParseClock(cfg.EvictAt)
	if err != nil {
		return nil, err
	}
	schedule.EvictAt = worker.Clock{Hour: h, Minute: m}
	return schedule, nil
}

// HealthChecks returns the readiness probes of the connected backends.
func (d *Dependencies) HealthChecks() map[string]httpadapter.HealthCheck {
	checks := map[string]httpadapter.HealthCheck{
		"store": func(ctx context.Context) error {
			_, err := d.KV.List(ctx, "__health__")
			return err
		},
	}
	if d.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return d.Redis.Ping(ctx).Err()
		}
	}
	if d.MongoDB != nil {
		checks["mongodb"] = func(ctx context.Context) error {
			return d.MongoDB.Ping(ctx, nil)
		}
	}
	return checks
}
