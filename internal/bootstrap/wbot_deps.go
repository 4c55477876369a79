// Package bootstrap wires configuration, stores, providers, and services
// into a runnable API application.
package bootstrap

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for database/sql
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/oauth2"

	"github.com/countplus7/wbot-backend-sub000/adapter/out/messaging"
	"github.com/countplus7/wbot-backend-sub000/adapter/out/mongodb"
	"github.com/countplus7/wbot-backend-sub000/adapter/out/persistence"
	"github.com/countplus7/wbot-backend-sub000/adapter/out/provider"
	"github.com/countplus7/wbot-backend-sub000/config"
	"github.com/countplus7/wbot-backend-sub000/core/agent/llm"
	out "github.com/countplus7/wbot-backend-sub000/core/port/out"
	"github.com/countplus7/wbot-backend-sub000/core/service/classify"
	"github.com/countplus7/wbot-backend-sub000/core/service/common"
	"github.com/countplus7/wbot-backend-sub000/core/service/faq"
	"github.com/countplus7/wbot-backend-sub000/core/service/pipeline"
	"github.com/countplus7/wbot-backend-sub000/infra/database"
	"github.com/countplus7/wbot-backend-sub000/pkg/cache"
	"github.com/countplus7/wbot-backend-sub000/pkg/logger"
	"github.com/countplus7/wbot-backend-sub000/pkg/retry"
)

type Dependencies struct {
	Config  *config.Config
	DB      *pgxpool.Pool
	SQLDB   *sqlx.DB
	Redis   *redis.Client
	MongoDB *mongo.Client

	// Repositories
	MessageLog   out.MessageLog
	LabelRepo    out.LabelRepository
	FAQRepo      out.FAQRepository
	BusinessRepo out.BusinessRepository
	OAuthTokens  *persistence.OAuthTokenAdapter
	ConvState    out.ConversationState

	// Archive
	PayloadArchive out.PayloadArchive

	// Providers
	Sender    out.MessageSender
	Calendar  out.CalendarProvider
	CRMClient out.CRMClient

	// Agent
	LLMClient *llm.Client

	// Services
	ResultCache *common.TwoTierCache
	Registry    *classify.LabelRegistry
	Classifier  *classify.SemanticClassifier
	Matcher     *faq.Matcher
	Pipeline    *pipeline.Pipeline
}

func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()

	// Database (pgxpool)
	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	deps.DB = db
	cleanups = append(cleanups, func() { db.Close() })

	// Database (sqlx for the repositories)
	sqlxURL := cfg.DatabaseURL
	if strings.Contains(sqlxURL, "?") {
		sqlxURL += "&default_query_exec_mode=simple_protocol"
	} else {
		sqlxURL += "?default_query_exec_mode=simple_protocol"
	}
	sqlDB, err := sqlx.Connect("pgx", sqlxURL)
	if err != nil {
		return nil, nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	deps.SQLDB = sqlDB
	cleanups = append(cleanups, func() { sqlDB.Close() })

	// Redis
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedis(cfg.RedisURL)
		if err != nil {
			logger.Warn("Redis connection failed, degrading to memory-only caching: %v", err)
		} else {
			deps.Redis = redisClient
			cleanups = append(cleanups, func() { redisClient.Close() })
		}
	}

	// MongoDB (webhook payload archive)
	if cfg.MongoDBURL != "" {
		mongoClient, err := mongodb.NewClient(cfg.MongoDBURL)
		if err != nil {
			logger.Warn("MongoDB connection failed, payload archiving disabled: %v", err)
		} else {
			deps.MongoDB = mongoClient
			cleanups = append(cleanups, func() {
				mongoClient.Disconnect(context.Background())
			})

			archive, err := mongodb.NewPayloadArchiveAdapter(mongoClient, cfg.MongoDBName)
			if err != nil {
				logger.Warn("payload archive init failed: %v", err)
			} else {
				deps.PayloadArchive = archive
			}
		}
	}

	// Repositories
	deps.MessageLog = persistence.NewMessageLogAdapter(sqlDB)
	deps.LabelRepo = persistence.NewLabelAdapter(sqlDB)
	deps.FAQRepo = persistence.NewFAQAdapter(sqlDB)
	deps.BusinessRepo = persistence.NewBusinessAdapter(sqlDB)
	deps.OAuthTokens = persistence.NewOAuthTokenAdapter(sqlDB)

	// Conversation state (pending prompts) lives in Redis with a TTL so an
	// abandoned confirmation expires on its own.
	if deps.Redis != nil {
		deps.ConvState = persistence.NewRedisConversationState(deps.Redis, cfg.PendingPromptTTL)
	}

	// Classification result cache: in-process LRU over Redis.
	var durable common.DurableStore
	if deps.Redis != nil {
		durable = cache.NewRedisCache(deps.Redis)
	}
	deps.ResultCache = common.NewTwoTierCache(durable, &common.TwoTierCacheConfig{
		Memory: &common.MemoryCacheConfig{
			MaxEntries: cfg.CacheMaxEntries,
			TTL:        cfg.CacheMemoryTTL,
			SweepEvery: cfg.CacheSweepInterval,
			Now:        time.Now,
		},
		DurableTTL: cfg.CacheDurableTTL,
	})
	cleanups = append(cleanups, func() { deps.ResultCache.Stop() })

	// LLM client (embeddings + completions)
	deps.LLMClient = llm.NewClientWithConfig(llm.ClientConfig{
		APIKey:      cfg.OpenAIAPIKey,
		Model:       cfg.LLMModel,
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: cfg.LLMTemperature,
		EmbedRetry: retry.Policy{
			MaxAttempts:     cfg.LLMMaxRetries,
			BaseDelay:       200 * time.Millisecond,
			MaxDelay:        5 * time.Second,
			BackoffMultiple: 2.0,
		},
	})

	// Classifier: label registry + cosine scan + generative fallback.
	deps.Registry = classify.NewLabelRegistry(deps.LabelRepo)
	if err := deps.Registry.Reload(context.Background()); err != nil {
		logger.Warn("initial label load failed, classifier starts empty: %v", err)
	}
	fallback := classify.NewFallbackClassifier(deps.LLMClient)
	deps.Classifier = classify.NewSemanticClassifier(deps.Registry, deps.LLMClient, fallback, deps.ResultCache)

	// FAQ matcher
	deps.Matcher = faq.NewMatcher(deps.FAQRepo, deps.LLMClient, &faq.MatcherConfig{
		Thresholds:   cfg.FAQThresholds,
		KeywordFloor: cfg.FAQKeywordMin,
		CacheTTL:     cfg.FAQSetCacheTTL,
	})

	// Outbound providers
	deps.Sender = messaging.NewWhatsAppSender(messaging.WhatsAppSenderConfig{
		AccessToken: cfg.WhatsAppAccessToken,
	}, deps.BusinessRepo)

	if cfg.GoogleClientID != "" && cfg.GoogleClientSecret != "" {
		oauthConfig := &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			Scopes: []string{
				"https://www.googleapis.com/auth/calendar.events",
			},
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://accounts.google.com/o/oauth2/auth",
				TokenURL: "https://oauth2.googleapis.com/token",
			},
		}
		deps.Calendar = provider.NewGoogleCalendarAdapter(oauthConfig, deps.OAuthTokens)
	}

	if cfg.CRMBaseURL != "" {
		deps.CRMClient = provider.NewCRMAdapter(provider.CRMAdapterConfig{
			BaseURL: cfg.CRMBaseURL,
			APIKey:  cfg.CRMAPIKey,
		})
	}

	// Pipeline: ordered handler chain, most specific first. The assistant is
	// the catch-all before the apology fallback.
	handlers := []pipeline.Handler{
		pipeline.NewCommandHandler(deps.ConvState),
		pipeline.NewFollowupHandler(deps.ConvState, deps.Calendar),
		pipeline.NewCalendarHandler(deps.Classifier, deps.LLMClient, deps.Calendar, deps.ConvState),
		pipeline.NewActionHandler(deps.Classifier, deps.CRMClient),
		pipeline.NewFAQHandler(deps.Matcher),
		pipeline.NewAssistantHandler(deps.LLMClient),
	}
	deps.Pipeline = pipeline.New(deps.MessageLog, deps.PayloadArchive, deps.Sender, handlers)

	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	return deps, cleanup, nil
}

func (d *Dependencies) HealthCheck(ctx context.Context) error {
	if err := d.DB.Ping(ctx); err != nil {
		return err
	}

	if d.Redis != nil {
		if err := d.Redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}

	return nil
}
