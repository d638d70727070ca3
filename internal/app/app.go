// Package app wires the services together and manages the process lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/cors"

	"github.com/garyellow/timetable-linebot-go/internal/api"
	"github.com/garyellow/timetable-linebot-go/internal/backup"
	"github.com/garyellow/timetable-linebot-go/internal/buildinfo"
	"github.com/garyellow/timetable-linebot-go/internal/config"
	"github.com/garyellow/timetable-linebot-go/internal/digest"
	"github.com/garyellow/timetable-linebot-go/internal/export"
	"github.com/garyellow/timetable-linebot-go/internal/genai"
	"github.com/garyellow/timetable-linebot-go/internal/importer"
	"github.com/garyellow/timetable-linebot-go/internal/lease"
	"github.com/garyellow/timetable-linebot-go/internal/logger"
	"github.com/garyellow/timetable-linebot-go/internal/metrics"
	"github.com/garyellow/timetable-linebot-go/internal/qa"
	"github.com/garyellow/timetable-linebot-go/internal/r2client"
	"github.com/garyellow/timetable-linebot-go/internal/ratelimit"
	"github.com/garyellow/timetable-linebot-go/internal/schedule"
	"github.com/garyellow/timetable-linebot-go/internal/sentry"
	"github.com/garyellow/timetable-linebot-go/internal/storage"
	"github.com/garyellow/timetable-linebot-go/internal/webhook"
)

// Application manages the application lifecycle and dependencies.
type Application struct {
	cfg            *config.Config
	logger         *logger.Logger
	db             *storage.DB
	metrics        *metrics.Metrics
	registry       *prometheus.Registry
	recognizer     genai.Recognizer
	answerer       genai.Answerer
	llmLimiter     *ratelimit.KeyedLimiter
	userLimiter    *ratelimit.KeyedLimiter
	webhookHandler *webhook.Handler // nil when LINE is not configured
	digest         *digest.Scheduler
	backup         *backup.Runner
	server         *http.Server
	wg             sync.WaitGroup
}

// Initialize creates and initializes a new application with all dependencies.
func Initialize(ctx context.Context, cfg *config.Config) (*Application, error) {
	var logOpts logger.Options
	if cfg.BetterStackEnabled {
		logOpts.BetterStackToken = cfg.BetterStackToken
		logOpts.BetterStackEndpoint = cfg.BetterStackEndpoint
	}
	log := logger.NewWithOptions(cfg.LogLevel, os.Stdout, logOpts)
	log = log.WithField("service", "timetable-linebot-go").WithField("version", buildinfo.Release())
	if host, err := os.Hostname(); err == nil && host != "" {
		log = log.WithField("instance_id", host)
	}
	// Package-level slog calls pick up user, chat and request ids from ctx.
	slog.SetDefault(log.Logger)

	log.Info("Initializing application...")

	if cfg.SentryEnabled {
		release := cfg.SentryRelease
		if release == "" {
			release = buildinfo.Release()
		}
		if err := sentry.Initialize(sentry.Config{
			DSN:         cfg.SentryDSN,
			Environment: cfg.SentryEnvironment,
			Release:     release,
			SampleRate:  cfg.SentrySampleRate,
		}); err != nil {
			log.WithError(err).Warn("Sentry initialization failed")
		} else {
			log.WithField("environment", cfg.SentryEnvironment).Info("Sentry error reporting enabled")
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewBuildInfoCollector(),
	)
	m := metrics.New(registry)

	db, err := storage.New(ctx, cfg.SQLitePath())
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	log.WithField("path", cfg.SQLitePath()).Info("Database connected")

	sections := config.DefaultSectionTable()
	if cfg.SectionTimesFile != "" {
		if sections, err = config.LoadSectionTable(cfg.SectionTimesFile); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("section times: %w", err)
		}
	}

	var r2 *r2client.Client
	if cfg.R2Enabled {
		r2, err = r2client.New(ctx, r2client.Config{
			AccountID:   cfg.R2AccountID,
			AccessKeyID: cfg.R2AccessKeyID,
			SecretKey:   cfg.R2SecretAccessKey,
			BucketName:  cfg.R2BucketName,
		})
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("r2: %w", err)
		}
		log.WithField("bucket", cfg.R2BucketName).Info("R2 storage enabled")
	}

	loc := cfg.Location()
	engine := schedule.NewCachedEngine(schedule.NewEngine(db, loc), cfg.QueryCacheTTL, m)

	app := &Application{
		cfg:      cfg,
		logger:   log,
		db:       db,
		metrics:  m,
		registry: registry,
	}

	if cfg.HasLLMProvider() {
		llmCfg := buildLLMConfig(cfg)
		app.recognizer = genai.NewRecognizer(ctx, llmCfg, m)
		app.answerer = genai.NewAnswerer(ctx, llmCfg, m)
	}

	images, err := importer.NewImageStore(ctx, cfg, r2)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("image store: %w", err)
	}

	imports := importer.NewService(db, newLocker(r2, cfg, m), importer.Options{
		Recognizer:    app.recognizer,
		Images:        images,
		Cache:         engine,
		Recorder:      m,
		LockWait:      cfg.ImportLockTimeout,
		MaxImageBytes: cfg.MaxImageBytes,
	})

	app.llmLimiter = ratelimit.NewKeyedLimiter(ratelimit.KeyedConfig{
		Name:          "llm",
		Burst:         cfg.LLMRateBurst,
		RefillRate:    cfg.LLMRateRefill / 3600.0, // hourly to per-second
		DailyLimit:    cfg.LLMRateDaily,
		CleanupPeriod: config.RateLimiterCleanupInterval,
		Recorder:      m,
	})
	app.userLimiter = ratelimit.NewKeyedLimiter(ratelimit.KeyedConfig{
		Name:          "user",
		Burst:         cfg.UserRateBurst,
		RefillRate:    cfg.UserRateRefill,
		CleanupPeriod: config.RateLimiterCleanupInterval,
		Recorder:      m,
	})

	asker := qa.NewService(engine, qa.Options{
		Answerer:  app.answerer,
		Limiter:   app.llmLimiter,
		Tokenizer: qa.NewSegmenterTokenizer(),
		Location:  loc,
		Timeout:   config.AnswerRequest,
	})
	exporter := export.NewService(db, sections, loc, m)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	router.Use(securityHeadersMiddleware())
	router.Use(loggingMiddleware(log))

	if cfg.JWTSecret != "" {
		api.NewHandler(api.Config{
			Auth:          api.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer),
			Query:         engine,
			Importer:      imports,
			Exporter:      exporter,
			Asker:         asker,
			Subscriptions: db,
			UserLimiter:   app.userLimiter,
			Metrics:       m,
			Location:      loc,
			MaxImageBytes: cfg.MaxImageBytes,
		}).Register(router)
		log.Info("JSON API enabled")
	}

	if cfg.LineEnabled() {
		content, err := webhook.NewBlobContent(cfg.LineChannelToken, cfg.MaxImageBytes)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("line content: %w", err)
		}
		bot := webhook.NewBot(webhook.BotConfig{
			Importer:      imports,
			Asker:         asker,
			Query:         engine,
			Terms:         db,
			Subscriptions: db,
			Cache:         engine,
			Content:       content,
			UserLimiter:   app.userLimiter,
			Location:      loc,
		})
		app.webhookHandler, err = webhook.NewHandler(webhook.HandlerConfig{
			ChannelSecret: cfg.LineChannelSecret,
			ChannelToken:  cfg.LineChannelToken,
			Bot:           bot,
			Metrics:       m,
			Logger:        log,
		})
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("webhook: %w", err)
		}

		if cfg.DigestEnabled {
			pusher, err := digest.NewLinePusher(cfg.LineChannelToken)
			if err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("digest: %w", err)
			}
			app.digest = digest.NewScheduler(db, engine, pusher, m, cfg.DigestInterval)
		}
	}

	if r2 != nil {
		app.backup, err = backup.NewR2(db, r2, cfg.R2LockKey, m, backup.Config{
			Key:          cfg.R2BackupKey,
			Interval:     cfg.R2BackupInterval,
			InitialDelay: config.BackupInitialDelay,
			LockTTL:      cfg.R2LockTTL,
		})
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("backup: %w", err)
		}
	}

	app.registerRoutes(router)

	app.server = &http.Server{
		Addr: ":" + cfg.Port,
		Handler: cors.New(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         600,
		}).Handler(router),
		ReadHeaderTimeout: config.WebhookHTTPRead,
		ReadTimeout:       config.WebhookHTTPRead,
		WriteTimeout:      config.WebhookHTTPWrite,
		IdleTimeout:       config.WebhookHTTPIdle,
	}

	log.WithField("features", app.features()).Info("Initialization complete")
	return app, nil
}

// newLocker returns the import lease: in-process only, or backed by R2
// locks when several instances share the bucket.
func newLocker(r2 *r2client.Client, cfg *config.Config, m *metrics.Metrics) lease.Locker {
	local := lease.NewKeyed(m)
	if r2 == nil {
		return local
	}
	newLock := r2client.LockFactory(r2, "locks/import/", cfg.R2LockTTL)
	return lease.NewDistributed(local, func(key string) lease.RemoteLock {
		return newLock(key)
	})
}

// buildLLMConfig creates an LLMConfig from the application config.
func buildLLMConfig(cfg *config.Config) genai.LLMConfig {
	llmCfg := genai.DefaultLLMConfig()

	llmCfg.Gemini.APIKey = cfg.GeminiAPIKey
	llmCfg.Qwen.APIKey = cfg.QwenAPIKey
	if cfg.QwenBaseURL != "" {
		llmCfg.Qwen.BaseURL = cfg.QwenBaseURL
	}

	if len(cfg.GeminiVisionModels) > 0 {
		llmCfg.Gemini.VisionModels = cfg.GeminiVisionModels
	}
	if len(cfg.GeminiChatModels) > 0 {
		llmCfg.Gemini.ChatModels = cfg.GeminiChatModels
	}
	if len(cfg.QwenVisionModels) > 0 {
		llmCfg.Qwen.VisionModels = cfg.QwenVisionModels
	}
	if len(cfg.QwenChatModels) > 0 {
		llmCfg.Qwen.ChatModels = cfg.QwenChatModels
	}
	if len(cfg.LLMProviders) > 0 {
		providers := make([]genai.Provider, 0, len(cfg.LLMProviders))
		for _, p := range cfg.LLMProviders {
			switch p {
			case "gemini":
				providers = append(providers, genai.ProviderGemini)
			case "qwen":
				providers = append(providers, genai.ProviderQwen)
			default:
				slog.Warn("ignoring unknown provider", "name", p)
			}
		}
		if len(providers) > 0 {
			llmCfg.Providers = providers
		}
	}

	return llmCfg
}

// Run starts the HTTP server and background jobs, then blocks until
// SIGINT or SIGTERM.
//
// Background jobs are stopped and awaited before any resource is closed so
// a running backup never sees a closed database.
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.startBackgroundJobs(ctx)
	a.startHTTPServer()

	sig := a.waitForShutdownSignal()
	a.logger.WithField("signal", sig.String()).Info("Received shutdown signal")

	cancel()

	a.logger.Info("Waiting for background jobs to finish...")
	start := time.Now()
	a.wg.Wait()
	a.logger.WithField("duration_ms", time.Since(start).Milliseconds()).
		Info("All background jobs completed")

	return a.shutdown()
}

// startHTTPServer starts the HTTP server in a goroutine.
func (a *Application) startHTTPServer() {
	go func() {
		a.logger.WithField("port", a.cfg.Port).Info("Starting HTTP server")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.WithError(err).Error("HTTP server error")
		}
	}()
}

// waitForShutdownSignal blocks until SIGINT/SIGTERM is received.
func (a *Application) waitForShutdownSignal() os.Signal {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	return <-quit
}

// shutdown stops the HTTP server, drains webhook events and closes
// resources. It runs after background jobs have returned.
func (a *Application) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	a.logger.Info("Stopping HTTP server...")
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Error("HTTP server shutdown error")
	}

	if a.webhookHandler != nil {
		a.logger.Info("Waiting for webhook events to complete...")
		if err := a.webhookHandler.Shutdown(shutdownCtx); err != nil {
			a.logger.WithError(err).Warn("Webhook handler shutdown timeout")
		}
	}

	a.logger.Info("Closing resources...")
	if a.recognizer != nil {
		if err := a.recognizer.Close(); err != nil {
			a.logger.WithError(err).WithField("component", "recognizer").Error("Component close error")
		}
	}
	if a.answerer != nil {
		if err := a.answerer.Close(); err != nil {
			a.logger.WithError(err).WithField("component", "answerer").Error("Component close error")
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).WithField("component", "database").Error("Component close error")
	}
	if a.llmLimiter != nil {
		a.llmLimiter.Stop()
	}
	if a.userLimiter != nil {
		a.userLimiter.Stop()
	}

	sentry.Flush(2 * time.Second)
	if err := a.logger.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Warn("Logger shutdown timed out")
	}

	a.logger.Info("Shutdown complete")
	return nil
}
