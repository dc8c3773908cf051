package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/danavision/discovery-go/config"
	"github.com/danavision/discovery-go/internal/ai"
	"github.com/danavision/discovery-go/internal/core"
	"github.com/danavision/discovery-go/internal/crawl"
	"github.com/danavision/discovery-go/internal/data"
	httpx "github.com/danavision/discovery-go/internal/http"
	"github.com/danavision/discovery-go/internal/observability/notify/pagerduty"
	"github.com/danavision/discovery-go/internal/observability/notify/slack"
	"github.com/danavision/discovery-go/internal/observability/statsd"
	"github.com/danavision/discovery-go/internal/service"
	"github.com/danavision/discovery-go/internal/service/failurenotifier"
)

// ServiceContainer holds all application services. Pipeline services may be
// nil when their dependencies are not configured; the worker leaves the
// corresponding job types unregistered.
type ServiceContainer struct {
	Jobs   *service.JobService
	Stores *service.StoreService

	Pricing     *service.PricingService
	Vision      *service.VisionService
	LocalStores *service.LocalStoreService
	SmartFill   *service.SmartFillService

	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink     *statsd.Client
	MetricsConfig   config.ObservabilityMetricsConfig
	FailureNotifier *failurenotifier.Service
	NotifierConfig  config.ObservabilityNotificationsConfig
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// serviceRepositories groups data adapters backing service ports.
type serviceRepositories struct {
	DB        *sql.DB
	Redis     redis.UniversalClient
	JobRepo   *data.JobRepo
	StoreRepo *data.StoreRepo
	StateRepo *data.DiscoveryStateRepo
	CacheRepo *data.RedisCacheRepo
	Images    *data.FileImageStore
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled:    true,
			Address:    cfg.Metrics.StatsdAddress,
			Prefix:     cfg.Metrics.Namespace,
			GlobalTags: cfg.Metrics.GlobalTags(),
			Logger:     obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	failureNotifier := buildFailureNotifier(obsLogger, cfg.Notifications)

	return ObservabilityContainer{
		MetricsSink:     metricsSink,
		MetricsConfig:   cfg.Metrics,
		FailureNotifier: failureNotifier,
		NotifierConfig:  cfg.Notifications,
	}
}

// buildRepositories builds repositories backing service ports; no business rules here.
func buildRepositories(db *sql.DB, redisClient redis.UniversalClient, logger *slog.Logger) *serviceRepositories {
	repos := &serviceRepositories{
		DB:        db,
		Redis:     redisClient,
		JobRepo:   data.NewJobRepo(db, data.RepoConfig{Logger: logger}),
		StoreRepo: data.NewStoreRepo(db),
		StateRepo: data.NewDiscoveryStateRepo(db),
	}
	if redisClient != nil {
		repos.CacheRepo = data.NewRedisCacheRepo(redisClient)
	}
	return repos
}

// ensureImageStore attaches the file-backed image store once config is
// available. A store that cannot be created leaves Images nil; vision jobs
// then stay unregistered on this process.
func ensureImageStore(repos *serviceRepositories, cfg config.ImageStoreConfig, logger *slog.Logger) {
	store, err := data.NewFileImageStore(cfg.Dir)
	if err != nil {
		log := logger
		if log == nil {
			log = slog.Default()
		}
		log.Warn("image store unavailable, vision jobs disabled", "dir", cfg.Dir, "error", err)
		return
	}
	repos.Images = store
}

func newJobService(repos *serviceRepositories, observability ObservabilityContainer, logger *slog.Logger) *service.JobService {
	return service.MustNewJobService(service.JobServiceOptions{
		Repo:            repos.JobRepo,
		DefaultLease:    30 * time.Second,
		Logger:          logger,
		FailureNotifier: observability.FailureNotifier,
	})
}

func newStoreService(repos *serviceRepositories, logger *slog.Logger) *service.StoreService {
	return service.MustNewStoreService(service.StoreServiceOptions{
		Repo:   repos.StoreRepo,
		Logger: logger,
	})
}

// buildAIGateway turns the configured provider blocks into clients behind one
// gateway, primary first. Returns nil when no provider is usable; AI-backed
// services stay disabled and price discovery runs fail with ErrNoProviders.
func buildAIGateway(cfg config.AIConfig, logger *slog.Logger) *ai.Gateway {
	blocks := cfg.Configured()
	providers := make([]ai.Provider, 0, len(blocks))
	for _, block := range blocks {
		client, err := ai.NewClient(ai.Config{
			Name:         block.Name,
			BaseURL:      block.BaseURL,
			APIKey:       block.APIKey,
			Model:        block.Model,
			VisionModel:  block.VisionModel,
			Timeout:      block.Timeout,
			TokenURL:     block.TokenURL,
			ClientID:     block.ClientID,
			ClientSecret: block.ClientSecret,
			Scopes:       block.Scopes,
		})
		if err != nil {
			logger.Error("failed to initialise AI provider", "provider", block.Name, "error", err)
			continue
		}
		providers = append(providers, client)
	}
	if len(providers) == 0 {
		return nil
	}
	return ai.NewGateway(providers...)
}

func newCrawlClient(cfg config.CrawlConfig, logger *slog.Logger) *crawl.Client {
	client, err := crawl.NewClient(crawl.Config{
		BaseURL:          cfg.BaseURL,
		PageTimeout:      cfg.PageTimeout,
		RequestTimeout:   cfg.RequestTimeout,
		BatchTimeoutCap:  cfg.BatchTimeoutCap,
		SearchMaxResults: cfg.SearchMaxResults,
	})
	if err != nil {
		logger.Error("failed to initialise crawl client", "error", err)
		return nil
	}
	return client
}

func newPriceCacheService(repos *serviceRepositories, cfg config.CacheConfig) *core.PriceCacheService {
	if repos.CacheRepo == nil {
		return nil
	}
	return core.NewPriceCacheService(core.PriceCacheServiceOptions{
		Cache:  repos.CacheRepo,
		Config: core.PriceCacheConfig{TTL: cfg.PriceTTL},
	})
}

func newLocalStoreCacheService(repos *serviceRepositories, cfg config.CacheConfig) *core.LocalStoreCacheService {
	if repos.CacheRepo == nil {
		return nil
	}
	return core.NewLocalStoreCacheService(core.LocalStoreCacheServiceOptions{
		Cache: repos.CacheRepo,
		Config: core.LocalStoreCacheConfig{
			TTL:        cfg.LocalStoreTTL,
			StaleAfter: cfg.LocalStoreStaleAfter,
		},
	})
}

type pricingServiceDeps struct {
	Repos   *serviceRepositories
	Crawler *crawl.Client
	Gateway *ai.Gateway
	Cache   *core.PriceCacheService
	Config  config.DiscoveryConfig
	Logger  *slog.Logger
}

func newPricingService(deps pricingServiceDeps) *service.PricingService {
	if deps.Crawler == nil {
		return nil
	}
	opts := service.PricingServiceOptions{
		Stores:              deps.Repos.StoreRepo,
		Crawler:             deps.Crawler,
		Cache:               deps.Cache,
		MinResults:          deps.Config.MinResults,
		MaxTier2URLs:        deps.Config.MaxTier2URLs,
		Tier2RatePerSecond:  deps.Config.Tier2RatePerSecond,
		ExtractionSelectors: deps.Config.ExtractionSelectors,
		Logger:              deps.Logger,
	}
	if deps.Gateway != nil {
		opts.AI = deps.Gateway
	} else {
		deps.Logger.Warn("no AI provider configured; price discovery jobs will fail until one is added")
	}
	svc, err := service.NewPricingService(opts)
	if err != nil {
		deps.Logger.Error("failed to initialise pricing service", "error", err)
		return nil
	}
	return svc
}

func newVisionService(repos *serviceRepositories, gateway *ai.Gateway, cfg config.ImageStoreConfig, logger *slog.Logger) *service.VisionService {
	if repos.Images == nil || gateway == nil {
		return nil
	}
	return service.MustNewVisionService(service.VisionServiceOptions{
		Images:        repos.Images,
		AI:            gateway,
		MaxImageBytes: cfg.MaxBytes,
		Logger:        logger,
	})
}

type localStoreServiceDeps struct {
	Repos   *serviceRepositories
	Crawler *crawl.Client
	Gateway *ai.Gateway
	Cache   *core.LocalStoreCacheService
	Logger  *slog.Logger
}

func newLocalStoreService(deps localStoreServiceDeps) *service.LocalStoreService {
	if deps.Crawler == nil {
		return nil
	}
	opts := service.LocalStoreServiceOptions{
		Stores:  deps.Repos.StoreRepo,
		States:  deps.Repos.StateRepo,
		Crawler: deps.Crawler,
		Cache:   deps.Cache,
		Logger:  deps.Logger,
	}
	if deps.Gateway != nil {
		opts.AI = deps.Gateway
	}
	return service.MustNewLocalStoreService(opts)
}

func newSmartFillService(gateway *ai.Gateway, logger *slog.Logger) *service.SmartFillService {
	if gateway == nil {
		return nil
	}
	return service.MustNewSmartFillService(service.SmartFillServiceOptions{
		AI:     gateway,
		Logger: logger,
	})
}

// DomainServicesOptions groups inputs for buildDomainServices.
type DomainServicesOptions struct {
	Repos         *serviceRepositories
	Observability ObservabilityContainer
	Config        *config.AppConfig
	Logger        *slog.Logger
}

// buildDomainServices wires business services using repositories and
// observability adapters. Optional pipeline dependencies (AI providers, crawl
// sidecar, image store) that are missing disable their services rather than
// failing startup, so an API-only deployment needs none of them.
func buildDomainServices(opts *DomainServicesOptions) ServiceContainer {
	if opts == nil {
		return ServiceContainer{}
	}
	svcLogger := opts.Logger
	if svcLogger == nil {
		svcLogger = slog.Default()
	}

	appCfg := opts.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	ensureImageStore(opts.Repos, appCfg.Images, svcLogger)
	jobService := newJobService(opts.Repos, opts.Observability, svcLogger)
	storeService := newStoreService(opts.Repos, svcLogger)

	gateway := buildAIGateway(appCfg.AI, svcLogger)
	crawler := newCrawlClient(appCfg.Crawl, svcLogger)

	pricing := newPricingService(pricingServiceDeps{
		Repos:   opts.Repos,
		Crawler: crawler,
		Gateway: gateway,
		Cache:   newPriceCacheService(opts.Repos, appCfg.Cache),
		Config:  appCfg.Discovery,
		Logger:  svcLogger,
	})
	vision := newVisionService(opts.Repos, gateway, appCfg.Images, svcLogger)
	localStores := newLocalStoreService(localStoreServiceDeps{
		Repos:   opts.Repos,
		Crawler: crawler,
		Gateway: gateway,
		Cache:   newLocalStoreCacheService(opts.Repos, appCfg.Cache),
		Logger:  svcLogger,
	})
	smartFill := newSmartFillService(gateway, svcLogger)

	return ServiceContainer{
		Jobs:          jobService,
		Stores:        storeService,
		Pricing:       pricing,
		Vision:        vision,
		LocalStores:   localStores,
		SmartFill:     smartFill,
		Observability: opts.Observability,
	}
}

// NewServices builds the full service container from raw dependencies.
func NewServices(deps *ServiceDeps) ServiceContainer {
	if deps == nil {
		return ServiceContainer{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var obsCfg config.ObservabilityConfig
	if deps.Config != nil {
		obsCfg = deps.Config.Observability
		// Slack links fall back to the app's own job pages when no explicit
		// prefix is configured.
		if obsCfg.Notifications.Slack.JobURLPrefix == "" && deps.Config.HTTP.BaseURL != "" {
			obsCfg.Notifications.Slack.JobURLPrefix = deps.Config.HTTP.BaseURL + "/jobs"
		}
	}
	observability := buildObservability(logger, obsCfg)
	repos := buildRepositories(deps.DB, deps.RedisClient, logger)
	return buildDomainServices(&DomainServicesOptions{
		Repos:         repos,
		Observability: observability,
		Config:        deps.Config,
		Logger:        logger,
	})
}

func buildFailureNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *failurenotifier.Service {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = slog.Default()
	}

	if !cfg.Enabled {
		return failurenotifier.NewService(failurenotifier.Options{
			Logger: baseLogger.With("component", "failure_notifier"),
		})
	}

	sinks := make([]failurenotifier.SinkRegistration, 0, 2)

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:   cfg.Slack.WebhookURL,
			Channel:      cfg.Slack.Channel,
			Username:     cfg.Slack.Username,
			Timeout:      cfg.Timeout,
			RetryLimit:   cfg.RetryLimit,
			JobURLPrefix: cfg.Slack.JobURLPrefix,
		})
		if err != nil {
			baseLogger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{
				Name: "slack",
				Sink: client,
			})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			baseLogger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{
				Name: "pagerduty",
				Sink: client,
			})
		}
	}

	return failurenotifier.NewService(failurenotifier.Options{
		Logger: baseLogger.With("component", "failure_notifier"),
		Sinks:  sinks,
	})
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

// startHTTPServerIfEnabled starts the HTTP server if enabled. Building the
// identity middleware can fail (OIDC discovery), so the error is surfaced
// instead of starting an unauthenticated server.
func startHTTPServerIfEnabled(deps *serviceStartupDeps) (*http.Server, error) {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil, nil
	}

	var identityCfg config.IdentityConfig
	if deps.cfg.Config != nil {
		identityCfg = deps.cfg.Config.Identity
	}
	identity, err := BuildIdentity(deps.ctx, identityCfg, deps.logger)
	if err != nil {
		return nil, fmt.Errorf("build identity middleware: %w", err)
	}

	return StartHTTPServer(&HTTPServerConfig{
		Config:    deps.cfg.Config,
		Services:  deps.cfg.Services,
		Identity:  identity,
		Logger:    deps.logger,
		Readiness: buildReadinessChecks(deps.cfg.DB, deps.cfg.RedisClient),
	}), nil
}

// buildReadinessChecks wires /readyz to the shared connections. Absent
// dependencies contribute no probe.
func buildReadinessChecks(db *sql.DB, redisClient redis.UniversalClient) httpx.ReadinessChecks {
	var checks httpx.ReadinessChecks
	if db != nil {
		checks.Postgres = db.PingContext
	}
	if redisClient != nil {
		checks.Cache = data.NewRedisCacheRepo(redisClient).Health
	}
	return checks
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				if deps.logger != nil {
					deps.logger.WarnContext(
						ctx,
						"dropping background service error",
						"service",
						descriptor.name,
						"error",
						errMsg,
					)
				} else {
					slog.Default().WarnContext(ctx, "dropping background service error", "service", descriptor.name, "error", errMsg)
				}
			}
		}
	}()

	if deps.logger != nil {
		deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	} else {
		slog.Default().InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	}

	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}

		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newWorkerBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeWorker,
		name: "worker",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			var workerCfg config.WorkerConfig
			if deps.cfg.Config != nil {
				workerCfg = deps.cfg.Config.Worker
			}
			return RunWorker(ctx, WorkerConfig{
				Jobs:        deps.cfg.Services.Jobs,
				Pricing:     deps.cfg.Services.Pricing,
				Vision:      deps.cfg.Services.Vision,
				LocalStores: deps.cfg.Services.LocalStores,
				SmartFill:   deps.cfg.Services.SmartFill,
				Config:      workerCfg,
				Logger:      deps.logger,
				Metrics:     deps.cfg.Services.Observability.MetricsSink,
			})
		},
	}
}

func newSchedulerBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeScheduler,
		name: "scheduler",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			schedulerCfg := config.SchedulerConfig{}
			cacheCfg := config.CacheConfig{}
			if deps.cfg.Config != nil {
				schedulerCfg = deps.cfg.Config.Scheduler
				cacheCfg = deps.cfg.Config.Cache
			}
			return RunScheduler(ctx, SchedulerConfig{
				DB:              deps.cfg.DB,
				Logger:          deps.logger,
				BatchSize:       schedulerCfg.BatchSize,
				RefreshPriority: schedulerCfg.RefreshPriority,
				StaleAfter:      cacheCfg.LocalStoreStaleAfter,
				Interval:        schedulerCfg.Interval,
				Metrics:         deps.cfg.Services.Observability.MetricsSink,
			})
		},
	}
}

func newReaperBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeReaper,
		name: "reaper",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			var reaperCfg config.ReaperConfig
			var imagesCfg config.ImageStoreConfig
			if deps.cfg.Config != nil {
				reaperCfg = deps.cfg.Config.Reaper
				imagesCfg = deps.cfg.Config.Images
			}
			return RunReaper(ctx, ReaperConfig{
				DB:        deps.cfg.DB,
				Logger:    deps.logger,
				Config:    reaperCfg,
				ImagesDir: imagesCfg.Dir,
				Metrics:   deps.cfg.Services.Observability.MetricsSink,
			})
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newWorkerBackgroundService(deps),
		newSchedulerBackgroundService(deps),
		newReaperBackgroundService(deps),
	}
}

// ServiceStartupResult holds the results of starting all services.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

// startServices starts all enabled services and returns their completion channels.
func startServices(deps *serviceStartupDeps) (ServiceStartupResult, error) {
	httpServer, err := startHTTPServerIfEnabled(deps)
	if err != nil {
		return ServiceStartupResult{}, err
	}
	return ServiceStartupResult{
		HTTPServer: httpServer,
		Background: startBackgroundServices(deps, buildBackgroundServices(deps)),
	}, nil
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	ctx := context.Background()
	serviceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	// Determine which services are enabled
	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	// Start all enabled services
	result, err := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})
	if err != nil {
		return err
	}

	// Wait for shutdown signal or error
	return waitForShutdown(shutdownConfig{
		ctx:         serviceCtx,
		cancel:      cancel,
		errCh:       errCh,
		httpServer:  result.HTTPServer,
		jobService:  cfg.Services.Jobs,
		logger:      logger,
		httpCfg:     cfg.Config.HTTP,
		backgrounds: result.Background,
	})
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	modes := []config.ServiceMode{
		config.ServiceModeHTTP,
		config.ServiceModeWorker,
		config.ServiceModeScheduler,
		config.ServiceModeReaper,
	}

	count := 0
	for _, mode := range modes {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	size := errorChannelCapacity(enabled) + 1
	if size < 1 {
		return 1
	}
	return size
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx         context.Context
	cancel      context.CancelFunc
	errCh       <-chan error
	httpServer  *http.Server
	jobService  *service.JobService
	logger      *slog.Logger
	httpCfg     config.HTTPConfig
	backgrounds []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel() // Cancel service context before waiting
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel() // Cancel service context before waiting
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop attempts to gracefully stop all services.
func gracefulStop(cfg shutdownConfig) error {
	// Gracefully stop HTTP server if running. The service context is already
	// cancelled at this point, so the drain deadline starts from a fresh one.
	if cfg.httpServer != nil {
		if err := ShutdownHTTPServer(ShutdownConfig{
			Context:    context.Background(),
			Server:     cfg.httpServer,
			JobService: cfg.jobService,
			Logger:     cfg.logger,
			HTTP:       cfg.httpCfg,
		}); err != nil {
			return err
		}
	}

	// Wait for background services to finish
	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	return nil
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
