package config

import (
	"os"
	"strings"
)

// AppConfig composes the per-domain configuration blocks, each loaded
// from environment variables through github.com/caarlos0/env. The env
// tags live next to the block definitions:
//   - identity.go: caller identity verification
//   - database.go: Postgres, Redis and cache tuning
//   - http.go: HTTP server and compression
//   - providers.go: AI and crawl provider endpoints
//   - services.go: service modes, worker, scheduler and reaper
//   - observability.go: metrics and failure notifications
type AppConfig struct {
	// IsDev relaxes provider requirements and enables header identity
	// fallback. Set DEV=true for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// Identity configuration (bearer token verification).
	Identity IdentityConfig

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`
	Cache    CacheConfig

	// HTTP server configuration
	HTTP HTTPConfig

	// Services selects which service modes this process runs.
	Services string `env:"SERVICES" envDefault:"http,worker"`

	// AI provider configuration
	AI AIConfig

	// Crawl sidecar configuration
	Crawl CrawlConfig

	// Discovery engine tuning
	Discovery DiscoveryConfig

	// Image storage configuration
	Images ImageStoreConfig

	// Worker configuration
	Worker WorkerConfig

	// Scheduler configuration
	Scheduler SchedulerConfig

	// Reaper configuration
	Reaper ReaperConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to every block after env loading. Call it
// once on a freshly loaded config before handing it to the services.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.Postgres.Sanitize()
	c.Cache.Sanitize()
	c.AI.Sanitize()
	c.Crawl.Sanitize()
	c.Discovery.Sanitize()
	c.Worker.Sanitize()
	c.Scheduler.Sanitize()
	c.Reaper.Sanitize()
	c.Observability.Sanitize()

	c.detectDevMode()
	c.Identity.Sanitize(c.IsDev)
}

// detectDevMode also honours NODE_ENV=development, which the frontend
// tooling sets, so a shared dev environment needs only one variable.
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}

// GetEnabledServices parses the Services field into a mode set.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// serviceEnabled reports whether mode is in the Services list. Parse
// failures read as disabled; startup validation surfaces them.
func (c *AppConfig) serviceEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[mode]
}

// IsHTTPServerEnabled reports whether the HTTP API should be started.
func (c *AppConfig) IsHTTPServerEnabled() bool {
	return c.serviceEnabled(ServiceModeHTTP)
}

// IsWorkerEnabled reports whether the job worker should be started.
func (c *AppConfig) IsWorkerEnabled() bool {
	return c.serviceEnabled(ServiceModeWorker)
}

// IsSchedulerEnabled reports whether the scheduler should be started.
func (c *AppConfig) IsSchedulerEnabled() bool {
	return c.serviceEnabled(ServiceModeScheduler)
}

// IsReaperEnabled reports whether the reaper should be started.
func (c *AppConfig) IsReaperEnabled() bool {
	return c.serviceEnabled(ServiceModeReaper)
}
