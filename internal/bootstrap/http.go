package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/danavision/discovery-go/config"
	httpx "github.com/danavision/discovery-go/internal/http"
	"github.com/danavision/discovery-go/internal/service"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config    *config.AppConfig
	Services  ServiceContainer
	Identity  func(http.Handler) http.Handler
	Logger    *slog.Logger
	Readiness httpx.ReadinessChecks
}

// StartHTTPServer wires the router, wraps it in middleware, and starts
// serving in the background. The returned server is what shutdown operates
// on; callers must not start it a second time.
func StartHTTPServer(cfg *HTTPServerConfig) *http.Server {
	if cfg == nil {
		return nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var httpCfg config.HTTPConfig
	if cfg.Config != nil {
		httpCfg = cfg.Config.HTTP
	}
	httpCfg.Sanitize()

	handler := assembleHandler(logger, httpCfg, httpx.RouterServices{
		Jobs:      cfg.Services.Jobs,
		Stores:    cfg.Services.Stores,
		Identity:  cfg.Identity,
		Logger:    logger,
		Readiness: cfg.Readiness,
	})

	server := &http.Server{
		Addr:         httpCfg.Addr,
		Handler:      handler,
		ReadTimeout:  httpCfg.ReadTimeout,
		WriteTimeout: httpCfg.WriteTimeout,
		IdleTimeout:  httpCfg.IdleTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
		}
	}()

	return server
}

// assembleHandler stacks middleware around the router. Compression sits
// innermost so the request log records the bytes actually sent; Recover is
// outermost so a panic anywhere below still produces a 500 instead of
// killing the connection.
func assembleHandler(logger *slog.Logger, httpCfg config.HTTPConfig, services httpx.RouterServices) http.Handler {
	h := http.Handler(httpx.NewRouter(services))

	if httpCfg.CompressionEnabled {
		logger.Info("HTTP compression enabled", "level", httpCfg.CompressionLevel)
		h = httpx.Compression(httpx.CompressionConfig{Level: httpCfg.CompressionLevel})(h)
	}

	h = httpx.Logging(logger)(h)
	h = httpx.Recover(logger)(h)

	return h
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context    context.Context
	Server     *http.Server
	JobService *service.JobService
	Logger     *slog.Logger
	HTTP       config.HTTPConfig
}

// ShutdownHTTPServer drains the HTTP server gracefully. Job listeners stop
// first so no new work is accepted while in-flight requests finish.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("shutting down HTTP server")

	if cfg.JobService != nil {
		cfg.JobService.StopAllListeners()
	}

	wait := cfg.HTTP
	wait.Sanitize()

	parent := cfg.Context
	if parent == nil {
		parent = context.Background()
	}
	shutdownCtx, cancel := context.WithTimeout(parent, wait.ShutdownTimeout)
	defer cancel()

	if err := cfg.Server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("HTTP server stopped")
	return nil
}
