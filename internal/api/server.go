// Package api serves the daemon's local HTTP API: the tab protocol, the
// settings and automation endpoints, a CONFIG_UPDATED event stream, and
// Prometheus metrics.
package api

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/zulandar/airminal/internal/automation"
	"github.com/zulandar/airminal/internal/bridge"
	"github.com/zulandar/airminal/internal/logger"
	"github.com/zulandar/airminal/internal/observer"
	"github.com/zulandar/airminal/internal/settings"
)

// DefaultPort is the API port when none is configured.
const DefaultPort = 19820

const defaultHeartbeat = 15 * time.Second

// Backend is what the API serves. *bridge.Hub implements it.
type Backend interface {
	Handle(ctx context.Context, raw []byte) (any, error)
	Config() settings.GlobalConfig
	SaveConfig(ctx context.Context, raw []byte) error
	Status() bridge.Status
	ClearSessions()
	TestConnection(ctx context.Context) bridge.TestResult
	TriggerAutomation(ctx context.Context, id string) automation.Result
	Automations() map[string]bridge.AutomationStatus
	Runs(ctx context.Context, id string, limit int) ([]bridge.RunView, error)
	Subscribe() (<-chan settings.GlobalConfig, func())
}

// Opts holds configuration for the API server.
type Opts struct {
	Hub Backend
	// Tabs, when set, lists the observed tabs for GET /api/tabs.
	Tabs func() []observer.Status
	// Metrics, when set, is served at GET /metrics.
	Metrics        http.Handler
	AllowedOrigins []string
	Port           int
	Heartbeat      time.Duration
	Out            io.Writer
	Logger         *logger.Logger
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(opts Opts) (*gin.Engine, error) {
	if opts.Hub == nil {
		return nil, fmt.Errorf("api: hub is required")
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = defaultHeartbeat
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(corsConfig(opts.AllowedOrigins)))
	registerRoutes(router, opts)
	return router, nil
}

// corsConfig allows the configured origins, or any origin when none are
// configured.
func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}
	// Origins may be chrome-extension:// and friends.
	cfg.AllowBrowserExtensions = true
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// Start launches the API server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts Opts) error {
	if opts.Port <= 0 {
		opts.Port = DefaultPort
	}
	gin.SetMode(gin.ReleaseMode)
	router, err := NewRouter(opts)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", opts.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// Event streams end with ctx instead of holding up Shutdown.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.OrNop(opts.Logger).Info("api: listening", "addr", addr)
	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "API listening at http://%s\n", addr)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}
