// Package console serves a read-only HTTP view of one process's service
// registry: health, registered services, installed modules and Prometheus
// metrics.
//
//	GET /healthz                          health of the framework parts
//	GET /services?interface=&filter=      matching services, ranked
//	GET /services/:id                     one service
//	GET /modules                          installed modules
//	GET /metrics                          Prometheus exposition
//	GET /version                          build identity
//
// With an AuthSecret configured, every route but /healthz requires an HS256
// bearer token.
package console

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/kbukum/svckit/logger"
	"github.com/kbukum/svckit/module"
	"github.com/kbukum/svckit/observability"
	"github.com/kbukum/svckit/registry"
)

// ModuleLister reports installed modules. *module.Manager implements it.
type ModuleLister interface {
	List() []module.Info
}

// HealthFunc reports the aggregated health the console serves.
type HealthFunc func(ctx context.Context) *observability.ServiceHealth

// Option configures a Console.
type Option func(*Console)

// WithModules lists modules on /modules and in metrics.
func WithModules(m ModuleLister) Option {
	return func(c *Console) { c.modules = m }
}

// WithHealth sets the /healthz source. Without it only the registry is
// checked.
func WithHealth(fn HealthFunc) Option {
	return func(c *Console) { c.health = fn }
}

// WithLogger sets the console's logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Console) { c.log = l }
}

// Console is the admin HTTP surface.
type Console struct {
	cfg     Config
	reg     *registry.Registry
	modules ModuleLister
	health  HealthFunc
	log     *logger.Logger

	engine   *gin.Engine
	prom     *prometheus.Registry
	requests *prometheus.CounterVec

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// New builds the console's routes. It does not listen until Start.
func New(cfg Config, reg *registry.Registry, opts ...Option) *Console {
	cfg.ApplyDefaults()
	c := &Console{
		cfg: cfg,
		reg: reg,
		log: logger.WithComponent("console"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.health == nil {
		c.health = func(ctx context.Context) *observability.ServiceHealth {
			return observability.Collect(ctx, "svckit", "", reg)
		}
	}

	c.prom = prometheus.NewRegistry()
	c.prom.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		newRegistryCollector(reg, c.modules),
	)
	c.requests = promauto.With(c.prom).NewCounterVec(prometheus.CounterOpts{
		Name: "svckit_console_requests_total",
		Help: "Console HTTP requests by route and status.",
	}, []string{"route", "status"})

	c.engine = c.routes()
	return c
}

func (c *Console) routes() *gin.Engine {
	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	e := gin.New()
	e.Use(c.recovery(), c.requestLogger())
	if c.cfg.AuthSecret != "" {
		e.Use(bearerAuth(tokenVerifier{secret: []byte(c.cfg.AuthSecret), issuer: c.cfg.AuthIssuer}, "/healthz"))
	}

	e.GET("/healthz", c.handleHealth)
	e.GET("/services", c.handleServices)
	e.GET("/services/:id", c.handleService)
	e.GET("/modules", c.handleModules)
	e.GET("/metrics", gin.WrapH(promhttp.HandlerFor(c.prom, promhttp.HandlerOpts{})))
	e.GET("/version", c.handleVersion)
	return e
}

// Handler returns the console's HTTP handler, for mounting or tests.
func (c *Console) Handler() http.Handler {
	return c.engine
}

// Start binds the configured address and serves in the background. It
// returns once the port is bound.
func (c *Console) Start(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.server != nil {
		return nil
	}

	ln, err := net.Listen("tcp", c.cfg.Addr)
	if err != nil {
		return fmt.Errorf("console failed to bind %s: %w", c.cfg.Addr, err)
	}
	srv := &http.Server{
		Handler:      c.engine,
		ReadTimeout:  c.cfg.ReadTimeout,
		WriteTimeout: c.cfg.WriteTimeout,
	}
	c.server, c.listener = srv, ln

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.log.Error("console server error", logger.Fields(logger.FieldError, err.Error()))
		}
	}()
	c.log.Info("console started", logger.Fields("addr", ln.Addr().String(), "auth", c.cfg.AuthSecret != ""))
	return nil
}

// Stop shuts the server down, waiting up to the configured shutdown timeout.
func (c *Console) Stop(ctx context.Context) error {
	c.mu.Lock()
	srv := c.server
	c.server, c.listener = nil, nil
	c.mu.Unlock()
	if srv == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, c.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("console shutdown: %w", err)
	}
	c.log.Info("console stopped")
	return nil
}

// Addr returns the bound address while running, or the configured one.
func (c *Console) Addr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listener != nil {
		return c.listener.Addr().String()
	}
	return c.cfg.Addr
}
