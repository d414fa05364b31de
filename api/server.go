// Package api is the HTTP control surface: account state and history,
// start/stop/toggle/reset, a kline proxy for charts and a signal preview.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/rustyeddy/papertrader/bot"
	"github.com/rustyeddy/papertrader/feed"
	"github.com/rustyeddy/papertrader/strategies"
)

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	FeedTimeout     time.Duration
	MetricsPath     string
	Gatherer        prometheus.Gatherer
}

type ServerOption func(*ServerConfig)

func WithHost(host string) ServerOption {
	return func(c *ServerConfig) { c.Host = host }
}

func WithPort(port int) ServerOption {
	return func(c *ServerConfig) { c.Port = port }
}

func WithTimeouts(read, write, shutdown time.Duration) ServerOption {
	return func(c *ServerConfig) {
		c.ReadTimeout = read
		c.WriteTimeout = write
		c.ShutdownTimeout = shutdown
	}
}

func WithFeedTimeout(d time.Duration) ServerOption {
	return func(c *ServerConfig) {
		if d > 0 {
			c.FeedTimeout = d
		}
	}
}

// WithMetrics serves g in the Prometheus text format at path.
func WithMetrics(path string, g prometheus.Gatherer) ServerOption {
	return func(c *ServerConfig) {
		c.MetricsPath = path
		c.Gatherer = g
	}
}

type Server struct {
	echo   *echo.Echo
	config *ServerConfig
	bot    *bot.Bot
	feed   feed.Feed
	gen    strategies.Generator
	log    zerolog.Logger
}

// NewServer registers the routes. gen is used for signal previews only.
func NewServer(b *bot.Bot, f feed.Feed, gen strategies.Generator, log zerolog.Logger, opts ...ServerOption) *Server {
	cfg := &ServerConfig{
		Port:            8080,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		FeedTimeout:     10 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(recoverMiddleware(log))
	e.Use(requestLogging(log))
	e.Use(cors([]string{http.MethodGet, http.MethodPost, http.MethodOptions}))

	s := &Server{echo: e, config: cfg, bot: b, feed: f, gen: gen, log: log}
	s.registerRoutes()
	if cfg.Gatherer != nil && cfg.MetricsPath != "" {
		e.GET(cfg.MetricsPath, echo.WrapHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}
	return s
}

func (s *Server) registerRoutes() {
	g := s.echo.Group("/api")
	g.GET("/state", s.State)
	g.GET("/history", s.History)
	g.POST("/start", s.Start)
	g.POST("/stop", s.Stop)
	g.POST("/toggle", s.Toggle)
	g.POST("/reset", s.Reset)
	g.POST("/scan", s.Scan)
	g.GET("/klines", s.Klines)
	g.GET("/signal/:symbol", s.Signal)
}

func (s *Server) Echo() *echo.Echo { return s.echo }

func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.Addr(),
		Handler:      s.echo,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", srv.Addr).Msg("http server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.log.Info().Msg("http server stopped")
	return nil
}
