// Package httpapi serves a project's catalog over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/aidanlsb/assetcat/internal/catalog"
	"github.com/aidanlsb/assetcat/internal/diag"
	"github.com/aidanlsb/assetcat/internal/syncagent"
)

const shutdownTimeout = 10 * time.Second

// Catalog is the catalog the server reads and rebuilds.
type Catalog interface {
	Current() *catalog.Snapshot
	Refresh(ctx context.Context) (catalog.Result, bool, error)
	Rebuild(ctx context.Context) (catalog.Result, error)
}

// Processor handles posted notifications.
type Processor interface {
	Process(ctx context.Context, batch []syncagent.Notification) syncagent.Report
}

// Persister saves rebuilt snapshots.
type Persister interface {
	SaveSnapshot(ctx context.Context, snap *catalog.Snapshot, diags diag.List) error
}

// Config holds the server's collaborators.
type Config struct {
	Catalog Catalog
	Agent   Processor
	// Store is optional. When set, rebuilds are persisted.
	Store   Persister
	Version string
	Logger  zerolog.Logger
}

// Server is the catalog HTTP API.
type Server struct {
	catalog Catalog
	agent   Processor
	store   Persister
	version string
	log     zerolog.Logger
	echo    *echo.Echo
}

// New creates a server with its routes registered.
func New(cfg Config) (*Server, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("catalog is required")
	}
	s := &Server{
		catalog: cfg.Catalog,
		agent:   cfg.Agent,
		store:   cfg.Store,
		version: cfg.Version,
		log:     cfg.Logger,
		echo:    echo.New(),
	}
	s.setupRoutes()
	return s, nil
}

// Handler returns the server's http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.echo.Listener = ln
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", ln.Addr().String()).Str("version", s.version).Msg("starting catalog server")
		if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	return s.Shutdown()
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Shutdown stops the server, waiting up to 10 seconds for requests in
// flight.
func (s *Server) Shutdown() error {
	s.log.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		s.log.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	s.log.Info().Msg("server stopped")
	return nil
}

func (s *Server) setupRoutes() {
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogMethod:  true,
		LogURI:     true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			s.log.Debug().
				Int("status", v.Status).
				Str("method", v.Method).
				Str("uri", v.URI).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))
	s.echo.Use(middleware.Recover())

	s.echo.GET("/healthz", s.health)
	v1 := s.echo.Group("/v1")
	v1.GET("/entries", s.listEntries)
	v1.GET("/entries/:guid", s.getEntry)
	v1.GET("/export", s.export)
	v1.GET("/diagnostics", s.diagnostics)
	v1.POST("/rebuild", s.rebuild)
	v1.POST("/notifications", s.notifications)
}
