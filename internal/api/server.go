// Package api exposes the catalog over HTTP.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/zulandar/perfumery/internal/image"
)

// Deps are the collaborators the handlers use.
type Deps struct {
	DB     *gorm.DB
	Images *image.Service
	Log    zerolog.Logger
	// Registry collects HTTP metrics and is served at /metrics. A nil
	// Registry disables both.
	Registry *prometheus.Registry
	// PublicDir is served as static files under PublicPrefix.
	PublicDir      string
	PublicPrefix   string
	MaxUploadBytes int64
}

// StartOpts holds configuration for the API server.
type StartOpts struct {
	Deps
	Addr string
	Out  io.Writer
}

// Start launches the API server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.DB == nil {
		return fmt.Errorf("api: db is required")
	}
	if opts.Images == nil {
		return fmt.Errorf("api: image service is required")
	}
	if opts.Addr == "" {
		opts.Addr = ":3000"
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           NewRouter(opts.Deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdown(srv, shutdownTimeout, opts.Log)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "API listening on http://%s\n", opts.Addr)
	}
	opts.Log.Info().Str("addr", opts.Addr).Msg("api server started")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: %w", err)
	}
	opts.Log.Info().Msg("api server stopped")
	return nil
}

const shutdownTimeout = 10 * time.Second

// shutdown stops srv, waiting up to timeout for in-flight requests.
func shutdown(srv *http.Server, timeout time.Duration, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("api server shutdown incomplete")
	}
}

// NewRouter builds the Gin engine with middleware and all routes.
func NewRouter(deps Deps) *gin.Engine {
	if deps.PublicPrefix == "" {
		deps.PublicPrefix = "/public/"
	}
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = 5 << 20
	}

	router := gin.New()
	router.Use(requestID(), recovery(deps.Log), requestLogger(deps.Log))
	if deps.Registry != nil {
		router.Use(NewMetrics(deps.Registry).Middleware())
	}
	registerRoutes(router, deps)
	return router
}
