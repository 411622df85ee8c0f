// Package api exposes the quality-control operations over HTTP with gin.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/qualitygate/internal/activity"
	"github.com/zulandar/qualitygate/internal/defect"
	"github.com/zulandar/qualitygate/internal/imagestore"
	"github.com/zulandar/qualitygate/internal/inspection"
	"github.com/zulandar/qualitygate/internal/product"
	"github.com/zulandar/qualitygate/internal/stats"
	"gorm.io/gorm"
)

// Services are the operations served by the API. Images may be nil when
// the image backend cannot serve reads.
type Services struct {
	DB          *gorm.DB
	Products    *product.Service
	Inspections *inspection.Manager
	Defects     *defect.Registry
	Stats       *stats.Aggregator
	Activities  *activity.Store
	Images      imagestore.Getter
}

// StartOpts holds configuration for the API server.
type StartOpts struct {
	Services
	Port        int
	MaxUploadMB int
	Logger      *slog.Logger
	Out         io.Writer
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(opts StartOpts) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))
	if opts.MaxUploadMB > 0 {
		router.MaxMultipartMemory = int64(opts.MaxUploadMB) << 20
	}
	registerRoutes(router, &handlers{svc: opts.Services, logger: logger})
	return router
}

// Start launches the API server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.DB == nil {
		return fmt.Errorf("api: db is required")
	}
	if opts.Products == nil || opts.Inspections == nil || opts.Defects == nil || opts.Stats == nil || opts.Activities == nil {
		return fmt.Errorf("api: all services are required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           NewRouter(opts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "API listening on http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}
