// Package api exposes the transfer pipeline over HTTP.
package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/dharsanguruparan/DataBridge/internal/notify"
	"github.com/dharsanguruparan/DataBridge/internal/pipeline"
	"github.com/dharsanguruparan/DataBridge/internal/signing"
	"github.com/dharsanguruparan/DataBridge/internal/stage"
)

// Stager writes uploaded bytes to the staging area and returns their sha256
// and size.
type Stager interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, int64, error)
}

// Reporter accepts stage outcomes delivered by external scanners and movers.
type Reporter interface {
	ReportScan(ctx context.Context, r stage.ScanReport) error
	ReportCopy(ctx context.Context, r stage.CopyReport) error
}

// Presigner issues time-limited download URLs for delivered files.
type Presigner interface {
	PresignProduction(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Options tunes the HTTP surface.
type Options struct {
	Address     string
	MaxFileSize int64
	CallbackTTL time.Duration
	DownloadTTL time.Duration
}

// Server wires HTTP routes to the pipeline service.
type Server struct {
	opts     Options
	service  *pipeline.Service
	dir      pipeline.Directory
	reporter Reporter
	inbox    notify.Inbox
	stager   Stager
	signer   *signing.Signer
	presign  Presigner
	logger   *slog.Logger
	echo     *echo.Echo
}

// New constructs a Server. signer may be nil, which disables the callback
// routes.
func New(opts Options, service *pipeline.Service, dir pipeline.Directory, reporter Reporter, inbox notify.Inbox, stager Stager, signer *signing.Signer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = 2 << 30
	}
	if opts.DownloadTTL <= 0 {
		opts.DownloadTTL = 15 * time.Minute
	}
	s := &Server{
		opts:     opts,
		service:  service,
		dir:      dir,
		reporter: reporter,
		inbox:    inbox,
		stager:   stager,
		signer:   signer,
		logger:   logger,
	}
	s.echo = s.routes()
	return s
}

// SetPresigner enables download links for delivered files.
func (s *Server) SetPresigner(p Presigner) { s.presign = p }

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.errorHandler

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.Recover())
	e.Use(s.requestLogger())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization, ActorHeader},
	}))

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	authed := e.Group("", s.requireActor)
	authed.POST("/uploads", s.handleUpload)
	authed.POST("/transfers", s.handleSubmit)
	authed.GET("/transfers", s.handleList)
	authed.GET("/transfers/:id", s.handleGet)
	authed.GET("/transfers/:id/history", s.handleHistory)
	authed.POST("/transfers/:id/decision", s.handleDecide)
	authed.POST("/transfers/:id/cancel", s.handleCancel)
	authed.GET("/transfers/:id/files/:fileId/download", s.handleDownload)
	authed.GET("/stats", s.handleStats)

	authed.GET("/notifications", s.handleNotifications)
	authed.POST("/notifications/read-all", s.handleReadAll)
	authed.POST("/notifications/:id/read", s.handleRead)
	authed.DELETE("/notifications/:id", s.handleDeleteNotification)

	if s.signer != nil && s.reporter != nil {
		cb := e.Group("/callbacks", s.verifySignature)
		cb.POST("/scan", s.handleScanCallback)
		cb.POST("/copy", s.handleCopyCallback)
	}
	return e
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Address,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.logger.Info("api listening", "address", s.opts.Address)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
