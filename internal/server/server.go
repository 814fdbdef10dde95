// Package server exposes the HTTP API: device ingest, playback history,
// session management and the live stream endpoint.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	appconfig "fieldtrack/config"
	"fieldtrack/internal/analytics"
	"fieldtrack/internal/fix"
	"fieldtrack/internal/ingest"
	"fieldtrack/internal/store"
	"fieldtrack/logger"
)

// FixStore is the persistence surface the handlers need. *store.Store
// satisfies it; tests substitute an in-memory fake.
type FixStore interface {
	InsertFixes(ctx context.Context, fixes []fix.Fix) (int, error)
	QueryRange(ctx context.Context, from, to time.Time) ([]fix.Fix, error)
	CreateSession(ctx context.Context, name string, startedAt time.Time) (store.Session, error)
	GetSession(ctx context.Context, id int64) (store.Session, error)
	ListSessions(ctx context.Context) ([]store.Session, error)
	EndSession(ctx context.Context, id int64, endedAt time.Time) error
	UpdateSessionBase(ctx context.Context, id int64, lat, lon float64) error
}

// Broadcaster pushes freshly accepted fixes to live viewers.
type Broadcaster interface {
	Publish(fixes []fix.Fix)
}

// ArchiveSink buffers accepted fixes for cold storage.
type ArchiveSink interface {
	Add(fixes []fix.Fix)
}

type Server struct {
	cfg        *appconfig.Config
	log        *logger.Log
	store      FixStore
	processor  *ingest.Processor
	engine     *analytics.Engine
	hub        Broadcaster
	archiver   ArchiveSink
	wsHandler  http.Handler
	limiters   *deviceLimiters
	httpServer *http.Server
}

func NewServer(cfg *appconfig.Config, st FixStore, proc *ingest.Processor) *Server {
	return &Server{
		cfg:       cfg,
		log:       logger.GetLogger(),
		store:     st,
		processor: proc,
		engine:    analytics.NewEngine(),
		limiters:  newDeviceLimiters(cfg.Ingest.RatePerDevice, cfg.Ingest.RateBurst),
	}
}

// SetBroadcaster attaches the live hub; wsHandler serves the subscriber
// endpoint. Both are optional.
func (s *Server) SetBroadcaster(hub Broadcaster, wsHandler http.Handler) {
	s.hub = hub
	s.wsHandler = wsHandler
}

// SetArchiver attaches the cold storage sink. Optional.
func (s *Server) SetArchiver(sink ArchiveSink) {
	s.archiver = sink
}

// Run starts the HTTP server and blocks until the context is cancelled or
// the listener fails.
func (s *Server) Run(ctx context.Context) error {
	router, err := s.buildRouter()
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Addr:         s.cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	s.log.WithComponent("server").WithFields(logger.Fields{
		"address": s.cfg.Server.Address,
	}).Info("http server listening")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		timeout := s.cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		if err == nil {
			return nil
		}
		return err
	}
}

func (s *Server) buildRouter() (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		api.POST("/gps", s.handleIngest)
		api.GET("/history", s.handleHistory)
		api.GET("/sessions", s.handleListSessions)
		api.POST("/sessions", s.handleCreateSession)
		api.POST("/sessions/:id/base", s.handleUpdateBase)
		api.POST("/sessions/:id/end", s.handleEndSession)
	}

	if s.wsHandler != nil {
		router.GET("/api/live", gin.WrapH(s.wsHandler))
	}

	return router, nil
}
