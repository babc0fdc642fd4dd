// Package api provides the ambient HTTP surface for the engine: a health
// check and a read-only pipeline introspection endpoint, plus a read-only
// event stream for attached observers. Submitting or cancelling a pipeline
// is deliberately not exposed here — that stays a Go-native call into
// pkg/pipeline, invoked by cmd/autopipe.
package api

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/autopipe/engine/pkg/config"
	"github.com/autopipe/engine/pkg/events"
	"github.com/autopipe/engine/pkg/model"
	"github.com/autopipe/engine/pkg/store"
)

// Server is the ambient HTTP server: health/introspection only.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	cfg        *config.Config
	store      *store.Client

	connManager *events.ConnectionManager

	runningMu sync.RWMutex
	running   map[string]*model.Pipeline // pipelines this process is actively driving
}

// NewServer builds the ambient API server with gin, following tarsy's
// cmd/tarsy/main.go router setup.
func NewServer(cfg *config.Config, storeClient *store.Client, connManager *events.ConnectionManager) *Server {
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:      router,
		cfg:         cfg,
		store:       storeClient,
		connManager: connManager,
		running:     make(map[string]*model.Pipeline),
	}

	s.setupRoutes()
	return s
}

// TrackRunning registers a pipeline the caller is actively driving in this
// process, so getPipelineHandler can serve live state that hasn't been
// persisted yet. Called from cmd/autopipe around its RunPipeline call.
func (s *Server) TrackRunning(p *model.Pipeline) {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()
	s.running[p.ID] = p
}

// UntrackRunning removes a pipeline once its run has ended.
func (s *Server) UntrackRunning(id string) {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()
	delete(s.running, id)
}

func (s *Server) runningPipeline(id string) *model.Pipeline {
	s.runningMu.RLock()
	defer s.runningMu.RUnlock()
	return s.running[id]
}

func (s *Server) setupRoutes() {
	s.router.Use(securityHeaders())

	s.router.GET("/health", s.healthHandler)

	v1 := s.router.Group("/api/v1")
	v1.GET("/pipelines/:id", s.getPipelineHandler)
	v1.GET("/events", s.eventsHandler)
}

// Start starts the HTTP server on the given address (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener. Used
// by test infrastructure to serve on a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.router}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
