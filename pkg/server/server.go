// Package server exposes the engine over HTTP with gin. It owns routing,
// request decoding and status-code mapping only; every decision about
// providers and prompts stays in the engine.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/folio-dev/folio/pkg/classifier"
	"github.com/folio-dev/folio/pkg/engine"
	"github.com/folio-dev/folio/pkg/logging"
	"github.com/folio-dev/folio/pkg/metrics"
	"github.com/folio-dev/folio/pkg/orchestrator"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Backend is what the HTTP layer needs from the engine.
type Backend interface {
	Process(ctx context.Context, req orchestrator.Request) (orchestrator.Response, error)
	Classify(text string) classifier.Result
	Status() engine.Status
}

// Options configures a Server.
type Options struct {
	Logger   *slog.Logger        // Nil discards logs.
	Metrics  *metrics.Recorder   // Nil disables HTTP metrics.
	Gatherer prometheus.Gatherer // Nil disables GET /metrics.
}

// Server routes HTTP requests to a Backend.
type Server struct {
	backend  Backend
	log      *slog.Logger
	metrics  *metrics.Recorder
	gatherer prometheus.Gatherer
	router   *gin.Engine
}

// New builds the router. Call gin.SetMode before New to change gin's mode.
func New(backend Backend, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}

	s := &Server{
		backend:  backend,
		log:      log,
		metrics:  opts.Metrics,
		gatherer: opts.Gatherer,
		router:   gin.New(),
	}

	s.router.Use(
		RequestID(),
		AccessLog(log),
		Metrics(opts.Metrics),
		gin.Recovery(),
	)
	s.routes()

	return s
}

func (s *Server) routes() {
	s.router.GET("/health", s.health)

	if s.gatherer != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	ai := s.router.Group("/api/ai")
	ai.POST("/chat", s.chat)
	ai.POST("/classify", s.classify)
	ai.GET("/status", s.status)
}

// Handler returns the http.Handler serving all routes.
func (s *Server) Handler() http.Handler { return s.router }
