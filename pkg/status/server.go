// Package status serves the benchmark state over HTTP.
package status

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/itohio/adcbench/pkg/bench"
)

const shutdownTimeout = 5 * time.Second

// Provider exposes the state of a run. *bench.Runner satisfies it.
type Provider interface {
	Latest() (bench.Result, bool)
	Summary() bench.Summary
}

// SummaryResponse is the body of GET /api/v1/summary.
type SummaryResponse struct {
	bench.Summary
	Winner string `json:"winner"`
}

// Server is the status HTTP endpoint.
type Server struct {
	addr     string
	provider Provider
	metrics  http.Handler
	log      logrus.FieldLogger
	router   *gin.Engine
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics serves h on GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithLogger sets the request logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// New creates a status server listening on addr once Run is called.
func New(addr string, p Provider, opts ...Option) *Server {
	s := &Server{
		addr:     addr,
		provider: p,
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(s.log))

	api := router.Group("/api/v1")
	api.GET("/latest", s.getLatest)
	api.GET("/summary", s.getSummary)

	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(s.metrics))
	}

	return router
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	l, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

// Serve serves on l until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("status server listening on %s", l.Addr().String())
		errCh <- srv.Serve(l)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down status server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) getLatest(c *gin.Context) {
	res, ok := s.provider.Latest()
	if !ok {
		c.IndentedJSON(http.StatusNotFound, gin.H{"error": "no result yet"})
		return
	}
	c.IndentedJSON(http.StatusOK, res)
}

func (s *Server) getSummary(c *gin.Context) {
	sum := s.provider.Summary()
	c.IndentedJSON(http.StatusOK, SummaryResponse{Summary: sum, Winner: sum.Winner()})
}
