package server

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	healthPingTimeout = 2 * time.Second
	drainTimeout      = 5 * time.Second
)

// Server hosts the reward ledger's HTTP surface: ingestion routes, the health
// probe, and the metrics scrape endpoint.
type Server struct {
	Engine *gin.Engine
	Addr   string
	db     *sql.DB
}

func New(addr string, db *sql.DB, mode string) *Server {
	if mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		Engine: gin.Default(),
		Addr:   addr,
		db:     db,
	}

	s.Engine.GET("/health", s.healthHandler)

	return s
}

// RegisterMetrics mounts a Prometheus scrape endpoint.
func (s *Server) RegisterMetrics(h http.Handler) {
	s.Engine.GET("/metrics", gin.WrapH(h))
}

// healthHandler reports liveness plus ledger database reachability. A probe
// that cannot reach the database answers 503 so the instance is rotated out
// before merge events are routed to it.
func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthPingTimeout)
	defer cancel()

	if s.db != nil {
		if err := s.db.PingContext(ctx); err != nil {
			slog.Error("Health probe failed: ledger database unreachable", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "degraded",
				"ledger": "unreachable",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"ledger": "reachable",
	})
}

// Run serves until ctx is cancelled, then drains in-flight requests. A merge
// event whose transaction already committed finishes its response during the
// drain instead of being cut off.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.Addr,
		Handler: s.Engine,
	}

	slog.Info("HTTP server listening", "address", s.Addr)

	go func() {
		<-ctx.Done()
		slog.Info("Draining HTTP server", "timeout", drainTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server forced to shut down", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
