package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/vitalsgw/internal/auth"
	"github.com/danmuck/vitalsgw/internal/gateway"
	"github.com/danmuck/vitalsgw/internal/logging"
	"github.com/danmuck/vitalsgw/internal/node"
	"github.com/danmuck/vitalsgw/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const Version = "0.1.0"

// Provider is the gateway state the status routes read.
type Provider interface {
	Status() gateway.Status
	Ready() bool
}

// Status is the read-only HTTP surface of one gateway.
type Status struct {
	id       string
	addr     string
	provider Provider
	guard    auth.Validator
	router   *gin.Engine
	started  time.Time
}

var _ node.Node = (*Status)(nil)

// New builds the status router. guard protects /stats, which carries the
// in-progress measurements; a nil guard leaves it open.
func New(id, addr string, corsOrigins []string, provider Provider, guard auth.Validator) *Status {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestTelemetry(id, logging.Component("http").With().Str("kind", kindVitalsGW).Logger()))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Status{
		id:       id,
		addr:     addr,
		provider: provider,
		guard:    guard,
		router:   r,
		started:  time.Now(),
	}
	s.registerRoutes()
	return s
}

func (s *Status) NodeID() string {
	return s.id
}

const kindVitalsGW = "vitalsgw"

func (s *Status) Kind() string {
	return kindVitalsGW
}

func (s *Status) HTTPRouter() *gin.Engine {
	return s.router
}

// Serve listens until ctx ends, then shuts down gracefully.
func (s *Status) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
