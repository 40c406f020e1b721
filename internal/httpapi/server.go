// Package httpapi exposes the scheduling engine over HTTP with gin.
//
// Routes:
//
//	GET    /health
//	POST   /api/events                 create an event or series
//	GET    /api/events                 list events in a range
//	GET    /api/events/:id             event detail
//	PATCH  /api/events/:id?scope=      edit (single, occurrence, series)
//	DELETE /api/events/:id?scope=      delete (single, occurrence, series, all)
//	POST   /api/events/:id/promote     split the series at an occurrence
//	PUT    /api/series/:id/rule        replace and reconcile the rule
//	GET    /api/series/:id/status      materialization state
//	GET    /api/series/:id/ics         iCalendar export
//	POST   /api/rules/validate         rule preview
//
// Callers identify themselves for listing with the X-Cadence-Role and
// X-Cadence-Actor headers (or role and actor_id query parameters), set by
// whatever authenticates them upstream.
package httpapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/roach88/cadence/internal/calendar"
	"github.com/roach88/cadence/internal/engine"
	"github.com/roach88/cadence/internal/recurrence"
)

// Service is the engine surface the API needs.
type Service interface {
	CreateSeries(ctx context.Context, d calendar.Draft) (calendar.View, error)
	GetEvent(ctx context.Context, id int64) (calendar.View, error)
	EditEvent(ctx context.Context, id int64, scope engine.EditScope, patch calendar.Patch) (calendar.View, error)
	DeleteEvent(ctx context.Context, id int64, scope engine.DeleteScope) (engine.DeleteResult, error)
	ListEvents(ctx context.Context, q engine.Query) ([]calendar.View, error)
	Promote(ctx context.Context, id int64) (calendar.View, error)
	ReconcileRule(ctx context.Context, rootID int64, rule string) (engine.ReconcileResult, error)
	SeriesStatus(ctx context.Context, rootID int64) (calendar.SeriesState, error)
	Series(ctx context.Context, id int64) (*calendar.Series, error)
	PreviewRule(rule string, start time.Time, n int) (*recurrence.Preview, error)
	Location() *time.Location
}

// Server routes requests to a Service.
type Server struct {
	svc       Service
	loc       *time.Location
	log       *slog.Logger
	now       func() time.Time
	origins   []string
	accessLog io.Writer
	router    *gin.Engine
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger for failures. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithAllowOrigins enables CORS for the given origins. "*" allows any.
func WithAllowOrigins(origins []string) Option {
	return func(s *Server) {
		s.origins = origins
	}
}

// WithAccessLog sets where gin writes its request log. Default: stderr.
func WithAccessLog(w io.Writer) Option {
	return func(s *Server) {
		s.accessLog = w
	}
}

// WithClock sets the time source for DTSTAMP in exports.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds a Server over svc.
func New(svc Service, opts ...Option) *Server {
	s := &Server{
		svc:       svc,
		loc:       svc.Location(),
		log:       slog.Default(),
		now:       time.Now,
		accessLog: os.Stderr,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	if s.accessLog != nil {
		r.Use(gin.LoggerWithWriter(s.accessLog))
	}
	r.Use(gin.Recovery())
	if len(s.origins) > 0 {
		r.Use(cors.New(corsConfig(s.origins)))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.POST("/events", s.createEvent)
		api.GET("/events", s.listEvents)
		api.GET("/events/:id", s.getEvent)
		api.PATCH("/events/:id", s.editEvent)
		api.DELETE("/events/:id", s.deleteEvent)
		api.POST("/events/:id/promote", s.promote)

		api.PUT("/series/:id/rule", s.reconcile)
		api.GET("/series/:id/status", s.seriesStatus)
		api.GET("/series/:id/ics", s.exportSeries)

		api.POST("/rules/validate", s.previewRule)
	}
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", headerRole, headerActor},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
