package relay

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SecretHeader carries the shared secret on both relay endpoints. The game
// server is configured with the same value; a mismatch is rejected before
// any body is read.
const SecretHeader = "X-Relay-Secret"

// Server exposes the pull/fulfill endpoints the game server talks to, plus
// health and stats.
type Server struct {
	logger *slog.Logger
	echo   *echo.Echo
	queue  *Queue
	secret string

	// OpenTicketCount is polled by the stats endpoint; optional.
	OpenTicketCount func() int
}

func NewServer(queue *Queue, secret string, logger *slog.Logger) *Server {
	return &Server{
		logger: logger.With("component", "relay_server"),
		queue:  queue,
		secret: secret,
	}
}

func (s *Server) router() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.LoggerWithConfig(middleware.DefaultLoggerConfig))
	e.Use(middleware.Recover())

	e.GET("/health", s.handleHealthcheck)
	e.GET("/stats/queue-depth", s.handleStatsQueueDepth)
	e.GET("/stats/open-tickets", s.handleStatsOpenTickets)

	relay := e.Group("/relay", s.secretAuth)
	relay.GET("/pending", s.handlePending)
	relay.POST("/fulfill", s.handleFulfill)
	return e
}

func (s *Server) Start(address string) error {
	s.echo = s.router()
	return s.echo.Start(address)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.echo == nil {
		return nil
	}
	return s.echo.Shutdown(ctx)
}

// RunMetrics starts the metrics and pprof server on a separate port.
func (s *Server) RunMetrics(listen string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, nil)
}

// secretAuth rejects requests whose shared-secret header does not match.
// The comparison is constant-time.
func (s *Server) secretAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		got := c.Request().Header.Get(SecretHeader)
		if s.secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.secret)) != 1 {
			return echo.NewHTTPError(http.StatusUnauthorized, "bad relay secret")
		}
		return next(c)
	}
}

func (s *Server) handleHealthcheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (s *Server) handlePending(c echo.Context) error {
	pollRequests.Inc()
	return c.JSON(http.StatusOK, s.queue.SnapshotPending(time.Now()))
}

func (s *Server) handleFulfill(c echo.Context) error {
	var batch FulfillBatch
	if err := c.Bind(&batch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed fulfill batch")
	}
	if batch.Fulfill == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "missing fulfill array")
	}

	outcome := s.queue.ApplyResults(c.Request().Context(), &batch)
	if len(outcome.Rejected) > 0 {
		s.logger.Warn("fulfill batch partially rejected", "applied", outcome.Applied, "rejected", len(outcome.Rejected))
	}
	return c.JSON(http.StatusOK, outcome)
}

func (s *Server) handleStatsQueueDepth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]int{"queue_depth": s.queue.Len()})
}

func (s *Server) handleStatsOpenTickets(c echo.Context) error {
	count := 0
	if s.OpenTicketCount != nil {
		count = s.OpenTicketCount()
	}
	return c.JSON(http.StatusOK, map[string]int{"open_tickets": count})
}
