// Package api exposes the scheduling engine over HTTP JSON and iCalendar.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"classbook/internal/audit"
	"classbook/internal/booking"
	"classbook/internal/classes"
	"classbook/internal/db"
	"classbook/internal/metrics"
)

// Options configure the HTTP server.
type Options struct {
	Address         string
	RateLimitRPS    float64
	RateLimitBurst  int
	SlotGranularity int
	Now             func() time.Time

	// TrustUserParam lets user_id in the body or query stand in for a
	// missing X-User-ID header.
	TrustUserParam bool
}

// Deps are the services behind the handlers.
type Deps struct {
	DB       *db.DB
	Classes  *classes.Service
	Bookings *booking.Service
	Exporter *audit.Exporter
}

// HTTPServer serves the public API.
type HTTPServer struct {
	db          *db.DB
	classes     *classes.Service
	bookings    *booking.Service
	exporter    *audit.Exporter
	granularity int
	trustParam  bool
	now         func() time.Time
	limiter     *clientLimiter
	logger      zerolog.Logger
	server      *http.Server
}

// NewHTTPServer wires the routes. A zero RateLimitRPS disables limiting.
func NewHTTPServer(opts Options, deps Deps, logger zerolog.Logger) *HTTPServer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &HTTPServer{
		db:          deps.DB,
		classes:     deps.Classes,
		bookings:    deps.Bookings,
		exporter:    deps.Exporter,
		granularity: opts.SlotGranularity,
		trustParam:  opts.TrustUserParam,
		now:         opts.Now,
		limiter:     newClientLimiter(opts.RateLimitRPS, opts.RateLimitBurst),
		logger:      logger.With().Str("component", "api").Logger(),
	}

	mux := http.NewServeMux()
	s.handle(mux, "GET /api/v1/classes", "classes", s.handleClasses)
	s.handle(mux, "POST /api/v1/classes/{instanceID}/join", "join", s.handleJoin)
	s.handle(mux, "GET /api/v1/providers/{id}/slots", "slots", s.handleSlots)
	s.handle(mux, "GET /api/v1/providers/{id}/calendar.ics", "calendar", s.handleCalendar)
	s.handle(mux, "GET /api/v1/bookings", "bookings", s.handleListBookings)
	s.handle(mux, "POST /api/v1/bookings", "book", s.handleBook)
	s.handle(mux, "POST /api/v1/bookings/{id}/cancel", "cancel", s.handleCancel)
	s.handle(mux, "POST /api/v1/bookings/{id}/reschedule", "reschedule", s.handleReschedule)
	if s.exporter != nil {
		s.handle(mux, "GET /api/v1/admin/export.xlsx", "export", s.handleExport)
	}

	s.server = &http.Server{
		Addr:              opts.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the root handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until Shutdown is called.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("address", s.server.Addr).Msg("API server started")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *HTTPServer) handle(mux *http.ServeMux, pattern, route string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() { metrics.IncHTTP(route, strconv.Itoa(rec.status)) }()

		if !s.limiter.allow(clientKey(r)) {
			writeError(rec, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		h(rec, r)
	})
}
