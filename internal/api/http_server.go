package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"messbook/internal/config"
	"messbook/internal/domain"
	"messbook/internal/metrics"
	"messbook/internal/models"
	"messbook/internal/policy"
	"messbook/internal/realtime"

	"github.com/rs/zerolog"
)

// RecordService is the record side of the coordinator as seen by the API.
type RecordService interface {
	Create(ctx context.Context, actor models.Actor, in models.NewRecord) (*models.Record, error)
	List(ctx context.Context, actor models.Actor, kind models.Kind) ([]*models.Record, error)
	Get(ctx context.Context, actor models.Actor, id string) (*models.Record, error)
	Transition(ctx context.Context, actor models.Actor, id string, to models.Status, remark string) (*models.Record, error)
	Delete(ctx context.Context, actor models.Actor, id string) error
	Reveal(ctx context.Context, actor models.Actor, id string) (string, error)
}

type ListingService interface {
	List(ctx context.Context, actor models.Actor) ([]*models.Listing, error)
	Units(ctx context.Context, actor models.Actor, listingID string) ([]*models.Unit, error)
	SetHidden(ctx context.Context, actor models.Actor, id string, hidden bool) error
	AdjustAvailability(ctx context.Context, actor models.Actor, id string, delta int64) (int64, error)
	AppendGalleryImage(ctx context.Context, actor models.Actor, id, imageURL string) ([]string, error)
	SetGallery(ctx context.Context, actor models.Actor, id string, urls []string) error
}

// Streamer opens live record subscriptions.
type Streamer interface {
	Subscribe(ctx context.Context, actor models.Actor, kind models.Kind) (*realtime.Subscription, error)
}

type Deps struct {
	Records  RecordService
	Listings ListingService
	Hub      Streamer
	Policy   *policy.Policy
	Store    Pinger
	Logger   *zerolog.Logger
}

// HTTPServer exposes the coordinator over JSON and server-sent events.
type HTTPServer struct {
	records  RecordService
	listings ListingService
	hub      Streamer
	policy   *policy.Policy
	store    Pinger
	log      zerolog.Logger
	server   *http.Server
}

func NewHTTPServer(cfg config.APIConfig, auth *Authenticator, deps Deps) *HTTPServer {
	log := zerolog.Nop()
	if deps.Logger != nil {
		log = deps.Logger.With().Str("component", "http").Logger()
	}
	srv := &HTTPServer{
		records:  deps.Records,
		listings: deps.Listings,
		hub:      deps.Hub,
		policy:   deps.Policy,
		store:    deps.Store,
		log:      log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", srv.handleHealth)

	srv.route(mux, "POST /api/v1/records", srv.handleCreateRecord)
	srv.route(mux, "GET /api/v1/records", srv.handleListRecords)
	srv.route(mux, "GET /api/v1/records/{id}", srv.handleGetRecord)
	srv.route(mux, "POST /api/v1/records/{id}/transition", srv.handleTransition)
	srv.route(mux, "POST /api/v1/records/{id}/reveal", srv.handleReveal)
	srv.route(mux, "DELETE /api/v1/records/{id}", srv.handleDeleteRecord)

	srv.route(mux, "GET /api/v1/stream", srv.handleStream)
	srv.route(mux, "GET /api/v1/export", srv.handleExport)

	srv.route(mux, "GET /api/v1/listings", srv.handleListListings)
	srv.route(mux, "GET /api/v1/listings/{id}/units", srv.handleUnits)
	srv.route(mux, "POST /api/v1/listings/{id}/hidden", srv.handleSetHidden)
	srv.route(mux, "POST /api/v1/listings/{id}/availability", srv.handleAvailability)
	srv.route(mux, "POST /api/v1/listings/{id}/gallery", srv.handleAppendGallery)
	srv.route(mux, "PUT /api/v1/listings/{id}/gallery", srv.handleSetGallery)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.loggingMiddleware(auth.Wrap(mux)),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	return srv
}

// route registers h and counts its calls under pattern.
func (s *HTTPServer) route(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		metrics.IncHTTP(pattern)
		h(w, r)
	})
}

// Handler is the full middleware chain; used by tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Serve is Start on an existing listener.
func (s *HTTPServer) Serve(lis net.Listener) error {
	if err := s.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.store.PingContext(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := requestID(r.Header.Get(requestIDMetadataKey))
		w.Header().Set(requestIDMetadataKey, reqID)

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		ev := s.log.Info()
		if recorder.status >= http.StatusInternalServerError {
			ev = s.log.Warn()
		}
		ev.Str("request_id", reqID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrNotTerminal),
		errors.Is(err, domain.ErrNoCapacity):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		msg = http.StatusText(code)
	}
	writeError(w, code, msg)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body", domain.ErrInvalidInput)
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Unwrap lets http.ResponseController reach Flush and deadlines.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
