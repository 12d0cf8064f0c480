package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tenniscourts/internal/config"
	"tenniscourts/internal/domain"
	"tenniscourts/internal/dto"
	"tenniscourts/internal/metrics"
	"tenniscourts/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	dateLayout          = "2006-01-02"
	requestIDHeader     = "X-Request-ID"
	xlsxContentType     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	maxRequestBodyBytes = 1 << 20
)

// ScheduleAPI is what the transports need from the schedule service.
type ScheduleAPI interface {
	domain.ScheduleService
	FindCourtWithFreeSchedules(ctx context.Context, courtID int64) (*models.TennisCourt, []*models.Schedule, error)
}

// ScheduleExporter streams a court's schedule as a workbook.
type ScheduleExporter interface {
	Write(ctx context.Context, w io.Writer, courtID int64, from, to time.Time) error
}

// Services are the collaborators of the HTTP and gRPC servers.
type Services struct {
	Reservations domain.ReservationService
	Schedules    ScheduleAPI
	Exporter     ScheduleExporter
	Ready        func(ctx context.Context) error
}

// HTTPServer exposes the reservation API over JSON.
type HTTPServer struct {
	cfg      config.APIConfig
	services Services
	server   *http.Server
	auth     *HTTPAuth
	logger   *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, services Services, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	httpLogger := logger.With().Str("component", "http").Logger()

	srv := &HTTPServer{cfg: cfg, services: services, auth: NewHTTPAuth(cfg), logger: &httpLogger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", srv.handleHealth)
	mux.HandleFunc("GET /readyz", srv.handleReady)

	mux.HandleFunc("POST /api/v1/reservations", srv.handleBook)
	mux.HandleFunc("GET /api/v1/reservations/{id}", srv.handleFindReservation)
	mux.HandleFunc("POST /api/v1/reservations/{id}/cancel", srv.handleCancel)
	mux.HandleFunc("POST /api/v1/reservations/{id}/reschedule", srv.handleReschedule)

	mux.HandleFunc("POST /api/v1/courts/{id}/schedules", srv.handleAddSchedule)
	mux.HandleFunc("GET /api/v1/courts/{id}/schedules/free", srv.handleFreeSchedules)
	mux.HandleFunc("GET /api/v1/courts/{id}/schedules/export", srv.handleExport)
	mux.HandleFunc("GET /api/v1/schedules/{id}", srv.handleFindSchedule)
	mux.HandleFunc("GET /api/v1/schedules", srv.handleSchedulesByDates)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.loggingMiddleware(srv.auth.Wrap(mux)),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return srv
}

// Handler returns the full middleware chain, used by tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return errors.New("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.services.Ready != nil {
		if err := s.services.Ready(r.Context()); err != nil {
			s.logger.Warn().Err(err).Msg("readiness check failed")
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *HTTPServer) handleBook(w http.ResponseWriter, r *http.Request) {
	var body dto.CreateReservationRequestDTO
	if !decodeBody(w, r, &body) {
		return
	}
	if body.GuestID <= 0 || body.ScheduleID <= 0 {
		writeError(w, http.StatusBadRequest, "guest_id and schedule_id are required")
		return
	}

	reservation, err := s.services.Reservations.BookReservation(r.Context(), body.GuestID, body.ScheduleID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/reservations/%d", reservation.ID))
	writeJSON(w, http.StatusCreated, reservationView(r.Context(), s.services.Schedules, s.logger, reservation))
}

func (s *HTTPServer) handleFindReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	reservation, err := s.services.Reservations.FindReservation(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reservationView(r.Context(), s.services.Schedules, s.logger, reservation))
}

func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	reservation, err := s.services.Reservations.CancelReservation(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reservationView(r.Context(), s.services.Schedules, s.logger, reservation))
}

func (s *HTTPServer) handleReschedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	scheduleID, err := strconv.ParseInt(strings.TrimSpace(r.URL.Query().Get("schedule_id")), 10, 64)
	if err != nil || scheduleID <= 0 {
		writeError(w, http.StatusBadRequest, "schedule_id is required")
		return
	}

	reservation, err := s.services.Reservations.RescheduleReservation(r.Context(), id, scheduleID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reservationView(r.Context(), s.services.Schedules, s.logger, reservation))
}

func (s *HTTPServer) handleAddSchedule(w http.ResponseWriter, r *http.Request) {
	courtID, ok := pathID(w, r)
	if !ok {
		return
	}
	var body dto.CreateScheduleRequestDTO
	if !decodeBody(w, r, &body) {
		return
	}
	if body.TennisCourtID != 0 && body.TennisCourtID != courtID {
		writeError(w, http.StatusBadRequest, "tennis_court_id does not match the path")
		return
	}

	schedule, err := s.services.Schedules.AddSchedule(r.Context(), courtID, body.StartDateTime)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/schedules/%d", schedule.ID))
	writeJSON(w, http.StatusCreated, dto.FromSchedule(schedule))
}

func (s *HTTPServer) handleFreeSchedules(w http.ResponseWriter, r *http.Request) {
	courtID, ok := pathID(w, r)
	if !ok {
		return
	}
	court, schedules, err := s.services.Schedules.FindCourtWithFreeSchedules(r.Context(), courtID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.WithSchedules(court, schedules))
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	courtID, ok := pathID(w, r)
	if !ok {
		return
	}
	if s.services.Exporter == nil {
		writeError(w, http.StatusNotImplemented, "export is not configured")
		return
	}

	from, err := time.Parse(dateLayout, strings.TrimSpace(r.URL.Query().Get("from")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from; expected YYYY-MM-DD")
		return
	}
	to, err := time.Parse(dateLayout, strings.TrimSpace(r.URL.Query().Get("to")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to; expected YYYY-MM-DD")
		return
	}
	// to is inclusive for callers
	end := to.AddDate(0, 0, 1)

	// render fully before writing headers so that lookup errors still map to a status
	var buf bytes.Buffer
	if err := s.services.Exporter.Write(r.Context(), &buf, courtID, from, end); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	fileName := fmt.Sprintf("court_%d_%s_%s.xlsx", courtID, from.Format(dateLayout), to.Format(dateLayout))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, fileName))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *HTTPServer) handleFindSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	schedule, err := s.services.Schedules.FindSchedule(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromSchedule(schedule))
}

func (s *HTTPServer) handleSchedulesByDates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(q.Get("start")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start; expected RFC3339")
		return
	}
	end, err := time.Parse(time.RFC3339, strings.TrimSpace(q.Get("end")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end; expected RFC3339")
		return
	}

	schedules, err := s.services.Schedules.FindSchedulesByDates(r.Context(), start, end)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schedules": dto.FromSchedules(schedules)})
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := httpStatus(err)
	if code == http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Str("request_id", w.Header().Get(requestIDHeader)).Msg("request failed")
	}
	writeError(w, code, domain.Message(err, internalErrorMessage))
}

// HTTPAuth provides API-key auth and per-key rate limiting for HTTP endpoints.
type HTTPAuth struct {
	auth *authenticator
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	return &HTTPAuth{auth: newAuthenticator(cfg)}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}

		if a.auth.enabled {
			err := a.auth.authenticate(r.Header.Get(a.auth.apiKeyName), r.Header.Get(a.auth.extraName), requiredPermissionHTTP(r))
			if err != nil {
				code := http.StatusUnauthorized
				if errors.Is(err, errPermissionDenied) {
					code = http.StatusForbidden
				}
				writeError(w, code, err.Error())
				return
			}
		}

		if !a.auth.rateLimiter.allow(a.clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, errRateLimited.Error())
			return
		}

		next.ServeHTTP(w, r)
	})
}

func requiredPermissionHTTP(r *http.Request) string {
	path := r.URL.Path
	write := r.Method != http.MethodGet && r.Method != http.MethodHead
	switch {
	case strings.HasPrefix(path, "/api/v1/reservations"):
		if write {
			return permWriteReservations
		}
		return permReadReservations
	case strings.HasPrefix(path, "/api/v1/courts"), strings.HasPrefix(path, "/api/v1/schedules"):
		if write {
			return permWriteSchedules
		}
		return permReadSchedules
	default:
		return ""
	}
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(a.auth.apiKeyName)); apiKey != "" {
		return apiKey
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.IncHTTP(route, recorder.status)

		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
