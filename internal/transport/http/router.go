// Package httptransport serves the plain HTTP side of the server: health,
// Prometheus metrics, calendar downloads and the admin backup export.
package httptransport

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"harmonie/backend/internal/calendar"
	"harmonie/backend/internal/domain"
	"harmonie/backend/internal/service/booking"
	"harmonie/backend/internal/store"
)

type BookingReader interface {
	Get(ctx context.Context, id string) (domain.Booking, error)
	Export(ctx context.Context) (booking.Export, error)
}

type Config struct {
	Bookings BookingReader
	Calendar calendar.Options
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// Health reports whether the store answers; nil means always healthy.
	Health func(ctx context.Context) error
	// AdminToken guards /admin routes when set.
	AdminToken string
	Logger     *slog.Logger
}

func NewRouter(cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{cfg: cfg, log: logger.With(slog.String("component", "http"))}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.log))

	r.Get("/healthz", h.health)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}
	r.Get("/bookings/{id}/calendar.ics", h.calendar)
	r.Route("/admin", func(r chi.Router) {
		r.Use(requireAdminToken(cfg.AdminToken, h.log))
		r.Get("/export", h.export)
	})
	return r
}

type handler struct {
	cfg Config
	log *slog.Logger
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.cfg.Health(ctx); err != nil {
			h.log.Warn("health check failed", slog.Any("err", err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) calendar(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b, err := h.cfg.Bookings.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err, slog.String("booking_id", id))
		return
	}
	ics, err := calendar.Invite(b, h.cfg.Calendar)
	if err != nil {
		h.writeError(w, err, slog.String("booking_id", id))
		return
	}

	w.Header().Set("Content-Type", calendar.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+calendar.Filename(b.ID)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(ics))
}

func (h *handler) export(w http.ResponseWriter, r *http.Request) {
	doc, err := h.cfg.Bookings.Export(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	name := "harmonie-backup-" + doc.ExportDate.Format(domain.DateLayout) + ".json"
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	h.log.Info("data exported", slog.Int("bookings", len(doc.Bookings)), slog.Int("slots", len(doc.Slots)))
	writeJSON(w, http.StatusOK, doc)
}

func (h *handler) writeError(w http.ResponseWriter, err error, attrs ...any) {
	var vErr *booking.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": vErr.Error()})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "booking not found"})
	case errors.Is(err, calendar.ErrNotConfirmed):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "booking is cancelled"})
	case errors.Is(err, store.ErrUnavailable):
		h.log.Error("store unavailable", append([]any{slog.Any("err", err)}, attrs...)...)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "storage is unavailable"})
	default:
		h.log.Error("request failed", append([]any{slog.Any("err", err)}, attrs...)...)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug("request completed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.Int("status", ww.Status()),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func requireAdminToken(token string, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := strings.TrimSpace(r.Header.Get("X-Admin-Token"))
			if got == "" {
				got, _ = strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
				got = strings.TrimSpace(got)
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				log.Warn("admin request rejected", slog.String("path", r.URL.Path), slog.Bool("token_present", got != ""))
				w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "admin token required"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
