// Package api exposes HTTP handlers for the exercise tracker.
package api

import (
	_ "embed"
	"errors"
	"net/http"
	"time"

	"cdr.dev/slog/v3"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"example.com/exercisetracker/internal/domain"
	"example.com/exercisetracker/internal/observability"
)

//go:embed static/index.html
var indexPage []byte

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
	logger  slog.Logger
	now     func() time.Time
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, logger slog.Logger) *Handler {
	return &Handler{service: service, logger: logger, now: time.Now}
}

// RouterConfig controls the cross-cutting parts of the router.
type RouterConfig struct {
	AllowedOrigins []string
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// RateLimit caps API requests per client IP within RateWindow. Zero
	// disables limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Router wires the endpoints and middleware into a chi router.
func (h *Handler) Router(cfg RouterConfig) http.Handler {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(
		h.recoverer,
		h.instrument,
		cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}),
	)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeText(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeText(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/", index)
	r.Get("/healthz", healthz)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/api/exercise", func(r chi.Router) {
		if cfg.RateLimit > 0 && cfg.RateWindow > 0 {
			r.Use(httprate.Limit(
				cfg.RateLimit,
				cfg.RateWindow,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
					writeText(w, http.StatusTooManyRequests, "Too many requests, please try again later.")
				}),
			))
		}
		r.Get("/users", h.listUsers)
		r.Post("/new-user", h.createUser)
		r.Post("/add", h.addExercise)
		r.Get("/log", h.queryLog)
	})

	return r
}

func index(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(indexPage)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "ok")
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]UserView, 0, len(users))
	for _, user := range users {
		resp = append(resp, UserView{Username: user.Username, ID: user.ID})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(w, r)
	if err != nil {
		writeText(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.service.CreateUser(r.Context(), fields.get("username"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	observability.RecordUserCreated()

	writeJSON(w, http.StatusOK, UserView{Username: user.Username, ID: user.ID})
}

func (h *Handler) addExercise(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(w, r)
	if err != nil {
		writeText(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.service.AddExercise(r.Context(), domain.AddExerciseInput{
		UserID:      fields.get("userId"),
		Description: fields.get("description"),
		Duration:    fields.get("duration"),
		Date:        fields.get("date"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	observability.RecordExerciseLogged(h.now())

	writeJSON(w, http.StatusOK, toLogView(user.ID, user.Username, user.Count, user.Log))
}

func (h *Handler) queryLog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	view, err := h.service.QueryLog(r.Context(), domain.LogQuery{
		UserID: q.Get("userId"),
		From:   q.Get("from"),
		To:     q.Get("to"),
		Limit:  q.Get("limit"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toLogView(view.ID, view.Username, view.Count, view.Log))
}

// writeError maps domain outcomes to plain-text responses. Anything it does
// not recognise is logged and reported as a 500.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		fieldErr  *domain.FieldError
		formatErr *domain.FormatError
	)
	switch {
	case errors.As(err, &fieldErr):
		writeText(w, http.StatusBadRequest, fieldErr.Message)
	case errors.As(err, &formatErr):
		writeText(w, http.StatusBadRequest, formatErr.Message)
	case errors.Is(err, domain.ErrUserNotFound):
		writeText(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error(r.Context(), "request failed",
			slog.F("method", r.Method),
			slog.F("path", r.URL.Path),
			slog.Error(err),
		)
		writeText(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}
