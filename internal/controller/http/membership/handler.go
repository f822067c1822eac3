package membership

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quipper/poc/membercard/internal/services/botcommand"
	"github.com/quipper/poc/membercard/internal/services/memberlist"
	"github.com/quipper/poc/membercard/internal/services/registration"
	"github.com/quipper/poc/membercard/pkg/common/apperr"
	"github.com/quipper/poc/membercard/pkg/common/linktoken"
	"github.com/quipper/poc/membercard/pkg/common/logger"
	"github.com/quipper/poc/membercard/pkg/common/metrics"
	"github.com/quipper/poc/membercard/pkg/repositories/members"
)

//go:embed templates/*.html
var templateFS embed.FS

var views = template.Must(template.New("").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
	"dec": func(i int) int { return i - 1 },
}).ParseFS(templateFS, "templates/*.html"))

// Options carries the settings the handler needs from configuration.
type Options struct {
	ChannelSecret string

	// PublicBaseURL roots chat links; empty means derive it from the request.
	PublicBaseURL      string
	Signer             *linktoken.Signer
	RequireSignedLinks bool
	AdminUser          string
	AdminPassword      string
	Metrics            *metrics.Metrics

	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

type Handler struct {
	repo         members.Repository
	registration *registration.Service
	bot          *botcommand.Router
	list         *memberlist.Service
	replier      Replier
	opts         Options
}

// NewHandler wires the services around one member store. The store is
// created once at startup and shared by every request.
func NewHandler(repo members.Repository, replier Replier, opts Options) *Handler {
	return &Handler{
		repo:         repo,
		registration: registration.NewService(repo, nil, opts.Metrics),
		bot:          botcommand.NewRouter(repo, botcommand.NewLinks(opts.Signer)),
		list:         memberlist.NewService(repo),
		replier:      replier,
		opts:         opts,
	}
}

// Router returns the chi router for every public route.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)

	r.Get("/", h.index)
	r.Get("/healthz", h.health)
	if h.opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.opts.Gatherer, promhttp.HandlerOpts{}))
	}

	// Bot platform webhook
	r.Post("/callback", h.callback)

	r.Get("/register", h.registerForm)
	r.Post("/register", h.registerSubmit)
	r.Get("/show_member_card", h.showMemberCard)
	r.Get("/update_profile", h.updateProfileForm)
	r.Post("/update_profile", h.updateProfileSubmit)

	r.Route("/admin", func(r chi.Router) {
		if h.opts.AdminUser != "" {
			r.Use(middleware.BasicAuth("admin", map[string]string{h.opts.AdminUser: h.opts.AdminPassword}))
		}
		r.Get("/members", h.adminListMembers)
		r.Get("/members.json", h.adminListMembersJSON)
	})
	return r
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "index.html", nil)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := h.repo.Health(r.Context()); err != nil {
		logger.Error("health [%s]: %v", reqID(r), err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy"})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// render buffers the page before any header is written.
func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	var buf bytes.Buffer
	if err := views.ExecuteTemplate(&buf, name, data); err != nil {
		logger.Error("render %s [%s]: %v", name, reqID(r), err)
		http.Error(w, apperr.GenericMessage, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeError reports err as JSON. System failures are logged with their
// cause and shown with a generic message only.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := apperr.Status(err)
	if status >= http.StatusInternalServerError {
		logger.Error("%s [%s]: %v", op, reqID(r), err)
	} else {
		logger.Debug("%s [%s]: %v", op, reqID(r), err)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: string(apperr.KindOf(err)), Message: apperr.PublicMessage(err)})
}

type ctxKey struct{}

// requestID tags each request with an id echoed in X-Request-Id and in logs.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func reqID(r *http.Request) string {
	id, _ := r.Context().Value(ctxKey{}).(string)
	return id
}

// baseURL is the origin links are rooted at.
func (h *Handler) baseURL(r *http.Request) string {
	if h.opts.PublicBaseURL != "" {
		return h.opts.PublicBaseURL
	}
	scheme, host := schemeHost(r)
	return scheme + "://" + host
}

// schemeHost uses X-Forwarded-* headers when present, otherwise r.Host and TLS.
func schemeHost(r *http.Request) (string, string) {
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		if r.TLS != nil {
			scheme = "https"
		} else {
			scheme = "http"
		}
	}
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	return scheme, host
}
