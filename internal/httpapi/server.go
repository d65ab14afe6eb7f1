// Package httpapi is the HTTP surface of the service: the login flow
// endpoints that drive the OIDC exchange and the authenticated todo CRUD.
package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/hashicorp/go-hclog"

	"github.com/tasklist-io/tasklist/internal/session"
	"github.com/tasklist-io/tasklist/internal/todo"
	"github.com/tasklist-io/tasklist/oidc"
)

// Server wires the provider, the session service and the todo repository
// into an http.Handler.
type Server struct {
	provider *oidc.Provider
	sessions *session.Service
	repo     todo.Repository
	logger   hclog.Logger
	baseURL  string
}

// New creates a Server.
//
// Supported options: WithLogger, WithBaseURL
func New(provider *oidc.Provider, sessions *session.Service, repo todo.Repository, opt ...Option) (*Server, error) {
	const op = "httpapi.New"
	if provider == nil {
		return nil, fmt.Errorf("%s: provider is nil", op)
	}
	if sessions == nil {
		return nil, fmt.Errorf("%s: session service is nil", op)
	}
	if repo == nil {
		return nil, fmt.Errorf("%s: repository is nil", op)
	}
	opts := getOpts(opt...)
	s := &Server{
		provider: provider,
		sessions: sessions,
		repo:     repo,
		logger:   opts.withLogger,
		baseURL:  opts.withBaseURL,
	}
	if s.logger == nil {
		s.logger = hclog.NewNullLogger()
	}
	return s, nil
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.PlainText(w, r, "ok")
	})

	r.Route("/api/auth", func(r chi.Router) {
		r.Get("/login", s.login)
		r.Get("/callback", s.callback)
		r.Get("/logout", s.logout)
		r.With(s.sessions.RequireSession).Get("/me", s.me)
	})

	r.Route("/api/todos", func(r chi.Router) {
		r.Use(s.sessions.RequireSession)
		r.Get("/", s.listTodos)
		r.Post("/", s.createTodo)
		r.Patch("/{id}", s.updateTodo)
		r.Delete("/{id}", s.deleteTodo)
	})

	return r
}

// requestLogger logs one line per request at debug.  Bodies, cookies and
// query strings stay out of the logs.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

func internalError(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusInternalServerError)
	render.JSON(w, r, map[string]string{"error": "internal error"})
}
