package accountlink

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

// Server assembles the HTTP surface: local account routes, profile routes and
// one sub-tree per identity provider.
type Server struct {
	router   *mux.Router
	Handlers *Handlers
}

func NewServer(handlers *Handlers) *Server {
	return &Server{Handlers: handlers}
}

// Handler returns the router wrapped so the session is loaded and saved
// around every request.
func (s *Server) Handler() http.Handler {
	return s.Handlers.Gateway.Session.LoadAndSave(s.setupRoutes().router)
}

// Router exposes the underlying router for callers that add their own
// routes.
func (s *Server) Router() *mux.Router {
	return s.setupRoutes().router
}

// AddProvider mounts a provider handler under prefix.  The handler sees
// paths with the prefix stripped ("/" to start, "/callback/" to finish).
func (s *Server) AddProvider(prefix string, handler http.Handler) *Server {
	s.setupRoutes()
	prefix = strings.TrimSuffix(prefix, "/")
	slog.Info("adding provider", "prefix", prefix)
	s.router.PathPrefix(prefix + "/").Handler(http.StripPrefix(prefix, handler))

	// 308 keeps the method, so POSTs to the bare prefix still reach the handler.
	s.router.Path(prefix).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		target := r.URL.Path + "/"
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		http.Redirect(w, r, target, http.StatusPermanentRedirect)
	})
	return s
}

func (s *Server) setupRoutes() *Server {
	if s.router != nil {
		return s
	}
	h := s.Handlers
	routes := h.Auth.routes()
	mw := h.Middleware
	mw.EnsureReasonableDefaults()

	r := mux.NewRouter()
	r.HandleFunc(routes.Join, h.HandleJoin).Methods(http.MethodPost)
	r.HandleFunc(routes.Login, h.HandleLogin).Methods(http.MethodPost)
	r.HandleFunc("/logout", h.HandleLogout).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/notices", h.HandleNotices).Methods(http.MethodGet)
	r.Handle(routes.ChangePassword, mw.EnsureUser(http.HandlerFunc(h.HandleChangePassword))).Methods(http.MethodPost)
	r.Handle(routes.ChangePassword, methodNotAllowed(http.MethodPost))
	r.Handle(routes.Me, mw.EnsureUser(http.HandlerFunc(h.HandleMe))).Methods(http.MethodGet)
	r.Handle("/users/{id}", mw.ExtractUser(http.HandlerFunc(h.HandleUserDetail))).Methods(http.MethodGet)
	s.router = r
	return s
}

// methodNotAllowed keeps other methods on a fixed path from falling through
// to a wider pattern such as /users/{id}.
func methodNotAllowed(allowed ...string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})
}
