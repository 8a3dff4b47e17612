package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// NewRouter wires the auth endpoints. A nil limiter disables per-address throttling of /api/auth.
func NewRouter(h *Handler, a Authenticator, lim *IPRateLimiter, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	r := mux.NewRouter()
	r.Use(WithRequestID, Recover(log), Logging(log))
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	auth := r.PathPrefix("/api/auth").Subrouter()
	if lim != nil {
		auth.Use(lim.Middleware)
	}
	auth.HandleFunc("/register", h.Register).Methods(http.MethodPost)
	auth.HandleFunc("/login", h.Login).Methods(http.MethodPost)
	auth.HandleFunc("/refresh", h.Refresh).Methods(http.MethodPost)
	auth.HandleFunc("/logout", h.Logout).Methods(http.MethodPost)

	users := r.PathPrefix("/api/users").Subrouter()
	users.Use(RequireBearer(a))
	users.HandleFunc("/me", h.Me).Methods(http.MethodGet)

	return r
}
