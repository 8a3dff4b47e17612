package httpapi

import (
	"net/http"

	"github.com/and161185/gigmarket/internal/model"
	"github.com/and161185/gigmarket/internal/server/authctx"
	"github.com/and161185/gigmarket/internal/service"
	"go.uber.org/zap"
)

// Handler binds AuthService to HTTP.
type Handler struct {
	auth service.AuthService
	log  *zap.Logger
}

// NewHandler constructs a Handler. A nil logger discards output.
func NewHandler(auth service.AuthService, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{auth: auth, log: log}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type sessionResponse struct {
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken"`
	User         model.User `json:"user"`
}

// Register handles POST /api/auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var in registerRequest
	if !decode(w, r, &in) {
		return
	}
	tok, u, err := h.auth.Register(r.Context(), service.Registration{
		Email: in.Email, Password: in.Password, Role: in.Role, Name: in.Name,
	}, r.RemoteAddr)
	if err != nil {
		h.fail(w, r, "register", err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken, User: u})
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if !decode(w, r, &in) {
		return
	}
	if in.Email == "" || in.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}
	tok, u, err := h.auth.Login(r.Context(), in.Email, in.Password, r.RemoteAddr)
	if err != nil {
		h.fail(w, r, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken, User: u})
}

// Refresh handles POST /api/auth/refresh: {refreshToken} -> {accessToken}.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var in refreshRequest
	if !decode(w, r, &in) {
		return
	}
	if in.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refresh token is required")
		return
	}
	tok, err := h.auth.Refresh(r.Context(), in.RefreshToken)
	if err != nil {
		h.fail(w, r, "refresh", err)
		return
	}
	writeJSON(w, http.StatusOK, model.Tokens{AccessToken: tok.AccessToken})
}

// Logout handles POST /api/auth/logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var in refreshRequest
	if !decode(w, r, &in) {
		return
	}
	if in.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refresh token is required")
		return
	}
	if err := h.auth.Logout(r.Context(), in.RefreshToken); err != nil {
		h.fail(w, r, "logout", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"revoked": true})
}

// Me handles GET /api/users/me behind RequireBearer.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := authctx.AccountIDFromCtx(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	u, err := h.auth.Profile(r.Context(), id)
	if err != nil {
		h.fail(w, r, "profile", err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
