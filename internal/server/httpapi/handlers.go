// Package httpapi is the HTTP front of the auth service: registration,
// login, refresh, logout and token introspection.
package httpapi

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/metrics"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
)

const maxRequestBodySize = 1 << 20

type Sessions interface {
	Login(ctx context.Context, email, password string) (*services.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*services.Session, error)
	Logout(ctx context.Context, p *auth.Principal) (*services.Session, error)
}

type Registrar interface {
	Register(ctx context.Context, email, password, confirmation string) (*models.User, error)
}

type TokenVerifier interface {
	Verify(token string) (*auth.Principal, error)
}

type Handler struct {
	sessions Sessions
	users    Registrar
	verifier TokenVerifier
	metrics  *metrics.Metrics
	log      logging.Logger
}

func NewHandler(s Sessions, u Registrar, v TokenVerifier, m *metrics.Metrics, log logging.Logger) *Handler {
	return &Handler{
		sessions: s,
		users:    u,
		verifier: v,
		metrics:  m,
		log:      log.With("module", "http_api"),
	}
}

// Routes returns the full router. Every route runs behind the access
// token middleware; only /auth/me and /auth/logout require a principal.
//
//	POST /auth/register
//	POST /auth/login
//	POST /auth/refresh
//	POST /auth/logout
//	GET  /auth/me
//	GET  /auth/validate
//	GET  /metrics
//	GET  /healthz
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	h.handle(mux, "POST /auth/register", h.handleRegister)
	h.handle(mux, "POST /auth/login", h.handleLogin)
	h.handle(mux, "POST /auth/refresh", h.handleRefresh)
	h.handle(mux, "POST /auth/logout", h.handleLogout)
	h.handle(mux, "GET /auth/me", h.handleMe)
	h.handle(mux, "GET /auth/validate", h.handleValidate)
	mux.Handle("GET /metrics", h.metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	return h.authenticate(mux)
}

type registerRequest struct {
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

type registerResponse struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.users.Register(r.Context(), req.Email, req.Password, req.PasswordConfirmation)
	h.metrics.Register(err)
	if err != nil {
		h.fail(r.Context(), w, "register", err)
		return
	}

	writeJSON(w, http.StatusOK, registerResponse{Message: "User registered successfully", UserID: user.ID})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	UserID string `json:"user_id"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	s, err := h.sessions.Login(r.Context(), req.Email, req.Password)
	h.metrics.Login(err)
	if err != nil {
		h.fail(r.Context(), w, "login", err)
		return
	}

	writeSession(w, s)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var token string
	if c, err := r.Cookie(common.RefreshTokenCookieName); err == nil {
		token = c.Value
	}

	s, err := h.sessions.Refresh(r.Context(), token)
	h.metrics.Refresh(err)
	if err != nil {
		h.fail(r.Context(), w, "refresh", err)
		return
	}

	writeSession(w, s)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Logout(r.Context(), auth.PrincipalFromContext(r.Context()))
	h.metrics.Logout(err)
	if err != nil {
		h.fail(r.Context(), w, "logout", err)
		return
	}

	writeSession(w, s)
}

type principalResponse struct {
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

func newPrincipalResponse(p *auth.Principal) principalResponse {
	roles := p.Roles
	if roles == nil {
		roles = []string{}
	}
	return principalResponse{Email: p.Identity, Roles: roles}
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())
	if p == nil {
		writeError(w, common.ErrUserNotAuthenticated)
		return
	}
	writeJSON(w, http.StatusOK, newPrincipalResponse(p))
}

// handleValidate checks the token given in the query, independent of the
// credentials the request itself carries.
func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, common.ErrTokenMalformed)
		return
	}

	p, err := h.verifier.Verify(token)
	h.metrics.Verify(verifyResult(err))
	if err != nil {
		if common.KindOf(err) == common.KindInvalidSignature {
			h.log.Warn(r.Context(), "token with invalid signature presented for validation")
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newPrincipalResponse(p))
}

func writeSession(w http.ResponseWriter, s *services.Session) {
	for _, c := range s.Cookies() {
		http.SetCookie(w, c)
	}
	writeJSON(w, http.StatusOK, sessionResponse{UserID: s.UserID})
}

// fail logs unexpected errors before answering; expected outcomes were
// already logged by the services.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, op string, err error) {
	if common.KindOf(err) == common.KindInternal {
		h.log.Error(ctx, "request failed", "op", op, "error", err)
	}
	writeError(w, err)
}
