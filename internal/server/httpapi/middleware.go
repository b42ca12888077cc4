package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
)

var verifyResults = map[common.Kind]string{
	common.KindInvalidSignature: "invalid_signature",
	common.KindTokenMalformed:   "malformed",
	common.KindTokenExpired:     "expired",
	common.KindTokenUnsupported: "unsupported",
}

func verifyResult(err error) string {
	if err == nil {
		return "ok"
	}
	if r, ok := verifyResults[common.KindOf(err)]; ok {
		return r
	}
	return "error"
}

// accessToken returns the bearer token, falling back to the access token
// cookie.
func accessToken(r *http.Request) string {
	if h := r.Header.Get(common.AuthorizationHeaderName); h != "" {
		if len(h) > len(common.BearerPrefix) && strings.EqualFold(h[:len(common.BearerPrefix)], common.BearerPrefix) {
			return strings.TrimSpace(h[len(common.BearerPrefix):])
		}
	}
	if c, err := r.Cookie(common.AccessTokenCookieName); err == nil {
		return c.Value
	}
	return ""
}

// authenticate puts the verified principal into the request context.
// A token that fails verification leaves the request anonymous, so public
// routes keep working and /auth/me and /auth/logout answer 401 themselves.
// Bad signatures are logged at warn level for audit.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := accessToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		p, err := h.verifier.Verify(token)
		h.metrics.Verify(verifyResult(err))

		switch {
		case err == nil:
			r = r.WithContext(auth.WithPrincipal(r.Context(), p))
		case common.IsUnauthenticatedToken(err):
			h.log.Debug(r.Context(), "access token ignored", "reason", err.Error())
		default:
			h.log.Warn(r.Context(), "access token rejected", "reason", err.Error(), "remote_addr", r.RemoteAddr)
		}

		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// handle registers fn under pattern and counts its responses per status.
func (h *Handler) handle(mux *http.ServeMux, pattern string, fn http.HandlerFunc) {
	mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		fn(rec, r)
		h.metrics.Request(pattern, strconv.Itoa(rec.status))
	}))
}
