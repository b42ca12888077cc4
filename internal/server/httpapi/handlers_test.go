package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/cookies"
	"github.com/dmitrijs2005/gophauth/internal/server/keys"
	"github.com/dmitrijs2005/gophauth/internal/server/metrics"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testKey  = keys.Key(strings.Repeat("k", 32))
	otherKey = keys.Key(strings.Repeat("z", 32))
)

type fakeSessions struct {
	login   func(email, password string) (*services.Session, error)
	refresh func(token string) (*services.Session, error)
	logout  func(p *auth.Principal) (*services.Session, error)
}

func (f *fakeSessions) Login(_ context.Context, email, password string) (*services.Session, error) {
	return f.login(email, password)
}

func (f *fakeSessions) Refresh(_ context.Context, token string) (*services.Session, error) {
	return f.refresh(token)
}

func (f *fakeSessions) Logout(_ context.Context, p *auth.Principal) (*services.Session, error) {
	return f.logout(p)
}

type fakeRegistrar struct {
	register func(email, password, confirmation string) (*models.User, error)
}

func (f *fakeRegistrar) Register(_ context.Context, email, password, confirmation string) (*models.User, error) {
	return f.register(email, password, confirmation)
}

type fixture struct {
	sessions *fakeSessions
	users    *fakeRegistrar
	codec    *auth.Codec
	cookies  *cookies.Factory
	metrics  *metrics.Metrics
	handler  http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	codec, err := auth.NewCodec(testKey, 30*time.Minute)
	require.NoError(t, err)

	f := &fixture{
		sessions: &fakeSessions{},
		users:    &fakeRegistrar{},
		codec:    codec,
		cookies:  cookies.NewFactory(cookies.Config{Secure: true}),
		metrics:  metrics.New(),
	}
	f.handler = NewHandler(f.sessions, f.users, f.codec, f.metrics, logging.NopLogger{}).Routes()
	return f
}

func (f *fixture) session(userID string) *services.Session {
	return &services.Session{
		UserID:        userID,
		AccessCookie:  f.cookies.AccessToken("access", 30*time.Minute),
		RefreshCookie: f.cookies.RefreshToken("refresh", time.Now().Add(time.Hour)),
	}
}

func (f *fixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) token(t *testing.T, email string, roles ...string) string {
	t.Helper()
	tok, err := f.codec.Issue(email, roles)
	require.NoError(t, err)
	return tok
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error
}

func TestRegister(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"created", nil, http.StatusOK, ""},
		{"email taken", common.ErrEmailAlreadyRegistered, http.StatusConflict, "Email is already registered"},
		{"mismatch", common.ErrPasswordMismatch, http.StatusBadRequest, "Password and confirmation do not match"},
		{"weak password", fmt.Errorf("%w: password must be at least 8 characters", common.ErrValidation), http.StatusBadRequest, "validation error: password must be at least 8 characters"},
		{"db down", fmt.Errorf("register user: %w", errors.New("conn refused")), http.StatusInternalServerError, msgInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.users.register = func(email, password, confirmation string) (*models.User, error) {
				assert.Equal(t, "a@b.io", email)
				assert.Equal(t, "Passw0rd!", password)
				assert.Equal(t, "Passw0rd!", confirmation)
				if tt.err != nil {
					return nil, tt.err
				}
				return &models.User{ID: "u-1", Email: email}, nil
			}

			body := `{"email":"a@b.io","password":"Passw0rd!","password_confirmation":"Passw0rd!"}`
			rec := f.do(t, httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body)))

			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, decodeError(t, rec))
				return
			}
			var resp registerResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, "u-1", resp.UserID)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestRegister_BadBody(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader("{")))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec), "invalid request body")
}

func TestLogin_Success_SetsCookies(t *testing.T) {
	f := newFixture(t)
	f.sessions.login = func(email, password string) (*services.Session, error) {
		assert.Equal(t, "a@b.io", email)
		assert.Equal(t, "secret", password)
		return f.session("u-1"), nil
	}

	rec := f.do(t, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"a@b.io","password":"secret"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp sessionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "u-1", resp.UserID)

	got := map[string]*http.Cookie{}
	for _, c := range rec.Result().Cookies() {
		got[c.Name] = c
	}
	require.Contains(t, got, common.AccessTokenCookieName)
	require.Contains(t, got, common.RefreshTokenCookieName)
	assert.True(t, got[common.AccessTokenCookieName].HttpOnly)
	assert.True(t, got[common.RefreshTokenCookieName].Secure)
	assert.Equal(t, http.SameSiteStrictMode, got[common.RefreshTokenCookieName].SameSite)
}

func TestLogin_InvalidCredentials_NoCookies(t *testing.T) {
	f := newFixture(t)
	f.sessions.login = func(string, string) (*services.Session, error) {
		return nil, common.ErrInvalidCredentials
	}

	rec := f.do(t, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"a@b.io","password":"x"}`)))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid email or password", decodeError(t, rec))
	assert.Empty(t, rec.Result().Cookies())
}

func TestRefresh_ReadsCookie(t *testing.T) {
	f := newFixture(t)
	f.sessions.refresh = func(token string) (*services.Session, error) {
		assert.Equal(t, "rt-1", token)
		return f.session("u-1"), nil
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: common.RefreshTokenCookieName, Value: "rt-1"})
	rec := f.do(t, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, rec.Result().Cookies(), 2)
}

func TestRefresh_FailureCollapses(t *testing.T) {
	f := newFixture(t)
	var seen string
	f.sessions.refresh = func(token string) (*services.Session, error) {
		seen = token
		return nil, fmt.Errorf("%w: %w", common.ErrTokensRefresh, common.ErrRefreshTokenExpired)
	}

	rec := f.do(t, httptest.NewRequest(http.MethodPost, "/auth/refresh", nil))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "", seen)
	assert.Equal(t, "Failed to refresh access token. Please try logging in again.", decodeError(t, rec))
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	f.sessions.logout = func(p *auth.Principal) (*services.Session, error) {
		if p == nil {
			return nil, common.ErrUserNotAuthenticated
		}
		assert.Equal(t, "a@b.io", p.Identity)
		return &services.Session{
			UserID:        "u-1",
			AccessCookie:  f.cookies.ClearAccessToken(),
			RefreshCookie: f.cookies.ClearRefreshToken(),
		}, nil
	}

	t.Run("anonymous", func(t *testing.T) {
		rec := f.do(t, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "User is not authenticated. Please log in.", decodeError(t, rec))
	})

	t.Run("bearer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
		req.Header.Set("Authorization", "Bearer "+f.token(t, "a@b.io"))
		rec := f.do(t, req)

		require.Equal(t, http.StatusOK, rec.Code)
		for _, c := range rec.Result().Cookies() {
			assert.Equal(t, "", c.Value)
			assert.Equal(t, -1, c.MaxAge)
		}
	})
}

func TestMe(t *testing.T) {
	f := newFixture(t)

	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req.AddCookie(&http.Cookie{Name: common.AccessTokenCookieName, Value: f.token(t, "a@b.io", "ADMIN")})
		rec := f.do(t, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp principalResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, principalResponse{Email: "a@b.io", Roles: []string{"ADMIN"}}, resp)
	})

	t.Run("anonymous", func(t *testing.T) {
		rec := f.do(t, httptest.NewRequest(http.MethodGet, "/auth/me", nil))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token is anonymous", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		rec := f.do(t, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "User is not authenticated. Please log in.", decodeError(t, rec))
	})
}

func TestMiddleware_ExpiredTokenIsAnonymous(t *testing.T) {
	f := newFixture(t)

	past, err := auth.NewCodec(testKey, time.Minute, auth.WithClock(func() time.Time {
		return time.Now().Add(-time.Hour)
	}))
	require.NoError(t, err)
	expired, err := past.Issue("a@b.io", nil)
	require.NoError(t, err)

	rec := f.do(t, withBearer(httptest.NewRequest(http.MethodGet, "/healthz", nil), expired))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestMiddleware_InvalidSignatureIsAnonymous(t *testing.T) {
	f := newFixture(t)

	forged, err := auth.NewCodec(otherKey, time.Minute)
	require.NoError(t, err)
	tok, err := forged.Issue("a@b.io", []string{"ADMIN"})
	require.NoError(t, err)

	withForgedCookie := func(req *http.Request) *http.Request {
		req.AddCookie(&http.Cookie{Name: common.AccessTokenCookieName, Value: tok})
		return req
	}

	var logins, refreshes int
	f.sessions.login = func(email, password string) (*services.Session, error) {
		logins++
		return f.session("u-1"), nil
	}
	f.sessions.refresh = func(token string) (*services.Session, error) {
		refreshes++
		assert.Equal(t, "rt-1", token)
		return f.session("u-1"), nil
	}
	f.sessions.logout = func(p *auth.Principal) (*services.Session, error) {
		assert.Nil(t, p)
		return nil, common.ErrUserNotAuthenticated
	}

	t.Run("login", func(t *testing.T) {
		req := withForgedCookie(httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"a@b.io","password":"Passw0rd!"}`)))
		rec := f.do(t, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, logins)
	})

	t.Run("refresh", func(t *testing.T) {
		req := withForgedCookie(httptest.NewRequest(http.MethodPost, "/auth/refresh", nil))
		req.AddCookie(&http.Cookie{Name: common.RefreshTokenCookieName, Value: "rt-1"})
		rec := f.do(t, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, refreshes)
	})

	t.Run("healthz", func(t *testing.T) {
		rec := f.do(t, withBearer(httptest.NewRequest(http.MethodGet, "/healthz", nil), tok))
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("me", func(t *testing.T) {
		rec := f.do(t, withForgedCookie(httptest.NewRequest(http.MethodGet, "/auth/me", nil)))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "User is not authenticated. Please log in.", decodeError(t, rec))
	})

	t.Run("logout", func(t *testing.T) {
		rec := f.do(t, withForgedCookie(httptest.NewRequest(http.MethodPost, "/auth/logout", nil)))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestValidate(t *testing.T) {
	f := newFixture(t)

	forged, err := auth.NewCodec(otherKey, time.Minute)
	require.NoError(t, err)
	bad, err := forged.Issue("a@b.io", nil)
	require.NoError(t, err)

	tests := []struct {
		name       string
		token      string
		wantStatus int
	}{
		{"valid", f.token(t, "a@b.io", "SUBSCRIBED_USER"), http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"garbage", "abc.def", http.StatusUnauthorized},
		{"forged", bad, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, httptest.NewRequest(http.MethodGet, "/auth/validate?token="+tt.token, nil))
			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus != http.StatusOK {
				assert.Equal(t, "Invalid or expired token.", decodeError(t, rec))
				return
			}
			var resp principalResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, "a@b.io", resp.Email)
			assert.Equal(t, []string{"SUBSCRIBED_USER"}, resp.Roles)
		})
	}
}

func TestRoutes_MethodNotAllowed(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetrics_CountsOutcomes(t *testing.T) {
	f := newFixture(t)
	f.sessions.login = func(string, string) (*services.Session, error) {
		return nil, common.ErrInvalidCredentials
	}

	f.do(t, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"a@b.io","password":"x"}`)))

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `gophauth_login_total{outcome="failure"} 1`)
	assert.Contains(t, string(body), `gophauth_http_requests_total{code="401",route="POST /auth/login"} 1`)
}

func TestAccessToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "", accessToken(req))

	req.AddCookie(&http.Cookie{Name: common.AccessTokenCookieName, Value: "from-cookie"})
	assert.Equal(t, "from-cookie", accessToken(req))

	req.Header.Set("Authorization", "bearer from-header")
	assert.Equal(t, "from-header", accessToken(req))

	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	assert.Equal(t, "from-cookie", accessToken(req))
}

func withBearer(r *http.Request, token string) *http.Request {
	r.Header.Set("Authorization", "Bearer "+token)
	return r
}
