package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/cookies"
	"github.com/dmitrijs2005/gophauth/internal/server/refreshtokens"
)

// AccessTokenIssuer mints access tokens; *auth.Codec implements it.
type AccessTokenIssuer interface {
	Issue(identity string, roles []string) (string, error)
	TTL() time.Duration
}

// Session is what a successful login, refresh or logout hands back to
// the transport: the user and the cookies to set.
type Session struct {
	UserID        string
	AccessCookie  *http.Cookie
	RefreshCookie *http.Cookie
}

// Cookies lists the non-nil cookies of s.
func (s *Session) Cookies() []*http.Cookie {
	if s == nil {
		return nil
	}
	out := make([]*http.Cookie, 0, 2)
	for _, c := range []*http.Cookie{s.AccessCookie, s.RefreshCookie} {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

// SessionService runs login, refresh with rotation, and logout.
type SessionService struct {
	creds   CredentialVerifier
	users   UserLookup
	tokens  AccessTokenIssuer
	store   refreshtokens.Store
	cookies *cookies.Factory
	log     logging.Logger
}

func NewSessionService(
	creds CredentialVerifier,
	users UserLookup,
	tokens AccessTokenIssuer,
	store refreshtokens.Store,
	cookies *cookies.Factory,
	log logging.Logger,
) *SessionService {
	return &SessionService{
		creds:   creds,
		users:   users,
		tokens:  tokens,
		store:   store,
		cookies: cookies,
		log:     log.With("module", "sessions"),
	}
}

// Login verifies the credentials and opens a new session, replacing any
// refresh token the user had.
func (s *SessionService) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.creds.Authenticate(ctx, email, password)
	if err != nil {
		if errors.Is(err, common.ErrInvalidCredentials) {
			s.log.Info(ctx, "login rejected")
			return nil, err
		}
		return nil, fmt.Errorf("login: %w", err)
	}

	access, err := s.tokens.Issue(user.Email, user.Roles)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	rt, err := s.store.Create(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	s.log.Info(ctx, "user logged in", "user_id", user.ID)

	return &Session{
		UserID:        user.ID,
		AccessCookie:  s.cookies.AccessToken(access, s.tokens.TTL()),
		RefreshCookie: s.cookies.RefreshToken(rt.Token, rt.ExpiresAt),
	}, nil
}

// Refresh trades a live refresh token for a new access token and a new
// refresh token. The presented token stops working. Every failure matches
// common.ErrTokensRefresh and wraps the underlying cause.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, s.refreshFailed(ctx, common.ErrRefreshTokenNotFound)
	}

	rt, err := s.store.FindByToken(ctx, refreshToken)
	if err != nil {
		return nil, s.refreshFailed(ctx, err)
	}

	rt, err = s.store.VerifyExpiration(ctx, rt)
	if err != nil {
		return nil, s.refreshFailed(ctx, err)
	}

	user, err := s.users.GetByID(ctx, rt.UserID)
	if err != nil {
		return nil, s.refreshFailed(ctx, err)
	}

	access, err := s.tokens.Issue(user.Email, user.Roles)
	if err != nil {
		return nil, s.refreshFailed(ctx, err)
	}

	next, err := s.store.Create(ctx, user.ID)
	if err != nil {
		return nil, s.refreshFailed(ctx, err)
	}

	s.log.Info(ctx, "tokens refreshed", "user_id", user.ID)

	return &Session{
		UserID:        user.ID,
		AccessCookie:  s.cookies.AccessToken(access, s.tokens.TTL()),
		RefreshCookie: s.cookies.RefreshToken(next.Token, next.ExpiresAt),
	}, nil
}

func (s *SessionService) refreshFailed(ctx context.Context, cause error) error {
	s.log.Warn(ctx, "token refresh failed", "cause", cause.Error())
	return fmt.Errorf("%w: %w", common.ErrTokensRefresh, cause)
}

// Logout revokes the refresh token of the authenticated principal and
// returns cookies that clear both tokens on the client.
func (s *SessionService) Logout(ctx context.Context, p *auth.Principal) (*Session, error) {
	if p == nil {
		return nil, common.ErrUserNotAuthenticated
	}

	user, err := s.users.GetByEmail(ctx, p.Identity)
	if err != nil {
		if errors.Is(err, common.ErrUserNotFound) {
			return nil, common.ErrUserNotAuthenticated
		}
		return nil, fmt.Errorf("logout: %w", err)
	}

	if err := s.store.DeleteByUserID(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("logout: %w", err)
	}

	s.log.Info(ctx, "user logged out", "user_id", user.ID)

	return &Session{
		UserID:        user.ID,
		AccessCookie:  s.cookies.ClearAccessToken(),
		RefreshCookie: s.cookies.ClearRefreshToken(),
	}, nil
}
