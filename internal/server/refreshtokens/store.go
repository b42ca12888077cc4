// Package refreshtokens owns the lifecycle of refresh tokens: one live
// token per user, replaced atomically on every login and refresh.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

// Store is the refresh token persistence used by the session service.
type Store interface {
	// Create replaces the user's token with a new one valid for the store
	// TTL. It fails with common.ErrUserNotFound for an unknown user.
	Create(ctx context.Context, userID string) (*models.RefreshToken, error)

	// FindByToken fails with common.ErrRefreshTokenNotFound when the token
	// never existed or has been replaced.
	FindByToken(ctx context.Context, token string) (*models.RefreshToken, error)

	// VerifyExpiration returns t unchanged while it is live. An expired
	// token is deleted and common.ErrRefreshTokenExpired is returned.
	VerifyExpiration(ctx context.Context, t *models.RefreshToken) (*models.RefreshToken, error)

	// DeleteByUserID is idempotent.
	DeleteByUserID(ctx context.Context, userID string) error
}

// UserChecker answers whether a user id exists.
type UserChecker interface {
	Exists(ctx context.Context, id string) (bool, error)
}

type options struct {
	now func() time.Time
}

type Option func(*options)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
