// Package refreshtokens persists refresh token rows. A user has at most one
// row, enforced by the unique user_id column.
package refreshtokens

import (
	"context"

	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

// Repository is the row-level access used by the refresh token store.
type Repository interface {
	// Upsert writes t, replacing any row the user already has.
	Upsert(ctx context.Context, t *models.RefreshToken) error

	// FindByToken returns common.ErrRefreshTokenNotFound when token is absent.
	FindByToken(ctx context.Context, token string) (*models.RefreshToken, error)

	// DeleteByUserID and DeleteByToken succeed when nothing matches.
	DeleteByUserID(ctx context.Context, userID string) error
	DeleteByToken(ctx context.Context, token string) error
}
