package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// SQLStore keeps tokens in the refresh_tokens table. Replacement runs in a
// single transaction and relies on the unique user_id index plus an upsert,
// so concurrent creates for one user leave exactly one row.
type SQLStore struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	ttl         time.Duration
	now         func() time.Time
	log         logging.Logger
}

func NewSQLStore(db *sql.DB, rm repomanager.RepositoryManager, ttl time.Duration, log logging.Logger, opts ...Option) *SQLStore {
	o := buildOptions(opts)
	return &SQLStore{
		db:          db,
		repomanager: rm,
		ttl:         ttl,
		now:         o.now,
		log:         log.With("module", "refreshtokens", "backend", "sql"),
	}
}

func (s *SQLStore) Create(ctx context.Context, userID string) (*models.RefreshToken, error) {
	now := s.now().UTC()
	t := &models.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		Token:     uuid.NewString(),
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		ok, err := s.repomanager.Users(tx).Exists(ctx, userID)
		if err != nil {
			return err
		}
		if !ok {
			return common.ErrUserNotFound
		}

		repo := s.repomanager.RefreshTokens(tx)
		if err := repo.DeleteByUserID(ctx, userID); err != nil {
			return err
		}
		return repo.Upsert(ctx, t)
	})
	if err != nil {
		if errors.Is(err, common.ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("create refresh token: %w", err)
	}

	s.log.Debug(ctx, "refresh token created", "user_id", userID, "expires_at", t.ExpiresAt)
	return t, nil
}

func (s *SQLStore) FindByToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	return s.repomanager.RefreshTokens(s.db).FindByToken(ctx, token)
}

func (s *SQLStore) VerifyExpiration(ctx context.Context, t *models.RefreshToken) (*models.RefreshToken, error) {
	if !t.Expired(s.now()) {
		return t, nil
	}

	if err := s.repomanager.RefreshTokens(s.db).DeleteByToken(ctx, t.Token); err != nil {
		return nil, fmt.Errorf("%w: delete: %w", common.ErrRefreshTokenExpired, err)
	}

	s.log.Debug(ctx, "expired refresh token removed", "user_id", t.UserID)
	return nil, common.ErrRefreshTokenExpired
}

func (s *SQLStore) DeleteByUserID(ctx context.Context, userID string) error {
	if err := s.repomanager.RefreshTokens(s.db).DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}
