package refreshtokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Key layout, both keys expire with the token:
//
//	<prefix>:rt:tok:<token>  JSON record
//	<prefix>:rt:user:<id>    current token of the user
var (
	// KEYS: token key, user key. ARGV: record, ttl ms, token key prefix, token.
	createScript = redis.NewScript(`
local old = redis.call('GET', KEYS[2])
if old then
  redis.call('DEL', ARGV[3] .. old)
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
redis.call('SET', KEYS[2], ARGV[4], 'PX', ARGV[2])
return 1
`)

	// KEYS: user key. ARGV: token key prefix.
	deleteByUserScript = redis.NewScript(`
local tok = redis.call('GET', KEYS[1])
if tok then
  redis.call('DEL', ARGV[1] .. tok)
end
return redis.call('DEL', KEYS[1])
`)

	// KEYS: token key, user key. ARGV: token.
	deleteTokenScript = redis.NewScript(`
redis.call('DEL', KEYS[1])
if redis.call('GET', KEYS[2]) == ARGV[1] then
  redis.call('DEL', KEYS[2])
end
return 1
`)
)

type redisRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// RedisStore keeps tokens in redis. Each mutation is a single Lua script,
// so replacement is atomic without client-side locking. The scripts build
// token keys from ARGV, so the store needs a single-node client and cannot
// run against a cluster.
type RedisStore struct {
	rdb    *redis.Client
	users  UserChecker
	prefix string
	ttl    time.Duration
	now    func() time.Time
	log    logging.Logger
}

func NewRedisStore(rdb *redis.Client, users UserChecker, prefix string, ttl time.Duration, log logging.Logger, opts ...Option) *RedisStore {
	o := buildOptions(opts)
	return &RedisStore{
		rdb:    rdb,
		users:  users,
		prefix: prefix,
		ttl:    ttl,
		now:    o.now,
		log:    log.With("module", "refreshtokens", "backend", "redis"),
	}
}

func (s *RedisStore) tokenPrefix() string       { return s.prefix + ":rt:tok:" }
func (s *RedisStore) tokenKey(tok string) string { return s.tokenPrefix() + tok }
func (s *RedisStore) userKey(id string) string   { return s.prefix + ":rt:user:" + id }

func (s *RedisStore) Create(ctx context.Context, userID string) (*models.RefreshToken, error) {
	ok, err := s.users.Exists(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("create refresh token: %w", err)
	}
	if !ok {
		return nil, common.ErrUserNotFound
	}

	now := s.now().UTC()
	t := &models.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		Token:     uuid.NewString(),
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}

	payload, err := json.Marshal(redisRecord(*t))
	if err != nil {
		return nil, fmt.Errorf("encode refresh token: %w", err)
	}

	keys := []string{s.tokenKey(t.Token), s.userKey(userID)}
	if err := createScript.Run(ctx, s.rdb, keys, payload, s.ttl.Milliseconds(), s.tokenPrefix(), t.Token).Err(); err != nil {
		return nil, fmt.Errorf("create refresh token: %w", err)
	}

	s.log.Debug(ctx, "refresh token created", "user_id", userID, "expires_at", t.ExpiresAt)
	return t, nil
}

func (s *RedisStore) FindByToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	raw, err := s.rdb.Get(ctx, s.tokenKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, common.ErrRefreshTokenNotFound
		}
		return nil, fmt.Errorf("redis error: %w", err)
	}

	var rec redisRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode refresh token: %w", err)
	}

	t := models.RefreshToken(rec)
	return &t, nil
}

func (s *RedisStore) VerifyExpiration(ctx context.Context, t *models.RefreshToken) (*models.RefreshToken, error) {
	if !t.Expired(s.now()) {
		return t, nil
	}

	keys := []string{s.tokenKey(t.Token), s.userKey(t.UserID)}
	if err := deleteTokenScript.Run(ctx, s.rdb, keys, t.Token).Err(); err != nil {
		return nil, fmt.Errorf("%w: delete: %w", common.ErrRefreshTokenExpired, err)
	}

	s.log.Debug(ctx, "expired refresh token removed", "user_id", t.UserID)
	return nil, common.ErrRefreshTokenExpired
}

func (s *RedisStore) DeleteByUserID(ctx context.Context, userID string) error {
	if err := deleteByUserScript.Run(ctx, s.rdb, []string{s.userKey(userID)}, s.tokenPrefix()).Err(); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}
