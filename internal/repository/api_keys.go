package repository

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmehdipour/email-gateway/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

type APIKeysRepository interface {
	// GetByKey returns (nil, nil) when the key does not exist.
	GetByKey(ctx context.Context, key string) (*model.APIKey, error)
}

type APIKeysRepositoryImpl struct {
	db *sqlx.DB
}

func NewAPIKeysRepository(db *sqlx.DB) *APIKeysRepositoryImpl {
	return &APIKeysRepositoryImpl{db: db}
}

var _ APIKeysRepository = (*APIKeysRepositoryImpl)(nil)

func (r *APIKeysRepositoryImpl) GetByKey(ctx context.Context, key string) (*model.APIKey, error) {
	var k model.APIKey
	err := r.db.GetContext(ctx, &k, `
		SELECT id, name, api_key, company_id, is_active, expires_at, created_at
		  FROM api_keys
		 WHERE api_key = ? LIMIT 1
	`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// CachedAPIKeysRepository keeps found key records in Redis for a short TTL.
// Entries expire on their own, so deactivation is visible after at most one TTL.
type CachedAPIKeysRepository struct {
	next APIKeysRepository
	rds  *redis.Client
	ttl  time.Duration
}

func NewCachedAPIKeysRepository(next APIKeysRepository, rds *redis.Client, ttl time.Duration) APIKeysRepository {
	if rds == nil || ttl <= 0 {
		return next
	}
	return &CachedAPIKeysRepository{next: next, rds: rds, ttl: ttl}
}

func cacheKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return "apikey:" + hex.EncodeToString(sum[:])
}

type cachedKey struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	CompanyID int64      `json:"company_id"`
	IsActive  bool       `json:"is_active"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (r *CachedAPIKeysRepository) GetByKey(ctx context.Context, key string) (*model.APIKey, error) {
	ck := cacheKey(key)
	if raw, err := r.rds.Get(ctx, ck).Bytes(); err == nil {
		var c cachedKey
		if json.Unmarshal(raw, &c) == nil {
			return &model.APIKey{
				ID: c.ID, Name: c.Name, Key: key, CompanyID: c.CompanyID,
				IsActive: c.IsActive, ExpiresAt: c.ExpiresAt,
			}, nil
		}
	}

	k, err := r.next.GetByKey(ctx, key)
	if err != nil || k == nil {
		return k, err
	}

	if b, err := json.Marshal(cachedKey{
		ID: k.ID, Name: k.Name, CompanyID: k.CompanyID, IsActive: k.IsActive, ExpiresAt: k.ExpiresAt,
	}); err == nil {
		// best effort; a cache write failure only costs the next lookup a DB hit
		_ = r.rds.Set(ctx, ck, b, r.ttl).Err()
	}
	return k, nil
}
