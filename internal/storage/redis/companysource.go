package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jobradar/jobradar/internal/domain"
	"github.com/jobradar/jobradar/internal/repository"
)

const (
	sourceKeyPrefix = "jobradar:cs:"
	sourceIndexKey  = "jobradar:cs:index"
)

// Ensure CompanySourceRepository implements repository.CompanySourceRepository
var _ repository.CompanySourceRepository = (*CompanySourceRepository)(nil)

// CompanySourceRepository keeps company page cache rows in Redis: one JSON
// value per companyID+site key, plus a sorted set scored by lastScrapedAt
// that makes age-based cleanup a range query.
type CompanySourceRepository struct {
	rdb *redis.Client
}

// NewCompanySourceRepository wraps an existing client
func NewCompanySourceRepository(rdb *redis.Client) (*CompanySourceRepository, error) {
	if rdb == nil {
		return nil, fmt.Errorf("storage: redis client is required")
	}
	return &CompanySourceRepository{rdb: rdb}, nil
}

type sourceRow struct {
	CompanyID     string    `json:"companyId"`
	SourceSite    string    `json:"sourceSite"`
	SourceURL     string    `json:"sourceUrl"`
	LastScrapedAt time.Time `json:"lastScrapedAt"`
	IsValid       bool      `json:"isValid"`
	ContentHash   string    `json:"contentHash,omitempty"`
	RawContent    string    `json:"rawContent,omitempty"`
}

func sourceKey(companyID domain.CompanyID, site string) string {
	return sourceKeyPrefix + companyID.String() + ":" + site
}

// Get returns the row for companyID+site, or (nil, nil) when absent
func (r *CompanySourceRepository) Get(ctx context.Context, companyID domain.CompanyID, site string) (*domain.CompanySource, error) {
	raw, err := r.rdb.Get(ctx, sourceKey(companyID, site)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: load company source: %w", err)
	}

	var row sourceRow
	if err := json.Unmarshal([]byte(raw), &row); err != nil {
		return nil, fmt.Errorf("redis: decode company source: %w", err)
	}
	src := domain.CompanySource{
		CompanyID:     companyID,
		SourceSite:    row.SourceSite,
		SourceURL:     row.SourceURL,
		LastScrapedAt: row.LastScrapedAt,
		IsValid:       row.IsValid,
		ContentHash:   row.ContentHash,
		RawContent:    row.RawContent,
	}
	return &src, nil
}

// Upsert writes the row, replacing any existing row for the same key
func (r *CompanySourceRepository) Upsert(ctx context.Context, src *domain.CompanySource) error {
	raw, err := json.Marshal(sourceRow{
		CompanyID:     src.CompanyID.String(),
		SourceSite:    src.SourceSite,
		SourceURL:     src.SourceURL,
		LastScrapedAt: src.LastScrapedAt,
		IsValid:       src.IsValid,
		ContentHash:   src.ContentHash,
		RawContent:    src.RawContent,
	})
	if err != nil {
		return fmt.Errorf("redis: marshal company source: %w", err)
	}

	key := sourceKey(src.CompanyID, src.SourceSite)
	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, key, raw, 0)
	pipe.ZAdd(ctx, sourceIndexKey, redis.Z{
		Score:  float64(src.LastScrapedAt.UnixMilli()),
		Member: key,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: upsert company source: %w", err)
	}
	return nil
}

// DeleteOlderThan removes rows last scraped before cutoff and reports how
// many were removed
func (r *CompanySourceRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	max := fmt.Sprintf("(%d", cutoff.UnixMilli())
	keys, err := r.rdb.ZRangeByScore(ctx, sourceIndexKey, &redis.ZRangeBy{
		Min: "-inf", Max: max,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: scan stale company sources: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.ZRemRangeByScore(ctx, sourceIndexKey, "-inf", max)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis: delete stale company sources: %w", err)
	}
	return len(keys), nil
}
