package cache

import (
	"context"
	"time"

	"shopmaster/backend/internal/domain"
)

type DraftCache interface {
	Get(ctx context.Context, key string) (*domain.AIDraft, bool, error)
	Set(ctx context.Context, key string, value *domain.AIDraft, ttl time.Duration) error
}

type NoopDraftCache struct{}

func (NoopDraftCache) Get(_ context.Context, _ string) (*domain.AIDraft, bool, error) {
	return nil, false, nil
}

func (NoopDraftCache) Set(_ context.Context, _ string, _ *domain.AIDraft, _ time.Duration) error {
	return nil
}
