package catalog

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/sitestock/sitestock/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	GetMaterial(ctx context.Context, materialID string) (Material, error)
	ListMaterials(ctx context.Context) ([]Material, error)
}

// Service serves material lookups with a short-lived Redis price cache. Redis
// outages fall through to SQL.
type Service struct {
	repo     RepositoryPort
	redis    *redis.Client
	logger   *slog.Logger
	cacheTTL time.Duration
}

// NewService constructs the catalog service. redis may be nil, which disables
// caching.
func NewService(repo RepositoryPort, redisClient *redis.Client, logger *slog.Logger, cacheTTL time.Duration) *Service {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &Service{repo: repo, redis: redisClient, logger: logger, cacheTTL: cacheTTL}
}

// Get returns one material.
func (s *Service) Get(ctx context.Context, materialID string) (Material, error) {
	return s.repo.GetMaterial(ctx, materialID)
}

// List returns active materials.
func (s *Service) List(ctx context.Context) ([]Material, error) {
	return s.repo.ListMaterials(ctx)
}

// UnitPrice resolves the catalog price of a material. A missing material or
// missing price is tolerated: dispatch proceeds with a zero price, so the
// second return value reports whether a price was found.
func (s *Service) UnitPrice(ctx context.Context, materialID string) (decimal.Decimal, bool) {
	if cached, ok := s.cachedPrice(ctx, materialID); ok {
		return cached, true
	}
	material, err := s.repo.GetMaterial(ctx, materialID)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) && s.logger != nil {
			s.logger.Warn("catalog price lookup failed", slog.String("material_id", materialID), slog.Any("error", err))
		}
		return decimal.Zero, false
	}
	if !material.UnitPrice.IsPositive() {
		return decimal.Zero, false
	}
	s.storePrice(ctx, materialID, material.UnitPrice)
	return material.UnitPrice, true
}

func (s *Service) cachedPrice(ctx context.Context, materialID string) (decimal.Decimal, bool) {
	if s.redis == nil {
		return decimal.Zero, false
	}
	raw, err := s.redis.Get(ctx, priceKey(materialID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && s.logger != nil {
			s.logger.Warn("price cache read failed", slog.Any("error", err))
		}
		return decimal.Zero, false
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return price, true
}

func (s *Service) storePrice(ctx context.Context, materialID string, price decimal.Decimal) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Set(ctx, priceKey(materialID), price.String(), s.cacheTTL).Err(); err != nil && s.logger != nil {
		s.logger.Warn("price cache write failed", slog.Any("error", err))
	}
}

func priceKey(materialID string) string {
	return "catalog:price:" + materialID
}
