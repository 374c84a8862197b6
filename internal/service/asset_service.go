package service

import (
	"context"
	"strings"

	"github.com/spec-kit/opsdesk/internal/domain"
	"github.com/spec-kit/opsdesk/internal/repository"
	apperrors "github.com/spec-kit/opsdesk/pkg/util/errorutil"
)

// AssetService maintains the equipment inventory.
type AssetService struct {
	assets repository.AssetRepository
}

func NewAssetService(assets repository.AssetRepository) *AssetService {
	return &AssetService{assets: assets}
}

func (s *AssetService) validate(a *domain.Asset) error {
	a.AssetTag = strings.TrimSpace(a.AssetTag)
	a.Name = strings.TrimSpace(a.Name)
	if err := requireFields(map[string]string{"asset_tag": a.AssetTag, "name": a.Name}); err != nil {
		return err
	}
	if a.Status == "" {
		a.Status = domain.AssetStatusInService
	}
	if !a.Status.Valid() {
		return apperrors.NewValidationError("unknown asset status", map[string]any{"status": a.Status})
	}
	if a.PurchaseCost.Valid && a.PurchaseCost.Decimal.IsNegative() {
		return apperrors.NewValidationError("purchase_cost must not be negative", nil)
	}
	return nil
}

// CreateAsset adds an asset.
func (s *AssetService) CreateAsset(ctx context.Context, a *domain.Asset) error {
	if err := s.validate(a); err != nil {
		return err
	}
	return s.assets.Create(ctx, a)
}

// UpdateAsset replaces an asset's fields.
func (s *AssetService) UpdateAsset(ctx context.Context, a *domain.Asset) (*domain.Asset, error) {
	if err := s.validate(a); err != nil {
		return nil, err
	}
	if err := s.assets.Update(ctx, a); err != nil {
		return nil, notFoundOr(err, "asset", a.ID)
	}
	return s.GetAsset(ctx, a.ID)
}

func (s *AssetService) GetAsset(ctx context.Context, id int64) (*domain.Asset, error) {
	a, err := s.assets.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "asset", id)
	}
	return a, nil
}

func (s *AssetService) ListAssets(ctx context.Context, filter repository.AssetFilter) ([]domain.Asset, error) {
	return s.assets.List(ctx, filter)
}
