package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/spec-kit/opsdesk/internal/domain"
)

// AssetRequest creates or replaces an asset.
type AssetRequest struct {
	AssetTag     string              `json:"asset_tag"`
	Name         string              `json:"name"`
	Category     string              `json:"category"`
	SerialNumber string              `json:"serial_number"`
	Location     string              `json:"location"`
	AssignedTo   *string             `json:"assigned_to"`
	Status       domain.AssetStatus  `json:"status"`
	PurchaseDate *time.Time          `json:"purchase_date"`
	PurchaseCost decimal.NullDecimal `json:"purchase_cost"`
}

// AssetResponse representation.
type AssetResponse struct {
	ID           int64               `json:"id"`
	AssetTag     string              `json:"asset_tag"`
	Name         string              `json:"name"`
	Category     string              `json:"category,omitempty"`
	SerialNumber string              `json:"serial_number,omitempty"`
	Location     string              `json:"location,omitempty"`
	AssignedTo   *string             `json:"assigned_to"`
	Status       domain.AssetStatus  `json:"status"`
	PurchaseDate *time.Time          `json:"purchase_date"`
	PurchaseCost decimal.NullDecimal `json:"purchase_cost"`
	UpdatedAt    time.Time           `json:"updated_at"`
}
