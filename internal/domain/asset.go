package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetStatus tracks where an asset is in service.
type AssetStatus string

const (
	AssetStatusInService AssetStatus = "in_service"
	AssetStatusInRepair  AssetStatus = "in_repair"
	AssetStatusRetired   AssetStatus = "retired"
)

// Valid reports whether s is a known asset status.
func (s AssetStatus) Valid() bool {
	switch s {
	case AssetStatusInService, AssetStatusInRepair, AssetStatusRetired:
		return true
	}
	return false
}

// Asset is an inventoried piece of IT equipment.
type Asset struct {
	ID           int64
	AssetTag     string
	Name         string
	Category     string
	SerialNumber string
	Location     string
	AssignedTo   *string
	Status       AssetStatus
	PurchaseDate *time.Time
	PurchaseCost decimal.NullDecimal
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
