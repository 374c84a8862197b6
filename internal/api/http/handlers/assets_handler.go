package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/opsdesk/internal/api/dto"
	"github.com/spec-kit/opsdesk/internal/domain"
	"github.com/spec-kit/opsdesk/internal/repository"
	"github.com/spec-kit/opsdesk/internal/service"
)

// AssetsHandler exposes the equipment inventory.
type AssetsHandler struct {
	assets *service.AssetService
}

func NewAssetsHandler(assets *service.AssetService) *AssetsHandler {
	return &AssetsHandler{assets: assets}
}

// List GET /assets?status=&category=&q=.
func (h *AssetsHandler) List(c *fiber.Ctx) error {
	filter := repository.AssetFilter{
		Category:   optionalQuery(c, "category"),
		SearchTerm: optionalQuery(c, "q"),
	}
	if s := c.Query("status"); s != "" {
		status := domain.AssetStatus(s)
		filter.Status = &status
	}
	filter.Limit, filter.Offset = page(c)

	assets, err := h.assets.ListAssets(c.UserContext(), filter)
	if err != nil {
		return err
	}
	out := make([]dto.AssetResponse, 0, len(assets))
	for i := range assets {
		out = append(out, assetResponse(&assets[i]))
	}
	return c.JSON(data(out))
}

// Get GET /assets/:id.
func (h *AssetsHandler) Get(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	a, err := h.assets.GetAsset(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(data(assetResponse(a)))
}

// Create POST /assets.
func (h *AssetsHandler) Create(c *fiber.Ctx) error {
	var req dto.AssetRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	a := assetFromRequest(req)
	if err := h.assets.CreateAsset(c.UserContext(), a); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(data(assetResponse(a)))
}

// Update PUT /assets/:id.
func (h *AssetsHandler) Update(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req dto.AssetRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	a := assetFromRequest(req)
	a.ID = id
	updated, err := h.assets.UpdateAsset(c.UserContext(), a)
	if err != nil {
		return err
	}
	return c.JSON(data(assetResponse(updated)))
}

func assetFromRequest(req dto.AssetRequest) *domain.Asset {
	return &domain.Asset{
		AssetTag:     req.AssetTag,
		Name:         req.Name,
		Category:     req.Category,
		SerialNumber: req.SerialNumber,
		Location:     req.Location,
		AssignedTo:   req.AssignedTo,
		Status:       req.Status,
		PurchaseDate: req.PurchaseDate,
		PurchaseCost: req.PurchaseCost,
	}
}

func assetResponse(a *domain.Asset) dto.AssetResponse {
	return dto.AssetResponse{
		ID:           a.ID,
		AssetTag:     a.AssetTag,
		Name:         a.Name,
		Category:     a.Category,
		SerialNumber: a.SerialNumber,
		Location:     a.Location,
		AssignedTo:   a.AssignedTo,
		Status:       a.Status,
		PurchaseDate: a.PurchaseDate,
		PurchaseCost: a.PurchaseCost,
		UpdatedAt:    a.UpdatedAt,
	}
}
