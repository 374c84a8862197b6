package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/opsdesk/internal/api/dto"
	"github.com/spec-kit/opsdesk/internal/domain"
	"github.com/spec-kit/opsdesk/internal/repository"
	"github.com/spec-kit/opsdesk/internal/service"
	apperrors "github.com/spec-kit/opsdesk/pkg/util/errorutil"
)

// FleetHandler exposes vehicle and trip administration.
type FleetHandler struct {
	fleet *service.FleetService
}

func NewFleetHandler(fleet *service.FleetService) *FleetHandler {
	return &FleetHandler{fleet: fleet}
}

// ListVehicles GET /vehicles?status=.
func (h *FleetHandler) ListVehicles(c *fiber.Ctx) error {
	var status *domain.VehicleStatus
	if s := c.Query("status"); s != "" {
		vs := domain.VehicleStatus(s)
		status = &vs
	}
	vehicles, err := h.fleet.ListVehicles(c.UserContext(), status)
	if err != nil {
		return err
	}
	out := make([]dto.VehicleResponse, 0, len(vehicles))
	for i := range vehicles {
		out = append(out, vehicleResponse(&vehicles[i]))
	}
	return c.JSON(data(out))
}

// GetVehicle GET /vehicles/:id.
func (h *FleetHandler) GetVehicle(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	v, err := h.fleet.GetVehicle(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(data(vehicleResponse(v)))
}

// CreateVehicle POST /vehicles.
func (h *FleetHandler) CreateVehicle(c *fiber.Ctx) error {
	var req dto.VehicleRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	v := vehicleFromRequest(req)
	if err := h.fleet.CreateVehicle(c.UserContext(), v); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(data(vehicleResponse(v)))
}

// UpdateVehicle PUT /vehicles/:id.
func (h *FleetHandler) UpdateVehicle(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req dto.VehicleRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	v := vehicleFromRequest(req)
	v.ID = id
	updated, err := h.fleet.UpdateVehicle(c.UserContext(), v)
	if err != nil {
		return err
	}
	return c.JSON(data(vehicleResponse(updated)))
}

// ListTrips GET /trips?status=&vehicle_id=.
func (h *FleetHandler) ListTrips(c *fiber.Ctx) error {
	filter := repository.TripFilter{}
	for _, s := range splitQuery(c.Query("status")) {
		filter.Statuses = append(filter.Statuses, domain.TripStatus(s))
	}
	if c.Query("vehicle_id") != "" {
		id := int64(parseInt(c.Query("vehicle_id"), 0))
		if id <= 0 {
			return apperrors.NewValidationError("invalid vehicle_id", nil)
		}
		filter.VehicleID = &id
	}
	filter.Limit, filter.Offset = page(c)

	trips, err := h.fleet.ListTrips(c.UserContext(), filter)
	if err != nil {
		return err
	}
	out := make([]dto.TripResponse, 0, len(trips))
	for i := range trips {
		out = append(out, tripResponse(&trips[i], nil))
	}
	return c.JSON(data(out))
}

// GetTrip GET /trips/:id.
func (h *FleetHandler) GetTrip(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	trip, err := h.fleet.GetTrip(c.UserContext(), id)
	if err != nil {
		return err
	}
	notes, err := h.fleet.ListTripNotes(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(data(tripResponse(trip, notes)))
}

// ApproveTrip POST /trips/:id/approve.
func (h *FleetHandler) ApproveTrip(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req dto.TripApproveRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
	}
	approvedBy := req.ApprovedBy
	if approvedBy == "" {
		approvedBy = currentActor(c).Label()
	}
	trip, err := h.fleet.ApproveTrip(c.UserContext(), id, approvedBy)
	if err != nil {
		return err
	}
	return c.JSON(data(tripResponse(trip, nil)))
}

// ReturnTrip POST /trips/:id/return.
func (h *FleetHandler) ReturnTrip(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req dto.TripReturnRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	trip, err := h.fleet.ReturnTrip(c.UserContext(), id, service.TripReturnInput{
		EndingMileage: req.EndingMileage,
		ReturnTime:    req.ReturnTime,
		Notes:         req.Notes,
	}, currentActor(c).Label())
	if err != nil {
		return err
	}
	return c.JSON(data(tripResponse(trip, nil)))
}

func vehicleFromRequest(req dto.VehicleRequest) *domain.Vehicle {
	return &domain.Vehicle{
		Make:           req.Make,
		Model:          req.Model,
		Year:           req.Year,
		Plate:          req.Plate,
		CurrentMileage: req.CurrentMileage,
		Status:         req.Status,
	}
}

func vehicleResponse(v *domain.Vehicle) dto.VehicleResponse {
	return dto.VehicleResponse{
		ID:                 v.ID,
		Make:               v.Make,
		Model:              v.Model,
		Year:               v.Year,
		Plate:              v.Plate,
		CurrentMileage:     v.CurrentMileage,
		Status:             v.Status,
		CurrentDriver:      v.CurrentDriver,
		CurrentDriverEmail: v.CurrentDriverEmail,
	}
}

func tripResponse(t *domain.VehicleTrip, notes []domain.Note) dto.TripResponse {
	resp := dto.TripResponse{
		ID:                  t.ID,
		VehicleID:           t.VehicleID,
		RequesterName:       t.RequesterName,
		RequesterEmail:      t.RequesterEmail,
		Destination:         t.Destination,
		Purpose:             t.Purpose,
		Status:              t.Status,
		StartingMileage:     t.StartingMileage,
		EndingMileage:       t.EndingMileage,
		DepartureTime:       t.DepartureTime,
		ReturnTime:          t.ReturnTime,
		ApprovedBy:          t.ApprovedBy,
		ReturnNotes:         t.ReturnNotes,
		UnaccountedNotified: t.UnaccountedNotified,
		CreatedAt:           t.CreatedAt,
	}
	if miles, ok := t.MilesDriven(); ok {
		resp.MilesDriven = &miles
	}
	if notes != nil {
		resp.Notes = noteResponses(notes)
	}
	return resp
}

// AvailableVehicles GET /vehicles/available.
func (h *FleetHandler) AvailableVehicles(c *fiber.Ctx) error {
	vehicles, err := h.fleet.AvailableVehicles(c.UserContext())
	if err != nil {
		return err
	}
	out := make([]dto.VehicleResponse, 0, len(vehicles))
	for i := range vehicles {
		out = append(out, vehicleResponse(&vehicles[i]))
	}
	return c.JSON(data(out))
}
