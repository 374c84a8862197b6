package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/opsdesk/internal/domain"
	"github.com/spec-kit/opsdesk/internal/events"
	"github.com/spec-kit/opsdesk/internal/observability"
	"github.com/spec-kit/opsdesk/internal/persistence"
	"github.com/spec-kit/opsdesk/internal/repository"
	apperrors "github.com/spec-kit/opsdesk/pkg/util/errorutil"
)

// DefaultUnaccountedAfter is how long a trip may stay out before the fleet
// manager is warned.
const DefaultUnaccountedAfter = 4 * time.Hour

// FleetService handles vehicle checkout, return and the overdue check.
type FleetService struct {
	fleet            repository.FleetRepository
	tx               persistence.Transactor
	rec              recorder
	logger           *zap.Logger
	unaccountedAfter time.Duration
	now              func() time.Time
}

// FleetDependencies bundles collaborators for the fleet service.
type FleetDependencies struct {
	Fleet            repository.FleetRepository
	Notes            repository.NoteRepository
	Outbox           EventAppender
	Tx               persistence.Transactor
	Metrics          *observability.Metrics
	Logger           *zap.Logger
	UnaccountedAfter time.Duration
	Now              func() time.Time
}

// TripRequestInput is the driver's checkout form.
type TripRequestInput struct {
	VehicleID      int64
	RequesterName  string
	RequesterEmail string
	Destination    string
	Purpose        string
}

// TripReturnInput is the driver's return form. ReturnTime defaults to now.
type TripReturnInput struct {
	EndingMileage *int
	ReturnTime    *time.Time
	Notes         string
}

// NewFleetService constructs the service.
func NewFleetService(deps FleetDependencies) *FleetService {
	after := deps.UnaccountedAfter
	if after <= 0 {
		after = DefaultUnaccountedAfter
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FleetService{
		fleet:            deps.Fleet,
		tx:               deps.Tx,
		rec:              recorder{notes: deps.Notes, outbox: deps.Outbox, metrics: deps.Metrics},
		logger:           logger,
		unaccountedAfter: after,
		now:              clock(deps.Now),
	}
}

// RequestTrip records a checkout request for an available vehicle.
func (s *FleetService) RequestTrip(ctx context.Context, input TripRequestInput) (*domain.VehicleTrip, error) {
	if err := requireFields(map[string]string{
		"requester_name":  input.RequesterName,
		"requester_email": input.RequesterEmail,
		"destination":     input.Destination,
	}); err != nil {
		return nil, err
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(input.RequesterEmail)); err != nil {
		return nil, apperrors.NewValidationError("requester_email is not a valid address", nil)
	}

	vehicle, err := s.GetVehicle(ctx, input.VehicleID)
	if err != nil {
		return nil, err
	}
	if vehicle.Status != domain.VehicleStatusAvailable {
		return nil, apperrors.NewValidationError("vehicle is not available", map[string]any{"vehicle_id": vehicle.ID, "status": vehicle.Status})
	}

	trip := &domain.VehicleTrip{
		VehicleID:      vehicle.ID,
		RequesterName:  strings.TrimSpace(input.RequesterName),
		RequesterEmail: strings.TrimSpace(input.RequesterEmail),
		Destination:    strings.TrimSpace(input.Destination),
		Purpose:        strings.TrimSpace(input.Purpose),
		Status:         domain.TripStatusRequested,
	}
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.fleet.CreateTrip(ctx, trip); err != nil {
			return err
		}
		body := fmt.Sprintf("Requested %s to %s", vehicle.Label(), trip.Destination)
		if err := s.rec.note(ctx, domain.EntityTrip, trip.ID, domain.NoteTypeStatusChange, body, trip.RequesterEmail); err != nil {
			return err
		}
		return s.rec.emit(ctx, events.EventTripRequested, domain.EntityTrip, trip.ID, trip.RequesterEmail, tripPayload(trip, vehicle))
	})
	s.rec.count(domain.EntityTrip, "request", err)
	if err != nil {
		return nil, err
	}
	return trip, nil
}

// ApproveTrip checks the vehicle out to the requester. The vehicle's current
// mileage becomes the trip's starting mileage.
func (s *FleetService) ApproveTrip(ctx context.Context, tripID int64, approvedBy string) (*domain.VehicleTrip, error) {
	approvedBy = strings.TrimSpace(approvedBy)
	if approvedBy == "" {
		approvedBy = "Fleet Manager"
	}

	var result *domain.VehicleTrip
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		trip, err := s.fleet.GetTrip(ctx, tripID)
		if err != nil {
			return notFoundOr(err, "trip", tripID)
		}
		if _, ok := trip.Status.Next(domain.TripActionApprove); !ok {
			return apperrors.NewInvalidTransition("trip", string(trip.Status), string(domain.TripActionApprove))
		}
		vehicle, err := s.fleet.GetVehicle(ctx, trip.VehicleID)
		if err != nil {
			return notFoundOr(err, "vehicle", trip.VehicleID)
		}
		if vehicle.Status != domain.VehicleStatusAvailable {
			return apperrors.NewInvalidTransition("vehicle", string(vehicle.Status), "check out")
		}

		approval := domain.TripApproval{
			TripID:          trip.ID,
			VehicleID:       vehicle.ID,
			ApprovedBy:      approvedBy,
			DepartureTime:   s.now().UTC(),
			StartingMileage: vehicle.CurrentMileage,
			Driver:          trip.RequesterName,
			DriverEmail:     trip.RequesterEmail,
		}
		ok, err := s.fleet.ApproveTrip(ctx, approval)
		if err != nil {
			return err
		}
		if !ok {
			return s.approvalMiss(ctx, tripID, vehicle.ID)
		}

		if err := s.rec.note(ctx, domain.EntityTrip, trip.ID, domain.NoteTypeApproval, "Approved by "+approvedBy, approvedBy); err != nil {
			return err
		}
		result, err = s.fleet.GetTrip(ctx, tripID)
		if err != nil {
			return err
		}
		return s.rec.emit(ctx, events.EventTripApproved, domain.EntityTrip, trip.ID, approvedBy, tripPayload(result, vehicle))
	})
	s.rec.count(domain.EntityTrip, string(domain.TripActionApprove), err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ReturnTrip closes an in-use trip, records the odometer and frees the vehicle.
func (s *FleetService) ReturnTrip(ctx context.Context, tripID int64, input TripReturnInput, actor string) (*domain.VehicleTrip, error) {
	var result *domain.VehicleTrip
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		trip, err := s.fleet.GetTrip(ctx, tripID)
		if err != nil {
			return notFoundOr(err, "trip", tripID)
		}
		if _, ok := trip.Status.Next(domain.TripActionReturn); !ok {
			return apperrors.NewInvalidTransition("trip", string(trip.Status), string(domain.TripActionReturn))
		}
		starting := 0
		if trip.StartingMileage != nil {
			starting = *trip.StartingMileage
		}
		if err := domain.ValidateReturnMileage(starting, input.EndingMileage); err != nil {
			return apperrors.NewValidationError(err.Error(), map[string]any{"starting_mileage": starting})
		}

		returnTime := s.now().UTC()
		if input.ReturnTime != nil {
			returnTime = input.ReturnTime.UTC()
		}
		ok, err := s.fleet.ReturnTrip(ctx, domain.TripReturn{
			TripID:        trip.ID,
			VehicleID:     trip.VehicleID,
			EndingMileage: *input.EndingMileage,
			ReturnTime:    returnTime,
			Notes:         strings.TrimSpace(input.Notes),
		})
		if err != nil {
			return err
		}
		if !ok {
			return s.lostRace(ctx, tripID, domain.TripActionReturn)
		}

		miles := *input.EndingMileage - starting
		who := strings.TrimSpace(actor)
		if who == "" {
			who = trip.RequesterEmail
		}
		body := withComment(fmt.Sprintf("Returned after %d miles", miles), input.Notes)
		if err := s.rec.note(ctx, domain.EntityTrip, trip.ID, domain.NoteTypeStatusChange, body, who); err != nil {
			return err
		}

		vehicle, err := s.fleet.GetVehicle(ctx, trip.VehicleID)
		if err != nil {
			return err
		}
		result, err = s.fleet.GetTrip(ctx, tripID)
		if err != nil {
			return err
		}
		return s.rec.emit(ctx, events.EventTripReturned, domain.EntityTrip, trip.ID, who, tripPayload(result, vehicle))
	})
	s.rec.count(domain.EntityTrip, string(domain.TripActionReturn), err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CheckUnaccounted flags every trip that has been out longer than the
// configured dwell and queues one warning per trip. Running it again does
// not warn twice.
func (s *FleetService) CheckUnaccounted(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-s.unaccountedAfter)
	trips, err := s.fleet.ListUnaccounted(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	flagged := 0
	var errs []error
	for i := range trips {
		trip := trips[i]
		marked := false
		err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
			ok, err := s.fleet.MarkUnaccountedNotified(ctx, trip.ID)
			if err != nil || !ok {
				return err
			}
			vehicle, err := s.fleet.GetVehicle(ctx, trip.VehicleID)
			if err != nil {
				return err
			}
			trip.UnaccountedNotified = true
			if err := s.rec.emit(ctx, events.EventTripUnaccounted, domain.EntityTrip, trip.ID, "system", tripPayload(&trip, vehicle)); err != nil {
				return err
			}
			marked = true
			return nil
		})
		if err != nil {
			s.logger.Error("flag unaccounted trip", zap.Int64("trip_id", trip.ID), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		if marked {
			flagged++
		}
	}
	return flagged, errors.Join(errs...)
}

// GetTrip returns one trip.
func (s *FleetService) GetTrip(ctx context.Context, id int64) (*domain.VehicleTrip, error) {
	trip, err := s.fleet.GetTrip(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "trip", id)
	}
	return trip, nil
}

// ListTrips returns trips matching filter.
func (s *FleetService) ListTrips(ctx context.Context, filter repository.TripFilter) ([]domain.VehicleTrip, error) {
	return s.fleet.ListTrips(ctx, filter)
}

// ListTripNotes returns the audit trail of a trip.
func (s *FleetService) ListTripNotes(ctx context.Context, id int64) ([]domain.Note, error) {
	if _, err := s.GetTrip(ctx, id); err != nil {
		return nil, err
	}
	return s.rec.notes.List(ctx, domain.EntityTrip, id)
}

// GetVehicle returns one vehicle.
func (s *FleetService) GetVehicle(ctx context.Context, id int64) (*domain.Vehicle, error) {
	vehicle, err := s.fleet.GetVehicle(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "vehicle", id)
	}
	return vehicle, nil
}

// ListVehicles returns vehicles, optionally only those in status.
func (s *FleetService) ListVehicles(ctx context.Context, status *domain.VehicleStatus) ([]domain.Vehicle, error) {
	return s.fleet.ListVehicles(ctx, status)
}

// AvailableVehicles lists vehicles that can be requested.
func (s *FleetService) AvailableVehicles(ctx context.Context) ([]domain.Vehicle, error) {
	status := domain.VehicleStatusAvailable
	return s.fleet.ListVehicles(ctx, &status)
}

// CreateVehicle adds a vehicle to the pool.
func (s *FleetService) CreateVehicle(ctx context.Context, v *domain.Vehicle) error {
	if err := requireFields(map[string]string{"make": v.Make, "model": v.Model, "plate": v.Plate}); err != nil {
		return err
	}
	if v.CurrentMileage < 0 {
		return apperrors.NewValidationError("current_mileage must not be negative", nil)
	}
	if v.Status == "" {
		v.Status = domain.VehicleStatusAvailable
	}
	if v.Status == domain.VehicleStatusInUse {
		return apperrors.NewValidationError("a new vehicle cannot start in use", nil)
	}
	return s.fleet.CreateVehicle(ctx, v)
}

// UpdateVehicle edits a vehicle that is not out on a trip. Only Available and
// Maintenance may be set directly.
func (s *FleetService) UpdateVehicle(ctx context.Context, v *domain.Vehicle) (*domain.Vehicle, error) {
	if err := requireFields(map[string]string{"make": v.Make, "model": v.Model, "plate": v.Plate}); err != nil {
		return nil, err
	}
	if v.Status != domain.VehicleStatusAvailable && v.Status != domain.VehicleStatusMaintenance {
		return nil, apperrors.NewValidationError("status must be Available or Maintenance", map[string]any{"status": v.Status})
	}
	current, err := s.GetVehicle(ctx, v.ID)
	if err != nil {
		return nil, err
	}
	if current.Status == domain.VehicleStatusInUse {
		return nil, apperrors.NewInvalidTransition("vehicle", string(current.Status), "edit")
	}
	if err := s.fleet.UpdateVehicle(ctx, v); err != nil {
		if errors.Is(notFoundOr(err, "vehicle", v.ID), apperrors.ErrNotFound) {
			return nil, s.vehicleMiss(ctx, v.ID)
		}
		return nil, err
	}
	return s.GetVehicle(ctx, v.ID)
}

// approvalMiss explains why the approval write matched nothing: the trip
// moved on, or the vehicle is no longer available.
func (s *FleetService) approvalMiss(ctx context.Context, tripID, vehicleID int64) error {
	trip, err := s.fleet.GetTrip(ctx, tripID)
	if err != nil {
		return notFoundOr(err, "trip", tripID)
	}
	if trip.Status != domain.TripStatusRequested {
		return apperrors.NewInvalidTransition("trip", string(trip.Status), string(domain.TripActionApprove))
	}
	vehicle, err := s.fleet.GetVehicle(ctx, vehicleID)
	if err != nil {
		return notFoundOr(err, "vehicle", vehicleID)
	}
	return apperrors.NewInvalidTransition("vehicle", string(vehicle.Status), "check out")
}

func (s *FleetService) vehicleMiss(ctx context.Context, id int64) error {
	vehicle, err := s.fleet.GetVehicle(ctx, id)
	if err != nil {
		return notFoundOr(err, "vehicle", id)
	}
	return apperrors.NewInvalidTransition("vehicle", string(vehicle.Status), "edit")
}

func (s *FleetService) lostRace(ctx context.Context, id int64, action domain.TripAction) error {
	trip, err := s.fleet.GetTrip(ctx, id)
	if err != nil {
		return notFoundOr(err, "trip", id)
	}
	return apperrors.NewInvalidTransition("trip", string(trip.Status), string(action))
}

func tripPayload(t *domain.VehicleTrip, v *domain.Vehicle) events.TripPayload {
	p := events.TripPayload{
		Vehicle:         v.Label(),
		RequesterName:   t.RequesterName,
		RequesterEmail:  t.RequesterEmail,
		Destination:     t.Destination,
		Purpose:         t.Purpose,
		Status:          t.Status,
		DepartureTime:   t.DepartureTime,
		ReturnTime:      t.ReturnTime,
		StartingMileage: t.StartingMileage,
		EndingMileage:   t.EndingMileage,
	}
	if t.ApprovedBy != nil {
		p.ApprovedBy = *t.ApprovedBy
	}
	if miles, ok := t.MilesDriven(); ok {
		p.MilesDriven = &miles
	}
	return p
}
