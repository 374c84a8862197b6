package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/opsdesk/internal/domain"
	"github.com/spec-kit/opsdesk/internal/persistence"
)

// TripFilter narrows trip listings.
type TripFilter struct {
	Statuses  []domain.TripStatus
	VehicleID *int64
	Limit     int
	Offset    int
}

// FleetRepository persists vehicles and their trips.
type FleetRepository interface {
	CreateVehicle(ctx context.Context, vehicle *domain.Vehicle) error
	UpdateVehicle(ctx context.Context, vehicle *domain.Vehicle) error
	GetVehicle(ctx context.Context, id int64) (*domain.Vehicle, error)
	ListVehicles(ctx context.Context, status *domain.VehicleStatus) ([]domain.Vehicle, error)

	CreateTrip(ctx context.Context, trip *domain.VehicleTrip) error
	GetTrip(ctx context.Context, id int64) (*domain.VehicleTrip, error)
	ListTrips(ctx context.Context, filter TripFilter) ([]domain.VehicleTrip, error)
	// ApproveTrip moves a Requested trip to In Use and checks the vehicle out.
	// It reports false when either row was no longer in the expected state.
	ApproveTrip(ctx context.Context, a domain.TripApproval) (bool, error)
	// ReturnTrip moves an In Use trip to Returned and frees the vehicle.
	ReturnTrip(ctx context.Context, r domain.TripReturn) (bool, error)
	// ListUnaccounted returns In Use trips that departed before cutoff and
	// have not been reported yet.
	ListUnaccounted(ctx context.Context, cutoff time.Time) ([]domain.VehicleTrip, error)
	// MarkUnaccountedNotified flips the flag only if it is still unset.
	MarkUnaccountedNotified(ctx context.Context, tripID int64) (bool, error)
}

type fleetRepository struct {
	db *persistence.Gateway
}

// NewFleetRepository instantiates repository.
func NewFleetRepository(db *persistence.Gateway) FleetRepository {
	return &fleetRepository{db: db}
}

const vehicleColumns = `id, make, model, year, plate, current_mileage, status, current_driver, current_driver_email, created_at, updated_at`

const tripColumns = `id, vehicle_id, requester_name, requester_email, destination, purpose, status, starting_mileage,
       ending_mileage, departure_time, return_time, approved_by, return_notes, unaccounted_notified, created_at, updated_at`

func (r *fleetRepository) CreateVehicle(ctx context.Context, v *domain.Vehicle) error {
	const query = `
        INSERT INTO vehicles (make, model, year, plate, current_mileage, status)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at, updated_at`
	err := r.db.Conn(ctx).QueryRow(ctx, query,
		v.Make, v.Model, v.Year, v.Plate, v.CurrentMileage, v.Status,
	).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	return persistence.Classify(err)
}

// UpdateVehicle changes descriptive fields and the maintenance flag. A
// vehicle that is out on a trip cannot be edited here.
func (r *fleetRepository) UpdateVehicle(ctx context.Context, v *domain.Vehicle) error {
	const query = `
        UPDATE vehicles SET make=$1, model=$2, year=$3, plate=$4, status=$5, updated_at=NOW()
        WHERE id=$6 AND status <> 'In Use'`
	affected, err := r.db.ExecuteNonQuery(ctx, query, v.Make, v.Model, v.Year, v.Plate, v.Status, v.ID)
	if err != nil {
		return err
	}
	if affected == 0 {
		return persistence.Classify(pgx.ErrNoRows)
	}
	return nil
}

func (r *fleetRepository) GetVehicle(ctx context.Context, id int64) (*domain.Vehicle, error) {
	v, err := scanVehicle(r.db.Conn(ctx).QueryRow(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE id=$1`, id))
	if err != nil {
		return nil, persistence.Classify(err)
	}
	return v, nil
}

func (r *fleetRepository) ListVehicles(ctx context.Context, status *domain.VehicleStatus) ([]domain.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles`
	args := []any{}
	if status != nil {
		query += ` WHERE status=$1`
		args = append(args, *status)
	}
	query += ` ORDER BY make, model, plate`

	rows, err := r.db.Conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, persistence.Classify(err)
	}
	defer rows.Close()

	var result []domain.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, persistence.Classify(err)
		}
		result = append(result, *v)
	}
	return result, persistence.Classify(rows.Err())
}

func (r *fleetRepository) CreateTrip(ctx context.Context, t *domain.VehicleTrip) error {
	const query = `
        INSERT INTO vehicle_trips (vehicle_id, requester_name, requester_email, destination, purpose, status)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at, updated_at`
	err := r.db.Conn(ctx).QueryRow(ctx, query,
		t.VehicleID, t.RequesterName, t.RequesterEmail, t.Destination, t.Purpose, t.Status,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	return persistence.Classify(err)
}

func (r *fleetRepository) GetTrip(ctx context.Context, id int64) (*domain.VehicleTrip, error) {
	t, err := scanTrip(r.db.Conn(ctx).QueryRow(ctx, `SELECT `+tripColumns+` FROM vehicle_trips WHERE id=$1`, id))
	if err != nil {
		return nil, persistence.Classify(err)
	}
	return t, nil
}

func (r *fleetRepository) ListTrips(ctx context.Context, filter TripFilter) ([]domain.VehicleTrip, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.VehicleID != nil {
		args = append(args, *filter.VehicleID)
		clauses = append(clauses, fmt.Sprintf("vehicle_id=$%d", len(args)))
	}
	limit, offset := normalizePage(filter.Limit, filter.Offset)
	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM vehicle_trips WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		tripColumns, strings.Join(clauses, " AND "), len(args)-1, len(args))
	return r.queryTrips(ctx, query, args...)
}

func (r *fleetRepository) ApproveTrip(ctx context.Context, a domain.TripApproval) (bool, error) {
	// Vehicle first: a miss here leaves the trip row untouched, so a re-read
	// in the same transaction still shows why the approval failed.
	const vehicleQuery = `
        UPDATE vehicles
        SET status=$1, current_driver=$2, current_driver_email=$3, updated_at=NOW()
        WHERE id=$4 AND status=$5`
	affected, err := r.db.ExecuteNonQuery(ctx, vehicleQuery,
		domain.VehicleStatusInUse, a.Driver, a.DriverEmail, a.VehicleID, domain.VehicleStatusAvailable)
	if err != nil || affected == 0 {
		return false, err
	}

	const tripQuery = `
        UPDATE vehicle_trips
        SET status=$1, departure_time=$2, starting_mileage=$3, approved_by=$4, updated_at=NOW()
        WHERE id=$5 AND status=$6`
	affected, err = r.db.ExecuteNonQuery(ctx, tripQuery,
		domain.TripStatusInUse, a.DepartureTime, a.StartingMileage, a.ApprovedBy, a.TripID, domain.TripStatusRequested)
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *fleetRepository) ReturnTrip(ctx context.Context, ret domain.TripReturn) (bool, error) {
	const tripQuery = `
        UPDATE vehicle_trips
        SET status=$1, ending_mileage=$2, return_time=$3, return_notes=$4, updated_at=NOW()
        WHERE id=$5 AND status=$6`
	affected, err := r.db.ExecuteNonQuery(ctx, tripQuery,
		domain.TripStatusReturned, ret.EndingMileage, ret.ReturnTime, ret.Notes, ret.TripID, domain.TripStatusInUse)
	if err != nil || affected == 0 {
		return false, err
	}

	const vehicleQuery = `
        UPDATE vehicles
        SET status=$1, current_mileage=GREATEST(current_mileage, $2), current_driver=NULL,
            current_driver_email=NULL, updated_at=NOW()
        WHERE id=$3`
	affected, err = r.db.ExecuteNonQuery(ctx, vehicleQuery, domain.VehicleStatusAvailable, ret.EndingMileage, ret.VehicleID)
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *fleetRepository) ListUnaccounted(ctx context.Context, cutoff time.Time) ([]domain.VehicleTrip, error) {
	query := `SELECT ` + tripColumns + ` FROM vehicle_trips
        WHERE status=$1 AND departure_time < $2 AND unaccounted_notified = FALSE
        ORDER BY departure_time ASC`
	return r.queryTrips(ctx, query, domain.TripStatusInUse, cutoff)
}

func (r *fleetRepository) MarkUnaccountedNotified(ctx context.Context, tripID int64) (bool, error) {
	const query = `
        UPDATE vehicle_trips SET unaccounted_notified = TRUE, updated_at=NOW()
        WHERE id=$1 AND status=$2 AND unaccounted_notified = FALSE`
	affected, err := r.db.ExecuteNonQuery(ctx, query, tripID, domain.TripStatusInUse)
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *fleetRepository) queryTrips(ctx context.Context, query string, args ...any) ([]domain.VehicleTrip, error) {
	rows, err := r.db.Conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, persistence.Classify(err)
	}
	defer rows.Close()

	var result []domain.VehicleTrip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, persistence.Classify(err)
		}
		result = append(result, *t)
	}
	return result, persistence.Classify(rows.Err())
}

func scanVehicle(row pgx.Row) (*domain.Vehicle, error) {
	var v domain.Vehicle
	if err := row.Scan(
		&v.ID,
		&v.Make,
		&v.Model,
		&v.Year,
		&v.Plate,
		&v.CurrentMileage,
		&v.Status,
		&v.CurrentDriver,
		&v.CurrentDriverEmail,
		&v.CreatedAt,
		&v.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &v, nil
}

func scanTrip(row pgx.Row) (*domain.VehicleTrip, error) {
	var t domain.VehicleTrip
	if err := row.Scan(
		&t.ID,
		&t.VehicleID,
		&t.RequesterName,
		&t.RequesterEmail,
		&t.Destination,
		&t.Purpose,
		&t.Status,
		&t.StartingMileage,
		&t.EndingMileage,
		&t.DepartureTime,
		&t.ReturnTime,
		&t.ApprovedBy,
		&t.ReturnNotes,
		&t.UnaccountedNotified,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &t, nil
}
