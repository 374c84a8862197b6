package http

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/opsdesk/internal/domain"
	"github.com/spec-kit/opsdesk/internal/events"
	"github.com/spec-kit/opsdesk/internal/persistence"
	"github.com/spec-kit/opsdesk/internal/repository"
)

type inlineTx struct{}

func (inlineTx) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type memNotes struct {
	seq   int64
	notes []domain.Note
}

func (m *memNotes) Append(_ context.Context, n *domain.Note) error {
	m.seq++
	n.ID = m.seq
	n.CreatedAt = time.Now()
	m.notes = append(m.notes, *n)
	return nil
}

func (m *memNotes) List(_ context.Context, entity domain.EntityKind, id int64) ([]domain.Note, error) {
	var out []domain.Note
	for _, n := range m.notes {
		if n.Entity == entity && n.EntityID == id {
			out = append(out, n)
		}
	}
	return out, nil
}

type memOutbox struct {
	events []events.Event
}

func (m *memOutbox) Append(_ context.Context, e events.Event) error {
	m.events = append(m.events, e)
	return nil
}

type memTickets struct {
	seq  int64
	rows map[int64]domain.Ticket
}

func (m *memTickets) Create(_ context.Context, t *domain.Ticket) error {
	m.seq++
	t.ID = m.seq
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	m.rows[t.ID] = *t
	return nil
}

func (m *memTickets) GetByID(_ context.Context, id int64) (*domain.Ticket, error) {
	t, ok := m.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &t, nil
}

func (m *memTickets) List(context.Context, repository.TicketFilter) ([]domain.Ticket, error) {
	var out []domain.Ticket
	for _, t := range m.rows {
		out = append(out, t)
	}
	return out, nil
}

func (m *memTickets) TransitionStatus(_ context.Context, id int64, change domain.TicketStatusChange) (bool, error) {
	t, ok := m.rows[id]
	if !ok || t.Status != change.From {
		return false, nil
	}
	change.Apply(&t)
	m.rows[id] = t
	return true, nil
}

func (m *memTickets) UpdateAssignment(_ context.Context, id int64, assignee *string) error {
	t, ok := m.rows[id]
	if !ok {
		return pgx.ErrNoRows
	}
	t.AssignedTo = assignee
	m.rows[id] = t
	return nil
}

func (m *memTickets) UpdatePriority(_ context.Context, id int64, p domain.TicketPriority) error {
	t, ok := m.rows[id]
	if !ok {
		return pgx.ErrNoRows
	}
	t.Priority = p
	m.rows[id] = t
	return nil
}

type memUsers struct {
	rows map[int64]domain.User
}

func (m *memUsers) Create(_ context.Context, u *domain.User) error {
	u.ID = int64(len(m.rows) + 1)
	m.rows[u.ID] = *u
	return nil
}

func (m *memUsers) Update(_ context.Context, u *domain.User) error {
	if _, ok := m.rows[u.ID]; !ok {
		return pgx.ErrNoRows
	}
	m.rows[u.ID] = *u
	return nil
}

func (m *memUsers) GetByID(_ context.Context, id int64) (*domain.User, error) {
	u, ok := m.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &u, nil
}

func (m *memUsers) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	for _, u := range m.rows {
		if u.Username == username {
			u := u
			return &u, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memUsers) List(context.Context) ([]domain.User, error) {
	var out []domain.User
	for _, u := range m.rows {
		out = append(out, u)
	}
	return out, nil
}

type memFleet struct {
	vehicles map[int64]domain.Vehicle
	trips    map[int64]domain.VehicleTrip
}

func newMemFleet() *memFleet {
	return &memFleet{vehicles: map[int64]domain.Vehicle{}, trips: map[int64]domain.VehicleTrip{}}
}

func (m *memFleet) CreateVehicle(_ context.Context, v *domain.Vehicle) error {
	v.ID = int64(len(m.vehicles) + 1)
	m.vehicles[v.ID] = *v
	return nil
}

func (m *memFleet) UpdateVehicle(_ context.Context, v *domain.Vehicle) error {
	if _, ok := m.vehicles[v.ID]; !ok {
		return pgx.ErrNoRows
	}
	m.vehicles[v.ID] = *v
	return nil
}

func (m *memFleet) GetVehicle(_ context.Context, id int64) (*domain.Vehicle, error) {
	v, ok := m.vehicles[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &v, nil
}

func (m *memFleet) ListVehicles(_ context.Context, status *domain.VehicleStatus) ([]domain.Vehicle, error) {
	var out []domain.Vehicle
	for _, v := range m.vehicles {
		if status == nil || v.Status == *status {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *memFleet) CreateTrip(_ context.Context, t *domain.VehicleTrip) error {
	t.ID = int64(len(m.trips) + 1)
	m.trips[t.ID] = *t
	return nil
}

func (m *memFleet) GetTrip(_ context.Context, id int64) (*domain.VehicleTrip, error) {
	t, ok := m.trips[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &t, nil
}

func (m *memFleet) ListTrips(context.Context, repository.TripFilter) ([]domain.VehicleTrip, error) {
	var out []domain.VehicleTrip
	for _, t := range m.trips {
		out = append(out, t)
	}
	return out, nil
}

func (m *memFleet) ApproveTrip(_ context.Context, a domain.TripApproval) (bool, error) {
	t, ok := m.trips[a.TripID]
	if !ok || t.Status != domain.TripStatusRequested {
		return false, nil
	}
	v, ok := m.vehicles[a.VehicleID]
	if !ok || v.Status != domain.VehicleStatusAvailable {
		return false, nil
	}
	dep, start, by := a.DepartureTime, a.StartingMileage, a.ApprovedBy
	t.Status, t.DepartureTime, t.StartingMileage, t.ApprovedBy = domain.TripStatusInUse, &dep, &start, &by
	driver, email := a.Driver, a.DriverEmail
	v.Status, v.CurrentDriver, v.CurrentDriverEmail = domain.VehicleStatusInUse, &driver, &email
	m.trips[t.ID] = t
	m.vehicles[v.ID] = v
	return true, nil
}

func (m *memFleet) ReturnTrip(_ context.Context, r domain.TripReturn) (bool, error) {
	t, ok := m.trips[r.TripID]
	if !ok || t.Status != domain.TripStatusInUse {
		return false, nil
	}
	end, at := r.EndingMileage, r.ReturnTime
	t.Status, t.EndingMileage, t.ReturnTime, t.ReturnNotes = domain.TripStatusReturned, &end, &at, r.Notes
	m.trips[t.ID] = t
	v := m.vehicles[r.VehicleID]
	v.Status, v.CurrentDriver, v.CurrentDriverEmail, v.CurrentMileage = domain.VehicleStatusAvailable, nil, nil, end
	m.vehicles[v.ID] = v
	return true, nil
}

func (m *memFleet) ListUnaccounted(context.Context, time.Time) ([]domain.VehicleTrip, error) {
	return nil, nil
}

func (m *memFleet) MarkUnaccountedNotified(context.Context, int64) (bool, error) {
	return false, nil
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type stubQuerier struct{}

func (stubQuerier) ExecuteQuery(context.Context, string, ...any) (*persistence.Result, error) {
	return &persistence.Result{
		Columns: []string{"id", "subject", "status"},
		Rows:    [][]any{{int64(1), "Printer jam", "open"}},
	}, nil
}
