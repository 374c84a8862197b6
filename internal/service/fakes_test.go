package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/spec-kit/opsdesk/internal/domain"
	"github.com/spec-kit/opsdesk/internal/events"
	"github.com/spec-kit/opsdesk/internal/repository"
)

type inlineTx struct{ calls int }

func (t *inlineTx) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	return fn(ctx)
}

type memNotes struct {
	mu    sync.Mutex
	seq   int64
	notes []domain.Note
}

func (m *memNotes) Append(_ context.Context, n *domain.Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	n.ID = m.seq
	n.CreatedAt = time.Now()
	m.notes = append(m.notes, *n)
	return nil
}

func (m *memNotes) List(_ context.Context, entity domain.EntityKind, id int64) ([]domain.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Note
	for _, n := range m.notes {
		if n.Entity == entity && n.EntityID == id {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *memNotes) ofType(entity domain.EntityKind, id int64, t domain.NoteType) []domain.Note {
	all, _ := m.List(context.Background(), entity, id)
	var out []domain.Note
	for _, n := range all {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

type memOutbox struct {
	events []events.Event
}

func (m *memOutbox) Append(_ context.Context, e events.Event) error {
	m.events = append(m.events, e)
	return nil
}

func (m *memOutbox) types() []events.EventType {
	out := make([]events.EventType, len(m.events))
	for i, e := range m.events {
		out[i] = e.Type
	}
	return out
}

// tickets

type memTickets struct {
	seq              int64
	rows             map[int64]domain.Ticket
	beforeTransition func()
}

func newMemTickets() *memTickets {
	return &memTickets{rows: map[int64]domain.Ticket{}}
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
	if m.beforeTransition != nil {
		m.beforeTransition()
	}
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

// procurement

type memProcurement struct {
	seq     int64
	itemSeq int64
	rows    map[int64]domain.ProcurementRequest
	items   map[int64][]domain.ProcurementItem
}

func newMemProcurement() *memProcurement {
	return &memProcurement{rows: map[int64]domain.ProcurementRequest{}, items: map[int64][]domain.ProcurementItem{}}
}

func (m *memProcurement) NextRequestNumber(context.Context) (string, error) {
	return fmt.Sprintf("PR-2024-%06d", m.seq+1), nil
}

func (m *memProcurement) Create(_ context.Context, r *domain.ProcurementRequest) error {
	m.seq++
	r.ID = m.seq
	m.rows[r.ID] = *r
	return nil
}

func (m *memProcurement) GetByID(_ context.Context, id int64) (*domain.ProcurementRequest, error) {
	r, ok := m.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	r.Items = append([]domain.ProcurementItem{}, m.items[id]...)
	return &r, nil
}

func (m *memProcurement) List(context.Context, repository.ProcurementFilter) ([]domain.ProcurementRequest, error) {
	var out []domain.ProcurementRequest
	for _, r := range m.rows {
		out = append(out, r)
	}
	return out, nil
}

func (m *memProcurement) LockStatus(_ context.Context, id int64) (domain.ProcurementStatus, error) {
	r, ok := m.rows[id]
	if !ok {
		return "", pgx.ErrNoRows
	}
	return r.Status, nil
}

func (m *memProcurement) UpdateDetails(_ context.Context, req *domain.ProcurementRequest, from domain.ProcurementStatus) (bool, error) {
	r, ok := m.rows[req.ID]
	if !ok || r.Status != from {
		return false, nil
	}
	r.RequesterName, r.RequesterEmail, r.Department = req.RequesterName, req.RequesterEmail, req.Department
	r.VendorName, r.VendorEmail, r.VendorPhone = req.VendorName, req.VendorEmail, req.VendorPhone
	r.Justification = req.Justification
	r.Status = domain.ProcurementStatusDraft
	m.rows[req.ID] = r
	return true, nil
}

func (m *memProcurement) Transition(_ context.Context, id int64, t domain.ProcurementTransition) (bool, error) {
	r, ok := m.rows[id]
	if !ok || r.Status != t.From {
		return false, nil
	}
	r.Status = t.To
	if t.Level1ApproverID != nil {
		r.Level1ApproverID = t.Level1ApproverID
	}
	if t.Level2ApproverID != nil {
		r.Level2ApproverID = t.Level2ApproverID
	}
	if t.Level1DecidedAt != nil {
		r.Level1DecidedAt = t.Level1DecidedAt
	}
	if t.Level2DecidedAt != nil {
		r.Level2DecidedAt = t.Level2DecidedAt
	}
	if t.OrderedAt != nil {
		r.OrderedAt = t.OrderedAt
	}
	if t.ReceivedAt != nil {
		r.ReceivedAt = t.ReceivedAt
	}
	m.rows[id] = r
	return true, nil
}

func (m *memProcurement) AddItem(_ context.Context, item *domain.ProcurementItem) error {
	m.itemSeq++
	item.ID = m.itemSeq
	line := 0
	for _, it := range m.items[item.RequestID] {
		if it.LineNumber > line {
			line = it.LineNumber
		}
	}
	item.LineNumber = line + 1
	m.items[item.RequestID] = append(m.items[item.RequestID], *item)
	return nil
}

func (m *memProcurement) RemoveItem(_ context.Context, requestID, itemID int64) (bool, error) {
	items := m.items[requestID]
	for i, it := range items {
		if it.ID == itemID {
			m.items[requestID] = append(items[:i:i], items[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *memProcurement) ListItems(_ context.Context, requestID int64) ([]domain.ProcurementItem, error) {
	return append([]domain.ProcurementItem{}, m.items[requestID]...), nil
}

func (m *memProcurement) RecalculateTotal(_ context.Context, requestID int64) (decimal.Decimal, error) {
	r, ok := m.rows[requestID]
	if !ok {
		return decimal.Zero, pgx.ErrNoRows
	}
	r.TotalAmount = domain.SumItems(m.items[requestID])
	m.rows[requestID] = r
	return r.TotalAmount, nil
}

type memApprovers struct {
	rows []domain.Approver
}

func (m *memApprovers) Create(_ context.Context, a *domain.Approver) error {
	a.ID = int64(len(m.rows) + 1)
	m.rows = append(m.rows, *a)
	return nil
}

func (m *memApprovers) SetActive(_ context.Context, id int64, active bool) error {
	for i := range m.rows {
		if m.rows[i].ID == id {
			m.rows[i].Active = active
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (m *memApprovers) GetByID(_ context.Context, id int64) (*domain.Approver, error) {
	for _, a := range m.rows {
		if a.ID == id {
			a := a
			return &a, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memApprovers) FirstActive(_ context.Context, level int) (*domain.Approver, error) {
	var candidates []domain.Approver
	for _, a := range m.rows {
		if a.Level == level && a.Active {
			candidates = append(candidates, a)
		}
	}
	if len(candidates) == 0 {
		return nil, pgx.ErrNoRows
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].SortOrder != candidates[j].SortOrder {
			return candidates[i].SortOrder < candidates[j].SortOrder
		}
		return candidates[i].ID < candidates[j].ID
	})
	return &candidates[0], nil
}

func (m *memApprovers) List(context.Context) ([]domain.Approver, error) {
	return append([]domain.Approver{}, m.rows...), nil
}

// fleet

type memFleet struct {
	vehicleSeq int64
	tripSeq    int64
	vehicles   map[int64]domain.Vehicle
	trips      map[int64]domain.VehicleTrip
}

func newMemFleet() *memFleet {
	return &memFleet{vehicles: map[int64]domain.Vehicle{}, trips: map[int64]domain.VehicleTrip{}}
}

func (m *memFleet) CreateVehicle(_ context.Context, v *domain.Vehicle) error {
	m.vehicleSeq++
	v.ID = m.vehicleSeq
	m.vehicles[v.ID] = *v
	return nil
}

func (m *memFleet) UpdateVehicle(_ context.Context, v *domain.Vehicle) error {
	cur, ok := m.vehicles[v.ID]
	if !ok || cur.Status == domain.VehicleStatusInUse {
		return pgx.ErrNoRows
	}
	cur.Make, cur.Model, cur.Year, cur.Plate, cur.Status = v.Make, v.Model, v.Year, v.Plate, v.Status
	m.vehicles[v.ID] = cur
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
	m.tripSeq++
	t.ID = m.tripSeq
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
	// Same write order as the SQL: the vehicle row is claimed first and stays
	// claimed until the surrounding transaction rolls back.
	v, ok := m.vehicles[a.VehicleID]
	if !ok || v.Status != domain.VehicleStatusAvailable {
		return false, nil
	}
	driver, email := a.Driver, a.DriverEmail
	v.Status, v.CurrentDriver, v.CurrentDriverEmail = domain.VehicleStatusInUse, &driver, &email
	m.vehicles[v.ID] = v

	t, ok := m.trips[a.TripID]
	if !ok || t.Status != domain.TripStatusRequested {
		return false, nil
	}
	dep, start, by := a.DepartureTime, a.StartingMileage, a.ApprovedBy
	t.Status, t.DepartureTime, t.StartingMileage, t.ApprovedBy = domain.TripStatusInUse, &dep, &start, &by
	m.trips[t.ID] = t
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
	v.Status, v.CurrentDriver, v.CurrentDriverEmail = domain.VehicleStatusAvailable, nil, nil
	if end > v.CurrentMileage {
		v.CurrentMileage = end
	}
	m.vehicles[v.ID] = v
	return true, nil
}

func (m *memFleet) ListUnaccounted(_ context.Context, cutoff time.Time) ([]domain.VehicleTrip, error) {
	var out []domain.VehicleTrip
	for _, t := range m.trips {
		if t.Status == domain.TripStatusInUse && !t.UnaccountedNotified && t.DepartureTime != nil && t.DepartureTime.Before(cutoff) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memFleet) MarkUnaccountedNotified(_ context.Context, id int64) (bool, error) {
	t, ok := m.trips[id]
	if !ok || t.Status != domain.TripStatusInUse || t.UnaccountedNotified {
		return false, nil
	}
	t.UnaccountedNotified = true
	m.trips[id] = t
	return true, nil
}

// users

type memUsers struct {
	seq  int64
	rows map[int64]domain.User
}

func newMemUsers() *memUsers { return &memUsers{rows: map[int64]domain.User{}} }

func (m *memUsers) Create(_ context.Context, u *domain.User) error {
	m.seq++
	u.ID = m.seq
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

// mail

type sentMail struct{ To, Subject, Body string }

type recordingNotifier struct {
	sent []sentMail
	fail bool
}

func (r *recordingNotifier) Notify(_ context.Context, to, subject, body string) bool {
	r.sent = append(r.sent, sentMail{to, subject, body})
	return !r.fail
}

func intPtr(v int) *int { return &v }
