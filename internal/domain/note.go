package domain

import "time"

// EntityKind identifies which lifecycle entity a note or event belongs to.
type EntityKind string

const (
	EntityTicket      EntityKind = "ticket"
	EntityProcurement EntityKind = "procurement"
	EntityTrip        EntityKind = "vehicle_trip"
)

// NoteType tags an audit entry.
type NoteType string

const (
	NoteTypeComment      NoteType = "comment"
	NoteTypeApproval     NoteType = "approval"
	NoteTypeRejection    NoteType = "rejection"
	NoteTypeStatusChange NoteType = "status_change"
)

// Note is an immutable audit trail entry.
type Note struct {
	ID        int64
	Entity    EntityKind
	EntityID  int64
	Type      NoteType
	Body      string
	Author    string
	CreatedAt time.Time
}
