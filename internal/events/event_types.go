package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/opsdesk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketAssigned      EventType = "ticket_assigned"

	EventProcurementSubmitted EventType = "procurement_submitted"
	EventProcurementEscalated EventType = "procurement_escalated"
	EventProcurementApproved  EventType = "procurement_approved"
	EventProcurementRejected  EventType = "procurement_rejected"
	EventProcurementOrdered   EventType = "procurement_ordered"
	EventProcurementReceived  EventType = "procurement_received"
	EventProcurementCancelled EventType = "procurement_cancelled"

	EventTripRequested   EventType = "trip_requested"
	EventTripApproved    EventType = "trip_approved"
	EventTripReturned    EventType = "trip_returned"
	EventTripUnaccounted EventType = "trip_unaccounted"
)

// Event represents a lifecycle fact emitted by services and stored in the outbox.
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Entity    domain.EntityKind `json:"entity"`
	EntityID  int64             `json:"entity_id"`
	Actor     string            `json:"actor,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   json.RawMessage   `json:"payload"`
}

// New builds an event with a fresh id and the payload encoded as JSON.
func New(eventType EventType, entity domain.EntityKind, entityID int64, actor string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Entity:    entity,
		EntityID:  entityID,
		Actor:     actor,
		Timestamp: time.Now().UTC(),
		Payload:   raw,
	}, nil
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event %s has no payload", e.ID)
	}
	return json.Unmarshal(e.Payload, v)
}

// TicketPayload carries what notifications need about a ticket.
type TicketPayload struct {
	Subject        string                `json:"subject"`
	RequesterName  string                `json:"requester_name"`
	RequesterEmail string                `json:"requester_email"`
	Priority       domain.TicketPriority `json:"priority"`
	OldStatus      domain.TicketStatus   `json:"old_status,omitempty"`
	NewStatus      domain.TicketStatus   `json:"new_status"`
	AssignedTo     *string               `json:"assigned_to,omitempty"`
	Comment        string                `json:"comment,omitempty"`
}

// ProcurementPayload carries what notifications need about a purchase request.
type ProcurementPayload struct {
	RequestNumber  string                   `json:"request_number"`
	RequesterName  string                   `json:"requester_name"`
	RequesterEmail string                   `json:"requester_email"`
	VendorName     string                   `json:"vendor_name"`
	TotalAmount    string                   `json:"total_amount"`
	OldStatus      domain.ProcurementStatus `json:"old_status"`
	NewStatus      domain.ProcurementStatus `json:"new_status"`
	ApproverName   string                   `json:"approver_name,omitempty"`
	ApproverEmail  string                   `json:"approver_email,omitempty"`
	Level          int                      `json:"level,omitempty"`
	Comment        string                   `json:"comment,omitempty"`
}

// TripPayload carries what notifications need about a vehicle trip.
type TripPayload struct {
	Vehicle         string            `json:"vehicle"`
	RequesterName   string            `json:"requester_name"`
	RequesterEmail  string            `json:"requester_email"`
	Destination     string            `json:"destination"`
	Purpose         string            `json:"purpose,omitempty"`
	Status          domain.TripStatus `json:"status"`
	ApprovedBy      string            `json:"approved_by,omitempty"`
	DepartureTime   *time.Time        `json:"departure_time,omitempty"`
	ReturnTime      *time.Time        `json:"return_time,omitempty"`
	StartingMileage *int              `json:"starting_mileage,omitempty"`
	EndingMileage   *int              `json:"ending_mileage,omitempty"`
	MilesDriven     *int              `json:"miles_driven,omitempty"`
}
