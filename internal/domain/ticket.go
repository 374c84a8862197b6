package domain

import (
	"fmt"
	"time"
)

// TicketStatus enumerates lifecycle states for helpdesk tickets.
type TicketStatus string

const (
	TicketStatusOpen                    TicketStatus = "open"
	TicketStatusInProgress              TicketStatus = "in_progress"
	TicketStatusOnHold                  TicketStatus = "on_hold"
	TicketStatusWaitingCustomerResponse TicketStatus = "waiting_customer_response"
	TicketStatusResolved                TicketStatus = "resolved"
	TicketStatusClosed                  TicketStatus = "closed"
)

var ticketStatuses = []TicketStatus{
	TicketStatusOpen,
	TicketStatusInProgress,
	TicketStatusOnHold,
	TicketStatusWaitingCustomerResponse,
	TicketStatusResolved,
	TicketStatusClosed,
}

// Valid reports whether s is a known ticket status.
func (s TicketStatus) Valid() bool {
	for _, candidate := range ticketStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// TicketPriority enumerates urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityUrgent:
		return true
	}
	return false
}

// Ticket is a helpdesk request.
type Ticket struct {
	ID              int64
	RequesterName   string
	RequesterEmail  string
	RequesterPhone  string
	Location        string
	Subject         string
	Description     string
	Status          TicketStatus
	Priority        TicketPriority
	AssignedTo      *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	FirstResponseAt *time.Time
	ResolvedAt      *time.Time
}

// TicketStatusChange is the conditional write produced by a ticket transition.
// FirstResponseAt and ResolvedAt are only applied when the column is still null.
type TicketStatusChange struct {
	From            TicketStatus
	To              TicketStatus
	FirstResponseAt *time.Time
	ResolvedAt      *time.Time
}

// PlanTicketStatusChange computes the write for moving a ticket from its
// current status to next. Any status may move to any other; the derived
// timestamps are only offered on open->in_progress and on entering resolved.
func PlanTicketStatusChange(current, next TicketStatus, now time.Time) (TicketStatusChange, error) {
	if !next.Valid() {
		return TicketStatusChange{}, fmt.Errorf("unknown ticket status %q", next)
	}
	change := TicketStatusChange{From: current, To: next}
	if current == TicketStatusOpen && next == TicketStatusInProgress {
		change.FirstResponseAt = &now
	}
	if next == TicketStatusResolved && current != TicketStatusResolved {
		change.ResolvedAt = &now
	}
	return change, nil
}

// Apply mirrors the conditional write on an in-memory ticket.
func (c TicketStatusChange) Apply(t *Ticket) {
	t.Status = c.To
	if t.FirstResponseAt == nil && c.FirstResponseAt != nil {
		ts := *c.FirstResponseAt
		t.FirstResponseAt = &ts
	}
	if t.ResolvedAt == nil && c.ResolvedAt != nil {
		ts := *c.ResolvedAt
		t.ResolvedAt = &ts
	}
}
