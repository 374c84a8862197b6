package dto

import (
	"time"

	"github.com/spec-kit/opsdesk/internal/domain"
)

// CreateTicketRequest is the public submission form.
type CreateTicketRequest struct {
	RequesterName  string                `json:"requester_name"`
	RequesterEmail string                `json:"requester_email"`
	RequesterPhone string                `json:"requester_phone"`
	Location       string                `json:"location"`
	Subject        string                `json:"subject"`
	Description    string                `json:"description"`
	Priority       domain.TicketPriority `json:"priority"`
}

// TicketStatusRequest moves a ticket.
type TicketStatusRequest struct {
	Status  domain.TicketStatus `json:"status"`
	Comment string              `json:"comment"`
}

// TicketAssignRequest sets or clears the assignee. Null clears it.
type TicketAssignRequest struct {
	AssignedTo *string `json:"assigned_to"`
}

// TicketPriorityRequest payload.
type TicketPriorityRequest struct {
	Priority domain.TicketPriority `json:"priority"`
}

// NoteRequest is a free-text comment.
type NoteRequest struct {
	Body string `json:"body"`
}

// TicketResponse representation.
type TicketResponse struct {
	ID              int64                 `json:"id"`
	RequesterName   string                `json:"requester_name"`
	RequesterEmail  string                `json:"requester_email"`
	RequesterPhone  string                `json:"requester_phone,omitempty"`
	Location        string                `json:"location,omitempty"`
	Subject         string                `json:"subject"`
	Description     string                `json:"description"`
	Status          domain.TicketStatus   `json:"status"`
	Priority        domain.TicketPriority `json:"priority"`
	AssignedTo      *string               `json:"assigned_to"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
	FirstResponseAt *time.Time            `json:"first_response_at"`
	ResolvedAt      *time.Time            `json:"resolved_at"`
	Notes           []NoteResponse        `json:"notes,omitempty"`
}

// NoteResponse is one audit entry.
type NoteResponse struct {
	ID        int64           `json:"id"`
	Type      domain.NoteType `json:"type"`
	Body      string          `json:"body"`
	Author    string          `json:"author"`
	CreatedAt time.Time       `json:"created_at"`
}
