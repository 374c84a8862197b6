package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/spec-kit/opsdesk/internal/domain"
	"github.com/spec-kit/opsdesk/internal/events"
	"github.com/spec-kit/opsdesk/internal/observability"
	"github.com/spec-kit/opsdesk/internal/persistence"
	"github.com/spec-kit/opsdesk/internal/repository"
	apperrors "github.com/spec-kit/opsdesk/pkg/util/errorutil"
)

// TicketService coordinates helpdesk ticket workflows.
type TicketService struct {
	tickets repository.TicketRepository
	tx      persistence.Transactor
	rec     recorder
	now     func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	Tickets repository.TicketRepository
	Notes   repository.NoteRepository
	Outbox  EventAppender
	Tx      persistence.Transactor
	Metrics *observability.Metrics
	Now     func() time.Time
}

// TicketCreateInput describes the public submission form.
type TicketCreateInput struct {
	RequesterName  string
	RequesterEmail string
	RequesterPhone string
	Location       string
	Subject        string
	Description    string
	Priority       domain.TicketPriority
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets: deps.Tickets,
		tx:      deps.Tx,
		rec:     recorder{notes: deps.Notes, outbox: deps.Outbox, metrics: deps.Metrics},
		now:     clock(deps.Now),
	}
}

// CreateTicket opens a new ticket with no first response yet.
func (s *TicketService) CreateTicket(ctx context.Context, input TicketCreateInput) (*domain.Ticket, error) {
	if err := requireFields(map[string]string{
		"requester_name":  input.RequesterName,
		"requester_email": input.RequesterEmail,
		"subject":         input.Subject,
		"description":     input.Description,
	}); err != nil {
		return nil, err
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(input.RequesterEmail)); err != nil {
		return nil, apperrors.NewValidationError("requester_email is not a valid address", nil)
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": priority})
	}

	ticket := &domain.Ticket{
		RequesterName:  strings.TrimSpace(input.RequesterName),
		RequesterEmail: strings.TrimSpace(input.RequesterEmail),
		RequesterPhone: strings.TrimSpace(input.RequesterPhone),
		Location:       strings.TrimSpace(input.Location),
		Subject:        strings.TrimSpace(input.Subject),
		Description:    strings.TrimSpace(input.Description),
		Status:         domain.TicketStatusOpen,
		Priority:       priority,
	}

	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.tickets.Create(ctx, ticket); err != nil {
			return err
		}
		return s.rec.emit(ctx, events.EventTicketCreated, domain.EntityTicket, ticket.ID, ticket.RequesterEmail, ticketPayload(ticket, ""))
	})
	s.rec.count(domain.EntityTicket, "create", err)
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// GetTicket returns one ticket.
func (s *TicketService) GetTicket(ctx context.Context, id int64) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "ticket", id)
	}
	return ticket, nil
}

// ListTickets returns tickets matching filter.
func (s *TicketService) ListTickets(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	return s.tickets.List(ctx, filter)
}

// ListNotes returns the audit trail of a ticket.
func (s *TicketService) ListNotes(ctx context.Context, id int64) ([]domain.Note, error) {
	if _, err := s.GetTicket(ctx, id); err != nil {
		return nil, err
	}
	return s.rec.notes.List(ctx, domain.EntityTicket, id)
}

// UpdateStatus moves a ticket to next. Moving to the current status is a
// no-op and writes nothing.
func (s *TicketService) UpdateStatus(ctx context.Context, id int64, next domain.TicketStatus, actor Actor, comment string) (*domain.Ticket, error) {
	if !next.Valid() {
		return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": next})
	}

	var result *domain.Ticket
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		current, err := s.tickets.GetByID(ctx, id)
		if err != nil {
			return notFoundOr(err, "ticket", id)
		}
		if current.Status == next {
			result = current
			return nil
		}

		change, err := domain.PlanTicketStatusChange(current.Status, next, s.now().UTC())
		if err != nil {
			return apperrors.NewValidationError(err.Error(), nil)
		}
		ok, err := s.tickets.TransitionStatus(ctx, id, change)
		if err != nil {
			return err
		}
		if !ok {
			return s.lostRace(ctx, id, "move to "+string(next))
		}

		body := withComment(fmt.Sprintf("Status changed from %s to %s", current.Status, next), comment)
		if err := s.rec.note(ctx, domain.EntityTicket, id, domain.NoteTypeStatusChange, body, actor.Label()); err != nil {
			return err
		}

		oldStatus := current.Status
		change.Apply(current)
		if err := s.rec.emit(ctx, events.EventTicketStatusChanged, domain.EntityTicket, id, actor.Label(), ticketPayload(current, oldStatus)); err != nil {
			return err
		}
		result, err = s.tickets.GetByID(ctx, id)
		return err
	})
	s.rec.count(domain.EntityTicket, "status", err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Assign sets or clears the assignee.
func (s *TicketService) Assign(ctx context.Context, id int64, assignee *string, actor Actor) (*domain.Ticket, error) {
	if assignee != nil {
		trimmed := strings.TrimSpace(*assignee)
		if trimmed == "" {
			assignee = nil
		} else {
			assignee = &trimmed
		}
	}

	var result *domain.Ticket
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.tickets.UpdateAssignment(ctx, id, assignee); err != nil {
			return notFoundOr(err, "ticket", id)
		}
		body := "Unassigned"
		if assignee != nil {
			body = "Assigned to " + *assignee
		}
		if err := s.rec.note(ctx, domain.EntityTicket, id, domain.NoteTypeComment, body, actor.Label()); err != nil {
			return err
		}
		ticket, err := s.tickets.GetByID(ctx, id)
		if err != nil {
			return err
		}
		result = ticket
		return s.rec.emit(ctx, events.EventTicketAssigned, domain.EntityTicket, id, actor.Label(), ticketPayload(ticket, ""))
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdatePriority changes the ticket priority.
func (s *TicketService) UpdatePriority(ctx context.Context, id int64, priority domain.TicketPriority, actor Actor) (*domain.Ticket, error) {
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": priority})
	}
	var result *domain.Ticket
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		current, err := s.tickets.GetByID(ctx, id)
		if err != nil {
			return notFoundOr(err, "ticket", id)
		}
		if current.Priority == priority {
			result = current
			return nil
		}
		if err := s.tickets.UpdatePriority(ctx, id, priority); err != nil {
			return notFoundOr(err, "ticket", id)
		}
		body := fmt.Sprintf("Priority changed from %s to %s", current.Priority, priority)
		if err := s.rec.note(ctx, domain.EntityTicket, id, domain.NoteTypeComment, body, actor.Label()); err != nil {
			return err
		}
		result, err = s.tickets.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AddNote appends a free-text comment.
func (s *TicketService) AddNote(ctx context.Context, id int64, actor Actor, body string) (*domain.Note, error) {
	if strings.TrimSpace(body) == "" {
		return nil, apperrors.NewValidationError("note body is required", nil)
	}
	if _, err := s.GetTicket(ctx, id); err != nil {
		return nil, err
	}
	note := &domain.Note{
		Entity:   domain.EntityTicket,
		EntityID: id,
		Type:     domain.NoteTypeComment,
		Body:     strings.TrimSpace(body),
		Author:   actor.Label(),
	}
	if err := s.rec.notes.Append(ctx, note); err != nil {
		return nil, err
	}
	return note, nil
}

// lostRace explains a conditional write that matched no row.
func (s *TicketService) lostRace(ctx context.Context, id int64, action string) error {
	fresh, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		return notFoundOr(err, "ticket", id)
	}
	return apperrors.NewInvalidTransition("ticket", string(fresh.Status), action)
}

func ticketPayload(t *domain.Ticket, old domain.TicketStatus) events.TicketPayload {
	return events.TicketPayload{
		Subject:        t.Subject,
		RequesterName:  t.RequesterName,
		RequesterEmail: t.RequesterEmail,
		Priority:       t.Priority,
		OldStatus:      old,
		NewStatus:      t.Status,
		AssignedTo:     t.AssignedTo,
	}
}
