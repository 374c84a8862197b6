package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/opsdesk/internal/api/dto"
	"github.com/spec-kit/opsdesk/internal/domain"
	"github.com/spec-kit/opsdesk/internal/repository"
	"github.com/spec-kit/opsdesk/internal/service"
)

// TicketsHandler manages helpdesk ticket endpoints.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /tickets. Open to anyone; this is the submission form.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.service.CreateTicket(c.UserContext(), service.TicketCreateInput{
		RequesterName:  req.RequesterName,
		RequesterEmail: req.RequesterEmail,
		RequesterPhone: req.RequesterPhone,
		Location:       req.Location,
		Subject:        req.Subject,
		Description:    req.Description,
		Priority:       req.Priority,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(data(ticketResponse(ticket, nil)))
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	filter, err := parseTicketQuery(c)
	if err != nil {
		return err
	}
	tickets, err := h.service.ListTickets(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketResponse(&tickets[i], nil))
	}
	return c.JSON(data(items))
}

// GetTicket GET /tickets/:id, including the audit trail.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	ticket, err := h.service.GetTicket(c.UserContext(), id)
	if err != nil {
		return err
	}
	notes, err := h.service.ListNotes(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(data(ticketResponse(ticket, notes)))
}

// UpdateStatus POST /tickets/:id/status.
func (h *TicketsHandler) UpdateStatus(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req dto.TicketStatusRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.service.UpdateStatus(c.UserContext(), id, req.Status, currentActor(c), req.Comment)
	if err != nil {
		return err
	}
	return c.JSON(data(ticketResponse(ticket, nil)))
}

// Assign POST /tickets/:id/assign.
func (h *TicketsHandler) Assign(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req dto.TicketAssignRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.service.Assign(c.UserContext(), id, req.AssignedTo, currentActor(c))
	if err != nil {
		return err
	}
	return c.JSON(data(ticketResponse(ticket, nil)))
}

// UpdatePriority POST /tickets/:id/priority.
func (h *TicketsHandler) UpdatePriority(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req dto.TicketPriorityRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.service.UpdatePriority(c.UserContext(), id, req.Priority, currentActor(c))
	if err != nil {
		return err
	}
	return c.JSON(data(ticketResponse(ticket, nil)))
}

// AddNote POST /tickets/:id/notes.
func (h *TicketsHandler) AddNote(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req dto.NoteRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	note, err := h.service.AddNote(c.UserContext(), id, currentActor(c), req.Body)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(data(noteResponses([]domain.Note{*note})[0]))
}

func parseTicketQuery(c *fiber.Ctx) (repository.TicketFilter, error) {
	filter := repository.TicketFilter{
		AssignedTo: optionalQuery(c, "assigned_to"),
		SearchTerm: optionalQuery(c, "q"),
	}
	for _, s := range splitQuery(c.Query("status")) {
		filter.Statuses = append(filter.Statuses, domain.TicketStatus(s))
	}
	for _, p := range splitQuery(c.Query("priority")) {
		filter.Priorities = append(filter.Priorities, domain.TicketPriority(p))
	}
	var err error
	if filter.CreatedFrom, err = parseTime(c.Query("created_from")); err != nil {
		return filter, err
	}
	if filter.CreatedTo, err = parseTime(c.Query("created_to")); err != nil {
		return filter, err
	}
	filter.Limit, filter.Offset = page(c)
	return filter, nil
}

func ticketResponse(t *domain.Ticket, notes []domain.Note) dto.TicketResponse {
	resp := dto.TicketResponse{
		ID:              t.ID,
		RequesterName:   t.RequesterName,
		RequesterEmail:  t.RequesterEmail,
		RequesterPhone:  t.RequesterPhone,
		Location:        t.Location,
		Subject:         t.Subject,
		Description:     t.Description,
		Status:          t.Status,
		Priority:        t.Priority,
		AssignedTo:      t.AssignedTo,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
		FirstResponseAt: t.FirstResponseAt,
		ResolvedAt:      t.ResolvedAt,
	}
	if notes != nil {
		resp.Notes = noteResponses(notes)
	}
	return resp
}
