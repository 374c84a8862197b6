package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/opsdesk/internal/api/dto"
	"github.com/spec-kit/opsdesk/internal/domain"
	"github.com/spec-kit/opsdesk/internal/repository"
	"github.com/spec-kit/opsdesk/internal/service"
	apperrors "github.com/spec-kit/opsdesk/pkg/util/errorutil"
)

// ProcurementHandler exposes purchase request and approver endpoints.
type ProcurementHandler struct {
	service *service.ProcurementService
}

func NewProcurementHandler(procurement *service.ProcurementService) *ProcurementHandler {
	return &ProcurementHandler{service: procurement}
}

// Create POST /procurement.
func (h *ProcurementHandler) Create(c *fiber.Ctx) error {
	var req dto.ProcurementRequestBody
	if err := parseBody(c, &req); err != nil {
		return err
	}
	items := make([]service.ItemInput, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, itemInput(it))
	}
	created, err := h.service.CreateRequest(c.UserContext(), procurementInput(req), items, currentActor(c))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(data(procurementResponse(created, nil)))
}

// List GET /procurement.
func (h *ProcurementHandler) List(c *fiber.Ctx) error {
	filter := repository.ProcurementFilter{RequesterEmail: optionalQuery(c, "requester_email")}
	for _, s := range splitQuery(c.Query("status")) {
		filter.Statuses = append(filter.Statuses, domain.ProcurementStatus(s))
	}
	if c.Query("approver_id") != "" {
		id := int64(parseInt(c.Query("approver_id"), 0))
		if id <= 0 {
			return apperrors.NewValidationError("invalid approver_id", nil)
		}
		filter.ApproverID = &id
	}
	filter.Limit, filter.Offset = page(c)

	requests, err := h.service.ListRequests(c.UserContext(), filter)
	if err != nil {
		return err
	}
	out := make([]dto.ProcurementResponse, 0, len(requests))
	for i := range requests {
		out = append(out, procurementResponse(&requests[i], nil))
	}
	return c.JSON(data(out))
}

// Get GET /procurement/:id, with items and notes.
func (h *ProcurementHandler) Get(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	req, err := h.service.GetRequest(c.UserContext(), id)
	if err != nil {
		return err
	}
	notes, err := h.service.ListNotes(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(data(procurementResponse(req, notes)))
}

// Update PUT /procurement/:id.
func (h *ProcurementHandler) Update(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req dto.ProcurementRequestBody
	if err := parseBody(c, &req); err != nil {
		return err
	}
	updated, err := h.service.UpdateRequest(c.UserContext(), id, procurementInput(req), currentActor(c))
	if err != nil {
		return err
	}
	return c.JSON(data(procurementResponse(updated, nil)))
}

// AddItem POST /procurement/:id/items.
func (h *ProcurementHandler) AddItem(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req dto.ItemRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	updated, err := h.service.AddItem(c.UserContext(), id, itemInput(req), currentActor(c))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(data(procurementResponse(updated, nil)))
}

// RemoveItem DELETE /procurement/:id/items/:item_id.
func (h *ProcurementHandler) RemoveItem(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	itemID, err := parseID(c, "item_id")
	if err != nil {
		return err
	}
	updated, err := h.service.RemoveItem(c.UserContext(), id, itemID, currentActor(c))
	if err != nil {
		return err
	}
	return c.JSON(data(procurementResponse(updated, nil)))
}

// AddComment POST /procurement/:id/notes.
func (h *ProcurementHandler) AddComment(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req dto.NoteRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := h.service.AddComment(c.UserContext(), id, currentActor(c), req.Body); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusCreated)
}

// Action POST /procurement/:id/:action for submit, approve, reject,
// mark_ordered, mark_received and cancel.
func (h *ProcurementHandler) Action(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req dto.DecisionRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
	}
	ctx, actor := c.UserContext(), currentActor(c)

	var result *domain.ProcurementRequest
	switch domain.ProcurementAction(c.Params("action")) {
	case domain.ProcurementActionSubmit:
		result, err = h.service.Submit(ctx, id, actor)
	case domain.ProcurementActionApprove:
		result, err = h.service.Approve(ctx, id, actor, req.Comment)
	case domain.ProcurementActionReject:
		reason := req.Reason
		if reason == "" {
			reason = req.Comment
		}
		result, err = h.service.Reject(ctx, id, actor, reason)
	case domain.ProcurementActionMarkOrdered:
		result, err = h.service.MarkOrdered(ctx, id, actor)
	case domain.ProcurementActionMarkReceived:
		result, err = h.service.MarkReceived(ctx, id, actor)
	case domain.ProcurementActionCancel:
		result, err = h.service.Cancel(ctx, id, actor, req.Reason)
	default:
		return apperrors.NewNotFound("action", map[string]any{"action": c.Params("action")})
	}
	if err != nil {
		return err
	}
	return c.JSON(data(procurementResponse(result, nil)))
}

// ListApprovers GET /approvers.
func (h *ProcurementHandler) ListApprovers(c *fiber.Ctx) error {
	approvers, err := h.service.ListApprovers(c.UserContext())
	if err != nil {
		return err
	}
	out := make([]dto.ApproverResponse, 0, len(approvers))
	for _, a := range approvers {
		out = append(out, approverResponse(a))
	}
	return c.JSON(data(out))
}

// CreateApprover POST /approvers.
func (h *ProcurementHandler) CreateApprover(c *fiber.Ctx) error {
	var req dto.ApproverRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	approver := &domain.Approver{
		Name:      req.Name,
		Email:     req.Email,
		Level:     req.Level,
		Active:    req.Active == nil || *req.Active,
		SortOrder: req.SortOrder,
	}
	if err := h.service.CreateApprover(c.UserContext(), approver); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(data(approverResponse(*approver)))
}

// SetApproverActive PATCH /approvers/:id/active.
func (h *ProcurementHandler) SetApproverActive(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req dto.SetActiveRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.Active == nil {
		return apperrors.NewValidationError("active required", nil)
	}
	if err := h.service.SetApproverActive(c.UserContext(), id, *req.Active); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func procurementInput(req dto.ProcurementRequestBody) service.ProcurementInput {
	return service.ProcurementInput{
		RequesterName:  req.RequesterName,
		RequesterEmail: req.RequesterEmail,
		Department:     req.Department,
		VendorName:     req.VendorName,
		VendorEmail:    req.VendorEmail,
		VendorPhone:    req.VendorPhone,
		Justification:  req.Justification,
	}
}

func itemInput(req dto.ItemRequest) service.ItemInput {
	return service.ItemInput{Description: req.Description, Quantity: req.Quantity, UnitPrice: req.UnitPrice}
}

func procurementResponse(r *domain.ProcurementRequest, notes []domain.Note) dto.ProcurementResponse {
	resp := dto.ProcurementResponse{
		ID:               r.ID,
		RequestNumber:    r.RequestNumber,
		RequesterName:    r.RequesterName,
		RequesterEmail:   r.RequesterEmail,
		Department:       r.Department,
		VendorName:       r.VendorName,
		VendorEmail:      r.VendorEmail,
		VendorPhone:      r.VendorPhone,
		Justification:    r.Justification,
		Status:           r.Status,
		Level1ApproverID: r.Level1ApproverID,
		Level2ApproverID: r.Level2ApproverID,
		Level1DecidedAt:  r.Level1DecidedAt,
		Level2DecidedAt:  r.Level2DecidedAt,
		OrderedAt:        r.OrderedAt,
		ReceivedAt:       r.ReceivedAt,
		TotalAmount:      r.TotalAmount.StringFixed(2),
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	for _, it := range r.Items {
		resp.Items = append(resp.Items, dto.ItemResponse{
			ID:          it.ID,
			LineNumber:  it.LineNumber,
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice.StringFixed(2),
			LineTotal:   it.Total().StringFixed(2),
		})
	}
	if notes != nil {
		resp.Notes = noteResponses(notes)
	}
	return resp
}

func approverResponse(a domain.Approver) dto.ApproverResponse {
	return dto.ApproverResponse{ID: a.ID, Name: a.Name, Email: a.Email, Level: a.Level, Active: a.Active, SortOrder: a.SortOrder}
}
