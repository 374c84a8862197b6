package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/spec-kit/opsdesk/internal/domain"
	"github.com/spec-kit/opsdesk/internal/events"
	"github.com/spec-kit/opsdesk/internal/observability"
	"github.com/spec-kit/opsdesk/internal/persistence"
	"github.com/spec-kit/opsdesk/internal/repository"
	apperrors "github.com/spec-kit/opsdesk/pkg/util/errorutil"
)

// ProcurementService runs purchase requests through two approval levels.
type ProcurementService struct {
	requests  repository.ProcurementRepository
	approvers repository.ApproverRepository
	tx        persistence.Transactor
	rec       recorder
	now       func() time.Time
}

// ProcurementDependencies bundles collaborators for the procurement service.
type ProcurementDependencies struct {
	Requests  repository.ProcurementRepository
	Approvers repository.ApproverRepository
	Notes     repository.NoteRepository
	Outbox    EventAppender
	Tx        persistence.Transactor
	Metrics   *observability.Metrics
	Now       func() time.Time
}

// ProcurementInput carries the editable request fields.
type ProcurementInput struct {
	RequesterName  string
	RequesterEmail string
	Department     string
	VendorName     string
	VendorEmail    string
	VendorPhone    string
	Justification  string
}

// ItemInput is one line item to add.
type ItemInput struct {
	Description string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// NewProcurementService constructs the service.
func NewProcurementService(deps ProcurementDependencies) *ProcurementService {
	return &ProcurementService{
		requests:  deps.Requests,
		approvers: deps.Approvers,
		tx:        deps.Tx,
		rec:       recorder{notes: deps.Notes, outbox: deps.Outbox, metrics: deps.Metrics},
		now:       clock(deps.Now),
	}
}

func (in ProcurementInput) validate() error {
	return requireFields(map[string]string{
		"requester_name":  in.RequesterName,
		"requester_email": in.RequesterEmail,
	})
}

func (in ItemInput) validate() error {
	details := map[string]any{}
	if strings.TrimSpace(in.Description) == "" {
		details["description"] = "is required"
	}
	if in.Quantity <= 0 {
		details["quantity"] = "must be greater than zero"
	}
	if in.UnitPrice.IsNegative() {
		details["unit_price"] = "must not be negative"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid line item", details)
	}
	return nil
}

// CreateRequest stores a new draft with its initial line items.
func (s *ProcurementService) CreateRequest(ctx context.Context, input ProcurementInput, items []ItemInput, actor Actor) (*domain.ProcurementRequest, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	for _, item := range items {
		if err := item.validate(); err != nil {
			return nil, err
		}
	}

	var id int64
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		number, err := s.requests.NextRequestNumber(ctx)
		if err != nil {
			return err
		}
		req := &domain.ProcurementRequest{RequestNumber: number, Status: domain.ProcurementStatusDraft, TotalAmount: decimal.Zero}
		applyInput(req, input)
		if err := s.requests.Create(ctx, req); err != nil {
			return err
		}
		id = req.ID
		for _, item := range items {
			if err := s.requests.AddItem(ctx, newItem(id, item)); err != nil {
				return err
			}
		}
		if _, err := s.requests.RecalculateTotal(ctx, id); err != nil {
			return err
		}
		return s.rec.note(ctx, domain.EntityProcurement, id, domain.NoteTypeStatusChange, "Request "+number+" created as draft", actor.Label())
	})
	s.rec.count(domain.EntityProcurement, "create", err)
	if err != nil {
		return nil, err
	}
	return s.GetRequest(ctx, id)
}

// GetRequest returns a request with its line items.
func (s *ProcurementService) GetRequest(ctx context.Context, id int64) (*domain.ProcurementRequest, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "procurement request", id)
	}
	return req, nil
}

// ListRequests returns requests matching filter, without line items.
func (s *ProcurementService) ListRequests(ctx context.Context, filter repository.ProcurementFilter) ([]domain.ProcurementRequest, error) {
	return s.requests.List(ctx, filter)
}

// ListNotes returns the audit trail of a request.
func (s *ProcurementService) ListNotes(ctx context.Context, id int64) ([]domain.Note, error) {
	if _, err := s.GetRequest(ctx, id); err != nil {
		return nil, err
	}
	return s.rec.notes.List(ctx, domain.EntityProcurement, id)
}

// AddComment appends a free-text note.
func (s *ProcurementService) AddComment(ctx context.Context, id int64, actor Actor, body string) error {
	if strings.TrimSpace(body) == "" {
		return apperrors.NewValidationError("comment is required", nil)
	}
	if _, err := s.GetRequest(ctx, id); err != nil {
		return err
	}
	return s.rec.note(ctx, domain.EntityProcurement, id, domain.NoteTypeComment, strings.TrimSpace(body), actor.Label())
}

// UpdateRequest rewrites the editable fields. Editing a rejected request
// reopens it as a draft.
func (s *ProcurementService) UpdateRequest(ctx context.Context, id int64, input ProcurementInput, actor Actor) (*domain.ProcurementRequest, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.beginEdit(ctx, id, actor); err != nil {
			return err
		}
		req := &domain.ProcurementRequest{ID: id}
		applyInput(req, input)
		ok, err := s.requests.UpdateDetails(ctx, req, domain.ProcurementStatusDraft)
		if err != nil {
			return err
		}
		if !ok {
			return s.lostRace(ctx, id, domain.ProcurementActionEdit)
		}
		return nil
	})
	s.rec.count(domain.EntityProcurement, string(domain.ProcurementActionEdit), err)
	if err != nil {
		return nil, err
	}
	return s.GetRequest(ctx, id)
}

// AddItem appends a line item and recomputes the total in the same transaction.
func (s *ProcurementService) AddItem(ctx context.Context, id int64, input ItemInput, actor Actor) (*domain.ProcurementRequest, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.beginEdit(ctx, id, actor); err != nil {
			return err
		}
		if err := s.requests.AddItem(ctx, newItem(id, input)); err != nil {
			return err
		}
		_, err := s.requests.RecalculateTotal(ctx, id)
		return err
	})
	s.rec.count(domain.EntityProcurement, "add_item", err)
	if err != nil {
		return nil, err
	}
	return s.GetRequest(ctx, id)
}

// RemoveItem deletes a line item and recomputes the total.
func (s *ProcurementService) RemoveItem(ctx context.Context, id, itemID int64, actor Actor) (*domain.ProcurementRequest, error) {
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.beginEdit(ctx, id, actor); err != nil {
			return err
		}
		ok, err := s.requests.RemoveItem(ctx, id, itemID)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.NewNotFound("line item", map[string]any{"id": itemID, "request_id": id})
		}
		_, err = s.requests.RecalculateTotal(ctx, id)
		return err
	})
	s.rec.count(domain.EntityProcurement, "remove_item", err)
	if err != nil {
		return nil, err
	}
	return s.GetRequest(ctx, id)
}

// Submit sends a draft to the first active level 1 approver.
func (s *ProcurementService) Submit(ctx context.Context, id int64, actor Actor) (*domain.ProcurementRequest, error) {
	return s.transition(ctx, id, domain.ProcurementActionSubmit, actor, func(ctx context.Context, req *domain.ProcurementRequest, t *domain.ProcurementTransition) (*step, error) {
		if len(req.Items) == 0 {
			return nil, apperrors.NewValidationError("a request needs at least one line item before it can be submitted", nil)
		}
		approver, err := s.firstApprover(ctx, 1)
		if err != nil {
			return nil, err
		}
		t.Level1ApproverID = &approver.ID
		return &step{
			noteType: domain.NoteTypeStatusChange,
			body:     "Submitted for level 1 approval by " + approver.Name,
			event:    events.EventProcurementSubmitted,
			approver: approver,
			level:    1,
		}, nil
	})
}

// Approve records the current level's approval. Level 1 approval escalates
// to the first active level 2 approver; level 2 approval is final.
func (s *ProcurementService) Approve(ctx context.Context, id int64, actor Actor, comment string) (*domain.ProcurementRequest, error) {
	return s.transition(ctx, id, domain.ProcurementActionApprove, actor, func(ctx context.Context, req *domain.ProcurementRequest, t *domain.ProcurementTransition) (*step, error) {
		level := req.Status.ApprovalLevel()
		if err := s.authorizeDecision(ctx, req, level, actor); err != nil {
			return nil, err
		}
		now := s.now().UTC()
		st := &step{
			noteType: domain.NoteTypeApproval,
			body:     withComment(fmt.Sprintf("Level %d approved", level), comment),
			comment:  comment,
			level:    level,
		}
		if level == 1 {
			next, err := s.firstApprover(ctx, 2)
			if err != nil {
				return nil, err
			}
			t.Level1DecidedAt = &now
			t.Level2ApproverID = &next.ID
			st.event = events.EventProcurementEscalated
			st.approver = next
			st.level = 2
			return st, nil
		}
		t.Level2DecidedAt = &now
		st.event = events.EventProcurementApproved
		return st, nil
	})
}

// Reject ends the request at the current level. A reason is required.
func (s *ProcurementService) Reject(ctx context.Context, id int64, actor Actor, reason string) (*domain.ProcurementRequest, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, apperrors.NewValidationError("a rejection reason is required", nil)
	}
	return s.transition(ctx, id, domain.ProcurementActionReject, actor, func(ctx context.Context, req *domain.ProcurementRequest, t *domain.ProcurementTransition) (*step, error) {
		level := req.Status.ApprovalLevel()
		if err := s.authorizeDecision(ctx, req, level, actor); err != nil {
			return nil, err
		}
		now := s.now().UTC()
		if level == 1 {
			t.Level1DecidedAt = &now
		} else {
			t.Level2DecidedAt = &now
		}
		return &step{
			noteType: domain.NoteTypeRejection,
			body:     withComment(fmt.Sprintf("Level %d rejected", level), reason),
			event:    events.EventProcurementRejected,
			comment:  reason,
			level:    level,
		}, nil
	})
}

// MarkOrdered records that an approved request was placed with the vendor.
func (s *ProcurementService) MarkOrdered(ctx context.Context, id int64, actor Actor) (*domain.ProcurementRequest, error) {
	return s.transition(ctx, id, domain.ProcurementActionMarkOrdered, actor, func(_ context.Context, _ *domain.ProcurementRequest, t *domain.ProcurementTransition) (*step, error) {
		now := s.now().UTC()
		t.OrderedAt = &now
		return &step{noteType: domain.NoteTypeStatusChange, body: "Order placed", event: events.EventProcurementOrdered}, nil
	})
}

// MarkReceived records delivery of an ordered request.
func (s *ProcurementService) MarkReceived(ctx context.Context, id int64, actor Actor) (*domain.ProcurementRequest, error) {
	return s.transition(ctx, id, domain.ProcurementActionMarkReceived, actor, func(_ context.Context, _ *domain.ProcurementRequest, t *domain.ProcurementTransition) (*step, error) {
		now := s.now().UTC()
		t.ReceivedAt = &now
		return &step{noteType: domain.NoteTypeStatusChange, body: "Goods received", event: events.EventProcurementReceived}, nil
	})
}

// Cancel withdraws a request that has not been ordered.
func (s *ProcurementService) Cancel(ctx context.Context, id int64, actor Actor, reason string) (*domain.ProcurementRequest, error) {
	return s.transition(ctx, id, domain.ProcurementActionCancel, actor, func(context.Context, *domain.ProcurementRequest, *domain.ProcurementTransition) (*step, error) {
		return &step{
			noteType: domain.NoteTypeStatusChange,
			body:     withComment("Request cancelled", reason),
			event:    events.EventProcurementCancelled,
			comment:  reason,
		}, nil
	})
}

// ListApprovers returns the approver roster.
func (s *ProcurementService) ListApprovers(ctx context.Context) ([]domain.Approver, error) {
	return s.approvers.List(ctx)
}

// CreateApprover adds someone to the roster.
func (s *ProcurementService) CreateApprover(ctx context.Context, approver *domain.Approver) error {
	if err := requireFields(map[string]string{"name": approver.Name, "email": approver.Email}); err != nil {
		return err
	}
	if approver.Level != 1 && approver.Level != 2 {
		return apperrors.NewValidationError("approver level must be 1 or 2", map[string]any{"level": approver.Level})
	}
	return s.approvers.Create(ctx, approver)
}

// SetApproverActive enables or disables an approver.
func (s *ProcurementService) SetApproverActive(ctx context.Context, id int64, active bool) error {
	return notFoundOr(s.approvers.SetActive(ctx, id, active), "approver", id)
}

// step describes the side effects of one procurement action.
type step struct {
	noteType domain.NoteType
	body     string
	event    events.EventType
	comment  string
	approver *domain.Approver
	level    int
}

type prepareFunc func(ctx context.Context, req *domain.ProcurementRequest, t *domain.ProcurementTransition) (*step, error)

// transition applies action through a conditional write and records its
// note and event in the same transaction.
func (s *ProcurementService) transition(ctx context.Context, id int64, action domain.ProcurementAction, actor Actor, prepare prepareFunc) (*domain.ProcurementRequest, error) {
	var result *domain.ProcurementRequest
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		req, err := s.requests.GetByID(ctx, id)
		if err != nil {
			return notFoundOr(err, "procurement request", id)
		}
		next, ok := req.Status.Next(action)
		if !ok {
			return apperrors.NewInvalidTransition("procurement request", string(req.Status), string(action))
		}

		t := domain.ProcurementTransition{From: req.Status, To: next}
		st, err := prepare(ctx, req, &t)
		if err != nil {
			return err
		}

		applied, err := s.requests.Transition(ctx, id, t)
		if err != nil {
			return err
		}
		if !applied {
			return s.lostRace(ctx, id, action)
		}

		if err := s.rec.note(ctx, domain.EntityProcurement, id, st.noteType, st.body, actor.Label()); err != nil {
			return err
		}

		payload := events.ProcurementPayload{
			RequestNumber:  req.RequestNumber,
			RequesterName:  req.RequesterName,
			RequesterEmail: req.RequesterEmail,
			VendorName:     req.VendorName,
			TotalAmount:    req.TotalAmount.StringFixed(2),
			OldStatus:      t.From,
			NewStatus:      t.To,
			Level:          st.level,
			Comment:        strings.TrimSpace(st.comment),
		}
		if st.approver != nil {
			payload.ApproverName = st.approver.Name
			payload.ApproverEmail = st.approver.Email
		}
		if err := s.rec.emit(ctx, st.event, domain.EntityProcurement, id, actor.Label(), payload); err != nil {
			return err
		}

		result, err = s.requests.GetByID(ctx, id)
		return err
	})
	s.rec.count(domain.EntityProcurement, string(action), err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// beginEdit locks the request, checks it can be edited and reopens a
// rejected request as a draft.
func (s *ProcurementService) beginEdit(ctx context.Context, id int64, actor Actor) error {
	status, err := s.requests.LockStatus(ctx, id)
	if err != nil {
		return notFoundOr(err, "procurement request", id)
	}
	if !status.Editable() {
		return apperrors.NewInvalidTransition("procurement request", string(status), string(domain.ProcurementActionEdit))
	}
	if status == domain.ProcurementStatusDraft {
		return nil
	}
	ok, err := s.requests.Transition(ctx, id, domain.ProcurementTransition{From: status, To: domain.ProcurementStatusDraft})
	if err != nil {
		return err
	}
	if !ok {
		return s.lostRace(ctx, id, domain.ProcurementActionEdit)
	}
	return s.rec.note(ctx, domain.EntityProcurement, id, domain.NoteTypeStatusChange, "Reopened as draft for editing", actor.Label())
}

// authorizeDecision allows the assigned approver for level, or an admin.
func (s *ProcurementService) authorizeDecision(ctx context.Context, req *domain.ProcurementRequest, level int, actor Actor) error {
	if actor.Admin {
		return nil
	}
	var approverID *int64
	switch level {
	case 1:
		approverID = req.Level1ApproverID
	case 2:
		approverID = req.Level2ApproverID
	}
	if approverID == nil {
		return apperrors.NewForbidden("no approver is assigned at this level")
	}
	approver, err := s.approvers.GetByID(ctx, *approverID)
	if err != nil {
		return notFoundOr(err, "approver", *approverID)
	}
	if actor.Email == "" || !strings.EqualFold(strings.TrimSpace(actor.Email), strings.TrimSpace(approver.Email)) {
		return apperrors.NewForbidden("only the assigned approver can decide at this level")
	}
	return nil
}

func (s *ProcurementService) firstApprover(ctx context.Context, level int) (*domain.Approver, error) {
	approver, err := s.approvers.FirstActive(ctx, level)
	if err == nil {
		return approver, nil
	}
	if errors.Is(notFoundOr(err, "approver", 0), apperrors.ErrNotFound) {
		return nil, apperrors.NewValidationError(fmt.Sprintf("no active level %d approver is configured", level), map[string]any{"level": level})
	}
	return nil, err
}

func (s *ProcurementService) lostRace(ctx context.Context, id int64, action domain.ProcurementAction) error {
	fresh, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return notFoundOr(err, "procurement request", id)
	}
	return apperrors.NewInvalidTransition("procurement request", string(fresh.Status), string(action))
}

func applyInput(req *domain.ProcurementRequest, in ProcurementInput) {
	req.RequesterName = strings.TrimSpace(in.RequesterName)
	req.RequesterEmail = strings.TrimSpace(in.RequesterEmail)
	req.Department = strings.TrimSpace(in.Department)
	req.VendorName = strings.TrimSpace(in.VendorName)
	req.VendorEmail = strings.TrimSpace(in.VendorEmail)
	req.VendorPhone = strings.TrimSpace(in.VendorPhone)
	req.Justification = strings.TrimSpace(in.Justification)
}

func newItem(requestID int64, in ItemInput) *domain.ProcurementItem {
	return &domain.ProcurementItem{
		RequestID:   requestID,
		Description: strings.TrimSpace(in.Description),
		Quantity:    in.Quantity,
		UnitPrice:   in.UnitPrice,
	}
}
