package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProcurementStatus enumerates lifecycle states for purchase requests.
type ProcurementStatus string

const (
	ProcurementStatusDraft         ProcurementStatus = "draft"
	ProcurementStatusPendingLevel1 ProcurementStatus = "pending_level1"
	ProcurementStatusPendingLevel2 ProcurementStatus = "pending_level2"
	ProcurementStatusApproved      ProcurementStatus = "approved"
	ProcurementStatusRejected      ProcurementStatus = "rejected"
	ProcurementStatusOrdered       ProcurementStatus = "ordered"
	ProcurementStatusReceived      ProcurementStatus = "received"
	ProcurementStatusCancelled     ProcurementStatus = "cancelled"
)

// ProcurementAction names a lifecycle operation on a purchase request.
type ProcurementAction string

const (
	ProcurementActionSubmit       ProcurementAction = "submit"
	ProcurementActionApprove      ProcurementAction = "approve"
	ProcurementActionReject       ProcurementAction = "reject"
	ProcurementActionMarkOrdered  ProcurementAction = "mark_ordered"
	ProcurementActionMarkReceived ProcurementAction = "mark_received"
	ProcurementActionEdit         ProcurementAction = "edit"
	ProcurementActionCancel       ProcurementAction = "cancel"
)

var procurementTransitions = map[ProcurementStatus]map[ProcurementAction]ProcurementStatus{
	ProcurementStatusDraft: {
		ProcurementActionSubmit: ProcurementStatusPendingLevel1,
		ProcurementActionEdit:   ProcurementStatusDraft,
		ProcurementActionCancel: ProcurementStatusCancelled,
	},
	ProcurementStatusPendingLevel1: {
		ProcurementActionApprove: ProcurementStatusPendingLevel2,
		ProcurementActionReject:  ProcurementStatusRejected,
		ProcurementActionCancel:  ProcurementStatusCancelled,
	},
	ProcurementStatusPendingLevel2: {
		ProcurementActionApprove: ProcurementStatusApproved,
		ProcurementActionReject:  ProcurementStatusRejected,
		ProcurementActionCancel:  ProcurementStatusCancelled,
	},
	ProcurementStatusApproved: {
		ProcurementActionMarkOrdered: ProcurementStatusOrdered,
		ProcurementActionCancel:      ProcurementStatusCancelled,
	},
	ProcurementStatusRejected: {
		ProcurementActionEdit:   ProcurementStatusDraft,
		ProcurementActionCancel: ProcurementStatusCancelled,
	},
	ProcurementStatusOrdered: {
		ProcurementActionMarkReceived: ProcurementStatusReceived,
	},
	ProcurementStatusReceived:  {},
	ProcurementStatusCancelled: {},
}

// Next returns the status reached by applying action from s.
func (s ProcurementStatus) Next(action ProcurementAction) (ProcurementStatus, bool) {
	next, ok := procurementTransitions[s][action]
	return next, ok
}

// Editable reports whether fields and line items may change.
func (s ProcurementStatus) Editable() bool {
	_, ok := s.Next(ProcurementActionEdit)
	return ok
}

// ApprovalLevel returns the approver level a pending status waits on, or 0.
func (s ProcurementStatus) ApprovalLevel() int {
	switch s {
	case ProcurementStatusPendingLevel1:
		return 1
	case ProcurementStatusPendingLevel2:
		return 2
	}
	return 0
}

// ProcurementRequest is a purchase request moving through two approval levels.
type ProcurementRequest struct {
	ID               int64
	RequestNumber    string
	RequesterName    string
	RequesterEmail   string
	Department       string
	VendorName       string
	VendorEmail      string
	VendorPhone      string
	Justification    string
	Status           ProcurementStatus
	Level1ApproverID *int64
	Level2ApproverID *int64
	Level1DecidedAt  *time.Time
	Level2DecidedAt  *time.Time
	OrderedAt        *time.Time
	ReceivedAt       *time.Time
	TotalAmount      decimal.Decimal
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Items            []ProcurementItem
}

// ProcurementItem is one ordered line on a request.
type ProcurementItem struct {
	ID          int64
	RequestID   int64
	LineNumber  int
	Description string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// Total returns quantity times unit price.
func (i ProcurementItem) Total() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// SumItems returns the sum of line totals.
func SumItems(items []ProcurementItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Total())
	}
	return total
}

// Approver is a person who can sign off at one approval level.
type Approver struct {
	ID        int64
	Name      string
	Email     string
	Level     int
	Active    bool
	SortOrder int
	CreatedAt time.Time
}

// ProcurementTransition is the conditional write for a procurement action.
// Nil fields are left untouched.
type ProcurementTransition struct {
	From             ProcurementStatus
	To               ProcurementStatus
	Level1ApproverID *int64
	Level2ApproverID *int64
	Level1DecidedAt  *time.Time
	Level2DecidedAt  *time.Time
	OrderedAt        *time.Time
	ReceivedAt       *time.Time
}
