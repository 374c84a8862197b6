package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/spec-kit/opsdesk/internal/domain"
)

// ProcurementRequestBody carries the editable fields and, on create, the
// initial line items.
type ProcurementRequestBody struct {
	RequesterName  string        `json:"requester_name"`
	RequesterEmail string        `json:"requester_email"`
	Department     string        `json:"department"`
	VendorName     string        `json:"vendor_name"`
	VendorEmail    string        `json:"vendor_email"`
	VendorPhone    string        `json:"vendor_phone"`
	Justification  string        `json:"justification"`
	Items          []ItemRequest `json:"items"`
}

// ItemRequest is one line item. Prices accept JSON numbers or strings.
type ItemRequest struct {
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// DecisionRequest is the approver's comment or rejection reason.
type DecisionRequest struct {
	Comment string `json:"comment"`
	Reason  string `json:"reason"`
}

// ProcurementResponse representation.
type ProcurementResponse struct {
	ID               int64                    `json:"id"`
	RequestNumber    string                   `json:"request_number"`
	RequesterName    string                   `json:"requester_name"`
	RequesterEmail   string                   `json:"requester_email"`
	Department       string                   `json:"department,omitempty"`
	VendorName       string                   `json:"vendor_name,omitempty"`
	VendorEmail      string                   `json:"vendor_email,omitempty"`
	VendorPhone      string                   `json:"vendor_phone,omitempty"`
	Justification    string                   `json:"justification,omitempty"`
	Status           domain.ProcurementStatus `json:"status"`
	Level1ApproverID *int64                   `json:"level1_approver_id"`
	Level2ApproverID *int64                   `json:"level2_approver_id"`
	Level1DecidedAt  *time.Time               `json:"level1_decided_at"`
	Level2DecidedAt  *time.Time               `json:"level2_decided_at"`
	OrderedAt        *time.Time               `json:"ordered_at"`
	ReceivedAt       *time.Time               `json:"received_at"`
	TotalAmount      string                   `json:"total_amount"`
	CreatedAt        time.Time                `json:"created_at"`
	UpdatedAt        time.Time                `json:"updated_at"`
	Items            []ItemResponse           `json:"items,omitempty"`
	Notes            []NoteResponse           `json:"notes,omitempty"`
}

// ItemResponse is one line with its computed total.
type ItemResponse struct {
	ID          int64  `json:"id"`
	LineNumber  int    `json:"line_number"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	LineTotal   string `json:"line_total"`
}

// ApproverRequest adds someone to the roster.
type ApproverRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Level     int    `json:"level"`
	Active    *bool  `json:"active"`
	SortOrder int    `json:"sort_order"`
}

// ApproverResponse representation.
type ApproverResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Level     int    `json:"level"`
	Active    bool   `json:"active"`
	SortOrder int    `json:"sort_order"`
}
