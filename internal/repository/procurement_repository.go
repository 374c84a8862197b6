package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/spec-kit/opsdesk/internal/domain"
	"github.com/spec-kit/opsdesk/internal/persistence"
)

// ProcurementFilter narrows request listings.
type ProcurementFilter struct {
	Statuses       []domain.ProcurementStatus
	RequesterEmail *string
	ApproverID     *int64
	Limit          int
	Offset         int
}

// ProcurementRepository persists purchase requests and their line items.
type ProcurementRepository interface {
	NextRequestNumber(ctx context.Context) (string, error)
	Create(ctx context.Context, req *domain.ProcurementRequest) error
	GetByID(ctx context.Context, id int64) (*domain.ProcurementRequest, error)
	List(ctx context.Context, filter ProcurementFilter) ([]domain.ProcurementRequest, error)
	// LockStatus reads the current status and holds a row lock for the rest
	// of the surrounding transaction.
	LockStatus(ctx context.Context, id int64) (domain.ProcurementStatus, error)
	// UpdateDetails rewrites the editable fields and puts the request back in
	// draft, only when its status is still from.
	UpdateDetails(ctx context.Context, req *domain.ProcurementRequest, from domain.ProcurementStatus) (bool, error)
	// Transition applies t only when the stored status is still t.From.
	Transition(ctx context.Context, id int64, t domain.ProcurementTransition) (bool, error)
	AddItem(ctx context.Context, item *domain.ProcurementItem) error
	RemoveItem(ctx context.Context, requestID, itemID int64) (bool, error)
	ListItems(ctx context.Context, requestID int64) ([]domain.ProcurementItem, error)
	// RecalculateTotal sets total_amount to the sum of line totals and returns it.
	RecalculateTotal(ctx context.Context, requestID int64) (decimal.Decimal, error)
}

type procurementRepository struct {
	db *persistence.Gateway
}

// NewProcurementRepository instantiates the repository.
func NewProcurementRepository(db *persistence.Gateway) ProcurementRepository {
	return &procurementRepository{db: db}
}

const procurementColumns = `id, request_number, requester_name, requester_email, department, vendor_name, vendor_email,
       vendor_phone, justification, status, level1_approver_id, level2_approver_id, level1_decided_at,
       level2_decided_at, ordered_at, received_at, total_amount, created_at, updated_at`

func (r *procurementRepository) NextRequestNumber(ctx context.Context) (string, error) {
	var number string
	err := r.db.Conn(ctx).QueryRow(ctx, `SELECT generate_procurement_request_number()`).Scan(&number)
	return number, persistence.Classify(err)
}

func (r *procurementRepository) Create(ctx context.Context, req *domain.ProcurementRequest) error {
	const query = `
        INSERT INTO procurement_requests (request_number, requester_name, requester_email, department,
            vendor_name, vendor_email, vendor_phone, justification, status, total_amount)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING id, created_at, updated_at`
	err := r.db.Conn(ctx).QueryRow(ctx, query,
		req.RequestNumber,
		req.RequesterName,
		req.RequesterEmail,
		req.Department,
		req.VendorName,
		req.VendorEmail,
		req.VendorPhone,
		req.Justification,
		req.Status,
		req.TotalAmount,
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
	return persistence.Classify(err)
}

func (r *procurementRepository) GetByID(ctx context.Context, id int64) (*domain.ProcurementRequest, error) {
	query := `SELECT ` + procurementColumns + ` FROM procurement_requests WHERE id=$1`
	req, err := scanProcurement(r.db.Conn(ctx).QueryRow(ctx, query, id))
	if err != nil {
		return nil, persistence.Classify(err)
	}
	items, err := r.ListItems(ctx, id)
	if err != nil {
		return nil, err
	}
	req.Items = items
	return req, nil
}

func (r *procurementRepository) List(ctx context.Context, filter ProcurementFilter) ([]domain.ProcurementRequest, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.RequesterEmail != nil {
		args = append(args, strings.ToLower(*filter.RequesterEmail))
		clauses = append(clauses, fmt.Sprintf("LOWER(requester_email)=$%d", len(args)))
	}
	if filter.ApproverID != nil {
		args = append(args, *filter.ApproverID)
		p := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("((status='pending_level1' AND level1_approver_id=%s) OR (status='pending_level2' AND level2_approver_id=%s))", p, p))
	}

	limit, offset := normalizePage(filter.Limit, filter.Offset)
	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM procurement_requests WHERE %s ORDER BY updated_at DESC LIMIT $%d OFFSET $%d`,
		procurementColumns, strings.Join(clauses, " AND "), len(args)-1, len(args))

	rows, err := r.db.Conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, persistence.Classify(err)
	}
	defer rows.Close()

	var result []domain.ProcurementRequest
	for rows.Next() {
		req, err := scanProcurement(rows)
		if err != nil {
			return nil, persistence.Classify(err)
		}
		result = append(result, *req)
	}
	return result, persistence.Classify(rows.Err())
}

func (r *procurementRepository) LockStatus(ctx context.Context, id int64) (domain.ProcurementStatus, error) {
	var status domain.ProcurementStatus
	err := r.db.Conn(ctx).QueryRow(ctx, `SELECT status FROM procurement_requests WHERE id=$1 FOR UPDATE`, id).Scan(&status)
	return status, persistence.Classify(err)
}

func (r *procurementRepository) UpdateDetails(ctx context.Context, req *domain.ProcurementRequest, from domain.ProcurementStatus) (bool, error) {
	const query = `
        UPDATE procurement_requests
        SET requester_name=$1, requester_email=$2, department=$3, vendor_name=$4, vendor_email=$5,
            vendor_phone=$6, justification=$7, status=$8, updated_at=NOW()
        WHERE id=$9 AND status=$10`
	affected, err := r.db.ExecuteNonQuery(ctx, query,
		req.RequesterName,
		req.RequesterEmail,
		req.Department,
		req.VendorName,
		req.VendorEmail,
		req.VendorPhone,
		req.Justification,
		domain.ProcurementStatusDraft,
		req.ID,
		from,
	)
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *procurementRepository) Transition(ctx context.Context, id int64, t domain.ProcurementTransition) (bool, error) {
	const query = `
        UPDATE procurement_requests
        SET status=$1,
            level1_approver_id=COALESCE($2, level1_approver_id),
            level2_approver_id=COALESCE($3, level2_approver_id),
            level1_decided_at=COALESCE($4, level1_decided_at),
            level2_decided_at=COALESCE($5, level2_decided_at),
            ordered_at=COALESCE($6, ordered_at),
            received_at=COALESCE($7, received_at),
            updated_at=NOW()
        WHERE id=$8 AND status=$9`
	affected, err := r.db.ExecuteNonQuery(ctx, query,
		t.To,
		t.Level1ApproverID,
		t.Level2ApproverID,
		t.Level1DecidedAt,
		t.Level2DecidedAt,
		t.OrderedAt,
		t.ReceivedAt,
		id,
		t.From,
	)
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *procurementRepository) AddItem(ctx context.Context, item *domain.ProcurementItem) error {
	const query = `
        INSERT INTO procurement_items (request_id, line_number, description, quantity, unit_price)
        VALUES ($1, (SELECT COALESCE(MAX(line_number), 0) + 1 FROM procurement_items WHERE request_id=$1), $2, $3, $4)
        RETURNING id, line_number`
	err := r.db.Conn(ctx).QueryRow(ctx, query,
		item.RequestID,
		item.Description,
		item.Quantity,
		item.UnitPrice,
	).Scan(&item.ID, &item.LineNumber)
	return persistence.Classify(err)
}

func (r *procurementRepository) RemoveItem(ctx context.Context, requestID, itemID int64) (bool, error) {
	affected, err := r.db.ExecuteNonQuery(ctx, `DELETE FROM procurement_items WHERE id=$1 AND request_id=$2`, itemID, requestID)
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *procurementRepository) ListItems(ctx context.Context, requestID int64) ([]domain.ProcurementItem, error) {
	const query = `
        SELECT id, request_id, line_number, description, quantity, unit_price
        FROM procurement_items WHERE request_id=$1 ORDER BY line_number ASC`
	rows, err := r.db.Conn(ctx).Query(ctx, query, requestID)
	if err != nil {
		return nil, persistence.Classify(err)
	}
	defer rows.Close()

	items := []domain.ProcurementItem{}
	for rows.Next() {
		var item domain.ProcurementItem
		if err := rows.Scan(
			&item.ID,
			&item.RequestID,
			&item.LineNumber,
			&item.Description,
			&item.Quantity,
			&item.UnitPrice,
		); err != nil {
			return nil, persistence.Classify(err)
		}
		items = append(items, item)
	}
	return items, persistence.Classify(rows.Err())
}

func (r *procurementRepository) RecalculateTotal(ctx context.Context, requestID int64) (decimal.Decimal, error) {
	const query = `
        UPDATE procurement_requests
        SET total_amount=(SELECT COALESCE(SUM(quantity * unit_price), 0) FROM procurement_items WHERE request_id=$1),
            updated_at=NOW()
        WHERE id=$1
        RETURNING total_amount`
	var total decimal.Decimal
	err := r.db.Conn(ctx).QueryRow(ctx, query, requestID).Scan(&total)
	return total, persistence.Classify(err)
}

func scanProcurement(row pgx.Row) (*domain.ProcurementRequest, error) {
	var req domain.ProcurementRequest
	if err := row.Scan(
		&req.ID,
		&req.RequestNumber,
		&req.RequesterName,
		&req.RequesterEmail,
		&req.Department,
		&req.VendorName,
		&req.VendorEmail,
		&req.VendorPhone,
		&req.Justification,
		&req.Status,
		&req.Level1ApproverID,
		&req.Level2ApproverID,
		&req.Level1DecidedAt,
		&req.Level2DecidedAt,
		&req.OrderedAt,
		&req.ReceivedAt,
		&req.TotalAmount,
		&req.CreatedAt,
		&req.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &req, nil
}
