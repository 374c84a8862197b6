package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/opsdesk/internal/domain"
	"github.com/spec-kit/opsdesk/internal/persistence"
)

// ApproverRepository reads and maintains the procurement approver roster.
type ApproverRepository interface {
	Create(ctx context.Context, approver *domain.Approver) error
	SetActive(ctx context.Context, id int64, active bool) error
	GetByID(ctx context.Context, id int64) (*domain.Approver, error)
	// FirstActive returns the active approver for level with the lowest sort
	// order, or a not-found error when the level is empty.
	FirstActive(ctx context.Context, level int) (*domain.Approver, error)
	List(ctx context.Context) ([]domain.Approver, error)
}

type approverRepository struct {
	db *persistence.Gateway
}

func NewApproverRepository(db *persistence.Gateway) ApproverRepository {
	return &approverRepository{db: db}
}

const approverColumns = `id, name, email, level, active, sort_order, created_at`

func (r *approverRepository) Create(ctx context.Context, approver *domain.Approver) error {
	const query = `
        INSERT INTO procurement_approvers (name, email, level, active, sort_order)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	err := r.db.Conn(ctx).QueryRow(ctx, query,
		approver.Name,
		approver.Email,
		approver.Level,
		approver.Active,
		approver.SortOrder,
	).Scan(&approver.ID, &approver.CreatedAt)
	return persistence.Classify(err)
}

func (r *approverRepository) SetActive(ctx context.Context, id int64, active bool) error {
	affected, err := r.db.ExecuteNonQuery(ctx, `UPDATE procurement_approvers SET active=$1 WHERE id=$2`, active, id)
	if err != nil {
		return err
	}
	if affected == 0 {
		return persistence.Classify(pgx.ErrNoRows)
	}
	return nil
}

func (r *approverRepository) GetByID(ctx context.Context, id int64) (*domain.Approver, error) {
	query := `SELECT ` + approverColumns + ` FROM procurement_approvers WHERE id=$1`
	approver, err := scanApprover(r.db.Conn(ctx).QueryRow(ctx, query, id))
	if err != nil {
		return nil, persistence.Classify(err)
	}
	return approver, nil
}

func (r *approverRepository) FirstActive(ctx context.Context, level int) (*domain.Approver, error) {
	query := `SELECT ` + approverColumns + ` FROM procurement_approvers
        WHERE level=$1 AND active ORDER BY sort_order ASC, id ASC LIMIT 1`
	approver, err := scanApprover(r.db.Conn(ctx).QueryRow(ctx, query, level))
	if err != nil {
		return nil, persistence.Classify(err)
	}
	return approver, nil
}

func (r *approverRepository) List(ctx context.Context) ([]domain.Approver, error) {
	query := `SELECT ` + approverColumns + ` FROM procurement_approvers ORDER BY level, sort_order, id`
	rows, err := r.db.Conn(ctx).Query(ctx, query)
	if err != nil {
		return nil, persistence.Classify(err)
	}
	defer rows.Close()

	var result []domain.Approver
	for rows.Next() {
		approver, err := scanApprover(rows)
		if err != nil {
			return nil, persistence.Classify(err)
		}
		result = append(result, *approver)
	}
	return result, persistence.Classify(rows.Err())
}

func scanApprover(row pgx.Row) (*domain.Approver, error) {
	var a domain.Approver
	if err := row.Scan(&a.ID, &a.Name, &a.Email, &a.Level, &a.Active, &a.SortOrder, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}
