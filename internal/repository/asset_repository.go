package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/opsdesk/internal/domain"
	"github.com/spec-kit/opsdesk/internal/persistence"
)

// AssetFilter narrows inventory listings.
type AssetFilter struct {
	Status     *domain.AssetStatus
	Category   *string
	SearchTerm *string
	Limit      int
	Offset     int
}

// AssetRepository persists the equipment inventory.
type AssetRepository interface {
	Create(ctx context.Context, asset *domain.Asset) error
	Update(ctx context.Context, asset *domain.Asset) error
	GetByID(ctx context.Context, id int64) (*domain.Asset, error)
	List(ctx context.Context, filter AssetFilter) ([]domain.Asset, error)
}

type assetRepository struct {
	db *persistence.Gateway
}

func NewAssetRepository(db *persistence.Gateway) AssetRepository {
	return &assetRepository{db: db}
}

const assetColumns = `id, asset_tag, name, category, serial_number, location, assigned_to, status,
       purchase_date, purchase_cost, created_at, updated_at`

func (r *assetRepository) Create(ctx context.Context, a *domain.Asset) error {
	const query = `
        INSERT INTO assets (asset_tag, name, category, serial_number, location, assigned_to, status, purchase_date, purchase_cost)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id, created_at, updated_at`
	err := r.db.Conn(ctx).QueryRow(ctx, query,
		a.AssetTag,
		a.Name,
		a.Category,
		a.SerialNumber,
		a.Location,
		a.AssignedTo,
		a.Status,
		a.PurchaseDate,
		a.PurchaseCost,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	return persistence.Classify(err)
}

func (r *assetRepository) Update(ctx context.Context, a *domain.Asset) error {
	const query = `
        UPDATE assets
        SET asset_tag=$1, name=$2, category=$3, serial_number=$4, location=$5, assigned_to=$6,
            status=$7, purchase_date=$8, purchase_cost=$9, updated_at=NOW()
        WHERE id=$10`
	affected, err := r.db.ExecuteNonQuery(ctx, query,
		a.AssetTag,
		a.Name,
		a.Category,
		a.SerialNumber,
		a.Location,
		a.AssignedTo,
		a.Status,
		a.PurchaseDate,
		a.PurchaseCost,
		a.ID,
	)
	if err != nil {
		return err
	}
	if affected == 0 {
		return persistence.Classify(pgx.ErrNoRows)
	}
	return nil
}

func (r *assetRepository) GetByID(ctx context.Context, id int64) (*domain.Asset, error) {
	a, err := scanAsset(r.db.Conn(ctx).QueryRow(ctx, `SELECT `+assetColumns+` FROM assets WHERE id=$1`, id))
	if err != nil {
		return nil, persistence.Classify(err)
	}
	return a, nil
}

func (r *assetRepository) List(ctx context.Context, filter AssetFilter) ([]domain.Asset, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.Category != nil {
		args = append(args, *filter.Category)
		clauses = append(clauses, fmt.Sprintf("category=$%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		args = append(args, "%"+strings.ToLower(strings.TrimSpace(*filter.SearchTerm))+"%")
		p := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(asset_tag) LIKE %s OR LOWER(name) LIKE %s OR LOWER(serial_number) LIKE %s)", p, p, p))
	}
	limit, offset := normalizePage(filter.Limit, filter.Offset)
	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM assets WHERE %s ORDER BY asset_tag LIMIT $%d OFFSET $%d`,
		assetColumns, strings.Join(clauses, " AND "), len(args)-1, len(args))

	rows, err := r.db.Conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, persistence.Classify(err)
	}
	defer rows.Close()

	var result []domain.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, persistence.Classify(err)
		}
		result = append(result, *a)
	}
	return result, persistence.Classify(rows.Err())
}

func scanAsset(row pgx.Row) (*domain.Asset, error) {
	var a domain.Asset
	if err := row.Scan(
		&a.ID,
		&a.AssetTag,
		&a.Name,
		&a.Category,
		&a.SerialNumber,
		&a.Location,
		&a.AssignedTo,
		&a.Status,
		&a.PurchaseDate,
		&a.PurchaseCost,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &a, nil
}
