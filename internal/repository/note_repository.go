package repository

import (
	"context"
	"fmt"

	"github.com/spec-kit/opsdesk/internal/domain"
	"github.com/spec-kit/opsdesk/internal/persistence"
)

// NoteRepository stores append-only audit entries for every entity kind.
type NoteRepository interface {
	Append(ctx context.Context, note *domain.Note) error
	List(ctx context.Context, entity domain.EntityKind, entityID int64) ([]domain.Note, error)
}

var noteTables = map[domain.EntityKind]string{
	domain.EntityTicket:      "ticket_notes",
	domain.EntityProcurement: "procurement_notes",
	domain.EntityTrip:        "vehicle_trip_notes",
}

type noteRepository struct {
	db *persistence.Gateway
}

// NewNoteRepository builds repository.
func NewNoteRepository(db *persistence.Gateway) NoteRepository {
	return &noteRepository{db: db}
}

func noteTable(entity domain.EntityKind) (string, error) {
	table, ok := noteTables[entity]
	if !ok {
		return "", fmt.Errorf("no note table for entity %q", entity)
	}
	return table, nil
}

func (r *noteRepository) Append(ctx context.Context, note *domain.Note) error {
	table, err := noteTable(note.Entity)
	if err != nil {
		return err
	}
	query := `INSERT INTO ` + table + ` (entity_id, note_type, body, author)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at`
	err = r.db.Conn(ctx).QueryRow(ctx, query,
		note.EntityID,
		note.Type,
		note.Body,
		note.Author,
	).Scan(&note.ID, &note.CreatedAt)
	return persistence.Classify(err)
}

func (r *noteRepository) List(ctx context.Context, entity domain.EntityKind, entityID int64) ([]domain.Note, error) {
	table, err := noteTable(entity)
	if err != nil {
		return nil, err
	}
	query := `SELECT id, entity_id, note_type, body, author, created_at
        FROM ` + table + ` WHERE entity_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := r.db.Conn(ctx).Query(ctx, query, entityID)
	if err != nil {
		return nil, persistence.Classify(err)
	}
	defer rows.Close()

	var result []domain.Note
	for rows.Next() {
		note := domain.Note{Entity: entity}
		if err := rows.Scan(
			&note.ID,
			&note.EntityID,
			&note.Type,
			&note.Body,
			&note.Author,
			&note.CreatedAt,
		); err != nil {
			return nil, persistence.Classify(err)
		}
		result = append(result, note)
	}
	return result, persistence.Classify(rows.Err())
}
