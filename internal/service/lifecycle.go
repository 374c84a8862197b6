package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/opsdesk/internal/domain"
	"github.com/spec-kit/opsdesk/internal/events"
	"github.com/spec-kit/opsdesk/internal/observability"
	"github.com/spec-kit/opsdesk/internal/repository"
	apperrors "github.com/spec-kit/opsdesk/pkg/util/errorutil"
)

// EventAppender stores lifecycle events for later delivery. Appends made
// inside a transaction commit or roll back with it.
type EventAppender interface {
	Append(ctx context.Context, event events.Event) error
}

// Actor identifies who performed an action.
type Actor struct {
	Username string
	Email    string
	Admin    bool
}

// ActorFromUser builds an Actor for a signed-in staff member.
func ActorFromUser(u *domain.User) Actor {
	if u == nil {
		return Actor{}
	}
	return Actor{Username: u.Username, Email: u.Email, Admin: u.IsAdmin()}
}

// Label is the name written to notes and events.
func (a Actor) Label() string {
	switch {
	case a.Username != "":
		return a.Username
	case a.Email != "":
		return a.Email
	}
	return "system"
}

// recorder appends audit notes and outbox events for a transition.
type recorder struct {
	notes   repository.NoteRepository
	outbox  EventAppender
	metrics *observability.Metrics
}

func (r recorder) note(ctx context.Context, entity domain.EntityKind, id int64, noteType domain.NoteType, body, author string) error {
	return r.notes.Append(ctx, &domain.Note{
		Entity:   entity,
		EntityID: id,
		Type:     noteType,
		Body:     body,
		Author:   author,
	})
}

func (r recorder) emit(ctx context.Context, eventType events.EventType, entity domain.EntityKind, id int64, actor string, payload any) error {
	evt, err := events.New(eventType, entity, id, actor, payload)
	if err != nil {
		return err
	}
	return r.outbox.Append(ctx, evt)
}

func (r recorder) count(entity domain.EntityKind, action string, err error) {
	r.metrics.RecordTransition(string(entity), action, outcome(err))
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return apperrors.ToDomainError(err).Code
}

// notFoundOr turns a missing row into a NOT_FOUND error for resource.
func notFoundOr(err error, resource string, id int64) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFound(resource, map[string]any{"id": id})
	}
	return err
}

// requireFields returns a validation error naming every blank field.
func requireFields(fields map[string]string) error {
	var missing []string
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return apperrors.NewValidationError("required fields are missing", map[string]any{"fields": missing})
}

func clock(now func() time.Time) func() time.Time {
	if now == nil {
		return time.Now
	}
	return now
}

func withComment(body, comment string) string {
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return body
	}
	return body + ": " + comment
}
