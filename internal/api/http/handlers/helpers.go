package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/opsdesk/internal/api/dto"
	"github.com/spec-kit/opsdesk/internal/auth"
	"github.com/spec-kit/opsdesk/internal/domain"
	"github.com/spec-kit/opsdesk/internal/service"
	apperrors "github.com/spec-kit/opsdesk/pkg/util/errorutil"
)

func parseID(c *fiber.Ctx, param string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(param), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("invalid "+param, map[string]any{param: c.Params(param)})
	}
	return id, nil
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return nil
}

// parseTime accepts RFC 3339 or a plain date.
func parseTime(val string) (*time.Time, error) {
	if val == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, val); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, val)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid date", map[string]any{"value": val})
	}
	return &t, nil
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

// page converts page/page_size query values to limit and offset.
func page(c *fiber.Ctx) (int, int) {
	p := parseInt(c.Query("page"), 1)
	size := parseInt(c.Query("page_size"), 50)
	return size, (p - 1) * size
}

func splitQuery(val string) []string {
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func optionalQuery(c *fiber.Ctx, key string) *string {
	if v := strings.TrimSpace(c.Query(key)); v != "" {
		return &v
	}
	return nil
}

func currentActor(c *fiber.Ctx) service.Actor {
	user, _ := auth.UserFromContext(c)
	return service.ActorFromUser(user)
}

func noteResponses(notes []domain.Note) []dto.NoteResponse {
	out := make([]dto.NoteResponse, 0, len(notes))
	for _, n := range notes {
		out = append(out, dto.NoteResponse{
			ID:        n.ID,
			Type:      n.Type,
			Body:      n.Body,
			Author:    n.Author,
			CreatedAt: n.CreatedAt,
		})
	}
	return out
}

func data(v any) fiber.Map {
	return fiber.Map{"data": v}
}
