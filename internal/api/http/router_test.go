package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/opsdesk/internal/api/http/handlers"
	"github.com/spec-kit/opsdesk/internal/auth"
	"github.com/spec-kit/opsdesk/internal/config"
	"github.com/spec-kit/opsdesk/internal/domain"
	"github.com/spec-kit/opsdesk/internal/observability"
	"github.com/spec-kit/opsdesk/internal/persistence"
	"github.com/spec-kit/opsdesk/internal/service"
)

const testPassword = "correct-horse"

type apiFixture struct {
	app     *fiber.App
	tickets *memTickets
	fleet   *memFleet
	outbox  *memOutbox
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	f := &apiFixture{
		tickets: &memTickets{rows: map[int64]domain.Ticket{}},
		fleet:   newMemFleet(),
		outbox:  &memOutbox{},
	}
	notes := &memNotes{}
	users := &memUsers{rows: map[int64]domain.User{}}

	hash, err := auth.HashPassword(testPassword, bcrypt.MinCost)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, users.Create(ctx, &domain.User{Username: "sam", Email: "sam@example.com", PasswordHash: hash, Role: domain.UserRoleStaff, Active: true}))
	require.NoError(t, users.Create(ctx, &domain.User{Username: "ada", Email: "ada@example.com", PasswordHash: hash, Role: domain.UserRoleAdmin, Active: true}))

	now := time.Date(2024, 7, 4, 9, 0, 0, 0, time.UTC)
	authService := service.NewAuthService(config.AuthConfig{JWTSecret: "test-secret", AccessTokenTTLMinutes: 60, BcryptCost: bcrypt.MinCost}, users)
	ticketService := service.NewTicketService(service.TicketDependencies{
		Tickets: f.tickets, Notes: notes, Outbox: f.outbox, Tx: inlineTx{},
	})
	fleetService := service.NewFleetService(service.FleetDependencies{
		Fleet: f.fleet, Notes: notes, Outbox: f.outbox, Tx: inlineTx{},
		Now: func() time.Time { return now },
	})
	metrics := observability.NewMetrics("test")

	f.app = fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	RegisterMiddlewares(f.app, zap.NewNop(), metrics, 0)
	RegisterRoutes(f.app, RouteConfig{
		Health:         handlers.NewHealthHandler("opsdesk", "test", stubPinger{}, stubPinger{err: persistence.ErrRedisNotConfigured}),
		Users:          handlers.NewUsersHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Procurement:    handlers.NewProcurementHandler(service.NewProcurementService(service.ProcurementDependencies{Tx: inlineTx{}})),
		Fleet:          handlers.NewFleetHandler(fleetService),
		Assets:         handlers.NewAssetsHandler(service.NewAssetService(nil)),
		Reports:        handlers.NewReportsHandler(service.NewReportService(stubQuerier{}, func() time.Time { return now })),
		Metrics:        metrics,
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), users),
	})
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, token string) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func (f *apiFixture) login(t *testing.T, username string) string {
	t.Helper()
	resp, body := f.do(t, http.MethodPost, "/auth/login", map[string]string{"username": username, "password": testPassword}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token := body["data"].(map[string]any)["auth"].(map[string]any)["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestHealthAndMetrics(t *testing.T) {
	f := newAPIFixture(t)

	resp, body := f.do(t, http.MethodGet, "/health/live", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "alive", body["status"])

	resp, body = f.do(t, http.MethodGet, "/health/ready", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	deps := body["dependencies"].(map[string]any)
	assert.Equal(t, "ok", deps["postgres"])
	assert.Equal(t, "disabled", deps["redis"])

	resp, _ = f.do(t, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReadyFailsWhenDatabaseIsDown(t *testing.T) {
	app := fiber.New()
	h := handlers.NewHealthHandler("opsdesk", "test", stubPinger{err: errors.New("dial tcp: refused")}, nil)
	app.Get("/health/ready", h.Ready)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health/ready", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	f := newAPIFixture(t)
	resp, body := f.do(t, http.MethodGet, "/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}

func TestPublicTicketSubmission(t *testing.T) {
	f := newAPIFixture(t)

	resp, body := f.do(t, http.MethodPost, "/tickets", map[string]string{
		"requester_name":  "Dana",
		"requester_email": "dana@example.com",
		"subject":         "VPN down",
		"description":     "Cannot connect since this morning",
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	ticket := body["data"].(map[string]any)
	assert.Equal(t, "open", ticket["status"])
	assert.Equal(t, "medium", ticket["priority"])
	assert.Nil(t, ticket["first_response_at"])
	require.Len(t, f.outbox.events, 1)

	resp, body = f.do(t, http.MethodPost, "/tickets", map[string]string{"requester_name": "Dana"}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
}

func TestStaffRoutesRequireToken(t *testing.T) {
	f := newAPIFixture(t)

	resp, body := f.do(t, http.MethodGet, "/tickets", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))

	resp, _ = f.do(t, http.MethodGet, "/tickets", nil, "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = f.do(t, http.MethodPost, "/auth/login", map[string]string{"username": "sam", "password": "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))
}

func TestAdminOnlyRoutes(t *testing.T) {
	f := newAPIFixture(t)

	resp, body := f.do(t, http.MethodGet, "/users", nil, f.login(t, "sam"))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "FORBIDDEN", errorCode(body))

	resp, body = f.do(t, http.MethodGet, "/users", nil, f.login(t, "ada"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["data"], 2)
}

func TestTicketWorkflowOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	token := f.login(t, "sam")

	resp, _ := f.do(t, http.MethodPost, "/tickets", map[string]string{
		"requester_name": "Dana", "requester_email": "dana@example.com", "subject": "VPN", "description": "down",
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := f.do(t, http.MethodPost, "/tickets/1/status", map[string]string{"status": "in_progress", "comment": "looking"}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ticket := body["data"].(map[string]any)
	assert.Equal(t, "in_progress", ticket["status"])
	assert.NotNil(t, ticket["first_response_at"])

	resp, body = f.do(t, http.MethodPost, "/tickets/1/status", map[string]string{"status": "escalated"}, token)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	resp, body = f.do(t, http.MethodGet, "/tickets/1", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	notes := body["data"].(map[string]any)["notes"].([]any)
	require.Len(t, notes, 1)
	assert.Equal(t, "sam", notes[0].(map[string]any)["author"])

	resp, body = f.do(t, http.MethodGet, "/tickets/99", nil, token)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", errorCode(body))

	resp, body = f.do(t, http.MethodGet, "/tickets/abc", nil, token)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
}

func TestTripApprovalDefaultsToCaller(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()
	require.NoError(t, f.fleet.CreateVehicle(ctx, &domain.Vehicle{Make: "Ford", Model: "Transit", Plate: "FLT-001", CurrentMileage: 500, Status: domain.VehicleStatusAvailable}))
	require.NoError(t, f.fleet.CreateTrip(ctx, &domain.VehicleTrip{VehicleID: 1, RequesterName: "Jo", RequesterEmail: "jo@example.com", Destination: "Depot", Status: domain.TripStatusRequested}))
	token := f.login(t, "sam")

	resp, body := f.do(t, http.MethodPost, "/trips/1/approve", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	trip := body["data"].(map[string]any)
	assert.Equal(t, "In Use", trip["status"])
	assert.Equal(t, "sam", trip["approved_by"])
	assert.EqualValues(t, 500, trip["starting_mileage"])

	resp, body = f.do(t, http.MethodPost, "/trips/1/approve", nil, token)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "INVALID_TRANSITION", errorCode(body))

	resp, body = f.do(t, http.MethodPost, "/trips/1/return", map[string]int{"ending_mileage": 530}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 30, body["data"].(map[string]any)["miles_driven"])
}

func TestUnknownProcurementAction(t *testing.T) {
	f := newAPIFixture(t)
	resp, body := f.do(t, http.MethodPost, "/procurement/1/teleport", nil, f.login(t, "sam"))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}

func TestReportDownload(t *testing.T) {
	f := newAPIFixture(t)
	token := f.login(t, "sam")

	req := httptest.NewRequest(http.MethodGet, "/reports/tickets?format=csv&from=2024-06-01&to=2024-07-01", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `attachment; filename="tickets-20240704.csv"`, resp.Header.Get("Content-Disposition"))
	raw, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(raw), "Printer jam")

	resp, body := f.do(t, http.MethodGet, "/reports/tickets?from=yesterday", nil, token)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
}
