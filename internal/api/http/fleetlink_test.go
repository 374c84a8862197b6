package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/opsdesk/internal/api/http/handlers"
	"github.com/spec-kit/opsdesk/internal/auth"
	"github.com/spec-kit/opsdesk/internal/domain"
	"github.com/spec-kit/opsdesk/internal/service"
)

type fleetlinkFixture struct {
	app    *fiber.App
	fleet  *memFleet
	outbox *memOutbox
	signer *auth.LinkSigner
	now    time.Time
}

func newFleetlinkFixture(t *testing.T) *fleetlinkFixture {
	t.Helper()
	f := &fleetlinkFixture{
		fleet:  newMemFleet(),
		outbox: &memOutbox{},
		now:    time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	f.signer = auth.NewLinkSigner("link-secret", auth.DefaultLinkMaxAge).WithClock(clock)
	fleetService := service.NewFleetService(service.FleetDependencies{
		Fleet: f.fleet, Notes: &memNotes{}, Outbox: f.outbox, Tx: inlineTx{}, Now: clock,
	})
	require.NoError(t, fleetService.CreateVehicle(context.Background(), &domain.Vehicle{
		Make: "Ford", Model: "Transit", Year: 2021, Plate: "FLT-001", CurrentMileage: 1000, Status: domain.VehicleStatusAvailable,
	}))

	f.app = fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	RegisterMiddlewares(f.app, zap.NewNop(), nil, 0)
	RegisterFleetlinkRoutes(f.app,
		handlers.NewFleetlinkHandler(fleetService, f.signer, zap.NewNop()),
		handlers.NewHealthHandler("fleetlink", "test", stubPinger{}, nil),
		"flask-secret")
	return f
}

func (f *fleetlinkFixture) send(t *testing.T, req *http.Request) (*http.Response, string) {
	t.Helper()
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(raw)
}

func (f *fleetlinkFixture) get(t *testing.T, path string) (*http.Response, string) {
	return f.send(t, httptest.NewRequest(http.MethodGet, path, nil))
}

func (f *fleetlinkFixture) postForm(t *testing.T, path string, form url.Values) (*http.Response, string) {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return f.send(t, req)
}

func (f *fleetlinkFixture) linkQuery(tripID int64, issuedAt time.Time) string {
	ts := issuedAt.Unix()
	return url.Values{
		"ts":    {fmt.Sprint(ts)},
		"token": {f.signer.IssueAt(tripID, ts)},
	}.Encode()
}

func requestForm() url.Values {
	return url.Values{
		"vehicle_id":      {"1"},
		"requester_name":  {"Jo Park"},
		"requester_email": {"jo@example.com"},
		"destination":     {"Warehouse"},
		"purpose":         {"Pickup"},
	}
}

func TestRequestTripForm(t *testing.T) {
	f := newFleetlinkFixture(t)

	resp, body := f.get(t, "/request-trip")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, body, "2021 Ford Transit (FLT-001)")
	assert.Contains(t, body, `name="requester_email"`)
}

func TestRequestTripRemembersDriver(t *testing.T) {
	f := newFleetlinkFixture(t)

	resp, body := f.postForm(t, "/request-trip", requestForm())
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.Contains(t, body, "Trip 1 requested")
	require.Len(t, f.outbox.events, 1)

	var driver *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == handlers.DriverCookie {
			driver = c
		}
	}
	require.NotNil(t, driver)
	assert.NotContains(t, driver.Value, "jo@example.com")

	req := httptest.NewRequest(http.MethodGet, "/request-trip", nil)
	req.AddCookie(&http.Cookie{Name: driver.Name, Value: driver.Value})
	_, page := f.send(t, req)
	assert.Contains(t, page, `value="Jo Park"`)
	assert.Contains(t, page, `value="jo@example.com"`)
}

func TestRequestTripValidation(t *testing.T) {
	f := newFleetlinkFixture(t)

	form := requestForm()
	form.Set("requester_email", "not-an-address")
	resp, body := f.postForm(t, "/request-trip", form)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "requester_email is not a valid address")
	assert.Contains(t, body, `value="Warehouse"`)

	form = requestForm()
	form.Del("vehicle_id")
	resp, body = f.postForm(t, "/request-trip", form)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "Choose a vehicle.")
	assert.Empty(t, f.fleet.trips)
}

func TestApproveLink(t *testing.T) {
	f := newFleetlinkFixture(t)
	resp, _ := f.postForm(t, "/request-trip", requestForm())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	link := "/approve?trip_id=1&approver=manager%40example.com&" + f.linkQuery(1, f.now)
	resp, body := f.get(t, link)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "Trip 1 approved. 2021 Ford Transit (FLT-001) is checked out to Jo Park with starting mileage 1000.", body)
	assert.Equal(t, "manager@example.com", *f.fleet.trips[1].ApprovedBy)
	assert.Equal(t, domain.VehicleStatusInUse, f.fleet.vehicles[1].Status)

	resp, body = f.get(t, link)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "Trip 1 is not in an approvable state.", body)
}

func TestApproveLinkRejectsBadTokens(t *testing.T) {
	f := newFleetlinkFixture(t)
	resp, _ := f.postForm(t, "/request-trip", requestForm())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	cases := []struct {
		name   string
		path   string
		status int
		body   string
	}{
		{"tampered", fmt.Sprintf("/approve?trip_id=1&ts=%d&token=%s", f.now.Unix(), strings.Repeat("ab", 32)), http.StatusForbidden, "This link is not valid."},
		{"other trip", "/approve?trip_id=1&" + f.linkQuery(2, f.now), http.StatusForbidden, "This link is not valid."},
		{"expired", "/approve?trip_id=1&" + f.linkQuery(1, f.now.Add(-8*24*time.Hour)), http.StatusGone, "This link has expired."},
		{"no trip", "/approve?" + f.linkQuery(1, f.now), http.StatusBadRequest, "This link is missing a trip."},
		{"unknown trip", "/approve?trip_id=9&" + f.linkQuery(9, f.now), http.StatusNotFound, "Trip 9 was not found."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := f.get(t, tc.path)
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.Equal(t, tc.body, body)
		})
	}
	assert.Equal(t, domain.TripStatusRequested, f.fleet.trips[1].Status)
}

func TestReturnLink(t *testing.T) {
	f := newFleetlinkFixture(t)
	resp, _ := f.postForm(t, "/request-trip", requestForm())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	returnPath := "/return/1?" + f.linkQuery(1, f.now)

	resp, body := f.get(t, returnPath)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "Trip 1 is not in a returnable state.", body)

	resp, _ = f.get(t, "/approve?trip_id=1&"+f.linkQuery(1, f.now))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = f.get(t, returnPath)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Starting mileage: 1000")
	assert.Contains(t, body, "token=")

	resp, body = f.postForm(t, returnPath, url.Values{"ending_mileage": {"900"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "below starting mileage")

	resp, body = f.postForm(t, returnPath, url.Values{"ending_mileage": {"lots"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "Ending mileage must be a whole number.")

	resp, body = f.postForm(t, returnPath, url.Values{"ending_mileage": {"1042"}, "notes": {"Full tank"}})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "Trip 1 returned. 42 miles recorded. Thank you.", body)
	assert.Equal(t, 1042, f.fleet.vehicles[1].CurrentMileage)
	assert.Equal(t, domain.VehicleStatusAvailable, f.fleet.vehicles[1].Status)

	resp, _ = f.postForm(t, returnPath, url.Values{"ending_mileage": {"1050"}})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = f.postForm(t, "/return/1?ts=1&token=abc", url.Values{"ending_mileage": {"1050"}})
	assert.Equal(t, http.StatusGone, resp.StatusCode)
}

func TestCookieKeyIsStable(t *testing.T) {
	assert.Equal(t, CookieKey("flask-secret"), CookieKey("flask-secret"))
	assert.NotEqual(t, CookieKey("flask-secret"), CookieKey("other"))
	assert.Len(t, CookieKey(""), 44)
}
