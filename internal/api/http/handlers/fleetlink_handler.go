package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/opsdesk/internal/auth"
	"github.com/spec-kit/opsdesk/internal/domain"
	"github.com/spec-kit/opsdesk/internal/service"
	apperrors "github.com/spec-kit/opsdesk/pkg/util/errorutil"
)

// DriverCookie remembers the last requester on this browser. The value is
// encrypted by the fleetlink cookie middleware.
const DriverCookie = "fleetlink_driver"

// FleetlinkHandler serves the unauthenticated pages reached from emailed
// links: the trip request form, the manager's approve link and the
// driver's return form.
type FleetlinkHandler struct {
	fleet  *service.FleetService
	signer *auth.LinkSigner
	logger *zap.Logger
}

func NewFleetlinkHandler(fleet *service.FleetService, signer *auth.LinkSigner, logger *zap.Logger) *FleetlinkHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FleetlinkHandler{fleet: fleet, signer: signer, logger: logger}
}

type requestTripPage struct {
	Title          string
	Error          string
	Vehicles       []domain.Vehicle
	RequesterName  string
	RequesterEmail string
	Destination    string
	Purpose        string
}

type returnTripPage struct {
	Title           string
	Error           string
	Trip            *domain.VehicleTrip
	Vehicle         string
	StartingMileage int
	Action          string
}

// RequestTripForm GET /request-trip.
func (h *FleetlinkHandler) RequestTripForm(c *fiber.Ctx) error {
	page := requestTripPage{Title: "Request a vehicle"}
	page.RequesterName, page.RequesterEmail = readDriverCookie(c)
	return h.renderRequestForm(c, fiber.StatusOK, page)
}

// RequestTrip POST /request-trip.
func (h *FleetlinkHandler) RequestTrip(c *fiber.Ctx) error {
	page := requestTripPage{
		Title:          "Request a vehicle",
		RequesterName:  c.FormValue("requester_name"),
		RequesterEmail: c.FormValue("requester_email"),
		Destination:    c.FormValue("destination"),
		Purpose:        c.FormValue("purpose"),
	}
	vehicleID, err := strconv.ParseInt(c.FormValue("vehicle_id"), 10, 64)
	if err != nil || vehicleID <= 0 {
		page.Error = "Choose a vehicle."
		return h.renderRequestForm(c, fiber.StatusBadRequest, page)
	}

	trip, err := h.fleet.RequestTrip(c.UserContext(), service.TripRequestInput{
		VehicleID:      vehicleID,
		RequesterName:  page.RequesterName,
		RequesterEmail: page.RequesterEmail,
		Destination:    page.Destination,
		Purpose:        page.Purpose,
	})
	if err != nil {
		de := apperrors.ToDomainError(err)
		if de.HTTPStatus >= fiber.StatusInternalServerError {
			return h.failure(c, err)
		}
		page.Error = de.Message
		return h.renderRequestForm(c, de.HTTPStatus, page)
	}

	c.Cookie(&fiber.Cookie{
		Name:     DriverCookie,
		Value:    url.Values{"name": {trip.RequesterName}, "email": {trip.RequesterEmail}}.Encode(),
		Path:     "/",
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
		MaxAge:   90 * 24 * 60 * 60,
	})
	return c.Status(fiber.StatusCreated).SendString(fmt.Sprintf(
		"Trip %d requested. The fleet manager has been asked to approve it; you will get an email once it is approved.", trip.ID))
}

// Approve GET /approve?trip_id&ts&token&approver.
func (h *FleetlinkHandler) Approve(c *fiber.Ctx) error {
	tripID, err := strconv.ParseInt(c.Query("trip_id"), 10, 64)
	if err != nil || tripID <= 0 {
		return c.Status(fiber.StatusBadRequest).SendString("This link is missing a trip.")
	}
	if err := h.verify(c, tripID); err != nil {
		return h.linkFailure(c, err, tripID, "an approvable")
	}

	trip, err := h.fleet.ApproveTrip(c.UserContext(), tripID, c.Query("approver"))
	if err != nil {
		return h.linkFailure(c, err, tripID, "an approvable")
	}
	start := 0
	if trip.StartingMileage != nil {
		start = *trip.StartingMileage
	}
	return c.SendString(fmt.Sprintf("Trip %d approved. %s is checked out to %s with starting mileage %d.",
		trip.ID, h.vehicleLabel(c, trip.VehicleID), trip.RequesterName, start))
}

// ReturnForm GET /return/:trip_id?ts&token.
func (h *FleetlinkHandler) ReturnForm(c *fiber.Ctx) error {
	tripID, err := parseID(c, "trip_id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("This link is missing a trip.")
	}
	if err := h.verify(c, tripID); err != nil {
		return h.linkFailure(c, err, tripID, "a returnable")
	}
	trip, err := h.fleet.GetTrip(c.UserContext(), tripID)
	if err != nil {
		return h.linkFailure(c, err, tripID, "a returnable")
	}
	if _, ok := trip.Status.Next(domain.TripActionReturn); !ok {
		return h.linkFailure(c, apperrors.ErrInvalidTransition, tripID, "a returnable")
	}
	return h.renderReturnForm(c, fiber.StatusOK, trip, "")
}

// Return POST /return/:trip_id?ts&token.
func (h *FleetlinkHandler) Return(c *fiber.Ctx) error {
	tripID, err := parseID(c, "trip_id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("This link is missing a trip.")
	}
	if err := h.verify(c, tripID); err != nil {
		return h.linkFailure(c, err, tripID, "a returnable")
	}

	input := service.TripReturnInput{Notes: c.FormValue("notes")}
	if raw := strings.TrimSpace(c.FormValue("ending_mileage")); raw != "" {
		miles, err := strconv.Atoi(raw)
		if err != nil {
			return h.returnValidationFailure(c, tripID, "Ending mileage must be a whole number.")
		}
		input.EndingMileage = &miles
	}

	trip, err := h.fleet.ReturnTrip(c.UserContext(), tripID, input, "")
	if err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			return h.returnValidationFailure(c, tripID, apperrors.ToDomainError(err).Message)
		}
		return h.linkFailure(c, err, tripID, "a returnable")
	}
	miles, _ := trip.MilesDriven()
	return c.SendString(fmt.Sprintf("Trip %d returned. %d miles recorded. Thank you.", trip.ID, miles))
}

func (h *FleetlinkHandler) verify(c *fiber.Ctx, tripID int64) error {
	ts, err := strconv.ParseInt(c.Query("ts"), 10, 64)
	if err != nil || c.Query("token") == "" {
		return apperrors.NewTokenInvalid()
	}
	return h.signer.Verify(tripID, c.Query("token"), ts)
}

// linkFailure renders the plain text outcome for a rejected link.
func (h *FleetlinkHandler) linkFailure(c *fiber.Ctx, err error, tripID int64, state string) error {
	switch {
	case errors.Is(err, apperrors.ErrTokenExpired):
		return c.Status(fiber.StatusGone).SendString("This link has expired.")
	case errors.Is(err, apperrors.ErrTokenInvalid):
		return c.Status(fiber.StatusForbidden).SendString("This link is not valid.")
	case errors.Is(err, apperrors.ErrNotFound):
		return c.Status(fiber.StatusNotFound).SendString(fmt.Sprintf("Trip %d was not found.", tripID))
	case errors.Is(err, apperrors.ErrInvalidTransition):
		return c.Status(fiber.StatusConflict).SendString(fmt.Sprintf("Trip %d is not in %s state.", tripID, state))
	}
	return h.failure(c, err)
}

func (h *FleetlinkHandler) failure(c *fiber.Ctx, err error) error {
	h.logger.Error("fleetlink request failed", zap.String("path", c.Path()), zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).SendString("Something went wrong. Please try again later.")
}

func (h *FleetlinkHandler) returnValidationFailure(c *fiber.Ctx, tripID int64, msg string) error {
	trip, err := h.fleet.GetTrip(c.UserContext(), tripID)
	if err != nil {
		return h.linkFailure(c, err, tripID, "a returnable")
	}
	return h.renderReturnForm(c, fiber.StatusBadRequest, trip, msg)
}

func (h *FleetlinkHandler) renderRequestForm(c *fiber.Ctx, status int, page requestTripPage) error {
	vehicles, err := h.fleet.AvailableVehicles(c.UserContext())
	if err != nil {
		return h.failure(c, err)
	}
	page.Vehicles = vehicles
	return renderHTML(c, status, "request-trip", page)
}

func (h *FleetlinkHandler) renderReturnForm(c *fiber.Ctx, status int, trip *domain.VehicleTrip, msg string) error {
	page := returnTripPage{
		Title:   "Return a vehicle",
		Error:   msg,
		Trip:    trip,
		Vehicle: h.vehicleLabel(c, trip.VehicleID),
		Action:  fmt.Sprintf("/return/%d?%s", trip.ID, url.Values{"ts": {c.Query("ts")}, "token": {c.Query("token")}}.Encode()),
	}
	if trip.StartingMileage != nil {
		page.StartingMileage = *trip.StartingMileage
	}
	return renderHTML(c, status, "return-trip", page)
}

func (h *FleetlinkHandler) vehicleLabel(c *fiber.Ctx, id int64) string {
	v, err := h.fleet.GetVehicle(c.UserContext(), id)
	if err != nil {
		return fmt.Sprintf("Vehicle %d", id)
	}
	return v.Label()
}

func renderHTML(c *fiber.Ctx, status int, name string, page any) error {
	var buf bytes.Buffer
	if err := fleetlinkTemplates.ExecuteTemplate(&buf, name, page); err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Status(status).Send(buf.Bytes())
}

func readDriverCookie(c *fiber.Ctx) (string, string) {
	raw := c.Cookies(DriverCookie)
	if raw == "" {
		return "", ""
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return "", ""
	}
	return values.Get("name"), values.Get("email")
}
