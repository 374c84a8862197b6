package http

import (
	"crypto/sha256"
	"encoding/base64"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/encryptcookie"

	"github.com/spec-kit/opsdesk/internal/api/http/handlers"
	"github.com/spec-kit/opsdesk/internal/auth"
	"github.com/spec-kit/opsdesk/internal/domain"
	"github.com/spec-kit/opsdesk/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Tickets        *handlers.TicketsHandler
	Procurement    *handlers.ProcurementHandler
	Fleet          *handlers.FleetHandler
	Assets         *handlers.AssetsHandler
	Reports        *handlers.ReportsHandler
	Metrics        *observability.Metrics
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires the admin API.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	app.Post("/auth/login", cfg.Users.Login)
	app.Post("/tickets", cfg.Tickets.CreateTicket)

	staff := []fiber.Handler{cfg.AuthMiddleware.Handle, auth.RequireRole(domain.UserRoleAdmin, domain.UserRoleStaff)}
	adminOnly := auth.RequireRole(domain.UserRoleAdmin)

	account := app.Group("/auth", staff...)
	account.Get("/me", cfg.Users.Me)
	account.Post("/password", cfg.Users.ChangePassword)

	tickets := app.Group("/tickets", staff...)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/status", cfg.Tickets.UpdateStatus)
	tickets.Post("/:id/assign", cfg.Tickets.Assign)
	tickets.Post("/:id/priority", cfg.Tickets.UpdatePriority)
	tickets.Post("/:id/notes", cfg.Tickets.AddNote)

	procurement := app.Group("/procurement", staff...)
	procurement.Post("/", cfg.Procurement.Create)
	procurement.Get("/", cfg.Procurement.List)
	procurement.Get("/:id", cfg.Procurement.Get)
	procurement.Put("/:id", cfg.Procurement.Update)
	procurement.Post("/:id/items", cfg.Procurement.AddItem)
	procurement.Delete("/:id/items/:item_id", cfg.Procurement.RemoveItem)
	procurement.Post("/:id/notes", cfg.Procurement.AddComment)
	procurement.Post("/:id/:action", cfg.Procurement.Action)

	approvers := app.Group("/approvers", staff...)
	approvers.Get("/", cfg.Procurement.ListApprovers)
	approvers.Post("/", adminOnly, cfg.Procurement.CreateApprover)
	approvers.Patch("/:id/active", adminOnly, cfg.Procurement.SetApproverActive)

	vehicles := app.Group("/vehicles", staff...)
	vehicles.Get("/", cfg.Fleet.ListVehicles)
	vehicles.Get("/available", cfg.Fleet.AvailableVehicles)
	vehicles.Get("/:id", cfg.Fleet.GetVehicle)
	vehicles.Post("/", cfg.Fleet.CreateVehicle)
	vehicles.Put("/:id", cfg.Fleet.UpdateVehicle)

	trips := app.Group("/trips", staff...)
	trips.Get("/", cfg.Fleet.ListTrips)
	trips.Get("/:id", cfg.Fleet.GetTrip)
	trips.Post("/:id/approve", cfg.Fleet.ApproveTrip)
	trips.Post("/:id/return", cfg.Fleet.ReturnTrip)

	assets := app.Group("/assets", staff...)
	assets.Get("/", cfg.Assets.List)
	assets.Get("/:id", cfg.Assets.Get)
	assets.Post("/", cfg.Assets.Create)
	assets.Put("/:id", cfg.Assets.Update)

	reports := app.Group("/reports", staff...)
	reports.Get("/", cfg.Reports.Catalog)
	reports.Get("/:name", cfg.Reports.Export)

	users := app.Group("/users", append(staff, adminOnly)...)
	users.Get("/", cfg.Users.List)
	users.Post("/", cfg.Users.Create)
	users.Patch("/:id/active", cfg.Users.SetActive)
}

// RegisterFleetlinkRoutes wires the email-link pages. Cookies are encrypted
// with a key derived from secret; an empty secret gets a random key, so
// remembered drivers are forgotten on restart.
func RegisterFleetlinkRoutes(app *fiber.App, h *handlers.FleetlinkHandler, health *handlers.HealthHandler, secret string) {
	app.Get("/health/live", health.Live)
	app.Get("/health/ready", health.Ready)

	app.Use(encryptcookie.New(encryptcookie.Config{Key: CookieKey(secret)}))

	app.Get("/request-trip", h.RequestTripForm)
	app.Post("/request-trip", h.RequestTrip)
	app.Get("/approve", h.Approve)
	app.Get("/return/:trip_id", h.ReturnForm)
	app.Post("/return/:trip_id", h.Return)
}

// CookieKey turns a free-form secret into an AES-256 key for encryptcookie.
func CookieKey(secret string) string {
	if secret == "" {
		return encryptcookie.GenerateKey()
	}
	sum := sha256.Sum256([]byte(secret))
	return base64.StdEncoding.EncodeToString(sum[:])
}
