package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/opsdesk/internal/auth"
	"github.com/spec-kit/opsdesk/internal/events"
	"github.com/spec-kit/opsdesk/internal/mail"
	"github.com/spec-kit/opsdesk/internal/observability"
)

// NotificationConfig holds recipients and the base URL for emailed links.
type NotificationConfig struct {
	BaseURL      string
	ManagerEmail string
	AdminEmail   string
}

// NotificationService turns lifecycle events into emails. Sending is best
// effort: a failed send is logged and counted, never retried.
type NotificationService struct {
	dispatcher events.Dispatcher
	notifier   mail.Notifier
	signer     *auth.LinkSigner
	logger     *zap.Logger
	metrics    *observability.Metrics
	cfg        NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, notifier mail.Notifier, signer *auth.LinkSigner, logger *zap.Logger, metrics *observability.Metrics, cfg NotificationConfig) *NotificationService {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &NotificationService{
		dispatcher: dispatcher,
		notifier:   notifier,
		signer:     signer,
		logger:     logger,
		metrics:    metrics,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.handleTicketStatusChanged)

	n.dispatcher.Subscribe(events.EventProcurementSubmitted, n.handleProcurementPending)
	n.dispatcher.Subscribe(events.EventProcurementEscalated, n.handleProcurementPending)
	n.dispatcher.Subscribe(events.EventProcurementApproved, n.handleProcurementDecided)
	n.dispatcher.Subscribe(events.EventProcurementRejected, n.handleProcurementDecided)

	n.dispatcher.Subscribe(events.EventTripRequested, n.handleTripRequested)
	n.dispatcher.Subscribe(events.EventTripApproved, n.handleTripApproved)
	n.dispatcher.Subscribe(events.EventTripReturned, n.handleTripReturned)
	n.dispatcher.Subscribe(events.EventTripUnaccounted, n.handleTripUnaccounted)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	var p events.TicketPayload
	if err := event.Decode(&p); err != nil {
		return err
	}
	body := fmt.Sprintf("Hello %s,\n\nWe received your request #%d: %s.\nPriority: %s\n\nIT Helpdesk",
		p.RequesterName, event.EntityID, p.Subject, p.Priority)
	n.send(ctx, p.RequesterEmail, fmt.Sprintf("Ticket #%d received", event.EntityID), body)
	if n.cfg.AdminEmail != "" {
		n.send(ctx, n.cfg.AdminEmail, fmt.Sprintf("New ticket #%d: %s", event.EntityID, p.Subject),
			fmt.Sprintf("From: %s <%s>\nPriority: %s\n\n%s", p.RequesterName, p.RequesterEmail, p.Priority, p.Subject))
	}
	return nil
}

func (n *NotificationService) handleTicketStatusChanged(ctx context.Context, event events.Event) error {
	var p events.TicketPayload
	if err := event.Decode(&p); err != nil {
		return err
	}
	body := fmt.Sprintf("Hello %s,\n\nYour ticket #%d (%s) moved from %s to %s.\n\nIT Helpdesk",
		p.RequesterName, event.EntityID, p.Subject, humanize(string(p.OldStatus)), humanize(string(p.NewStatus)))
	n.send(ctx, p.RequesterEmail, fmt.Sprintf("Ticket #%d is now %s", event.EntityID, humanize(string(p.NewStatus))), body)
	return nil
}

func (n *NotificationService) handleProcurementPending(ctx context.Context, event events.Event) error {
	var p events.ProcurementPayload
	if err := event.Decode(&p); err != nil {
		return err
	}
	body := fmt.Sprintf("Hello %s,\n\nPurchase request %s from %s needs your level %d approval.\nVendor: %s\nTotal: %s\n\nProcurement",
		p.ApproverName, p.RequestNumber, p.RequesterName, p.Level, p.VendorName, p.TotalAmount)
	n.send(ctx, p.ApproverEmail, fmt.Sprintf("Approval needed: %s", p.RequestNumber), body)
	return nil
}

func (n *NotificationService) handleProcurementDecided(ctx context.Context, event events.Event) error {
	var p events.ProcurementPayload
	if err := event.Decode(&p); err != nil {
		return err
	}
	outcome := "approved"
	if event.Type == events.EventProcurementRejected {
		outcome = "rejected"
	}
	body := fmt.Sprintf("Hello %s,\n\nYour purchase request %s (%s, %s) was %s.", p.RequesterName, p.RequestNumber, p.VendorName, p.TotalAmount, outcome)
	if p.Comment != "" {
		body += "\nComment: " + p.Comment
	}
	body += "\n\nProcurement"
	n.send(ctx, p.RequesterEmail, fmt.Sprintf("Purchase request %s %s", p.RequestNumber, outcome), body)
	return nil
}

func (n *NotificationService) handleTripRequested(ctx context.Context, event events.Event) error {
	var p events.TripPayload
	if err := event.Decode(&p); err != nil {
		return err
	}
	body := fmt.Sprintf("%s <%s> requested %s.\nDestination: %s\nPurpose: %s\n\nApprove: %s\n",
		p.RequesterName, p.RequesterEmail, p.Vehicle, p.Destination, p.Purpose, n.ApproveLink(event.EntityID, n.cfg.ManagerEmail))
	n.send(ctx, n.cfg.ManagerEmail, fmt.Sprintf("Vehicle request: %s", p.Vehicle), body)
	return nil
}

func (n *NotificationService) handleTripApproved(ctx context.Context, event events.Event) error {
	var p events.TripPayload
	if err := event.Decode(&p); err != nil {
		return err
	}
	body := fmt.Sprintf("Hello %s,\n\nYour trip to %s in %s was approved by %s.\nStarting mileage: %s\n\nWhen you are back, record the return here: %s\n",
		p.RequesterName, p.Destination, p.Vehicle, p.ApprovedBy, intOrBlank(p.StartingMileage), n.ReturnLink(event.EntityID))
	n.send(ctx, p.RequesterEmail, fmt.Sprintf("Vehicle approved: %s", p.Vehicle), body)
	return nil
}

func (n *NotificationService) handleTripReturned(ctx context.Context, event events.Event) error {
	var p events.TripPayload
	if err := event.Decode(&p); err != nil {
		return err
	}
	body := fmt.Sprintf("%s returned %s.\nMileage: %s -> %s (%s miles)\nReturned at: %s\n",
		p.RequesterName, p.Vehicle, intOrBlank(p.StartingMileage), intOrBlank(p.EndingMileage), intOrBlank(p.MilesDriven), timeOrBlank(p.ReturnTime))
	n.send(ctx, n.cfg.ManagerEmail, fmt.Sprintf("Vehicle returned: %s", p.Vehicle), body)
	return nil
}

func (n *NotificationService) handleTripUnaccounted(ctx context.Context, event events.Event) error {
	var p events.TripPayload
	if err := event.Decode(&p); err != nil {
		return err
	}
	body := fmt.Sprintf("%s has been out with %s since %s and has not been returned.\nDestination: %s\n\nReturn link: %s\n",
		p.RequesterName, p.Vehicle, timeOrBlank(p.DepartureTime), p.Destination, n.ReturnLink(event.EntityID))
	subject := fmt.Sprintf("Vehicle not returned: %s", p.Vehicle)
	admin := n.cfg.AdminEmail
	if admin == "" {
		admin = n.cfg.ManagerEmail
	}
	n.send(ctx, admin, subject, body)
	if n.cfg.ManagerEmail != "" && !strings.EqualFold(n.cfg.ManagerEmail, admin) {
		n.send(ctx, n.cfg.ManagerEmail, subject, body)
	}
	n.send(ctx, p.RequesterEmail, subject, body)
	return nil
}

// ApproveLink builds the signed link the fleet manager clicks to approve.
func (n *NotificationService) ApproveLink(tripID int64, approver string) string {
	token, ts := n.signer.Issue(tripID)
	q := url.Values{}
	q.Set("trip_id", fmt.Sprint(tripID))
	q.Set("ts", fmt.Sprint(ts))
	q.Set("token", token)
	if approver != "" {
		q.Set("approver", approver)
	}
	return n.cfg.BaseURL + "/approve?" + q.Encode()
}

// ReturnLink builds the signed link the driver uses to return a vehicle.
func (n *NotificationService) ReturnLink(tripID int64) string {
	token, ts := n.signer.Issue(tripID)
	q := url.Values{}
	q.Set("ts", fmt.Sprint(ts))
	q.Set("token", token)
	return fmt.Sprintf("%s/return/%d?%s", n.cfg.BaseURL, tripID, q.Encode())
}

func (n *NotificationService) send(ctx context.Context, to, subject, body string) {
	if strings.TrimSpace(to) == "" {
		n.logger.Warn("notification skipped, no recipient", zap.String("subject", subject))
		return
	}
	ok := n.notifier.Notify(ctx, to, subject, body)
	n.metrics.RecordNotification(ok)
}

func humanize(s string) string {
	return strings.ReplaceAll(s, "_", " ")
}

func intOrBlank(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprint(*v)
}

func timeOrBlank(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02 15:04 MST")
}
