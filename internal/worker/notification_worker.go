package worker

import (
	"github.com/spec-kit/opsdesk/internal/events"
	"github.com/spec-kit/opsdesk/internal/service"
)

// StartNotificationWorker registers notification handlers on dispatcher and
// returns the sink the outbox relay uses to feed them.
func StartNotificationWorker(dispatcher events.Dispatcher, notificationService *service.NotificationService) *DispatcherSink {
	if notificationService != nil {
		notificationService.RegisterHandlers()
	}
	return NewDispatcherSink(dispatcher)
}
