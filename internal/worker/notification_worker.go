package worker

import (
	"github.com/fieldops/dispatch-service/internal/events"
	"github.com/fieldops/dispatch-service/internal/service"
)

// StartNotificationWorker registers notification handlers.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}

// StartEventStream forwards every lifecycle event to Kafka. A nil forwarder leaves the
// stream disabled.
func StartEventStream(dispatcher events.Dispatcher, forwarder *events.KafkaForwarder) {
	if dispatcher == nil || forwarder == nil {
		return
	}
	forwarder.Register(dispatcher)
}
