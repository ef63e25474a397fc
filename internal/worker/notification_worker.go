package worker

import (
	"github.com/spec-kit/change-service/internal/service"
)

// StartNotificationWorker subscribes the notification service to the change
// and approval event streams. Runs in-process: handlers execute on the
// publisher's goroutine, so there is nothing to stop on shutdown.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}
