package worker

import (
	"github.com/spec-kit/bug-tracker/internal/service"
)

// StartNotificationWorker registers notification handlers on the bug event
// dispatcher.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}
