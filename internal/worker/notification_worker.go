package worker

import (
	"github.com/spec-kit/helpdesk/internal/service"
)

// StartNotificationWorker registers notification handlers on the event
// queue. The dispatcher's background goroutine does the actual work.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}
