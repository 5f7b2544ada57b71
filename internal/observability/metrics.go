package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// NotificationJobsEnqueued counts jobs accepted by the dispatcher queue.
	NotificationJobsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inkwell_notification_jobs_enqueued_total",
		Help: "Total number of notification jobs accepted by the dispatcher",
	}, []string{"kind"})

	// NotificationJobsDropped counts jobs rejected because the queue was full or closed.
	NotificationJobsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inkwell_notification_jobs_dropped_total",
		Help: "Total number of notification jobs dropped before execution",
	}, []string{"kind", "reason"})

	// NotificationJobsFailed counts jobs that returned an error or panicked.
	NotificationJobsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inkwell_notification_jobs_failed_total",
		Help: "Total number of notification jobs that failed",
	}, []string{"kind"})

	// MailDeliveries counts outgoing mail by result.
	MailDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inkwell_mail_deliveries_total",
		Help: "Total number of notification mails by result",
	}, []string{"result"})

	// WebSocketEventsTotal counts realtime events pushed to connected clients.
	WebSocketEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inkwell_websocket_events_total",
		Help: "Total realtime events by type",
	}, []string{"event_type"})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by hub and reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inkwell_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})
)
