package realtime

import "github.com/phrazzld/taskstream-api/internal/platform/metrics"

// Inbound frame outcome labels.
const (
	outcomeOK            = "ok"
	outcomeProtocolError = "protocol_error"
	outcomeStoreError    = "store_error"
)

func recordSent(msgType string, n int) {
	if n > 0 {
		metrics.WSMessagesSent.WithLabelValues(msgType).Add(float64(n))
	}
}

func recordSendFailures(n int) {
	if n > 0 {
		metrics.WSSendFailures.Add(float64(n))
	}
}

func recordRepliesDropped(n int) {
	if n > 0 {
		metrics.WSRepliesDropped.Add(float64(n))
	}
}

func recordReceived(frameType, outcome string) {
	metrics.WSMessagesReceived.WithLabelValues(frameType, outcome).Inc()
}

func recordClosed(reason string) {
	metrics.WSSessionsClosed.WithLabelValues(reason).Inc()
}
