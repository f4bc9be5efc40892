package observability

import (
	"testing"
	"time"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()

	RecordSendAttempt("tcp://localhost:10123")
	RecordAttemptTimeout("tcp://localhost:10123")
	RecordRun("tcp://localhost:10123", "delivered", 12*time.Millisecond)
	RecordRun("tcp://localhost:10123", "exhausted", 9*time.Second)
}
