package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordStateKeepsOneActiveState(t *testing.T) {
	RecordState("", "Connecting")
	RecordState("Connecting", "Connected")
	if got := testutil.ToFloat64(connectionState.WithLabelValues("Connected")); got != 1 {
		t.Fatalf("Connected gauge %v", got)
	}
	if got := testutil.ToFloat64(connectionState.WithLabelValues("Connecting")); got != 0 {
		t.Fatalf("Connecting gauge %v", got)
	}
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(reconnects)
	RecordReconnectScheduled(2 * time.Second)
	if got := testutil.ToFloat64(reconnects); got != before+1 {
		t.Fatalf("reconnects %v, want %v", got, before+1)
	}

	dropBefore := testutil.ToFloat64(dropped.WithLabelValues("join_room", "disconnected"))
	RecordDropped("join_room", "disconnected")
	if got := testutil.ToFloat64(dropped.WithLabelValues("join_room", "disconnected")); got != dropBefore+1 {
		t.Fatalf("dropped %v", got)
	}

	liveBefore := testutil.ToFloat64(livenessFailures)
	RecordLivenessFailure()
	if got := testutil.ToFloat64(livenessFailures); got != liveBefore+1 {
		t.Fatalf("liveness failures %v", got)
	}
}

func TestRegisterMetricsIsIdempotent(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()
}
