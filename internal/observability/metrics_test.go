package observability

import (
	"fmt"
	"testing"
	"time"

	"github.com/danmuck/cqc/internal/protocol"
	"github.com/danmuck/cqc/internal/protocol/hdr"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordMessageCounts(t *testing.T) {
	before := testutil.ToFloat64(messages.WithLabelValues("client", DirectionReceived, hdr.TpNewOK.String()))
	RecordMessage("client", DirectionReceived, hdr.TpNewOK)
	RecordMessage("client", DirectionReceived, hdr.TpNewOK)
	after := testutil.ToFloat64(messages.WithLabelValues("client", DirectionReceived, hdr.TpNewOK.String()))
	if after-before != 2 {
		t.Fatalf("expected 2 increments, got %v", after-before)
	}
}

func TestObserveWaitCountsFailures(t *testing.T) {
	before := testutil.ToFloat64(failures.WithLabelValues("recv", "timeout"))
	ObserveWait("recv", 10*time.Millisecond, fmt.Errorf("%w: read header", protocol.ErrTimeout))
	ObserveWait("recv", time.Millisecond, nil)
	after := testutil.ToFloat64(failures.WithLabelValues("recv", "timeout"))
	if after-before != 1 {
		t.Fatalf("expected 1 failure, got %v", after-before)
	}
}

func TestErrorClass(t *testing.T) {
	if got := ErrorClass(fmt.Errorf("%w: x", protocol.ErrUnexpectedNotification)); got != "unexpected_notification" {
		t.Fatalf("unexpected class %q", got)
	}
	if got := ErrorClass(nil); got != "none" {
		t.Fatalf("unexpected class %q", got)
	}
}
