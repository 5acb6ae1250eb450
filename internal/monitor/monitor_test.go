package monitor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"papertrade/internal/events"
)

type captureSink struct {
	mu   sync.Mutex
	msgs []string
}

func (c *captureSink) Send(message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, message)
	return nil
}

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func TestMonitorForwardsAlerts(t *testing.T) {
	bus := events.NewBus()
	sink := &captureSink{}
	m := New(bus, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	bus.Publish(events.EventPersistenceFailure, errors.New("disk full"))
	bus.Publish(events.EventTradeExecuted, "ignored")

	deadline := time.Now().Add(2 * time.Second)
	for sink.count() < 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if sink.count() != 1 {
		t.Fatalf("expected 1 alert, got %d", sink.count())
	}
	sink.mu.Lock()
	msg := sink.msgs[0]
	sink.mu.Unlock()
	if !strings.Contains(msg, "persistence_failure: disk full") {
		t.Fatalf("unexpected alert text %q", msg)
	}
}

type limitHit string

func (l limitHit) String() string { return "bitcoin: " + string(l) }

func TestFormatAlertUsesStringer(t *testing.T) {
	m := New(events.NewBus(), &captureSink{})
	msg := m.formatAlert(events.Envelope{Event: events.EventRiskAlert, Payload: limitHit("daily loss limit reached")})
	if !strings.HasSuffix(msg, "risk_alert: bitcoin: daily loss limit reached") {
		t.Fatalf("unexpected alert text %q", msg)
	}
}

func TestSystemMetricsSnapshot(t *testing.T) {
	m := NewSystemMetrics()
	m.IncrementCycles(false)
	m.IncrementCycles(true)
	m.IncrementTrades()
	m.CycleLatency.Record(5)
	m.CycleLatency.Record(15)

	snap := m.GetSnapshot()
	if snap.CyclesRun != 2 || snap.CyclesFailed != 1 || snap.TradesSimulated != 1 {
		t.Fatalf("unexpected counters: %+v", snap)
	}
	if snap.CycleLatency.Count != 2 || snap.CycleLatency.Avg != 10 {
		t.Fatalf("unexpected latency stats: %+v", snap.CycleLatency)
	}
}

func TestLatencyHistogramWindow(t *testing.T) {
	h := NewLatencyHistogram(3)
	for _, v := range []float64{1, 2, 3, 4} {
		h.Record(v)
	}
	st := h.Stats()
	if st.Count != 3 || st.Min != 2 || st.Max != 4 {
		t.Fatalf("window not sliding: %+v", st)
	}
}
