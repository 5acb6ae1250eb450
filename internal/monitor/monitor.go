package monitor

import (
	"context"
	"fmt"
	"log"
	"time"

	"papertrade/internal/events"
)

// alertTopics are the events that page an operator.
var alertTopics = []events.Event{
	events.EventRiskAlert,
	events.EventStopTriggered,
	events.EventCycleFailed,
	events.EventPersistenceFailure,
}

// Monitor watches events and emits alerts.
type Monitor struct {
	Bus  *events.Bus
	Sink AlertSink
	now  func() time.Time
}

func New(bus *events.Bus, sink AlertSink) *Monitor {
	if sink == nil {
		sink = LogSink{}
	}
	return &Monitor{Bus: bus, Sink: sink, now: time.Now}
}

// Start consumes alert topics until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	if m.Bus == nil || m.Sink == nil {
		log.Println("monitor not fully configured; skipping")
		return
	}
	stream, unsub := m.Bus.SubscribeMany(alertTopics, 50)
	go func() {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case env, ok := <-stream:
				if !ok {
					return
				}
				if env.Event == events.EventPersistenceFailure {
					PersistenceFailures.Inc()
				}
				if err := m.Sink.Send(m.formatAlert(env)); err != nil {
					log.Printf("monitor: alert delivery failed: %v", err)
				}
			}
		}
	}()
}

func (m *Monitor) formatAlert(env events.Envelope) string {
	now := time.Now
	if m.now != nil {
		now = m.now
	}
	return "[" + now().Format(time.RFC3339) + "] " + string(env.Event) + ": " + toString(env.Payload)
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case error:
		return t.Error()
	case fmt.Stringer:
		return t.String()
	case nil:
		return "alert triggered"
	default:
		return fmt.Sprintf("%+v", t)
	}
}
