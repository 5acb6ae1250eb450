package events

// Event enumerates high-level topics inside the paper-trading core.
type Event string

const (
	EventPriceTick          Event = "price_tick"
	EventTradeExecuted      Event = "trade.executed"
	EventCapitalFlow        Event = "capital.flow"
	EventStopTriggered      Event = "risk.stop_triggered"
	EventRiskAlert          Event = "risk_alert"
	EventCycleCompleted     Event = "cycle.completed"
	EventCycleFailed        Event = "cycle.failed"
	EventPersistenceFailure Event = "persistence_failure"
	EventLedgerReset        Event = "ledger.reset"
)

// All lists every topic, used by stream consumers that want everything.
var All = []Event{
	EventPriceTick,
	EventTradeExecuted,
	EventCapitalFlow,
	EventStopTriggered,
	EventRiskAlert,
	EventCycleCompleted,
	EventCycleFailed,
	EventPersistenceFailure,
	EventLedgerReset,
}

// Envelope tags a payload with its topic when several topics share one channel.
type Envelope struct {
	Event   Event `json:"event"`
	Payload any   `json:"payload"`
}
