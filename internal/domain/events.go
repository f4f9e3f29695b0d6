package domain

import (
	"encoding/json"
	"time"
)

// Event types published on the signal bus. Events are emitted only after the
// corresponding datastore write commits; consumers (ws hub, notifier, the web
// frontend) must treat them as notifications, not as the source of truth.
const (
	EventBalanceChanged      = "balance_changed"
	EventOrderFilled         = "order_filled"
	EventPoolSettled         = "pool_settled"
	EventRoundOpened         = "round_opened"
	EventRoundPaused         = "round_paused"
	EventMarketResolved      = "market_resolved"
	EventReconciliationAlert = "reconciliation_alert"
)

// Bus channels. The ws hub subscribes to the wildcard and re-broadcasts to
// browser clients.
const (
	ChannelEvents   = "ch:settle:*"
	ChannelBalances = "ch:settle:balances"
	ChannelPools    = "ch:settle:pools"
	ChannelMarkets  = "ch:settle:markets"
	ChannelAlerts   = "ch:settle:alerts"
	ChannelPrices   = "ch:settle:prices"
)

// Event is the envelope for every signal-bus message.
type Event struct {
	Type    string         `json:"type"`
	At      time.Time      `json:"at"`
	UserID  string         `json:"user_id,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// NewEvent builds an event stamped with the current UTC time.
func NewEvent(typ, userID string, payload map[string]any) Event {
	return Event{Type: typ, At: time.Now().UTC(), UserID: userID, Payload: payload}
}

// Marshal encodes the event as JSON for publishing. Errors are impossible for
// the payload types the core emits, so the result of a failed marshal is nil.
func (e Event) Marshal() []byte {
	b, err := json.Marshal(e)
	if err != nil {
		return nil
	}
	return b
}
