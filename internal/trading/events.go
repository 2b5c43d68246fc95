package trading

import (
	"time"

	"airdrop-optimizer/internal/domain"
)

// EventType classifies agent events.
type EventType string

const (
	EventStatus EventType = "status" // lifecycle transition
	EventTrade  EventType = "trade"  // order executed or rejected
	EventHold   EventType = "hold"   // iteration without an order
	EventError  EventType = "error"  // iteration fault, loop backing off
)

// Event is emitted by an agent after every observable step.
type Event struct {
	Type     EventType            `json:"type"`
	AgentID  string               `json:"agent_id"`
	Time     time.Time            `json:"time"`
	Snapshot domain.AgentSnapshot `json:"snapshot"`
	Trade    *domain.Trade        `json:"trade,omitempty"`
	Action   domain.Action        `json:"action,omitempty"` // ensemble action, hold events only
	Error    string               `json:"error,omitempty"`
}

// EventSink receives agent events. Publish must not block for long; it is
// called from the agent's loop.
type EventSink interface {
	Publish(e Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(e Event)

func (f EventSinkFunc) Publish(e Event) { f(e) }
