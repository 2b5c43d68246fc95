package domain

// Action is a trading recommendation produced by a signal source or the ensemble.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Actions lists every action in tie-break order.
var Actions = []Action{ActionBuy, ActionSell, ActionHold}

// String returns the string representation of Action.
func (a Action) String() string {
	return string(a)
}

// IsValid checks if the action is a valid value.
func (a Action) IsValid() bool {
	return a == ActionBuy || a == ActionSell || a == ActionHold
}
