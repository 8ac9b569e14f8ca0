package mirror

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/regsync/internal/link"
	"github.com/nerrad567/regsync/internal/register"
)

// State is the lifecycle state of an Operation.
type State string

// Operation states.
const (
	StateCreated    State = "created"
	StateDispatched State = "dispatched"
	StateApplied    State = "applied"
	StateFailed     State = "failed"
	StateSkipped    State = "skipped"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateApplied || s == StateFailed || s == StateSkipped
}

// Failure and skip reasons.
const (
	ReasonDisconnected  = "secondary_disconnected"
	ReasonNotConfigured = "secondary_not_configured"
	ReasonUnreachable   = "secondary_unreachable"
	ReasonTimeout       = "timeout"
	ReasonRejected      = "rejected"
	ReasonSuperseded    = "superseded"
)

// ErrInvalidTransition is returned when a state change violates the lifecycle.
var ErrInvalidTransition = errors.New("mirror: invalid state transition")

// Operation is one attempt to copy a register value to the Secondary.
type Operation struct {
	ID          string           `json:"id"`
	Bank        register.Bank    `json:"bank"`
	Address     register.Address `json:"addr"`
	Value       register.Value   `json:"value"`
	State       State            `json:"state"`
	Reason      string           `json:"reason,omitempty"`
	Error       string           `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	CompletedAt time.Time        `json:"completed_at"`
	DurationMS  int64            `json:"duration_ms"`
}

func newOperation(bank register.Bank, addr register.Address, value register.Value) Operation {
	return Operation{
		ID:        uuid.NewString(),
		Bank:      bank,
		Address:   addr,
		Value:     value,
		State:     StateCreated,
		CreatedAt: time.Now().UTC(),
	}
}

// transition moves the operation to next, enforcing the lifecycle.
func (o *Operation) transition(next State) error {
	ok := false
	switch o.State {
	case StateCreated:
		ok = next == StateDispatched || next == StateSkipped
	case StateDispatched:
		ok = next == StateApplied || next == StateFailed
	}
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.State, next)
	}
	o.State = next
	if next.Terminal() {
		o.CompletedAt = time.Now().UTC()
		o.DurationMS = o.CompletedAt.Sub(o.CreatedAt).Milliseconds()
	}
	return nil
}

// Succeeded reports whether the Secondary acknowledged the write.
func (o Operation) Succeeded() bool {
	return o.State == StateApplied
}

// failureReason maps a link error to an Operation reason.
func failureReason(err error) string {
	switch {
	case link.IsTimeout(err):
		return ReasonTimeout
	case errors.Is(err, link.ErrRejected):
		return ReasonRejected
	default:
		return ReasonUnreachable
	}
}
