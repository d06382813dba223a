package notify

import (
	"context"

	"github.com/aditya/haggle/internal/models"
)

// Sink delivers negotiation side effects to one downstream system.
type Sink interface {
	Name() string
	Notify(ctx context.Context, n models.Notification) error
	Hint(ctx context.Context, h models.ConversationHint) error
}

// Dispatcher hands the side effects of a persisted transition to the
// notification sinks. Dispatch never blocks the caller and never fails it.
type Dispatcher interface {
	Dispatch(outcome models.Outcome)
}

// DispatcherFunc adapts a plain function to Dispatcher.
type DispatcherFunc func(outcome models.Outcome)

func (f DispatcherFunc) Dispatch(outcome models.Outcome) { f(outcome) }

// Nop discards everything.
var Nop Dispatcher = DispatcherFunc(func(models.Outcome) {})
