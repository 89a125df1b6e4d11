package dispatch

import (
	"context"
	"errors"

	"github.com/fatflowers/rentpay/internal/models"
)

type OutcomeKind string

const (
	// OutcomeDelivered means the gateway accepted the message.
	OutcomeDelivered OutcomeKind = "delivered"
	// OutcomeQueuedExternally means a link was produced for someone else to
	// send; no delivery confirmation exists.
	OutcomeQueuedExternally OutcomeKind = "queued_externally"
	// OutcomeLogged means no gateway was configured and the message was
	// written to the log instead.
	OutcomeLogged OutcomeKind = "logged"
)

type Outcome struct {
	Kind        OutcomeKind
	ExternalRef string
}

// Channel sends one message to one phone. Implementations must not retry:
// the caller guarantees at-most-once per reminder instance.
type Channel interface {
	Name() models.ReminderChannel
	Send(ctx context.Context, phone, message string) (Outcome, error)
}

var ErrUnknownChannel = errors.New("unknown reminder channel")

// Registry resolves channels by name.
type Registry map[models.ReminderChannel]Channel

func NewRegistry(channels ...Channel) Registry {
	r := make(Registry, len(channels))
	for _, c := range channels {
		r[c.Name()] = c
	}
	return r
}

func (r Registry) Get(name models.ReminderChannel) (Channel, error) {
	c, ok := r[name]
	if !ok {
		return nil, ErrUnknownChannel
	}
	return c, nil
}

// Has reports whether name is a registered channel.
func (r Registry) Has(name models.ReminderChannel) bool {
	_, ok := r[name]
	return ok
}
