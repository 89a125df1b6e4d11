package notification_handler

import (
	"context"
	"time"

	"github.com/fatflowers/rentpay/internal/app/service/eventstore"
)

type Kind string

const (
	KindSTK Kind = "stk"
	KindC2B Kind = "c2b"
)

// NotificationParser reads one provider callback body.
type NotificationParser interface {
	Kind() Kind
	Receipt() string
	Shortcode() string
	// CorrelationID ties a push result to the request that started it.
	CorrelationID() string
	NotificationTime() time.Time
	// Skip reports callbacks that carry no payment, with the reason.
	Skip() (bool, string)
	// Event builds the store input. OwnerID is left for the caller.
	Event(ctx context.Context) (*eventstore.RecordInput, error)
	Data() any
}
