package transport

import (
	"context"

	"github.com/backkem/hap/pkg/accessory"
	"github.com/backkem/hap/pkg/pairing"
)

// Session is a verified connection to one accessory server.
type Session interface {
	// Accessories returns the attribute database. It is fetched once and
	// cached for the lifetime of the session.
	Accessories(ctx context.Context) (*accessory.Accessories, error)

	// GetCharacteristics reads the given characteristics. Per-item
	// failures are reported through Value.Status.
	GetCharacteristics(ctx context.Context, ids []accessory.ID) ([]accessory.Value, error)

	// SetCharacteristics writes values after coercing them against the
	// database. Per-item failures are combined into the returned error.
	SetCharacteristics(ctx context.Context, values map[accessory.ID]any) error

	// Subscribe enables notifications for ids.
	Subscribe(ctx context.Context, ids []accessory.ID) (*Subscription, error)

	// Unsubscribe disables notifications for ids. Subscriptions left
	// without characteristics are closed.
	Unsubscribe(ctx context.Context, ids []accessory.ID) error

	// Pairings returns an exchanger for the pairings admin endpoint,
	// running over this session.
	Pairings() pairing.Exchanger

	// Close tears the session down and closes every subscription.
	Close() error
}

// Event is a characteristic value pushed or polled from an accessory.
type Event struct {
	ID    accessory.ID
	Value any
}
