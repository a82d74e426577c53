package payment

import (
	"context"

	"github.com/google/uuid"

	"github.com/noah-isme/resolve-gateway/internal/order"
)

// OrderStore is the persistence surface the payment flows need. The host
// platform owns the orders; this service only reads and mutates the
// gateway-relevant fields.
type OrderStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (order.Order, error)
	// SetProviderRefs persists the provider identifiers write-once: values
	// already present are never overwritten.
	SetProviderRefs(ctx context.Context, id uuid.UUID, chargeID, loanID string) error
	// MarkCaptured flips the captured flag and applies the post-capture
	// status. Returns false when the order was already captured.
	MarkCaptured(ctx context.Context, id uuid.UUID, ref string, status order.Status) (bool, error)
	StampTestMode(ctx context.Context, id uuid.UUID) error
	AppendNote(ctx context.Context, id uuid.UUID, note string) error
}
