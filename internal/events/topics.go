package events

// Topic constants for domain events emitted by the gateway. They mirror the
// extensibility hooks external integrations subscribe to.
const (
	TopicCheckoutRenderBefore   = "checkout.render.before"
	TopicCheckoutRenderAfter    = "checkout.render.after"
	TopicOrderPaymentAuthorized = "order.payment_authorized"
	TopicOrderPaymentCaptured   = "order.payment_captured"
)

// DefaultTopics returns the canonical list of topics notifiers may subscribe to.
func DefaultTopics() []string {
	return []string{
		TopicCheckoutRenderBefore,
		TopicCheckoutRenderAfter,
		TopicOrderPaymentAuthorized,
		TopicOrderPaymentCaptured,
	}
}
