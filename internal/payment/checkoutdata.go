package payment

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/resolve-gateway/internal/common"
	"github.com/noah-isme/resolve-gateway/internal/events"
	"github.com/noah-isme/resolve-gateway/internal/obs"
	"github.com/noah-isme/resolve-gateway/internal/order"
	"github.com/noah-isme/resolve-gateway/internal/settings"
)

// Merchant identifies the webshop to the provider and carries the redirect
// targets for the hosted checkout.
type Merchant struct {
	ID         string `json:"id"`
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

type checkoutItem struct {
	Name      string `json:"name"`
	SKU       string `json:"sku"`
	UnitPrice string `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

// CheckoutData is the payload the storefront widget forwards to the provider.
// Amounts are decimal strings per the provider docs.
type CheckoutData struct {
	Merchant       Merchant          `json:"merchant"`
	Shipping       order.Address     `json:"shipping"`
	Billing        order.Address     `json:"billing"`
	OrderNumber    string            `json:"order_number"`
	PONumber       string            `json:"po_number"`
	ShippingAmount string            `json:"shipping_amount"`
	TaxAmount      string            `json:"tax_amount"`
	TotalAmount    string            `json:"total_amount"`
	Metadata       map[string]string `json:"metadata"`
	Customer       order.Customer    `json:"customer"`
	Items          []checkoutItem    `json:"items"`
	Sandbox        bool              `json:"sandbox,omitempty"`

	// AutoRedirect tells the storefront widget to forward the buyer to the
	// hosted checkout without an extra click. The provider ignores it.
	AutoRedirect bool `json:"auto_redirect,omitempty"`
}

// Builder assembles the provider checkout payload for an order and applies the
// eligibility filters configured on the gateway.
type Builder struct {
	Store          OrderStore
	Settings       *settings.Settings
	Events         *events.Bus
	PublicBaseURL  string
	GatewayVersion string
	Log            zerolog.Logger
}

// Eligible reports whether this payment method may be offered for the order.
// The reason is a short machine-readable tag used in error details.
func (b *Builder) Eligible(o order.Order) (bool, string) {
	if min := b.Settings.MinOrderTotal(); min > 0 && o.Total < min {
		return false, "below_minimum"
	}
	if max := b.Settings.MaxOrderTotal(); max > 0 && o.Total > max {
		return false, "above_maximum"
	}
	if b.Settings.BackorderDisabled() && o.HasBackorderedItems() {
		return false, "backordered_items"
	}
	return true, ""
}

// Build produces the checkout payload. Any failure yields a tagged error and
// no partial payload.
func (b *Builder) Build(ctx context.Context, orderID uuid.UUID) (CheckoutData, error) {
	fail := func(err error) (CheckoutData, error) {
		obs.CheckoutDataTotal.WithLabelValues("error").Inc()
		return CheckoutData{}, err
	}

	if !b.Settings.Enabled() {
		return fail(common.NewAppError("GATEWAY_DISABLED", "payment method is not available", http.StatusConflict, nil))
	}

	o, err := b.Store.GetOrder(ctx, orderID)
	if err != nil {
		if err == order.ErrNotFound {
			return fail(common.NewAppError("ORDER_NOT_FOUND", "order not found", http.StatusNotFound, err))
		}
		return fail(common.NewAppError("INTERNAL", "could not load order", http.StatusInternalServerError, err))
	}
	if o.PaymentMethod != order.PaymentMethodResolve {
		return fail(common.NewAppError("WRONG_GATEWAY", "order is not paid through this gateway", http.StatusConflict, nil))
	}
	if ok, reason := b.Eligible(o); !ok {
		return fail(common.NewAppError("ELIGIBILITY", "payment method is not available for this order", http.StatusConflict, nil).
			WithDetails(map[string]string{"reason": reason}))
	}

	b.emit(ctx, events.TopicCheckoutRenderBefore, o)

	sandbox := b.Settings.TestMode()
	data := CheckoutData{
		Merchant: Merchant{
			ID:         b.Settings.Credentials().MerchantID,
			SuccessURL: b.returnURL(o.ID),
			CancelURL:  b.cancelURL(o.ID),
		},
		Shipping:       o.Shipping,
		Billing:        o.Billing,
		OrderNumber:    o.Number,
		PONumber:       "",
		ShippingAmount: centsToDecimal(o.ShippingTotal),
		TaxAmount:      centsToDecimal(o.TaxTotal),
		TotalAmount:    centsToDecimal(o.Total),
		Metadata: map[string]string{
			"platform_resolve": b.GatewayVersion,
			"platform_type":    "resolve-gateway",
		},
		Customer:       o.Customer,
		Sandbox:        sandbox,
		AutoRedirect:   b.Settings.AutoRedirect(),
	}
	data.Items = make([]checkoutItem, 0, len(o.Items))
	for _, it := range o.Items {
		data.Items = append(data.Items, checkoutItem{
			Name:      it.Name,
			SKU:       it.SKU,
			UnitPrice: centsToDecimal(it.UnitPrice),
			Quantity:  it.Quantity,
		})
	}

	if sandbox {
		if err := b.Store.StampTestMode(ctx, o.ID); err != nil {
			b.Log.Warn().Err(err).Str("order_id", o.ID.String()).Msg("could not stamp test mode on order")
		}
	}

	b.emit(ctx, events.TopicCheckoutRenderAfter, o)
	obs.CheckoutDataTotal.WithLabelValues("ok").Inc()
	return data, nil
}

func (b *Builder) emit(ctx context.Context, topic string, o order.Order) {
	if b.Events == nil {
		return
	}
	if _, err := b.Events.Emit(ctx, topic, o.ID, map[string]string{"order_id": o.ID.String()}); err != nil {
		b.Log.Warn().Err(err).Str("topic", topic).Msg("event emit failed")
	}
}

func (b *Builder) returnURL(orderID uuid.UUID) string {
	return fmt.Sprintf("%s/api/v1/payments/resolve/return?order_id=%s",
		strings.TrimRight(b.PublicBaseURL, "/"), url.QueryEscape(orderID.String()))
}

func (b *Builder) cancelURL(orderID uuid.UUID) string {
	return fmt.Sprintf("%s/checkout/cancel?order_id=%s",
		strings.TrimRight(b.PublicBaseURL, "/"), url.QueryEscape(orderID.String()))
}

func centsToDecimal(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
