package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/resolve-gateway/internal/events"
	"github.com/noah-isme/resolve-gateway/internal/obs"
	"github.com/noah-isme/resolve-gateway/internal/order"
	"github.com/noah-isme/resolve-gateway/internal/settings"
)

// Processor interprets the buyer's return from the provider checkout and
// records the outcome exactly once per order.
type Processor struct {
	Store    OrderStore
	Settings *settings.Settings
	Capture  *Coordinator
	Events   *events.Bus
	Log      zerolog.Logger
}

// ProcessReturn handles the return redirect. Per the provider contract any
// arrival on the return URL means the payment was authorized; no identifier or
// signature accompanies the redirect to prove it. That trust assumption is
// inherited from the provider documentation, which is why the endpoint never
// reports failure to the buyer.
//
// All side effects are order mutation, an audit note, an event, and a possible
// capture invocation. There is no return value; a missing order is a silent
// miss because the identifier may belong to another gateway.
func (p *Processor) ProcessReturn(ctx context.Context, orderID uuid.UUID, chargeID, loanID string) {
	ctx, span := obs.StartSpan(ctx, "payment.return",
		attribute.String("gateway.order_id", orderID.String()))
	defer span.End()
	log := p.Log.With().Str("order_id", orderID.String()).Logger()

	o, err := p.Store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			log.Debug().Msg("return callback for unknown order, ignoring")
			obs.CallbackTotal.WithLabelValues("unknown_order").Inc()
			return
		}
		log.Error().Err(err).Msg("could not load order for return callback")
		obs.CallbackTotal.WithLabelValues("error").Inc()
		return
	}
	if o.PaymentMethod != order.PaymentMethodResolve {
		log.Debug().Str("payment_method", o.PaymentMethod).Msg("order not paid through this gateway, ignoring")
		obs.CallbackTotal.WithLabelValues("other_gateway").Inc()
		return
	}
	if o.Meta.ChargeID != "" || o.Meta.LoanID != "" {
		// Identifiers already saved, bail early. First callback wins.
		log.Debug().Msg("return callback replay, identifiers already recorded")
		obs.CallbackTotal.WithLabelValues("replay").Inc()
		return
	}

	note := "Order successfully authorized by the Resolve payment system"
	if chargeID != "" {
		note += fmt.Sprintf(", charge ID: %s", chargeID)
	}
	if loanID != "" {
		note += fmt.Sprintf(", loan ID: %s", loanID)
	}

	if chargeID != "" || loanID != "" {
		if err := p.Store.SetProviderRefs(ctx, o.ID, chargeID, loanID); err != nil {
			log.Error().Err(err).Msg("could not persist provider identifiers")
			obs.CallbackTotal.WithLabelValues("error").Inc()
			return
		}
	}
	if err := p.Store.AppendNote(ctx, o.ID, note); err != nil {
		log.Error().Err(err).Msg("could not append authorization note")
	}

	log.Info().Str("charge_id", chargeID).Str("loan_id", loanID).Msg("order authorized by provider")
	obs.CallbackTotal.WithLabelValues("authorized").Inc()

	if p.Events != nil {
		payload := map[string]string{
			"order_id":  o.ID.String(),
			"charge_id": chargeID,
			"loan_id":   loanID,
		}
		if _, err := p.Events.Emit(ctx, events.TopicOrderPaymentAuthorized, o.ID, payload); err != nil {
			log.Warn().Err(err).Msg("authorized event emit failed")
		}
	}

	if p.Settings.IsModeCapture() && p.Capture != nil {
		ref := chargeID
		if ref == "" {
			ref = loanID
		}
		o.Meta.ChargeID = chargeID
		o.Meta.LoanID = loanID
		p.Capture.Run(ctx, ref, o, false)
	}
}
