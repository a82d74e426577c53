package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/resolve-gateway/internal/events"
	"github.com/noah-isme/resolve-gateway/internal/lock"
	"github.com/noah-isme/resolve-gateway/internal/obs"
	"github.com/noah-isme/resolve-gateway/internal/order"
	"github.com/noah-isme/resolve-gateway/internal/resolve"
	"github.com/noah-isme/resolve-gateway/internal/settings"
)

// CaptureClient performs the outbound capture call against the provider.
type CaptureClient interface {
	Capture(ctx context.Context, chargeID, merchantID, apiKey string, sandbox bool) (resolve.CaptureResult, error)
}

// Coordinator performs the remote capture call idempotently and reconciles the
// local order state with the remote result. All failures are absorbed here:
// they are logged and recorded as order notes, and nothing escapes to the
// caller. The buyer-facing and admin-facing flows both rely on that.
type Coordinator struct {
	Store    OrderStore
	Settings *settings.Settings
	Client   CaptureClient
	Locker   lock.Locker
	Events   *events.Bus
	Log      zerolog.Logger
	LockTTL  time.Duration
}

// Run captures the charge for the order. The per-order lock plus the
// compare-and-set in the store bound the effect to at most one successful
// state transition, even when the buyer's return and an admin click race.
func (c *Coordinator) Run(ctx context.Context, chargeID string, o order.Order, manual bool) {
	mode := "auto"
	if manual {
		mode = "manual"
	}
	ctx, span := obs.StartSpan(ctx, "payment.capture",
		attribute.String("gateway.order_id", o.ID.String()),
		attribute.String("gateway.capture_mode", mode))
	defer span.End()
	log := c.Log.With().Str("order_id", o.ID.String()).Str("mode", mode).Logger()

	if strings.TrimSpace(chargeID) == "" {
		log.Error().Msg("cannot find a valid charge id for order")
		obs.CaptureTotal.WithLabelValues(mode, "missing_id").Inc()
		return
	}
	if o.Meta.PaymentCaptured {
		log.Warn().Msg("payment has already been captured for order")
		obs.CaptureTotal.WithLabelValues(mode, "duplicate").Inc()
		return
	}

	ttl := c.LockTTL
	if ttl <= 0 {
		ttl = 20 * time.Second
	}
	err := c.Locker.WithLock(ctx, lock.OrderKey(o.ID), ttl, func(ctx context.Context) error {
		c.captureLocked(ctx, log, chargeID, o.ID, mode, manual)
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("could not acquire capture lock")
		obs.CaptureTotal.WithLabelValues(mode, "lock_error").Inc()
	}
}

func (c *Coordinator) captureLocked(ctx context.Context, log zerolog.Logger, chargeID string, orderID uuid.UUID, mode string, manual bool) {
	// Re-read under the lock: the flag may have flipped while we waited.
	current, err := c.Store.GetOrder(ctx, orderID)
	if err != nil {
		log.Error().Err(err).Msg("could not re-read order before capture")
		obs.CaptureTotal.WithLabelValues(mode, "error").Inc()
		return
	}
	if current.Meta.PaymentCaptured {
		log.Warn().Msg("payment has already been captured for order")
		obs.CaptureTotal.WithLabelValues(mode, "duplicate").Inc()
		return
	}

	creds := c.Settings.Credentials()
	sandbox := c.Settings.TestMode()

	start := time.Now()
	result, err := c.Client.Capture(ctx, chargeID, creds.MerchantID, creds.APIKey, sandbox)
	if err != nil {
		var apiErr *resolve.APIError
		if errors.As(err, &apiErr) {
			log.Error().Str("provider_message", apiErr.Message).Msg("capture rejected by provider")
			c.appendNote(ctx, log, current.ID,
				fmt.Sprintf("Failed to capture the payment! Resolve returned an error message: %s", apiErr.Message))
			obs.CaptureLatency.WithLabelValues("provider_error").Observe(obs.DurationMillis(time.Since(start)))
			obs.CaptureTotal.WithLabelValues(mode, "provider_error").Inc()
			return
		}
		log.Error().Err(err).Msg("capture call failed")
		c.appendNote(ctx, log, current.ID,
			fmt.Sprintf("Failed to capture the payment! Error message: %s", err.Error()))
		obs.CaptureLatency.WithLabelValues("transport_error").Observe(obs.DurationMillis(time.Since(start)))
		obs.CaptureTotal.WithLabelValues(mode, "transport_error").Inc()
		return
	}
	obs.CaptureLatency.WithLabelValues("ok").Observe(obs.DurationMillis(time.Since(start)))

	status := c.Settings.CapturedStatus()
	captured, err := c.Store.MarkCaptured(ctx, current.ID, result.Number, status)
	if err != nil {
		log.Error().Err(err).Msg("could not persist captured state")
		obs.CaptureTotal.WithLabelValues(mode, "error").Inc()
		return
	}
	if !captured {
		log.Warn().Msg("payment was captured concurrently, skipping state transition")
		obs.CaptureTotal.WithLabelValues(mode, "duplicate").Inc()
		return
	}

	c.appendNote(ctx, log, current.ID,
		fmt.Sprintf("The payment was successfully captured! Resolve ID: %s.", result.Number))

	if c.Events != nil {
		payload := map[string]any{
			"order_id": current.ID.String(),
			"number":   result.Number,
			"manual":   manual,
		}
		if _, err := c.Events.Emit(ctx, events.TopicOrderPaymentCaptured, current.ID, payload); err != nil {
			log.Warn().Err(err).Msg("captured event emit failed")
		}
	}

	log.Info().Str("resolve_id", result.Number).Str("status", string(status)).Msg("payment captured")
	obs.CaptureTotal.WithLabelValues(mode, "captured").Inc()
}

func (c *Coordinator) appendNote(ctx context.Context, log zerolog.Logger, orderID uuid.UUID, note string) {
	if err := c.Store.AppendNote(ctx, orderID, note); err != nil {
		log.Error().Err(err).Msg("could not append order note")
	}
}
