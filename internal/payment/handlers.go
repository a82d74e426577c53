package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/resolve-gateway/internal/common"
	"github.com/noah-isme/resolve-gateway/internal/order"
	"github.com/noah-isme/resolve-gateway/internal/settings"
)

// CheckoutDataRequest is the storefront's request for the provider payload.
type CheckoutDataRequest struct {
	OrderID string `json:"orderId" validate:"required,uuid4"`
}

// SettingsStore persists gateway settings edits.
type SettingsStore interface {
	UpsertSetting(ctx context.Context, name, value string) error
}

// Handlers exposes the payment endpoints.
type Handlers struct {
	Builder       *Builder
	Processor     *Processor
	Capture       *Coordinator
	Store         OrderStore
	SettingsStore SettingsStore
	Settings      *settings.Settings
	Validate      *validator.Validate
	Log           zerolog.Logger
}

// CheckoutData serves POST /api/v1/checkout/data.
func (h Handlers) CheckoutData(w http.ResponseWriter, r *http.Request) {
	var req CheckoutDataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION", "orderId must be a valid uuid", nil)
			return
		}
	}
	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "orderId must be a valid uuid", nil)
		return
	}

	data, err := h.Builder.Build(r.Context(), orderID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, data)
}

// Return serves GET /api/v1/payments/resolve/return. The buyer always lands on
// a confirmation regardless of the outcome, so the endpoint answers 200 even
// for unknown or malformed identifiers.
func (h Handlers) Return(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	rawOrderID := strings.TrimSpace(query.Get("order_id"))
	chargeID := strings.TrimSpace(query.Get("charge_id"))
	loanID := strings.TrimSpace(query.Get("loan_id"))

	if orderID, err := uuid.Parse(rawOrderID); err == nil {
		h.Processor.ProcessReturn(r.Context(), orderID, chargeID, loanID)
	} else {
		h.Log.Debug().Str("order_id", rawOrderID).Msg("return callback with unparsable order id")
	}

	common.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// AdminCapture serves POST /api/v1/admin/orders/{orderId}/capture. The capture
// outcome is reflected in the order state, not in the response status: a
// failed attempt still answers 202 and the admin retries by resubmitting.
func (h Handlers) AdminCapture(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "orderId must be a valid uuid", nil)
		return
	}

	o, err := h.Store.GetOrder(r.Context(), orderID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if o.PaymentMethod != order.PaymentMethodResolve {
		common.JSONError(w, http.StatusConflict, "WRONG_GATEWAY", "order is not paid through this gateway", nil)
		return
	}

	log := h.Log
	if sub, ok := common.AdminSubject(r.Context()); ok {
		log = log.With().Str("admin", sub).Logger()
	}
	log.Info().Str("order_id", orderID.String()).Msg("manual capture requested")

	h.Capture.Run(r.Context(), o.ChargeRef(), o, true)

	current, err := h.Store.GetOrder(r.Context(), orderID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusAccepted, map[string]any{
		"orderId":    current.ID.String(),
		"captured":   current.Meta.PaymentCaptured,
		"paymentRef": current.Meta.PaymentRef,
		"status":     string(current.Status),
	})
}

// UpdateSettings serves POST /api/v1/admin/settings. Edits are persisted but
// stay inert until an explicit reload, so a half-finished batch of changes is
// never picked up by in-flight requests.
func (h Handlers) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if len(req) == 0 {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "no settings provided", nil)
		return
	}
	for name := range req {
		if !settings.KnownKey(name) {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION", "unknown setting", map[string]any{"name": name})
			return
		}
	}
	for name, value := range req {
		if err := h.SettingsStore.UpsertSetting(r.Context(), name, value); err != nil {
			h.Log.Error().Err(err).Str("name", name).Msg("persist setting failed")
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "could not persist settings", nil)
			return
		}
	}
	common.JSON(w, http.StatusOK, map[string]any{"status": "stored", "reloadRequired": true})
}

// ReloadSettings serves POST /api/v1/admin/settings/reload.
func (h Handlers) ReloadSettings(w http.ResponseWriter, r *http.Request) {
	if err := h.Settings.Reload(r.Context()); err != nil {
		h.Log.Error().Err(err).Msg("settings reload failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "could not reload settings", nil)
		return
	}
	h.Log.Info().Msg("gateway settings reloaded")
	common.JSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

func (h Handlers) writeError(w http.ResponseWriter, err error) {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}
		common.JSONError(w, status, appErr.Code, appErr.Message, appErr.Details)
		return
	}
	if errors.Is(err, order.ErrNotFound) {
		common.JSONError(w, http.StatusNotFound, "ORDER_NOT_FOUND", "order not found", nil)
		return
	}
	h.Log.Error().Err(err).Msg("request failed")
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
}
