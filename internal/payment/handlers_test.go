package payment_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/resolve-gateway/internal/payment"
)

func newHandlers(t *testing.T, store *memStore, values map[string]string, srv *httptest.Server) payment.Handlers {
	t.Helper()
	if values == nil {
		values = map[string]string{}
	}
	if _, ok := values["enabled"]; !ok {
		values["enabled"] = "true"
	}
	cfg := newSettings(t, values)
	coord := newCoordinator(t, store, cfg, srv, nil)
	return payment.Handlers{
		Builder: &payment.Builder{
			Store:          store,
			Settings:       cfg,
			PublicBaseURL:  "https://shop.example.com",
			GatewayVersion: "1.0.0",
			Log:            zerolog.Nop(),
		},
		Processor: &payment.Processor{
			Store:    store,
			Settings: cfg,
			Capture:  coord,
			Log:      zerolog.Nop(),
		},
		Capture:  coord,
		Store:    store,
		Settings: cfg,
		Validate: validator.New(),
		Log:      zerolog.Nop(),
	}
}

func newRouter(h payment.Handlers) *chi.Mux {
	r := chi.NewRouter()
	r.Post("/api/v1/checkout/data", h.CheckoutData)
	r.Get("/api/v1/payments/resolve/return", h.Return)
	r.Post("/api/v1/admin/orders/{orderId}/capture", h.AdminCapture)
	r.Post("/api/v1/admin/settings", h.UpdateSettings)
	r.Post("/api/v1/admin/settings/reload", h.ReloadSettings)
	return r
}

func TestCheckoutDataEndpoint(t *testing.T) {
	o := resolveOrder(12500)
	var calls atomic.Int64
	srv := captureServer(t, &calls, `{}`, http.StatusOK)
	router := newRouter(newHandlers(t, newMemStore(o), nil, srv))

	t.Run("success", func(t *testing.T) {
		body := strings.NewReader(`{"orderId":"` + o.ID.String() + `"}`)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/data", body)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		var data payment.CheckoutData
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &data))
		require.Equal(t, "125.00", data.TotalAmount)
	})

	t.Run("invalid order id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/data", strings.NewReader(`{"orderId":"nope"}`))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		require.Equal(t, http.StatusBadRequest, rr.Code)
		require.Contains(t, rr.Body.String(), "VALIDATION")
	})
}

func TestReturnEndpointAlwaysOK(t *testing.T) {
	o := resolveOrder(10000)
	store := newMemStore(o)
	var calls atomic.Int64
	srv := captureServer(t, &calls, `{"number":"X123"}`, http.StatusOK)
	router := newRouter(newHandlers(t, store, map[string]string{"payment-mode": "capture"}, srv))

	do := func(target string) int {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
		return rr.Code
	}

	require.Equal(t, http.StatusOK, do("/api/v1/payments/resolve/return?order_id="+o.ID.String()+"&charge_id=CH1"))
	require.Equal(t, http.StatusOK, do("/api/v1/payments/resolve/return?order_id=garbage"))
	require.Equal(t, http.StatusOK, do("/api/v1/payments/resolve/return"))

	got, err := store.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	require.Equal(t, "CH1", got.Meta.ChargeID)
	require.True(t, got.Meta.PaymentCaptured, "capture mode must auto-capture on return")
	require.Equal(t, int64(1), calls.Load())
}

func TestAdminCaptureEndpoint(t *testing.T) {
	t.Run("captures the order", func(t *testing.T) {
		o := resolveOrder(10000)
		o.Meta.ChargeID = "CH1"
		store := newMemStore(o)
		var calls atomic.Int64
		srv := captureServer(t, &calls, `{"number":"X123"}`, http.StatusOK)
		router := newRouter(newHandlers(t, store, nil, srv))

		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/orders/"+o.ID.String()+"/capture", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		require.Equal(t, http.StatusAccepted, rr.Code)
		var resp struct {
			Captured   bool   `json:"captured"`
			PaymentRef string `json:"paymentRef"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		require.True(t, resp.Captured)
		require.Equal(t, "X123", resp.PaymentRef)
		require.Equal(t, int64(1), calls.Load())
	})

	t.Run("already captured is a no-op", func(t *testing.T) {
		o := resolveOrder(10000)
		o.Meta.ChargeID = "CH1"
		o.Meta.PaymentCaptured = true
		store := newMemStore(o)
		var calls atomic.Int64
		srv := captureServer(t, &calls, `{"number":"X123"}`, http.StatusOK)
		router := newRouter(newHandlers(t, store, nil, srv))

		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/orders/"+o.ID.String()+"/capture", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		require.Equal(t, http.StatusAccepted, rr.Code)
		require.Zero(t, calls.Load(), "no outbound call for an already captured order")
	})

	t.Run("unknown order", func(t *testing.T) {
		var calls atomic.Int64
		srv := captureServer(t, &calls, `{}`, http.StatusOK)
		router := newRouter(newHandlers(t, newMemStore(), nil, srv))

		o := resolveOrder(10000)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/orders/"+o.ID.String()+"/capture", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		require.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestUpdateSettingsEndpoint(t *testing.T) {
	loader := settingsLoader{"enabled": "true", "payment-mode": "authorize"}
	cfg := newSettings(t, loader)
	router := newRouter(payment.Handlers{
		SettingsStore: loader,
		Settings:      cfg,
		Log:           zerolog.Nop(),
	})

	t.Run("edits stay inert until reload", func(t *testing.T) {
		body := strings.NewReader(`{"payment-mode":"capture"}`)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/admin/settings", body))
		require.Equal(t, http.StatusOK, rr.Code)
		require.Contains(t, rr.Body.String(), "reloadRequired")
		require.False(t, cfg.IsModeCapture(), "edit must not apply before reload")

		rr = httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/admin/settings/reload", nil))
		require.Equal(t, http.StatusOK, rr.Code)
		require.True(t, cfg.IsModeCapture())
	})

	t.Run("unknown setting is rejected", func(t *testing.T) {
		body := strings.NewReader(`{"not-a-setting":"x"}`)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/admin/settings", body))
		require.Equal(t, http.StatusBadRequest, rr.Code)
		require.Contains(t, rr.Body.String(), "VALIDATION")
	})
}

func TestReloadSettingsEndpoint(t *testing.T) {
	var calls atomic.Int64
	srv := captureServer(t, &calls, `{}`, http.StatusOK)
	router := newRouter(newHandlers(t, newMemStore(), nil, srv))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/settings/reload", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "reloaded")
}
