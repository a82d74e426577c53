package settings_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/resolve-gateway/internal/order"
	"github.com/noah-isme/resolve-gateway/internal/settings"
)

type mapLoader struct {
	values map[string]string
	err    error
}

func (m *mapLoader) LoadSettings(context.Context) (map[string]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	copied := make(map[string]string, len(m.values))
	for k, v := range m.values {
		copied[k] = v
	}
	return copied, nil
}

func newSettings(t *testing.T, values map[string]string) *settings.Settings {
	t.Helper()
	s := settings.New(&mapLoader{values: values}, zerolog.Nop())
	require.NoError(t, s.Load(context.Background()))
	return s
}

func TestCredentialsSwitchInTestMode(t *testing.T) {
	values := map[string]string{
		"webshop-merchant-id":      "live-mid",
		"webshop-api-key":          "live-key",
		"test-webshop-merchant-id": "test-mid",
		"test-webshop-api-key":     "test-key",
	}

	s := newSettings(t, values)
	require.Equal(t, settings.Credentials{MerchantID: "live-mid", APIKey: "live-key"}, s.Credentials())

	values["in-test-mode"] = "true"
	s = newSettings(t, values)
	require.True(t, s.TestMode())
	require.Equal(t, settings.Credentials{MerchantID: "test-mid", APIKey: "test-key"}, s.Credentials())
}

func TestCapturedStatusFallsBackOnUnknownValue(t *testing.T) {
	s := newSettings(t, map[string]string{"captured-status": "shipped-to-mars"})
	require.Equal(t, order.DefaultCapturedStatus, s.CapturedStatus())

	s = newSettings(t, map[string]string{"captured-status": "completed"})
	require.Equal(t, order.StatusCompleted, s.CapturedStatus())

	s = newSettings(t, nil)
	require.Equal(t, order.DefaultCapturedStatus, s.CapturedStatus())
}

func TestPaymentMode(t *testing.T) {
	s := newSettings(t, map[string]string{"payment-mode": "capture"})
	require.True(t, s.IsModeCapture())

	s = newSettings(t, map[string]string{"payment-mode": "authorize"})
	require.False(t, s.IsModeCapture())

	s = newSettings(t, nil)
	require.False(t, s.IsModeCapture())
}

func TestOrderLimits(t *testing.T) {
	s := newSettings(t, map[string]string{
		"order-limit-min": "5000",
		"order-limit-max": "2500000",
	})
	require.Equal(t, int64(5000), s.MinOrderTotal())
	require.Equal(t, int64(2500000), s.MaxOrderTotal())

	s = newSettings(t, map[string]string{"order-limit-min": "not-a-number", "order-limit-max": "-3"})
	require.Zero(t, s.MinOrderTotal())
	require.Zero(t, s.MaxOrderTotal())
}

func TestReloadReplacesSnapshot(t *testing.T) {
	loader := &mapLoader{values: map[string]string{"enabled": "true"}}
	s := settings.New(loader, zerolog.Nop())
	require.NoError(t, s.Load(context.Background()))
	require.True(t, s.Enabled())

	loader.values["enabled"] = "false"
	require.True(t, s.Enabled(), "persisted edits must not take effect before reload")

	require.NoError(t, s.Reload(context.Background()))
	require.False(t, s.Enabled())
}
