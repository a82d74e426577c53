package settings

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/noah-isme/resolve-gateway/internal/order"
)

// Setting names as persisted in gateway_settings. Credentials come in live and
// test variants; Get resolves the right one based on the test mode flag.
const (
	KeyEnabled          = "enabled"
	KeyInTestMode       = "in-test-mode"
	KeyPaymentMode      = "payment-mode"
	KeyCapturedStatus   = "captured-status"
	KeyMerchantID       = "webshop-merchant-id"
	KeyAPIKey           = "webshop-api-key"
	KeyOrderLimitMin    = "order-limit-min"
	KeyOrderLimitMax    = "order-limit-max"
	KeyBackorderDisable = "backorder-disable"
	KeyAutoRedirect     = "auto-redirect"
)

// Payment modes.
const (
	ModeAuthorize = "authorize"
	ModeCapture   = "capture"
)

// KnownKey reports whether name is a recognised setting, including the
// test-environment credential variants.
func KnownKey(name string) bool {
	switch name {
	case KeyEnabled, KeyInTestMode, KeyPaymentMode, KeyCapturedStatus,
		KeyMerchantID, KeyAPIKey, KeyOrderLimitMin, KeyOrderLimitMax,
		KeyBackorderDisable, KeyAutoRedirect,
		"test-" + KeyMerchantID, "test-" + KeyAPIKey:
		return true
	}
	return false
}

// Loader fetches the raw settings map from persistent storage.
type Loader interface {
	LoadSettings(ctx context.Context) (map[string]string, error)
}

// Credentials are the merchant id / API key pair for the active environment.
type Credentials struct {
	MerchantID string
	APIKey     string
}

// Settings is an in-memory snapshot of the gateway configuration. It is loaded
// once at startup and only changes through an explicit Reload; persisted edits
// never take effect implicitly.
type Settings struct {
	loader Loader
	log    zerolog.Logger

	mu     sync.RWMutex
	values map[string]string
}

func New(loader Loader, log zerolog.Logger) *Settings {
	return &Settings{loader: loader, log: log, values: map[string]string{}}
}

// Load populates the snapshot from storage. Reload is an alias used by the
// admin endpoint; both replace the snapshot wholesale.
func (s *Settings) Load(ctx context.Context) error {
	values, err := s.loader.LoadSettings(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.values = values
	s.mu.Unlock()
	return nil
}

// Reload re-reads all settings from storage.
func (s *Settings) Reload(ctx context.Context) error {
	return s.Load(ctx)
}

// Get returns the raw value for name. With testAware true the lookup switches
// to the "test-" variant of the setting while test mode is on.
func (s *Settings) Get(name string, testAware bool) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if testAware && s.boolValueLocked(KeyInTestMode) {
		name = "test-" + name
	}
	return strings.TrimSpace(s.values[name])
}

// Enabled reports whether the gateway accepts payments at all.
func (s *Settings) Enabled() bool {
	return s.boolValue(KeyEnabled)
}

// TestMode reports whether the sandbox environment is active.
func (s *Settings) TestMode() bool {
	return s.boolValue(KeyInTestMode)
}

// IsModeCapture reports whether authorization callbacks should immediately
// capture. Anything other than "capture" means authorize-only.
func (s *Settings) IsModeCapture() bool {
	return s.Get(KeyPaymentMode, false) == ModeCapture
}

// AutoRedirect reports whether the storefront should forward the buyer to the
// provider checkout without an intermediate page.
func (s *Settings) AutoRedirect() bool {
	return s.boolValue(KeyAutoRedirect)
}

// BackorderDisabled reports whether carts containing backordered items are
// excluded from this payment method.
func (s *Settings) BackorderDisabled() bool {
	return s.boolValue(KeyBackorderDisable)
}

// Credentials returns the merchant credentials for the active environment.
func (s *Settings) Credentials() Credentials {
	return Credentials{
		MerchantID: s.Get(KeyMerchantID, true),
		APIKey:     s.Get(KeyAPIKey, true),
	}
}

// CapturedStatus returns the status applied to an order after a successful
// capture. An unknown configured value falls back to the default and logs a
// warning rather than failing the capture.
func (s *Settings) CapturedStatus() order.Status {
	raw := s.Get(KeyCapturedStatus, false)
	if raw == "" {
		return order.DefaultCapturedStatus
	}
	st := order.Status(raw)
	if !order.ValidStatus(st) {
		s.log.Warn().Str("captured_status", raw).
			Msg("configured captured status is not a known order status, falling back to processing")
		return order.DefaultCapturedStatus
	}
	return st
}

// MinOrderTotal returns the configured minimum order total in cents, 0 when
// unset or unparsable.
func (s *Settings) MinOrderTotal() int64 {
	return s.int64Value(KeyOrderLimitMin)
}

// MaxOrderTotal returns the configured maximum order total in cents, 0 when
// unset or unparsable. Zero disables the upper bound.
func (s *Settings) MaxOrderTotal() int64 {
	return s.int64Value(KeyOrderLimitMax)
}

func (s *Settings) boolValue(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.boolValueLocked(name)
}

func (s *Settings) boolValueLocked(name string) bool {
	switch strings.ToLower(strings.TrimSpace(s.values[name])) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func (s *Settings) int64Value(name string) int64 {
	raw := s.Get(name, false)
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
