package payment_test

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/resolve-gateway/internal/events"
	"github.com/noah-isme/resolve-gateway/internal/lock"
	"github.com/noah-isme/resolve-gateway/internal/obs"
	"github.com/noah-isme/resolve-gateway/internal/order"
	"github.com/noah-isme/resolve-gateway/internal/payment"
	"github.com/noah-isme/resolve-gateway/internal/resilience"
	"github.com/noah-isme/resolve-gateway/internal/resolve"
	"github.com/noah-isme/resolve-gateway/internal/settings"
)

func TestMain(m *testing.M) {
	obs.MustRegisterDomainMetrics("resolve_test", prometheus.NewRegistry())
	m.Run()
}

// memStore is an in-memory OrderStore with the same write-once and
// compare-and-set semantics as the SQL implementation.
type memStore struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*order.Order
	notes  map[uuid.UUID][]string
}

func newMemStore(orders ...order.Order) *memStore {
	s := &memStore{
		orders: make(map[uuid.UUID]*order.Order),
		notes:  make(map[uuid.UUID][]string),
	}
	for i := range orders {
		o := orders[i]
		s.orders[o.ID] = &o
	}
	return s
}

func (s *memStore) GetOrder(_ context.Context, id uuid.UUID) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	copied := *o
	return copied, nil
}

func (s *memStore) SetProviderRefs(_ context.Context, id uuid.UUID, chargeID, loanID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	if o.Meta.ChargeID == "" {
		o.Meta.ChargeID = chargeID
	}
	if o.Meta.LoanID == "" {
		o.Meta.LoanID = loanID
	}
	return nil
}

func (s *memStore) MarkCaptured(_ context.Context, id uuid.UUID, ref string, status order.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return false, order.ErrNotFound
	}
	if o.Meta.PaymentCaptured {
		return false, nil
	}
	o.Meta.PaymentCaptured = true
	o.Meta.PaymentRef = ref
	o.Status = status
	return true, nil
}

func (s *memStore) StampTestMode(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	o.Meta.TestMode = true
	return nil
}

func (s *memStore) AppendNote(_ context.Context, id uuid.UUID, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes[id] = append(s.notes[id], note)
	return nil
}

func (s *memStore) notesFor(id uuid.UUID) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.notes[id]...)
}

// memEventStore satisfies events.Store without a database.
type memEventStore struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *memEventStore) InsertEvent(_ context.Context, topic string, aggregateID uuid.UUID, payload []byte) (events.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev := events.Event{
		ID:          uuid.New(),
		Topic:       topic,
		AggregateID: aggregateID,
		Payload:     payload,
		OccurredAt:  time.Now(),
	}
	s.events = append(s.events, ev)
	return ev, nil
}

func (s *memEventStore) topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Topic)
	}
	return out
}

type settingsLoader map[string]string

func (l settingsLoader) LoadSettings(context.Context) (map[string]string, error) {
	out := make(map[string]string, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out, nil
}

func (l settingsLoader) UpsertSetting(_ context.Context, name, value string) error {
	l[name] = value
	return nil
}

func newSettings(t *testing.T, values map[string]string) *settings.Settings {
	t.Helper()
	s := settings.New(settingsLoader(values), zerolog.Nop())
	require.NoError(t, s.Load(context.Background()))
	return s
}

func newLocker(t *testing.T) lock.Locker {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return lock.Locker{R: client, Backoff: 5 * time.Millisecond}
}

func newCoordinator(t *testing.T, store *memStore, cfg *settings.Settings, srv *httptest.Server, bus *events.Bus) *payment.Coordinator {
	t.Helper()
	client := &resolve.Client{HTTP: resilience.HTTPClient{Client: srv.Client(), Timeout: time.Second}, BaseURL: srv.URL}
	return &payment.Coordinator{
		Store:    store,
		Settings: cfg,
		Client:   client,
		Locker:   newLocker(t),
		Events:   bus,
		Log:      zerolog.Nop(),
	}
}

func resolveOrder(total int64) order.Order {
	return order.Order{
		ID:            uuid.New(),
		Number:        "1001",
		PaymentMethod: order.PaymentMethodResolve,
		Status:        order.StatusPendingPayment,
		Currency:      "USD",
		Total:         total,
		Customer:      order.Customer{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"},
		Items: []order.Item{
			{Name: "Widget", SKU: "W-1", UnitPrice: total, Quantity: 1},
		},
	}
}
