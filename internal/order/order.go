package order

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when an order cannot be resolved from the store.
var ErrNotFound = errors.New("order: not found")

// PaymentMethodResolve tags orders that were paid through the Resolve gateway.
const PaymentMethodResolve = "resolve"

// Status is the order lifecycle state as the host platform understands it.
type Status string

const (
	StatusPendingPayment Status = "pending"
	StatusProcessing     Status = "processing"
	StatusOnHold         Status = "on-hold"
	StatusCompleted      Status = "completed"
	StatusCancelled      Status = "cancelled"
	StatusRefunded       Status = "refunded"
	StatusFailed         Status = "failed"
)

// DefaultCapturedStatus is applied after a successful capture unless the
// gateway is configured with a different, valid status.
const DefaultCapturedStatus = StatusProcessing

// ValidStatus reports whether the value is a known order status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusPendingPayment, StatusProcessing, StatusOnHold,
		StatusCompleted, StatusCancelled, StatusRefunded, StatusFailed:
		return true
	}
	return false
}

// Address holds a shipping or billing address in the shape the provider
// checkout API expects.
type Address struct {
	Name       string `json:"name"`
	Company    string `json:"company_name"`
	Phone      string `json:"phone"`
	Line1      string `json:"address_line1"`
	Line2      string `json:"address_line2"`
	City       string `json:"address_city"`
	State      string `json:"address_state"`
	PostalCode string `json:"address_postal"`
	Country    string `json:"address_country"`
}

// Item is a purchasable line on the order.
type Item struct {
	Name        string `json:"name"`
	SKU         string `json:"sku"`
	UnitPrice   int64  `json:"unit_price"`
	Quantity    int    `json:"quantity"`
	Backordered bool   `json:"-"`
}

// Customer identifies the buyer.
type Customer struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
}

// Meta carries the gateway-owned fields attached to an order. ChargeID and
// LoanID are write-once; PaymentCaptured transitions false to true exactly
// once.
type Meta struct {
	ChargeID        string
	LoanID          string
	PaymentCaptured bool
	PaymentRef      string
	TestMode        bool
}

// Order is the read model this service works against. The host platform owns
// the full order; only the fields the gateway reads or mutates are present.
type Order struct {
	ID            uuid.UUID
	Number        string
	PaymentMethod string
	Status        Status
	Currency      string
	ShippingTotal int64
	TaxTotal      int64
	Total         int64
	Customer      Customer
	Billing       Address
	Shipping      Address
	Items         []Item
	Meta          Meta
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ChargeRef returns the identifier a capture call should use: the charge id
// when present, otherwise the loan id.
func (o Order) ChargeRef() string {
	if ref := strings.TrimSpace(o.Meta.ChargeID); ref != "" {
		return ref
	}
	return strings.TrimSpace(o.Meta.LoanID)
}

// HasBackorderedItems reports whether any line on the order is on backorder.
func (o Order) HasBackorderedItems() bool {
	for _, it := range o.Items {
		if it.Backordered {
			return true
		}
	}
	return false
}

// Note is an append-only audit entry attached to an order.
type Note struct {
	ID        int64
	OrderID   uuid.UUID
	Note      string
	CreatedAt time.Time
}
