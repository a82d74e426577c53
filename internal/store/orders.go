package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/resolve-gateway/internal/order"
)

// GetOrder loads an order with its line items. Addresses and customer data are
// stored as jsonb columns in the shape the provider API consumes.
func (s *Store) GetOrder(ctx context.Context, id uuid.UUID) (order.Order, error) {
	const q = `
SELECT id, order_number, payment_method, status, currency,
       shipping_total, tax_total, total,
       customer, billing_address, shipping_address,
       charge_id, loan_id, payment_captured, payment_ref, test_mode,
       created_at, updated_at
  FROM orders
 WHERE id = $1`

	var (
		o                        order.Order
		status                   string
		customerJSON, billJSON   []byte
		shipJSON                 []byte
		chargeID, loanID, payRef string
	)
	row := s.Pool.QueryRow(ctx, q, id)
	err := row.Scan(&o.ID, &o.Number, &o.PaymentMethod, &status, &o.Currency,
		&o.ShippingTotal, &o.TaxTotal, &o.Total,
		&customerJSON, &billJSON, &shipJSON,
		&chargeID, &loanID, &o.Meta.PaymentCaptured, &payRef, &o.Meta.TestMode,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return order.Order{}, order.ErrNotFound
		}
		return order.Order{}, fmt.Errorf("store: get order: %w", err)
	}
	o.Status = order.Status(status)
	o.Meta.ChargeID = chargeID
	o.Meta.LoanID = loanID
	o.Meta.PaymentRef = payRef
	if err := json.Unmarshal(customerJSON, &o.Customer); err != nil {
		return order.Order{}, fmt.Errorf("store: decode customer: %w", err)
	}
	if err := json.Unmarshal(billJSON, &o.Billing); err != nil {
		return order.Order{}, fmt.Errorf("store: decode billing address: %w", err)
	}
	if err := json.Unmarshal(shipJSON, &o.Shipping); err != nil {
		return order.Order{}, fmt.Errorf("store: decode shipping address: %w", err)
	}

	items, err := s.listItems(ctx, id)
	if err != nil {
		return order.Order{}, err
	}
	o.Items = items
	return o, nil
}

func (s *Store) listItems(ctx context.Context, orderID uuid.UUID) ([]order.Item, error) {
	const q = `
SELECT name, sku, unit_price, quantity, backordered
  FROM order_items
 WHERE order_id = $1
 ORDER BY id`
	rows, err := s.Pool.Query(ctx, q, orderID)
	if err != nil {
		return nil, fmt.Errorf("store: list order items: %w", err)
	}
	defer rows.Close()
	var items []order.Item
	for rows.Next() {
		var it order.Item
		if err := rows.Scan(&it.Name, &it.SKU, &it.UnitPrice, &it.Quantity, &it.Backordered); err != nil {
			return nil, fmt.Errorf("store: scan order item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// SetProviderRefs records the provider identifiers on the order. Columns are
// write-once: a value already present is never overwritten, so the first
// authorization callback wins and replays are harmless.
func (s *Store) SetProviderRefs(ctx context.Context, orderID uuid.UUID, chargeID, loanID string) error {
	const q = `
UPDATE orders
   SET charge_id = COALESCE(NULLIF(charge_id, ''), $2),
       loan_id   = COALESCE(NULLIF(loan_id, ''), $3),
       updated_at = now()
 WHERE id = $1`
	tag, err := s.Pool.Exec(ctx, q, orderID, strings.TrimSpace(chargeID), strings.TrimSpace(loanID))
	if err != nil {
		return fmt.Errorf("store: set provider refs: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// MarkCaptured flips payment_captured and records the provider reference plus
// the post-capture status. The WHERE clause is the compare-and-set: it returns
// false when another caller already captured the order.
func (s *Store) MarkCaptured(ctx context.Context, orderID uuid.UUID, ref string, status order.Status) (bool, error) {
	const q = `
UPDATE orders
   SET payment_captured = TRUE,
       payment_ref = $2,
       status = $3,
       updated_at = now()
 WHERE id = $1
   AND NOT payment_captured`
	tag, err := s.Pool.Exec(ctx, q, orderID, ref, string(status))
	if err != nil {
		return false, fmt.Errorf("store: mark captured: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// StampTestMode marks the order as placed against the sandbox environment.
func (s *Store) StampTestMode(ctx context.Context, orderID uuid.UUID) error {
	const q = `UPDATE orders SET test_mode = TRUE, updated_at = now() WHERE id = $1`
	tag, err := s.Pool.Exec(ctx, q, orderID)
	if err != nil {
		return fmt.Errorf("store: stamp test mode: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// AppendNote attaches an audit note to the order.
func (s *Store) AppendNote(ctx context.Context, orderID uuid.UUID, note string) error {
	const q = `INSERT INTO order_notes (order_id, note) VALUES ($1, $2)`
	if _, err := s.Pool.Exec(ctx, q, orderID, note); err != nil {
		return fmt.Errorf("store: append note: %w", err)
	}
	return nil
}
