package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
)

const orderColumns = `id, COALESCE(order_number, ''), user_id, sub_total, discount, shipping_cost, total_price,
	payment_method, status, payment_status, is_paid, is_delivered, delivered_at, shipping_address, coupon_id,
	COALESCE(payment_session_id, ''), inventory_applied, coupon_counted, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		o           domain.Order
		deliveredAt sql.NullTime
		address     []byte
		couponID    uuid.NullUUID
	)
	if err := row.Scan(
		&o.ID,
		&o.OrderNumber,
		&o.UserID,
		&o.SubTotal,
		&o.Discount,
		&o.ShippingCost,
		&o.TotalPrice,
		&o.PaymentMethod,
		&o.Status,
		&o.PaymentStatus,
		&o.IsPaid,
		&o.IsDelivered,
		&deliveredAt,
		&address,
		&couponID,
		&o.PaymentSessionID,
		&o.InventoryApplied,
		&o.CouponCounted,
		&o.CreatedAt,
		&o.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if deliveredAt.Valid {
		t := deliveredAt.Time
		o.DeliveredAt = &t
	}
	o.CouponID = uuidPtr(couponID)
	if err := json.Unmarshal(address, &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("unmarshal shipping address: %w", err)
	}
	return &o, nil
}

// CreateOrder inserts the order and its items. IDs and timestamps are
// written back into order.
func (q *queries) CreateOrder(ctx context.Context, order *domain.Order) error {
	address, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("failed to marshal shipping address: %w", err)
	}

	err = q.db.QueryRowContext(ctx, `
		INSERT INTO orders (user_id, sub_total, discount, shipping_cost, total_price, payment_method, status,
		                    payment_status, is_paid, is_delivered, shipping_address, coupon_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at`,
		order.UserID,
		order.SubTotal,
		order.Discount,
		order.ShippingCost,
		order.TotalPrice,
		order.PaymentMethod,
		order.Status,
		order.PaymentStatus,
		order.IsPaid,
		order.IsDelivered,
		address,
		nullUUID(order.CouponID),
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range order.Items {
		it := &order.Items[i]
		it.OrderID = order.ID
		err := q.db.QueryRowContext(ctx, `
			INSERT INTO order_items (order_id, product_id, product_name, price, quantity, color, size, line_total)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id`,
			it.OrderID,
			it.ProductID,
			it.ProductName,
			it.Price,
			it.Quantity,
			it.Color,
			it.Size,
			it.LineTotal,
		).Scan(&it.ID)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (q *queries) SetOrderNumber(ctx context.Context, orderID uuid.UUID, number string) error {
	res, err := q.db.ExecContext(ctx, `UPDATE orders SET order_number = $2 WHERE id = $1`, orderID, number)
	if err != nil {
		return fmt.Errorf("set order number: %w", err)
	}
	return expectOneRow(res, ErrOrderNotFound)
}

func (q *queries) SetPaymentSession(ctx context.Context, orderID uuid.UUID, sessionID string) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE orders SET payment_session_id = $2, updated_at = NOW() WHERE id = $1`, orderID, sessionID)
	if err != nil {
		return fmt.Errorf("set payment session: %w", err)
	}
	return expectOneRow(res, ErrOrderNotFound)
}

func (q *queries) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return q.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (q *queries) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return q.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
}

func (q *queries) getOrder(ctx context.Context, query string, id uuid.UUID) (*domain.Order, error) {
	order, err := scanOrder(q.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	if order.Items, err = q.listOrderItems(ctx, order.ID); err != nil {
		return nil, err
	}
	return order, nil
}

func (q *queries) listOrderItems(ctx context.Context, orderID uuid.UUID) ([]domain.OrderItem, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, product_name, price, quantity, color, size, line_total
		FROM order_items WHERE order_id = $1 ORDER BY product_id, id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	items := []domain.OrderItem{}
	for rows.Next() {
		var (
			it          domain.OrderItem
			color, size sql.NullString
		)
		if err := rows.Scan(
			&it.ID,
			&it.OrderID,
			&it.ProductID,
			&it.ProductName,
			&it.Price,
			&it.Quantity,
			&color,
			&size,
			&it.LineTotal,
		); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		it.Color = stringPtr(color)
		it.Size = stringPtr(size)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return items, nil
}

// UpdateOrderState writes the mutable lifecycle fields of an order.
func (q *queries) UpdateOrderState(ctx context.Context, o *domain.Order) error {
	var deliveredAt sql.NullTime
	if o.DeliveredAt != nil {
		deliveredAt = sql.NullTime{Time: *o.DeliveredAt, Valid: true}
	}
	err := q.db.QueryRowContext(ctx, `
		UPDATE orders
		SET status = $2, payment_status = $3, is_paid = $4, is_delivered = $5, delivered_at = $6,
		    inventory_applied = $7, coupon_counted = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		o.ID,
		o.Status,
		o.PaymentStatus,
		o.IsPaid,
		o.IsDelivered,
		deliveredAt,
		o.InventoryApplied,
		o.CouponCounted,
	).Scan(&o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrOrderNotFound
	}
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	return nil
}

// ListOrders returns orders newest first, without items.
func (q *queries) ListOrders(ctx context.Context, filter OrderFilter) ([]*domain.Order, error) {
	filter = filter.Normalize()
	where, args := filter.where()
	args = append(args, filter.Limit, filter.Offset())
	query := fmt.Sprintf(`SELECT %s FROM orders %s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		orderColumns, where, len(args)-1, len(args))

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := []*domain.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return orders, nil
}

// ListStalePaymentOrders finds card orders that never received a payment
// session, which happens when the process died between commit and the call
// to the processor.
func (q *queries) ListStalePaymentOrders(ctx context.Context, createdBefore time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id FROM orders
		WHERE payment_method = 'CREDIT_CARD' AND status = 'PENDING' AND payment_status = 'PENDING'
		  AND COALESCE(payment_session_id, '') = '' AND created_at < $1
		ORDER BY created_at
		LIMIT $2`, createdBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("query stale orders: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stale order: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
