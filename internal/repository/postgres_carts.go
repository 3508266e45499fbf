package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const cartColumns = `id, user_id, coupon_id, sub_total, discount, total_price, created_at, updated_at`

func (q *queries) GetCartByUser(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	return q.getCart(ctx, `SELECT `+cartColumns+` FROM carts WHERE user_id = $1`, userID)
}

func (q *queries) GetCartForUpdate(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	return q.getCart(ctx, `SELECT `+cartColumns+` FROM carts WHERE user_id = $1 FOR UPDATE`, userID)
}

func (q *queries) getCart(ctx context.Context, query string, userID uuid.UUID) (*domain.Cart, error) {
	var (
		cart     domain.Cart
		couponID uuid.NullUUID
	)
	err := q.db.QueryRowContext(ctx, query, userID).Scan(
		&cart.ID,
		&cart.UserID,
		&couponID,
		&cart.SubTotal,
		&cart.Discount,
		&cart.TotalPrice,
		&cart.CreatedAt,
		&cart.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query cart: %w", err)
	}
	cart.CouponID = uuidPtr(couponID)

	items, err := q.ListCartItems(ctx, cart.ID)
	if err != nil {
		return nil, err
	}
	cart.Items = items
	return &cart, nil
}

func (q *queries) CreateCart(ctx context.Context, userID uuid.UUID) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO carts (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return fmt.Errorf("insert cart: %w", err)
	}
	return nil
}

func (q *queries) ListCartItems(ctx context.Context, cartID uuid.UUID) ([]domain.CartItem, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, cart_id, product_id, product_name, unit_price, quantity, color, size, line_total, added_at
		FROM cart_items WHERE cart_id = $1 ORDER BY added_at, id`, cartID)
	if err != nil {
		return nil, fmt.Errorf("query cart items: %w", err)
	}
	defer rows.Close()

	items := []domain.CartItem{}
	for rows.Next() {
		var (
			it          domain.CartItem
			color, size sql.NullString
		)
		if err := rows.Scan(
			&it.ID,
			&it.CartID,
			&it.ProductID,
			&it.ProductName,
			&it.UnitPrice,
			&it.Quantity,
			&color,
			&size,
			&it.LineTotal,
			&it.AddedAt,
		); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		it.Color = stringPtr(color)
		it.Size = stringPtr(size)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart items: %w", err)
	}
	return items, nil
}

func (q *queries) InsertCartItem(ctx context.Context, item *domain.CartItem) error {
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO cart_items (cart_id, product_id, product_name, unit_price, quantity, color, size, line_total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, added_at`,
		item.CartID,
		item.ProductID,
		item.ProductName,
		item.UnitPrice,
		item.Quantity,
		item.Color,
		item.Size,
		item.LineTotal,
	).Scan(&item.ID, &item.AddedAt)
	if err != nil {
		return fmt.Errorf("insert cart item: %w", err)
	}
	return nil
}

func (q *queries) UpdateCartItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int, lineTotal decimal.Decimal) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE cart_items SET quantity = $2, line_total = $3 WHERE id = $1`, itemID, quantity, lineTotal)
	if err != nil {
		return fmt.Errorf("update cart item: %w", err)
	}
	return expectOneRow(res, ErrItemNotFound)
}

func (q *queries) DeleteCartItem(ctx context.Context, itemID uuid.UUID) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM cart_items WHERE id = $1`, itemID)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	return expectOneRow(res, ErrItemNotFound)
}

func (q *queries) DeleteCartItems(ctx context.Context, cartID uuid.UUID) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("delete cart items: %w", err)
	}
	return nil
}

func (q *queries) SaveCartTotals(ctx context.Context, cart *domain.Cart) error {
	err := q.db.QueryRowContext(ctx, `
		UPDATE carts SET coupon_id = $2, sub_total = $3, discount = $4, total_price = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		cart.ID,
		nullUUID(cart.CouponID),
		cart.SubTotal,
		cart.Discount,
		cart.TotalPrice,
	).Scan(&cart.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update cart totals: %w", err)
	}
	return nil
}

func expectOneRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func uuidPtr(id uuid.NullUUID) *uuid.UUID {
	if !id.Valid {
		return nil
	}
	v := id.UUID
	return &v
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
