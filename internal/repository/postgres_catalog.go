package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const productColumns = `id, name, price, price_after_discount, stock, sold, colors, sizes, created_at, updated_at`

func (q *queries) GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	return q.getProduct(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
}

func (q *queries) GetProductForUpdate(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	return q.getProduct(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id)
}

func (q *queries) getProduct(ctx context.Context, query string, id uuid.UUID) (*domain.Product, error) {
	var (
		p          domain.Product
		discounted decimal.NullDecimal
	)
	err := q.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID,
		&p.Name,
		&p.Price,
		&discounted,
		&p.Stock,
		&p.Sold,
		pq.Array(&p.Colors),
		pq.Array(&p.Sizes),
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	if discounted.Valid {
		p.PriceAfterDiscount = &discounted.Decimal
	}
	return &p, nil
}

// AdjustStock applies deltas to stock and sold and returns the new stock.
func (q *queries) AdjustStock(ctx context.Context, productID uuid.UUID, stockDelta, soldDelta int) (int, error) {
	var stock int
	err := q.db.QueryRowContext(ctx, `
		UPDATE products SET stock = stock + $2, sold = GREATEST(sold + $3, 0), updated_at = NOW()
		WHERE id = $1
		RETURNING stock`, productID, stockDelta, soldDelta).Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrProductNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("adjust stock: %w", err)
	}
	return stock, nil
}

func (q *queries) GetShippingAddress(ctx context.Context, id, ownerID uuid.UUID) (*domain.ShippingAddress, error) {
	var a domain.ShippingAddress
	err := q.db.QueryRowContext(ctx, `
		SELECT a.id, a.owner_id, a.full_name, a.phone, a.street, a.details, a.postal_code,
		       c.id, c.name, c.country, c.shipping_price
		FROM addresses a
		JOIN cities c ON c.id = a.city_id
		WHERE a.id = $1 AND a.owner_id = $2`, id, ownerID).Scan(
		&a.ID,
		&a.OwnerID,
		&a.FullName,
		&a.Phone,
		&a.Street,
		&a.Details,
		&a.PostalCode,
		&a.City.ID,
		&a.City.Name,
		&a.City.Country,
		&a.City.ShippingPrice,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAddressNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query shipping address: %w", err)
	}
	return &a, nil
}

const couponColumns = `id, code, discount_type, discount_value, min_order_value, max_usage, used_count, expired_at, is_active, created_at`

func (q *queries) GetCoupon(ctx context.Context, id uuid.UUID) (*domain.Coupon, error) {
	return q.getCoupon(ctx, `SELECT `+couponColumns+` FROM coupons WHERE id = $1`, id)
}

func (q *queries) GetCouponByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	return q.getCoupon(ctx, `SELECT `+couponColumns+` FROM coupons WHERE code = $1`, domain.NormalizeCouponCode(code))
}

func (q *queries) GetCouponForUpdate(ctx context.Context, id uuid.UUID) (*domain.Coupon, error) {
	return q.getCoupon(ctx, `SELECT `+couponColumns+` FROM coupons WHERE id = $1 FOR UPDATE`, id)
}

func (q *queries) getCoupon(ctx context.Context, query string, arg any) (*domain.Coupon, error) {
	var c domain.Coupon
	err := q.db.QueryRowContext(ctx, query, arg).Scan(
		&c.ID,
		&c.Code,
		&c.DiscountType,
		&c.DiscountValue,
		&c.MinOrderValue,
		&c.MaxUsage,
		&c.UsedCount,
		&c.ExpiredAt,
		&c.IsActive,
		&c.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCouponNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query coupon: %w", err)
	}
	return &c, nil
}

func (q *queries) CreateCoupon(ctx context.Context, c *domain.Coupon) error {
	c.Code = domain.NormalizeCouponCode(c.Code)
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO coupons (code, discount_type, discount_value, min_order_value, max_usage, used_count, expired_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		c.Code,
		c.DiscountType,
		c.DiscountValue,
		c.MinOrderValue,
		c.MaxUsage,
		c.UsedCount,
		c.ExpiredAt,
		c.IsActive,
	).Scan(&c.ID, &c.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateCouponCode
	}
	if err != nil {
		return fmt.Errorf("insert coupon: %w", err)
	}
	return nil
}

// IncrementCouponUsage bumps used_count unless the coupon is exhausted, in
// which case it reports false.
func (q *queries) IncrementCouponUsage(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE coupons SET used_count = used_count + 1 WHERE id = $1 AND used_count < max_usage`, id)
	if err != nil {
		return false, fmt.Errorf("increment coupon usage: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (q *queries) DecrementCouponUsage(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE coupons SET used_count = GREATEST(used_count - 1, 0) WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("decrement coupon usage: %w", err)
	}
	return nil
}
