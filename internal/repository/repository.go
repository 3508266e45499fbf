package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	SSLMode           string
	MigrationsDirPath string
}

// Querier is every read and write the storefront needs. Implementations
// returned from WithTx run all calls in one transaction; the *ForUpdate
// reads lock the row until it ends.
type Querier interface {
	GetCartByUser(ctx context.Context, userID uuid.UUID) (*domain.Cart, error)
	GetCartForUpdate(ctx context.Context, userID uuid.UUID) (*domain.Cart, error)
	CreateCart(ctx context.Context, userID uuid.UUID) error
	ListCartItems(ctx context.Context, cartID uuid.UUID) ([]domain.CartItem, error)
	InsertCartItem(ctx context.Context, item *domain.CartItem) error
	UpdateCartItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int, lineTotal decimal.Decimal) error
	DeleteCartItem(ctx context.Context, itemID uuid.UUID) error
	DeleteCartItems(ctx context.Context, cartID uuid.UUID) error
	SaveCartTotals(ctx context.Context, cart *domain.Cart) error

	GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	GetProductForUpdate(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	AdjustStock(ctx context.Context, productID uuid.UUID, stockDelta, soldDelta int) (int, error)
	GetShippingAddress(ctx context.Context, id, ownerID uuid.UUID) (*domain.ShippingAddress, error)

	GetCoupon(ctx context.Context, id uuid.UUID) (*domain.Coupon, error)
	GetCouponByCode(ctx context.Context, code string) (*domain.Coupon, error)
	GetCouponForUpdate(ctx context.Context, id uuid.UUID) (*domain.Coupon, error)
	CreateCoupon(ctx context.Context, coupon *domain.Coupon) error
	IncrementCouponUsage(ctx context.Context, id uuid.UUID) (bool, error)
	DecrementCouponUsage(ctx context.Context, id uuid.UUID) error

	CreateOrder(ctx context.Context, order *domain.Order) error
	SetOrderNumber(ctx context.Context, orderID uuid.UUID, number string) error
	SetPaymentSession(ctx context.Context, orderID uuid.UUID, sessionID string) error
	GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	UpdateOrderState(ctx context.Context, order *domain.Order) error
	ListOrders(ctx context.Context, filter OrderFilter) ([]*domain.Order, error)
	ListStalePaymentOrders(ctx context.Context, createdBefore time.Time, limit int) ([]uuid.UUID, error)

	RecordPaymentEvent(ctx context.Context, eventID, eventType string, orderID uuid.UUID) (bool, error)
	InsertOutboxEvent(ctx context.Context, aggregateID uuid.UUID, eventType string, payload []byte) error
}

type Store interface {
	Querier
	WithTx(ctx context.Context, fn func(q Querier) error) error
	Close() error
}

// OutboxStore is the side of the outbox read by the publisher.
type OutboxStore interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
}

type OutboxEvent struct {
	ID          int64
	AggregateID uuid.UUID
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Repository struct {
	*queries
	db *sql.DB
}

func NewRepository(cred *Credentials) (*Repository, error) {
	sslMode := cred.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName,
		sslMode)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &Repository{queries: &queries{db: db}, db: db}, nil
}

func (r *Repository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "storefront_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

// WithTx runs fn in a transaction, committing when it returns nil.
func (r *Repository) WithTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(&queries{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// queries implements Querier on top of a connection or a transaction.
type queries struct {
	db dbtx
}
