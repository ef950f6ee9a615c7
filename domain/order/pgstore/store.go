// Package pgstore persists orders, payments and reviews in Postgres through bun.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/tanpawarit/bingwa/domain/order"
)

// Config is loaded with the DATABASE_ prefix.
type Config struct {
	DSN string `envconfig:"DSN"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.DSN) == "" {
		return errors.New("database dsn is required")
	}
	return nil
}

type Store struct {
	db *bun.DB
}

var _ order.Store = (*Store)(nil)

// Open connects to Postgres. The caller owns Close.
func Open(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
	return New(bun.NewDB(sqldb, pgdialect.New())), nil
}

func New(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSchema creates the tables when they do not exist yet.
func (s *Store) CreateSchema(ctx context.Context) error {
	models := []any{(*orderModel)(nil), (*paymentModel)(nil), (*reviewModel)(nil)}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	_, err := s.db.NewCreateIndex().
		Model((*paymentModel)(nil)).
		Index("order_payments_order_id_idx").
		IfNotExists().
		Column("order_id").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, orderID string) (order.Order, error) {
	m, err := getOrder(ctx, s.db, orderID, false)
	if err != nil {
		return order.Order{}, err
	}
	return m.toDomain(), nil
}

func (s *Store) Create(ctx context.Context, o order.Order) error {
	if strings.TrimSpace(o.ID) == "" {
		return fmt.Errorf("%w: order id is required", order.ErrInvalidInput)
	}
	res, err := s.db.NewInsert().Model(newOrderModel(o)).On("CONFLICT (id) DO NOTHING").Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: order id=%s already exists", order.ErrConflict, o.ID)
	}
	return nil
}

// ApplyTransition locks the row, applies t and writes the result in one transaction.
func (s *Store) ApplyTransition(ctx context.Context, orderID string, t order.Transition) (order.Order, error) {
	var updated order.Order
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		m, err := getOrder(ctx, tx, orderID, true)
		if err != nil {
			return err
		}

		o := m.toDomain()
		if err := t.Apply(&o); err != nil {
			return err
		}

		next := newOrderModel(o)
		if _, err := tx.NewUpdate().Model(next).WherePK().Exec(ctx); err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		updated = o
		return nil
	})
	if err != nil {
		return order.Order{}, err
	}
	return updated, nil
}

func (s *Store) AddPayment(ctx context.Context, p order.Payment) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := getOrder(ctx, tx, p.OrderID, true); err != nil {
			return err
		}
		if p.Status == order.PaymentCompleted {
			paid, err := tx.NewSelect().
				Model((*paymentModel)(nil)).
				Where("order_id = ?", p.OrderID).
				Where("status = ?", string(order.PaymentCompleted)).
				Exists(ctx)
			if err != nil {
				return fmt.Errorf("check payments: %w", err)
			}
			if paid {
				return fmt.Errorf("%w: order=%s already has a completed payment", order.ErrConflict, p.OrderID)
			}
		}
		if _, err := tx.NewInsert().Model(newPaymentModel(p)).Exec(ctx); err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
		return nil
	})
}

func (s *Store) ListPayments(ctx context.Context, orderID string) ([]order.Payment, error) {
	var rows []paymentModel
	err := s.db.NewSelect().
		Model(&rows).
		Where("order_id = ?", orderID).
		Order("paid_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}

	out := make([]order.Payment, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (s *Store) AddReview(ctx context.Context, r order.Review) error {
	res, err := s.db.NewInsert().Model(newReviewModel(r)).On("CONFLICT (order_id) DO NOTHING").Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert review: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: order=%s already reviewed", order.ErrConflict, r.OrderID)
	}
	return nil
}

func (s *Store) GetReview(ctx context.Context, orderID string) (order.Review, error) {
	m := new(reviewModel)
	err := s.db.NewSelect().Model(m).Where("order_id = ?", orderID).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return order.Review{}, order.ErrNoReview
	}
	if err != nil {
		return order.Review{}, fmt.Errorf("get review: %w", err)
	}
	return m.toDomain(), nil
}

func getOrder(ctx context.Context, db bun.IDB, orderID string, forUpdate bool) (*orderModel, error) {
	m := new(orderModel)
	q := db.NewSelect().Model(m).Where("id = ?", strings.TrimSpace(orderID))
	if forUpdate {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: id=%s", order.ErrNotFound, orderID)
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return m, nil
}
