package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const orderColumns = `id, user_id, idempotency_key, total_amount, status, version, created_at, updated_at`

type orderRepository struct {
	store *Store
}

// NewOrderRepository создаёт PostgreSQL-реализацию истории заказов.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{store: store}
}

func (r *orderRepository) Create(order domain.OrderRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return r.store.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orders (`+orderColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`,
			order.ID, order.UserID, order.IdempotencyKey, order.TotalAmount,
			string(order.Status), order.Version, order.CreatedAt, order.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrOrderVersionConflict
			}
			return fmt.Errorf("insert order: %w", err)
		}
		return insertItems(ctx, tx, order.ID, order.Items)
	})
}

func (r *orderRepository) Get(id string) (domain.OrderRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	order, err := scanOrder(r.store.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.OrderRecord{}, domain.ErrOrderNotFound
		}
		return domain.OrderRecord{}, fmt.Errorf("select order: %w", err)
	}

	if order.Items, err = r.loadItems(ctx, order.ID); err != nil {
		return domain.OrderRecord{}, err
	}
	return order, nil
}

func (r *orderRepository) ListByUser(userID string, limit int) ([]domain.OrderRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	orders := make([]domain.OrderRecord, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	_ = rows.Close()

	for i := range orders {
		if orders[i].Items, err = r.loadItems(ctx, orders[i].ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// Save обновляет заказ при совпадении версии и целиком переписывает позиции:
// синхронизация проставляет серверные ID, отзывы добавляются к позициям.
func (r *orderRepository) Save(order domain.OrderRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return r.store.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE orders
			SET status = $1,
			    total_amount = $2,
			    version = version + 1,
			    updated_at = $3
			WHERE id = $4
			  AND version = $5
		`, string(order.Status), order.TotalAmount, order.UpdatedAt, order.ID, order.Version)
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			var exists bool
			if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, order.ID).Scan(&exists); err != nil {
				return fmt.Errorf("check order exists: %w", err)
			}
			if !exists {
				return domain.ErrOrderNotFound
			}
			return domain.ErrOrderVersionConflict
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, order.ID); err != nil {
			return fmt.Errorf("reset order items: %w", err)
		}
		return insertItems(ctx, tx, order.ID, order.Items)
	})
}

func insertItems(ctx context.Context, tx *sql.Tx, orderID string, items []domain.OrderItem) error {
	for pos, item := range items {
		var (
			rating     sql.NullInt32
			comment    sql.NullString
			reviewedAt sql.NullTime
		)
		if item.Review != nil {
			rating = sql.NullInt32{Int32: int32(item.Review.Rating), Valid: true}
			comment = sql.NullString{String: item.Review.Comment, Valid: true}
			reviewedAt = sql.NullTime{Time: item.Review.CreatedAt, Valid: !item.Review.CreatedAt.IsZero()}
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (
				order_id, position, item_id, cart_item_id, product_id, name,
				quantity, unit_price, discount_amount, subtotal,
				review_rating, review_comment, reviewed_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		`,
			orderID, pos, item.ID, item.CartItemID, item.ProductID, item.Name,
			item.Quantity, item.UnitPrice, item.DiscountAmount, item.Subtotal,
			rating, comment, reviewedAt,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (r *orderRepository) loadItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT item_id, cart_item_id, product_id, name, quantity, unit_price,
		       discount_amount, subtotal, review_rating, review_comment, reviewed_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY position ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var (
			item       domain.OrderItem
			rating     sql.NullInt32
			comment    sql.NullString
			reviewedAt sql.NullTime
		)
		if err := rows.Scan(
			&item.ID, &item.CartItemID, &item.ProductID, &item.Name, &item.Quantity,
			&item.UnitPrice, &item.DiscountAmount, &item.Subtotal,
			&rating, &comment, &reviewedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		if rating.Valid {
			item.Review = &domain.Review{Rating: int(rating.Int32), Comment: comment.String}
			if reviewedAt.Valid {
				item.Review.CreatedAt = reviewedAt.Time.UTC()
			}
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.OrderRecord, error) {
	var (
		order  domain.OrderRecord
		status string
	)
	if err := row.Scan(
		&order.ID, &order.UserID, &order.IdempotencyKey, &order.TotalAmount,
		&status, &order.Version, &order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return domain.OrderRecord{}, err
	}
	order.Status = domain.OrderStatus(status)
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	return order, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
