package services

import (
	"context"
	"errors"
	"fmt"

	"orderkato/db"
	"orderkato/models"

	"github.com/jackc/pgx/v5"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrEmptyOrder        = errors.New("order has no items")
	ErrInvalidTransition = errors.New("status transition not allowed")
)

// ValidStatusTransition reports whether an order may move from one
// status to another. Pending orders may move anywhere; every other
// status is terminal.
func ValidStatusTransition(from, to string) bool {
	switch to {
	case models.OrderStatusPending, models.OrderStatusDelivered, models.OrderStatusCancelled,
		models.OrderStatusUnderDelivered, models.OrderStatusOverDelivered:
	default:
		return false
	}
	if from == to {
		return false
	}
	return from == models.OrderStatusPending
}

// AllocateOrderID returns a fresh globally unique, monotonically
// increasing order id. The sequence is the single point of mutual
// exclusion, so concurrent callers never get the same id.
func AllocateOrderID(ctx context.Context) (int64, error) {
	var id int64
	err := db.Pool.QueryRow(ctx, `SELECT nextval('order_id_seq')`).Scan(&id)
	return id, err
}

// CreateOrder persists the order and all its items in one transaction.
// A reader never observes a partially written order.
func CreateOrder(ctx context.Context, input models.CreateOrderInput) error {
	if len(input.Items) == 0 {
		return ErrEmptyOrder
	}
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, user_id, shop_id, image_url, status)
		VALUES ($1, $2, $3, $4, $5)`,
		input.ID, input.UserID, input.ShopID, input.ImageURL, models.OrderStatusPending,
	)
	if err != nil {
		return err
	}
	for _, item := range input.Items {
		if item.Quantity <= 0 {
			return fmt.Errorf("product %d: quantity must be positive", item.ProductID)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items (order_id, product_id, quantity)
			VALUES ($1, $2, $3)`,
			input.ID, item.ProductID, item.Quantity,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// GetOrder loads one order with its items. Returns nil, nil when absent.
func GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	var o models.Order
	err := db.Pool.QueryRow(ctx, `
		SELECT o.id, o.user_id, o.shop_id, s.name, a.name, o.image_url, o.status, o.created_at
		FROM orders o
		LEFT JOIN shops s ON o.shop_id = s.id
		LEFT JOIN areas a ON s.area_id = a.id
		WHERE o.id = $1`,
		id,
	).Scan(&o.ID, &o.UserID, &o.ShopID, &o.ShopName, &o.AreaName, &o.ImageURL, &o.Status, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	items, err := listOrderItems(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return &o, nil
}

// ListOrdersByUser returns the user's orders, newest first, with items.
func ListOrdersByUser(ctx context.Context, userID int64, limit int) ([]models.Order, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT o.id, o.user_id, o.shop_id, COALESCE(s.name, 'N/A'), COALESCE(a.name, 'N/A'),
		       o.image_url, o.status, o.created_at
		FROM orders o
		LEFT JOIN shops s ON o.shop_id = s.id
		LEFT JOIN areas a ON s.area_id = a.id
		WHERE o.user_id = $1
		ORDER BY o.created_at DESC
		LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var o models.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.ShopID, &o.ShopName, &o.AreaName,
			&o.ImageURL, &o.Status, &o.CreatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range orders {
		items, err := listOrderItems(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

func listOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT oi.product_id, p.name, oi.quantity
		FROM order_items oi
		JOIN products p ON oi.product_id = p.id
		WHERE oi.order_id = $1
		ORDER BY p.name`,
		orderID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var it models.OrderItem
		if err := rows.Scan(&it.ProductID, &it.ProductName, &it.Quantity); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// UpdateOrderStatus moves an order to newStatus if the transition is
// permitted. The UPDATE is guarded on the old status so two concurrent
// updates cannot both succeed.
func UpdateOrderStatus(ctx context.Context, orderID int64, newStatus string) error {
	var current string
	err := db.Pool.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, orderID).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrOrderNotFound
		}
		return err
	}
	if !ValidStatusTransition(current, newStatus) {
		return ErrInvalidTransition
	}
	tag, err := db.Pool.Exec(ctx, `
		UPDATE orders SET status = $1 WHERE id = $2 AND status = $3`,
		newStatus, orderID, current,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}
