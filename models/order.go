package models

import "time"

const (
	OrderStatusPending        = "Pending"
	OrderStatusDelivered      = "Delivered"
	OrderStatusCancelled      = "Cancelled"
	OrderStatusUnderDelivered = "Under-Delivered"
	OrderStatusOverDelivered  = "Over-Delivered"
)

type OrderItem struct {
	ProductID   int64
	ProductName string
	Quantity    int
}

// Order is a row from the orders table together with its items.
// ShopName and AreaName are joined in for display.
type Order struct {
	ID        int64
	UserID    int64
	ShopID    int64
	ShopName  string
	AreaName  string
	ImageURL  *string
	Status    string
	CreatedAt time.Time
	Items     []OrderItem
}

type CreateOrderInput struct {
	ID       int64 // pre-allocated via AllocateOrderID
	UserID   int64
	ShopID   int64
	ImageURL *string
	Items    []OrderItem
}
