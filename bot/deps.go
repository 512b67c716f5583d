package bot

import (
	"context"

	"orderkato/models"
	"orderkato/photoverify"
	"orderkato/services"
)

// The engine talks to storage and the photo verifier through these
// narrow interfaces so the conversation logic is testable without a
// database or a Telegram connection.

type Catalog interface {
	ListAreas(ctx context.Context) ([]models.Area, error)
	GetArea(ctx context.Context, id int64) (*models.Area, error)
	ListShopsByArea(ctx context.Context, areaID int64) ([]models.Shop, error)
	GetShop(ctx context.Context, id int64) (*models.Shop, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
}

type Orders interface {
	AllocateOrderID(ctx context.Context) (int64, error)
	CreateOrder(ctx context.Context, input models.CreateOrderInput) error
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	ListOrdersByUser(ctx context.Context, userID int64, limit int) ([]models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, newStatus string) error
}

type Users interface {
	GetUserByTelegram(ctx context.Context, telUsername string) (*models.User, error)
}

type Verifier interface {
	Verify(ctx context.Context, in photoverify.Input) (*models.VerifiedPhoto, error)
}

// pg* adapters delegate to the services package (backed by db.Pool).

type pgCatalog struct{}

func (pgCatalog) ListAreas(ctx context.Context) ([]models.Area, error) {
	return services.ListAreas(ctx)
}
func (pgCatalog) GetArea(ctx context.Context, id int64) (*models.Area, error) {
	return services.GetArea(ctx, id)
}
func (pgCatalog) ListShopsByArea(ctx context.Context, areaID int64) ([]models.Shop, error) {
	return services.ListShopsByArea(ctx, areaID)
}
func (pgCatalog) GetShop(ctx context.Context, id int64) (*models.Shop, error) {
	return services.GetShop(ctx, id)
}
func (pgCatalog) ListProducts(ctx context.Context) ([]models.Product, error) {
	return services.ListProducts(ctx)
}
func (pgCatalog) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	return services.GetProduct(ctx, id)
}

type pgOrders struct{}

func (pgOrders) AllocateOrderID(ctx context.Context) (int64, error) {
	return services.AllocateOrderID(ctx)
}
func (pgOrders) CreateOrder(ctx context.Context, input models.CreateOrderInput) error {
	return services.CreateOrder(ctx, input)
}
func (pgOrders) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	return services.GetOrder(ctx, id)
}
func (pgOrders) ListOrdersByUser(ctx context.Context, userID int64, limit int) ([]models.Order, error) {
	return services.ListOrdersByUser(ctx, userID, limit)
}
func (pgOrders) UpdateOrderStatus(ctx context.Context, orderID int64, newStatus string) error {
	return services.UpdateOrderStatus(ctx, orderID, newStatus)
}

type pgUsers struct{}

func (pgUsers) GetUserByTelegram(ctx context.Context, telUsername string) (*models.User, error) {
	return services.GetUserByTelegram(ctx, telUsername)
}
