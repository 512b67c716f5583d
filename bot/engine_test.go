package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"orderkato/models"
	"orderkato/photoverify"
	"orderkato/services"
	"orderkato/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	areas    []models.Area
	shops    []models.Shop
	products []models.Product

	failProducts bool
	failAreas    bool
}

var errStorage = errors.New("storage down")

func (f *fakeCatalog) ListAreas(context.Context) ([]models.Area, error) {
	if f.failAreas {
		return nil, errStorage
	}
	return f.areas, nil
}

func (f *fakeCatalog) GetArea(_ context.Context, id int64) (*models.Area, error) {
	for _, a := range f.areas {
		if a.ID == id {
			a := a
			return &a, nil
		}
	}
	return nil, nil
}

func (f *fakeCatalog) ListShopsByArea(_ context.Context, areaID int64) ([]models.Shop, error) {
	var out []models.Shop
	for _, s := range f.shops {
		if s.AreaID == areaID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeCatalog) GetShop(_ context.Context, id int64) (*models.Shop, error) {
	for _, s := range f.shops {
		if s.ID == id {
			s := s
			return &s, nil
		}
	}
	return nil, nil
}

func (f *fakeCatalog) ListProducts(context.Context) ([]models.Product, error) {
	if f.failProducts {
		return nil, errStorage
	}
	return f.products, nil
}

func (f *fakeCatalog) GetProduct(_ context.Context, id int64) (*models.Product, error) {
	for _, p := range f.products {
		if p.ID == id {
			p := p
			return &p, nil
		}
	}
	return nil, nil
}

// fakeOrders mirrors the repository contract: sequential ids under a
// lock, atomic create, transition-guarded status updates.
type fakeOrders struct {
	mu     sync.Mutex
	nextID int64
	orders map[int64]*models.Order
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{orders: make(map[int64]*models.Order)}
}

func (f *fakeOrders) AllocateOrderID(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return f.nextID, nil
}

func (f *fakeOrders) CreateOrder(_ context.Context, input models.CreateOrderInput) error {
	if len(input.Items) == 0 {
		return services.ErrEmptyOrder
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.orders[input.ID]; exists {
		return errors.New("duplicate order id")
	}
	f.orders[input.ID] = &models.Order{
		ID:        input.ID,
		UserID:    input.UserID,
		ShopID:    input.ShopID,
		ImageURL:  input.ImageURL,
		Status:    models.OrderStatusPending,
		CreatedAt: time.Now(),
		Items:     append([]models.OrderItem(nil), input.Items...),
	}
	return nil
}

func (f *fakeOrders) GetOrder(_ context.Context, id int64) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrders) ListOrdersByUser(_ context.Context, userID int64, limit int) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Order
	for id := f.nextID; id > 0 && len(out) < limit; id-- {
		if o, ok := f.orders[id]; ok && o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeOrders) UpdateOrderStatus(_ context.Context, orderID int64, newStatus string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return services.ErrOrderNotFound
	}
	if !services.ValidStatusTransition(o.Status, newStatus) {
		return services.ErrInvalidTransition
	}
	o.Status = newStatus
	return nil
}

type fakeUsers struct {
	byUsername map[string]*models.User
}

func (f *fakeUsers) GetUserByTelegram(_ context.Context, username string) (*models.User, error) {
	return f.byUsername[username], nil
}

type fakeVerifier struct {
	err error
}

func (f *fakeVerifier) Verify(_ context.Context, in photoverify.Input) (*models.VerifiedPhoto, error) {
	if in.Inline {
		return nil, photoverify.ErrWrongMode
	}
	if f.err != nil {
		return nil, f.err
	}
	return &models.VerifiedPhoto{
		Path:    "ShopImage/shop_photo.jpg",
		ShopID:  in.ShopID,
		UserID:  in.UserID,
		TakenAt: time.Now(),
	}, nil
}

type testEnv struct {
	engine   *Engine
	catalog  *fakeCatalog
	orders   *fakeOrders
	verifier *fakeVerifier
	sessions *session.Store
}

func newTestEnv(photoRequired bool) *testEnv {
	catalog := &fakeCatalog{
		areas: []models.Area{{ID: 1, Name: "North"}, {ID: 2, Name: "South"}},
		shops: []models.Shop{
			{ID: 10, AreaID: 1, Name: "Karim Store", Address: "Main Rd"},
			{ID: 11, AreaID: 1, Name: "Rahim Store"},
			{ID: 20, AreaID: 2, Name: "South Corner"},
		},
		products: []models.Product{
			{ID: 100, Name: "Soap", Price: 50},
			{ID: 101, Name: "Shampoo", Price: 120, Discount: 10},
		},
	}
	orders := newFakeOrders()
	users := &fakeUsers{byUsername: map[string]*models.User{
		"akash": {ID: 7, TelUsername: "akash", Name: "Akash"},
		"rina":  {ID: 8, TelUsername: "rina", Name: "Rina"},
	}}
	verifier := &fakeVerifier{}
	sessions := session.NewStore(0)
	return &testEnv{
		engine:   NewEngine(catalog, orders, users, verifier, sessions, photoRequired, 60),
		catalog:  catalog,
		orders:   orders,
		verifier: verifier,
		sessions: sessions,
	}
}

// runToProducts advances a registered user to product selection.
func runToProducts(t *testing.T, env *testEnv, tgID int64, username string) {
	t.Helper()
	ctx := context.Background()
	c := env.engine.StartOrder(ctx, tgID, username)
	require.Contains(t, c.Text, "Select an Area")
	c = env.engine.SelectArea(ctx, tgID, 1)
	require.Contains(t, c.Text, "Select a Shop")
	c = env.engine.SelectShop(ctx, tgID, 10)
	require.Contains(t, c.Text, "PHOTO VERIFICATION")
	c = env.engine.SubmitPhoto(ctx, tgID, photoverify.Input{TempPath: "x.jpg", MimeType: "image/jpeg"})
	require.Contains(t, c.Text, "Photo Verified")
	require.Contains(t, c.Text, "Select Products")
}

func TestFullOrderFlow(t *testing.T) {
	env := newTestEnv(true)
	ctx := context.Background()
	const tgID int64 = 1000

	runToProducts(t, env, tgID, "akash")

	// P1 at 10, P2 at 5, then P1 overwritten to 3: one line per product,
	// last-set quantity wins.
	env.engine.SelectProduct(ctx, tgID, 100)
	env.engine.SetQuantity(ctx, tgID, "10")
	env.engine.SelectProduct(ctx, tgID, 101)
	env.engine.SetQuantity(ctx, tgID, "5")
	env.engine.SelectProduct(ctx, tgID, 100)
	c := env.engine.SetQuantity(ctx, tgID, "3")
	require.Contains(t, c.Text, "Added: Soap × 3")

	c = env.engine.Review(ctx, tgID)
	require.Contains(t, c.Text, "ORDER SUMMARY")
	require.Contains(t, c.Text, "Soap x 3")
	require.Contains(t, c.Text, "Shampoo x 5")

	c = env.engine.Submit(ctx, tgID)
	require.Contains(t, c.Text, "ORDER SUBMITTED")
	require.Contains(t, c.Text, "ord1")

	o, err := env.orders.GetOrder(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Equal(t, int64(7), o.UserID)
	assert.Equal(t, int64(10), o.ShopID)
	assert.Equal(t, models.OrderStatusPending, o.Status)
	require.NotNil(t, o.ImageURL)
	assert.Equal(t, "ShopImage/shop_photo.jpg", *o.ImageURL)
	require.Len(t, o.Items, 2)
	assert.Equal(t, 3, o.Items[0].Quantity)
	assert.Equal(t, 5, o.Items[1].Quantity)

	// Session destroyed: confirm is terminal.
	assert.Nil(t, env.sessions.Get(tgID))

	// listOrders reflects the new order immediately.
	list, err := env.orders.ListOrdersByUser(ctx, 7, 20)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(1), list[0].ID)
}

func TestUnregisteredUserRejected(t *testing.T) {
	env := newTestEnv(true)
	c := env.engine.StartOrder(context.Background(), 1, "stranger")
	assert.Contains(t, c.Text, "not registered")
	assert.Nil(t, env.sessions.Get(1), "no session for unregistered identity")
}

func TestUnknownAreaReprompts(t *testing.T) {
	env := newTestEnv(true)
	ctx := context.Background()
	env.engine.StartOrder(ctx, 1, "akash")

	c := env.engine.SelectArea(ctx, 1, 99)
	assert.Contains(t, c.Text, "Unknown area")
	assert.Contains(t, c.Text, "Select an Area")
	assert.Equal(t, session.StateAwaitingArea, env.sessions.Get(1).State)

	// Still able to make a valid selection.
	c = env.engine.SelectArea(ctx, 1, 1)
	assert.Contains(t, c.Text, "Select a Shop")
}

func TestShopMustBelongToChosenArea(t *testing.T) {
	env := newTestEnv(true)
	ctx := context.Background()
	env.engine.StartOrder(ctx, 1, "akash")
	env.engine.SelectArea(ctx, 1, 1)

	c := env.engine.SelectShop(ctx, 1, 20) // belongs to area 2
	assert.Contains(t, c.Text, "Unknown shop")
	assert.Equal(t, session.StateAwaitingShop, env.sessions.Get(1).State)
}

func TestPhotoRejectsKeepState(t *testing.T) {
	env := newTestEnv(true)
	ctx := context.Background()
	env.engine.StartOrder(ctx, 1, "akash")
	env.engine.SelectArea(ctx, 1, 1)
	env.engine.SelectShop(ctx, 1, 10)

	env.verifier.err = &photoverify.StaleError{
		TakenAt: time.Now().Add(-90 * time.Second), Age: 90 * time.Second, MaxAge: 60 * time.Second,
	}
	c := env.engine.SubmitPhoto(ctx, 1, photoverify.Input{TempPath: "x.jpg", MimeType: "image/jpeg"})
	assert.Contains(t, c.Text, "too old")
	assert.Equal(t, session.StateAwaitingPhoto, env.sessions.Get(1).State)

	env.verifier.err = photoverify.ErrNoTimestamp
	c = env.engine.SubmitPhoto(ctx, 1, photoverify.Input{TempPath: "x.jpg", MimeType: "image/jpeg"})
	assert.Contains(t, c.Text, "No EXIF data")
	assert.Equal(t, session.StateAwaitingPhoto, env.sessions.Get(1).State)

	c = env.engine.SubmitCompressedPhoto(ctx, 1)
	assert.Contains(t, c.Text, "compressed photo")
	assert.Equal(t, session.StateAwaitingPhoto, env.sessions.Get(1).State)

	// No retry limit: a good photo still gets through.
	env.verifier.err = nil
	c = env.engine.SubmitPhoto(ctx, 1, photoverify.Input{TempPath: "x.jpg", MimeType: "image/jpeg"})
	assert.Contains(t, c.Text, "Photo Verified")
	assert.Equal(t, session.StateSelectingProducts, env.sessions.Get(1).State)
}

func TestPhotoStepSkippedWhenNotRequired(t *testing.T) {
	env := newTestEnv(false)
	ctx := context.Background()
	env.engine.StartOrder(ctx, 1, "akash")
	env.engine.SelectArea(ctx, 1, 1)

	c := env.engine.SelectShop(ctx, 1, 10)
	assert.Contains(t, c.Text, "Select Products")
	assert.Equal(t, session.StateSelectingProducts, env.sessions.Get(1).State)

	// Submitting without a photo leaves ImageURL unset.
	env.engine.SelectProduct(ctx, 1, 100)
	env.engine.SetQuantity(ctx, 1, "1")
	env.engine.Review(ctx, 1)
	env.engine.Submit(ctx, 1)
	o, _ := env.orders.GetOrder(ctx, 1)
	require.NotNil(t, o)
	assert.Nil(t, o.ImageURL)
}

func TestConfirmEmptyDraftReprompts(t *testing.T) {
	env := newTestEnv(true)
	ctx := context.Background()
	runToProducts(t, env, 1, "akash")

	c := env.engine.Review(ctx, 1)
	assert.Contains(t, c.Text, "add at least one product")
	assert.Equal(t, session.StateSelectingProducts, env.sessions.Get(1).State)
}

func TestInvalidQuantityReprompts(t *testing.T) {
	env := newTestEnv(true)
	ctx := context.Background()
	runToProducts(t, env, 1, "akash")
	env.engine.SelectProduct(ctx, 1, 100)

	for _, bad := range []string{"abc", "-5", "1.5", "10000", ""} {
		c := env.engine.SetQuantity(ctx, 1, bad)
		assert.Contains(t, c.Text, "❌", "input %q must re-prompt", bad)
		assert.Equal(t, session.StateAwaitingQuantity, env.sessions.Get(1).State, "input %q must not advance state", bad)
	}
	assert.Empty(t, env.sessions.Get(1).Draft.Items, "bad input never touches the draft")

	c := env.engine.SetQuantity(ctx, 1, " 5 ")
	assert.Contains(t, c.Text, "Added: Soap × 5")
}

func TestCancelFromAnyState(t *testing.T) {
	env := newTestEnv(true)
	ctx := context.Background()

	advance := []func(tgID int64){
		func(id int64) { env.engine.StartOrder(ctx, id, "akash") },
		func(id int64) { env.engine.SelectArea(ctx, id, 1) },
		func(id int64) { env.engine.SelectShop(ctx, id, 10) },
		func(id int64) {
			env.engine.SubmitPhoto(ctx, id, photoverify.Input{TempPath: "x.jpg", MimeType: "image/jpeg"})
		},
		func(id int64) { env.engine.SelectProduct(ctx, id, 100) },
		func(id int64) { env.engine.SetQuantity(ctx, id, "2") },
		func(id int64) { env.engine.Review(ctx, id) },
	}

	// Cancel after each prefix of the flow: session gone, nothing persisted,
	// and a fresh /order works.
	for depth := 1; depth <= len(advance); depth++ {
		tgID := int64(100 + depth)
		for i := 0; i < depth; i++ {
			advance[i](tgID)
		}
		c := env.engine.Cancel(ctx, tgID)
		assert.Contains(t, c.Text, "Order cancelled")
		assert.Nil(t, env.sessions.Get(tgID))

		c = env.engine.StartOrder(ctx, tgID, "akash")
		assert.Contains(t, c.Text, "Select an Area")
		env.engine.Cancel(ctx, tgID)
	}
	assert.Empty(t, env.orders.orders, "cancel never persists an order")
}

func TestUnroutableInputKeepsState(t *testing.T) {
	env := newTestEnv(true)
	ctx := context.Background()
	env.engine.StartOrder(ctx, 1, "akash")

	// Product tap while still choosing an area.
	c := env.engine.SelectProduct(ctx, 1, 100)
	assert.Contains(t, c.Text, "Not understood")
	assert.Equal(t, session.StateAwaitingArea, env.sessions.Get(1).State)

	c = env.engine.FreeText(ctx, 1, "hello there")
	assert.Contains(t, c.Text, "Not understood")
	assert.Equal(t, session.StateAwaitingArea, env.sessions.Get(1).State)
}

func TestRepositoryFailureLeavesStateIntact(t *testing.T) {
	env := newTestEnv(true)
	ctx := context.Background()
	runToProducts(t, env, 1, "akash")
	env.engine.SelectProduct(ctx, 1, 100)
	env.engine.SetQuantity(ctx, 1, "4")

	env.catalog.failProducts = true
	c := env.engine.Review(ctx, 1)
	assert.Contains(t, c.Text, "Temporary problem")
	assert.Equal(t, session.StateSelectingProducts, env.sessions.Get(1).State)
	assert.Len(t, env.sessions.Get(1).Draft.Items, 1, "draft survives the failure")

	env.catalog.failProducts = false
	c = env.engine.Review(ctx, 1)
	assert.Contains(t, c.Text, "ORDER SUMMARY")
}

func TestConcurrentUsersIndependentDrafts(t *testing.T) {
	env := newTestEnv(false)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i, username := range []string{"akash", "rina"} {
		tgID := int64(1000 + i)
		qty := []string{"10", "5"}[i]
		username := username
		wg.Add(1)
		go func() {
			defer wg.Done()
			env.engine.StartOrder(ctx, tgID, username)
			env.engine.SelectArea(ctx, tgID, 1)
			env.engine.SelectShop(ctx, tgID, 10)
			env.engine.SelectProduct(ctx, tgID, 100)
			env.engine.SetQuantity(ctx, tgID, qty)
			env.engine.Review(ctx, tgID)
			env.engine.Submit(ctx, tgID)
		}()
	}
	wg.Wait()

	require.Len(t, env.orders.orders, 2)
	byUser := map[int64]int{}
	for _, o := range env.orders.orders {
		require.Len(t, o.Items, 1)
		byUser[o.UserID] = o.Items[0].Quantity
	}
	assert.Equal(t, 10, byUser[7])
	assert.Equal(t, 5, byUser[8])
}

func TestAllocateOrderIDConcurrentDistinct(t *testing.T) {
	orders := newFakeOrders()
	ctx := context.Background()

	const n = 100
	ids := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := orders.AllocateOrderID(ctx)
			assert.NoError(t, err)
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestStatusAndUpdateFlow(t *testing.T) {
	env := newTestEnv(false)
	ctx := context.Background()

	// Two orders for akash.
	for i := 0; i < 2; i++ {
		env.engine.StartOrder(ctx, 1, "akash")
		env.engine.SelectArea(ctx, 1, 1)
		env.engine.SelectShop(ctx, 1, 10)
		env.engine.SelectProduct(ctx, 1, 100)
		env.engine.SetQuantity(ctx, 1, "2")
		env.engine.Review(ctx, 1)
		env.engine.Submit(ctx, 1)
	}

	c := env.engine.Status(ctx, 1, "akash")
	assert.Contains(t, c.Text, "ORDER STATUS FOR AKASH")
	assert.Contains(t, c.Text, "ord1")
	assert.Contains(t, c.Text, "ord2")

	c = env.engine.UpdateList(ctx, 1, "akash")
	assert.Contains(t, c.Text, "UPDATE ORDER STATUS")
	assert.Len(t, c.Buttons, 2)

	// Deliver ord1; a second transition out of Delivered is rejected.
	c = env.engine.ApplyUpdate(ctx, 1, "akash", 1, models.OrderStatusDelivered)
	assert.Contains(t, c.Text, "DELIVERED")
	o, _ := env.orders.GetOrder(ctx, 1)
	assert.Equal(t, models.OrderStatusDelivered, o.Status)

	c = env.engine.ApplyUpdate(ctx, 1, "akash", 1, models.OrderStatusCancelled)
	assert.Contains(t, c.Text, "no longer pending")
	o, _ = env.orders.GetOrder(ctx, 1)
	assert.Equal(t, models.OrderStatusDelivered, o.Status)

	// Cancelled orders keep their row: never deleted.
	c = env.engine.ApplyUpdate(ctx, 1, "akash", 2, models.OrderStatusCancelled)
	assert.Contains(t, c.Text, "CANCELLED")
	o, _ = env.orders.GetOrder(ctx, 2)
	require.NotNil(t, o)
	assert.Equal(t, models.OrderStatusCancelled, o.Status)

	// Cross-user update refused.
	c = env.engine.ApplyUpdate(ctx, 2, "rina", 2, models.OrderStatusDelivered)
	assert.Contains(t, c.Text, "your own orders")

	// Only pending orders are offered for update now.
	c = env.engine.UpdateList(ctx, 1, "akash")
	assert.Contains(t, c.Text, "No pending orders")
}

func TestSessionIdleExpiry(t *testing.T) {
	env := newTestEnv(true)
	ctx := context.Background()
	env.engine.StartOrder(ctx, 1, "akash")

	// Expire the session behind the engine's back; the next event sees
	// no active conversation.
	env.sessions.Delete(1)
	c := env.engine.SelectArea(ctx, 1, 1)
	assert.Contains(t, c.Text, "/order")
}
