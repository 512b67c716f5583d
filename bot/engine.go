package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"orderkato/models"
	"orderkato/photoverify"
	"orderkato/session"

	"github.com/rs/zerolog/log"
)

const maxQuantity = 9999

// Engine drives one user's order conversation: a state machine over the
// session store. Every method serializes on the per-user lock, so two
// events for the same user are never handled concurrently.
type Engine struct {
	catalog  Catalog
	orders   Orders
	users    Users
	verifier Verifier
	sessions *session.Store

	photoRequired bool
	photoMaxAge   int // seconds, for prompt text
}

func NewEngine(catalog Catalog, orders Orders, users Users, verifier Verifier,
	sessions *session.Store, photoRequired bool, photoMaxAgeSeconds int) *Engine {
	return &Engine{
		catalog:       catalog,
		orders:        orders,
		users:         users,
		verifier:      verifier,
		sessions:      sessions,
		photoRequired: photoRequired,
		photoMaxAge:   photoMaxAgeSeconds,
	}
}

// StartOrder handles /order: registration gate, then a fresh session in
// the area-selection state. A previous in-progress order is discarded.
func (e *Engine) StartOrder(ctx context.Context, tgUserID int64, username string) Content {
	unlock := e.sessions.Lock(tgUserID)
	defer unlock()

	user, err := e.users.GetUserByTelegram(ctx, username)
	if err != nil {
		log.Error().Err(err).Str("username", username).Msg("resolve user")
		return transientError()
	}
	if user == nil {
		return notRegistered(username)
	}

	areas, err := e.catalog.ListAreas(ctx)
	if err != nil {
		log.Error().Err(err).Msg("list areas")
		return transientError()
	}
	if len(areas) == 0 {
		return text("❌ No areas found. Please contact admin.")
	}

	e.sessions.Put(tgUserID, &session.Session{
		UserID:   user.ID,
		UserName: user.Name,
		State:    session.StateAwaitingArea,
	})
	return areaPrompt(areas)
}

// SelectArea validates the tapped area against the current catalog. An
// unknown id re-prompts without a transition.
func (e *Engine) SelectArea(ctx context.Context, tgUserID int64, areaID int64) Content {
	unlock := e.sessions.Lock(tgUserID)
	defer unlock()

	sess := e.sessions.Get(tgUserID)
	if sess == nil || sess.State != session.StateAwaitingArea {
		return stepReminder(sess)
	}

	area, err := e.catalog.GetArea(ctx, areaID)
	if err != nil {
		log.Error().Err(err).Int64("area_id", areaID).Msg("get area")
		return transientError()
	}
	if area == nil {
		return e.reshowAreas(ctx, "❌ Unknown area.\n\n")
	}

	shops, err := e.catalog.ListShopsByArea(ctx, area.ID)
	if err != nil {
		log.Error().Err(err).Int64("area_id", areaID).Msg("list shops")
		return transientError()
	}
	if len(shops) == 0 {
		return e.reshowAreas(ctx, fmt.Sprintf("❌ No shops found in %s.\n\n", area.Name))
	}

	sess.Draft.AreaID = area.ID
	sess.Draft.AreaName = area.Name
	sess.State = session.StateAwaitingShop
	return shopPrompt(area.Name, shops)
}

// SelectShop validates the shop belongs to the chosen area, then moves
// on to photo verification (when required) or product selection.
func (e *Engine) SelectShop(ctx context.Context, tgUserID int64, shopID int64) Content {
	unlock := e.sessions.Lock(tgUserID)
	defer unlock()

	sess := e.sessions.Get(tgUserID)
	if sess == nil || sess.State != session.StateAwaitingShop {
		return stepReminder(sess)
	}

	shop, err := e.catalog.GetShop(ctx, shopID)
	if err != nil {
		log.Error().Err(err).Int64("shop_id", shopID).Msg("get shop")
		return transientError()
	}
	if shop == nil || shop.AreaID != sess.Draft.AreaID {
		return e.reshowShops(ctx, sess, "❌ Unknown shop for this area.\n\n")
	}

	sess.Draft.ShopID = shop.ID
	sess.Draft.ShopName = shop.Name
	sess.Draft.PhotoPath = ""

	if e.photoRequired {
		sess.State = session.StateAwaitingPhoto
		return photoPrompt(&sess.Draft, e.photoMaxAge)
	}
	sess.State = session.StateSelectingProducts
	return e.showProducts(ctx, sess, "")
}

// SubmitPhoto runs the verifier on an uploaded document. Every reject
// keeps the session in the photo state with a reason-specific message;
// accept consumes the photo into the draft and moves to products.
func (e *Engine) SubmitPhoto(ctx context.Context, tgUserID int64, in photoverify.Input) Content {
	unlock := e.sessions.Lock(tgUserID)
	defer unlock()

	sess := e.sessions.Get(tgUserID)
	if sess == nil || sess.State != session.StateAwaitingPhoto {
		return stepReminder(sess)
	}

	in.ShopID = sess.Draft.ShopID
	in.UserID = sess.UserID

	photo, err := e.verifier.Verify(ctx, in)
	if err != nil {
		return photoRejectMessage(err)
	}

	sess.Draft.PhotoPath = photo.Path
	sess.State = session.StateSelectingProducts
	prefix := fmt.Sprintf("✅ Photo Verified Successfully!\n\n📅 Photo taken: %s\n\n",
		photo.TakenAt.Format("2006-01-02 15:04:05"))
	return e.showProducts(ctx, sess, prefix)
}

func photoRejectMessage(err error) Content {
	var stale *photoverify.StaleError
	switch {
	case errors.Is(err, photoverify.ErrWrongMode):
		return text("❌ Invalid format!\n\nYou sent a compressed photo. Please send it as a document/file instead.\n\n📎 How to send as file:\n1. Tap the 📎 attach icon\n2. Select File (not Photo)\n3. Choose your photo from gallery\n\nThis preserves the EXIF data needed for verification.")
	case errors.Is(err, photoverify.ErrNotImage):
		return text("❌ Invalid format!\n\nPlease send an image file (JPEG, PNG, etc.) as a document.\n\n📎 Tap Attach → File → Select your photo")
	case errors.Is(err, photoverify.ErrNoTimestamp):
		return text("❌ No EXIF data found!\n\nThis photo doesn't contain timestamp information.\n\nPlease take a new photo with your camera app and send it as a document.\n\n💡 Make sure your camera saves EXIF data (location/time info).")
	case errors.Is(err, photoverify.ErrBadTimestamp):
		return text("❌ Unreadable timestamp!\n\nThe photo's timestamp metadata is malformed.\n\nPlease take a new photo with your camera app and send it as a document.")
	case errors.Is(err, photoverify.ErrFutureTimestamp):
		return text("❌ Suspicious timestamp!\n\nThe photo claims to be taken in the future. Check your camera's clock and take a fresh photo.")
	case errors.As(err, &stale):
		age := int(stale.Age.Seconds())
		return text(fmt.Sprintf(
			"❌ Photo is too old!\n\n📅 Photo taken: %s\n⏱️ Age: %dm %ds ago\n⏳ Maximum allowed: %d seconds\n\nPlease take a fresh photo right now and send it as a document.",
			stale.TakenAt.Format("2006-01-02 15:04:05"), age/60, age%60, int(stale.MaxAge.Seconds())))
	default:
		log.Error().Err(err).Msg("photo verification")
		return transientError()
	}
}

// SubmitCompressedPhoto handles inline (compressed) photos arriving in
// the photo state. They are rejected without touching disk.
func (e *Engine) SubmitCompressedPhoto(ctx context.Context, tgUserID int64) Content {
	return e.SubmitPhoto(ctx, tgUserID, photoverify.Input{Inline: true})
}

// InPhotoState reports whether the user's next upload should be treated
// as a verification photo. Used by the transport layer to avoid
// downloading documents nobody asked for.
func (e *Engine) InPhotoState(tgUserID int64) bool {
	unlock := e.sessions.Lock(tgUserID)
	defer unlock()
	sess := e.sessions.Get(tgUserID)
	return sess != nil && sess.State == session.StateAwaitingPhoto
}

func (e *Engine) SelectProduct(ctx context.Context, tgUserID int64, productID int64) Content {
	unlock := e.sessions.Lock(tgUserID)
	defer unlock()

	sess := e.sessions.Get(tgUserID)
	if sess == nil || sess.State != session.StateSelectingProducts {
		return stepReminder(sess)
	}

	product, err := e.catalog.GetProduct(ctx, productID)
	if err != nil {
		log.Error().Err(err).Int64("product_id", productID).Msg("get product")
		return transientError()
	}
	if product == nil {
		return e.showProducts(ctx, sess, "❌ Unknown product.\n\n")
	}

	sess.CurrentProduct = product.ID
	sess.CurrentProductName = product.Name
	sess.State = session.StateAwaitingQuantity
	return quantityPrompt(product.Name, sess.Draft.Quantity(product.ID))
}

// SetQuantity handles both quick-pick buttons and typed numbers.
// Invalid input re-prompts in place; 0 removes the line.
func (e *Engine) SetQuantity(ctx context.Context, tgUserID int64, raw string) Content {
	unlock := e.sessions.Lock(tgUserID)
	defer unlock()

	sess := e.sessions.Get(tgUserID)
	if sess == nil || sess.State != session.StateAwaitingQuantity {
		return stepReminder(sess)
	}

	qty, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || qty < 0 {
		return text("❌ Please enter a valid number.")
	}
	if qty > maxQuantity {
		return text(fmt.Sprintf("❌ Maximum quantity is %d. Please enter a smaller number.", maxQuantity))
	}

	sess.Draft.SetQuantity(sess.CurrentProduct, sess.CurrentProductName, qty)
	name := sess.CurrentProductName
	sess.CurrentProduct = 0
	sess.CurrentProductName = ""
	sess.State = session.StateSelectingProducts

	prefix := fmt.Sprintf("✅ Added: %s × %d\n\n", name, qty)
	if qty == 0 {
		prefix = fmt.Sprintf("🗑️ Removed: %s\n\n", name)
	}
	return e.showProducts(ctx, sess, prefix)
}

// Review handles action:confirm from product selection. The draft must
// have at least one line item before the confirmation screen is shown.
func (e *Engine) Review(ctx context.Context, tgUserID int64) Content {
	unlock := e.sessions.Lock(tgUserID)
	defer unlock()

	sess := e.sessions.Get(tgUserID)
	if sess == nil || sess.State != session.StateSelectingProducts {
		return stepReminder(sess)
	}
	if !sess.Draft.HasItems() {
		return e.showProducts(ctx, sess, "❌ No items yet — add at least one product first.\n\n")
	}

	products, err := e.catalog.ListProducts(ctx)
	if err != nil {
		log.Error().Err(err).Msg("list products")
		return transientError()
	}
	sess.State = session.StateAwaitingConfirmation
	return confirmPrompt(sess, products)
}

func (e *Engine) ClearItems(ctx context.Context, tgUserID int64) Content {
	unlock := e.sessions.Lock(tgUserID)
	defer unlock()

	sess := e.sessions.Get(tgUserID)
	if sess == nil || sess.State != session.StateSelectingProducts {
		return stepReminder(sess)
	}
	sess.Draft.Items = nil
	return e.showProducts(ctx, sess, "🗑️ All items cleared.\n\n")
}

// Submit persists the draft as one atomic order and destroys the
// session. A storage failure keeps the session at confirmation.
func (e *Engine) Submit(ctx context.Context, tgUserID int64) Content {
	unlock := e.sessions.Lock(tgUserID)
	defer unlock()

	sess := e.sessions.Get(tgUserID)
	if sess == nil || sess.State != session.StateAwaitingConfirmation {
		return stepReminder(sess)
	}
	// Guarded at Review already; a draft can never lose items after that.
	if !sess.Draft.HasItems() {
		sess.State = session.StateSelectingProducts
		return e.showProducts(ctx, sess, "❌ No items in order.\n\n")
	}

	orderID, err := e.orders.AllocateOrderID(ctx)
	if err != nil {
		log.Error().Err(err).Msg("allocate order id")
		return transientError()
	}

	input := models.CreateOrderInput{
		ID:     orderID,
		UserID: sess.UserID,
		ShopID: sess.Draft.ShopID,
	}
	if sess.Draft.PhotoPath != "" {
		p := sess.Draft.PhotoPath
		input.ImageURL = &p
	}
	for _, it := range sess.Draft.Items {
		input.Items = append(input.Items, models.OrderItem{
			ProductID:   it.ProductID,
			ProductName: it.Name,
			Quantity:    it.Quantity,
		})
	}

	if err := e.orders.CreateOrder(ctx, input); err != nil {
		log.Error().Err(err).Int64("order_id", orderID).Msg("create order")
		return transientError()
	}

	content := orderSubmitted(orderID, sess, sess.UserName, sess.Draft.PhotoPath != "")
	e.sessions.Delete(tgUserID)
	log.Info().Int64("order_id", orderID).Int64("user_id", sess.UserID).
		Int64("shop_id", sess.Draft.ShopID).Int("items", len(input.Items)).Msg("order created")
	return content
}

// Cancel destroys the session from any state with no persisted side
// effects. Safe to call with no active session.
func (e *Engine) Cancel(ctx context.Context, tgUserID int64) Content {
	unlock := e.sessions.Lock(tgUserID)
	defer unlock()

	if e.sessions.Get(tgUserID) == nil {
		return text("No active order.\n\nType /order to start a new order.")
	}
	e.sessions.Delete(tgUserID)
	return text("❌ Order cancelled.\n\nType /order to start a new order.")
}

// Back navigation. Moving back from product selection to shops drops
// the verified photo: it was taken for the shop being abandoned.

func (e *Engine) BackToAreas(ctx context.Context, tgUserID int64) Content {
	unlock := e.sessions.Lock(tgUserID)
	defer unlock()

	sess := e.sessions.Get(tgUserID)
	if sess == nil || sess.State != session.StateAwaitingShop {
		return stepReminder(sess)
	}
	sess.State = session.StateAwaitingArea
	return e.reshowAreas(ctx, "")
}

func (e *Engine) BackToShops(ctx context.Context, tgUserID int64) Content {
	unlock := e.sessions.Lock(tgUserID)
	defer unlock()

	sess := e.sessions.Get(tgUserID)
	if sess == nil {
		return stepReminder(sess)
	}
	switch sess.State {
	case session.StateAwaitingPhoto, session.StateSelectingProducts:
	default:
		return stepReminder(sess)
	}
	sess.Draft.ShopID = 0
	sess.Draft.ShopName = ""
	sess.Draft.PhotoPath = ""
	sess.State = session.StateAwaitingShop
	return e.reshowShops(ctx, sess, "")
}

func (e *Engine) BackToProducts(ctx context.Context, tgUserID int64) Content {
	unlock := e.sessions.Lock(tgUserID)
	defer unlock()

	sess := e.sessions.Get(tgUserID)
	if sess == nil {
		return stepReminder(sess)
	}
	switch sess.State {
	case session.StateAwaitingQuantity, session.StateAwaitingConfirmation:
	default:
		return stepReminder(sess)
	}
	sess.CurrentProduct = 0
	sess.CurrentProductName = ""
	sess.State = session.StateSelectingProducts
	return e.showProducts(ctx, sess, "")
}

// FreeText routes non-command text: a typed quantity when one is
// expected, otherwise the step reminder.
func (e *Engine) FreeText(ctx context.Context, tgUserID int64, txt string) Content {
	if sess := e.peek(tgUserID); sess != nil && sess.State == session.StateAwaitingQuantity {
		return e.SetQuantity(ctx, tgUserID, txt)
	}
	unlock := e.sessions.Lock(tgUserID)
	defer unlock()
	return stepReminder(e.sessions.Get(tgUserID))
}

func (e *Engine) peek(tgUserID int64) *session.Session {
	unlock := e.sessions.Lock(tgUserID)
	defer unlock()
	return e.sessions.Get(tgUserID)
}

// showProducts renders the product-selection prompt for the session's
// current draft. Callers hold the user lock.
func (e *Engine) showProducts(ctx context.Context, sess *session.Session, prefix string) Content {
	products, err := e.catalog.ListProducts(ctx)
	if err != nil {
		log.Error().Err(err).Msg("list products")
		return transientError()
	}
	if len(products) == 0 {
		return text("❌ No products found. Please contact admin.")
	}
	return productPrompt(sess, products, prefix)
}

func (e *Engine) reshowAreas(ctx context.Context, prefix string) Content {
	areas, err := e.catalog.ListAreas(ctx)
	if err != nil {
		log.Error().Err(err).Msg("list areas")
		return transientError()
	}
	c := areaPrompt(areas)
	c.Text = prefix + c.Text
	return c
}

func (e *Engine) reshowShops(ctx context.Context, sess *session.Session, prefix string) Content {
	shops, err := e.catalog.ListShopsByArea(ctx, sess.Draft.AreaID)
	if err != nil {
		log.Error().Err(err).Msg("list shops")
		return transientError()
	}
	c := shopPrompt(sess.Draft.AreaName, shops)
	c.Text = prefix + c.Text
	return c
}
