package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"orderkato/models"
	"orderkato/services"

	"github.com/rs/zerolog/log"
)

const listOrdersLimit = 20

// Status handles /status: the user's recent orders with status and a
// short line-item summary, newest first.
func (e *Engine) Status(ctx context.Context, tgUserID int64, username string) Content {
	user, err := e.users.GetUserByTelegram(ctx, username)
	if err != nil {
		log.Error().Err(err).Str("username", username).Msg("resolve user")
		return transientError()
	}
	if user == nil {
		return notRegistered(username)
	}

	orders, err := e.orders.ListOrdersByUser(ctx, user.ID, listOrdersLimit)
	if err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("list orders")
		return transientError()
	}
	if len(orders) == 0 {
		return text(fmt.Sprintf("📋 No orders found for %s.\n\nType /order to place a new order.", user.Name))
	}

	txt := fmt.Sprintf("📋 ORDER STATUS FOR %s\n\n", strings.ToUpper(user.Name))
	shown := orders
	if len(shown) > 10 {
		shown = shown[:10]
	}
	for _, o := range shown {
		txt += fmt.Sprintf("%s ord%d\n", statusIcon(o.Status), o.ID)
		txt += fmt.Sprintf("   📍 %s (%s)\n", o.ShopName, o.AreaName)
		txt += fmt.Sprintf("   📦 %s\n", itemsSummary(o.Items, 3))
		txt += fmt.Sprintf("   📌 Status: %s\n", strings.ToUpper(o.Status))
		txt += fmt.Sprintf("   🕐 %s\n\n", o.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	if len(orders) > 10 {
		txt += fmt.Sprintf("... and %d more orders\n\n", len(orders)-10)
	}
	txt += "Type /order to place a new order."
	return text(txt)
}

// UpdateList handles /update: only the user's Pending orders, each with
// Delivered/Cancel actions.
func (e *Engine) UpdateList(ctx context.Context, tgUserID int64, username string) Content {
	user, err := e.users.GetUserByTelegram(ctx, username)
	if err != nil {
		log.Error().Err(err).Str("username", username).Msg("resolve user")
		return transientError()
	}
	if user == nil {
		return notRegistered(username)
	}

	all, err := e.orders.ListOrdersByUser(ctx, user.ID, listOrdersLimit)
	if err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("list orders")
		return transientError()
	}
	var pending []models.Order
	for _, o := range all {
		if o.Status == models.OrderStatusPending {
			pending = append(pending, o)
		}
	}
	if len(pending) == 0 {
		return text(fmt.Sprintf("📋 No pending orders found for %s.\n\nOnly pending orders can be updated.\nType /status to see all your orders.", user.Name))
	}
	if len(pending) > 10 {
		pending = pending[:10]
	}

	c := Content{Text: "📝 UPDATE ORDER STATUS\n\nSelect an order to update:\n\n"}
	for _, o := range pending {
		c.Text += fmt.Sprintf("🟡 ord%d - %s\n   %s\n\n", o.ID, o.ShopName, itemsSummary(o.Items, 2))
		id := strconv.FormatInt(o.ID, 10)
		c.Buttons = append(c.Buttons, []Button{
			{Text: fmt.Sprintf("ord%d", o.ID), Data: "upd_info:" + id},
			{Text: "✅ Delivered", Data: "upd_done:" + id},
			{Text: "❌ Cancel", Data: "upd_cancel:" + id},
		})
	}
	return c
}

// ApplyUpdate moves one of the invoking user's Pending orders to
// Delivered or Cancelled. Orders are never deleted, only
// status-transitioned; cross-user and non-Pending updates are refused.
func (e *Engine) ApplyUpdate(ctx context.Context, tgUserID int64, username string, orderID int64, newStatus string) Content {
	user, err := e.users.GetUserByTelegram(ctx, username)
	if err != nil {
		log.Error().Err(err).Str("username", username).Msg("resolve user")
		return transientError()
	}
	if user == nil {
		return notRegistered(username)
	}

	order, err := e.orders.GetOrder(ctx, orderID)
	if err != nil {
		log.Error().Err(err).Int64("order_id", orderID).Msg("get order")
		return transientError()
	}
	if order == nil {
		return text(fmt.Sprintf("❌ Order ord%d not found.", orderID))
	}
	if order.UserID != user.ID {
		return text("❌ You can only update your own orders.")
	}

	if err := e.orders.UpdateOrderStatus(ctx, orderID, newStatus); err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidTransition):
			return text(fmt.Sprintf("❌ Order ord%d is no longer pending and cannot be updated.\n\nType /status to see your orders.", orderID))
		case errors.Is(err, services.ErrOrderNotFound):
			return text(fmt.Sprintf("❌ Order ord%d not found.", orderID))
		default:
			log.Error().Err(err).Int64("order_id", orderID).Str("status", newStatus).Msg("update order status")
			return transientError()
		}
	}

	log.Info().Int64("order_id", orderID).Str("status", newStatus).Int64("user_id", user.ID).Msg("order status updated")
	switch newStatus {
	case models.OrderStatusDelivered:
		return text(fmt.Sprintf("✅ Order ord%d marked as DELIVERED!\n\nType /status to see your orders.\nType /update to update more orders.", orderID))
	case models.OrderStatusCancelled:
		return text(fmt.Sprintf("❌ Order ord%d has been CANCELLED!\n\nType /status to see your orders.\nType /order to place a new order.", orderID))
	}
	return text(fmt.Sprintf("✅ Order ord%d updated to %s.", orderID, newStatus))
}
