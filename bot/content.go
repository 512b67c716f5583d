package bot

import (
	"fmt"
	"strconv"

	"orderkato/models"
	"orderkato/session"
)

// Button is one inline button (text + callback_data).
type Button struct {
	Text string
	Data string
}

// Content is the text and optional inline keyboard of one outbound
// prompt. The engine produces Content; the bot layer renders it.
type Content struct {
	Text    string
	Buttons [][]Button
}

func text(s string) Content {
	return Content{Text: s}
}

const notRegisteredFmt = "❌ User @%s not registered.\n\nPlease contact admin to register."

func notRegistered(username string) Content {
	return text(fmt.Sprintf(notRegisteredFmt, username))
}

func transientError() Content {
	return text("⚠️ Temporary problem reaching storage. Nothing was changed — please try again.")
}

// stepReminder is the "not understood" prompt: no state change, just a
// pointer back to the current step.
func stepReminder(sess *session.Session) Content {
	if sess == nil {
		return text("🤔 Not understood.\n\nType /order to start a new order, /status to see your orders.")
	}
	return text(fmt.Sprintf("🤔 Not understood. You are currently at: %s.\n\nUse the buttons above, or /cancel to abandon the order.", sess.State))
}

func areaPrompt(areas []models.Area) Content {
	c := Content{Text: "📍 Select an Area:"}
	for _, a := range areas {
		c.Buttons = append(c.Buttons, []Button{{Text: a.Name, Data: "area:" + strconv.FormatInt(a.ID, 10)}})
	}
	return c
}

func shopPrompt(areaName string, shops []models.Shop) Content {
	c := Content{Text: fmt.Sprintf("📍 Area: %s\n\n🏪 Select a Shop:", areaName)}
	for _, s := range shops {
		label := s.Name
		if s.Address != "" {
			addr := s.Address
			if len(addr) > 30 {
				addr = addr[:30] + "..."
			}
			label += " (" + addr + ")"
		}
		c.Buttons = append(c.Buttons, []Button{{Text: label, Data: "shop:" + strconv.FormatInt(s.ID, 10)}})
	}
	c.Buttons = append(c.Buttons, []Button{{Text: "◀️ Back to Areas", Data: "back:areas"}})
	return c
}

func photoPrompt(draft *session.Draft, maxAgeSeconds int) Content {
	txt := fmt.Sprintf(
		"📍 Area: %s\n🏪 Shop: %s\n\n"+
			"📸 PHOTO VERIFICATION REQUIRED\n\n"+
			"Please send a photo of the shop as a document/file.\n\n"+
			"⚠️ Requirements:\n"+
			"• Send the photo as File/Document (not as compressed photo)\n"+
			"• Photo must be taken within the last %d seconds\n"+
			"• Photo must contain EXIF metadata\n\n"+
			"📎 To send as file: Attach → File → Select photo",
		draft.AreaName, draft.ShopName, maxAgeSeconds)
	return Content{
		Text:    txt,
		Buttons: [][]Button{{{Text: "◀️ Back to Shops", Data: "back:shops"}}},
	}
}

// productPrompt lists all products with current-draft markers, plus the
// confirm/clear actions once the draft has at least one line.
func productPrompt(sess *session.Session, products []models.Product, prefix string) Content {
	txt := prefix
	txt += fmt.Sprintf("📍 Area: %s\n🏪 Shop: %s\n\n🛒 Select Products:\nTap a product to add/edit quantity", sess.Draft.AreaName, sess.Draft.ShopName)
	if sess.Draft.HasItems() {
		txt += "\n\n📦 Current Order:\n"
		for _, it := range sess.Draft.Items {
			txt += fmt.Sprintf("• %s: %d\n", it.Name, it.Quantity)
		}
	}

	c := Content{Text: txt}
	for _, p := range products {
		qty := sess.Draft.Quantity(p.ID)
		var label string
		if qty > 0 {
			label = fmt.Sprintf("✅ %s (৳%d) [%d]", p.Name, p.FinalPrice(), qty)
		} else {
			label = fmt.Sprintf("➕ %s (৳%d)", p.Name, p.FinalPrice())
		}
		c.Buttons = append(c.Buttons, []Button{{Text: label, Data: "product:" + strconv.FormatInt(p.ID, 10)}})
	}
	if sess.Draft.HasItems() {
		c.Buttons = append(c.Buttons, []Button{
			{Text: "✔️ Confirm Order", Data: "action:confirm"},
			{Text: "🗑️ Clear All", Data: "action:clear"},
		})
	}
	c.Buttons = append(c.Buttons, []Button{{Text: "◀️ Back to Shops", Data: "back:shops"}})
	return c
}

func quantityPrompt(productName string, currentQty int) Content {
	txt := fmt.Sprintf("📦 %s\n\n", productName)
	if currentQty > 0 {
		txt += fmt.Sprintf("Current quantity: %d\n\n", currentQty)
	}
	txt += "Select quantity or type a number:"

	c := Content{
		Text: txt,
		Buttons: [][]Button{
			{{Text: "1", Data: "qty:1"}, {Text: "2", Data: "qty:2"}, {Text: "3", Data: "qty:3"}, {Text: "5", Data: "qty:5"}},
			{{Text: "10", Data: "qty:10"}, {Text: "20", Data: "qty:20"}, {Text: "50", Data: "qty:50"}, {Text: "100", Data: "qty:100"}},
		},
	}
	if currentQty > 0 {
		c.Buttons = append(c.Buttons, []Button{{Text: fmt.Sprintf("🗑️ Remove (Current: %d)", currentQty), Data: "qty:0"}})
	}
	c.Buttons = append(c.Buttons, []Button{{Text: "◀️ Back to Products", Data: "back:products"}})
	return c
}

func confirmPrompt(sess *session.Session, products []models.Product) Content {
	byID := make(map[int64]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	var summary string
	totalItems := 0
	var totalPrice int64
	for _, it := range sess.Draft.Items {
		line := fmt.Sprintf("  • %s x %d", it.Name, it.Quantity)
		if p, ok := byID[it.ProductID]; ok {
			lineTotal := p.FinalPrice() * int64(it.Quantity)
			line += fmt.Sprintf(" = ৳%d", lineTotal)
			totalPrice += lineTotal
		}
		summary += line + "\n"
		totalItems += it.Quantity
	}

	txt := fmt.Sprintf(
		"📋 ORDER SUMMARY\n\n📍 Area: %s\n🏪 Shop: %s\n\n📦 Items:\n%s\n📊 Total items: %d\n💰 Total: ৳%d\n\nPlease confirm your order:",
		sess.Draft.AreaName, sess.Draft.ShopName, summary, totalItems, totalPrice)

	return Content{
		Text: txt,
		Buttons: [][]Button{
			{{Text: "✅ SUBMIT ORDER", Data: "action:submit"}, {Text: "❌ Cancel", Data: "action:cancel"}},
			{{Text: "✏️ Edit Order", Data: "back:products"}},
		},
	}
}

func orderSubmitted(orderID int64, sess *session.Session, userName string, photoVerified bool) Content {
	photoStatus := "❌ Not provided"
	if photoVerified {
		photoStatus = "✅ Verified"
	}
	var summary string
	totalQty := 0
	for _, it := range sess.Draft.Items {
		summary += fmt.Sprintf("  • %s x %d\n", it.Name, it.Quantity)
		totalQty += it.Quantity
	}
	return text(fmt.Sprintf(
		"✅ ORDER SUBMITTED SUCCESSFULLY!\n\n🆔 Order ID: ord%d\n\n👤 User: %s\n\n📍 Area: %s\n🏪 Shop: %s\n📸 Photo: %s\n\n📦 Ordered Items:\n%s\n📊 Total Quantity: %d\n\n📌 Status: PENDING\n\nType /order to place another order.",
		orderID, userName, sess.Draft.AreaName, sess.Draft.ShopName, photoStatus, summary, totalQty))
}

func statusIcon(status string) string {
	switch status {
	case models.OrderStatusPending:
		return "🟡"
	case models.OrderStatusDelivered:
		return "✅"
	case models.OrderStatusCancelled:
		return "❌"
	case models.OrderStatusUnderDelivered, models.OrderStatusOverDelivered:
		return "⚠️"
	}
	return "⚪"
}

func itemsSummary(items []models.OrderItem, max int) string {
	s := ""
	for i, it := range items {
		if i == max {
			s += fmt.Sprintf(" (+%d more)", len(items)-max)
			break
		}
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%s x%d", it.ProductName, it.Quantity)
	}
	return s
}
