package bot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"orderkato/config"
	"orderkato/models"
	"orderkato/photoverify"
	"orderkato/services"
	"orderkato/session"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

type Bot struct {
	api     *tgbotapi.BotAPI
	cfg     *config.Config
	engine  *Engine
	tempDir string
}

func New(cfg *config.Config) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, err
	}

	verifier := photoverify.New(
		photoverify.ExifExtractor{},
		services.RecordShopPhoto,
		cfg.Photo.Dir,
		cfg.Photo.MaxAge,
		cfg.Photo.ClockSkew,
	)
	sessions := session.NewStore(cfg.Session.IdleTimeout)
	engine := NewEngine(
		pgCatalog{}, pgOrders{}, pgUsers{}, verifier, sessions,
		cfg.Photo.VerifyRequired, int(cfg.Photo.MaxAge.Seconds()),
	)

	return &Bot{
		api:     api,
		cfg:     cfg,
		engine:  engine,
		tempDir: cfg.Photo.TempDir,
	}, nil
}

func (b *Bot) setBotCommands() error {
	cfg := tgbotapi.SetMyCommandsConfig{
		Commands: []tgbotapi.BotCommand{
			{Command: "order", Description: "Start a new order"},
			{Command: "status", Description: "Check your order status"},
			{Command: "update", Description: "Update order status"},
			{Command: "cancel", Description: "Cancel current order"},
			{Command: "help", Description: "Show help message"},
		},
	}
	_, err := b.api.Request(cfg)
	return err
}

func (b *Bot) Start() {
	_ = b.setBotCommands()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	for update := range updates {
		if update.CallbackQuery != nil {
			b.handleCallback(update.CallbackQuery)
			continue
		}
		if update.Message == nil {
			continue
		}
		b.handleMessage(update.Message)
	}
}

func (b *Bot) handleMessage(msg *tgbotapi.Message) {
	ctx := context.Background()
	chatID := msg.Chat.ID
	tgUserID := msg.From.ID
	username := msg.From.UserName
	txt := strings.TrimSpace(msg.Text)

	switch {
	case txt == "/start":
		b.send(chatID, welcomeText())
	case txt == "/help":
		b.send(chatID, helpText())
	case txt == "/order":
		b.reply(chatID, b.engine.StartOrder(ctx, tgUserID, username))
	case txt == "/status":
		b.reply(chatID, b.engine.Status(ctx, tgUserID, username))
	case txt == "/update":
		b.reply(chatID, b.engine.UpdateList(ctx, tgUserID, username))
	case txt == "/cancel":
		b.reply(chatID, b.engine.Cancel(ctx, tgUserID))
	case msg.Document != nil:
		b.handleDocument(ctx, chatID, tgUserID, msg.Document)
	case len(msg.Photo) > 0:
		// Inline photos are compressed by the transport and lose EXIF.
		b.reply(chatID, b.engine.SubmitCompressedPhoto(ctx, tgUserID))
	case txt != "":
		b.reply(chatID, b.engine.FreeText(ctx, tgUserID, txt))
	}
}

func (b *Bot) handleCallback(cq *tgbotapi.CallbackQuery) {
	ctx := context.Background()
	chatID := cq.Message.Chat.ID
	tgUserID := cq.From.ID
	username := cq.From.UserName
	data := cq.Data

	b.api.Request(tgbotapi.NewCallback(cq.ID, ""))

	switch {
	case strings.HasPrefix(data, "area:"):
		if id, ok := parseID(data, "area:"); ok {
			b.reply(chatID, b.engine.SelectArea(ctx, tgUserID, id))
		}
	case strings.HasPrefix(data, "shop:"):
		if id, ok := parseID(data, "shop:"); ok {
			b.reply(chatID, b.engine.SelectShop(ctx, tgUserID, id))
		}
	case strings.HasPrefix(data, "product:"):
		if id, ok := parseID(data, "product:"); ok {
			b.reply(chatID, b.engine.SelectProduct(ctx, tgUserID, id))
		}
	case strings.HasPrefix(data, "qty:"):
		b.reply(chatID, b.engine.SetQuantity(ctx, tgUserID, strings.TrimPrefix(data, "qty:")))
	case data == "action:confirm":
		b.reply(chatID, b.engine.Review(ctx, tgUserID))
	case data == "action:clear":
		b.reply(chatID, b.engine.ClearItems(ctx, tgUserID))
	case data == "action:submit":
		b.reply(chatID, b.engine.Submit(ctx, tgUserID))
	case data == "action:cancel":
		b.reply(chatID, b.engine.Cancel(ctx, tgUserID))
	case data == "back:areas":
		b.reply(chatID, b.engine.BackToAreas(ctx, tgUserID))
	case data == "back:shops":
		b.reply(chatID, b.engine.BackToShops(ctx, tgUserID))
	case data == "back:products":
		b.reply(chatID, b.engine.BackToProducts(ctx, tgUserID))
	case strings.HasPrefix(data, "upd_info:"):
		b.api.Request(tgbotapi.NewCallback(cq.ID, "Order: ord"+strings.TrimPrefix(data, "upd_info:")))
	case strings.HasPrefix(data, "upd_done:"):
		if id, ok := parseID(data, "upd_done:"); ok {
			b.reply(chatID, b.engine.ApplyUpdate(ctx, tgUserID, username, id, models.OrderStatusDelivered))
		}
	case strings.HasPrefix(data, "upd_cancel:"):
		if id, ok := parseID(data, "upd_cancel:"); ok {
			b.reply(chatID, b.engine.ApplyUpdate(ctx, tgUserID, username, id, models.OrderStatusCancelled))
		}
	}
}

// handleDocument downloads the uploaded file to the temp dir and runs
// photo verification. The temp file is removed either way; the verifier
// keeps its own copy on accept.
func (b *Bot) handleDocument(ctx context.Context, chatID, tgUserID int64, doc *tgbotapi.Document) {
	if !b.engine.InPhotoState(tgUserID) {
		b.reply(chatID, b.engine.FreeText(ctx, tgUserID, ""))
		return
	}

	tmp, err := b.downloadDocument(doc, tgUserID)
	if err != nil {
		log.Error().Err(err).Str("file_id", doc.FileID).Msg("download document")
		b.reply(chatID, transientError())
		return
	}
	defer os.Remove(tmp)

	b.reply(chatID, b.engine.SubmitPhoto(ctx, tgUserID, photoverify.Input{
		TempPath: tmp,
		FileName: doc.FileName,
		MimeType: doc.MimeType,
	}))
}

func (b *Bot) downloadDocument(doc *tgbotapi.Document, tgUserID int64) (string, error) {
	url, err := b.api.GetFileDirectURL(doc.FileID)
	if err != nil {
		return "", err
	}
	resp, err := http.Get(url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download: unexpected status %s", resp.Status)
	}

	if err := os.MkdirAll(b.tempDir, 0o755); err != nil {
		return "", err
	}
	ext := filepath.Ext(doc.FileName)
	if ext == "" {
		ext = ".jpg"
	}
	tmp := filepath.Join(b.tempDir, fmt.Sprintf("temp_%d_%s%s",
		tgUserID, time.Now().Format("20060102150405"), ext))

	out, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(tmp)
		return "", err
	}
	return tmp, out.Close()
}

func (b *Bot) send(chatID int64, txt string) {
	b.reply(chatID, text(txt))
}

func (b *Bot) reply(chatID int64, c Content) {
	msg := tgbotapi.NewMessage(chatID, c.Text)
	if kb := markup(c); kb != nil {
		msg.ReplyMarkup = *kb
	}
	if _, err := b.api.Send(msg); err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("send")
	}
}

// markup converts Content.Buttons to a Telegram inline keyboard.
func markup(c Content) *tgbotapi.InlineKeyboardMarkup {
	if len(c.Buttons) == 0 {
		return nil
	}
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, row := range c.Buttons {
		var btns []tgbotapi.InlineKeyboardButton
		for _, btn := range row {
			btns = append(btns, tgbotapi.NewInlineKeyboardButtonData(btn.Text, btn.Data))
		}
		rows = append(rows, btns)
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &kb
}

func parseID(data, prefix string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimPrefix(data, prefix), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func welcomeText() string {
	return "👋 Welcome to OrderKato Bot!\n\n" +
		"This bot helps you place orders for shops.\n\n" +
		"📝 Commands:\n" +
		"/order - Start a new order\n" +
		"/status - Check your order status\n" +
		"/update - Update order status\n" +
		"/cancel - Cancel current order\n" +
		"/help - Show help message"
}

func helpText() string {
	return "📖 How to use OrderKato Bot:\n\n" +
		"1. Type /order to start a new order\n" +
		"2. Select an area from the list\n" +
		"3. Select a shop from that area\n" +
		"4. Send a fresh shop photo as a file (if asked)\n" +
		"5. Select products and enter quantities\n" +
		"6. Confirm your order\n\n" +
		"📝 Commands:\n" +
		"/order - Start a new order\n" +
		"/status - Check your order status\n" +
		"/update - Update order status\n" +
		"/cancel - Cancel current order\n" +
		"/help - Show this help message"
}
