package telegram

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"github.com/yeqown/go-qrcode"

	"github.com/amiren/resonance-bot/internal/notify"
	"github.com/amiren/resonance-bot/internal/session"
)

type responses []tgbotapi.Chattable

const sorry = "Что-то пошло не так, попробуйте ещё раз 👉🏻👈🏻"

func errorMessage(chatID int64) tgbotapi.Chattable {
	return tgbotapi.NewMessage(chatID, sorry)
}

func (b *Bot) handleMessage(msg *tgbotapi.Message) (responses, error) {
	ctx := context.Background()
	from := msg.From
	if from == nil {
		return nil, errors.New("message without sender")
	}
	chatID := msg.Chat.ID

	if msg.IsCommand() {
		return b.handleCommand(ctx, chatID, msg)
	}

	// proof uploads are routed by conversation state
	if len(msg.Photo) > 0 || msg.Document != nil {
		return b.handleAttachment(ctx, chatID, msg)
	}

	switch msg.Text {
	case btnPayment:
		return b.startPaymentFlow(ctx, chatID, from.ID)
	case btnGift:
		return b.startGiftFlow(chatID, from.ID)
	case btnStatus:
		return b.handleStatus(ctx, chatID, from.ID)
	case btnBooking:
		return b.startBookingFlow(chatID, from.ID)
	case btnQuestion:
		b.sessions.Set(from.ID, session.AwaitingQuestion{})
		return responses{tgbotapi.NewMessage(chatID,
			"Напишите ваш вопрос в свободной форме. Администратор свяжется с вами в течение дня.")}, nil
	case btnBack:
		b.sessions.Clear(from.ID)
		welcome := tgbotapi.NewMessage(chatID, welcomeText)
		welcome.ReplyMarkup = mainMenu
		return responses{welcome}, nil
	}

	return b.handleStatefulText(ctx, chatID, msg)
}

func (b *Bot) handleCommand(ctx context.Context, chatID int64, msg *tgbotapi.Message) (responses, error) {
	from := msg.From
	switch msg.Command() {
	case startCmd.Command:
		// entry point always discards any in-flight conversation
		b.sessions.Clear(from.ID)
		if err := b.repo.UpsertUser(ctx, from.ID, from.UserName, strings.TrimSpace(from.FirstName+" "+from.LastName)); err != nil {
			return responses{errorMessage(chatID)}, errors.Wrap(err, "failed to upsert user")
		}
		welcome := tgbotapi.NewMessage(chatID, welcomeText)
		welcome.ReplyMarkup = mainMenu
		return responses{welcome}, nil
	case statusCmd.Command:
		return b.handleStatus(ctx, chatID, from.ID)
	case helpCmd.Command:
		return responses{tgbotapi.NewMessage(chatID, helpText)}, nil
	case adminCmd.Command:
		return b.handleAdminMenu(chatID, from.ID)
	default:
		return responses{tgbotapi.NewMessage(chatID, "Неизвестная команда. Используйте /start")}, nil
	}
}

// handleStatefulText routes free-form text through the live conversation.
func (b *Bot) handleStatefulText(ctx context.Context, chatID int64, msg *tgbotapi.Message) (responses, error) {
	from := msg.From
	switch st := b.sessions.Get(from.ID).(type) {
	case session.GiftAwaitingRecipient:
		return b.handleGiftRecipient(chatID, from.ID, msg.Text)
	case session.BookingAwaitingSlot:
		return b.handleBookingSlot(ctx, chatID, msg, st)
	case session.AwaitingQuestion:
		return b.handleQuestion(chatID, msg)
	case session.AwaitingProof, session.GiftAwaitingProof:
		// loop, not a transition: only an attachment moves this stage on
		return responses{tgbotapi.NewMessage(chatID,
			"Пришлите, пожалуйста, фото или документ с подтверждением оплаты.")}, nil
	case session.AdminAwaitingDetails:
		return b.handleNewPaymentDetails(ctx, chatID, from.ID, st, msg.Text)
	case session.AdminAwaitingGiftTarget:
		return b.handleGiftTargetID(ctx, chatID, from.ID, st, msg.Text)
	case session.AdminAwaitingGrantTarget:
		return b.handleGrantTargetID(chatID, from.ID, msg.Text)
	}

	return responses{tgbotapi.NewMessage(chatID, "Используйте кнопки меню или /start")}, nil
}

func (b *Bot) handleQuery(query *tgbotapi.CallbackQuery) (responses, error) {
	if query.Message == nil {
		return nil, errors.New("callback query received without message")
	}

	ctx := context.Background()
	chatID, msgID := query.Message.Chat.ID, query.Message.MessageID
	from := query.From

	callback := tgbotapi.NewCallback(query.ID, "")
	if _, err := b.api.Request(callback); err != nil {
		return nil, errors.Wrap(err, "failed to ack callback query")
	}

	data := query.Data
	switch {
	case strings.HasPrefix(data, "plan:"):
		days, err := strconv.Atoi(strings.TrimPrefix(data, "plan:"))
		if err != nil {
			return responses{errorMessage(chatID)}, errors.Wrapf(err, "bad plan callback %q", data)
		}
		return b.handlePlanSelection(ctx, chatID, msgID, from.ID, days)
	case data == "pay:cancel":
		b.sessions.Clear(from.ID)
		return responses{tgbotapi.NewEditMessageText(chatID, msgID, "Оплата отменена. Вернуться можно через меню.")}, nil
	case data == "pay:back":
		return b.handlePaymentBack(ctx, chatID, msgID, from.ID)
	case data == "pay:ready":
		return b.handlePaymentReady(chatID, msgID, from.ID)
	case strings.HasPrefix(data, "pay:"):
		return b.handleMethodSelection(ctx, chatID, msgID, from.ID, strings.TrimPrefix(data, "pay:"))
	case strings.HasPrefix(data, "booking:"):
		return b.handleBookingMode(chatID, msgID, from.ID, strings.TrimPrefix(data, "booking:"))
	case strings.HasPrefix(data, "pay-confirm:"), strings.HasPrefix(data, "pay-reject:"):
		return b.handleReviewDecision(ctx, chatID, msgID, from.ID, data)
	case strings.HasPrefix(data, "gift-confirm:"), strings.HasPrefix(data, "gift-reject:"):
		return b.handleGiftDecision(ctx, chatID, msgID, from.ID, data)
	case strings.HasPrefix(data, "grant:"):
		return b.handleGrantDuration(ctx, chatID, msgID, from.ID, data)
	case strings.HasPrefix(data, "admin:"):
		return b.handleAdminCallback(ctx, chatID, msgID, from.ID, data)
	}

	return responses{errorMessage(chatID)}, errors.Errorf("unknown callback data: %s", data)
}

// Payment flow: ChoosingPlan → ChoosingMethod → ConfirmingPayment →
// AwaitingProof → submitted.

func (b *Bot) startPaymentFlow(ctx context.Context, chatID, userID int64) (responses, error) {
	// replaces any abandoned conversation outright
	b.sessions.Set(userID, session.ChoosingPlan{})

	msg := tgbotapi.NewMessage(chatID, "Выберите срок подписки:")
	msg.ReplyMarkup = planKeyboard(b.cfg.Durations(), b.cfg.Prices)
	return responses{msg}, nil
}

func (b *Bot) handlePlanSelection(ctx context.Context, chatID int64, msgID int, userID int64, days int) (responses, error) {
	if _, ok := b.sessions.Get(userID).(session.ChoosingPlan); !ok {
		return b.restartHint(chatID, msgID)
	}
	price, ok := b.cfg.Prices[days]
	if !ok {
		return responses{errorMessage(chatID)}, errors.Errorf("no price configured for %d days", days)
	}
	b.sessions.Set(userID, session.ChoosingMethod{DurationDays: days, Price: price})

	methods, err := b.repo.ListPaymentMethods(ctx)
	if err != nil {
		return responses{errorMessage(chatID)}, errors.Wrap(err, "failed to list payment methods")
	}

	text := fmt.Sprintf("Выбран срок: %s\nСтоимость: %d ₸\n\nВыберите удобный способ оплаты.",
		durationLabel(days), price)
	res := tgbotapi.NewEditMessageText(chatID, msgID, text)
	res.ReplyMarkup = methodsKeyboard(methods)
	return responses{res}, nil
}

func (b *Bot) handlePaymentBack(ctx context.Context, chatID int64, msgID int, userID int64) (responses, error) {
	switch b.sessions.Get(userID).(type) {
	case session.ChoosingMethod, session.ConfirmingPayment:
		b.sessions.Set(userID, session.ChoosingPlan{})
		res := tgbotapi.NewEditMessageText(chatID, msgID, "Выберите срок подписки:")
		res.ReplyMarkup = planKeyboard(b.cfg.Durations(), b.cfg.Prices)
		return responses{res}, nil
	}
	return b.restartHint(chatID, msgID)
}

func (b *Bot) handleMethodSelection(ctx context.Context, chatID int64, msgID int, userID int64, method string) (responses, error) {
	st, ok := b.sessions.Get(userID).(session.ChoosingMethod)
	if !ok {
		return b.restartHint(chatID, msgID)
	}

	details, err := b.repo.GetPaymentDetails(ctx, method)
	if err != nil {
		return responses{errorMessage(chatID)}, errors.Wrap(err, "failed to get payment details")
	}
	if details == "" {
		details = "Реквизиты не указаны"
	}

	b.sessions.Set(userID, session.ConfirmingPayment{
		DurationDays: st.DurationDays,
		Price:        st.Price,
		Method:       method,
	})

	text := fmt.Sprintf(
		"💰 Оплата через %s\n\nСумма: %d ₸\nРеквизиты: %s\n\nПосле перевода нажмите кнопку ниже, чтобы отправить чек.",
		method, st.Price, details,
	)
	res := tgbotapi.NewEditMessageText(chatID, msgID, text)
	res.ReplyMarkup = &confirmPaymentKeyboard

	if qr := detailsQR(chatID, details); qr != nil {
		return responses{res, qr}, nil
	}
	return responses{res}, nil
}

func (b *Bot) handlePaymentReady(chatID int64, msgID int, userID int64) (responses, error) {
	st, ok := b.sessions.Get(userID).(session.ConfirmingPayment)
	if !ok {
		// intent confirmation outside a started flow is a state error
		return responses{tgbotapi.NewEditMessageText(chatID, msgID,
			"Сначала выберите способ оплаты через меню.")}, nil
	}
	b.sessions.Set(userID, session.AwaitingProof{
		DurationDays: st.DurationDays,
		Price:        st.Price,
		Method:       st.Method,
	})
	return responses{tgbotapi.NewEditMessageText(chatID, msgID,
		"📸 Отправьте фотографию или PDF-файл подтверждения оплаты.")}, nil
}

func (b *Bot) handleAttachment(ctx context.Context, chatID int64, msg *tgbotapi.Message) (responses, error) {
	from := msg.From
	fileID := proofFileID(msg)

	switch st := b.sessions.Get(from.ID).(type) {
	case session.AwaitingProof:
		return b.submitPaymentProof(ctx, chatID, msg, st, fileID)
	case session.GiftAwaitingProof:
		return b.submitGiftProof(ctx, chatID, msg, st, fileID)
	}

	return responses{tgbotapi.NewMessage(chatID,
		"Чтобы отправить чек, сначала оформите оплату через кнопку \""+btnPayment+"\".")}, nil
}

func (b *Bot) submitPaymentProof(ctx context.Context, chatID int64, msg *tgbotapi.Message, st session.AwaitingProof, fileID string) (responses, error) {
	from := msg.From

	check, err := b.subs.SubmitCheck(ctx, from.ID, from.UserName, st.Method, fileID, st.DurationDays, st.Price)
	if err != nil {
		return responses{errorMessage(chatID)}, err
	}

	caption := fmt.Sprintf(
		"💸 Новый чек на проверку\nПользователь: @%s (%d)\nМетод: %s\nСрок: %d дней\nСумма: %d ₸\nID записи: %d | Строка Sheets: %s",
		orNA(from.UserName), from.ID, st.Method, st.DurationDays, st.Price,
		check.ID, sheetRowLabel(check.SheetRow),
	)
	markup := reviewKeyboard(from.ID, check.ID)

	results := b.broadcastProof(msg, caption, markup)
	if notify.Delivered(results) == 0 {
		// the check is persisted; an admin can still find it by direct
		// inspection, so the user is not told about the delivery failure
		log.Printf("failed to notify any admin about check %d", check.ID)
	}

	b.sessions.Clear(from.ID)

	ack := tgbotapi.NewMessage(chatID,
		"Спасибо! Чек отправлен на проверку."+
			" Мы уведомим вас, как только администратор подтвердит оплату.")
	ack.ReplyMarkup = mainMenu
	return responses{ack}, nil
}

// broadcastProof forwards the proof to every administrator, falling back to
// a plain text message per recipient when media delivery fails.
func (b *Bot) broadcastProof(msg *tgbotapi.Message, caption string, markup *tgbotapi.InlineKeyboardMarkup) []notify.Delivery {
	fileID := proofFileID(msg)
	isPhoto := len(msg.Photo) > 0
	return b.gateway.BroadcastAdmins(
		func(adminID int64) tgbotapi.Chattable {
			if isPhoto {
				photo := tgbotapi.NewPhoto(adminID, tgbotapi.FileID(fileID))
				photo.Caption = caption
				photo.ReplyMarkup = markup
				return photo
			}
			doc := tgbotapi.NewDocument(adminID, tgbotapi.FileID(fileID))
			doc.Caption = caption
			doc.ReplyMarkup = markup
			return doc
		},
		func(adminID int64) tgbotapi.Chattable {
			// the caption alone still carries the check id and the
			// review keyboard
			text := tgbotapi.NewMessage(adminID, caption)
			text.ReplyMarkup = markup
			return text
		},
	)
}

// Gift flow: recipient handle, then proof; fixed 30 days at zero price until
// an admin resolves the real recipient id.

func (b *Bot) startGiftFlow(chatID, userID int64) (responses, error) {
	b.sessions.Set(userID, session.GiftAwaitingRecipient{})
	return responses{tgbotapi.NewMessage(chatID,
		"🎁 Подарок подписки\n\n"+
			"Отправьте @username пользователя, которому хотите подарить подписку.\n"+
			"Например: @username или просто username")}, nil
}

func (b *Bot) handleGiftRecipient(chatID, userID int64, text string) (responses, error) {
	recipient := strings.TrimPrefix(strings.TrimSpace(text), "@")
	if recipient == "" {
		return responses{tgbotapi.NewMessage(chatID, "❌ Неверный формат. Отправьте @username или username.")}, nil
	}
	b.sessions.Set(userID, session.GiftAwaitingProof{Recipient: recipient})
	return responses{tgbotapi.NewMessage(chatID, fmt.Sprintf(
		"Выбран получатель: @%s\n\n📸 Отправьте фотографию или PDF-файл подтверждения оплаты подарка.",
		recipient))}, nil
}

func (b *Bot) submitGiftProof(ctx context.Context, chatID int64, msg *tgbotapi.Message, st session.GiftAwaitingProof, fileID string) (responses, error) {
	from := msg.From
	method := "Gift-" + st.Recipient

	check, err := b.subs.SubmitCheck(ctx, from.ID, from.UserName, method, fileID, b.cfg.SubscriptionDurationDays, 0)
	if err != nil {
		return responses{errorMessage(chatID)}, err
	}

	caption := fmt.Sprintf(
		"🎁 Чек на подарок подписки\nОт: @%s (%d)\nПолучатель: @%s\nСумма: Подарок (бесплатно)\nID записи: %d | Строка Sheets: %s\n\n"+
			"⚠️ Для активации потребуется числовой ID получателя.",
		orNA(from.UserName), from.ID, st.Recipient,
		check.ID, sheetRowLabel(check.SheetRow),
	)
	markup := giftReviewKeyboard(check.ID, st.Recipient)

	results := b.broadcastProof(msg, caption, markup)
	if notify.Delivered(results) == 0 {
		log.Printf("failed to notify any admin about gift check %d", check.ID)
	}

	b.sessions.Clear(from.ID)

	ack := tgbotapi.NewMessage(chatID, fmt.Sprintf(
		"Спасибо! Чек на подарок для @%s отправлен на проверку.\n"+
			"Мы уведомим получателя, как только администратор подтвердит подарок.",
		st.Recipient))
	ack.ReplyMarkup = mainMenu
	return responses{ack}, nil
}

// handleQuestion forwards a free-form question to every administrator.
func (b *Bot) handleQuestion(chatID int64, msg *tgbotapi.Message) (responses, error) {
	from := msg.From
	b.sessions.Clear(from.ID)

	text := fmt.Sprintf("❓ Вопрос от @%s (%d):\n\n%s", orNA(from.UserName), from.ID, msg.Text)
	results := b.gateway.BroadcastAdmins(func(adminID int64) tgbotapi.Chattable {
		return tgbotapi.NewMessage(adminID, text)
	}, nil)
	if notify.Delivered(results) == 0 {
		log.Printf("failed to forward question from user %d to any admin", from.ID)
	}

	ack := tgbotapi.NewMessage(chatID, "Спасибо! Ваш вопрос передан администратору.")
	ack.ReplyMarkup = mainMenu
	return responses{ack}, nil
}

// Status

func (b *Bot) handleStatus(ctx context.Context, chatID, userID int64) (responses, error) {
	status, err := b.subs.CheckStatus(ctx, userID)
	if err != nil {
		return responses{errorMessage(chatID)}, err
	}
	if !status.Active {
		return responses{tgbotapi.NewMessage(chatID, status.Reason)}, nil
	}
	return responses{tgbotapi.NewMessage(chatID, fmt.Sprintf(
		"Доступ активен до %s\nЕсли вам нужна помощь с продлением, нажмите \"%s\".",
		status.End.Format("02.01.2006"), btnPayment))}, nil
}

// Booking flow

func (b *Bot) startBookingFlow(chatID, userID int64) (responses, error) {
	b.sessions.Set(userID, session.BookingChoosingMode{})
	msg := tgbotapi.NewMessage(chatID, "Выберите формат встречи:")
	msg.ReplyMarkup = &bookingModeKeyboard
	return responses{msg}, nil
}

func (b *Bot) handleBookingMode(chatID int64, msgID int, userID int64, mode string) (responses, error) {
	if _, ok := b.sessions.Get(userID).(session.BookingChoosingMode); !ok {
		return b.restartHint(chatID, msgID)
	}
	b.sessions.Set(userID, session.BookingAwaitingSlot{Mode: mode})
	return responses{tgbotapi.NewEditMessageText(chatID, msgID,
		"Напишите удобные дату и время, а также город (для оффлайн) и формат связи (для онлайн).")}, nil
}

func (b *Bot) handleBookingSlot(ctx context.Context, chatID int64, msg *tgbotapi.Message, st session.BookingAwaitingSlot) (responses, error) {
	from := msg.From
	booking, err := b.subs.SubmitBooking(ctx, from.ID, from.UserName, st.Mode, msg.Text)
	if err != nil {
		return responses{errorMessage(chatID)}, err
	}

	b.sessions.Clear(from.ID)

	notice := fmt.Sprintf(
		"📅 Новая заявка на встречу\nПользователь: @%s (%d)\nФормат: %s\nДетали: %s\nID брони: %d",
		orNA(from.UserName), from.ID, st.Mode, msg.Text, booking.ID,
	)
	if err := b.gateway.SendText(b.cfg.PrimaryAdmin(), notice); err != nil {
		log.Printf("failed to notify admin about booking %d: %v", booking.ID, err)
	}

	ack := tgbotapi.NewMessage(chatID, fmt.Sprintf(
		"✅ Заявка сохранена!\nФормат: %s\nЗапрос: %s\nАдминистратор подтвердит время в ближайшее время.",
		st.Mode, msg.Text))
	ack.ReplyMarkup = mainMenu
	return responses{ack}, nil
}

// helpers

func (b *Bot) restartHint(chatID int64, msgID int) (responses, error) {
	return responses{tgbotapi.NewEditMessageText(chatID, msgID,
		"Сессия устарела. Начните заново через меню.")}, nil
}

func proofFileID(msg *tgbotapi.Message) string {
	if len(msg.Photo) > 0 {
		return msg.Photo[len(msg.Photo)-1].FileID
	}
	if msg.Document != nil {
		return msg.Document.FileID
	}
	return ""
}

func orNA(username string) string {
	if username == "" {
		return "N/A"
	}
	return username
}

func sheetRowLabel(row *int64) string {
	if row == nil {
		return "—"
	}
	return strconv.FormatInt(*row, 10)
}

// detailsQR renders the payment details as a scannable QR photo; nil when
// rendering fails, callers just skip it.
func detailsQR(chatID int64, details string) tgbotapi.Chattable {
	options := []qrcode.ImageOption{
		qrcode.WithQRWidth(7),
		qrcode.WithBuiltinImageEncoder(qrcode.PNG_FORMAT),
	}
	qrc, err := qrcode.New(details, options...)
	if err != nil {
		log.Printf("failed to create qr code: %v", err)
		return nil
	}
	buf := bytes.Buffer{}
	if err := qrc.SaveTo(&buf); err != nil {
		log.Printf("failed to encode qr code: %v", err)
		return nil
	}
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileReader{
		Name:   "payment_details.png",
		Reader: &buf,
	})
	photo.Caption = "QR с реквизитами для оплаты"
	return photo
}
