package telegram

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"

	"github.com/amiren/resonance-bot/internal/session"
	"github.com/amiren/resonance-bot/internal/storage"
)

const notAdminText = "❌ У вас нет доступа к админ-панели."

func (b *Bot) handleAdminMenu(chatID, userID int64) (responses, error) {
	if !b.isAdmin(userID) {
		log.Printf("user %d tried to access admin panel", userID)
		return responses{tgbotapi.NewMessage(chatID, notAdminText)}, nil
	}
	msg := tgbotapi.NewMessage(chatID, "Админ-панель Resonance")
	msg.ReplyMarkup = &adminMenuKeyboard
	return responses{msg}, nil
}

func (b *Bot) handleAdminCallback(ctx context.Context, chatID int64, msgID int, userID int64, data string) (responses, error) {
	if !b.isAdmin(userID) {
		return responses{tgbotapi.NewMessage(chatID, notAdminText)}, nil
	}

	switch {
	case data == "admin:update_details":
		methods, err := b.repo.ListPaymentMethods(ctx)
		if err != nil {
			return responses{errorMessage(chatID)}, errors.Wrap(err, "failed to list payment methods")
		}
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(methods))
		for _, m := range methods {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(m.Method, "admin:method:"+m.Method),
			))
		}
		res := tgbotapi.NewEditMessageText(chatID, msgID, "Какой метод обновляем?")
		res.ReplyMarkup = &tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
		return responses{res}, nil

	case strings.HasPrefix(data, "admin:method:"):
		method := strings.TrimPrefix(data, "admin:method:")
		b.sessions.Set(userID, session.AdminAwaitingDetails{Method: method})
		return responses{tgbotapi.NewEditMessageText(chatID, msgID,
			fmt.Sprintf("Отправьте новые реквизиты для %s:", method))}, nil

	case data == "admin:list_active":
		return b.handleListActive(ctx, chatID, msgID)

	case data == "admin:list_bookings":
		return b.handleListBookings(ctx, chatID, msgID)

	case data == "admin:gift":
		b.sessions.Set(userID, session.AdminAwaitingGrantTarget{})
		return responses{tgbotapi.NewEditMessageText(chatID, msgID,
			"🎁 Подарок подписки\n\n"+
				"Отправьте Telegram ID пользователя, которому хотите подарить подписку.\n"+
				"ID можно узнать через @userinfobot.")}, nil

	case data == "admin:back":
		b.sessions.Clear(userID)
		res := tgbotapi.NewEditMessageText(chatID, msgID, "Админ-панель Resonance")
		res.ReplyMarkup = &adminMenuKeyboard
		return responses{res}, nil
	}

	return responses{errorMessage(chatID)}, errors.Errorf("unknown admin callback: %s", data)
}

func (b *Bot) handleListActive(ctx context.Context, chatID int64, msgID int) (responses, error) {
	users, err := b.repo.ListActiveUsers(ctx)
	if err != nil {
		return responses{errorMessage(chatID)}, errors.Wrap(err, "failed to list active users")
	}
	if len(users) == 0 {
		return responses{tgbotapi.NewEditMessageText(chatID, msgID, "Нет активных подписчиков")}, nil
	}
	lines := []string{"👥 Активные подписчики:"}
	for i, user := range users {
		if i == 10 {
			lines = append(lines, fmt.Sprintf("… и ещё %d", len(users)-10))
			break
		}
		end := "?"
		if user.SubEnd != nil {
			end = user.SubEnd.Format("02.01.2006")
		}
		lines = append(lines, fmt.Sprintf("• @%s — до %s", orNA(user.Username), end))
	}
	return responses{tgbotapi.NewEditMessageText(chatID, msgID, strings.Join(lines, "\n"))}, nil
}

func (b *Bot) handleListBookings(ctx context.Context, chatID int64, msgID int) (responses, error) {
	bookings, err := b.repo.ListRecentBookings(ctx, 10)
	if err != nil {
		return responses{errorMessage(chatID)}, errors.Wrap(err, "failed to list bookings")
	}
	if len(bookings) == 0 {
		return responses{tgbotapi.NewEditMessageText(chatID, msgID, "Пока нет записей")}, nil
	}
	lines := []string{"📅 Последние записи:"}
	for _, booking := range bookings {
		lines = append(lines, fmt.Sprintf("• %d %s — %s", booking.UserID, booking.Mode, booking.Slot))
	}
	return responses{tgbotapi.NewEditMessageText(chatID, msgID, strings.Join(lines, "\n"))}, nil
}

func (b *Bot) handleNewPaymentDetails(ctx context.Context, chatID, userID int64, st session.AdminAwaitingDetails, details string) (responses, error) {
	if !b.isAdmin(userID) {
		b.sessions.Clear(userID)
		return responses{tgbotapi.NewMessage(chatID, notAdminText)}, nil
	}
	if err := b.repo.UpsertPaymentDetails(ctx, st.Method, details); err != nil {
		return responses{errorMessage(chatID)}, errors.Wrap(err, "failed to update payment details")
	}
	b.sessions.Clear(userID)
	return responses{tgbotapi.NewMessage(chatID,
		fmt.Sprintf("Реквизиты для %s обновлены.", st.Method))}, nil
}

// handleReviewDecision applies an approve/reject tap on a payment check. A
// check that was already decided comes back as a no-op with an "already
// processed" notice instead of re-granting or re-revoking anything.
func (b *Bot) handleReviewDecision(ctx context.Context, chatID int64, msgID int, adminID int64, data string) (responses, error) {
	if !b.isAdmin(adminID) {
		return responses{tgbotapi.NewMessage(chatID, notAdminText)}, nil
	}

	approve, targetID, checkID, err := parseReviewCallback(data)
	if err != nil {
		return responses{errorMessage(chatID)}, err
	}

	if approve {
		decision, err := b.subs.Approve(ctx, checkID, targetID, 0)
		switch {
		case err == storage.ErrCheckClosed:
			return responses{tgbotapi.NewEditMessageText(chatID, msgID, "Чек уже обработан.")}, nil
		case err == storage.ErrCheckNotFound:
			return responses{tgbotapi.NewEditMessageText(chatID, msgID, "Чек не найден.")}, nil
		case err != nil:
			return responses{errorMessage(chatID)}, err
		}
		return responses{tgbotapi.NewEditMessageText(chatID, msgID,
			fmt.Sprintf("Доступ активирован до %s", decision.End.Format("02.01.2006")))}, nil
	}

	_, err = b.subs.Reject(ctx, checkID)
	switch {
	case err == storage.ErrCheckClosed:
		return responses{tgbotapi.NewEditMessageText(chatID, msgID, "Чек уже обработан.")}, nil
	case err == storage.ErrCheckNotFound:
		return responses{tgbotapi.NewEditMessageText(chatID, msgID, "Чек не найден.")}, nil
	case err != nil:
		return responses{errorMessage(chatID)}, err
	}
	return responses{tgbotapi.NewEditMessageText(chatID, msgID, "Оплата отклонена")}, nil
}

// handleGiftDecision starts (or rejects) a gift check. Approval needs the
// recipient's numeric id, which only the admin can supply, so a short
// confirmation sub-flow collects it first.
func (b *Bot) handleGiftDecision(ctx context.Context, chatID int64, msgID int, adminID int64, data string) (responses, error) {
	if !b.isAdmin(adminID) {
		return responses{tgbotapi.NewMessage(chatID, notAdminText)}, nil
	}

	approve, checkID, recipient, err := parseGiftCallback(data)
	if err != nil {
		return responses{errorMessage(chatID)}, err
	}

	if !approve {
		_, err := b.subs.Reject(ctx, checkID)
		switch {
		case err == storage.ErrCheckClosed:
			return responses{tgbotapi.NewEditMessageText(chatID, msgID, "Чек уже обработан.")}, nil
		case err == storage.ErrCheckNotFound:
			return responses{tgbotapi.NewEditMessageText(chatID, msgID, "Чек не найден.")}, nil
		case err != nil:
			return responses{errorMessage(chatID)}, err
		}
		return responses{tgbotapi.NewEditMessageText(chatID, msgID,
			fmt.Sprintf("Подарок для @%s отклонен", recipient))}, nil
	}

	b.sessions.Set(adminID, session.AdminAwaitingGiftTarget{CheckID: checkID, Recipient: recipient})
	return responses{tgbotapi.NewEditMessageText(chatID, msgID, fmt.Sprintf(
		"🎁 Подтверждение подарка для @%s\n\n"+
			"Отправьте Telegram ID получателя (числовой).\n"+
			"ID можно узнать через @userinfobot.",
		recipient))}, nil
}

func (b *Bot) handleGiftTargetID(ctx context.Context, chatID, adminID int64, st session.AdminAwaitingGiftTarget, text string) (responses, error) {
	if !b.isAdmin(adminID) {
		b.sessions.Clear(adminID)
		return responses{tgbotapi.NewMessage(chatID, notAdminText)}, nil
	}

	targetID, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil {
		// validation error: re-prompt, keep the sub-flow alive
		return responses{tgbotapi.NewMessage(chatID, "❌ Неверный формат. Отправьте числовой ID пользователя.")}, nil
	}

	decision, err := b.subs.Approve(ctx, st.CheckID, targetID, 0)
	b.sessions.Clear(adminID)
	switch {
	case err == storage.ErrCheckClosed:
		return responses{tgbotapi.NewMessage(chatID, "Чек уже обработан.")}, nil
	case err == storage.ErrCheckNotFound:
		return responses{tgbotapi.NewMessage(chatID, "Чек не найден.")}, nil
	case err != nil:
		return responses{errorMessage(chatID)}, err
	}

	b.upsertFromProfile(ctx, targetID)

	return responses{tgbotapi.NewMessage(chatID, fmt.Sprintf(
		"✅ Подарок активирован!\nПользователь: @%s (ID: %d)\nДоступ до: %s",
		st.Recipient, targetID, decision.End.Format("02.01.2006")))}, nil
}

// Administrative grant without any payment check.

func (b *Bot) handleGrantTargetID(chatID, adminID int64, text string) (responses, error) {
	if !b.isAdmin(adminID) {
		b.sessions.Clear(adminID)
		return responses{tgbotapi.NewMessage(chatID, notAdminText)}, nil
	}

	targetID, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil {
		return responses{tgbotapi.NewMessage(chatID, "❌ Неверный формат. Отправьте числовой ID пользователя.")}, nil
	}

	b.sessions.Set(adminID, session.AdminChoosingGrantDuration{UserID: targetID})
	msg := tgbotapi.NewMessage(chatID,
		fmt.Sprintf("Выберите длительность подписки для пользователя %d:", targetID))
	msg.ReplyMarkup = grantDurationKeyboard(b.cfg.Durations())
	return responses{msg}, nil
}

func (b *Bot) handleGrantDuration(ctx context.Context, chatID int64, msgID int, adminID int64, data string) (responses, error) {
	if !b.isAdmin(adminID) {
		return responses{tgbotapi.NewMessage(chatID, notAdminText)}, nil
	}

	st, ok := b.sessions.Get(adminID).(session.AdminChoosingGrantDuration)
	if !ok {
		return b.restartHint(chatID, msgID)
	}

	days, err := strconv.Atoi(strings.TrimPrefix(data, "grant:"))
	if err != nil {
		return responses{errorMessage(chatID)}, errors.Wrapf(err, "bad grant callback %q", data)
	}

	_, end, err := b.subs.Grant(ctx, st.UserID, days)
	b.sessions.Clear(adminID)
	if err != nil {
		return responses{errorMessage(chatID)}, err
	}

	b.upsertFromProfile(ctx, st.UserID)

	return responses{tgbotapi.NewEditMessageText(chatID, msgID, fmt.Sprintf(
		"✅ Подписка подарена пользователю %d\nДлительность: %d дней\nДоступ до: %s",
		st.UserID, days, end.Format("02.01.2006")))}, nil
}

// upsertFromProfile refreshes handle and name from the Telegram profile;
// purely best-effort, the subscription row already exists.
func (b *Bot) upsertFromProfile(ctx context.Context, userID int64) {
	chat, err := b.api.GetChat(tgbotapi.ChatInfoConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: userID},
	})
	if err != nil {
		log.Printf("cannot fetch profile for user %d: %v", userID, err)
		return
	}
	name := strings.TrimSpace(chat.FirstName + " " + chat.LastName)
	if err := b.repo.UpsertUser(ctx, userID, chat.UserName, name); err != nil {
		log.Printf("cannot upsert user %d from profile: %v", userID, err)
	}
}

// parseReviewCallback splits "pay-confirm:<userID>:<checkID>" /
// "pay-reject:<userID>:<checkID>".
func parseReviewCallback(data string) (approve bool, userID, checkID int64, err error) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 {
		return false, 0, 0, errors.Errorf("malformed review callback %q", data)
	}
	switch parts[0] {
	case "pay-confirm":
		approve = true
	case "pay-reject":
		approve = false
	default:
		return false, 0, 0, errors.Errorf("unexpected review action %q", parts[0])
	}
	userID, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return false, 0, 0, errors.Wrapf(err, "bad user id in callback %q", data)
	}
	checkID, err = strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return false, 0, 0, errors.Wrapf(err, "bad check id in callback %q", data)
	}
	return approve, userID, checkID, nil
}

// parseGiftCallback splits "gift-confirm:<checkID>:<recipient>" /
// "gift-reject:<checkID>:<recipient>"; the recipient handle may contain
// no colons by Telegram username rules.
func parseGiftCallback(data string) (approve bool, checkID int64, recipient string, err error) {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) != 3 {
		return false, 0, "", errors.Errorf("malformed gift callback %q", data)
	}
	switch parts[0] {
	case "gift-confirm":
		approve = true
	case "gift-reject":
		approve = false
	default:
		return false, 0, "", errors.Errorf("unexpected gift action %q", parts[0])
	}
	checkID, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return false, 0, "", errors.Wrapf(err, "bad check id in callback %q", data)
	}
	return approve, checkID, parts[2], nil
}
