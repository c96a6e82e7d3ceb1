package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/amiren/resonance-bot/internal/storage"
)

// Reply-keyboard button labels double as inbound actions.
const (
	btnPayment  = "💳 Оплата подписки"
	btnGift     = "🎁 Подарить подписку"
	btnStatus   = "🧾 Статус подписки"
	btnBooking  = "📅 Записаться"
	btnQuestion = "❓ Задать вопрос"
	btnBack     = "⬅️ Назад"
)

var mainMenu = tgbotapi.ReplyKeyboardMarkup{
	Keyboard: [][]tgbotapi.KeyboardButton{
		{tgbotapi.NewKeyboardButton(btnPayment), tgbotapi.NewKeyboardButton(btnGift)},
		{tgbotapi.NewKeyboardButton(btnStatus), tgbotapi.NewKeyboardButton(btnBooking)},
		{tgbotapi.NewKeyboardButton(btnQuestion), tgbotapi.NewKeyboardButton(btnBack)},
	},
	ResizeKeyboard:        true,
	InputFieldPlaceholder: "Выберите действие",
}

func planKeyboard(durations []int, prices map[int]int) *tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(durations)+1)
	for _, days := range durations {
		label := fmt.Sprintf("%s — %d ₸", durationLabel(days), prices[days])
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("plan:%d", days)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("❌ Отмена", "pay:cancel"),
	))
	return &tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func methodsKeyboard(methods []*storage.PaymentMethod) *tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(methods)+1)
	for _, m := range methods {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(m.Label, "pay:"+m.Method),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", "pay:back"),
	))
	return &tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

var confirmPaymentKeyboard = tgbotapi.NewInlineKeyboardMarkup(
	tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✅ Я оплатил", "pay:ready"),
	),
	tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", "pay:back"),
	),
)

var bookingModeKeyboard = tgbotapi.NewInlineKeyboardMarkup(
	tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Онлайн", "booking:online"),
	),
	tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Оффлайн", "booking:offline"),
	),
)

var adminMenuKeyboard = tgbotapi.NewInlineKeyboardMarkup(
	tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("💳 Обновить реквизиты", "admin:update_details"),
	),
	tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("👥 Активные подписки", "admin:list_active"),
	),
	tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("📅 Последние записи", "admin:list_bookings"),
	),
	tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🎁 Подарить подписку", "admin:gift"),
	),
)

// reviewKeyboard references the check id and the submitter so a decision can
// be applied straight from the admin notification.
func reviewKeyboard(userID, checkID int64) *tgbotapi.InlineKeyboardMarkup {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Подтвердить", fmt.Sprintf("pay-confirm:%d:%d", userID, checkID)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ Отклонить", fmt.Sprintf("pay-reject:%d:%d", userID, checkID)),
		),
	)
	return &kb
}

// giftReviewKeyboard carries the recipient handle instead of an id: the
// admin resolves the numeric id during confirmation.
func giftReviewKeyboard(checkID int64, recipient string) *tgbotapi.InlineKeyboardMarkup {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Подтвердить подарок", fmt.Sprintf("gift-confirm:%d:%s", checkID, recipient)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ Отклонить", fmt.Sprintf("gift-reject:%d:%s", checkID, recipient)),
		),
	)
	return &kb
}

func grantDurationKeyboard(durations []int) *tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(durations)+1)
	for _, days := range durations {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(durationLabel(days), fmt.Sprintf("grant:%d", days)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("⬅️ Отмена", "admin:back"),
	))
	return &tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func durationLabel(days int) string {
	switch days {
	case 30:
		return "1 месяц (30 дней)"
	case 90:
		return "3 месяца (90 дней)"
	case 180:
		return "6 месяцев (180 дней)"
	default:
		return fmt.Sprintf("%d дней", days)
	}
}
