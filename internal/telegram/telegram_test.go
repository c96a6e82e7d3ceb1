package telegram

import (
	"context"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amiren/resonance-bot/internal/session"
)

func TestParseReviewCallback(t *testing.T) {
	approve, userID, checkID, err := parseReviewCallback("pay-confirm:123456:42")
	require.NoError(t, err)
	assert.True(t, approve)
	assert.Equal(t, int64(123456), userID)
	assert.Equal(t, int64(42), checkID)

	approve, userID, checkID, err = parseReviewCallback("pay-reject:123456:42")
	require.NoError(t, err)
	assert.False(t, approve)
	assert.Equal(t, int64(123456), userID)
	assert.Equal(t, int64(42), checkID)
}

func TestParseReviewCallbackMalformed(t *testing.T) {
	cases := []string{
		"pay-confirm:123456",
		"pay-confirm:abc:42",
		"pay-confirm:123456:xyz",
		"gift-confirm:123456:42",
		"",
	}
	for _, data := range cases {
		_, _, _, err := parseReviewCallback(data)
		assert.Error(t, err, "callback %q", data)
	}
}

func TestParseGiftCallback(t *testing.T) {
	approve, checkID, recipient, err := parseGiftCallback("gift-confirm:7:friend")
	require.NoError(t, err)
	assert.True(t, approve)
	assert.Equal(t, int64(7), checkID)
	assert.Equal(t, "friend", recipient)

	approve, _, _, err = parseGiftCallback("gift-reject:7:friend")
	require.NoError(t, err)
	assert.False(t, approve)

	_, _, _, err = parseGiftCallback("gift-confirm:7")
	assert.Error(t, err)
	_, _, _, err = parseGiftCallback("gift-confirm:abc:friend")
	assert.Error(t, err)
	_, _, _, err = parseGiftCallback("pay-confirm:7:friend")
	assert.Error(t, err)
}

func TestReviewKeyboardRoundTrip(t *testing.T) {
	markup := reviewKeyboard(123456, 42)
	require.Len(t, markup.InlineKeyboard, 2)

	approve, userID, checkID, err := parseReviewCallback(*markup.InlineKeyboard[0][0].CallbackData)
	require.NoError(t, err)
	assert.True(t, approve)
	assert.Equal(t, int64(123456), userID)
	assert.Equal(t, int64(42), checkID)

	approve, _, _, err = parseReviewCallback(*markup.InlineKeyboard[1][0].CallbackData)
	require.NoError(t, err)
	assert.False(t, approve)
}

func TestGiftReviewKeyboardRoundTrip(t *testing.T) {
	markup := giftReviewKeyboard(42, "friend")
	require.Len(t, markup.InlineKeyboard, 2)

	approve, checkID, recipient, err := parseGiftCallback(*markup.InlineKeyboard[0][0].CallbackData)
	require.NoError(t, err)
	assert.True(t, approve)
	assert.Equal(t, int64(42), checkID)
	assert.Equal(t, "friend", recipient)
}

func TestDurationLabel(t *testing.T) {
	assert.Equal(t, "1 месяц (30 дней)", durationLabel(30))
	assert.Equal(t, "3 месяца (90 дней)", durationLabel(90))
	assert.Equal(t, "6 месяцев (180 дней)", durationLabel(180))
	assert.Equal(t, "14 дней", durationLabel(14))
}

func TestPlanKeyboardOrderAndCallbacks(t *testing.T) {
	markup := planKeyboard([]int{30, 90, 180}, map[int]int{30: 9999, 90: 25000, 180: 45000})
	// One row per plan plus the cancel row.
	require.Len(t, markup.InlineKeyboard, 4)
	assert.Equal(t, "plan:30", *markup.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "plan:90", *markup.InlineKeyboard[1][0].CallbackData)
	assert.Equal(t, "plan:180", *markup.InlineKeyboard[2][0].CallbackData)
	assert.Equal(t, "pay:cancel", *markup.InlineKeyboard[3][0].CallbackData)
}

func TestUpdateSender(t *testing.T) {
	msg := &tgbotapi.Update{Message: &tgbotapi.Message{From: &tgbotapi.User{ID: 7}}}
	assert.Equal(t, int64(7), updateSender(msg))

	cb := &tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{From: &tgbotapi.User{ID: 9}}}
	assert.Equal(t, int64(9), updateSender(cb))

	assert.Zero(t, updateSender(&tgbotapi.Update{}))
	assert.Zero(t, updateSender(&tgbotapi.Update{Message: &tgbotapi.Message{}}))
}

func TestSenderLockIsPerAccount(t *testing.T) {
	bot := &Bot{}
	first := bot.senderLock(1)
	assert.Same(t, first, bot.senderLock(1), "same account must share one lock")
	assert.NotSame(t, first, bot.senderLock(2))
}

func TestTextDuringProofStageReprompts(t *testing.T) {
	bot := &Bot{sessions: session.NewStore()}
	bot.sessions.Set(1, session.AwaitingProof{DurationDays: 90, Price: 25000, Method: "Kaspi"})

	msg := &tgbotapi.Message{
		Text: "я оплатил, честно",
		From: &tgbotapi.User{ID: 1},
		Chat: &tgbotapi.Chat{ID: 1},
	}
	res, err := bot.handleStatefulText(context.Background(), 1, msg)
	require.NoError(t, err)
	require.Len(t, res, 1)
	reply, ok := res[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Contains(t, reply.Text, "фото или документ")

	// Loop, not a transition: the stage and its selections must survive.
	st, ok := bot.sessions.Get(1).(session.AwaitingProof)
	require.True(t, ok, "plain text must not move the proof stage")
	assert.Equal(t, 90, st.DurationDays)
	assert.Equal(t, 25000, st.Price)
	assert.Equal(t, "Kaspi", st.Method)
}

func TestTextDuringGiftProofStageReprompts(t *testing.T) {
	bot := &Bot{sessions: session.NewStore()}
	bot.sessions.Set(1, session.GiftAwaitingProof{Recipient: "friend"})

	msg := &tgbotapi.Message{
		Text: "перевёл вчера",
		From: &tgbotapi.User{ID: 1},
		Chat: &tgbotapi.Chat{ID: 1},
	}
	res, err := bot.handleStatefulText(context.Background(), 1, msg)
	require.NoError(t, err)
	require.Len(t, res, 1)
	reply, ok := res[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Contains(t, reply.Text, "фото или документ")

	st, ok := bot.sessions.Get(1).(session.GiftAwaitingProof)
	require.True(t, ok)
	assert.Equal(t, "friend", st.Recipient)
}

func TestProofFileID(t *testing.T) {
	assert.Empty(t, proofFileID(&tgbotapi.Message{Text: "no attachment"}))

	photo := &tgbotapi.Message{Photo: []tgbotapi.PhotoSize{
		{FileID: "small"}, {FileID: "large"},
	}}
	assert.Equal(t, "large", proofFileID(photo), "the largest photo size wins")

	doc := &tgbotapi.Message{Document: &tgbotapi.Document{FileID: "doc-1"}}
	assert.Equal(t, "doc-1", proofFileID(doc))
}

func TestOrNA(t *testing.T) {
	assert.Equal(t, "N/A", orNA(""))
	assert.Equal(t, "alice", orNA("alice"))
}

func TestSheetRowLabel(t *testing.T) {
	assert.Equal(t, "—", sheetRowLabel(nil))
	row := int64(7)
	assert.Equal(t, "7", sheetRowLabel(&row))
}
