// Package notify wraps the Telegram Bot API into a one-way delivery gateway:
// user notifications, admin broadcasts and channel membership control. Every
// call is fire-and-forget from the workflow's point of view; callers log
// failures and move on.
package notify

import (
	"context"
	"log"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
)

type Gateway struct {
	api       *tgbotapi.BotAPI
	admins    []int64
	channelID int64
}

func NewGateway(api *tgbotapi.BotAPI, admins []int64, channelID int64) *Gateway {
	return &Gateway{api: api, admins: admins, channelID: channelID}
}

func (g *Gateway) SendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := g.api.Send(msg)
	return err
}

func (g *Gateway) SendPhoto(chatID int64, fileID, caption string, markup *tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(fileID))
	msg.Caption = caption
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	_, err := g.api.Send(msg)
	return err
}

func (g *Gateway) SendDocument(chatID int64, fileID, caption string, markup *tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewDocument(chatID, tgbotapi.FileID(fileID))
	msg.Caption = caption
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	_, err := g.api.Send(msg)
	return err
}

// Delivery is the outcome of one admin broadcast recipient.
type Delivery struct {
	AdminID int64
	Err     error
}

// Delivered counts successful deliveries in a broadcast outcome.
func Delivered(results []Delivery) int {
	n := 0
	for _, r := range results {
		if r.Err == nil {
			n++
		}
	}
	return n
}

// BroadcastAdmins sends one message per administrator, built by the supplied
// factory, and returns the per-recipient outcome. When the primary send
// fails and a fallback factory is given, the fallback message is attempted
// for that recipient and its outcome is recorded instead. Callers decide
// what delivery threshold they need; this function never fails as a whole.
func (g *Gateway) BroadcastAdmins(build, fallback func(chatID int64) tgbotapi.Chattable) []Delivery {
	results := make([]Delivery, 0, len(g.admins))
	for _, adminID := range g.admins {
		_, err := g.api.Send(build(adminID))
		if err != nil && fallback != nil {
			log.Printf("notify: broadcast to admin %d failed, retrying as fallback: %v", adminID, err)
			_, err = g.api.Send(fallback(adminID))
		}
		if err != nil {
			log.Printf("notify: broadcast to admin %d failed: %v", adminID, err)
		}
		results = append(results, Delivery{AdminID: adminID, Err: err})
	}
	return results
}

// KickFromChannel removes the user from the private channel with the
// ban-then-unban pattern: a permanent ban is not wanted, only removal from
// membership.
func (g *Gateway) KickFromChannel(ctx context.Context, userID int64) error {
	ban := tgbotapi.BanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{
			ChatID: g.channelID,
			UserID: userID,
		},
		UntilDate: time.Now().Unix(),
	}
	if _, err := g.api.Request(ban); err != nil {
		return errors.Wrap(err, "failed to ban channel member")
	}
	unban := tgbotapi.UnbanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{
			ChatID: g.channelID,
			UserID: userID,
		},
		OnlyIfBanned: true,
	}
	if _, err := g.api.Request(unban); err != nil {
		return errors.Wrap(err, "failed to unban channel member")
	}
	return nil
}

// UnbanInChannel lifts a prior ban so the user can follow the invite link
// again after an approval.
func (g *Gateway) UnbanInChannel(ctx context.Context, userID int64) error {
	unban := tgbotapi.UnbanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{
			ChatID: g.channelID,
			UserID: userID,
		},
		OnlyIfBanned: true,
	}
	_, err := g.api.Request(unban)
	return errors.Wrap(err, "failed to unban channel member")
}
