package telegram

import (
	"context"
	"log"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"

	"github.com/amiren/resonance-bot/internal/config"
	"github.com/amiren/resonance-bot/internal/notify"
	"github.com/amiren/resonance-bot/internal/session"
	"github.com/amiren/resonance-bot/internal/sheets"
	"github.com/amiren/resonance-bot/internal/storage"
	"github.com/amiren/resonance-bot/internal/subscription"
)

type Bot struct {
	wg       *sync.WaitGroup
	api      *tgbotapi.BotAPI
	gateway  *notify.Gateway
	repo     *storage.Repository
	subs     *subscription.Service
	sessions *session.Store
	mirror   *sheets.Mirror
	cfg      *config.Settings

	// per-account handler locks; see Run
	locks sync.Map
}

// NewBot creates new Bot instance on top of an already authorized api client
func NewBot(
	api *tgbotapi.BotAPI,
	gateway *notify.Gateway,
	repo *storage.Repository,
	subs *subscription.Service,
	sessions *session.Store,
	mirror *sheets.Mirror,
	cfg *config.Settings,
) (*Bot, error) {
	log.Printf("bot user: %+v", api.Self)

	bot := &Bot{
		wg:       &sync.WaitGroup{},
		api:      api,
		gateway:  gateway,
		repo:     repo,
		subs:     subs,
		sessions: sessions,
		mirror:   mirror,
		cfg:      cfg,
	}

	if err := bot.setMyCommands(); err != nil {
		return nil, err
	}
	return bot, nil
}

// Gateway exposes the delivery gateway built over the same api client.
func (b *Bot) Gateway() *notify.Gateway {
	return b.gateway
}

func (b *Bot) Run(ctx context.Context) error {
	defer b.wg.Wait()

	update := tgbotapi.NewUpdate(0)
	update.Timeout = 30

	updates := b.api.GetUpdatesChan(update)

	if b.mirror.Enabled() {
		log.Printf("google sheets mirror connected")
	}
	if err := b.gateway.SendText(b.cfg.PrimaryAdmin(), "✅ Resonance Assistant запущен"); err != nil {
		log.Printf("failed to notify admin about startup: %v", err)
	}

	for {
		select {
		case upd := <-updates:
			b.wg.Add(1)
			go func(upd tgbotapi.Update) {
				defer b.wg.Done()
				// handler bodies for one account never run concurrently;
				// different accounts still interleave freely
				if uid := updateSender(&upd); uid != 0 {
					lock := b.senderLock(uid)
					lock.Lock()
					defer lock.Unlock()
				}
				for _, err := range b.handle(&upd) {
					log.Printf("error occured: %s", err.Error())
				}
			}(upd)
		case <-ctx.Done():
			log.Printf("stopping bot: %v", ctx.Err())
			b.api.StopReceivingUpdates()
			return nil
		}
	}
}

func (b *Bot) isAdmin(userID int64) bool {
	return b.cfg.IsAdmin(userID)
}

// updateSender identifies the account an update belongs to, zero when the
// update carries no sender.
func updateSender(update *tgbotapi.Update) int64 {
	switch {
	case update.Message != nil && update.Message.From != nil:
		return update.Message.From.ID
	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		return update.CallbackQuery.From.ID
	}
	return 0
}

func (b *Bot) senderLock(userID int64) *sync.Mutex {
	lock, _ := b.locks.LoadOrStore(userID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

func (b *Bot) handle(update *tgbotapi.Update) []error {
	var res responses
	var err error
	errs := make([]error, 0)
	switch {
	case update.Message != nil:
		res, err = b.handleMessage(update.Message)
	case update.CallbackQuery != nil:
		res, err = b.handleQuery(update.CallbackQuery)
	default:
		errs = append(errs, errors.New("unable to handle such update"))
	}
	if err != nil {
		errs = append(errs, err)
	}
	for _, resp := range res {
		if err := b.send(resp); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (b *Bot) send(c tgbotapi.Chattable) error {
	if c == nil {
		return nil
	}
	if _, err := b.api.Send(c); err != nil {
		return errors.Wrap(err, "failed to send message")
	}
	return nil
}
