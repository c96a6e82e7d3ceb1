package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/amiren/resonance-bot/internal/storage"
)

// Notifier delivers best-effort text messages to a user.
type Notifier interface {
	SendText(chatID int64, text string) error
}

// Channel controls membership of the private channel.
type Channel interface {
	KickFromChannel(ctx context.Context, userID int64) error
}

// Service runs the daily subscription sweep: demote accounts whose window
// has closed, remind accounts nearing expiry. One sweep per day at a fixed
// UTC hour; runs never overlap.
type Service struct {
	repo               *storage.Repository
	notifier           Notifier
	channel            Channel
	reminderBeforeDays int

	mu      sync.Mutex
	cron    *cron.Cron
	started bool
}

func NewService(repo *storage.Repository, notifier Notifier, channel Channel, reminderBeforeDays int) *Service {
	return &Service{
		repo:               repo,
		notifier:           notifier,
		channel:            channel,
		reminderBeforeDays: reminderBeforeDays,
	}
}

// Start schedules the daily sweep at 05:00 UTC. A second call is a no-op so
// the sweep can never be double-registered.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
	_, err := c.AddFunc("0 5 * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		s.Sweep(ctx, time.Now())
	})
	if err != nil {
		return err
	}

	c.Start()
	s.cron = c
	s.started = true
	log.Printf("scheduler: subscription sweep scheduled at 05:00 UTC")
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	<-s.cron.Stop().Done()
	s.started = false
}

// Sweep performs one pass: step 1 demotes expired accounts, step 2 sends
// advance reminders. Exported so a sweep can be triggered outside the cron
// schedule.
func (s *Service) Sweep(ctx context.Context, now time.Time) {
	log.Printf("scheduler: sweep started")

	if err := s.demoteExpired(ctx, now); err != nil {
		log.Printf("scheduler: failed to process expired users: %v", err)
	}
	if err := s.remindExpiring(ctx, now); err != nil {
		log.Printf("scheduler: failed to send reminders: %v", err)
	}

	log.Printf("scheduler: sweep finished")
}

func (s *Service) demoteExpired(ctx context.Context, now time.Time) error {
	expired, err := s.repo.ListExpiredUsers(ctx, now)
	if err != nil {
		return err
	}

	for _, user := range expired {
		if user.SubEnd == nil {
			// active row without a window is a data-integrity violation;
			// skip rather than crash the sweep
			continue
		}

		if err := s.channel.KickFromChannel(ctx, user.ID); err != nil {
			log.Printf("scheduler: failed to remove expired user %d from channel: %v", user.ID, err)
		}

		// the authoritative state change happens regardless of the
		// channel or notification outcome
		if err := s.repo.DeactivateUser(ctx, user.ID); err != nil {
			log.Printf("scheduler: failed to deactivate user %d: %v", user.ID, err)
			continue
		}

		text := "⛔ Доступ к каналу временно закрыт. Ваша подписка истекла. " +
			"Продлите её через кнопку \"💳 Оплата подписки\", чтобы вернуться."
		if err := s.notifier.SendText(user.ID, text); err != nil {
			log.Printf("scheduler: cannot notify expired user %d: %v", user.ID, err)
		}
	}
	return nil
}

func (s *Service) remindExpiring(ctx context.Context, now time.Time) error {
	expiring, err := s.repo.ListUsersExpiringWithin(ctx, now, s.reminderBeforeDays)
	if err != nil {
		return err
	}

	for _, user := range expiring {
		if user.SubEnd == nil {
			continue
		}
		text := fmt.Sprintf(
			"⚠️ Срок подписки скоро закончится — %s. Продлите доступ заранее, чтобы не потерять канал.",
			user.SubEnd.Format("02.01.2006"),
		)
		if err := s.notifier.SendText(user.ID, text); err != nil {
			log.Printf("scheduler: cannot remind user %d: %v", user.ID, err)
		}
	}
	return nil
}
