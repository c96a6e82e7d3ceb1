package subscription

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/pkg/errors"

	"github.com/amiren/resonance-bot/internal/storage"
)

// Notifier delivers best-effort text messages to a user.
type Notifier interface {
	SendText(chatID int64, text string) error
}

// Channel controls membership of the private channel.
type Channel interface {
	UnbanInChannel(ctx context.Context, userID int64) error
}

// Mirror is the external audit ledger. All calls are best-effort.
type Mirror interface {
	AppendCheckRow(ctx context.Context, userID int64, username, method, fileID string) (int64, error)
	UpdateCheckStatus(ctx context.Context, row int64, status string, start, end *time.Time) error
	AppendBookingRow(ctx context.Context, userID int64, username, mode, slot, note string) error
}

type Service struct {
	repo            *storage.Repository
	mirror          Mirror
	notifier        Notifier
	channel         Channel
	inviteLink      string
	defaultDuration int
}

func NewService(repo *storage.Repository, mirror Mirror, notifier Notifier, channel Channel, inviteLink string, defaultDuration int) *Service {
	return &Service{
		repo:            repo,
		mirror:          mirror,
		notifier:        notifier,
		channel:         channel,
		inviteLink:      inviteLink,
		defaultDuration: defaultDuration,
	}
}

// SubmitCheck logs a payment proof for review. The mirror append happens
// first so the row reference can be stored with the check; its failure only
// costs the reference, never the submission.
func (s *Service) SubmitCheck(ctx context.Context, userID int64, username, method, fileID string, durationDays, price int) (*storage.PaymentCheck, error) {
	check := &storage.PaymentCheck{
		UserID:       userID,
		Method:       method,
		FileID:       fileID,
		Status:       storage.CheckStatusPending,
		DurationDays: durationDays,
		Price:        price,
	}

	row, err := s.mirror.AppendCheckRow(ctx, userID, username, method, fileID)
	if err != nil {
		log.Printf("subscription: mirror append failed for user %d: %v", userID, err)
	} else if row > 0 {
		check.SheetRow = &row
	}

	if err := s.repo.CreatePaymentCheck(ctx, check); err != nil {
		return nil, errors.Wrap(err, "failed to log payment check")
	}
	return check, nil
}

// Decision is the applied outcome of an approval.
type Decision struct {
	Check *storage.PaymentCheck
	Start time.Time
	End   time.Time
}

// Approve applies an administrator's approval of the check to the target
// user. The check transition and the subscription window land in one store
// transaction; a check that is missing or already reviewed results in
// storage.ErrCheckNotFound / storage.ErrCheckClosed with nothing mutated and
// no side effect sent. Notification, mirror update and channel unban are
// independent best-effort follow-ups.
func (s *Service) Approve(ctx context.Context, checkID, targetUserID int64, durationDays int) (*Decision, error) {
	check, err := s.repo.GetPaymentCheck(ctx, checkID)
	if err != nil {
		return nil, err
	}
	if check == nil {
		return nil, storage.ErrCheckNotFound
	}

	if durationDays <= 0 {
		durationDays = check.DurationDays
	}
	if durationDays <= 0 {
		durationDays = s.defaultDuration
	}

	start, end, err := s.repo.ApproveCheck(ctx, checkID, targetUserID, time.Now(), durationDays)
	if err != nil {
		return nil, err
	}

	if check.SheetRow != nil {
		if err := s.mirror.UpdateCheckStatus(ctx, *check.SheetRow, "✅ Подтверждено", &start, &end); err != nil {
			log.Printf("subscription: mirror update failed for check %d: %v", checkID, err)
		}
	}

	if err := s.channel.UnbanInChannel(ctx, targetUserID); err != nil {
		log.Printf("subscription: cannot unban user %d in channel: %v", targetUserID, err)
	}

	text := fmt.Sprintf(
		"✅ Оплата подтверждена! Доступ активен до %s.\nСсылка на канал: %s",
		end.Format("02.01.2006"), s.inviteLink,
	)
	if err := s.notifier.SendText(targetUserID, text); err != nil {
		log.Printf("subscription: cannot notify user %d: %v", targetUserID, err)
	}

	return &Decision{Check: check, Start: start, End: end}, nil
}

// Reject marks the check rejected and invites the submitter to resubmit.
// The subscription window is never touched on this path.
func (s *Service) Reject(ctx context.Context, checkID int64) (*storage.PaymentCheck, error) {
	check, err := s.repo.GetPaymentCheck(ctx, checkID)
	if err != nil {
		return nil, err
	}
	if check == nil {
		return nil, storage.ErrCheckNotFound
	}

	if err := s.repo.RejectCheck(ctx, checkID); err != nil {
		return nil, err
	}

	if check.SheetRow != nil {
		if err := s.mirror.UpdateCheckStatus(ctx, *check.SheetRow, "❌ Отклонено", nil, nil); err != nil {
			log.Printf("subscription: mirror update failed for check %d: %v", checkID, err)
		}
	}

	text := "❌ Оплата не подтверждена. Проверьте реквизиты и отправьте чек повторно."
	if err := s.notifier.SendText(check.UserID, text); err != nil {
		log.Printf("subscription: cannot notify user %d: %v", check.UserID, err)
	}

	return check, nil
}

// Grant activates a subscription without a payment check, for administrative
// gifts. Side effects follow the approve path.
func (s *Service) Grant(ctx context.Context, userID int64, durationDays int) (time.Time, time.Time, error) {
	if durationDays <= 0 {
		durationDays = s.defaultDuration
	}
	start, end, err := s.repo.SetSubscriptionActive(ctx, userID, time.Now(), durationDays)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	if err := s.channel.UnbanInChannel(ctx, userID); err != nil {
		log.Printf("subscription: cannot unban user %d in channel: %v", userID, err)
	}

	text := fmt.Sprintf(
		"🎁 Вам подарена подписка на Resonance!\n\nДоступ активен до %s.\nСсылка на канал: %s",
		end.Format("02.01.2006"), s.inviteLink,
	)
	if err := s.notifier.SendText(userID, text); err != nil {
		log.Printf("subscription: cannot notify user %d: %v", userID, err)
	}

	return start, end, nil
}

// SubmitBooking stores a session request and mirrors it to the ledger.
func (s *Service) SubmitBooking(ctx context.Context, userID int64, username, mode, slot string) (*storage.Booking, error) {
	booking := &storage.Booking{UserID: userID, Mode: mode, Slot: slot}
	if err := s.repo.AddBooking(ctx, booking); err != nil {
		return nil, errors.Wrap(err, "failed to store booking")
	}
	if err := s.mirror.AppendBookingRow(ctx, userID, username, mode, slot, ""); err != nil {
		log.Printf("subscription: mirror booking append failed for user %d: %v", userID, err)
	}
	return booking, nil
}

// Status summarizes the user's subscription for the status command.
type Status struct {
	Active bool
	End    time.Time
	Reason string
}

// CheckStatus reports whether the user currently holds access and until when.
func (s *Service) CheckStatus(ctx context.Context, userID int64) (*Status, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get user")
	}
	if user == nil || user.Status != storage.UserStatusActive || user.SubEnd == nil {
		return &Status{
			Active: false,
			Reason: "У вас нет активной подписки. Оформите её через кнопку \"💳 Оплата подписки\".",
		}, nil
	}
	return &Status{Active: true, End: *user.SubEnd}, nil
}
