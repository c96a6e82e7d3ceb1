package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	require.NoError(t, repo.Migrate(context.Background()))
	return repo
}

func TestUpsertUserKeepsStatusOnUpdate(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertUser(ctx, 100, "alice", "Alice"))
	_, _, err := repo.SetSubscriptionActive(ctx, 100, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 30)
	require.NoError(t, err)

	// A later /start must refresh the profile without touching the status.
	require.NoError(t, repo.UpsertUser(ctx, 100, "alice_new", "Alice N."))

	user, err := repo.GetUser(ctx, 100)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "alice_new", user.Username)
	assert.Equal(t, UserStatusActive, user.Status)
}

func TestSetSubscriptionActiveWindowMath(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	start, end, err := repo.SetSubscriptionActive(ctx, 200, now, 30)
	require.NoError(t, err)
	assert.Equal(t, now, start)
	assert.Equal(t, time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC), end)

	user, err := repo.GetUser(ctx, 200)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, UserStatusActive, user.Status)
	require.NotNil(t, user.SubEnd)
	assert.True(t, user.SubEnd.Equal(end))
}

func TestSetSubscriptionActiveOverwritesOldWindow(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, _, err := repo.SetSubscriptionActive(ctx, 300, first, 30)
	require.NoError(t, err)

	second := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	_, end, err := repo.SetSubscriptionActive(ctx, 300, second, 90)
	require.NoError(t, err)

	user, err := repo.GetUser(ctx, 300)
	require.NoError(t, err)
	require.NotNil(t, user.SubStart)
	require.NotNil(t, user.SubEnd)
	assert.True(t, user.SubStart.Equal(second))
	assert.True(t, user.SubEnd.Equal(end))
}

func TestDeactivateUserPreservesWindow(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, end, err := repo.SetSubscriptionActive(ctx, 400, start, 30)
	require.NoError(t, err)

	require.NoError(t, repo.DeactivateUser(ctx, 400))

	user, err := repo.GetUser(ctx, 400)
	require.NoError(t, err)
	assert.Equal(t, UserStatusInactive, user.Status)
	require.NotNil(t, user.SubEnd)
	assert.True(t, user.SubEnd.Equal(end))
}

func TestListExpiredUsersBoundary(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	now := time.Date(2024, 6, 1, 5, 0, 0, 0, time.UTC)

	// Ends exactly at the sweep instant: expired.
	_, _, err := repo.SetSubscriptionActive(ctx, 500, now.AddDate(0, 0, -30), 30)
	require.NoError(t, err)
	// Ends one second later: still active.
	_, _, err = repo.SetSubscriptionActive(ctx, 501, now.AddDate(0, 0, -30).Add(time.Second), 30)
	require.NoError(t, err)
	// Already deactivated: never reported again.
	_, _, err = repo.SetSubscriptionActive(ctx, 502, now.AddDate(0, 0, -60), 30)
	require.NoError(t, err)
	require.NoError(t, repo.DeactivateUser(ctx, 502))

	expired, err := repo.ListExpiredUsers(ctx, now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, int64(500), expired[0].ID)
}

func TestListExpiredUsersSkipsNullWindow(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	// An active row with no window can exist after manual intervention; the
	// sweep must leave it alone instead of failing.
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO users(user_id, status) VALUES(?, 'active')`, int64(510))
	require.NoError(t, err)

	expired, err := repo.ListExpiredUsers(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, expired)
}

func TestListUsersExpiringWithin(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	now := time.Date(2024, 6, 1, 5, 0, 0, 0, time.UTC)

	// Ends in 2 days: inside the 3-day lead window.
	_, _, err := repo.SetSubscriptionActive(ctx, 600, now.AddDate(0, 0, -28), 30)
	require.NoError(t, err)
	// Ends in 4 days: outside.
	_, _, err = repo.SetSubscriptionActive(ctx, 601, now.AddDate(0, 0, -26), 30)
	require.NoError(t, err)
	// Already over: handled by the expiry pass, not the reminder one.
	_, _, err = repo.SetSubscriptionActive(ctx, 602, now.AddDate(0, 0, -31), 30)
	require.NoError(t, err)

	expiring, err := repo.ListUsersExpiringWithin(ctx, now, 3)
	require.NoError(t, err)
	require.Len(t, expiring, 1)
	assert.Equal(t, int64(600), expiring[0].ID)
}

func TestCreateAndGetPaymentCheck(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertUser(ctx, 700, "bob", "Bob"))
	row := int64(7)
	check := &PaymentCheck{
		UserID:       700,
		Method:       "kaspi",
		FileID:       "file-1",
		SheetRow:     &row,
		DurationDays: 90,
		Price:        25000,
	}
	require.NoError(t, repo.CreatePaymentCheck(ctx, check))
	require.NotZero(t, check.ID)

	got, err := repo.GetPaymentCheck(ctx, check.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, CheckStatusPending, got.Status)
	assert.Equal(t, "kaspi", got.Method)
	assert.Equal(t, 90, got.DurationDays)
	require.NotNil(t, got.SheetRow)
	assert.Equal(t, int64(7), *got.SheetRow)

	missing, err := repo.GetPaymentCheck(ctx, 9999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestApproveCheckActivatesUser(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertUser(ctx, 800, "carol", "Carol"))
	check := &PaymentCheck{UserID: 800, Method: "kaspi", FileID: "f", DurationDays: 30, Price: 9999}
	require.NoError(t, repo.CreatePaymentCheck(ctx, check))

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	start, end, err := repo.ApproveCheck(ctx, check.ID, 800, now, 30)
	require.NoError(t, err)
	assert.Equal(t, now, start)
	assert.Equal(t, now.AddDate(0, 0, 30), end)

	user, err := repo.GetUser(ctx, 800)
	require.NoError(t, err)
	assert.Equal(t, UserStatusActive, user.Status)

	got, err := repo.GetPaymentCheck(ctx, check.ID)
	require.NoError(t, err)
	assert.Equal(t, CheckStatusApproved, got.Status)
}

func TestApproveCheckTwiceIsNoOp(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertUser(ctx, 810, "dave", "Dave"))
	check := &PaymentCheck{UserID: 810, Method: "kaspi", FileID: "f", DurationDays: 30, Price: 9999}
	require.NoError(t, repo.CreatePaymentCheck(ctx, check))

	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, end, err := repo.ApproveCheck(ctx, check.ID, 810, first, 30)
	require.NoError(t, err)

	// A duplicate tap a minute later must not move the window.
	_, _, err = repo.ApproveCheck(ctx, check.ID, 810, first.Add(time.Minute), 30)
	assert.ErrorIs(t, err, ErrCheckClosed)

	user, err := repo.GetUser(ctx, 810)
	require.NoError(t, err)
	require.NotNil(t, user.SubEnd)
	assert.True(t, user.SubEnd.Equal(end))
}

func TestApproveCheckUnknownID(t *testing.T) {
	repo := newTestRepository(t)

	_, _, err := repo.ApproveCheck(context.Background(), 424242, 1, time.Now(), 30)
	assert.ErrorIs(t, err, ErrCheckNotFound)
}

func TestRejectCheckIsTerminal(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertUser(ctx, 820, "erin", "Erin"))
	check := &PaymentCheck{UserID: 820, Method: "tinkoff", FileID: "f", DurationDays: 30, Price: 9999}
	require.NoError(t, repo.CreatePaymentCheck(ctx, check))

	require.NoError(t, repo.RejectCheck(ctx, check.ID))
	assert.ErrorIs(t, repo.RejectCheck(ctx, check.ID), ErrCheckClosed)

	// Approval after rejection is equally refused.
	_, _, err := repo.ApproveCheck(ctx, check.ID, 820, time.Now(), 30)
	assert.ErrorIs(t, err, ErrCheckClosed)

	user, err := repo.GetUser(ctx, 820)
	require.NoError(t, err)
	assert.Equal(t, UserStatusInactive, user.Status)
	assert.Nil(t, user.SubEnd)
}

func TestRejectCheckUnknownID(t *testing.T) {
	repo := newTestRepository(t)
	assert.ErrorIs(t, repo.RejectCheck(context.Background(), 424242), ErrCheckNotFound)
}

func TestListPendingChecks(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertUser(ctx, 830, "frank", "Frank"))
	a := &PaymentCheck{UserID: 830, Method: "kaspi", FileID: "a", DurationDays: 30, Price: 9999}
	b := &PaymentCheck{UserID: 830, Method: "usdt", FileID: "b", DurationDays: 90, Price: 25000}
	require.NoError(t, repo.CreatePaymentCheck(ctx, a))
	require.NoError(t, repo.CreatePaymentCheck(ctx, b))
	require.NoError(t, repo.RejectCheck(ctx, a.ID))

	pending, err := repo.ListPendingChecks(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, b.ID, pending[0].ID)
}

func TestPaymentDetailsSeededAndUpdatable(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	methods, err := repo.ListPaymentMethods(ctx)
	require.NoError(t, err)
	require.Len(t, methods, 3)

	require.NoError(t, repo.UpsertPaymentDetails(ctx, "Kaspi", "4400 0000 0000 0000"))
	details, err := repo.GetPaymentDetails(ctx, "Kaspi")
	require.NoError(t, err)
	assert.Equal(t, "4400 0000 0000 0000", details)

	methods, err = repo.ListPaymentMethods(ctx)
	require.NoError(t, err)
	assert.Len(t, methods, 3)
}

func TestBookings(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertUser(ctx, 900, "gary", "Gary"))
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.AddBooking(ctx, &Booking{
			UserID: 900,
			Mode:   "online",
			Slot:   "завтра в 15:00",
		}))
	}

	bookings, err := repo.ListRecentBookings(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, bookings, 2)
}
