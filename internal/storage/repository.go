package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrCheckNotFound is returned when a payment check id is unknown.
	ErrCheckNotFound = errors.New("payment check not found")
	// ErrCheckClosed is returned when a decision targets a check that has
	// already been approved or rejected. Callers must treat it as a no-op.
	ErrCheckClosed = errors.New("payment check already reviewed")
)

type Repository struct {
	db *sql.DB
}

// NewRepository opens (and creates, if needed) the sqlite database at dsn
func NewRepository(dsn string) (*Repository, error) {
	if dsn == "" {
		dsn = "storage/bot.db"
	}

	if dsn != ":memory:" {
		dir := filepath.Dir(dsn)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %q: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", dsn+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %q: %w", dsn, err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database %q: %w", dsn, err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// User operations

// UpsertUser records first contact with a user. The subscription status is
// never touched here; repeated calls only refresh handle and name.
func (r *Repository) UpsertUser(ctx context.Context, id int64, username, fullName string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users(user_id, username, full_name, status)
		 VALUES(?, ?, ?, 'inactive')
		 ON CONFLICT(user_id) DO UPDATE SET
			username = excluded.username,
			full_name = excluded.full_name,
			updated_at = CURRENT_TIMESTAMP`,
		id, username, fullName,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

func (r *Repository) GetUser(ctx context.Context, id int64) (*User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT user_id, username, full_name, status, sub_start, sub_end, created_at, updated_at
		 FROM users WHERE user_id = ?`,
		id,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return user, nil
}

// SetSubscriptionActive installs a fresh subscription window for the user,
// creating the row if the user has never talked to the bot (gift grants).
// The write is a blind overwrite of any prior window.
func (r *Repository) SetSubscriptionActive(ctx context.Context, id int64, start time.Time, durationDays int) (time.Time, time.Time, error) {
	start = start.UTC()
	end := start.AddDate(0, 0, durationDays)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users(user_id, status, sub_start, sub_end)
		 VALUES(?, 'active', ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			status = 'active',
			sub_start = excluded.sub_start,
			sub_end = excluded.sub_end,
			updated_at = CURRENT_TIMESTAMP`,
		id, start, end,
	)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("failed to activate subscription: %w", err)
	}
	return start, end, nil
}

// DeactivateUser drops the user to inactive. The window columns are left in
// place as history.
func (r *Repository) DeactivateUser(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET status = 'inactive', updated_at = CURRENT_TIMESTAMP WHERE user_id = ?`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate user: %w", err)
	}
	return nil
}

func (r *Repository) ListActiveUsers(ctx context.Context) ([]*User, error) {
	return r.queryUsers(ctx,
		`SELECT user_id, username, full_name, status, sub_start, sub_end, created_at, updated_at
		 FROM users WHERE status = 'active' AND sub_end IS NOT NULL
		 ORDER BY sub_end ASC`,
	)
}

// ListExpiredUsers returns active users whose window closed at or before asOf.
func (r *Repository) ListExpiredUsers(ctx context.Context, asOf time.Time) ([]*User, error) {
	return r.queryUsers(ctx,
		`SELECT user_id, username, full_name, status, sub_start, sub_end, created_at, updated_at
		 FROM users WHERE status = 'active' AND sub_end IS NOT NULL AND sub_end <= ?`,
		asOf.UTC(),
	)
}

// ListUsersExpiringWithin returns active users whose window closes inside
// (asOf, asOf+leadDays]. Already-expired users are not included; the sweep
// handles those separately.
func (r *Repository) ListUsersExpiringWithin(ctx context.Context, asOf time.Time, leadDays int) ([]*User, error) {
	from := asOf.UTC()
	to := from.AddDate(0, 0, leadDays)
	return r.queryUsers(ctx,
		`SELECT user_id, username, full_name, status, sub_start, sub_end, created_at, updated_at
		 FROM users WHERE status = 'active' AND sub_end IS NOT NULL AND sub_end > ? AND sub_end <= ?`,
		from, to,
	)
}

func (r *Repository) queryUsers(ctx context.Context, query string, args ...interface{}) ([]*User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row scanner) (*User, error) {
	user := &User{}
	var username, fullName sql.NullString
	var subStart, subEnd sql.NullTime
	err := row.Scan(
		&user.ID, &username, &fullName, &user.Status,
		&subStart, &subEnd, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.Username = username.String
	user.FullName = fullName.String
	if subStart.Valid {
		t := subStart.Time
		user.SubStart = &t
	}
	if subEnd.Valid {
		t := subEnd.Time
		user.SubEnd = &t
	}
	return user, nil
}

// Payment check operations

func (r *Repository) CreatePaymentCheck(ctx context.Context, check *PaymentCheck) error {
	if check.Status == "" {
		check.Status = CheckStatusPending
	}
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO payment_checks(user_id, method, file_id, status, sheet_row, duration_days, price)
		 VALUES(?, ?, ?, ?, ?, ?, ?)`,
		check.UserID, check.Method, check.FileID, check.Status, check.SheetRow,
		check.DurationDays, check.Price,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment check: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	check.ID = id
	return nil
}

func (r *Repository) GetPaymentCheck(ctx context.Context, id int64) (*PaymentCheck, error) {
	check := &PaymentCheck{}
	var sheetRow sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, method, file_id, status, sheet_row, duration_days, price, created_at
		 FROM payment_checks WHERE id = ?`,
		id,
	).Scan(
		&check.ID, &check.UserID, &check.Method, &check.FileID, &check.Status,
		&sheetRow, &check.DurationDays, &check.Price, &check.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query payment check: %w", err)
	}
	if sheetRow.Valid {
		row := sheetRow.Int64
		check.SheetRow = &row
	}
	return check, nil
}

func (r *Repository) ListPendingChecks(ctx context.Context) ([]*PaymentCheck, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, method, file_id, status, sheet_row, duration_days, price, created_at
		 FROM payment_checks WHERE status = ? ORDER BY created_at ASC`,
		CheckStatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending checks: %w", err)
	}
	defer rows.Close()

	var checks []*PaymentCheck
	for rows.Next() {
		check := &PaymentCheck{}
		var sheetRow sql.NullInt64
		err := rows.Scan(
			&check.ID, &check.UserID, &check.Method, &check.FileID, &check.Status,
			&sheetRow, &check.DurationDays, &check.Price, &check.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment check: %w", err)
		}
		if sheetRow.Valid {
			row := sheetRow.Int64
			check.SheetRow = &row
		}
		checks = append(checks, check)
	}
	return checks, rows.Err()
}

// ApproveCheck marks the check approved and installs the subscription window
// for userID in one transaction. If the check is missing or is no longer
// pending, nothing is written and ErrCheckNotFound/ErrCheckClosed is
// returned, which makes a duplicate admin tap a clean no-op.
func (r *Repository) ApproveCheck(ctx context.Context, checkID, userID int64, start time.Time, durationDays int) (time.Time, time.Time, error) {
	start = start.UTC()
	end := start.AddDate(0, 0, durationDays)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE payment_checks SET status = ? WHERE id = ? AND status = ?`,
		CheckStatusApproved, checkID, CheckStatusPending,
	)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("failed to close payment check: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM payment_checks WHERE id = ?`, checkID,
		).Scan(&exists); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("failed to probe payment check: %w", err)
		}
		if exists == 0 {
			return time.Time{}, time.Time{}, ErrCheckNotFound
		}
		return time.Time{}, time.Time{}, ErrCheckClosed
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users(user_id, status, sub_start, sub_end)
		 VALUES(?, 'active', ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			status = 'active',
			sub_start = excluded.sub_start,
			sub_end = excluded.sub_end,
			updated_at = CURRENT_TIMESTAMP`,
		userID, start, end,
	)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("failed to activate subscription: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("failed to commit approval: %w", err)
	}
	return start, end, nil
}

// RejectCheck marks a pending check rejected. Terminal checks are left
// untouched and reported via ErrCheckClosed.
func (r *Repository) RejectCheck(ctx context.Context, checkID int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payment_checks SET status = ? WHERE id = ? AND status = ?`,
		CheckStatusRejected, checkID, CheckStatusPending,
	)
	if err != nil {
		return fmt.Errorf("failed to reject payment check: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		check, err := r.GetPaymentCheck(ctx, checkID)
		if err != nil {
			return err
		}
		if check == nil {
			return ErrCheckNotFound
		}
		return ErrCheckClosed
	}
	return nil
}

// Payment method operations

func (r *Repository) GetPaymentDetails(ctx context.Context, method string) (string, error) {
	var details string
	err := r.db.QueryRowContext(ctx,
		`SELECT details FROM payment_details WHERE method = ?`,
		method,
	).Scan(&details)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("failed to query payment details: %w", err)
	}
	return details, nil
}

func (r *Repository) UpsertPaymentDetails(ctx context.Context, method, details string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payment_details(method, label, details)
		 VALUES(?, ?, ?)
		 ON CONFLICT(method) DO UPDATE SET
			details = excluded.details,
			updated_at = CURRENT_TIMESTAMP`,
		method, method, details,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert payment details: %w", err)
	}
	return nil
}

func (r *Repository) ListPaymentMethods(ctx context.Context) ([]*PaymentMethod, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT method, label, details, updated_at FROM payment_details ORDER BY method`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query payment methods: %w", err)
	}
	defer rows.Close()

	var methods []*PaymentMethod
	for rows.Next() {
		m := &PaymentMethod{}
		if err := rows.Scan(&m.Method, &m.Label, &m.Details, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment method: %w", err)
		}
		methods = append(methods, m)
	}
	return methods, rows.Err()
}

// Booking operations

func (r *Repository) AddBooking(ctx context.Context, booking *Booking) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO bookings(user_id, mode, slot, note) VALUES(?, ?, ?, ?)`,
		booking.UserID, booking.Mode, booking.Slot, booking.Note,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	booking.ID = id
	return nil
}

func (r *Repository) ListRecentBookings(ctx context.Context, limit int) ([]*Booking, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, mode, slot, COALESCE(note, ''), created_at
		 FROM bookings ORDER BY created_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*Booking
	for rows.Next() {
		b := &Booking{}
		if err := rows.Scan(&b.ID, &b.UserID, &b.Mode, &b.Slot, &b.Note, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}
