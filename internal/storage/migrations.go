package storage

import (
	"context"
	"fmt"
)

// Migrate creates all necessary tables and seeds payment method reference data
func (r *Repository) Migrate(ctx context.Context) error {
	migrations := []struct {
		name string
		sql  string
	}{
		{
			name: "create_users",
			sql: `CREATE TABLE IF NOT EXISTS users (
				user_id INTEGER PRIMARY KEY,
				username TEXT,
				full_name TEXT,
				status TEXT NOT NULL DEFAULT 'inactive',
				sub_start DATETIME,
				sub_end DATETIME,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`,
		},
		{
			name: "create_payment_details",
			sql: `CREATE TABLE IF NOT EXISTS payment_details (
				method TEXT PRIMARY KEY,
				label TEXT NOT NULL,
				details TEXT NOT NULL,
				updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`,
		},
		{
			name: "create_payment_checks",
			sql: `CREATE TABLE IF NOT EXISTS payment_checks (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id INTEGER NOT NULL,
				method TEXT NOT NULL,
				file_id TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'pending',
				sheet_row INTEGER,
				duration_days INTEGER NOT NULL DEFAULT 30,
				price INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				FOREIGN KEY (user_id) REFERENCES users(user_id)
			)`,
		},
		{
			name: "create_bookings",
			sql: `CREATE TABLE IF NOT EXISTS bookings (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id INTEGER NOT NULL,
				mode TEXT NOT NULL,
				slot TEXT NOT NULL,
				note TEXT,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				FOREIGN KEY (user_id) REFERENCES users(user_id)
			)`,
		},
		{
			name: "create_indexes",
			sql: `CREATE INDEX IF NOT EXISTS idx_users_status ON users(status);
				CREATE INDEX IF NOT EXISTS idx_users_sub_end ON users(sub_end);
				CREATE INDEX IF NOT EXISTS idx_payment_checks_user_id ON payment_checks(user_id);
				CREATE INDEX IF NOT EXISTS idx_payment_checks_status ON payment_checks(status);
				CREATE INDEX IF NOT EXISTS idx_bookings_user_id ON bookings(user_id);
			`,
		},
	}

	for _, migration := range migrations {
		if _, err := r.db.ExecContext(ctx, migration.sql); err != nil {
			return fmt.Errorf("migration %s failed: %w", migration.name, err)
		}
	}

	seed := []struct {
		method, label, details string
	}{
		{"Kaspi", "Kaspi Bank", "Укажите актуальные реквизиты Kaspi"},
		{"Tinkoff", "Tinkoff", "Укажите карту Tinkoff"},
		{"USDT", "USDT TRC-20", "Введите кошелек USDT"},
	}
	for _, m := range seed {
		_, err := r.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO payment_details(method, label, details) VALUES (?, ?, ?)`,
			m.method, m.label, m.details,
		)
		if err != nil {
			return fmt.Errorf("seeding payment method %s failed: %w", m.method, err)
		}
	}

	return nil
}
