package storage

import (
	"time"
)

// UserStatus represents subscription status of a channel member
type UserStatus string

const (
	UserStatusInactive UserStatus = "inactive"
	UserStatusActive   UserStatus = "active"
)

// User represents a Telegram user known to the bot. SubStart/SubEnd are only
// meaningful while Status is active; after deactivation they are kept as
// history and ignored.
type User struct {
	ID        int64 // telegram user id
	Username  string
	FullName  string
	Status    UserStatus
	SubStart  *time.Time
	SubEnd    *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CheckStatus represents review status of a payment check
type CheckStatus string

const (
	CheckStatusPending  CheckStatus = "pending"
	CheckStatusApproved CheckStatus = "approved"
	CheckStatusRejected CheckStatus = "rejected"
)

// PaymentCheck represents a logged payment-proof submission. Once the status
// leaves pending it never changes again.
type PaymentCheck struct {
	ID           int64
	UserID       int64
	Method       string // payment method label; "Gift-<handle>" for gifts
	FileID       string // telegram file id of the proof photo/document
	Status       CheckStatus
	SheetRow     *int64 // audit mirror row, if the mirror accepted the append
	DurationDays int
	Price        int // in tenge
	CreatedAt    time.Time
}

// PaymentMethod is admin-maintained reference data shown during the payment
// flow.
type PaymentMethod struct {
	Method    string
	Label     string
	Details   string
	UpdatedAt time.Time
}

// Booking represents a request for a live session with the master
type Booking struct {
	ID        int64
	UserID    int64
	Mode      string // online / offline
	Slot      string
	Note      string
	CreatedAt time.Time
}
