// Package session keeps short-lived per-user conversation state in memory.
// A restart drops all sessions; users resume from the main menu.
package session

import (
	"sync"
)

// State is one stage of an in-progress conversation. Each variant carries
// only the fields that are valid at that stage, so a transition can never
// observe leftovers from an earlier, abandoned flow.
type State interface {
	stage() string
}

// Payment flow

// ChoosingPlan: the plan menu is shown, nothing selected yet.
type ChoosingPlan struct{}

// ChoosingMethod: a plan is locked in, the method menu is shown.
type ChoosingMethod struct {
	DurationDays int
	Price        int
}

// ConfirmingPayment: a method is chosen and its details are shown; proof is
// not accepted until the user confirms they have paid.
type ConfirmingPayment struct {
	DurationDays int
	Price        int
	Method       string
}

// AwaitingProof: the user confirmed intent to pay and may now upload exactly
// one photo or document.
type AwaitingProof struct {
	DurationDays int
	Price        int
	Method       string
}

// Gift flow

// GiftAwaitingRecipient: waiting for the @handle of the gift recipient.
type GiftAwaitingRecipient struct{}

// GiftAwaitingProof: recipient handle captured, waiting for the proof upload.
type GiftAwaitingProof struct {
	Recipient string
}

// AwaitingQuestion: free-form question, forwarded to the administrators.
type AwaitingQuestion struct{}

// Booking flow

type BookingChoosingMode struct{}

type BookingAwaitingSlot struct {
	Mode string
}

// Admin flows

// AdminAwaitingDetails: admin picked a payment method and is typing new
// reference details.
type AdminAwaitingDetails struct {
	Method string
}

// AdminAwaitingGiftTarget: admin must supply the numeric id of a gift
// recipient before a gift check can be approved.
type AdminAwaitingGiftTarget struct {
	CheckID   int64
	Recipient string
}

// AdminAwaitingGrantTarget: admin-initiated grant, waiting for the user id.
type AdminAwaitingGrantTarget struct{}

// AdminChoosingGrantDuration: grant target captured, waiting for duration.
type AdminChoosingGrantDuration struct {
	UserID int64
}

func (ChoosingPlan) stage() string               { return "choosing_plan" }
func (ChoosingMethod) stage() string             { return "choosing_method" }
func (ConfirmingPayment) stage() string          { return "confirming_payment" }
func (AwaitingProof) stage() string              { return "awaiting_proof" }
func (GiftAwaitingRecipient) stage() string      { return "gift_awaiting_recipient" }
func (GiftAwaitingProof) stage() string          { return "gift_awaiting_proof" }
func (AwaitingQuestion) stage() string           { return "awaiting_question" }
func (BookingChoosingMode) stage() string        { return "booking_choosing_mode" }
func (BookingAwaitingSlot) stage() string        { return "booking_awaiting_slot" }
func (AdminAwaitingDetails) stage() string       { return "admin_awaiting_details" }
func (AdminAwaitingGiftTarget) stage() string    { return "admin_awaiting_gift_target" }
func (AdminAwaitingGrantTarget) stage() string   { return "admin_awaiting_grant_target" }
func (AdminChoosingGrantDuration) stage() string { return "admin_choosing_grant_duration" }

// Store tracks at most one live State per user.
type Store struct {
	mu       sync.RWMutex
	sessions map[int64]State
}

func NewStore() *Store {
	return &Store{sessions: make(map[int64]State)}
}

// Get returns the live state for the user, or nil when there is none.
func (s *Store) Get(userID int64) State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[userID]
}

// Set unconditionally replaces any prior state for the user. Entry actions
// rely on this to discard abandoned flows instead of merging into them.
func (s *Store) Set(userID int64, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[userID] = state
}

// Clear ends the user's conversation, if any.
func (s *Store) Clear(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}
