package economy

import "fmt"

// Delta is one signed balance change.
type Delta struct {
	Amount  int64  `json:"amount"`
	Reason  string `json:"reason"`
	Balance int64  `json:"balance"`
}

// Ledger owns a player's coin balance. The balance is never negative and
// every change is recorded as a Delta.
type Ledger struct {
	balance int64
	pending []Delta
}

// NewLedger opens a ledger at balance.
func NewLedger(balance int64) (*Ledger, error) {
	if balance < 0 {
		return nil, fmt.Errorf("opening ledger with %d: %w", balance, ErrInvalidAmount)
	}
	return &Ledger{balance: balance}, nil
}

// Balance returns the current coin balance.
func (l *Ledger) Balance() int64 { return l.balance }

// CanAfford reports whether amount could be debited.
func (l *Ledger) CanAfford(amount int64) bool {
	return amount >= 0 && amount <= l.balance
}

// Credit adds amount to the balance.
func (l *Ledger) Credit(amount int64, reason string) error {
	if amount < 0 {
		return ErrInvalidAmount
	}
	if amount == 0 {
		return nil
	}
	l.balance += amount
	l.pending = append(l.pending, Delta{Amount: amount, Reason: reason, Balance: l.balance})
	return nil
}

// Debit removes amount from the balance, or fails with ErrInsufficientFunds
// leaving the balance untouched.
func (l *Ledger) Debit(amount int64, reason string) error {
	if amount < 0 {
		return ErrInvalidAmount
	}
	if amount > l.balance {
		return fmt.Errorf("debit %d with balance %d: %w", amount, l.balance, ErrInsufficientFunds)
	}
	if amount == 0 {
		return nil
	}
	l.balance -= amount
	l.pending = append(l.pending, Delta{Amount: -amount, Reason: reason, Balance: l.balance})
	return nil
}

// PendingDeltas returns unrecorded deltas and clears the buffer.
func (l *Ledger) PendingDeltas() []Delta {
	d := l.pending
	l.pending = nil
	return d
}
