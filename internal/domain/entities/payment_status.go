package entities

import "fmt"

// PaymentStatus represents where a payment sits in its lifecycle.
type PaymentStatus string

const (
	PaymentStatusCreated   PaymentStatus = "created"
	PaymentStatusVerified  PaymentStatus = "verified"
	PaymentStatusConfirmed PaymentStatus = "confirmed"
)

// ValidPaymentTransitions defines allowed status transitions. Confirmed is
// terminal: settlement amounts are written exactly once.
var ValidPaymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusCreated:   {PaymentStatusVerified},
	PaymentStatusVerified:  {PaymentStatusConfirmed},
	PaymentStatusConfirmed: {},
}

// CanTransitionTo checks if transition to new status is allowed.
func (s PaymentStatus) CanTransitionTo(newStatus PaymentStatus) bool {
	for _, status := range ValidPaymentTransitions[s] {
		if status == newStatus {
			return true
		}
	}
	return false
}

// IsTerminal returns true if this is a terminal state.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusConfirmed
}

// ValidateTransition returns an error if the transition is not allowed.
func (s PaymentStatus) ValidateTransition(newStatus PaymentStatus) error {
	if !s.CanTransitionTo(newStatus) {
		return fmt.Errorf("invalid payment transition from %s to %s", s, newStatus)
	}
	return nil
}
