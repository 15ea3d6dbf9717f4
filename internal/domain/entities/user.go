package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// User statuses tracked while a payment link is outstanding.
const (
	UserStatusMain           = "main"
	UserStatusPaymentPending = "GeneratePayLink"
)

// User is the account credited when a payment settles.
type User struct {
	ID        uuid.UUID       `db:"id"`
	Balance   decimal.Decimal `db:"balance"`
	Status    string          `db:"status"`
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt time.Time       `db:"updated_at"`
}
