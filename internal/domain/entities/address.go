package entities

import (
	"time"

	"github.com/google/uuid"
)

// DepositAddress is a chain address under our control. Generated addresses
// persist indefinitely; sweeps drain the balance without retiring the record.
type DepositAddress struct {
	ID            uuid.UUID `db:"id"`
	AddressHex    string    `db:"address_hex"`
	AddressBase58 string    `db:"address_base58"`
	PrivateKey    string    `db:"private_key"`
	PublicKey     string    `db:"public_key"`
	CreatedAt     time.Time `db:"created_at"`

	// PaymentID is populated by the scan queries that join addresses against
	// their payment log entry; zero when the address was loaded standalone.
	PaymentID uuid.UUID `db:"payment_id"`
}
