package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TrackingCodeLength is the number of trailing decimal digits reserved for
// the tracking code inside a quoted crypto amount.
const TrackingCodeLength = 3

// RateGuaranteeWindow is how long the quoted gateway rate stays locked.
// Payments verified after this window are re-rated at the current market rate.
const RateGuaranteeWindow = 15 * time.Minute

// Payment is one fiat invoice quoted in crypto. The crypto amount carries the
// tracking code in its trailing decimals so an external deposit can be matched
// back without any memo field.
type Payment struct {
	ID             uuid.UUID       `db:"id"`
	UserID         uuid.UUID       `db:"user_id"`
	TrackingCode   int             `db:"tracking_code"`
	FiatAmount     decimal.Decimal `db:"fiat_amount"`
	GatewayID      int             `db:"gateway_id"`
	GatewayRate    decimal.Decimal `db:"gateway_rate"`
	CryptoAmount   decimal.Decimal `db:"crypto_amount"`
	CryptoCurrency string          `db:"crypto_currency"`
	Fee            decimal.Decimal `db:"fee"`
	DepositAddress string          `db:"deposit_address"`
	CreatedAt      time.Time       `db:"created_at"`

	VerifiedAmount decimal.NullDecimal `db:"verified_amount"`
	VerifiedAt     *time.Time          `db:"verified_at"`
	Hash           *string             `db:"hash"`

	ConfirmedFiat decimal.NullDecimal `db:"confirmed_fiat"`
	ConfirmedFee  decimal.NullDecimal `db:"confirmed_fee"`
	ConfirmedRate decimal.NullDecimal `db:"confirmed_rate"`
	ConfirmedAt   *time.Time          `db:"confirmed_at"`
}

// Status derives the lifecycle state from the timestamps.
func (p *Payment) Status() PaymentStatus {
	switch {
	case p.ConfirmedAt != nil:
		return PaymentStatusConfirmed
	case p.VerifiedAt != nil:
		return PaymentStatusVerified
	default:
		return PaymentStatusCreated
	}
}

// Settled reports whether the payment has left the detectable set. Only
// unsettled payments can be found by tracking code or deposit address.
func (p *Payment) Settled() bool {
	return p.VerifiedAt != nil
}

// LateSettlement reports whether verification landed outside the rate
// guarantee window. Strictly greater: a payment verified at exactly the
// window boundary keeps its original quote.
func (p *Payment) LateSettlement() bool {
	if p.VerifiedAt == nil {
		return false
	}
	return p.VerifiedAt.Sub(p.CreatedAt) > RateGuaranteeWindow
}
