package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/trxgate/trxgate/internal/domain/entities"
	domainerrors "github.com/trxgate/trxgate/internal/domain/errors"
)

const paymentColumns = `
	id, user_id, tracking_code, fiat_amount, gateway_id, gateway_rate,
	crypto_amount, crypto_currency, fee, deposit_address, created_at,
	verified_amount, verified_at, hash,
	confirmed_fiat, confirmed_fee, confirmed_rate, confirmed_at`

// PaymentRepository persists the payment log.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository creates a new payment repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create appends a new payment log entry.
func (r *PaymentRepository) Create(ctx context.Context, payment *entities.Payment) error {
	query := `
		INSERT INTO payments (
			id, user_id, tracking_code, fiat_amount, gateway_id, gateway_rate,
			crypto_amount, crypto_currency, fee, deposit_address, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		payment.ID,
		payment.UserID,
		payment.TrackingCode,
		payment.FiatAmount,
		payment.GatewayID,
		payment.GatewayRate,
		payment.CryptoAmount,
		payment.CryptoCurrency,
		payment.Fee,
		payment.DepositAddress,
		payment.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}

	return nil
}

// GetByID retrieves a payment by ID.
func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	var payment entities.Payment
	err := r.db.GetContext(ctx, &payment, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainerrors.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	return &payment, nil
}

// FindOpenByTrackingCode returns the newest unsettled payment carrying the
// tracking code. Settled payments never match again, so a reused code can only
// credit the payment currently waiting on it.
func (r *PaymentRepository) FindOpenByTrackingCode(ctx context.Context, code int) (*entities.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE tracking_code = $1 AND verified_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	`

	var payment entities.Payment
	err := r.db.GetContext(ctx, &payment, query, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainerrors.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to find payment by tracking code: %w", err)
	}

	return &payment, nil
}

// FindOpenByAddress returns the newest unsettled payment quoted against the
// deposit address.
func (r *PaymentRepository) FindOpenByAddress(ctx context.Context, address string) (*entities.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE deposit_address = $1 AND verified_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	`

	var payment entities.Payment
	err := r.db.GetContext(ctx, &payment, query, address)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainerrors.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to find payment by address: %w", err)
	}

	return &payment, nil
}

// UnsettledCodes returns the tracking codes of all unsettled payments, oldest
// first. The allocator reuses the head of this list once the pool saturates.
func (r *PaymentRepository) UnsettledCodes(ctx context.Context) ([]int, error) {
	query := `
		SELECT tracking_code
		FROM payments
		WHERE verified_at IS NULL
		ORDER BY created_at ASC
	`

	var codes []int
	if err := r.db.SelectContext(ctx, &codes, query); err != nil {
		return nil, fmt.Errorf("failed to list unsettled tracking codes: %w", err)
	}

	return codes, nil
}

// MarkVerified records the observed transfer against the payment and closes it
// to further matching.
func (r *PaymentRepository) MarkVerified(ctx context.Context, id uuid.UUID, amount decimal.Decimal, hash string, verifiedAt time.Time) error {
	query := `
		UPDATE payments
		SET verified_amount = $2,
			hash = $3,
			verified_at = $4
		WHERE id = $1 AND verified_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, id, amount, hash, verifiedAt)
	if err != nil {
		return fmt.Errorf("failed to mark payment verified: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check verify result: %w", err)
	}
	if rows == 0 {
		return domainerrors.ErrPaymentNotFound
	}

	return nil
}

// MarkConfirmed records the settlement figures computed at verification time.
func (r *PaymentRepository) MarkConfirmed(ctx context.Context, id uuid.UUID, fiat, fee, rate decimal.Decimal, confirmedAt time.Time) error {
	query := `
		UPDATE payments
		SET confirmed_fiat = $2,
			confirmed_fee = $3,
			confirmed_rate = $4,
			confirmed_at = $5
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, fiat, fee, rate, confirmedAt)
	if err != nil {
		return fmt.Errorf("failed to mark payment confirmed: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check confirm result: %w", err)
	}
	if rows == 0 {
		return domainerrors.ErrPaymentNotFound
	}

	return nil
}
