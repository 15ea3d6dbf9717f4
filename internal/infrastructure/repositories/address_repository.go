package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/trxgate/trxgate/internal/domain/entities"
	domainerrors "github.com/trxgate/trxgate/internal/domain/errors"
)

// AddressRepository persists the deposit addresses under our control.
type AddressRepository struct {
	db *sqlx.DB
}

// NewAddressRepository creates a new address repository.
func NewAddressRepository(db *sqlx.DB) *AddressRepository {
	return &AddressRepository{db: db}
}

// Create stores a freshly generated address with its key material.
func (r *AddressRepository) Create(ctx context.Context, address *entities.DepositAddress) error {
	query := `
		INSERT INTO deposit_addresses (
			id, address_hex, address_base58, private_key, public_key, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		address.ID,
		address.AddressHex,
		address.AddressBase58,
		address.PrivateKey,
		address.PublicKey,
		address.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create address: %w", err)
	}

	return nil
}

// GetByHex retrieves an address record by its hex form.
func (r *AddressRepository) GetByHex(ctx context.Context, hex string) (*entities.DepositAddress, error) {
	query := `
		SELECT id, address_hex, address_base58, private_key, public_key, created_at
		FROM deposit_addresses
		WHERE address_hex = $1
	`

	var address entities.DepositAddress
	err := r.db.GetContext(ctx, &address, query, hex)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainerrors.ErrAddressNotFound
		}
		return nil, fmt.Errorf("failed to get address: %w", err)
	}

	return &address, nil
}

// GetByBase58 retrieves an address record by its base58 form.
func (r *AddressRepository) GetByBase58(ctx context.Context, base58 string) (*entities.DepositAddress, error) {
	query := `
		SELECT id, address_hex, address_base58, private_key, public_key, created_at
		FROM deposit_addresses
		WHERE address_base58 = $1
	`

	var address entities.DepositAddress
	err := r.db.GetContext(ctx, &address, query, base58)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainerrors.ErrAddressNotFound
		}
		return nil, fmt.Errorf("failed to get address: %w", err)
	}

	return &address, nil
}

// Oldest returns the first address ever generated, used as the static fallback
// when dynamic address generation is disabled.
func (r *AddressRepository) Oldest(ctx context.Context) (*entities.DepositAddress, error) {
	query := `
		SELECT id, address_hex, address_base58, private_key, public_key, created_at
		FROM deposit_addresses
		ORDER BY created_at ASC
		LIMIT 1
	`

	var address entities.DepositAddress
	err := r.db.GetContext(ctx, &address, query)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainerrors.ErrAddressNotFound
		}
		return nil, fmt.Errorf("failed to get oldest address: %w", err)
	}

	return &address, nil
}

// ListByPaymentAge returns addresses whose newest unsettled payment was created
// inside the [olderThan, newerThan] age window, each joined with that payment's
// id. The tiered scanner polls young addresses often and old ones rarely.
func (r *AddressRepository) ListByPaymentAge(ctx context.Context, now time.Time, olderThan, newerThan time.Duration) ([]entities.DepositAddress, error) {
	query := `
		SELECT DISTINCT ON (a.id)
			a.id, a.address_hex, a.address_base58, a.private_key, a.public_key,
			a.created_at, p.id AS payment_id
		FROM deposit_addresses a
		JOIN payments p ON p.deposit_address = a.address_base58
		WHERE p.verified_at IS NULL
		  AND p.created_at <= $1
		  AND p.created_at >= $2
		ORDER BY a.id, p.created_at DESC
	`

	var addresses []entities.DepositAddress
	err := r.db.SelectContext(ctx, &addresses, query,
		now.Add(-olderThan),
		now.Add(-newerThan),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list addresses by payment age: %w", err)
	}

	return addresses, nil
}

// ListVerifiedSince returns addresses holding a payment verified after the
// cutoff. A zero cutoff returns every address with a verified payment.
func (r *AddressRepository) ListVerifiedSince(ctx context.Context, cutoff time.Time) ([]entities.DepositAddress, error) {
	query := `
		SELECT DISTINCT ON (a.id)
			a.id, a.address_hex, a.address_base58, a.private_key, a.public_key,
			a.created_at, p.id AS payment_id
		FROM deposit_addresses a
		JOIN payments p ON p.deposit_address = a.address_base58
		WHERE p.verified_at IS NOT NULL
		  AND p.verified_at >= $1
		ORDER BY a.id, p.verified_at DESC
	`

	var addresses []entities.DepositAddress
	err := r.db.SelectContext(ctx, &addresses, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list verified addresses: %w", err)
	}

	return addresses, nil
}
