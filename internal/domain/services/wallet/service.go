// Package wallet manages the deposit addresses under our control.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trxgate/trxgate/internal/adapters/tron"
	"github.com/trxgate/trxgate/internal/domain/entities"
	domainerrors "github.com/trxgate/trxgate/internal/domain/errors"
)

// KeySource asks the chain node for fresh keypairs.
type KeySource interface {
	GenerateAddress(ctx context.Context) (*tron.GeneratedAddress, error)
}

// AddressStore persists address records.
type AddressStore interface {
	Create(ctx context.Context, address *entities.DepositAddress) error
	Oldest(ctx context.Context) (*entities.DepositAddress, error)
}

// Service provisions deposit addresses. With dynamic mode on, every payment
// gets its own address; otherwise all payments share the first address ever
// generated and are told apart by tracking code alone.
type Service struct {
	keys    KeySource
	store   AddressStore
	dynamic bool
	logger  *zap.Logger
}

// NewService creates a wallet service.
func NewService(keys KeySource, store AddressStore, dynamic bool, logger *zap.Logger) *Service {
	return &Service{keys: keys, store: store, dynamic: dynamic, logger: logger}
}

// NextAddress returns the deposit address for a new payment.
func (s *Service) NextAddress(ctx context.Context) (*entities.DepositAddress, error) {
	if s.dynamic {
		return s.generate(ctx)
	}

	address, err := s.store.Oldest(ctx)
	if err != nil {
		// First payment ever on a static setup still needs one address.
		if errors.Is(err, domainerrors.ErrAddressNotFound) {
			return s.generate(ctx)
		}
		return nil, err
	}
	return address, nil
}

func (s *Service) generate(ctx context.Context) (*entities.DepositAddress, error) {
	generated, err := s.keys.GenerateAddress(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to generate address: %w", err)
	}

	address := &entities.DepositAddress{
		ID:            uuid.New(),
		AddressHex:    generated.HexAddress,
		AddressBase58: generated.Address,
		PrivateKey:    generated.PrivateKey,
		PublicKey:     "",
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.store.Create(ctx, address); err != nil {
		return nil, err
	}

	s.logger.Info("generated deposit address", zap.String("address", address.AddressBase58))
	return address, nil
}
