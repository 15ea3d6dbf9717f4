// Package sweep drains deposit addresses into the collection address.
package sweep

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/trxgate/trxgate/internal/domain/entities"
	"github.com/trxgate/trxgate/pkg/metrics"
	"github.com/trxgate/trxgate/pkg/retry"
)

// sweepRetryDelay is how long a failed sweep waits before its background
// retry. Sweeps fail mostly on node hiccups, which clear within a minute.
const sweepRetryDelay = 60 * time.Second

// Chain is the slice of the node client sweeping needs.
type Chain interface {
	AccountBalance(ctx context.Context, address string) (decimal.Decimal, error)
	Transfer(ctx context.Context, from, to, privateKey string, amount decimal.Decimal) (string, error)
}

// Service moves deposit address balances to the collection address.
type Service struct {
	chain             Chain
	collectionAddress string
	logger            *zap.Logger
}

// NewService creates a sweep service.
func NewService(chain Chain, collectionAddress string, logger *zap.Logger) *Service {
	return &Service{
		chain:             chain,
		collectionAddress: collectionAddress,
		logger:            logger,
	}
}

// Sweep transfers the address's full balance to the collection address. An
// empty address is a no-op, not an error.
func (s *Service) Sweep(ctx context.Context, address *entities.DepositAddress) error {
	balance, err := s.chain.AccountBalance(ctx, address.AddressBase58)
	if err != nil {
		return err
	}
	if balance.LessThanOrEqual(decimal.Zero) {
		return nil
	}

	txID, err := s.chain.Transfer(ctx, address.AddressBase58, s.collectionAddress, address.PrivateKey, balance)
	if err != nil {
		return err
	}

	metrics.SweepsCompleted.Inc()
	s.logger.Info("swept deposit address",
		zap.String("address", address.AddressBase58),
		zap.String("amount", balance.String()),
		zap.String("tx_id", txID))

	return nil
}

// SweepLater sweeps in the background, retrying on a fixed delay until the
// context dies. Used right after a payment verifies, when the deposit may
// not have enough confirmations to spend yet.
func (s *Service) SweepLater(ctx context.Context, address *entities.DepositAddress) {
	retrier := retry.New(retry.Policy{Delay: sweepRetryDelay}, s.logger)

	go func() {
		err := retrier.Do(ctx, func() error {
			return s.Sweep(ctx, address)
		})
		if err != nil && ctx.Err() == nil {
			s.logger.Error("background sweep gave up",
				zap.Error(err),
				zap.String("address", address.AddressBase58))
		}
	}()
}
