// Package reconciliation matches observed transfers back to open payments.
// Matching is deliberately conservative: a transfer that fits no open payment
// is logged and dropped, never guessed at.
package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/trxgate/trxgate/internal/domain/entities"
	domainerrors "github.com/trxgate/trxgate/internal/domain/errors"
	"github.com/trxgate/trxgate/internal/domain/services/tracking"
	"github.com/trxgate/trxgate/pkg/metrics"
)

// PaymentLookup finds open payments. Both lookups exclude settled payments,
// which is what makes tracking code reuse safe: a code can only ever credit
// the one payment still waiting on it.
type PaymentLookup interface {
	FindOpenByTrackingCode(ctx context.Context, code int) (*entities.Payment, error)
	FindOpenByAddress(ctx context.Context, address string) (*entities.Payment, error)
}

// AddressLookup resolves chain addresses to our records.
type AddressLookup interface {
	GetByHex(ctx context.Context, hex string) (*entities.DepositAddress, error)
	GetByBase58(ctx context.Context, base58 string) (*entities.DepositAddress, error)
}

// Ledger applies the verify and confirm transitions.
type Ledger interface {
	Verify(ctx context.Context, payment *entities.Payment, observedAmount decimal.Decimal, hash string, observedAt time.Time) (*entities.Payment, error)
}

// Settler credits confirmed payments.
type Settler interface {
	Settle(ctx context.Context, payment *entities.Payment) error
}

// Sweeper drains a credited deposit address in the background.
type Sweeper interface {
	SweepLater(ctx context.Context, address *entities.DepositAddress)
}

// Service reconciles observed transfers with the payment log.
type Service struct {
	payments  PaymentLookup
	addresses AddressLookup
	ledger    Ledger
	settler   Settler
	sweeper   Sweeper
	logger    *zap.Logger
}

// NewService creates a reconciliation service.
func NewService(payments PaymentLookup, addresses AddressLookup, ledger Ledger, settler Settler, sweeper Sweeper, logger *zap.Logger) *Service {
	return &Service{
		payments:  payments,
		addresses: addresses,
		ledger:    ledger,
		settler:   settler,
		sweeper:   sweeper,
		logger:    logger,
	}
}

// HandleChainTransfer processes one plain transfer seen in a scanned block.
// Transfers to addresses we do not control are ignored without logging; the
// chain is almost entirely other people's traffic.
func (s *Service) HandleChainTransfer(ctx context.Context, toHex string, amount decimal.Decimal, hash string, observedAt time.Time) error {
	address, err := s.addresses.GetByHex(ctx, toHex)
	if err != nil {
		if errors.Is(err, domainerrors.ErrAddressNotFound) {
			return nil
		}
		return err
	}

	payment, err := s.matchPayment(ctx, address, amount)
	if err != nil {
		if errors.Is(err, domainerrors.ErrPaymentNotFound) {
			s.logger.Warn("transfer to our address matches no open payment",
				zap.String("address", address.AddressBase58),
				zap.String("amount", amount.String()),
				zap.String("hash", hash))
			return nil
		}
		return err
	}

	if err := s.credit(ctx, payment, amount, hash, observedAt, "block"); err != nil {
		return err
	}

	s.sweeper.SweepLater(ctx, address)
	return nil
}

// HandleAddressDeposit processes a deposit found by polling an address's
// transaction history.
func (s *Service) HandleAddressDeposit(ctx context.Context, address *entities.DepositAddress, amount decimal.Decimal, hash string, observedAt time.Time) error {
	payment, err := s.payments.FindOpenByAddress(ctx, address.AddressBase58)
	if err != nil {
		if errors.Is(err, domainerrors.ErrPaymentNotFound) {
			return nil
		}
		return err
	}

	if err := s.credit(ctx, payment, amount, hash, observedAt, "address"); err != nil {
		return err
	}

	s.sweeper.SweepLater(ctx, address)
	return nil
}

// HandleExchangeDeposit processes a deposit that landed directly on the
// exchange account. There is no address to sweep; the funds are already
// custodied there.
func (s *Service) HandleExchangeDeposit(ctx context.Context, amount decimal.Decimal, hash string, observedAt time.Time) error {
	code, err := tracking.DecodeAmount(amount, entities.DefaultCurrency)
	if err != nil {
		s.logger.Warn("exchange deposit carries no tracking code",
			zap.Error(err),
			zap.String("amount", amount.String()))
		return nil
	}

	payment, err := s.payments.FindOpenByTrackingCode(ctx, code)
	if err != nil {
		if errors.Is(err, domainerrors.ErrPaymentNotFound) {
			s.logger.Warn("exchange deposit matches no open payment",
				zap.Int("tracking_code", code),
				zap.String("amount", amount.String()),
				zap.String("hash", hash))
			return nil
		}
		return err
	}

	return s.credit(ctx, payment, amount, hash, observedAt, "exchange")
}

// matchPayment tries the tracking code embedded in the amount first, then
// falls back to the newest open payment on the address. The fallback covers
// depositors who rounded the amount and lost the code.
func (s *Service) matchPayment(ctx context.Context, address *entities.DepositAddress, amount decimal.Decimal) (*entities.Payment, error) {
	if code, err := tracking.DecodeAmount(amount, entities.DefaultCurrency); err == nil {
		payment, err := s.payments.FindOpenByTrackingCode(ctx, code)
		if err == nil {
			if payment.DepositAddress == address.AddressBase58 {
				return payment, nil
			}
			s.logger.Warn("tracking code matches payment on a different address",
				zap.Int("tracking_code", code),
				zap.String("expected", payment.DepositAddress),
				zap.String("actual", address.AddressBase58))
		} else if !errors.Is(err, domainerrors.ErrPaymentNotFound) {
			return nil, err
		}
	}

	return s.payments.FindOpenByAddress(ctx, address.AddressBase58)
}

func (s *Service) credit(ctx context.Context, payment *entities.Payment, amount decimal.Decimal, hash string, observedAt time.Time, source string) error {
	confirmed, err := s.ledger.Verify(ctx, payment, amount, hash, observedAt)
	if err != nil {
		return fmt.Errorf("failed to verify payment %s: %w", payment.ID, err)
	}

	metrics.PaymentsVerified.WithLabelValues(source).Inc()

	if err := s.settler.Settle(ctx, confirmed); err != nil {
		return fmt.Errorf("failed to settle payment %s: %w", payment.ID, err)
	}
	return nil
}
