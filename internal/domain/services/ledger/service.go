// Package ledger drives the payment lifecycle: created, verified once a
// matching transfer is observed, confirmed once settlement figures are fixed.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/trxgate/trxgate/internal/domain/entities"
	"github.com/trxgate/trxgate/internal/domain/services/quote"
)

// PaymentStore is the slice of the payment repository the ledger writes to.
type PaymentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Payment, error)
	MarkVerified(ctx context.Context, id uuid.UUID, amount decimal.Decimal, hash string, verifiedAt time.Time) error
	MarkConfirmed(ctx context.Context, id uuid.UUID, fiat, fee, rate decimal.Decimal, confirmedAt time.Time) error
}

// Service applies lifecycle transitions to payments.
type Service struct {
	payments PaymentStore
	rates    quote.RateSource
	logger   *zap.Logger
}

// NewService creates a ledger service.
func NewService(payments PaymentStore, rates quote.RateSource, logger *zap.Logger) *Service {
	return &Service{payments: payments, rates: rates, logger: logger}
}

// Verify records the observed transfer against the payment and immediately
// confirms the settlement figures. Returns the confirmed payment.
//
// observedAt is the transfer's own timestamp, not the detection time: the
// address tiers can take hours to notice a deposit, and a payment paid inside
// the rate guarantee window must keep its quote no matter when we saw it.
func (s *Service) Verify(ctx context.Context, payment *entities.Payment, observedAmount decimal.Decimal, hash string, observedAt time.Time) (*entities.Payment, error) {
	if err := payment.Status().ValidateTransition(entities.PaymentStatusVerified); err != nil {
		return nil, err
	}

	verifiedAt := observedAt.UTC()
	if observedAt.IsZero() {
		verifiedAt = time.Now().UTC()
	}
	if err := s.payments.MarkVerified(ctx, payment.ID, observedAmount, hash, verifiedAt); err != nil {
		return nil, err
	}

	payment.VerifiedAmount = decimal.NewNullDecimal(observedAmount)
	payment.VerifiedAt = &verifiedAt
	payment.Hash = &hash

	s.logger.Info("payment verified",
		zap.String("payment_id", payment.ID.String()),
		zap.String("amount", observedAmount.String()),
		zap.String("hash", hash))

	return s.Confirm(ctx, payment)
}

// Confirm fixes the fiat settlement figures. Payments verified inside the
// rate guarantee window keep their quoted snapshot; later ones are re-rated
// at the current market price. A failed rate fetch falls back to the quoted
// snapshot rather than blocking settlement.
func (s *Service) Confirm(ctx context.Context, payment *entities.Payment) (*entities.Payment, error) {
	if err := payment.Status().ValidateTransition(entities.PaymentStatusConfirmed); err != nil {
		return nil, err
	}

	fiat := payment.FiatAmount
	fee := payment.Fee
	rate := payment.GatewayRate

	if payment.LateSettlement() {
		reFiat, reFee, reRate, err := s.reRate(ctx, payment)
		if err != nil {
			s.logger.Warn("re-rate failed, settling at quoted snapshot",
				zap.Error(err),
				zap.String("payment_id", payment.ID.String()))
		} else {
			fiat, fee, rate = reFiat, reFee, reRate
		}
	}

	confirmedAt := time.Now().UTC()
	if err := s.payments.MarkConfirmed(ctx, payment.ID, fiat, fee, rate, confirmedAt); err != nil {
		return nil, err
	}

	payment.ConfirmedFiat = decimal.NewNullDecimal(fiat)
	payment.ConfirmedFee = decimal.NewNullDecimal(fee)
	payment.ConfirmedRate = decimal.NewNullDecimal(rate)
	payment.ConfirmedAt = &confirmedAt

	s.logger.Info("payment confirmed",
		zap.String("payment_id", payment.ID.String()),
		zap.String("fiat", fiat.String()),
		zap.String("fee", fee.String()))

	return payment, nil
}

// reRate reprices a late settlement at the current gateway rate, using the
// amount actually received rather than the amount quoted.
func (s *Service) reRate(ctx context.Context, payment *entities.Payment) (fiat, fee, rate decimal.Decimal, err error) {
	rate, err = s.rates.Rate(ctx, payment.GatewayID, payment.CryptoCurrency)
	if err != nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, fmt.Errorf("failed to refetch rate: %w", err)
	}

	gateway, ok := entities.GatewayByID(payment.GatewayID)
	if !ok {
		return decimal.Zero, decimal.Zero, decimal.Zero, fmt.Errorf("gateway %d has no fee schedule", payment.GatewayID)
	}
	schedule, ok := gateway.ScheduleFor(payment.CryptoCurrency)
	if !ok {
		return decimal.Zero, decimal.Zero, decimal.Zero, fmt.Errorf("gateway %d does not quote %s", payment.GatewayID, payment.CryptoCurrency)
	}

	fiat = payment.VerifiedAmount.Decimal.Mul(rate).Round(-3)
	fee = quote.CalcFee(fiat, schedule, rate)
	fiat = fiat.Add(fee).Round(-3)

	return fiat, fee, rate, nil
}
