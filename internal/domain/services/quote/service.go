// Package quote turns a fiat amount into a payable crypto invoice: fee
// deduction, rate conversion, tracking code embedding and deposit address
// assignment.
package quote

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/trxgate/trxgate/internal/domain/entities"
	domainerrors "github.com/trxgate/trxgate/internal/domain/errors"
	"github.com/trxgate/trxgate/internal/domain/services/tracking"
)

// RateSource quotes the IRT price of one crypto unit at a gateway.
type RateSource interface {
	Rate(ctx context.Context, gatewayID int, currency string) (decimal.Decimal, error)
}

// PaymentStore persists new payments.
type PaymentStore interface {
	Create(ctx context.Context, payment *entities.Payment) error
}

// UserStore flips the user's link state while a payment is outstanding.
type UserStore interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
}

// AddressProvider hands out the deposit address for a new payment.
type AddressProvider interface {
	NextAddress(ctx context.Context) (*entities.DepositAddress, error)
}

// CodeAllocator hands out tracking codes unique among open payments.
type CodeAllocator interface {
	Allocate(ctx context.Context) (int, error)
}

// Service builds payment quotes.
type Service struct {
	rates     RateSource
	payments  PaymentStore
	users     UserStore
	addresses AddressProvider
	codes     CodeAllocator
	logger    *zap.Logger
}

// NewService creates a quote service.
func NewService(rates RateSource, payments PaymentStore, users UserStore, addresses AddressProvider, codes CodeAllocator, logger *zap.Logger) *Service {
	return &Service{
		rates:     rates,
		payments:  payments,
		users:     users,
		addresses: addresses,
		codes:     codes,
		logger:    logger,
	}
}

// Quote is the priced invoice handed back to the caller.
type Quote struct {
	Payment *entities.Payment
	// PayableAmount carries the embedded tracking code; the depositor must
	// transfer exactly this amount.
	PayableAmount decimal.Decimal
}

// CreatePayment quotes fiatAmount IRT at the gateway's current rate and opens
// a payment for the user.
func (s *Service) CreatePayment(ctx context.Context, userID uuid.UUID, fiatAmount decimal.Decimal, gatewayID int, currency string) (*Quote, error) {
	if fiatAmount.LessThanOrEqual(decimal.Zero) {
		return nil, domainerrors.ErrInvalidAmount
	}
	if currency == "" {
		currency = entities.DefaultCurrency
	}

	gateway, ok := entities.GatewayByID(gatewayID)
	if !ok {
		return nil, domainerrors.ErrGatewayNotFound
	}
	schedule, ok := gateway.ScheduleFor(currency)
	if !ok {
		return nil, domainerrors.ErrUnsupportedCurrency
	}

	rate, err := s.rates.Rate(ctx, gatewayID, currency)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rate: %w", err)
	}

	fee := CalcFee(fiatAmount, schedule, rate)
	net := fiatAmount.Sub(fee)

	crypto, err := ConvertToCrypto(net, rate, schedule, currency)
	if err != nil {
		return nil, err
	}

	code, err := s.codes.Allocate(ctx)
	if err != nil {
		return nil, err
	}

	payable, err := tracking.EncodeAmount(crypto, code, currency)
	if err != nil {
		return nil, err
	}

	address, err := s.addresses.NextAddress(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to assign deposit address: %w", err)
	}

	payment := &entities.Payment{
		ID:             uuid.New(),
		UserID:         userID,
		TrackingCode:   code,
		FiatAmount:     fiatAmount,
		GatewayID:      gatewayID,
		GatewayRate:    rate,
		CryptoAmount:   payable,
		CryptoCurrency: currency,
		Fee:            fee,
		DepositAddress: address.AddressBase58,
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, err
	}

	if err := s.users.UpdateStatus(ctx, userID, entities.UserStatusPaymentPending); err != nil {
		s.logger.Warn("failed to flag user payment pending",
			zap.Error(err),
			zap.String("user_id", userID.String()))
	}

	s.logger.Info("payment quoted",
		zap.String("payment_id", payment.ID.String()),
		zap.String("fiat", fiatAmount.String()),
		zap.String("payable", payable.String()),
		zap.Int("tracking_code", code),
		zap.Int("gateway", gatewayID))

	return &Quote{Payment: payment, PayableAmount: payable}, nil
}
