package quote

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trxgate/trxgate/internal/domain/entities"
	domainerrors "github.com/trxgate/trxgate/internal/domain/errors"
)

type stubRates struct {
	rate decimal.Decimal
	err  error
}

func (s *stubRates) Rate(ctx context.Context, gatewayID int, currency string) (decimal.Decimal, error) {
	return s.rate, s.err
}

type capturingPaymentStore struct {
	created *entities.Payment
}

func (s *capturingPaymentStore) Create(ctx context.Context, payment *entities.Payment) error {
	s.created = payment
	return nil
}

type stubUserStore struct {
	statuses map[uuid.UUID]string
}

func (s *stubUserStore) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	if s.statuses == nil {
		s.statuses = make(map[uuid.UUID]string)
	}
	s.statuses[id] = status
	return nil
}

type stubAddressProvider struct {
	address entities.DepositAddress
}

func (s *stubAddressProvider) NextAddress(ctx context.Context) (*entities.DepositAddress, error) {
	return &s.address, nil
}

type stubAllocator struct {
	code int
}

func (s *stubAllocator) Allocate(ctx context.Context) (int, error) {
	return s.code, nil
}

func TestCreatePayment(t *testing.T) {
	logger := zap.NewNop()
	userID := uuid.New()

	newService := func(rate int64, code int) (*Service, *capturingPaymentStore, *stubUserStore) {
		payments := &capturingPaymentStore{}
		users := &stubUserStore{}
		svc := NewService(
			&stubRates{rate: decimal.NewFromInt(rate)},
			payments,
			users,
			&stubAddressProvider{address: entities.DepositAddress{
				ID:            uuid.New(),
				AddressBase58: "TXYZexampleaddress",
				CreatedAt:     time.Now(),
			}},
			&stubAllocator{code: code},
			logger,
		)
		return svc, payments, users
	}

	t.Run("quotes the worked example", func(t *testing.T) {
		svc, payments, users := newService(100000, 321)

		q, err := svc.CreatePayment(context.Background(), userID, decimal.NewFromInt(300000), entities.GatewayDigiSwap, "")

		require.NoError(t, err)
		// 300000 IRT minus the 15000 fixed fee at 100000 IRT/TRX is 2.85 TRX,
		// with the code written into the last three digits.
		assert.Equal(t, "2.850321", q.PayableAmount.StringFixed(6))
		assert.Equal(t, 321, q.Payment.TrackingCode)
		assert.Equal(t, "TXYZexampleaddress", q.Payment.DepositAddress)
		assert.True(t, q.Payment.Fee.Equal(decimal.NewFromInt(15000)))
		assert.Equal(t, entities.CurrencyTRX, q.Payment.CryptoCurrency)

		require.NotNil(t, payments.created)
		assert.True(t, payments.created.CryptoAmount.Equal(q.PayableAmount))
		assert.Equal(t, entities.UserStatusPaymentPending, users.statuses[userID])
	})

	t.Run("rejects non-positive amounts", func(t *testing.T) {
		svc, _, _ := newService(100000, 321)

		_, err := svc.CreatePayment(context.Background(), userID, decimal.Zero, entities.GatewayDigiSwap, "")
		assert.ErrorIs(t, err, domainerrors.ErrInvalidAmount)
	})

	t.Run("rejects unknown gateways", func(t *testing.T) {
		svc, _, _ := newService(100000, 321)

		_, err := svc.CreatePayment(context.Background(), userID, decimal.NewFromInt(300000), 99, "")
		assert.ErrorIs(t, err, domainerrors.ErrGatewayNotFound)
	})

	t.Run("rejects currencies the gateway does not quote", func(t *testing.T) {
		svc, _, _ := newService(100000, 321)

		_, err := svc.CreatePayment(context.Background(), userID, decimal.NewFromInt(300000), entities.GatewayDigiSwap, entities.CurrencyUSDT)
		assert.ErrorIs(t, err, domainerrors.ErrUnsupportedCurrency)
	})

	t.Run("rejects amounts below the schedule minimum", func(t *testing.T) {
		svc, payments, _ := newService(100000, 321)

		_, err := svc.CreatePayment(context.Background(), userID, decimal.NewFromInt(100000), entities.GatewayDigiSwap, "")

		assert.ErrorIs(t, err, domainerrors.ErrBelowMinimum)
		assert.Nil(t, payments.created)
	})
}
