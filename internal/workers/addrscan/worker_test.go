package addrscan

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trxgate/trxgate/internal/adapters/tron"
	"github.com/trxgate/trxgate/internal/domain/entities"
)

func transferTx(txID, toHex string, sun int64) tron.AccountTransaction {
	value, _ := json.Marshal(tron.TransferValue{Amount: sun, ToAddress: toHex})
	tx := tron.AccountTransaction{TxID: txID}
	tx.RawData.Contract = []tron.Contract{{
		Type:      tron.TransferContractType,
		Parameter: tron.ContractParameter{Value: value},
	}}
	tx.RawData.Timestamp = 1756500000000
	return tx
}

func TestTierByName(t *testing.T) {
	t.Run("resolves every published tier", func(t *testing.T) {
		for _, want := range Tiers {
			got, ok := TierByName(want.Name)
			require.True(t, ok, want.Name)
			assert.Equal(t, want.MaxAge, got.MaxAge)
		}
	})

	t.Run("bands cover ages contiguously", func(t *testing.T) {
		for i := 1; i < len(Tiers); i++ {
			assert.Equal(t, Tiers[i-1].MaxAge, Tiers[i].MinAge,
				"gap between %s and %s", Tiers[i-1].Name, Tiers[i].Name)
		}
	})

	t.Run("unknown tier is rejected", func(t *testing.T) {
		_, ok := TierByName("2s")
		assert.False(t, ok)
	})

	t.Run("manual tier runs once", func(t *testing.T) {
		tier, ok := TierByName("manual")
		require.True(t, ok)
		assert.True(t, tier.Once)
	})
}

func TestFindDeposit(t *testing.T) {
	t.Run("picks the first deposit-sized transfer to us", func(t *testing.T) {
		transactions := []tron.AccountTransaction{
			transferTx("activation", "41bbbb", 100000),    // 0.1 TRX, too small
			transferTx("elsewhere", "41cccc", 5000000),    // not our address
			transferTx("the-deposit", "41bbbb", 2850321000), // 2850.321 TRX
			transferTx("later", "41bbbb", 9000000),
		}

		amount, hash, depositedAt, ok := findDeposit(transactions, "41bbbb")

		require.True(t, ok)
		assert.Equal(t, "the-deposit", hash)
		assert.Equal(t, "2850.321000", amount.StringFixed(6))
		assert.Equal(t, time.UnixMilli(1756500000000).UTC(), depositedAt)
	})

	t.Run("no qualifying transfer", func(t *testing.T) {
		transactions := []tron.AccountTransaction{
			transferTx("tiny", "41bbbb", 500000),
		}

		_, _, _, ok := findDeposit(transactions, "41bbbb")
		assert.False(t, ok)
	})
}

type fakeChain struct {
	balances     map[string]decimal.Decimal
	transactions map[string][]tron.AccountTransaction
}

func (f *fakeChain) AccountBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	return f.balances[address], nil
}

func (f *fakeChain) AccountTransactions(ctx context.Context, address string, limit int) ([]tron.AccountTransaction, error) {
	return f.transactions[address], nil
}

type fakeAddressStore struct {
	addresses []entities.DepositAddress
}

func (f *fakeAddressStore) ListByPaymentAge(ctx context.Context, now time.Time, olderThan, newerThan time.Duration) ([]entities.DepositAddress, error) {
	return f.addresses, nil
}

type okStore struct{}

func (okStore) Ensure(ctx context.Context) error { return nil }

type recordingReconciler struct {
	deposits    []string
	observedAts []time.Time
}

func (r *recordingReconciler) HandleAddressDeposit(ctx context.Context, address *entities.DepositAddress, amount decimal.Decimal, hash string, observedAt time.Time) error {
	r.deposits = append(r.deposits, hash)
	r.observedAts = append(r.observedAts, observedAt)
	return nil
}

func TestPass(t *testing.T) {
	address := entities.DepositAddress{
		ID:            uuid.New(),
		AddressHex:    "41bbbb",
		AddressBase58: "Tbbbb",
	}

	t.Run("reports deposits on funded addresses", func(t *testing.T) {
		chain := &fakeChain{
			balances: map[string]decimal.Decimal{"Tbbbb": decimal.RequireFromString("2850.321")},
			transactions: map[string][]tron.AccountTransaction{
				"Tbbbb": {transferTx("the-deposit", "41bbbb", 2850321000)},
			},
		}
		reconciler := &recordingReconciler{}
		worker := NewWorker(chain, &fakeAddressStore{addresses: []entities.DepositAddress{address}}, okStore{}, reconciler, Tiers[0], zap.NewNop())

		require.NoError(t, worker.pass(context.Background()))
		assert.Equal(t, []string{"the-deposit"}, reconciler.deposits)
		assert.Equal(t, []time.Time{time.UnixMilli(1756500000000).UTC()}, reconciler.observedAts)
	})

	t.Run("skips dust balances without touching the history", func(t *testing.T) {
		chain := &fakeChain{
			balances: map[string]decimal.Decimal{"Tbbbb": decimal.RequireFromString("0.00005")},
		}
		reconciler := &recordingReconciler{}
		worker := NewWorker(chain, &fakeAddressStore{addresses: []entities.DepositAddress{address}}, okStore{}, reconciler, Tiers[0], zap.NewNop())

		require.NoError(t, worker.pass(context.Background()))
		assert.Empty(t, reconciler.deposits)
	})
}
