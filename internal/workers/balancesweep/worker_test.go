package balancesweep

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trxgate/trxgate/internal/domain/entities"
)

type fakeAddressStore struct {
	addresses []entities.DepositAddress
	cutoffs   []time.Time
}

func (f *fakeAddressStore) ListVerifiedSince(ctx context.Context, cutoff time.Time) ([]entities.DepositAddress, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.addresses, nil
}

type fakeSweeper struct {
	swept []string
	errOn string
}

func (f *fakeSweeper) Sweep(ctx context.Context, address *entities.DepositAddress) error {
	if address.AddressBase58 == f.errOn {
		return errors.New("node down")
	}
	f.swept = append(f.swept, address.AddressBase58)
	return nil
}

type okStore struct{}

func (okStore) Ensure(ctx context.Context) error { return nil }

func addressList(names ...string) []entities.DepositAddress {
	out := make([]entities.DepositAddress, 0, len(names))
	for _, name := range names {
		out = append(out, entities.DepositAddress{ID: uuid.New(), AddressBase58: name})
	}
	return out
}

func TestRun(t *testing.T) {
	logger := zap.NewNop()

	t.Run("all mode uses the zero cutoff", func(t *testing.T) {
		store := &fakeAddressStore{addresses: addressList("Taaaa")}
		sweeper := &fakeSweeper{}
		worker := NewWorker(store, sweeper, okStore{}, logger)

		require.NoError(t, worker.Run(context.Background(), ModeAll))

		require.Len(t, store.cutoffs, 1)
		assert.True(t, store.cutoffs[0].IsZero())
		assert.Equal(t, []string{"Taaaa"}, sweeper.swept)
	})

	t.Run("last3days mode cuts off three days back", func(t *testing.T) {
		store := &fakeAddressStore{}
		worker := NewWorker(store, &fakeSweeper{}, okStore{}, logger)

		before := time.Now().UTC().Add(-3 * 24 * time.Hour)
		require.NoError(t, worker.Run(context.Background(), ModeLast3Days))
		after := time.Now().UTC().Add(-3 * 24 * time.Hour)

		require.Len(t, store.cutoffs, 1)
		cutoff := store.cutoffs[0]
		assert.False(t, cutoff.Before(before))
		assert.False(t, cutoff.After(after))
	})

	t.Run("unknown mode is rejected", func(t *testing.T) {
		store := &fakeAddressStore{}
		worker := NewWorker(store, &fakeSweeper{}, okStore{}, logger)

		err := worker.Run(context.Background(), "yesterday")

		assert.Error(t, err)
		assert.Empty(t, store.cutoffs)
	})

	t.Run("one failed sweep does not stop the batch", func(t *testing.T) {
		store := &fakeAddressStore{addresses: addressList("Taaaa", "Tbbbb")}
		sweeper := &fakeSweeper{errOn: "Taaaa"}
		worker := NewWorker(store, sweeper, okStore{}, logger)

		require.NoError(t, worker.Run(context.Background(), ModeAll))

		assert.Equal(t, []string{"Tbbbb"}, sweeper.swept)
	})
}
