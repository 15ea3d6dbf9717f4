package blockscan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trxgate/trxgate/internal/adapters/tron"
	domainerrors "github.com/trxgate/trxgate/internal/domain/errors"
)

func testBlock(height int64, transfers ...int64) *tron.Block {
	block := &tron.Block{
		BlockID: fmt.Sprintf("block-%d", height),
	}
	block.BlockHeader.RawData.Number = height

	for i, amount := range transfers {
		value, _ := json.Marshal(tron.TransferValue{
			Amount:       amount,
			OwnerAddress: "41aaaa",
			ToAddress:    "41bbbb",
		})
		tx := tron.Transaction{TxID: fmt.Sprintf("tx-%d-%d", height, i)}
		tx.RawData.Contract = []tron.Contract{{
			Type:      tron.TransferContractType,
			Parameter: tron.ContractParameter{Value: value},
		}}
		tx.RawData.Timestamp = height * 1000
		block.Transactions = append(block.Transactions, tx)
	}
	return block
}

type fakeChain struct {
	tip      *tron.Block
	blocks   map[int64]*tron.Block
	failOnce map[int64]bool
	fetched  []int64
}

func (f *fakeChain) NowBlock(ctx context.Context) (*tron.Block, error) {
	return f.tip, nil
}

func (f *fakeChain) BlockByNum(ctx context.Context, height int64) (*tron.Block, error) {
	f.fetched = append(f.fetched, height)
	if f.failOnce[height] {
		f.failOnce[height] = false
		return nil, errors.New("node hiccup")
	}
	block, ok := f.blocks[height]
	if !ok {
		return nil, tron.ErrBlockNotFound
	}
	return block, nil
}

type fakeCheckpoints struct {
	height  int64
	found   bool
	history []int64
}

func (f *fakeCheckpoints) LastCheckedBlock(ctx context.Context) (int64, bool, error) {
	return f.height, f.found, nil
}

func (f *fakeCheckpoints) SetLastCheckedBlock(ctx context.Context, height int64) error {
	f.height = height
	f.found = true
	f.history = append(f.history, height)
	return nil
}

type okStore struct{}

func (okStore) Ensure(ctx context.Context) error { return nil }

type recordingReconciler struct {
	hashes      []string
	observedAts []time.Time
	errOn       string
	err         error
}

func (r *recordingReconciler) HandleChainTransfer(ctx context.Context, toHex string, amount decimal.Decimal, hash string, observedAt time.Time) error {
	if hash == r.errOn {
		return r.err
	}
	r.hashes = append(r.hashes, hash)
	r.observedAts = append(r.observedAts, observedAt)
	return nil
}

func newTestWorker(chain *fakeChain, checkpoints *fakeCheckpoints, reconciler *recordingReconciler) *Worker {
	return NewWorker(chain, checkpoints, okStore{}, reconciler, false, zap.NewNop())
}

func TestColdStart(t *testing.T) {
	t.Run("resumes from an existing checkpoint", func(t *testing.T) {
		chain := &fakeChain{tip: testBlock(200)}
		checkpoints := &fakeCheckpoints{height: 150, found: true}
		worker := newTestWorker(chain, checkpoints, &recordingReconciler{})

		height, err := worker.coldStart(context.Background())

		require.NoError(t, err)
		assert.Equal(t, int64(150), height)
	})

	t.Run("anchors at the tip without a checkpoint", func(t *testing.T) {
		chain := &fakeChain{tip: testBlock(200)}
		checkpoints := &fakeCheckpoints{}
		worker := newTestWorker(chain, checkpoints, &recordingReconciler{})

		height, err := worker.coldStart(context.Background())

		require.NoError(t, err)
		assert.Equal(t, int64(200), height)
		assert.Equal(t, []int64{200}, checkpoints.history)
	})
}

func TestCycle(t *testing.T) {
	t.Run("same tip leaves the checkpoint alone", func(t *testing.T) {
		chain := &fakeChain{tip: testBlock(100)}
		checkpoints := &fakeCheckpoints{height: 100, found: true}
		reconciler := &recordingReconciler{}
		worker := newTestWorker(chain, checkpoints, reconciler)

		next, err := worker.cycle(context.Background(), 100)

		require.NoError(t, err)
		assert.Equal(t, int64(100), next)
		assert.Empty(t, checkpoints.history)
		assert.Empty(t, reconciler.hashes)
	})

	t.Run("next block is handled and checkpointed", func(t *testing.T) {
		chain := &fakeChain{tip: testBlock(101, 2850321)}
		checkpoints := &fakeCheckpoints{height: 100, found: true}
		reconciler := &recordingReconciler{}
		worker := newTestWorker(chain, checkpoints, reconciler)

		next, err := worker.cycle(context.Background(), 100)

		require.NoError(t, err)
		assert.Equal(t, int64(101), next)
		assert.Equal(t, []int64{101}, checkpoints.history)
		assert.Equal(t, []string{"tx-101-0"}, reconciler.hashes)
		assert.Equal(t, []time.Time{time.UnixMilli(101000).UTC()}, reconciler.observedAts)
	})

	t.Run("missed blocks are caught up in order with no gaps", func(t *testing.T) {
		chain := &fakeChain{
			tip: testBlock(104, 4000000),
			blocks: map[int64]*tron.Block{
				101: testBlock(101, 1000000),
				102: testBlock(102),
				103: testBlock(103, 3000000),
			},
		}
		checkpoints := &fakeCheckpoints{height: 100, found: true}
		reconciler := &recordingReconciler{}
		worker := newTestWorker(chain, checkpoints, reconciler)

		next, err := worker.cycle(context.Background(), 100)

		require.NoError(t, err)
		assert.Equal(t, int64(104), next)
		assert.Equal(t, []int64{101, 102, 103, 104}, checkpoints.history)
		assert.Equal(t, []string{"tx-101-0", "tx-103-0", "tx-104-0"}, reconciler.hashes)
	})

	t.Run("failed catch-up fetch retries the same height", func(t *testing.T) {
		chain := &fakeChain{
			tip: testBlock(102),
			blocks: map[int64]*tron.Block{
				101: testBlock(101),
			},
			failOnce: map[int64]bool{101: true},
		}
		checkpoints := &fakeCheckpoints{height: 100, found: true}
		worker := newTestWorker(chain, checkpoints, &recordingReconciler{})

		next, err := worker.cycle(context.Background(), 100)

		require.NoError(t, err)
		assert.Equal(t, int64(102), next)
		assert.Equal(t, []int64{101, 101}, chain.fetched)
		assert.Equal(t, []int64{101, 102}, checkpoints.history)
	})
}

func TestHandleBlock(t *testing.T) {
	t.Run("one bad transfer does not block the rest", func(t *testing.T) {
		checkpoints := &fakeCheckpoints{}
		reconciler := &recordingReconciler{errOn: "tx-100-0", err: errors.New("boom")}
		worker := newTestWorker(&fakeChain{}, checkpoints, reconciler)

		err := worker.handleBlock(context.Background(), testBlock(100, 1000000, 2000000), "new")

		require.NoError(t, err)
		assert.Equal(t, []string{"tx-100-1"}, reconciler.hashes)
		assert.Equal(t, []int64{100}, checkpoints.history)
	})

	t.Run("a dead store stops the scan before the checkpoint moves", func(t *testing.T) {
		checkpoints := &fakeCheckpoints{}
		reconciler := &recordingReconciler{errOn: "tx-100-0", err: domainerrors.ErrStoreUnavailable}
		worker := newTestWorker(&fakeChain{}, checkpoints, reconciler)

		err := worker.handleBlock(context.Background(), testBlock(100, 1000000), "new")

		assert.ErrorIs(t, err, domainerrors.ErrStoreUnavailable)
		assert.Empty(t, checkpoints.history)
	})

	t.Run("non-transfer transactions are skipped", func(t *testing.T) {
		block := testBlock(100)
		tx := tron.Transaction{TxID: "tx-other"}
		tx.RawData.Contract = []tron.Contract{{Type: "TriggerSmartContract"}}
		block.Transactions = append(block.Transactions, tx)

		checkpoints := &fakeCheckpoints{}
		reconciler := &recordingReconciler{}
		worker := newTestWorker(&fakeChain{}, checkpoints, reconciler)

		err := worker.handleBlock(context.Background(), block, "new")

		require.NoError(t, err)
		assert.Empty(t, reconciler.hashes)
		assert.Equal(t, []int64{100}, checkpoints.history)
	})
}
