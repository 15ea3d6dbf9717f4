// Package blockscan walks the chain block by block looking for transfers to
// our deposit addresses. Progress is checkpointed after every block, so a
// crash or restart never skips a block.
package blockscan

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/trxgate/trxgate/internal/adapters/tron"
	domainerrors "github.com/trxgate/trxgate/internal/domain/errors"
	"github.com/trxgate/trxgate/pkg/metrics"
	"github.com/trxgate/trxgate/pkg/retry"
)

const (
	// cycleInterval is the chain's block time. Each cycle aims to start when
	// the next block lands.
	cycleInterval = 3 * time.Second
	// cycleHeadroom is shaved off the sleep so the scanner asks for the next
	// block slightly early rather than slightly late.
	cycleHeadroom = 200 * time.Millisecond
	// missedBlockRetryDelay is the pause before refetching a missed block the
	// node failed to serve.
	missedBlockRetryDelay = 500 * time.Millisecond
	// missedBlockSpacing is the minimum gap between catch-up fetches, keeping
	// the node happy during long catch-up runs.
	missedBlockSpacing = 200 * time.Millisecond
)

// Chain is the slice of the node client the scanner reads.
type Chain interface {
	NowBlock(ctx context.Context) (*tron.Block, error)
	BlockByNum(ctx context.Context, height int64) (*tron.Block, error)
}

// Checkpoints persists scan progress.
type Checkpoints interface {
	LastCheckedBlock(ctx context.Context) (int64, bool, error)
	SetLastCheckedBlock(ctx context.Context, height int64) error
}

// Store reports liveness of the backing store.
type Store interface {
	Ensure(ctx context.Context) error
}

// Reconciler consumes transfers found in blocks.
type Reconciler interface {
	HandleChainTransfer(ctx context.Context, toHex string, amount decimal.Decimal, hash string, observedAt time.Time) error
}

// Worker is the block scanner loop.
type Worker struct {
	chain       Chain
	checkpoints Checkpoints
	store       Store
	reconciler  Reconciler
	verbose     bool
	logger      *zap.Logger
}

// NewWorker creates a block scanner.
func NewWorker(chain Chain, checkpoints Checkpoints, store Store, reconciler Reconciler, verbose bool, logger *zap.Logger) *Worker {
	return &Worker{
		chain:       chain,
		checkpoints: checkpoints,
		store:       store,
		reconciler:  reconciler,
		verbose:     verbose,
		logger:      logger,
	}
}

// Run scans until the context is cancelled. The only error it returns on its
// own is a dead store: everything else is logged and retried next cycle.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("block scanner starting")

	lastChecked, err := w.coldStart(ctx)
	if err != nil {
		return err
	}

	for {
		cycleStart := time.Now()

		if err := w.store.Ensure(ctx); err != nil {
			return err
		}

		next, err := w.cycle(ctx, lastChecked)
		if err != nil {
			if errors.Is(err, domainerrors.ErrStoreUnavailable) || ctx.Err() != nil {
				return err
			}
			metrics.WatcherErrors.WithLabelValues("block").Inc()
			w.logger.Error("scan cycle failed", zap.Error(err))
		} else {
			lastChecked = next
		}

		sleep := cycleInterval - time.Since(cycleStart) - cycleHeadroom
		if sleep > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(sleep):
			}
		} else if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// coldStart resumes from the checkpoint, or anchors at the current tip when
// there has never been one. Anchoring at the tip means a fresh deployment
// does not churn through the whole chain history.
func (w *Worker) coldStart(ctx context.Context) (int64, error) {
	height, found, err := w.checkpoints.LastCheckedBlock(ctx)
	if err != nil {
		return 0, err
	}
	if found {
		w.logger.Info("resuming from checkpoint", zap.Int64("height", height))
		return height, nil
	}

	tip, err := w.chain.NowBlock(ctx)
	if err != nil {
		return 0, err
	}

	w.logger.Info("no checkpoint, anchoring at chain tip", zap.Int64("height", tip.Height()))
	if err := w.checkpoints.SetLastCheckedBlock(ctx, tip.Height()); err != nil {
		return 0, err
	}
	return tip.Height(), nil
}

// cycle looks at the tip, catches up on any blocks missed since the last
// cycle and handles the newest one. Returns the new last-checked height.
func (w *Worker) cycle(ctx context.Context, lastChecked int64) (int64, error) {
	tip, err := w.chain.NowBlock(ctx)
	if err != nil {
		return lastChecked, err
	}
	latest := tip.Height()

	switch {
	case latest <= lastChecked:
		// Same block as last cycle, nothing new yet.
		if w.verbose {
			w.logger.Debug("block already checked", zap.Int64("height", latest))
		}
		return lastChecked, nil

	case latest == lastChecked+1:
		if err := w.handleBlock(ctx, tip, "new"); err != nil {
			return lastChecked, err
		}
		return latest, nil

	default:
		w.logger.Warn("missed blocks, catching up",
			zap.Int64("from", lastChecked+1),
			zap.Int64("to", latest))

		if err := w.catchUp(ctx, lastChecked+1, latest-1); err != nil {
			return lastChecked, err
		}
		if err := w.handleBlock(ctx, tip, "new"); err != nil {
			return latest - 1, err
		}
		return latest, nil
	}
}

// catchUp fetches and handles every block in [from, to]. A fetch that fails
// is retried at the same height until it succeeds: gaps are not acceptable.
func (w *Worker) catchUp(ctx context.Context, from, to int64) error {
	retrier := retry.New(retry.Policy{Delay: missedBlockRetryDelay}, w.logger)

	for height := from; height <= to; height++ {
		fetchStart := time.Now()

		var block *tron.Block
		err := retrier.Do(ctx, func() error {
			var fetchErr error
			block, fetchErr = w.chain.BlockByNum(ctx, height)
			return fetchErr
		})
		if err != nil {
			return err
		}

		if err := w.handleBlock(ctx, block, "missed"); err != nil {
			return err
		}

		if spacing := missedBlockSpacing - time.Since(fetchStart); spacing > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(spacing):
			}
		}
	}
	return nil
}

// handleBlock walks the block's transfers and advances the checkpoint. Per
// transfer failures are recovered so one bad transaction cannot wedge the
// scan, except a dead store, which stops everything.
func (w *Worker) handleBlock(ctx context.Context, block *tron.Block, kind string) error {
	if w.verbose {
		w.logger.Info("scanning block",
			zap.Int64("height", block.Height()),
			zap.Int("transactions", len(block.Transactions)),
			zap.String("kind", kind))
	}

	for i := range block.Transactions {
		tx := &block.Transactions[i]
		if !tx.Succeeded() {
			continue
		}
		transfer, ok := tx.Transfer()
		if !ok {
			continue
		}

		amount := tron.FromSun(transfer.Amount)
		if err := w.reconciler.HandleChainTransfer(ctx, transfer.ToAddress, amount, tx.TxID, tx.Time()); err != nil {
			if errors.Is(err, domainerrors.ErrStoreUnavailable) {
				return err
			}
			metrics.WatcherErrors.WithLabelValues("block").Inc()
			w.logger.Error("failed to handle transfer",
				zap.Error(err),
				zap.String("hash", tx.TxID),
				zap.Int64("height", block.Height()))
		}
	}

	metrics.BlocksScanned.WithLabelValues(kind).Inc()
	return w.checkpoints.SetLastCheckedBlock(ctx, block.Height())
}
