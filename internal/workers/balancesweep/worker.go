// Package balancesweep drains leftover balances from deposit addresses whose
// payments already settled. Normally the background sweep after verification
// handles this; the worker is the batch backstop for sweeps that never ran.
package balancesweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/trxgate/trxgate/internal/domain/entities"
	domainerrors "github.com/trxgate/trxgate/internal/domain/errors"
	"github.com/trxgate/trxgate/pkg/metrics"
)

// Sweep modes.
const (
	ModeAll       = "all"
	ModeLast3Days = "last3days"
)

// addressPause spaces out node calls between swept addresses.
const addressPause = 5 * time.Second

// AddressStore lists addresses with verified payments.
type AddressStore interface {
	ListVerifiedSince(ctx context.Context, cutoff time.Time) ([]entities.DepositAddress, error)
}

// Sweeper drains one address.
type Sweeper interface {
	Sweep(ctx context.Context, address *entities.DepositAddress) error
}

// Store reports liveness of the backing store.
type Store interface {
	Ensure(ctx context.Context) error
}

// Worker runs one batch sweep pass.
type Worker struct {
	addresses AddressStore
	sweeper   Sweeper
	store     Store
	logger    *zap.Logger
}

// NewWorker creates a batch sweep worker.
func NewWorker(addresses AddressStore, sweeper Sweeper, store Store, logger *zap.Logger) *Worker {
	return &Worker{addresses: addresses, sweeper: sweeper, store: store, logger: logger}
}

// Run sweeps every address selected by mode and returns.
func (w *Worker) Run(ctx context.Context, mode string) error {
	var cutoff time.Time
	switch mode {
	case ModeAll:
		// Zero cutoff matches every verified payment.
	case ModeLast3Days:
		cutoff = time.Now().UTC().Add(-3 * 24 * time.Hour)
	default:
		return fmt.Errorf("unknown sweep mode %q", mode)
	}

	if err := w.store.Ensure(ctx); err != nil {
		return err
	}

	addresses, err := w.addresses.ListVerifiedSince(ctx, cutoff)
	if err != nil {
		return err
	}

	w.logger.Info("batch sweep starting",
		zap.String("mode", mode),
		zap.Int("addresses", len(addresses)))

	for i := range addresses {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(addressPause):
			}
		}

		address := &addresses[i]
		if err := w.sweeper.Sweep(ctx, address); err != nil {
			if errors.Is(err, domainerrors.ErrStoreUnavailable) {
				return err
			}
			metrics.WatcherErrors.WithLabelValues("sweep").Inc()
			w.logger.Error("failed to sweep address",
				zap.Error(err),
				zap.String("address", address.AddressBase58))
		}
	}

	w.logger.Info("batch sweep finished")
	return nil
}
