// Package schedule runs the periodic watchers from a single process on a
// cron, for deployments that cannot dedicate a process per tier.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/trxgate/trxgate/internal/workers/addrscan"
	"github.com/trxgate/trxgate/internal/workers/balancesweep"
	"github.com/trxgate/trxgate/internal/workers/exchconvert"
)

// passTimeout bounds any single scheduled pass so a stuck node call cannot
// pile up overlapping runs.
const passTimeout = 10 * time.Minute

// ScannerFactory builds a single-pass address scanner for a tier.
type ScannerFactory func(tier addrscan.Tier) *addrscan.Worker

// Worker fans the periodic passes out over a cron.
type Worker struct {
	scanners ScannerFactory
	sweeper  *balancesweep.Worker
	convert  *exchconvert.Worker
	cron     *cron.Cron
	logger   *zap.Logger
}

// NewWorker creates a schedule worker.
func NewWorker(scanners ScannerFactory, sweeper *balancesweep.Worker, convert *exchconvert.Worker, logger *zap.Logger) *Worker {
	return &Worker{
		scanners: scanners,
		sweeper:  sweeper,
		convert:  convert,
		cron:     cron.New(),
		logger:   logger,
	}
}

// Start registers every periodic pass and starts the cron.
func (w *Worker) Start() error {
	for _, tier := range addrscan.Tiers {
		if tier.Once {
			continue
		}

		// Single-pass variant of the tier; the cron supplies the cadence.
		once := tier
		once.Once = true
		scanner := w.scanners(once)

		spec := fmt.Sprintf("@every %s", tier.Interval)
		if _, err := w.cron.AddFunc(spec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), passTimeout)
			defer cancel()

			if err := scanner.Run(ctx); err != nil {
				w.logger.Error("scheduled address scan failed",
					zap.Error(err),
					zap.String("tier", once.Name))
			}
		}); err != nil {
			return err
		}
	}

	// Daily housekeeping: convert exchange balances and sweep recent
	// addresses during the quiet hours.
	if _, err := w.cron.AddFunc("0 3 * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), passTimeout)
		defer cancel()

		if err := w.convert.Pass(ctx); err != nil {
			w.logger.Error("scheduled conversion failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	if _, err := w.cron.AddFunc("30 3 * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), passTimeout)
		defer cancel()

		if err := w.sweeper.Run(ctx, balancesweep.ModeLast3Days); err != nil {
			w.logger.Error("scheduled sweep failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	w.cron.Start()
	w.logger.Info("schedule worker started")
	return nil
}

// Stop halts the cron, letting in-flight passes finish.
func (w *Worker) Stop() {
	w.cron.Stop()
	w.logger.Info("schedule worker stopped")
}
