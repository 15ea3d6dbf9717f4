// Package exchdeposit watches the exchange's private balance feed for
// deposits landing on the main account and reconciles them against open
// payments.
package exchdeposit

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/trxgate/trxgate/internal/adapters/kucoin"
	"github.com/trxgate/trxgate/internal/domain/entities"
	domainerrors "github.com/trxgate/trxgate/internal/domain/errors"
	"github.com/trxgate/trxgate/pkg/metrics"
)

// reconnectDelay is the pause before re-dialing a dropped feed.
const reconnectDelay = 5 * time.Second

// Feed streams balance events.
type Feed interface {
	Listen(ctx context.Context, handler func(kucoin.BalanceEvent)) error
}

// Deposits resolves a feed event to its deposit record, which carries the
// chain hash the event lacks.
type Deposits interface {
	FindDepositByAmount(ctx context.Context, currency string, amount decimal.Decimal) (*kucoin.Deposit, error)
}

// Store reports liveness of the backing store.
type Store interface {
	Ensure(ctx context.Context) error
}

// Reconciler consumes exchange deposits.
type Reconciler interface {
	HandleExchangeDeposit(ctx context.Context, amount decimal.Decimal, hash string, observedAt time.Time) error
}

// Worker is the exchange deposit watcher.
type Worker struct {
	feed       Feed
	deposits   Deposits
	store      Store
	reconciler Reconciler
	logger     *zap.Logger
}

// NewWorker creates an exchange deposit watcher.
func NewWorker(feed Feed, deposits Deposits, store Store, reconciler Reconciler, logger *zap.Logger) *Worker {
	return &Worker{
		feed:       feed,
		deposits:   deposits,
		store:      store,
		reconciler: reconciler,
		logger:     logger,
	}
}

// Run listens until the context is cancelled, re-dialing whenever the feed
// drops. A dead store stops the worker.
func (w *Worker) Run(ctx context.Context) error {
	for {
		var fatal error

		err := w.feed.Listen(ctx, func(event kucoin.BalanceEvent) {
			if err := w.handleEvent(ctx, event); err != nil {
				if errors.Is(err, domainerrors.ErrStoreUnavailable) {
					fatal = err
					return
				}
				metrics.WatcherErrors.WithLabelValues("exchange").Inc()
				w.logger.Error("failed to handle balance event", zap.Error(err))
			}
		})

		if fatal != nil {
			return fatal
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		w.logger.Warn("balance feed dropped, reconnecting", zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

func (w *Worker) handleEvent(ctx context.Context, event kucoin.BalanceEvent) error {
	if event.RelationEvent != kucoin.RelationDeposit {
		return nil
	}
	if event.Currency != entities.CurrencyTRX {
		w.logger.Info("ignoring deposit in a currency we do not quote",
			zap.String("currency", event.Currency))
		return nil
	}

	if err := w.store.Ensure(ctx); err != nil {
		return err
	}

	amount := event.AvailableChange
	w.logger.Info("exchange deposit observed",
		zap.String("currency", event.Currency),
		zap.String("amount", amount.String()))

	deposit, err := w.deposits.FindDepositByAmount(ctx, event.Currency, amount)
	if err != nil {
		return err
	}
	if deposit == nil {
		w.logger.Warn("deposit not yet in exchange history",
			zap.String("amount", amount.String()))
		return nil
	}

	return w.reconciler.HandleExchangeDeposit(ctx, amount, deposit.Hash(), event.Timestamp())
}
