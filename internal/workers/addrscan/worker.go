// Package addrscan polls deposit addresses for incoming transfers the block
// scanner might have missed. Addresses are bucketed into tiers by the age of
// their open payment: young payments are polled every few seconds, stale
// ones once a day.
package addrscan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/trxgate/trxgate/internal/adapters/tron"
	"github.com/trxgate/trxgate/internal/domain/entities"
	domainerrors "github.com/trxgate/trxgate/internal/domain/errors"
	"github.com/trxgate/trxgate/pkg/metrics"
)

const (
	// addressPause is the gap between polled addresses within one pass.
	addressPause = 5 * time.Second
	// dustBalance is the balance below which an address is treated as empty.
	// Some wallets leave fractions of a TRX behind after activation.
	dustBalance = "0.0001"
	// minDepositTRX filters activation transfers and spam out of the
	// transaction history; a real deposit is always above 1 TRX.
	minDepositTRX = 1
	// historyLimit is how many recent transactions to inspect per address.
	historyLimit = 20
)

// Tier pairs a polling cadence with the payment age band it covers. Manual
// is the operator-run backstop for payments everything else has given up on.
type Tier struct {
	Name     string
	Interval time.Duration
	MinAge   time.Duration
	MaxAge   time.Duration
	// Once runs a single pass instead of looping.
	Once bool
}

// Tiers lists the scan cadences, youngest band first.
var Tiers = []Tier{
	{Name: "20s", Interval: 20 * time.Second, MinAge: 0, MaxAge: 20 * time.Minute},
	{Name: "1m", Interval: time.Minute, MinAge: 20 * time.Minute, MaxAge: 3 * time.Hour},
	{Name: "5m", Interval: 5 * time.Minute, MinAge: 3 * time.Hour, MaxAge: 6 * time.Hour},
	{Name: "15m", Interval: 15 * time.Minute, MinAge: 6 * time.Hour, MaxAge: 12 * time.Hour},
	{Name: "1h", Interval: time.Hour, MinAge: 12 * time.Hour, MaxAge: 24 * time.Hour},
	{Name: "3h", Interval: 3 * time.Hour, MinAge: 24 * time.Hour, MaxAge: 3 * 24 * time.Hour},
	{Name: "6h", Interval: 6 * time.Hour, MinAge: 3 * 24 * time.Hour, MaxAge: 7 * 24 * time.Hour},
	{Name: "1d", Interval: 24 * time.Hour, MinAge: 7 * 24 * time.Hour, MaxAge: 30 * 24 * time.Hour},
	{Name: "manual", MinAge: 30 * 24 * time.Hour, MaxAge: 90 * 24 * time.Hour, Once: true},
}

// TierByName looks up a tier by its CLI name.
func TierByName(name string) (Tier, bool) {
	for _, tier := range Tiers {
		if tier.Name == name {
			return tier, true
		}
	}
	return Tier{}, false
}

// Chain is the slice of the node client the poller reads.
type Chain interface {
	AccountBalance(ctx context.Context, address string) (decimal.Decimal, error)
	AccountTransactions(ctx context.Context, address string, limit int) ([]tron.AccountTransaction, error)
}

// AddressStore lists addresses by the age of their open payment.
type AddressStore interface {
	ListByPaymentAge(ctx context.Context, now time.Time, olderThan, newerThan time.Duration) ([]entities.DepositAddress, error)
}

// Store reports liveness of the backing store.
type Store interface {
	Ensure(ctx context.Context) error
}

// Reconciler consumes deposits found on polled addresses.
type Reconciler interface {
	HandleAddressDeposit(ctx context.Context, address *entities.DepositAddress, amount decimal.Decimal, hash string, observedAt time.Time) error
}

// Worker polls one tier of addresses.
type Worker struct {
	chain      Chain
	addresses  AddressStore
	store      Store
	reconciler Reconciler
	tier       Tier
	logger     *zap.Logger
}

// NewWorker creates an address scanner for a tier.
func NewWorker(chain Chain, addresses AddressStore, store Store, reconciler Reconciler, tier Tier, logger *zap.Logger) *Worker {
	return &Worker{
		chain:      chain,
		addresses:  addresses,
		store:      store,
		reconciler: reconciler,
		tier:       tier,
		logger:     logger.With(zap.String("tier", tier.Name)),
	}
}

// Run polls until the context is cancelled, or after one pass for a
// once-only tier.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("address scanner starting")

	for {
		if err := w.store.Ensure(ctx); err != nil {
			return err
		}

		if err := w.pass(ctx); err != nil {
			if errors.Is(err, domainerrors.ErrStoreUnavailable) || ctx.Err() != nil {
				return err
			}
			metrics.WatcherErrors.WithLabelValues("address").Inc()
			w.logger.Error("scan pass failed", zap.Error(err))
		}

		if w.tier.Once {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.tier.Interval):
		}
	}
}

func (w *Worker) pass(ctx context.Context) error {
	addresses, err := w.addresses.ListByPaymentAge(ctx, time.Now().UTC(), w.tier.MinAge, w.tier.MaxAge)
	if err != nil {
		return err
	}

	dust := decimal.RequireFromString(dustBalance)

	for i := range addresses {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(addressPause):
			}
		}

		address := &addresses[i]
		if err := w.pollAddress(ctx, address, dust); err != nil {
			if errors.Is(err, domainerrors.ErrStoreUnavailable) {
				return err
			}
			metrics.WatcherErrors.WithLabelValues("address").Inc()
			w.logger.Error("failed to poll address",
				zap.Error(err),
				zap.String("address", address.AddressBase58))
		}
	}

	return nil
}

func (w *Worker) pollAddress(ctx context.Context, address *entities.DepositAddress, dust decimal.Decimal) error {
	balance, err := w.chain.AccountBalance(ctx, address.AddressBase58)
	if err != nil {
		return err
	}
	if balance.LessThanOrEqual(dust) {
		return nil
	}

	transactions, err := w.chain.AccountTransactions(ctx, address.AddressBase58, historyLimit)
	if err != nil {
		return err
	}

	deposit, hash, depositedAt, ok := findDeposit(transactions, address.AddressHex)
	if !ok {
		w.logger.Debug("balance present but no deposit-sized transfer found",
			zap.String("address", address.AddressBase58),
			zap.String("balance", balance.String()))
		return nil
	}

	return w.reconciler.HandleAddressDeposit(ctx, address, deposit, hash, depositedAt)
}

// findDeposit picks the first history entry that looks like a real deposit:
// a plain transfer above the minimum, actually addressed to us. The returned
// time is the transfer's own timestamp, which decides the re-rate on slow
// tiers.
func findDeposit(transactions []tron.AccountTransaction, addressHex string) (decimal.Decimal, string, time.Time, bool) {
	min := decimal.NewFromInt(minDepositTRX)

	for i := range transactions {
		transfer, ok := transactions[i].Transfer()
		if !ok {
			continue
		}
		if transfer.ToAddress != addressHex {
			continue
		}
		amount := tron.FromSun(transfer.Amount)
		if amount.GreaterThan(min) {
			return amount, transactions[i].TxID, transactions[i].Time(), true
		}
	}
	return decimal.Zero, "", time.Time{}, false
}

// Describe renders the tier menu for CLI help output.
func Describe() string {
	out := ""
	for _, tier := range Tiers {
		if tier.Once {
			out += fmt.Sprintf("  %-6s single pass over payments aged %s to %s\n", tier.Name, tier.MinAge, tier.MaxAge)
			continue
		}
		out += fmt.Sprintf("  %-6s every %s, payments aged %s to %s\n", tier.Name, tier.Interval, tier.MinAge, tier.MaxAge)
	}
	return out
}
