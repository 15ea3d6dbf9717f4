// Package exchconvert converts accumulated TRX on the exchange into USDT:
// funds move from the main account to the trade account, get sold at market,
// and the proceeds move back to main.
package exchconvert

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/trxgate/trxgate/internal/adapters/kucoin"
	"github.com/trxgate/trxgate/pkg/metrics"
)

const (
	tradeSymbol   = "TRX-USDT"
	baseCurrency  = "TRX"
	quoteCurrency = "USDT"
	// settleWait is how long a single batch pass waits for its market order
	// to settle before moving the proceeds back.
	settleWait = 5 * time.Second
	// reconnectDelay is the pause before re-dialing a dropped feed.
	reconnectDelay = 5 * time.Second
)

// Feed streams balance events.
type Feed interface {
	Listen(ctx context.Context, handler func(kucoin.BalanceEvent)) error
}

// Exchange is the slice of the exchange client conversion needs.
type Exchange interface {
	Balance(ctx context.Context, currency, accountType string) (*kucoin.AccountBalance, error)
	InnerTransfer(ctx context.Context, currency, from, to string, amount decimal.Decimal) (string, error)
	MarketSell(ctx context.Context, symbol string, size decimal.Decimal) (string, error)
	SymbolInfo(ctx context.Context, symbol string) (*kucoin.Symbol, error)
	TickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Worker converts exchange balances, either driven by the private balance
// feed or in a single batch pass.
type Worker struct {
	feed     Feed
	exchange Exchange
	logger   *zap.Logger
}

// NewWorker creates a conversion worker. feed may be nil when only Pass is
// used.
func NewWorker(feed Feed, exchange Exchange, logger *zap.Logger) *Worker {
	return &Worker{feed: feed, exchange: exchange, logger: logger}
}

// Run listens on the balance feed until the context is cancelled, re-dialing
// whenever the feed drops. A TRX deposit on the main account triggers the
// sell; the fill's own settlement event triggers collecting the proceeds, so
// a slow fill is picked up the moment it lands instead of on a timer.
func (w *Worker) Run(ctx context.Context) error {
	for {
		err := w.feed.Listen(ctx, func(event kucoin.BalanceEvent) {
			if err := w.handleEvent(ctx, event); err != nil {
				metrics.WatcherErrors.WithLabelValues("conversion").Inc()
				w.logger.Error("failed to handle balance event", zap.Error(err))
			}
		})

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
	switch {
	case event.RelationEvent == kucoin.RelationDeposit && event.Currency == baseCurrency:
		if err := w.fundTradeAccount(ctx); err != nil {
			return err
		}
		_, err := w.sell(ctx)
		return err

	case event.RelationEvent == kucoin.RelationTradeSettled && event.Currency == quoteCurrency:
		return w.collectProceeds(ctx)

	default:
		return nil
	}
}

// Pass moves every spendable TRX through a market sell and returns. Amounts
// too small for the order book are left where they are for the next pass.
func (w *Worker) Pass(ctx context.Context) error {
	if err := w.fundTradeAccount(ctx); err != nil {
		return err
	}

	sold, err := w.sell(ctx)
	if err != nil {
		return err
	}
	if !sold {
		return nil
	}

	// No feed to tell us when the fill lands; give it a moment before
	// sweeping the quote balance home.
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(settleWait):
	}

	return w.collectProceeds(ctx)
}

// fundTradeAccount moves the main account's TRX into the trade account.
func (w *Worker) fundTradeAccount(ctx context.Context) error {
	main, err := w.exchange.Balance(ctx, baseCurrency, kucoin.AccountMain)
	if err != nil {
		return err
	}
	if main.Available.LessThanOrEqual(decimal.Zero) {
		return nil
	}

	if _, err := w.exchange.InnerTransfer(ctx, baseCurrency, kucoin.AccountMain, kucoin.AccountTrade, main.Available); err != nil {
		return err
	}

	w.logger.Info("moved funds to trade account", zap.String("amount", main.Available.String()))
	return nil
}

// sell places a market sell for the trade account's TRX, clamped to the
// symbol's size constraints. Returns false when nothing sellable is there.
func (w *Worker) sell(ctx context.Context) (bool, error) {
	trade, err := w.exchange.Balance(ctx, baseCurrency, kucoin.AccountTrade)
	if err != nil {
		return false, err
	}
	if trade.Available.LessThanOrEqual(decimal.Zero) {
		return false, nil
	}

	symbol, err := w.exchange.SymbolInfo(ctx, tradeSymbol)
	if err != nil {
		return false, err
	}

	size := clampSize(trade.Available, symbol)
	if size.IsZero() {
		w.logger.Info("balance below minimum order size",
			zap.String("available", trade.Available.String()),
			zap.String("min", symbol.BaseMinSize.String()))
		return false, nil
	}

	price, err := w.exchange.TickerPrice(ctx, tradeSymbol)
	if err != nil {
		return false, err
	}
	if !symbol.MinFunds.IsZero() && size.Mul(price).LessThan(symbol.MinFunds) {
		w.logger.Info("order value below minimum funds",
			zap.String("size", size.String()),
			zap.String("price", price.String()),
			zap.String("min_funds", symbol.MinFunds.String()))
		return false, nil
	}

	orderID, err := w.exchange.MarketSell(ctx, tradeSymbol, size)
	if err != nil {
		return false, err
	}

	w.logger.Info("conversion order placed",
		zap.String("order_id", orderID),
		zap.String("size", size.String()))
	return true, nil
}

// collectProceeds moves the trade account's USDT back to main.
func (w *Worker) collectProceeds(ctx context.Context) error {
	quote, err := w.exchange.Balance(ctx, quoteCurrency, kucoin.AccountTrade)
	if err != nil {
		return err
	}
	if quote.Available.LessThanOrEqual(decimal.Zero) {
		return nil
	}

	if _, err := w.exchange.InnerTransfer(ctx, quoteCurrency, kucoin.AccountTrade, kucoin.AccountMain, quote.Available); err != nil {
		return err
	}

	w.logger.Info("collected conversion proceeds", zap.String("amount", quote.Available.String()))
	return nil
}

// clampSize snaps the available balance onto the symbol's size grid. Returns
// zero when the result would be below the minimum order size.
func clampSize(available decimal.Decimal, symbol *kucoin.Symbol) decimal.Decimal {
	size := available
	if !symbol.BaseIncrement.IsZero() {
		size = size.Div(symbol.BaseIncrement).Floor().Mul(symbol.BaseIncrement)
	}
	if !symbol.BaseMaxSize.IsZero() && size.GreaterThan(symbol.BaseMaxSize) {
		size = symbol.BaseMaxSize
	}
	if size.LessThan(symbol.BaseMinSize) {
		return decimal.Zero
	}
	return size
}
