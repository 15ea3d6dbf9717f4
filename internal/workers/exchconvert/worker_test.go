package exchconvert

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trxgate/trxgate/internal/adapters/kucoin"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testSymbol() *kucoin.Symbol {
	return &kucoin.Symbol{
		Symbol:        "TRX-USDT",
		BaseMinSize:   d("10"),
		BaseMaxSize:   d("10000000"),
		BaseIncrement: d("0.1"),
		MinFunds:      d("0.1"),
	}
}

func TestClampSize(t *testing.T) {
	t.Run("snaps to the increment", func(t *testing.T) {
		size := clampSize(d("120.17"), testSymbol())
		assert.Equal(t, "120.1", size.String())
	})

	t.Run("caps at the maximum", func(t *testing.T) {
		size := clampSize(d("99999999"), testSymbol())
		assert.True(t, size.Equal(d("10000000")))
	})

	t.Run("below the minimum is zero", func(t *testing.T) {
		size := clampSize(d("9.9"), testSymbol())
		assert.True(t, size.IsZero())
	})
}

type fakeExchange struct {
	balances  map[string]decimal.Decimal // key currency:type
	transfers []string
	sells     []decimal.Decimal
	price     decimal.Decimal
	symbol    *kucoin.Symbol
}

func (f *fakeExchange) key(currency, accountType string) string {
	return currency + ":" + accountType
}

func (f *fakeExchange) Balance(ctx context.Context, currency, accountType string) (*kucoin.AccountBalance, error) {
	return &kucoin.AccountBalance{
		Currency:  currency,
		Type:      accountType,
		Available: f.balances[f.key(currency, accountType)],
	}, nil
}

func (f *fakeExchange) InnerTransfer(ctx context.Context, currency, from, to string, amount decimal.Decimal) (string, error) {
	f.transfers = append(f.transfers, currency+" "+from+"->"+to+" "+amount.String())
	f.balances[f.key(currency, from)] = decimal.Zero
	f.balances[f.key(currency, to)] = f.balances[f.key(currency, to)].Add(amount)
	return "transfer-id", nil
}

func (f *fakeExchange) MarketSell(ctx context.Context, symbol string, size decimal.Decimal) (string, error) {
	f.sells = append(f.sells, size)
	f.balances[f.key("TRX", kucoin.AccountTrade)] = f.balances[f.key("TRX", kucoin.AccountTrade)].Sub(size)
	f.balances[f.key("USDT", kucoin.AccountTrade)] = size.Mul(f.price)
	return "order-id", nil
}

func (f *fakeExchange) SymbolInfo(ctx context.Context, symbol string) (*kucoin.Symbol, error) {
	return f.symbol, nil
}

func (f *fakeExchange) TickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return f.price, nil
}

// fakeFeed delivers its canned events, then blocks until the context ends.
type fakeFeed struct {
	events []kucoin.BalanceEvent
}

func (f *fakeFeed) Listen(ctx context.Context, handler func(kucoin.BalanceEvent)) error {
	for _, event := range f.events {
		handler(event)
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestHandleEvent(t *testing.T) {
	logger := zap.NewNop()

	t.Run("TRX deposit funds the trade account and sells", func(t *testing.T) {
		exchange := &fakeExchange{
			balances: map[string]decimal.Decimal{
				"TRX:main": d("120.17"),
			},
			price:  d("0.17"),
			symbol: testSymbol(),
		}
		worker := NewWorker(nil, exchange, logger)

		event := kucoin.BalanceEvent{Currency: "TRX", RelationEvent: kucoin.RelationDeposit}
		require.NoError(t, worker.handleEvent(context.Background(), event))

		require.Len(t, exchange.sells, 1)
		assert.Equal(t, "120.1", exchange.sells[0].String())
		// Proceeds stay put until the fill's own settlement event arrives.
		assert.Equal(t, []string{"TRX main->trade 120.17"}, exchange.transfers)
	})

	t.Run("USDT settlement collects the proceeds", func(t *testing.T) {
		exchange := &fakeExchange{
			balances: map[string]decimal.Decimal{
				"USDT:trade": d("20.417"),
			},
			price:  d("0.17"),
			symbol: testSymbol(),
		}
		worker := NewWorker(nil, exchange, logger)

		event := kucoin.BalanceEvent{Currency: "USDT", RelationEvent: kucoin.RelationTradeSettled}
		require.NoError(t, worker.handleEvent(context.Background(), event))

		assert.Equal(t, []string{"USDT trade->main 20.417"}, exchange.transfers)
	})

	t.Run("unrelated events do nothing", func(t *testing.T) {
		exchange := &fakeExchange{
			balances: map[string]decimal.Decimal{
				"TRX:main": d("120.17"),
			},
			price:  d("0.17"),
			symbol: testSymbol(),
		}
		worker := NewWorker(nil, exchange, logger)

		event := kucoin.BalanceEvent{Currency: "ETH", RelationEvent: kucoin.RelationDeposit}
		require.NoError(t, worker.handleEvent(context.Background(), event))

		assert.Empty(t, exchange.transfers)
		assert.Empty(t, exchange.sells)
	})
}

func TestRun(t *testing.T) {
	logger := zap.NewNop()

	t.Run("stays on the feed and converts as events arrive", func(t *testing.T) {
		exchange := &fakeExchange{
			balances: map[string]decimal.Decimal{
				"TRX:main": d("120.17"),
			},
			price:  d("0.17"),
			symbol: testSymbol(),
		}
		feed := &fakeFeed{events: []kucoin.BalanceEvent{
			{Currency: "TRX", RelationEvent: kucoin.RelationDeposit},
			{Currency: "USDT", RelationEvent: kucoin.RelationTradeSettled},
		}}
		worker := NewWorker(feed, exchange, logger)

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		err := worker.Run(ctx)

		assert.ErrorIs(t, err, context.DeadlineExceeded)
		require.Len(t, exchange.sells, 1)
		assert.Equal(t, "120.1", exchange.sells[0].String())
		assert.Equal(t, "TRX main->trade 120.17", exchange.transfers[0])
		assert.Equal(t, "USDT trade->main 20.417", exchange.transfers[1])
	})
}

func TestPass(t *testing.T) {
	logger := zap.NewNop()

	t.Run("converts main balance end to end", func(t *testing.T) {
		exchange := &fakeExchange{
			balances: map[string]decimal.Decimal{
				"TRX:main": d("120.17"),
			},
			price:  d("0.17"),
			symbol: testSymbol(),
		}

		worker := NewWorker(nil, exchange, logger)
		require.NoError(t, worker.Pass(context.Background()))

		require.Len(t, exchange.sells, 1)
		assert.Equal(t, "120.1", exchange.sells[0].String())
		// Funds in, proceeds out.
		assert.Equal(t, "TRX main->trade 120.17", exchange.transfers[0])
		assert.Equal(t, "USDT trade->main 20.417", exchange.transfers[1])
	})

	t.Run("balance below minimum is left alone", func(t *testing.T) {
		exchange := &fakeExchange{
			balances: map[string]decimal.Decimal{
				"TRX:main": d("5"),
			},
			price:  d("0.17"),
			symbol: testSymbol(),
		}

		worker := NewWorker(nil, exchange, logger)
		require.NoError(t, worker.Pass(context.Background()))

		assert.Empty(t, exchange.sells)
	})

	t.Run("nothing to do with empty accounts", func(t *testing.T) {
		exchange := &fakeExchange{
			balances: map[string]decimal.Decimal{},
			price:    d("0.17"),
			symbol:   testSymbol(),
		}

		worker := NewWorker(nil, exchange, logger)
		require.NoError(t, worker.Pass(context.Background()))

		assert.Empty(t, exchange.transfers)
		assert.Empty(t, exchange.sells)
	})
}
