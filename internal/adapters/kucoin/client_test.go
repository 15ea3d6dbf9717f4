package kucoin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func envelope(data interface{}) map[string]interface{} {
	return map[string]interface{}{"code": "200000", "data": data}
}

func TestBalance(t *testing.T) {
	logger := zap.NewNop()

	t.Run("returns the matching account", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v1/accounts", r.URL.Path)
			assert.Equal(t, "TRX", r.URL.Query().Get("currency"))
			assert.Equal(t, "main", r.URL.Query().Get("type"))
			assert.NotEmpty(t, r.Header.Get("KC-API-SIGN"))
			assert.Equal(t, "2", r.Header.Get("KC-API-KEY-VERSION"))

			json.NewEncoder(w).Encode(envelope([]map[string]interface{}{{
				"currency":  "TRX",
				"type":      "main",
				"balance":   "120.5",
				"available": "120.5",
			}}))
		}))
		defer server.Close()

		client := NewClient(Config{BaseURL: server.URL, APIKey: "k", APISecret: "s", APIPassphrase: "p"}, logger)
		balance, err := client.Balance(context.Background(), "TRX", AccountMain)

		require.NoError(t, err)
		assert.True(t, balance.Available.Equal(decimal.RequireFromString("120.5")))
	})

	t.Run("missing ledger reads as zero", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(envelope([]map[string]interface{}{}))
		}))
		defer server.Close()

		client := NewClient(Config{BaseURL: server.URL}, logger)
		balance, err := client.Balance(context.Background(), "TRX", AccountMain)

		require.NoError(t, err)
		assert.True(t, balance.Available.IsZero())
	})

	t.Run("non-ok code surfaces as an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{"code": "400100", "msg": "invalid signature"})
		}))
		defer server.Close()

		client := NewClient(Config{BaseURL: server.URL}, logger)
		_, err := client.Balance(context.Background(), "TRX", AccountMain)

		assert.ErrorContains(t, err, "400100")
	})
}

func TestInnerTransfer(t *testing.T) {
	logger := zap.NewNop()

	t.Run("truncates the amount to eight decimals", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v2/accounts/inner-transfer", r.URL.Path)

			var req map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "120.12345678", req["amount"])
			assert.Equal(t, "main", req["from"])
			assert.Equal(t, "trade", req["to"])
			assert.NotEmpty(t, req["clientOid"])

			json.NewEncoder(w).Encode(envelope(map[string]string{"orderId": "transfer-1"}))
		}))
		defer server.Close()

		client := NewClient(Config{BaseURL: server.URL}, logger)
		orderID, err := client.InnerTransfer(context.Background(), "TRX", AccountMain, AccountTrade, decimal.RequireFromString("120.123456789999"))

		require.NoError(t, err)
		assert.Equal(t, "transfer-1", orderID)
	})
}

func TestMarketSell(t *testing.T) {
	logger := zap.NewNop()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/orders", r.URL.Path)

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "sell", req["side"])
		assert.Equal(t, "market", req["type"])
		assert.Equal(t, "TRX-USDT", req["symbol"])
		assert.Equal(t, "120.1", req["size"])

		json.NewEncoder(w).Encode(envelope(map[string]string{"orderId": "order-1"}))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL}, logger)
	orderID, err := client.MarketSell(context.Background(), "TRX-USDT", decimal.RequireFromString("120.1"))

	require.NoError(t, err)
	assert.Equal(t, "order-1", orderID)
}

func TestDepositHash(t *testing.T) {
	deposit := Deposit{WalletTxID: "deadbeef@trx1"}
	assert.Equal(t, "deadbeef", deposit.Hash())

	bare := Deposit{WalletTxID: "cafebabe"}
	assert.Equal(t, "cafebabe", bare.Hash())
}

func TestFindDepositByHash(t *testing.T) {
	logger := zap.NewNop()

	t.Run("pages through the history", func(t *testing.T) {
		var pages []string

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			page := r.URL.Query().Get("currentPage")
			pages = append(pages, page)

			items := make([]map[string]interface{}, 0, 10)
			for i := 0; i < 10; i++ {
				hash := fmt.Sprintf("hash-%s-%d", page, i)
				if page == "3" && i == 4 {
					hash = "wanted"
				}
				items = append(items, map[string]interface{}{
					"currency":   "TRX",
					"amount":     "2.850321",
					"walletTxId": hash + "@trx1",
					"status":     "SUCCESS",
				})
			}
			json.NewEncoder(w).Encode(envelope(map[string]interface{}{"items": items}))
		}))
		defer server.Close()

		client := NewClient(Config{BaseURL: server.URL}, logger)
		deposit, err := client.FindDepositByHash(context.Background(), "TRX", "wanted")

		require.NoError(t, err)
		require.NotNil(t, deposit)
		assert.Equal(t, "wanted", deposit.Hash())
		assert.Equal(t, []string{"1", "2", "3"}, pages)
	})

	t.Run("gives up after five pages", func(t *testing.T) {
		var requests int

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests++
			items := make([]map[string]interface{}, 10)
			for i := range items {
				items[i] = map[string]interface{}{"walletTxId": fmt.Sprintf("other-%d-%d@x", requests, i)}
			}
			json.NewEncoder(w).Encode(envelope(map[string]interface{}{"items": items}))
		}))
		defer server.Close()

		client := NewClient(Config{BaseURL: server.URL}, logger)
		deposit, err := client.FindDepositByHash(context.Background(), "TRX", "missing")

		require.NoError(t, err)
		assert.Nil(t, deposit)
		assert.Equal(t, 5, requests)
	})

	t.Run("stops at a short page", func(t *testing.T) {
		var requests int

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests++
			json.NewEncoder(w).Encode(envelope(map[string]interface{}{"items": []map[string]interface{}{
				{"walletTxId": "only@x"},
			}}))
		}))
		defer server.Close()

		client := NewClient(Config{BaseURL: server.URL}, logger)
		deposit, err := client.FindDepositByHash(context.Background(), "TRX", "missing")

		require.NoError(t, err)
		assert.Nil(t, deposit)
		assert.Equal(t, 1, requests)
	})
}

func TestFindDepositByAmount(t *testing.T) {
	logger := zap.NewNop()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(envelope(map[string]interface{}{"items": []map[string]interface{}{
			{"amount": "1.000000", "walletTxId": "a@x"},
			{"amount": "2.850321", "walletTxId": "b@x"},
		}}))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL}, logger)
	deposit, err := client.FindDepositByAmount(context.Background(), "TRX", decimal.RequireFromString("2.850321"))

	require.NoError(t, err)
	require.NotNil(t, deposit)
	assert.Equal(t, "b", deposit.Hash())
}
