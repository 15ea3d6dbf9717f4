package kucoin

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Config represents exchange API credentials and endpoints.
type Config struct {
	APIKey        string
	APISecret     string
	APIPassphrase string
	BaseURL       string
	Timeout       time.Duration
}

// Client is a signed REST client for the exchange.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new exchange client.
func NewClient(config Config, logger *zap.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.kucoin.com"
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}
}

// Balance returns the account balance for a currency and account type. A
// currency with no ledger yet comes back as zero.
func (c *Client) Balance(ctx context.Context, currency, accountType string) (*AccountBalance, error) {
	endpoint := fmt.Sprintf("/api/v1/accounts?currency=%s&type=%s", currency, accountType)

	var accounts []AccountBalance
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &accounts); err != nil {
		return nil, fmt.Errorf("get balance failed: %w", err)
	}
	if len(accounts) == 0 {
		return &AccountBalance{Currency: currency, Type: accountType}, nil
	}
	return &accounts[0], nil
}

// InnerTransfer moves funds between the main and trade accounts. The exchange
// accepts at most 8 decimal places, so the amount is truncated, never rounded
// up past the available balance.
func (c *Client) InnerTransfer(ctx context.Context, currency, from, to string, amount decimal.Decimal) (string, error) {
	req := map[string]interface{}{
		"clientOid": uuid.New().String(),
		"currency":  currency,
		"from":      from,
		"to":        to,
		"amount":    amount.Truncate(8).String(),
	}

	var result InnerTransferResult
	if err := c.doRequest(ctx, http.MethodPost, "/api/v2/accounts/inner-transfer", req, &result); err != nil {
		return "", fmt.Errorf("inner transfer failed: %w", err)
	}
	return result.OrderID, nil
}

// MarketSell places a market sell order for the given base size.
func (c *Client) MarketSell(ctx context.Context, symbol string, size decimal.Decimal) (string, error) {
	req := map[string]interface{}{
		"clientOid": uuid.New().String(),
		"side":      "sell",
		"symbol":    symbol,
		"type":      "market",
		"size":      size.String(),
	}

	var result OrderResult
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/orders", req, &result); err != nil {
		return "", fmt.Errorf("market sell failed: %w", err)
	}

	c.logger.Info("placed market sell",
		zap.String("symbol", symbol),
		zap.String("size", size.String()),
		zap.String("order_id", result.OrderID))

	return result.OrderID, nil
}

// SymbolInfo returns the size constraints for a trading pair.
func (c *Client) SymbolInfo(ctx context.Context, symbol string) (*Symbol, error) {
	endpoint := fmt.Sprintf("/api/v2/symbols/%s", symbol)

	var info Symbol
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &info); err != nil {
		return nil, fmt.Errorf("get symbol %s failed: %w", symbol, err)
	}
	return &info, nil
}

// TickerPrice returns the last traded price for a symbol.
func (c *Client) TickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("/api/v1/market/orderbook/level1?symbol=%s", symbol)

	var ticker TickerLevel1
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &ticker); err != nil {
		return decimal.Zero, fmt.Errorf("get ticker %s failed: %w", symbol, err)
	}
	return ticker.Price, nil
}

// Deposits returns one page of successful deposits for a currency.
func (c *Client) Deposits(ctx context.Context, currency string, page, pageSize int) ([]Deposit, error) {
	endpoint := fmt.Sprintf("/api/v1/deposits?currency=%s&status=SUCCESS&currentPage=%d&pageSize=%d", currency, page, pageSize)

	var result depositPage
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &result); err != nil {
		return nil, fmt.Errorf("list deposits failed: %w", err)
	}
	return result.Items, nil
}

// FindDepositByHash scans the recent deposit history for a chain transaction
// hash. It looks at the 5 most recent pages of 10 and gives up after that:
// anything older predates the watcher's interest.
func (c *Client) FindDepositByHash(ctx context.Context, currency, hash string) (*Deposit, error) {
	for page := 1; page <= 5; page++ {
		items, err := c.Deposits(ctx, currency, page, 10)
		if err != nil {
			return nil, err
		}
		for i := range items {
			if items[i].Hash() == hash {
				return &items[i], nil
			}
		}
		if len(items) < 10 {
			break
		}
	}
	return nil, nil
}

// FindDepositByAmount scans the recent deposit history for an exact amount
// match, newest first. Same page budget as FindDepositByHash.
func (c *Client) FindDepositByAmount(ctx context.Context, currency string, amount decimal.Decimal) (*Deposit, error) {
	for page := 1; page <= 5; page++ {
		items, err := c.Deposits(ctx, currency, page, 10)
		if err != nil {
			return nil, err
		}
		for i := range items {
			if items[i].Amount.Equal(amount) {
				return &items[i], nil
			}
		}
		if len(items) < 10 {
			break
		}
	}
	return nil, nil
}

// BulletPrivate performs the private websocket handshake, returning the
// connect token and server list.
func (c *Client) BulletPrivate(ctx context.Context) (*BulletToken, error) {
	var token BulletToken
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/bullet-private", nil, &token); err != nil {
		return nil, fmt.Errorf("bullet-private handshake failed: %w", err)
	}
	if token.Token == "" || len(token.InstanceServers) == 0 {
		return nil, fmt.Errorf("bullet-private returned no usable server")
	}
	return &token, nil
}

func (c *Client) doRequest(ctx context.Context, method, endpoint string, body, response interface{}) error {
	fullURL := c.config.BaseURL + endpoint

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.sign(req, method, endpoint, payload)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("exchange api %s returned %d: %s", endpoint, resp.StatusCode, string(respBody))
	}

	var envelope apiResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if envelope.Code != codeOK {
		return fmt.Errorf("exchange api %s returned code %s: %s", endpoint, envelope.Code, envelope.Msg)
	}

	if response != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, response); err != nil {
			return fmt.Errorf("failed to unmarshal response data: %w", err)
		}
	}

	return nil
}

// sign applies the v2 key-version request signature.
func (c *Client) sign(req *http.Request, method, endpoint string, payload []byte) {
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)

	preimage := timestamp + method + endpoint + string(payload)
	signature := hmacBase64(preimage, c.config.APISecret)
	passphrase := hmacBase64(c.config.APIPassphrase, c.config.APISecret)

	req.Header.Set("KC-API-KEY", c.config.APIKey)
	req.Header.Set("KC-API-SIGN", signature)
	req.Header.Set("KC-API-TIMESTAMP", timestamp)
	req.Header.Set("KC-API-PASSPHRASE", passphrase)
	req.Header.Set("KC-API-KEY-VERSION", "2")
}

func hmacBase64(message, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
