package tron

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	domainerrors "github.com/trxgate/trxgate/internal/domain/errors"
)

// Config represents full-node API configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to a full node over its HTTP API. Key handling stays on the
// node side: transactions are created, signed and broadcast through the
// wallet endpoints, never assembled locally.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new full-node client.
func NewClient(config Config, logger *zap.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.trongrid.io"
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}
}

// NowBlock retrieves the current chain tip.
func (c *Client) NowBlock(ctx context.Context) (*Block, error) {
	var block Block
	if err := c.doRequest(ctx, http.MethodPost, "/wallet/getnowblock", nil, &block); err != nil {
		return nil, fmt.Errorf("get now block failed: %w", err)
	}
	return &block, nil
}

// BlockByNum retrieves the block at the given height.
func (c *Client) BlockByNum(ctx context.Context, height int64) (*Block, error) {
	req := map[string]interface{}{"num": height}

	var block Block
	if err := c.doRequest(ctx, http.MethodPost, "/wallet/getblockbynum", req, &block); err != nil {
		return nil, fmt.Errorf("get block %d failed: %w", height, err)
	}
	if block.BlockHeader.RawData.Number == 0 && block.BlockID == "" {
		return nil, ErrBlockNotFound
	}
	return &block, nil
}

// AccountBalance returns the TRX balance of an address. An account the chain
// has never seen comes back with a zero balance.
func (c *Client) AccountBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	req := map[string]interface{}{
		"address": address,
		"visible": true,
	}

	var account Account
	if err := c.doRequest(ctx, http.MethodPost, "/wallet/getaccount", req, &account); err != nil {
		return decimal.Zero, fmt.Errorf("get account %s failed: %w", address, err)
	}
	return FromSun(account.Balance), nil
}

// AccountTransactions returns the most recent inbound transactions for an
// address, newest first.
func (c *Client) AccountTransactions(ctx context.Context, address string, limit int) ([]AccountTransaction, error) {
	endpoint := fmt.Sprintf("/v1/accounts/%s/transactions?only_to=true&limit=%d&order_by=block_timestamp,desc", address, limit)

	var resp accountTransactionsResponse
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, fmt.Errorf("get transactions for %s failed: %w", address, err)
	}
	return resp.Data, nil
}

// GenerateAddress asks the node for a fresh keypair.
func (c *Client) GenerateAddress(ctx context.Context) (*GeneratedAddress, error) {
	var generated GeneratedAddress
	if err := c.doRequest(ctx, http.MethodGet, "/wallet/generateaddress", nil, &generated); err != nil {
		return nil, fmt.Errorf("generate address failed: %w", err)
	}
	if generated.Address == "" || generated.PrivateKey == "" {
		return nil, fmt.Errorf("generate address returned incomplete keypair")
	}
	return &generated, nil
}

// Transfer moves TRX from one of our addresses to another address through the
// node's create/sign/broadcast flow. Returns the transaction id.
func (c *Client) Transfer(ctx context.Context, from, to, privateKey string, amount decimal.Decimal) (string, error) {
	sun := ToSun(amount)
	if sun <= 0 {
		return "", domainerrors.ErrInvalidAmount
	}

	createReq := map[string]interface{}{
		"owner_address": from,
		"to_address":    to,
		"amount":        sun,
		"visible":       true,
	}

	var unsigned RawTransaction
	if err := c.doRequest(ctx, http.MethodPost, "/wallet/createtransaction", createReq, &unsigned); err != nil {
		return "", fmt.Errorf("create transaction failed: %w", err)
	}
	if errMsg, ok := unsigned["Error"].(string); ok {
		return "", fmt.Errorf("create transaction rejected: %s", errMsg)
	}

	signReq := map[string]interface{}{
		"transaction": unsigned,
		"privateKey":  privateKey,
	}

	var signed RawTransaction
	if err := c.doRequest(ctx, http.MethodPost, "/wallet/gettransactionsign", signReq, &signed); err != nil {
		return "", fmt.Errorf("sign transaction failed: %w", err)
	}

	var result BroadcastResult
	if err := c.doRequest(ctx, http.MethodPost, "/wallet/broadcasttransaction", signed, &result); err != nil {
		return "", fmt.Errorf("broadcast transaction failed: %w", err)
	}
	if !result.Result {
		return "", fmt.Errorf("%w: %s %s", ErrBroadcastRejected, result.Code, result.Message)
	}

	txID := result.TxID
	if txID == "" {
		if id, ok := signed["txID"].(string); ok {
			txID = id
		}
	}

	c.logger.Info("broadcast transfer",
		zap.String("from", from),
		zap.String("to", to),
		zap.String("amount", amount.String()),
		zap.String("tx_id", txID))

	return txID, nil
}

func (c *Client) doRequest(ctx context.Context, method, endpoint string, body, response interface{}) error {
	fullURL := c.config.BaseURL + endpoint

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

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
		return &APIError{
			StatusCode: resp.StatusCode,
			Endpoint:   endpoint,
			Body:       string(respBody),
		}
	}

	if response != nil {
		if err := json.Unmarshal(respBody, response); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}
