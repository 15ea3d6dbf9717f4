// Package rates fetches fiat exchange rates from the payment gateways. Each
// gateway publishes prices in its own JSON shape, so parsing is per-gateway;
// the callers only ever see a decimal IRT price per crypto unit.
package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/trxgate/trxgate/internal/domain/entities"
	domainerrors "github.com/trxgate/trxgate/internal/domain/errors"
	"github.com/trxgate/trxgate/internal/infrastructure/cache"
	"github.com/trxgate/trxgate/internal/infrastructure/config"
)

// bitPinTRXMarketID is the TRX/IRT market in the BitPin listing.
const bitPinTRXMarketID = 261

// ErrRateUnavailable is returned when a gateway answered but no price for the
// currency could be extracted.
var ErrRateUnavailable = errors.New("rate unavailable")

// Source fetches and caches gateway rates.
type Source struct {
	gateways   config.GatewayConfig
	cache      cache.RedisClient
	cacheTTL   time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

// NewSource creates a rate source. A nil cache disables caching.
func NewSource(gateways config.GatewayConfig, redis cache.RedisClient, logger *zap.Logger) *Source {
	ttl := time.Duration(gateways.RateCacheTTL) * time.Second
	if ttl <= 0 {
		ttl = time.Minute
	}

	return &Source{
		gateways:   gateways,
		cache:      redis,
		cacheTTL:   ttl,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// Rate returns the IRT price of one unit of the currency quoted by the
// gateway. Fresh quotes are cached briefly so the scanners do not hammer the
// gateways during settlement bursts.
func (s *Source) Rate(ctx context.Context, gatewayID int, currency string) (decimal.Decimal, error) {
	cacheKey := fmt.Sprintf("rate:%d:%s", gatewayID, currency)

	if s.cache != nil {
		var cached decimal.Decimal
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return cached, nil
		}
	}

	rate, err := s.fetch(ctx, gatewayID, currency)
	if err != nil {
		return decimal.Zero, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, rate, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache rate", zap.Error(err), zap.String("key", cacheKey))
		}
	}

	return rate, nil
}

func (s *Source) fetch(ctx context.Context, gatewayID int, currency string) (decimal.Decimal, error) {
	url := s.gateways.RateURL(gatewayID)
	if url == "" {
		return decimal.Zero, domainerrors.ErrGatewayNotFound
	}

	body, err := s.get(ctx, url)
	if err != nil {
		return decimal.Zero, err
	}

	switch gatewayID {
	case entities.GatewayWeSwap, entities.GatewayChangeTo:
		return parseResultMap(body, currency)
	case entities.GatewayDigiSwap:
		return parseAssetList(body, currency)
	case entities.GatewayBitPin:
		return parseMarketList(body)
	}

	return decimal.Zero, domainerrors.ErrGatewayNotFound
}

func (s *Source) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rate request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("rate endpoint returned %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// parseResultMap handles the {"result": {"TRX": "12345"}} shape shared by two
// of the gateways.
func parseResultMap(body []byte, currency string) (decimal.Decimal, error) {
	var payload struct {
		Result map[string]decimal.Decimal `json:"result"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return decimal.Zero, fmt.Errorf("unparseable rate response: %w", err)
	}

	rate, ok := payload.Result[currency]
	if !ok || rate.IsZero() {
		return decimal.Zero, ErrRateUnavailable
	}
	return rate, nil
}

// parseAssetList handles the asset listing that quotes each coin in USD plus
// a single USD sell price in IRT.
func parseAssetList(body []byte, currency string) (decimal.Decimal, error) {
	var payload struct {
		USDSellPrice decimal.Decimal `json:"usd_sell_price"`
		Assets       []struct {
			Symbol   string          `json:"symbol"`
			USDPrice decimal.Decimal `json:"usd_price"`
		} `json:"assets"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return decimal.Zero, fmt.Errorf("unparseable rate response: %w", err)
	}

	for _, asset := range payload.Assets {
		if asset.Symbol == currency {
			rate := asset.USDPrice.Mul(payload.USDSellPrice)
			if rate.IsZero() {
				return decimal.Zero, ErrRateUnavailable
			}
			return rate, nil
		}
	}
	return decimal.Zero, ErrRateUnavailable
}

// parseMarketList handles the market listing where the TRX/IRT pair sits
// under a fixed market id.
func parseMarketList(body []byte) (decimal.Decimal, error) {
	var payload struct {
		Results []struct {
			ID    int             `json:"id"`
			Price decimal.Decimal `json:"price"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return decimal.Zero, fmt.Errorf("unparseable rate response: %w", err)
	}

	for _, market := range payload.Results {
		if market.ID == bitPinTRXMarketID {
			if market.Price.IsZero() {
				return decimal.Zero, ErrRateUnavailable
			}
			return market.Price, nil
		}
	}
	return decimal.Zero, ErrRateUnavailable
}
