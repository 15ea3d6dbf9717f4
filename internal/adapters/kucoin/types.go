package kucoin

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// apiResponse is the envelope every REST endpoint answers with.
type apiResponse struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

const codeOK = "200000"

// AccountBalance is one entry from the accounts list.
type AccountBalance struct {
	ID        string          `json:"id"`
	Currency  string          `json:"currency"`
	Type      string          `json:"type"`
	Balance   decimal.Decimal `json:"balance"`
	Available decimal.Decimal `json:"available"`
	Holds     decimal.Decimal `json:"holds"`
}

// Account types used by the conversion flow.
const (
	AccountMain  = "main"
	AccountTrade = "trade"
)

// Symbol describes a trading pair's size constraints.
type Symbol struct {
	Symbol        string          `json:"symbol"`
	BaseCurrency  string          `json:"baseCurrency"`
	QuoteCurrency string          `json:"quoteCurrency"`
	BaseMinSize   decimal.Decimal `json:"baseMinSize"`
	BaseMaxSize   decimal.Decimal `json:"baseMaxSize"`
	BaseIncrement decimal.Decimal `json:"baseIncrement"`
	MinFunds      decimal.Decimal `json:"minFunds"`
	EnableTrading bool            `json:"enableTrading"`
}

// TickerLevel1 is the best bid/ask snapshot for a symbol.
type TickerLevel1 struct {
	Price decimal.Decimal `json:"price"`
}

// OrderResult is the id of a placed order.
type OrderResult struct {
	OrderID string `json:"orderId"`
}

// InnerTransferResult is the id of a funds move between account types.
type InnerTransferResult struct {
	OrderID string `json:"orderId"`
}

// Deposit is one entry from the deposit history.
type Deposit struct {
	Currency   string          `json:"currency"`
	Amount     decimal.Decimal `json:"amount"`
	Address    string          `json:"address"`
	WalletTxID string          `json:"walletTxId"`
	Status     string          `json:"status"`
	CreatedAt  int64           `json:"createdAt"`
}

// Hash returns the chain transaction hash. The exchange suffixes the wallet
// tx id with an internal marker after '@'.
func (d *Deposit) Hash() string {
	hash, _, _ := strings.Cut(d.WalletTxID, "@")
	return hash
}

type depositPage struct {
	CurrentPage int       `json:"currentPage"`
	PageSize    int       `json:"pageSize"`
	TotalNum    int       `json:"totalNum"`
	TotalPage   int       `json:"totalPage"`
	Items       []Deposit `json:"items"`
}

// BulletToken is the websocket handshake answer.
type BulletToken struct {
	Token           string           `json:"token"`
	InstanceServers []InstanceServer `json:"instanceServers"`
}

type InstanceServer struct {
	Endpoint     string `json:"endpoint"`
	Protocol     string `json:"protocol"`
	PingInterval int64  `json:"pingInterval"`
	PingTimeout  int64  `json:"pingTimeout"`
}

// BalanceEvent is one /account/balance push from the private feed.
type BalanceEvent struct {
	Currency        string          `json:"currency"`
	Total           decimal.Decimal `json:"total"`
	Available       decimal.Decimal `json:"available"`
	AvailableChange decimal.Decimal `json:"availableChange"`
	RelationEvent   string          `json:"relationEvent"`
	RelationEventID string          `json:"relationEventId"`
	Time            string          `json:"time"`
}

// RelationDeposit marks a balance change caused by an external deposit
// arriving on the main account.
const RelationDeposit = "main.deposit"

// RelationTradeSettled marks a balance change caused by an order fill landing
// on the trade account.
const RelationTradeSettled = "trade.setted"

// Timestamp parses the event's millisecond timestamp. Zero time when absent
// or malformed.
func (e BalanceEvent) Timestamp() time.Time {
	ms, err := strconv.ParseInt(e.Time, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// feedMessage is the websocket frame envelope.
type feedMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Topic   string          `json:"topic,omitempty"`
	Subject string          `json:"subject,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}
