package tron

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// TransferContractType is the contract type carrying a plain TRX transfer.
const TransferContractType = "TransferContract"

var sunPerTRX = decimal.New(1, 6)

// FromSun converts an integer SUN amount to TRX.
func FromSun(sun int64) decimal.Decimal {
	return decimal.NewFromInt(sun).Div(sunPerTRX)
}

// ToSun converts a TRX amount to integer SUN, truncating below 1 SUN.
func ToSun(trx decimal.Decimal) int64 {
	return trx.Mul(sunPerTRX).IntPart()
}

// Block is a chain block with its plain transfers.
type Block struct {
	BlockID      string        `json:"blockID"`
	BlockHeader  BlockHeader   `json:"block_header"`
	Transactions []Transaction `json:"transactions"`
}

// Height returns the block number.
func (b *Block) Height() int64 {
	return b.BlockHeader.RawData.Number
}

type BlockHeader struct {
	RawData BlockHeaderRaw `json:"raw_data"`
}

type BlockHeaderRaw struct {
	Number    int64 `json:"number"`
	Timestamp int64 `json:"timestamp"`
}

// Transaction is a chain transaction. Only the first contract matters for
// plain transfers.
type Transaction struct {
	TxID    string          `json:"txID"`
	RawData TransactionRaw  `json:"raw_data"`
	Ret     []TransactionRet `json:"ret"`
}

type TransactionRaw struct {
	Contract  []Contract `json:"contract"`
	Timestamp int64      `json:"timestamp"`
}

type TransactionRet struct {
	ContractRet string `json:"contractRet"`
}

type Contract struct {
	Type      string            `json:"type"`
	Parameter ContractParameter `json:"parameter"`
}

type ContractParameter struct {
	Value json.RawMessage `json:"value"`
}

// TransferValue is the payload of a TransferContract. Addresses are hex.
type TransferValue struct {
	Amount       int64  `json:"amount"`
	OwnerAddress string `json:"owner_address"`
	ToAddress    string `json:"to_address"`
}

// Transfer extracts the plain TRX transfer from the transaction, if it is one.
func (t *Transaction) Transfer() (*TransferValue, bool) {
	if len(t.RawData.Contract) == 0 {
		return nil, false
	}
	contract := t.RawData.Contract[0]
	if contract.Type != TransferContractType {
		return nil, false
	}

	var value TransferValue
	if err := json.Unmarshal(contract.Parameter.Value, &value); err != nil {
		return nil, false
	}
	return &value, true
}

// Time returns the transaction's on-chain timestamp, zero when the node did
// not report one.
func (t *Transaction) Time() time.Time {
	if t.RawData.Timestamp <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(t.RawData.Timestamp).UTC()
}

// Succeeded reports whether the transaction executed without revert. An empty
// ret list means an unexecuted plain transfer, which the chain treats as
// success.
func (t *Transaction) Succeeded() bool {
	for _, ret := range t.Ret {
		if ret.ContractRet != "" && ret.ContractRet != "SUCCESS" {
			return false
		}
	}
	return true
}

// Account is a chain account. Balance is in SUN.
type Account struct {
	Address string `json:"address"`
	Balance int64  `json:"balance"`
}

// GeneratedAddress is a fresh keypair from the node.
type GeneratedAddress struct {
	PrivateKey string `json:"privateKey"`
	Address    string `json:"address"`
	HexAddress string `json:"hexAddress"`
}

// RawTransaction is an unsigned or signed transaction passed between the
// create, sign and broadcast endpoints verbatim.
type RawTransaction map[string]interface{}

// BroadcastResult is the node's answer to a broadcast.
type BroadcastResult struct {
	Result  bool   `json:"result"`
	TxID    string `json:"txid"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type accountTransactionsResponse struct {
	Data    []AccountTransaction `json:"data"`
	Success bool                 `json:"success"`
}

// AccountTransaction is one entry from the account transaction history.
type AccountTransaction struct {
	TxID    string         `json:"txID"`
	RawData TransactionRaw `json:"raw_data"`
	Ret     []TransactionRet `json:"ret"`
}

// Transfer extracts the plain TRX transfer, if the entry is one.
func (t *AccountTransaction) Transfer() (*TransferValue, bool) {
	tx := Transaction{TxID: t.TxID, RawData: t.RawData, Ret: t.Ret}
	return tx.Transfer()
}

// Time returns the entry's on-chain timestamp, zero when absent.
func (t *AccountTransaction) Time() time.Time {
	tx := Transaction{RawData: t.RawData}
	return tx.Time()
}
