package entities

// Currency codes used across payments. IRT is the fiat accounting currency;
// every fee and quote is settled in it.
const (
	CurrencyIRT  = "IRT"
	CurrencyTRX  = "TRX"
	CurrencyUSDT = "USDT.TRC20"
)

// DefaultCurrency is the crypto currency quoted when the caller does not pick one.
const DefaultCurrency = CurrencyTRX

// CurrencyPrecision maps a crypto currency to the fixed number of decimal
// digits used when rendering its amounts. The tracking code is embedded into
// the trailing digits of this precision.
var CurrencyPrecision = map[string]int32{
	CurrencyTRX: 6,
}

// PrecisionFor returns the fixed decimal precision for a currency.
func PrecisionFor(currency string) (int32, bool) {
	p, ok := CurrencyPrecision[currency]
	return p, ok
}
