package entities

import "github.com/shopspring/decimal"

// Gateway identifiers. BitPin is quote-only: it never charges a fee schedule
// of its own but its order book is used as the reference rate.
const (
	GatewayWeSwap   = 1
	GatewayDigiSwap = 2
	GatewayChangeTo = 3
	GatewayBitPin   = 4

	GatewayDefault = GatewayDigiSwap
)

// Gateway is a fiat on-ramp with its own fee schedules per currency.
type Gateway struct {
	ID        int
	Name      string
	Schedules map[string]FeeSchedule
}

var weSwapSchedules = map[string]FeeSchedule{
	CurrencyTRX: {
		Minimum: FeeValue{Currency: CurrencyTRX, Value: decimal.NewFromInt(2)},
		Limit:   &FeeValue{Currency: CurrencyIRT, Value: decimal.NewFromInt(250000)},
		Fix:     FeeValue{Currency: CurrencyIRT, Value: decimal.NewFromInt(15000)},
		Over:    &FeeValue{Currency: "percent", Value: decimal.NewFromInt(6)},
	},
	CurrencyUSDT: {
		Minimum: FeeValue{Currency: CurrencyUSDT, Value: decimal.NewFromInt(1)},
		Limit:   &FeeValue{Currency: CurrencyUSDT, Value: decimal.NewFromInt(25)},
		Fix:     FeeValue{Currency: CurrencyUSDT, Value: decimal.NewFromFloat(2.5)},
		Over:    &FeeValue{Currency: "percent", Value: decimal.NewFromInt(5)},
	},
}

var digiSwapSchedules = map[string]FeeSchedule{
	CurrencyTRX: {
		Minimum: FeeValue{Currency: CurrencyTRX, Value: decimal.NewFromInt(2)},
		Fix:     FeeValue{Currency: CurrencyIRT, Value: decimal.NewFromInt(15000)},
	},
}

var gateways = map[int]Gateway{
	GatewayWeSwap:   {ID: GatewayWeSwap, Name: "WESWAP", Schedules: weSwapSchedules},
	GatewayDigiSwap: {ID: GatewayDigiSwap, Name: "DIGISWAP", Schedules: digiSwapSchedules},
	GatewayChangeTo: {ID: GatewayChangeTo, Name: "CHANGETO", Schedules: weSwapSchedules},
}

// GatewayByID looks up a fee-charging gateway.
func GatewayByID(id int) (Gateway, bool) {
	g, ok := gateways[id]
	return g, ok
}

// ScheduleFor returns the gateway's fee schedule for a currency.
func (g Gateway) ScheduleFor(currency string) (FeeSchedule, bool) {
	s, ok := g.Schedules[currency]
	return s, ok
}

// Supports reports whether the gateway quotes the given currency.
func (g Gateway) Supports(currency string) bool {
	_, ok := g.Schedules[currency]
	return ok
}
