package entities

import "github.com/shopspring/decimal"

// FeeValue is an amount tagged with the currency it is denominated in.
type FeeValue struct {
	Currency string
	Value    decimal.Decimal
}

// ExtraFee is an optional percentage surcharge capped at Max.
type ExtraFee struct {
	Percent decimal.Decimal
	Max     decimal.Decimal
}

// FeeSchedule describes how a gateway charges for one crypto currency.
//
// A nil Limit means the schedule is the always-fixed variant: the fee is
// Fix.Value regardless of the amount. When Limit is set, amounts at or above
// it are charged Over percent of the running total instead of the fixed fee.
type FeeSchedule struct {
	Minimum FeeValue
	Fix     FeeValue
	Limit   *FeeValue
	Over    *FeeValue
	Extra   *ExtraFee
}

// Tiered reports whether the schedule switches to a percentage above a limit.
func (s FeeSchedule) Tiered() bool {
	return s.Limit != nil
}
