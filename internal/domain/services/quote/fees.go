package quote

import (
	"github.com/shopspring/decimal"

	"github.com/trxgate/trxgate/internal/domain/entities"
	domainerrors "github.com/trxgate/trxgate/internal/domain/errors"
)

// feeConvergencePasses is how many times the fee is recomputed against the
// amount net of the previous pass's fee. Four passes settle the fixed-point
// for every published schedule; the count is part of the fee contract, since
// changing it changes quoted fees.
const feeConvergencePasses = 4

var hundred = decimal.NewFromInt(100)

// CalcFee computes the gateway fee for a fiat amount in IRT. rate is the IRT
// price of one crypto unit, used to convert limits denominated in the crypto
// currency. The result is rounded to the nearest 10 IRT.
func CalcFee(amount decimal.Decimal, schedule entities.FeeSchedule, rate decimal.Decimal) decimal.Decimal {
	var limit decimal.Decimal
	if schedule.Limit != nil {
		limit = schedule.Limit.Value
		if schedule.Limit.Currency != entities.CurrencyIRT {
			limit = limit.Mul(rate)
		}
	}

	total := amount
	var fee decimal.Decimal

	for i := 0; i < feeConvergencePasses; i++ {
		switch {
		case schedule.Limit == nil:
			fee = schedule.Fix.Value
		case total.LessThan(limit):
			if schedule.Fix.Currency == entities.CurrencyIRT {
				fee = schedule.Fix.Value
			} else {
				fee = total.Mul(schedule.Fix.Value)
			}
		default:
			fee = total.Mul(schedule.Over.Value).Div(hundred)
		}
		total = amount.Sub(fee)
	}

	if schedule.Extra != nil {
		extra := total.Mul(schedule.Extra.Percent).Div(hundred)
		if extra.GreaterThan(schedule.Extra.Max) {
			extra = schedule.Extra.Max
		}
		fee = fee.Add(extra)
	}

	return fee.Round(-1)
}

// ConvertToCrypto converts a net fiat amount to crypto at the given rate,
// rounded to the currency's fixed precision. Amounts under the schedule
// minimum are rejected rather than quoted.
func ConvertToCrypto(net, rate decimal.Decimal, schedule entities.FeeSchedule, currency string) (decimal.Decimal, error) {
	crypto := net.Div(rate)
	if crypto.LessThan(schedule.Minimum.Value) {
		return decimal.Zero, domainerrors.ErrBelowMinimum
	}

	if precision, ok := entities.PrecisionFor(currency); ok {
		crypto = crypto.Round(precision)
	}
	return crypto, nil
}
