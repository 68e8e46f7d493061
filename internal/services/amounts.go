package services

import (
	"bridge-backend/internal/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ComputeAmounts splits a deposit into the claimable amount and the fee for
// a token pair. The fee is taken on the source side; the conversion ratio
// then maps the remainder into destination units, rounded to the
// destination token's allowed precision.
func ComputeAmounts(pair *models.TokenPair, deposit decimal.Decimal) (claim, fee decimal.Decimal) {
	fee = deposit.Mul(pair.FeePercentage).Div(hundred)
	claim = deposit.Sub(fee)
	if pair.ConversionRatio != nil {
		claim = claim.Mul(*pair.ConversionRatio)
	}
	if pair.ToToken.AllowedDecimal > 0 {
		claim = claim.RoundDown(pair.ToToken.AllowedDecimal)
	}
	return claim, fee
}
