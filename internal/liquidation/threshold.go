package liquidation

import (
	"lv-marginledger/internal/model"

	"github.com/shopspring/decimal"
)

// ShouldClose reports whether an active position hits its take-profit or
// stop-loss at the live price. Both thresholds are scaled by volume and by
// the live price itself.
func ShouldClose(p model.Position, live decimal.Decimal) bool {
	profit := live.Sub(p.OpenPrice).Mul(p.Volume)
	loss := p.OpenPrice.Sub(live).Mul(p.Volume)
	if profit.GreaterThanOrEqual(p.TakeProfit.Mul(p.Volume).Mul(live)) {
		return true
	}
	return loss.GreaterThanOrEqual(p.StopLoss.Mul(p.Volume).Mul(live))
}
