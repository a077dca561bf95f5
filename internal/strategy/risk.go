package strategy

import (
	"math"

	"atr-stoch-breakout/internal/model"
)

// DefaultStopLoss 拿不到锚定 ATR 时的兜底止损 (-99%)
const DefaultStopLoss = -0.99

// RiskLevels 基于开仓时锚定 ATR 的止损止盈
type RiskLevels struct {
	OpenPrice    float64
	AnchoredATR  float64
	HasAnchor    bool
	SLMultiplier float64
	TPMultiplier float64
}

// NewRiskLevels 从持仓和参数构建
func NewRiskLevels(pos model.Position, params ParameterSet) RiskLevels {
	return RiskLevels{
		OpenPrice:    pos.OpenPrice,
		AnchoredATR:  pos.AnchoredATR,
		HasAnchor:    pos.HasAnchor,
		SLMultiplier: params.SLMultiplier,
		TPMultiplier: params.TPMultiplier,
	}
}

func (r RiskLevels) usable() bool {
	return r.HasAnchor && r.OpenPrice > 0 && !math.IsNaN(r.AnchoredATR) && !math.IsInf(r.AnchoredATR, 0)
}

// StopLossFraction 止损距离，相对开仓价的比例，恒为负数或零
func (r RiskLevels) StopLossFraction() float64 {
	if !r.usable() {
		return DefaultStopLoss
	}
	return -(r.SLMultiplier * r.AnchoredATR / r.OpenPrice)
}

// StopLossPrice 止损价
func (r RiskLevels) StopLossPrice() float64 {
	return r.OpenPrice * (1 + r.StopLossFraction())
}

// TakeProfitFraction 止盈所需的收益率；锚定值不可用时第二个返回值为 false
func (r RiskLevels) TakeProfitFraction() (float64, bool) {
	if !r.usable() {
		return 0, false
	}
	return r.TPMultiplier * r.AnchoredATR / r.OpenPrice, true
}

// TakeProfitReached 当前收益率是否达到止盈线
func (r RiskLevels) TakeProfitReached(currentProfit float64) bool {
	target, ok := r.TakeProfitFraction()
	if !ok {
		return false
	}
	return currentProfit >= target
}
