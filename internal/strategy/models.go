package strategy

import (
	"fmt"
	"time"

	"atr-stoch-breakout/pkg/ta"
)

// 入场被拒绝的原因，仅用于调试日志
const (
	ReasonEntered     = ""
	ReasonInWarmup    = "in_warmup"     // 指标尚未定义或是第一根 K 线
	ReasonBelowEMA    = "below_ema"     // close <= ema
	ReasonStochNotLow = "stoch_not_low" // %K >= 阈值
	ReasonNoBreakout  = "no_breakout"   // close <= 前一根 high
)

// EntrySignal 每根 K 线一条入场判断结果
type EntrySignal struct {
	Index     int
	Timestamp time.Time
	Enter     bool
	Tag       string // 只有 Enter 为 true 时才有值
	Reason    string
}

func (s EntrySignal) String() string {
	if s.Enter {
		return fmt.Sprintf("ENTRY [%d | %s] tag=%s", s.Index, s.Timestamp.UTC().Format(time.RFC3339), s.Tag)
	}
	return fmt.Sprintf("SKIP [%d | %s] reason=%s", s.Index, s.Timestamp.UTC().Format(time.RFC3339), s.Reason)
}

// ParameterSet 一次运行选定的参数组合，运行期间不变
type ParameterSet struct {
	EMAPeriod         int     `mapstructure:"ema_period"`
	StochLowThreshold int     `mapstructure:"stoch_low_threshold"`
	ATRPeriod         int     `mapstructure:"atr_period"`
	TPMultiplier      float64 `mapstructure:"tp_multiplier"`
	SLMultiplier      float64 `mapstructure:"sl_multiplier"`
}

// Indicators 转换为指标计算参数，随机指标固定 14/3/3
func (p ParameterSet) Indicators() ta.IndicatorParams {
	return ta.DefaultIndicatorParams(p.EMAPeriod, p.ATRPeriod)
}

func (p ParameterSet) String() string {
	return fmt.Sprintf("ema=%d stoch_low=%d atr=%d tp=%.1f sl=%.1f",
		p.EMAPeriod, p.StochLowThreshold, p.ATRPeriod, p.TPMultiplier, p.SLMultiplier)
}
