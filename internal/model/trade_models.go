package model

import (
	"fmt"
	"time"
)

// EntryTagAtrStochBreakout 入场规则标签
const EntryTagAtrStochBreakout = "atr_stoch_breakout"

// ExitReason 平仓原因
type ExitReason string

const (
	ExitNone       ExitReason = ""
	ExitTakeProfit ExitReason = "tp_atr_mult" // 浮盈达到 tp_multiplier * ATR
	ExitStopLoss   ExitReason = "stop_loss"   // 价格触及 ATR 止损
	ExitForce      ExitReason = "force_exit"  // 回测窗口结束时强制平仓
)

func (r ExitReason) String() string {
	return string(r)
}

// ActionType 定义了信号类型
type ActionType string

const (
	ActionNone  ActionType = "NONE"  // 无操作
	ActionOpen  ActionType = "OPEN"  // 开仓 (只做多)
	ActionClose ActionType = "CLOSE" // 平仓
)

// Signal 是回测器向执行器发出的指令
type Signal struct {
	Pair       string
	Timestamp  time.Time // 触发该信号的 K 线时间
	Action     ActionType
	Price      float64    // 成交价格
	Position   *Position  // ActionOpen 时携带新建的持仓
	ExitReason ExitReason // ActionClose 时的平仓原因
}

func (s Signal) String() string {
	return fmt.Sprintf("SIGNAL [%s | %s] @ %.4f | %s | Reason: %s",
		s.Action, s.Pair, s.Price, s.Timestamp.UTC().Format(time.RFC3339), s.ExitReason)
}

// Position 是一笔持仓的不可变描述
// AnchoredATR 在开仓时确定，之后不再重新计算
type Position struct {
	Pair        string
	OpenTime    time.Time
	OpenPrice   float64
	AnchoredATR float64
	HasAnchor   bool // false 表示开仓时拿不到 ATR，风控使用兜底值
	EntryTag    string
}

// TradeRecord 记录一次完整的开仓和平仓交易，字段名与导出文件保持一致
type TradeRecord struct {
	Pair        string     `json:"pair"`
	OpenTime    time.Time  `json:"open_date"`
	CloseTime   time.Time  `json:"close_date"`
	OpenPrice   float64    `json:"open_rate"`
	ClosePrice  float64    `json:"close_rate"`
	Amount      float64    `json:"amount"`
	ProfitAbs   float64    `json:"profit_abs"`   // 已实现盈亏 (已扣手续费)
	ProfitRatio float64    `json:"profit_ratio"` // ProfitAbs / 开仓名义金额
	Fee         float64    `json:"fee"`          // 总手续费 (开仓 + 平仓)
	ExitReason  ExitReason `json:"exit_reason"`
	EntryTag    string     `json:"enter_tag"`
	AnchoredATR float64    `json:"anchored_atr"`
}

// Duration 持仓时长
func (t TradeRecord) Duration() time.Duration {
	return t.CloseTime.Sub(t.OpenTime)
}
