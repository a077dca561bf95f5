package backtest

import (
	"fmt"
	"sort"
	"time"

	"atr-stoch-breakout/internal/model"
)

// CurvePoint 累计收益曲线上的一个点
type CurvePoint struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// Summary 回测结果汇总，没有交易也是合法结果
type Summary struct {
	Trades      int
	Wins        int
	Losses      int
	Draws       int
	TotalProfit float64
	WinRate     float64
	MaxDrawdown float64 // 累计收益曲线从峰值回落的最大绝对值
	ExitReasons map[model.ExitReason]int
}

func (s Summary) String() string {
	return fmt.Sprintf("trades=%d wins=%d losses=%d draws=%d profit=%.4f win_rate=%.2f%% max_dd=%.4f",
		s.Trades, s.Wins, s.Losses, s.Draws, s.TotalProfit, s.WinRate*100, s.MaxDrawdown)
}

// sortedByClose 按平仓时间排序的副本
func sortedByClose(trades []*model.TradeRecord) []*model.TradeRecord {
	out := make([]*model.TradeRecord, len(trades))
	copy(out, trades)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CloseTime.Before(out[j].CloseTime)
	})
	return out
}

// CumulativeProfit profit_abs 按平仓时间顺序的累加
func CumulativeProfit(trades []*model.TradeRecord) []CurvePoint {
	curve := make([]CurvePoint, 0, len(trades))
	var sum float64
	for _, t := range sortedByClose(trades) {
		sum += t.ProfitAbs
		curve = append(curve, CurvePoint{Time: t.CloseTime, Value: sum})
	}
	return curve
}

// Summarize 统计交易记录
func Summarize(trades []*model.TradeRecord) Summary {
	s := Summary{ExitReasons: make(map[model.ExitReason]int)}
	for _, t := range trades {
		s.Trades++
		s.TotalProfit += t.ProfitAbs
		s.ExitReasons[t.ExitReason]++
		switch {
		case t.ProfitAbs > 0:
			s.Wins++
		case t.ProfitAbs < 0:
			s.Losses++
		default:
			s.Draws++
		}
	}
	if s.Trades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Trades)
	}

	var peak float64
	for _, p := range CumulativeProfit(trades) {
		if p.Value > peak {
			peak = p.Value
		}
		if dd := peak - p.Value; dd > s.MaxDrawdown {
			s.MaxDrawdown = dd
		}
	}
	return s
}
