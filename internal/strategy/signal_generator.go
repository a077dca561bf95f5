package strategy

import (
	"atr-stoch-breakout/internal/model"
	"atr-stoch-breakout/pkg/ta"

	"go.uber.org/zap"
)

// SignalGenerator 根据指标帧逐根判断是否入场
// 入场条件是三者同时成立：close > ema，%K < 阈值，close 突破前一根 K 线的 high
type SignalGenerator struct {
	logger *zap.SugaredLogger
}

// NewSignalGenerator 初始化信号生成器
func NewSignalGenerator(logger *zap.SugaredLogger) *SignalGenerator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SignalGenerator{logger: logger}
}

// GenerateSignals 为帧中的每一根 K 线返回一条 EntrySignal
// 指标未定义的 K 线 (以及第一根) 永远不会被标记为入场
func (sg *SignalGenerator) GenerateSignals(frame *ta.IndicatorFrame, params ParameterSet) []EntrySignal {
	bars := frame.Series.Bars
	signals := make([]EntrySignal, len(bars))
	threshold := float64(params.StochLowThreshold)

	for i, bar := range bars {
		sig := EntrySignal{Index: i, Timestamp: bar.Timestamp}
		sig.Reason = evaluateBar(frame, bars, i, threshold)
		if sig.Reason == ReasonEntered {
			sig.Enter = true
			sig.Tag = model.EntryTagAtrStochBreakout
			sg.logger.Debugw("entry condition met",
				"pair", frame.Series.Pair,
				"time", bar.Timestamp,
				"close", bar.Close,
				"ema", frame.EMA[i],
				"stoch_k", frame.StochK[i],
				"prev_high", bars[i-1].High,
			)
		}
		signals[i] = sig
	}
	return signals
}

func evaluateBar(frame *ta.IndicatorFrame, bars []model.PriceBar, i int, threshold float64) string {
	if i == 0 || !frame.Defined(i) {
		return ReasonInWarmup
	}
	closePrice := bars[i].Close
	if !(closePrice > frame.EMA[i]) {
		return ReasonBelowEMA
	}
	if !(frame.StochK[i] < threshold) {
		return ReasonStochNotLow
	}
	if !(closePrice > bars[i-1].High) {
		return ReasonNoBreakout
	}
	return ReasonEntered
}

// EntryIndices 只保留入场的 K 线下标
func EntryIndices(signals []EntrySignal) []int {
	var out []int
	for _, s := range signals {
		if s.Enter {
			out = append(out, s.Index)
		}
	}
	return out
}
