package strategy

import (
	"errors"

	"atr-stoch-breakout/internal/metrics"
	"atr-stoch-breakout/internal/model"
	"atr-stoch-breakout/pkg/ta"

	"go.uber.org/zap"
)

const (
	StrategyName       = "AtrStochBreakout15m"
	DefaultTimeframe   = "15m"
	StartupCandleCount = 200
)

// AtrStochBreakout 把指标、入场、锚定和风控串成一个策略对象
type AtrStochBreakout struct {
	Params ParameterSet
	Space  *ParameterSpace

	calc      *ta.Calculator
	generator *SignalGenerator
	logger    *zap.SugaredLogger
}

// NewAtrStochBreakout 用选定的参数组合创建策略
func NewAtrStochBreakout(params ParameterSet, logger *zap.SugaredLogger) *AtrStochBreakout {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &AtrStochBreakout{
		Params:    params,
		Space:     NewParameterSpace(),
		calc:      ta.NewCalculator(logger),
		generator: NewSignalGenerator(logger),
		logger:    logger,
	}
}

func (s *AtrStochBreakout) Name() string {
	return StrategyName
}

func (s *AtrStochBreakout) Timeframe() string {
	return DefaultTimeframe
}

func (s *AtrStochBreakout) StartupCandleCount() int {
	return StartupCandleCount
}

// PopulateIndicators 计算 EMA / Stoch / ATR
func (s *AtrStochBreakout) PopulateIndicators(series *model.PriceSeries) (*ta.IndicatorFrame, error) {
	return s.calc.Compute(series, s.Params.Indicators())
}

// EntrySignals 逐根评估入场条件
func (s *AtrStochBreakout) EntrySignals(frame *ta.IndicatorFrame) []EntrySignal {
	return s.generator.GenerateSignals(frame, s.Params)
}

// OpenPosition 在入场信号所在 K 线收盘价开仓，并锁定当时的 ATR
// 拿不到 ATR 时仍然开仓，风控退回到兜底止损
func (s *AtrStochBreakout) OpenPosition(frame *ta.IndicatorFrame, signal EntrySignal) model.Position {
	bar := frame.Series.Bars[signal.Index]
	pos := model.Position{
		Pair:      frame.Series.Pair,
		OpenTime:  bar.Timestamp,
		OpenPrice: bar.Close,
		EntryTag:  signal.Tag,
	}

	atr, err := AnchorATR(frame, pos.OpenTime)
	switch {
	case err == nil:
		pos.AnchoredATR = atr
		pos.HasAnchor = true
	case errors.Is(err, ErrNoAnchorAvailable):
		metrics.AnchorFallbacks.WithLabelValues(pos.Pair).Inc()
		s.logger.Warnw("no anchored atr, using fallback stop loss",
			"pair", pos.Pair,
			"open_time", pos.OpenTime,
			"fallback", DefaultStopLoss,
			"error", err,
		)
	}
	return pos
}

// StopLoss 持仓的止损比例 (<= 0)
func (s *AtrStochBreakout) StopLoss(pos model.Position) float64 {
	return NewRiskLevels(pos, s.Params).StopLossFraction()
}

// Exit 达到止盈线时返回 tp_atr_mult，否则返回空
func (s *AtrStochBreakout) Exit(pos model.Position, currentProfit float64) model.ExitReason {
	if NewRiskLevels(pos, s.Params).TakeProfitReached(currentProfit) {
		return model.ExitTakeProfit
	}
	return model.ExitNone
}
