package ta

import (
	"errors"
	"fmt"
	"math"
	"time"

	"atr-stoch-breakout/internal/model"

	"github.com/markcheno/go-talib"
	"go.uber.org/zap"
)

// ErrInsufficientHistory 序列长度不足以覆盖任何一个指标的预热期
var ErrInsufficientHistory = errors.New("insufficient history")

// 随机指标的固定周期
const (
	DefaultStochK      = 14
	DefaultStochSmooth = 3
	DefaultStochD      = 3
)

// IndicatorParams 指标计算参数
type IndicatorParams struct {
	EMAPeriod   int
	ATRPeriod   int
	StochK      int
	StochSmooth int
	StochD      int
}

// DefaultIndicatorParams 使用给定的 EMA/ATR 周期和固定的 14/3/3 随机指标
func DefaultIndicatorParams(emaPeriod, atrPeriod int) IndicatorParams {
	return IndicatorParams{
		EMAPeriod:   emaPeriod,
		ATRPeriod:   atrPeriod,
		StochK:      DefaultStochK,
		StochSmooth: DefaultStochSmooth,
		StochD:      DefaultStochD,
	}
}

func (p IndicatorParams) validate() error {
	if p.EMAPeriod < 2 || p.ATRPeriod < 2 || p.StochK < 1 || p.StochSmooth < 1 || p.StochD < 1 {
		return fmt.Errorf("invalid indicator params %+v", p)
	}
	return nil
}

// stochWarmup 随机指标 %K/%D 第一个有值的位置 + 1
func (p IndicatorParams) stochWarmup() int {
	return p.StochK + p.StochSmooth + p.StochD - 2
}

// WarmupBars 计算全部指标所需的最少 K 线数量
// EMA 需要 ema_period 根，ATR 需要 atr_period+1 根 (第一根没有前收盘价)，随机指标需要 k+smooth+d-2 根
func (p IndicatorParams) WarmupBars() int {
	n := p.EMAPeriod
	if v := p.ATRPeriod + 1; v > n {
		n = v
	}
	if v := p.stochWarmup(); v > n {
		n = v
	}
	return n
}

// IndicatorFrame 与 PriceSeries 逐根对齐的指标列，未定义的值为 NaN
type IndicatorFrame struct {
	Series *model.PriceSeries
	Params IndicatorParams
	EMA    []float64
	StochK []float64
	StochD []float64
	ATR    []float64
}

// Len 行数，与序列长度一致
func (f *IndicatorFrame) Len() int {
	return len(f.EMA)
}

// Timestamp 第 i 行对应的 K 线时间
func (f *IndicatorFrame) Timestamp(i int) time.Time {
	return f.Series.Bars[i].Timestamp
}

// Defined 入场判断依赖的 EMA、%K、ATR 在第 i 行是否都有值
func (f *IndicatorFrame) Defined(i int) bool {
	if i < 0 || i >= f.Len() {
		return false
	}
	return !math.IsNaN(f.EMA[i]) && !math.IsNaN(f.StochK[i]) && !math.IsNaN(f.ATR[i])
}

// Calculator 基于 go-talib 的指标计算器，不持有任何序列状态
type Calculator struct {
	Logger *zap.SugaredLogger
}

// NewCalculator 初始化技术指标计算器
func NewCalculator(logger *zap.SugaredLogger) *Calculator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Calculator{Logger: logger}
}

// Compute 计算 EMA、Stoch(%K/%D) 和 ATR
// 序列先做结构校验；长度不足时返回 ErrInsufficientHistory，不返回部分结果
func (c *Calculator) Compute(series *model.PriceSeries, params IndicatorParams) (*IndicatorFrame, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	if err := series.Validate(); err != nil {
		return nil, err
	}
	need := params.WarmupBars()
	if series.Len() < need {
		return nil, fmt.Errorf("%w: %s/%s has %d bars, need %d",
			ErrInsufficientHistory, series.Pair, series.Timeframe, series.Len(), need)
	}

	// Columns 返回的是新切片，talib 不会改动原序列
	_, high, low, closes, _ := series.Columns()

	// --- EMA (SMA 作为种子) ---
	ema := talib.Ema(closes, params.EMAPeriod)
	maskWarmup(ema, params.EMAPeriod-1)

	// --- Stoch (%K 平滑和 %D 都用 SMA) ---
	k, d := talib.Stoch(high, low, closes, params.StochK, params.StochSmooth, talib.SMA, params.StochD, talib.SMA)
	maskWarmup(k, params.stochWarmup()-1)
	maskWarmup(d, params.stochWarmup()-1)

	// --- ATR (Wilder 平滑，首值为前 atr_period 个真实波幅的简单平均) ---
	atr := talib.Atr(high, low, closes, params.ATRPeriod)
	maskWarmup(atr, params.ATRPeriod)

	c.Logger.Debugw("indicators computed",
		"pair", series.Pair,
		"bars", series.Len(),
		"ema_period", params.EMAPeriod,
		"atr_period", params.ATRPeriod,
		"last_atr", atr[len(atr)-1],
	)

	return &IndicatorFrame{
		Series: series,
		Params: params,
		EMA:    ema,
		StochK: k,
		StochD: d,
		ATR:    atr,
	}, nil
}

// maskWarmup talib 在预热期输出 0，这里统一替换为 NaN
func maskWarmup(values []float64, n int) {
	for i := 0; i < n && i < len(values); i++ {
		values[i] = math.NaN()
	}
}
