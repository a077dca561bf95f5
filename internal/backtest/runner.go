package backtest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"atr-stoch-breakout/internal/executor"
	"atr-stoch-breakout/internal/metrics"
	"atr-stoch-breakout/internal/model"
	"atr-stoch-breakout/internal/strategy"
	"atr-stoch-breakout/pkg/ta"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrStartupTooShort 启动 K 线数少于指标预热所需
var ErrStartupTooShort = errors.New("startup candle count shorter than indicator warm-up")

// Timerange 回测窗口，零值表示不限制
type Timerange struct {
	Start time.Time
	End   time.Time
}

// Config 回测参数
type Config struct {
	InitialCapital     float64
	StakeAmount        float64
	FeeRate            float64
	StartupCandleCount int // 0 表示使用策略自己的值
	Timerange          Timerange
}

// Result 单个交易对的回测结果
type Result struct {
	RunID   string
	Pair    string
	Signals int // 窗口内的入场信号数 (含持仓期间被忽略的)
	Trades  []*model.TradeRecord
	Summary Summary

	FinalEquity float64 // 窗口结束 (强制平仓后) 的账户净值
	MaxEquity   float64 // 回放过程中按收盘价标记的最高净值
}

// Runner 逐根回放 K 线，每个交易对同一时间最多一笔持仓
type Runner struct {
	strategy *strategy.AtrStochBreakout
	cfg      Config
	logger   *zap.SugaredLogger
}

// NewRunner 创建回测器，启动 K 线数不能少于指标预热长度
func NewRunner(s *strategy.AtrStochBreakout, cfg Config, logger *zap.SugaredLogger) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.StartupCandleCount <= 0 {
		cfg.StartupCandleCount = s.StartupCandleCount()
	}
	if need := s.Params.Indicators().WarmupBars(); cfg.StartupCandleCount < need {
		return nil, fmt.Errorf("%w: startup_candle_count=%d, %s needs %d",
			ErrStartupTooShort, cfg.StartupCandleCount, s.Params.String(), need)
	}
	return &Runner{strategy: s, cfg: cfg, logger: logger}, nil
}

func (r *Runner) newExecutor(log *zap.SugaredLogger) executor.Executor {
	return executor.NewSimulatorExecutor(&executor.SimulatorConfig{
		InitialCapital: r.cfg.InitialCapital,
		StakeAmount:    r.cfg.StakeAmount,
		FeeRate:        r.cfg.FeeRate,
	}, log)
}

// window 返回 [first, last] 评估区间
func (r *Runner) window(series *model.PriceSeries) (int, int, error) {
	bars := series.Bars
	first := 0
	if !r.cfg.Timerange.Start.IsZero() {
		first = sort.Search(len(bars), func(i int) bool {
			return !bars[i].Timestamp.Before(r.cfg.Timerange.Start)
		})
	}
	if first < r.cfg.StartupCandleCount {
		first = r.cfg.StartupCandleCount
	}
	last := len(bars) - 1
	if !r.cfg.Timerange.End.IsZero() {
		last = sort.Search(len(bars), func(i int) bool {
			return bars[i].Timestamp.After(r.cfg.Timerange.End)
		}) - 1
	}
	if first >= len(bars) || first > last {
		return 0, 0, fmt.Errorf("%w: %s/%s has %d bars, startup needs %d before the first evaluated bar",
			ta.ErrInsufficientHistory, series.Pair, series.Timeframe, len(bars), r.cfg.StartupCandleCount)
	}
	return first, last, nil
}

// Run 回测单个交易对
func (r *Runner) Run(ctx context.Context, series *model.PriceSeries) (*Result, error) {
	runID := uuid.NewString()
	started := time.Now()
	defer func() {
		metrics.RunDuration.WithLabelValues(series.Pair).Observe(time.Since(started).Seconds())
	}()
	log := r.logger.With("run_id", runID, "pair", series.Pair)

	frame, err := r.strategy.PopulateIndicators(series)
	if err != nil {
		return nil, fmt.Errorf("populate indicators for %s: %w", series.Pair, err)
	}
	first, last, err := r.window(series)
	if err != nil {
		return nil, err
	}
	signals := r.strategy.EntrySignals(frame)

	exec := r.newExecutor(log)

	res := &Result{RunID: runID, Pair: series.Pair}
	bars := series.Bars

	for i := first; i <= last; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bar := bars[i]

		// 持仓以执行器为准
		pos, err := exec.GetCurrentPosition(ctx, series.Pair)
		if err != nil {
			return nil, err
		}
		if pos != nil {
			price, reason := r.checkExit(*pos, bar)
			if reason != model.ExitNone {
				if err := r.closePosition(ctx, exec, *pos, bar.Timestamp, price, reason); err != nil {
					return nil, err
				}
				pos = nil
			}
		}
		exec.UpdatePrice(series.Pair, bar.Close)

		if !signals[i].Enter {
			continue
		}
		res.Signals++
		metrics.EntrySignals.WithLabelValues(series.Pair).Inc()
		if pos != nil {
			log.Debugw("entry signal ignored, position open", "time", bar.Timestamp)
			continue
		}
		p := r.strategy.OpenPosition(frame, signals[i])
		err = exec.ExecuteSignal(ctx, model.Signal{
			Pair:      series.Pair,
			Timestamp: bar.Timestamp,
			Action:    model.ActionOpen,
			Price:     p.OpenPrice,
			Position:  &p,
		})
		if err != nil {
			return nil, err
		}
		metrics.PositionsOpen.WithLabelValues(series.Pair).Inc()
	}

	pos, err := exec.GetCurrentPosition(ctx, series.Pair)
	if err != nil {
		return nil, err
	}
	if pos != nil {
		bar := bars[last]
		if err := r.closePosition(ctx, exec, *pos, bar.Timestamp, bar.Close, model.ExitForce); err != nil {
			return nil, err
		}
	}

	if res.Trades, err = exec.GetTradeHistory(); err != nil {
		return nil, err
	}
	if res.FinalEquity, err = exec.GetBalance(ctx); err != nil {
		return nil, err
	}
	res.MaxEquity = exec.GetMaxEquity()
	res.Summary = Summarize(res.Trades)
	log.Infow("backtest finished",
		"bars", last-first+1,
		"signals", res.Signals,
		"summary", res.Summary.String(),
		"final_equity", res.FinalEquity,
		"max_equity", res.MaxEquity,
	)
	return res, nil
}

// checkExit 止损优先于止盈；跳空低开穿过止损价时按开盘价成交
func (r *Runner) checkExit(pos model.Position, bar model.PriceBar) (float64, model.ExitReason) {
	stopPrice := pos.OpenPrice * (1 + r.strategy.StopLoss(pos))
	if bar.Low <= stopPrice {
		return math.Min(stopPrice, bar.Open), model.ExitStopLoss
	}
	if reason := r.strategy.Exit(pos, bar.Close/pos.OpenPrice-1); reason != model.ExitNone {
		return bar.Close, reason
	}
	return 0, model.ExitNone
}

func (r *Runner) closePosition(ctx context.Context, exec executor.Executor, pos model.Position, at time.Time, price float64, reason model.ExitReason) error {
	err := exec.ExecuteSignal(ctx, model.Signal{
		Pair:       pos.Pair,
		Timestamp:  at,
		Action:     model.ActionClose,
		Price:      price,
		ExitReason: reason,
	})
	if err != nil {
		return err
	}
	metrics.TradesClosed.WithLabelValues(pos.Pair, reason.String()).Inc()
	metrics.PositionsOpen.WithLabelValues(pos.Pair).Dec()
	return nil
}

// RunPairs 并发回测多个交易对，任意一个失败则整体返回错误
func (r *Runner) RunPairs(ctx context.Context, series []*model.PriceSeries) ([]*Result, error) {
	results := make([]*Result, len(series))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range series {
		g.Go(func() error {
			res, err := r.Run(gctx, s)
			if err != nil {
				return fmt.Errorf("%s: %w", s.Pair, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// AllTrades 合并多个结果的交易记录，按平仓时间排序
func AllTrades(results []*Result) []*model.TradeRecord {
	var trades []*model.TradeRecord
	for _, res := range results {
		trades = append(trades, res.Trades...)
	}
	return sortedByClose(trades)
}
