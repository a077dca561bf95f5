package backtest

import (
	"context"
	"testing"
	"time"

	"atr-stoch-breakout/internal/model"
	"atr-stoch-breakout/internal/strategy"
	"atr-stoch-breakout/pkg/ta"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jump = 240

var t0 = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func barTime(i int) time.Time {
	return t0.Add(time.Duration(i) * 15 * time.Minute)
}

// scenario 在 jump 处入场 (开仓价 110，锚定 ATR 4.3851)，after 可以改写 jump 之后的 K 线
func scenario(pair string, n int, after map[int]model.PriceBar) *model.PriceSeries {
	s := model.NewPriceSeries(pair, "15m")
	for i := 0; i < n; i++ {
		b := model.PriceBar{Timestamp: barTime(i), Open: 100, High: 101, Low: 99, Close: 99, Volume: 5}
		switch {
		case i == jump-3:
			b.Open, b.High = 99, 120
		case i == jump:
			b.Open, b.High, b.Close = 99, 111, 110
		case i > jump:
			b.Open, b.High, b.Low, b.Close = 110, 111, 109, 110
			if o, ok := after[i]; ok {
				o.Timestamp = b.Timestamp
				b = o
			}
		}
		s.Bars = append(s.Bars, b)
	}
	return s
}

func newRunner(t *testing.T, cfg Config) *Runner {
	t.Helper()
	if cfg.StakeAmount == 0 {
		cfg.StakeAmount = 110
	}
	r, err := NewRunner(strategy.NewAtrStochBreakout(strategy.NewParameterSpace().Defaults(), nil), cfg, nil)
	require.NoError(t, err)
	return r
}

const stopPrice = 110 * (1 - 1.5*4.3851/110)

func TestRunForceExit(t *testing.T) {
	res, err := newRunner(t, Config{}).Run(context.Background(), scenario("BTC/USDT", 250, nil))
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)

	tr := res.Trades[0]
	assert.Equal(t, barTime(jump), tr.OpenTime)
	assert.Equal(t, barTime(249), tr.CloseTime)
	assert.Equal(t, 110.0, tr.OpenPrice)
	assert.Equal(t, 110.0, tr.ClosePrice)
	assert.Equal(t, model.ExitForce, tr.ExitReason)
	assert.Equal(t, model.EntryTagAtrStochBreakout, tr.EntryTag)
	assert.InDelta(t, 4.3851, tr.AnchoredATR, 1e-9)
	assert.Equal(t, 1, res.Summary.Draws)
	assert.Equal(t, 1, res.Signals)
	assert.NotEmpty(t, res.RunID)
}

func TestRunStopLoss(t *testing.T) {
	series := scenario("BTC/USDT", 250, map[int]model.PriceBar{
		jump + 2: {Open: 110, High: 111, Low: 100, Close: 105},
	})
	res, err := newRunner(t, Config{}).Run(context.Background(), series)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)

	tr := res.Trades[0]
	assert.Equal(t, model.ExitStopLoss, tr.ExitReason)
	assert.Equal(t, barTime(jump+2), tr.CloseTime)
	assert.InDelta(t, stopPrice, tr.ClosePrice, 1e-9)
	assert.InDelta(t, 103.42235, tr.ClosePrice, 1e-5)
	assert.Less(t, tr.ProfitAbs, 0.0)
}

func TestRunStopLossGapFillsAtOpen(t *testing.T) {
	series := scenario("BTC/USDT", 250, map[int]model.PriceBar{
		jump + 2: {Open: 100, High: 101, Low: 99, Close: 100},
	})
	res, err := newRunner(t, Config{}).Run(context.Background(), series)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, model.ExitStopLoss, res.Trades[0].ExitReason)
	assert.Equal(t, 100.0, res.Trades[0].ClosePrice)
}

func TestRunTakeProfit(t *testing.T) {
	series := scenario("BTC/USDT", 250, map[int]model.PriceBar{
		jump + 2: {Open: 110, High: 125, Low: 109, Close: 124},
	})
	res, err := newRunner(t, Config{FeeRate: 0.001}).Run(context.Background(), series)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)

	tr := res.Trades[0]
	assert.Equal(t, model.ExitTakeProfit, tr.ExitReason)
	assert.Equal(t, 124.0, tr.ClosePrice)
	assert.InDelta(t, 0.11+0.124, tr.Fee, 1e-9)
	assert.InDelta(t, 14-0.234, tr.ProfitAbs, 1e-9)
	assert.Equal(t, 1, res.Summary.Wins)
}

func TestRunStopCheckedBeforeTakeProfit(t *testing.T) {
	series := scenario("BTC/USDT", 250, map[int]model.PriceBar{
		jump + 2: {Open: 110, High: 125, Low: 100, Close: 124},
	})
	res, err := newRunner(t, Config{}).Run(context.Background(), series)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, model.ExitStopLoss, res.Trades[0].ExitReason)
}

func TestRunTimerange(t *testing.T) {
	series := scenario("BTC/USDT", 250, nil)

	res, err := newRunner(t, Config{Timerange: Timerange{Start: barTime(jump + 1)}}).Run(context.Background(), series)
	require.NoError(t, err)
	assert.Empty(t, res.Trades)
	assert.Equal(t, 0, res.Summary.Trades)

	res, err = newRunner(t, Config{Timerange: Timerange{End: barTime(jump + 3)}}).Run(context.Background(), series)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, model.ExitForce, res.Trades[0].ExitReason)
	assert.Equal(t, barTime(jump+3), res.Trades[0].CloseTime)

	// 起点早于启动期时从第 200 根开始
	res, err = newRunner(t, Config{Timerange: Timerange{Start: barTime(10)}}).Run(context.Background(), series)
	require.NoError(t, err)
	assert.Len(t, res.Trades, 1)
}

func TestRunInsufficientHistory(t *testing.T) {
	s := model.NewPriceSeries("BTC/USDT", "15m")
	for i := 0; i < 150; i++ {
		s.Bars = append(s.Bars, model.PriceBar{Timestamp: barTime(i), Open: 100, High: 101, Low: 99, Close: 99})
	}
	_, err := newRunner(t, Config{}).Run(context.Background(), s)
	assert.ErrorIs(t, err, ta.ErrInsufficientHistory)

	_, err = newRunner(t, Config{Timerange: Timerange{End: barTime(100)}}).Run(context.Background(), scenario("BTC/USDT", 250, nil))
	assert.ErrorIs(t, err, ta.ErrInsufficientHistory)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newRunner(t, Config{}).Run(ctx, scenario("BTC/USDT", 250, nil))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunPairs(t *testing.T) {
	r := newRunner(t, Config{})
	results, err := r.RunPairs(context.Background(), []*model.PriceSeries{
		scenario("BTC/USDT", 250, nil),
		scenario("ETH/USDT", 250, map[int]model.PriceBar{
			jump + 2: {Open: 110, High: 111, Low: 100, Close: 105},
		}),
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "BTC/USDT", results[0].Pair)
	assert.Equal(t, "ETH/USDT", results[1].Pair)
	assert.NotEqual(t, results[0].RunID, results[1].RunID)

	all := AllTrades(results)
	require.Len(t, all, 2)
	assert.Equal(t, "ETH/USDT", all[0].Pair) // 先平仓的排在前面

	bad := scenario("SOL/USDT", 250, nil)
	bad.Bars[10].Timestamp = bad.Bars[9].Timestamp
	_, err = r.RunPairs(context.Background(), []*model.PriceSeries{scenario("BTC/USDT", 250, nil), bad})
	assert.ErrorIs(t, err, model.ErrMalformedSeries)
}

func TestNewRunnerRejectsShortStartup(t *testing.T) {
	strat := strategy.NewAtrStochBreakout(strategy.NewParameterSpace().Defaults(), nil)

	_, err := NewRunner(strat, Config{StartupCandleCount: 5}, nil)
	assert.ErrorIs(t, err, ErrStartupTooShort)
	_, err = NewRunner(strat, Config{StartupCandleCount: 79}, nil)
	assert.ErrorIs(t, err, ErrStartupTooShort)

	r, err := NewRunner(strat, Config{StartupCandleCount: 80}, nil)
	require.NoError(t, err)
	assert.Equal(t, 80, r.cfg.StartupCandleCount)

	r, err = NewRunner(strat, Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 200, r.cfg.StartupCandleCount)
}

// rebreak 第二次突破所在的 K 线
const rebreak = jump + 20

// secondBreakout jump 之后收于 109 横盘，rebreak-3 冲高到 130 让 %K 保持低位，rebreak 处再次突破
func secondBreakout(b model.PriceBar) *model.PriceSeries {
	after := make(map[int]model.PriceBar)
	for i := jump + 1; i < 270; i++ {
		after[i] = model.PriceBar{Open: 110, High: 111, Low: 109, Close: 109}
	}
	after[rebreak-3] = model.PriceBar{Open: 110, High: 130, Low: 109, Close: 109}
	after[rebreak] = b
	return scenario("BTC/USDT", 270, after)
}

func TestRunOnePositionPerPair(t *testing.T) {
	series := secondBreakout(model.PriceBar{Open: 110, High: 112.5, Low: 110, Close: 112})
	res, err := newRunner(t, Config{InitialCapital: 1000}).Run(context.Background(), series)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Signals)
	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	assert.Equal(t, barTime(jump), tr.OpenTime)
	assert.Equal(t, barTime(269), tr.CloseTime)
	assert.Equal(t, model.ExitForce, tr.ExitReason)
	assert.Equal(t, 109.0, tr.ClosePrice)

	// 净值：1000 + (109 - 110) * 1；最高净值出现在 rebreak 收盘 112
	assert.InDelta(t, 999, res.FinalEquity, 1e-9)
	assert.InDelta(t, 1002, res.MaxEquity, 1e-9)
}

func TestRunReentersOnStopBar(t *testing.T) {
	series := secondBreakout(model.PriceBar{Open: 110, High: 112.5, Low: 103, Close: 112})
	res, err := newRunner(t, Config{}).Run(context.Background(), series)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Signals)
	require.Len(t, res.Trades, 2)

	first, second := res.Trades[0], res.Trades[1]
	assert.Equal(t, model.ExitStopLoss, first.ExitReason)
	assert.Equal(t, barTime(rebreak), first.CloseTime)
	assert.InDelta(t, stopPrice, first.ClosePrice, 1e-9)

	assert.Equal(t, barTime(rebreak), second.OpenTime)
	assert.Equal(t, 112.0, second.OpenPrice)
	assert.Greater(t, second.AnchoredATR, first.AnchoredATR)
	assert.Equal(t, model.ExitForce, second.ExitReason)
	assert.Equal(t, 109.0, second.ClosePrice)
}
