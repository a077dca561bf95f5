package executor

import (
	"context"
	"testing"
	"time"

	"atr-stoch-breakout/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSignal(pair string, at time.Time, price float64) model.Signal {
	return model.Signal{
		Pair:      pair,
		Timestamp: at,
		Action:    model.ActionOpen,
		Price:     price,
		Position: &model.Position{
			Pair: pair, OpenTime: at, OpenPrice: price,
			AnchoredATR: 2, HasAnchor: true, EntryTag: model.EntryTagAtrStochBreakout,
		},
	}
}

func closeSignal(pair string, at time.Time, price float64, reason model.ExitReason) model.Signal {
	return model.Signal{Pair: pair, Timestamp: at, Action: model.ActionClose, Price: price, ExitReason: reason}
}

func TestSimulatorRoundTrip(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulatorExecutor(&SimulatorConfig{InitialCapital: 1000, StakeAmount: 100, FeeRate: 0.001}, nil)
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, sim.ExecuteSignal(ctx, openSignal("BTC/USDT", t0, 100)))
	pos, err := sim.GetCurrentPosition(ctx, "BTC/USDT")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, 100.0, pos.OpenPrice)

	sim.UpdatePrice("BTC/USDT", 120)
	equity, _ := sim.GetBalance(ctx)
	assert.InDelta(t, 1000-0.1+20, equity, 1e-9)

	require.NoError(t, sim.ExecuteSignal(ctx, closeSignal("BTC/USDT", t0.Add(time.Hour), 110, model.ExitTakeProfit)))
	pos, err = sim.GetCurrentPosition(ctx, "BTC/USDT")
	require.NoError(t, err)
	assert.Nil(t, pos)

	records, err := sim.GetTradeHistory()
	require.NoError(t, err)
	require.Len(t, records, 1)
	r := records[0]
	assert.Equal(t, 1.0, r.Amount)
	assert.InDelta(t, 0.1+0.11, r.Fee, 1e-12)
	assert.InDelta(t, 10-0.21, r.ProfitAbs, 1e-9)
	assert.InDelta(t, (10-0.21)/100, r.ProfitRatio, 1e-9)
	assert.Equal(t, model.ExitTakeProfit, r.ExitReason)
	assert.Equal(t, model.EntryTagAtrStochBreakout, r.EntryTag)
	assert.Equal(t, time.Hour, r.Duration())

	equity, _ = sim.GetBalance(ctx)
	assert.InDelta(t, 1000+10-0.21, equity, 1e-9)
	assert.InDelta(t, 1000-0.1+20, sim.GetMaxEquity(), 1e-9)
}

func TestSimulatorOnePositionPerPair(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulatorExecutor(&SimulatorConfig{InitialCapital: 1000, StakeAmount: 100}, nil)
	t0 := time.Now()

	require.NoError(t, sim.ExecuteSignal(ctx, openSignal("BTC/USDT", t0, 100)))
	assert.ErrorIs(t, sim.ExecuteSignal(ctx, openSignal("BTC/USDT", t0, 101)), ErrPositionExists)
	require.NoError(t, sim.ExecuteSignal(ctx, openSignal("ETH/USDT", t0, 10)))

	assert.ErrorIs(t, sim.ExecuteSignal(ctx, closeSignal("SOL/USDT", t0, 10, model.ExitForce)), ErrNoPosition)
}

func TestSimulatorHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sim := NewSimulatorExecutor(&SimulatorConfig{InitialCapital: 1000, StakeAmount: 100}, nil)
	assert.ErrorIs(t, sim.ExecuteSignal(ctx, openSignal("BTC/USDT", time.Now(), 100)), context.Canceled)
}
