package model

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bar(minute int, o, h, l, c float64) PriceBar {
	return PriceBar{
		Timestamp: time.Date(2025, 1, 1, 0, minute, 0, 0, time.UTC),
		Open:      o, High: h, Low: l, Close: c, Volume: 1,
	}
}

func TestPriceBarValidate(t *testing.T) {
	assert.NoError(t, bar(0, 100, 101, 99, 100).Validate())
	assert.Error(t, bar(0, 100, 99.5, 99, 100).Validate(), "high below open")
	assert.Error(t, bar(0, 100, 101, 100.5, 101).Validate(), "low above open")
	assert.Error(t, bar(0, math.NaN(), 101, 99, 100).Validate())

	b := bar(0, 100, 101, 99, 100)
	b.Volume = -1
	assert.Error(t, b.Validate())
}

func TestPriceSeriesValidateCollectsAllProblems(t *testing.T) {
	s := NewPriceSeries("ETH/USDT", "15m")
	s.Bars = []PriceBar{
		bar(0, 100, 101, 99, 100),
		bar(15, 100, 99, 98, 100), // high < close
		bar(15, 100, 101, 99, 100), // 时间戳重复
	}
	err := s.Validate()
	require.ErrorIs(t, err, ErrMalformedSeries)
	assert.Contains(t, err.Error(), "bar 1")
	assert.Contains(t, err.Error(), "bar 2")
}

func TestPriceSeriesAppend(t *testing.T) {
	s := NewPriceSeries("ETH/USDT", "15m")
	require.NoError(t, s.Append(bar(0, 100, 101, 99, 100)))
	require.NoError(t, s.Append(bar(15, 100, 101, 99, 100)))

	assert.ErrorIs(t, s.Append(bar(15, 100, 101, 99, 100)), ErrMalformedSeries)
	assert.ErrorIs(t, s.Append(bar(5, 100, 101, 99, 100)), ErrMalformedSeries)
	assert.ErrorIs(t, s.Append(bar(30, 100, 99, 98, 100)), ErrMalformedSeries)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 15, s.LastBar().Timestamp.Minute())
}

func TestPriceSeriesSlice(t *testing.T) {
	s := NewPriceSeries("ETH/USDT", "15m")
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(bar(i*15, 100, 101, 99, 100)))
	}
	view := s.Slice(3)
	assert.Equal(t, 3, view.Len())
	assert.Equal(t, 5, s.Slice(10).Len())
	assert.Equal(t, 0, s.Slice(-1).Len())

	// 视图的容量被截断，追加不会覆盖原序列
	require.NoError(t, view.Append(bar(200, 1, 2, 0.5, 1)))
	assert.Equal(t, 100.0, s.Bars[3].Open)
}

func TestTradeRecordDuration(t *testing.T) {
	r := TradeRecord{OpenTime: time.Unix(0, 0), CloseTime: time.Unix(900, 0)}
	assert.Equal(t, 15*time.Minute, r.Duration())
}
