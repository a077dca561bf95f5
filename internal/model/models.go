package model

import (
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/multierr"
)

// ErrMalformedSeries 表示 K 线序列结构不合法 (时间戳非严格递增或 OHLC 关系错误)
var ErrMalformedSeries = errors.New("malformed price series")

// PriceBar 代表一根已完成的 OHLCV K 线
type PriceBar struct {
	Timestamp time.Time // K 线起始时间
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Validate 检查单根 K 线的数值关系
func (b PriceBar) Validate() error {
	var err error
	fields := []struct {
		name string
		v    float64
	}{{"open", b.Open}, {"high", b.High}, {"low", b.Low}, {"close", b.Close}, {"volume", b.Volume}}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			err = multierr.Append(err, fmt.Errorf("%s is not a finite number", f.name))
		}
	}
	if err != nil {
		return err
	}
	if b.Volume < 0 {
		err = multierr.Append(err, fmt.Errorf("negative volume %.8f", b.Volume))
	}
	if b.High < math.Max(b.Open, b.Close) {
		err = multierr.Append(err, fmt.Errorf("high %.8f below max(open, close)", b.High))
	}
	if b.Low > math.Min(b.Open, b.Close) {
		err = multierr.Append(err, fmt.Errorf("low %.8f above min(open, close)", b.Low))
	}
	return err
}

// PriceSeries 是某个 (交易对, 周期) 的有序 K 线序列
// 单次评估内视为不可变，跨评估只允许追加
type PriceSeries struct {
	Pair      string
	Timeframe string
	Bars      []PriceBar
}

// NewPriceSeries 创建一个空序列
func NewPriceSeries(pair, timeframe string) *PriceSeries {
	return &PriceSeries{
		Pair:      pair,
		Timeframe: timeframe,
		Bars:      make([]PriceBar, 0, 256),
	}
}

func (s *PriceSeries) Len() int {
	return len(s.Bars)
}

// LastBar 返回最后一根 K 线，空序列返回 nil
func (s *PriceSeries) LastBar() *PriceBar {
	if len(s.Bars) == 0 {
		return nil
	}
	return &s.Bars[len(s.Bars)-1]
}

// Validate 收集序列中所有结构性问题，返回包装了 ErrMalformedSeries 的错误
func (s *PriceSeries) Validate() error {
	var errs error
	for i, b := range s.Bars {
		if err := b.Validate(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("bar %d (%s): %w", i, b.Timestamp.UTC().Format(time.RFC3339), err))
		}
		if i > 0 && !b.Timestamp.After(s.Bars[i-1].Timestamp) {
			errs = multierr.Append(errs, fmt.Errorf("bar %d: timestamp %s does not strictly increase",
				i, b.Timestamp.UTC().Format(time.RFC3339)))
		}
	}
	if errs != nil {
		return fmt.Errorf("%w %s/%s: %v", ErrMalformedSeries, s.Pair, s.Timeframe, errs)
	}
	return nil
}

// Append 追加一根新 K 线；乱序、重复时间戳或非法 OHLC 都会被拒绝
func (s *PriceSeries) Append(bar PriceBar) error {
	if err := bar.Validate(); err != nil {
		return fmt.Errorf("%w %s/%s: %v", ErrMalformedSeries, s.Pair, s.Timeframe, err)
	}
	if last := s.LastBar(); last != nil && !bar.Timestamp.After(last.Timestamp) {
		return fmt.Errorf("%w %s/%s: bar at %s is not after last bar at %s", ErrMalformedSeries,
			s.Pair, s.Timeframe, bar.Timestamp.UTC().Format(time.RFC3339), last.Timestamp.UTC().Format(time.RFC3339))
	}
	s.Bars = append(s.Bars, bar)
	return nil
}

// Slice 返回 [0, n) 的视图，用于在同一序列上复现"只看到 n 根 K 线"的评估
func (s *PriceSeries) Slice(n int) *PriceSeries {
	if n > len(s.Bars) {
		n = len(s.Bars)
	}
	if n < 0 {
		n = 0
	}
	return &PriceSeries{Pair: s.Pair, Timeframe: s.Timeframe, Bars: s.Bars[:n:n]}
}

// Columns 拆分为 talib 需要的列切片
func (s *PriceSeries) Columns() (open, high, low, close, volume []float64) {
	n := len(s.Bars)
	open = make([]float64, n)
	high = make([]float64, n)
	low = make([]float64, n)
	close = make([]float64, n)
	volume = make([]float64, n)
	for i, b := range s.Bars {
		open[i] = b.Open
		high[i] = b.High
		low[i] = b.Low
		close[i] = b.Close
		volume[i] = b.Volume
	}
	return
}
