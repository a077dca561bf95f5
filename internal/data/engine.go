package data

import (
	"context"
	"sort"
	"sync"

	"atr-stoch-breakout/internal/model"
	"atr-stoch-breakout/internal/service"

	"go.uber.org/zap"
)

// Candle 连接器推送的一根已确认 K 线
type Candle struct {
	Pair      string
	Timeframe string
	Bar       model.PriceBar
}

// Engine 按交易对收集 K 线，只允许按时间顺序追加
type Engine struct {
	mu         sync.RWMutex
	candleChan <-chan Candle
	timeframe  string
	series     map[string]*model.PriceSeries
	onBar      func(pair string)
}

// NewEngine 创建并初始化 Engine
func NewEngine(candleChan <-chan Candle, timeframe string) *Engine {
	return &Engine{
		candleChan: candleChan,
		timeframe:  timeframe,
		series:     make(map[string]*model.PriceSeries),
	}
}

// OnBar 注册新 K 线到达后的回调 (在 Start 的 goroutine 中调用)
func (e *Engine) OnBar(fn func(pair string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onBar = fn
}

// Seed 用历史数据初始化某个交易对
func (e *Engine) Seed(s *model.PriceSeries) error {
	if err := s.Validate(); err != nil {
		return err
	}
	cp := model.NewPriceSeries(s.Pair, s.Timeframe)
	cp.Bars = append(cp.Bars, s.Bars...)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.series[s.Pair] = cp
	return nil
}

// Start 消费 K 线直到通道关闭或 ctx 取消
func (e *Engine) Start(ctx context.Context) {
	service.Logger.Info("Data Engine started, monitoring candle stream...", zap.String("timeframe", e.timeframe))
	for {
		select {
		case <-ctx.Done():
			service.Logger.Info("Data Engine stopped", zap.Error(ctx.Err()))
			return
		case c, ok := <-e.candleChan:
			if !ok {
				service.Logger.Info("Data Engine stopped, candle channel closed")
				return
			}
			e.Add(c)
		}
	}
}

// Add 追加一根 K 线；周期不符、乱序或重复的 K 线会被丢弃并告警
func (e *Engine) Add(c Candle) bool {
	if c.Timeframe != "" && c.Timeframe != e.timeframe {
		service.Logger.Warn("Candle timeframe mismatch, dropped",
			zap.String("pair", c.Pair), zap.String("timeframe", c.Timeframe))
		return false
	}

	e.mu.Lock()
	s, ok := e.series[c.Pair]
	if !ok {
		s = model.NewPriceSeries(c.Pair, e.timeframe)
		e.series[c.Pair] = s
	}
	err := s.Append(c.Bar)
	onBar := e.onBar
	e.mu.Unlock()

	if err != nil {
		service.Logger.Warn("Candle rejected", zap.String("pair", c.Pair), zap.Time("ts", c.Bar.Timestamp), zap.Error(err))
		return false
	}
	if onBar != nil {
		onBar(c.Pair)
	}
	return true
}

// Snapshot 返回某个交易对当前序列的副本
func (e *Engine) Snapshot(pair string) (*model.PriceSeries, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s, ok := e.series[pair]
	if !ok {
		return nil, false
	}
	cp := model.NewPriceSeries(s.Pair, s.Timeframe)
	cp.Bars = append(cp.Bars, s.Bars...)
	return cp, true
}

// Pairs 已收集的交易对，按名称排序
func (e *Engine) Pairs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	pairs := make([]string, 0, len(e.series))
	for p := range e.series {
		pairs = append(pairs, p)
	}
	sort.Strings(pairs)
	return pairs
}
