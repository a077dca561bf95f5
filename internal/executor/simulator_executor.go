package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"atr-stoch-breakout/internal/model"

	"go.uber.org/zap"
)

var (
	ErrPositionExists = errors.New("position already open for pair")
	ErrNoPosition     = errors.New("no open position for pair")
)

var _ Executor = (*SimulatorExecutor)(nil)

// SimulatorConfig 模拟器配置
type SimulatorConfig struct {
	InitialCapital float64 // 初始资金
	StakeAmount    float64 // 每笔交易固定投入的计价货币金额
	FeeRate        float64 // 交易手续费率 (例如 0.001)，开平仓各收一次
}

// SimulatorPosition 模拟器内部的持仓
type SimulatorPosition struct {
	model.Position
	Amount    float64 // 持仓数量 = StakeAmount / OpenPrice
	EntryFee  float64 // 开仓手续费
	LastPrice float64 // 最近一次标记价格
}

// SimulatorExecutor 实现了 Executor 接口，每个交易对最多一笔持仓
type SimulatorExecutor struct {
	cfg    *SimulatorConfig
	logger *zap.SugaredLogger

	mu sync.RWMutex // 保护账户状态

	balance   float64 // 账户余额 (包含已实现盈亏)
	equity    float64 // 账户净值 = 余额 + 浮动盈亏
	maxEquity float64 // 历史最高账户净值

	positions    map[string]*SimulatorPosition
	tradeHistory []*model.TradeRecord // 存储所有已平仓的交易记录
}

// NewSimulatorExecutor 构造函数
func NewSimulatorExecutor(cfg *SimulatorConfig, logger *zap.SugaredLogger) *SimulatorExecutor {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SimulatorExecutor{
		cfg:       cfg,
		logger:    logger,
		balance:   cfg.InitialCapital,
		equity:    cfg.InitialCapital,
		maxEquity: cfg.InitialCapital, // 初始化时，最大净值 = 初始资金
		positions: make(map[string]*SimulatorPosition),
	}
}

// ExecuteSignal 模拟成交
func (e *SimulatorExecutor) ExecuteSignal(ctx context.Context, signal model.Signal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	switch signal.Action {
	case model.ActionOpen:
		return e.open(signal)
	case model.ActionClose:
		return e.close(signal)
	}
	return nil
}

func (e *SimulatorExecutor) open(signal model.Signal) error {
	if _, ok := e.positions[signal.Pair]; ok {
		return fmt.Errorf("%w: %s", ErrPositionExists, signal.Pair)
	}
	if signal.Position == nil || signal.Price <= 0 {
		return fmt.Errorf("open signal for %s needs a position and a positive price", signal.Pair)
	}

	amount := e.cfg.StakeAmount / signal.Price
	fee := e.cfg.StakeAmount * e.cfg.FeeRate
	e.balance -= fee

	e.positions[signal.Pair] = &SimulatorPosition{
		Position:  *signal.Position,
		Amount:    amount,
		EntryFee:  fee,
		LastPrice: signal.Price,
	}
	e.updateEquity()

	e.logger.Infow("Sim ORDER FILLED (OPEN)",
		"pair", signal.Pair,
		"amount", amount,
		"price", signal.Price,
		"fee", fee,
		"anchored_atr", signal.Position.AnchoredATR,
		"has_anchor", signal.Position.HasAnchor,
	)
	return nil
}

func (e *SimulatorExecutor) close(signal model.Signal) error {
	pos, ok := e.positions[signal.Pair]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoPosition, signal.Pair)
	}

	// 1. 计算平仓盈亏 (PnL) 和手续费
	pnl := (signal.Price - pos.OpenPrice) * pos.Amount
	closeFee := pos.Amount * signal.Price * e.cfg.FeeRate
	fees := pos.EntryFee + closeFee
	profit := pnl - fees

	// 2. 构造交易记录
	record := &model.TradeRecord{
		Pair:        pos.Pair,
		OpenTime:    pos.OpenTime,
		CloseTime:   signal.Timestamp,
		OpenPrice:   pos.OpenPrice,
		ClosePrice:  signal.Price,
		Amount:      pos.Amount,
		ProfitAbs:   profit,
		ProfitRatio: profit / (pos.OpenPrice * pos.Amount),
		Fee:         fees,
		ExitReason:  signal.ExitReason,
		EntryTag:    pos.EntryTag,
		AnchoredATR: pos.AnchoredATR,
	}
	e.tradeHistory = append(e.tradeHistory, record)

	// 3. 更新余额，重置持仓 (开仓手续费已在开仓时扣除)
	e.balance += pnl - closeFee
	delete(e.positions, signal.Pair)
	e.updateEquity()

	e.logger.Infow("Sim POSITION CLOSED",
		"pair", signal.Pair,
		"reason", signal.ExitReason.String(),
		"price", signal.Price,
		"profit_abs", profit,
		"balance", e.balance,
	)
	return nil
}

// UpdatePrice 实现 Executor 接口，同时更新最高净值
func (e *SimulatorExecutor) UpdatePrice(pair string, price float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if pos, ok := e.positions[pair]; ok {
		pos.LastPrice = price
	}
	e.updateEquity()
}

// updateEquity 计算浮动盈亏并更新账户净值，调用方持有锁
func (e *SimulatorExecutor) updateEquity() {
	var upl float64
	for _, pos := range e.positions {
		upl += (pos.LastPrice - pos.OpenPrice) * pos.Amount
	}
	e.equity = e.balance + upl
	if e.equity > e.maxEquity {
		e.maxEquity = e.equity
	}
}

// GetTradeHistory 实现 Executor 接口
func (e *SimulatorExecutor) GetTradeHistory() ([]*model.TradeRecord, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	// 返回记录的副本，防止外部修改
	records := make([]*model.TradeRecord, len(e.tradeHistory))
	copy(records, e.tradeHistory)
	return records, nil
}

// GetMaxEquity 返回账户历史上的最高净值
func (e *SimulatorExecutor) GetMaxEquity() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.maxEquity
}

// GetBalance 返回净值 Equity (包含浮动盈亏)
func (e *SimulatorExecutor) GetBalance(ctx context.Context) (float64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.equity, nil
}

// GetCurrentPosition 查询当前持仓
func (e *SimulatorExecutor) GetCurrentPosition(ctx context.Context, pair string) (*model.Position, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	pos, ok := e.positions[pair]
	if !ok {
		return nil, nil
	}
	p := pos.Position
	return &p, nil
}
