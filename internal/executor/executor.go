package executor

import (
	"context"

	"atr-stoch-breakout/internal/model"
)

// Executor 是回测器与持仓簿记之间的通用接口
type Executor interface {
	// 接收开仓/平仓指令并记账
	ExecuteSignal(ctx context.Context, signal model.Signal) error

	// 用最新收盘价标记持仓，更新净值
	UpdatePrice(pair string, price float64)

	// 查询某个交易对的当前持仓，空仓返回 nil
	GetCurrentPosition(ctx context.Context, pair string) (*model.Position, error)

	// 获取账户净值
	GetBalance(ctx context.Context) (float64, error)

	// 返回已完成的交易记录，按平仓顺序
	GetTradeHistory() ([]*model.TradeRecord, error)

	// 返回账户历史上的最高净值
	GetMaxEquity() float64
}
