package strategy

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"atr-stoch-breakout/pkg/ta"
)

// ErrNoAnchorAvailable 开仓时刻之前没有可用的 ATR
var ErrNoAnchorAvailable = errors.New("no anchored atr available")

// AnchorATR 返回时间戳 <= openTime 的最后一根 K 线上的 ATR
// 开仓之后的 K 线不参与计算，所以同一笔持仓的锚定值不会随新数据变化
func AnchorATR(frame *ta.IndicatorFrame, openTime time.Time) (float64, error) {
	bars := frame.Series.Bars
	idx := sort.Search(len(bars), func(i int) bool {
		return bars[i].Timestamp.After(openTime)
	}) - 1

	if idx < 0 {
		return 0, fmt.Errorf("%w: open time %s precedes series start", ErrNoAnchorAvailable, openTime.UTC().Format(time.RFC3339))
	}
	atr := frame.ATR[idx]
	if math.IsNaN(atr) {
		return 0, fmt.Errorf("%w: atr undefined at %s", ErrNoAnchorAvailable, bars[idx].Timestamp.UTC().Format(time.RFC3339))
	}
	return atr, nil
}
