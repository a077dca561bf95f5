package strategy

import (
	"time"

	"atr-stoch-breakout/internal/model"
)

var t0 = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func barTime(i int) time.Time {
	return t0.Add(time.Duration(i) * 15 * time.Minute)
}

// flatBar 区间 [99, 101]，收在最低点：%K = 0，EMA 恒为 99，真实波幅 2
func flatBar(i int) model.PriceBar {
	return model.PriceBar{Timestamp: barTime(i), Open: 100, High: 101, Low: 99, Close: 99, Volume: 5}
}

// breakoutSeries 构造一个只在 jump 处满足入场条件的序列
// jump-3 是一根长上影线，把 14 根窗口的最高价抬到 120，使得 jump 处 %K 仍然很低
// jump 收在 110，突破前一根 high 101，并站上 EMA
// jump 之后横盘在 [109, 111]，收 110
func breakoutSeries(n, jump int) *model.PriceSeries {
	s := model.NewPriceSeries("BTC/USDT", "15m")
	for i := 0; i < n; i++ {
		var b model.PriceBar
		switch {
		case i == jump-3:
			b = model.PriceBar{Timestamp: barTime(i), Open: 99, High: 120, Low: 99, Close: 99, Volume: 5}
		case i < jump:
			b = flatBar(i)
		case i == jump:
			b = model.PriceBar{Timestamp: barTime(i), Open: 99, High: 111, Low: 99, Close: 110, Volume: 50}
		default:
			b = model.PriceBar{Timestamp: barTime(i), Open: 110, High: 111, Low: 109, Close: 110, Volume: 5}
		}
		s.Bars = append(s.Bars, b)
	}
	return s
}
