package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"atr-stoch-breakout/internal/data"
	"atr-stoch-breakout/internal/model"
	"atr-stoch-breakout/internal/service"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

// OkxWsData 适用于 Okx V5 的通用响应结构
type OkxWsData struct {
	Arg struct {
		Channel string `json:"channel"`
		InstId  string `json:"instId"`
	} `json:"arg"`
	Data  json.RawMessage `json:"data"` // 延迟解析
	Event string          `json:"event"`
	Code  string          `json:"code"`
	Msg   string          `json:"msg"`
}

// okx candle 数组下标: [ts, o, h, l, c, vol, volCcy, volCcyQuote, confirm]
const (
	candleTs = iota
	candleOpen
	candleHigh
	candleLow
	candleClose
	candleVol
	candleConfirm = 8
)

// 映射 InstId 到 Pair (例如 BTC-USDT -> BTC/USDT)
type InstMap map[string]string

// Connector 订阅 Okx candle 频道，只转发已收盘 (confirm=1) 的 K 线
// 连接断开后按指数退避重连，直到 ctx 取消
type Connector struct {
	wsURL         string
	timeframe     string
	channel       string // 例如 candle15m, candle1H
	instToPair    InstMap
	candleChannel chan data.Candle

	dialer       *websocket.Dialer
	MinBackoff   time.Duration
	MaxBackoff   time.Duration
	PingInterval time.Duration
}

// InstID 交易对转换为 Okx 现货 instId，BTC/USDT -> BTC-USDT
func InstID(pair string) string {
	return strings.ReplaceAll(strings.ToUpper(pair), "/", "-")
}

// okxBar Okx 的周期写法，小时和天用大写
func okxBar(timeframe string) (string, error) {
	d, err := service.ParseIntervalDuration(timeframe)
	if err != nil {
		return "", err
	}
	return strings.NewReplacer("h", "H", "d", "D").Replace(service.FormatInterval(d)), nil
}

// NewConnector 创建连接器
func NewConnector(wsURL, timeframe string, pairs []string) (*Connector, error) {
	bar, err := okxBar(timeframe)
	if err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		return nil, errors.New("connector needs at least one pair")
	}
	instToPair := make(InstMap, len(pairs))
	for _, pair := range pairs {
		instToPair[InstID(pair)] = pair
	}

	service.Logger.Info("Connector initialized", zap.Strings("pairs", pairs), zap.String("channel", "candle"+bar))

	return &Connector{
		wsURL:         wsURL,
		timeframe:     timeframe,
		channel:       "candle" + bar,
		instToPair:    instToPair,
		candleChannel: make(chan data.Candle, 256),
		dialer:        websocket.DefaultDialer,
		MinBackoff:    time.Second,
		MaxBackoff:    time.Minute,
		PingInterval:  25 * time.Second,
	}, nil
}

// GetCandleChannel 供 data.Engine 消费
func (c *Connector) GetCandleChannel() <-chan data.Candle {
	return c.candleChannel
}

// Start 阻塞运行直到 ctx 取消，返回时关闭 K 线通道
func (c *Connector) Start(ctx context.Context) error {
	defer close(c.candleChannel)

	backoff := c.MinBackoff
	for {
		subscribed, err := c.runSession(ctx)
		if ctx.Err() != nil {
			service.Logger.Info("Connector stopped")
			return ctx.Err()
		}
		if subscribed {
			backoff = c.MinBackoff
		}
		service.Logger.Error("WS session ended, reconnecting...", zap.Error(err), zap.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.MaxBackoff {
			backoff = c.MaxBackoff
		}
	}
}

// runSession 一次连接的完整生命周期：拨号、订阅、读循环
func (c *Connector) runSession(ctx context.Context) (bool, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", c.wsURL, err)
	}
	defer conn.Close()

	var args []map[string]string
	for instID := range c.instToPair {
		args = append(args, map[string]string{"channel": c.channel, "instId": instID})
	}
	subscribeMsg := map[string]any{
		"op":   "subscribe",
		"args": args,
	}
	payload, err := json.Marshal(subscribeMsg)
	if err != nil {
		return false, err
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}
	service.Logger.Info("Subscribed to Okx candle streams", zap.String("channel", c.channel), zap.Int("pairs", len(args)))

	// ctx 取消时关闭连接，让 ReadMessage 返回
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.keepAlive(ctx, conn, done)
	}()
	defer func() {
		close(done)
		wg.Wait()
	}()

	return true, c.readLoop(ctx, conn)
}

// keepAlive Okx 要求 30 秒内有消息，否则断开
func (c *Connector) keepAlive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
				service.Logger.Warn("WS ping failed", zap.Error(err))
				conn.Close()
				return
			}
		}
	}
}

// readLoop 持续读取 WS 消息并处理
func (c *Connector) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if string(message) == "pong" {
			continue
		}

		var wsResp OkxWsData
		if err := json.Unmarshal(message, &wsResp); err != nil {
			service.Logger.Debug("WS message unmarshal error", zap.Error(err))
			continue
		}
		if wsResp.Event == "error" {
			return fmt.Errorf("okx error %s: %s", wsResp.Code, wsResp.Msg)
		}
		if wsResp.Event != "" || wsResp.Arg.Channel != c.channel || len(wsResp.Data) == 0 {
			continue // 忽略订阅成功等事件
		}

		pair, ok := c.instToPair[wsResp.Arg.InstId]
		if !ok {
			continue
		}

		candles, err := parseCandles(wsResp.Data)
		if err != nil {
			service.Logger.Error("Candle data unmarshal error", zap.String("pair", pair), zap.Error(err))
			continue
		}
		for _, bar := range candles {
			select {
			case c.candleChannel <- data.Candle{Pair: pair, Timeframe: c.timeframe, Bar: bar}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// parseCandles 只返回已收盘的 K 线
func parseCandles(raw json.RawMessage) ([]model.PriceBar, error) {
	var rows [][]string
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	bars := make([]model.PriceBar, 0, len(rows))
	for _, row := range rows {
		if len(row) <= candleConfirm {
			return nil, fmt.Errorf("candle row has %d fields", len(row))
		}
		if row[candleConfirm] != "1" {
			continue
		}
		ts, err := cast.ToInt64E(row[candleTs])
		if err != nil {
			return nil, fmt.Errorf("ts: %w", err)
		}
		var values [5]float64
		for i, idx := range []int{candleOpen, candleHigh, candleLow, candleClose, candleVol} {
			v, err := cast.ToFloat64E(row[idx])
			if err != nil {
				return nil, fmt.Errorf("field %d: %w", idx, err)
			}
			values[i] = v
		}
		bars = append(bars, model.PriceBar{
			Timestamp: time.UnixMilli(ts).UTC(),
			Open:      values[0],
			High:      values[1],
			Low:       values[2],
			Close:     values[3],
			Volume:    values[4],
		})
	}
	return bars, nil
}
