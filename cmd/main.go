package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"atr-stoch-breakout/internal/api"
	"atr-stoch-breakout/internal/backtest"
	"atr-stoch-breakout/internal/data"
	"atr-stoch-breakout/internal/metrics"
	"atr-stoch-breakout/internal/model"
	"atr-stoch-breakout/internal/service"
	"atr-stoch-breakout/internal/strategy"
	"atr-stoch-breakout/pkg/recorder"
	"atr-stoch-breakout/pkg/ta"

	"go.uber.org/zap"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("atr-stoch-breakout", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "config", "directory containing config.yaml")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	// 配置加载前先用 stderr 上的日志，保证配置错误能被看到
	service.Logger = service.NewBootstrapLogger(stderr)
	cfg, err := service.LoadConfig(*configPath)
	if err != nil {
		service.Logger.Error("Unable to load config", zap.Error(err))
		return 1
	}
	if err := service.InitLogger(cfg.Log); err != nil {
		service.Logger.Error("Failed to initialize logger", zap.Error(err))
		return 1
	}
	defer func() { _ = service.Logger.Sync() }()
	sugar := service.Logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. 参数与回测窗口
	space := strategy.NewParameterSpace()
	params, err := space.Candidate(cfg.Params)
	if err != nil {
		service.Logger.Error("Invalid strategy parameters", zap.Error(err))
		return 1
	}
	timerange, err := backtest.ParseTimerange(cfg.Engine.Timerange)
	if err != nil {
		service.Logger.Error("Invalid timerange", zap.Error(err))
		return 1
	}
	strat := strategy.NewAtrStochBreakout(params, sugar)
	service.Logger.Info("Strategy configured",
		zap.String("strategy", strat.Name()),
		zap.String("params", params.String()),
		zap.String("timeframe", cfg.Engine.Timeframe),
		zap.String("timerange", timerange.String()),
	)

	runner, err := backtest.NewRunner(strat, backtest.Config{
		InitialCapital:     cfg.Backtest.InitialCapital,
		StakeAmount:        cfg.Backtest.StakeAmount,
		FeeRate:            cfg.Backtest.FeeRate,
		StartupCandleCount: cfg.Engine.StartupCandleCount,
		Timerange:          timerange,
	}, sugar)
	if err != nil {
		service.Logger.Error("Invalid backtest configuration", zap.Error(err))
		return 1
	}

	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.Addr)
	}

	// 2. 读取历史数据
	var series []*model.PriceSeries
	for _, pair := range cfg.Engine.Pairs {
		path := filepath.Join(cfg.Data.CSVDir, data.FileName(pair, cfg.Engine.Timeframe))
		s, err := data.LoadCSV(path, pair, cfg.Engine.Timeframe)
		if err != nil {
			service.Logger.Error("Failed to load price series", zap.String("pair", pair), zap.Error(err))
			return 1
		}
		series = append(series, s)
	}

	// 3. 回测
	results, err := runner.RunPairs(ctx, series)
	if err != nil {
		service.Logger.Error("Backtest evaluation failed", zap.Error(err))
		return 1
	}

	for _, res := range results {
		service.Logger.Info("Pair equity",
			zap.String("pair", res.Pair),
			zap.String("run_id", res.RunID),
			zap.Float64("final_equity", res.FinalEquity),
			zap.Float64("max_equity", res.MaxEquity),
		)
	}

	trades := backtest.AllTrades(results)
	if err := recorder.NewJSONFileRecorder(cfg.Backtest.ExportPath).Record(trades); err != nil {
		service.Logger.Error("Failed to export trades", zap.Error(err))
		return 1
	}
	summary := backtest.Summarize(trades)
	if summary.Trades == 0 {
		service.Logger.Warn("Backtest finished, but no trades were generated in this period",
			zap.String("timerange", timerange.String()))
	} else {
		curve := backtest.CumulativeProfit(trades)
		service.Logger.Info("Backtest finished",
			zap.String("summary", summary.String()),
			zap.Float64("final_cumulative_profit", curve[len(curve)-1].Value),
			zap.Any("exit_reasons", summary.ExitReasons),
			zap.String("export", cfg.Backtest.ExportPath),
		)
	}

	// 4. 可选：持续接收 K 线，在每根新 K 线上重新评估入场
	if cfg.Data.Live {
		if err := runLive(ctx, cfg, strat, series); err != nil && !errors.Is(err, context.Canceled) {
			service.Logger.Error("Live evaluation stopped", zap.Error(err))
			return 1
		}
	}
	return 0
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	service.Logger.Info("Metrics server listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		service.Logger.Error("Metrics server stopped", zap.Error(err))
	}
}

// runLive 用历史数据做种子，之后每收到一根已收盘 K 线就评估最新一根是否满足入场条件
func runLive(ctx context.Context, cfg *service.Config, strat *strategy.AtrStochBreakout, seeds []*model.PriceSeries) error {
	connector, err := api.NewConnector(cfg.Data.WSURL, cfg.Engine.Timeframe, cfg.Engine.Pairs)
	if err != nil {
		return err
	}
	engine := data.NewEngine(connector.GetCandleChannel(), cfg.Engine.Timeframe)
	for _, s := range seeds {
		if err := engine.Seed(s); err != nil {
			return err
		}
	}

	engine.OnBar(func(pair string) {
		s, ok := engine.Snapshot(pair)
		if !ok {
			return
		}
		evaluateLatest(strat, s)
	})

	go engine.Start(ctx)
	return connector.Start(ctx)
}

func evaluateLatest(strat *strategy.AtrStochBreakout, s *model.PriceSeries) {
	instanceLogger := service.Logger.With(zap.String("pair", s.Pair))

	frame, err := strat.PopulateIndicators(s)
	if errors.Is(err, ta.ErrInsufficientHistory) {
		instanceLogger.Debug("Waiting for more history", zap.Int("bars", s.Len()))
		return
	}
	if err != nil {
		instanceLogger.Error("Indicator computation failed", zap.Error(err))
		return
	}
	signals := strat.EntrySignals(frame)
	last := signals[len(signals)-1]
	if !last.Enter {
		instanceLogger.Debug("No entry", zap.String("reason", last.Reason), zap.Time("bar", last.Timestamp))
		return
	}

	metrics.EntrySignals.WithLabelValues(s.Pair).Inc()
	pos := strat.OpenPosition(frame, last)
	levels := strategy.NewRiskLevels(pos, strat.Params)
	tp, _ := levels.TakeProfitFraction()
	instanceLogger.Info("!!! NEW ENTRY SIGNAL !!!",
		zap.String("signal", last.String()),
		zap.Float64("open_rate", pos.OpenPrice),
		zap.Float64("anchored_atr", pos.AnchoredATR),
		zap.Float64("stop_loss", levels.StopLossFraction()),
		zap.Float64("stop_price", levels.StopLossPrice()),
		zap.Float64("take_profit", tp),
	)
}
