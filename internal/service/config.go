// internal/service/config.go
package service

import (
	"errors"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type Config struct {
	Engine   EngineConfig   `mapstructure:"Engine"`
	Params   map[string]any `mapstructure:"Params"` // 交给 ParameterSpace.Candidate 校验
	Backtest BacktestConfig `mapstructure:"Backtest"`
	Data     DataConfig     `mapstructure:"Data"`
	Log      LogConfig      `mapstructure:"Log"`
	Metrics  MetricsConfig  `mapstructure:"Metrics"`
}

// EngineConfig 定义了要评估的交易对和窗口
type EngineConfig struct {
	Pairs              []string
	Timeframe          string
	StartupCandleCount int
	Timerange          string // YYYYMMDD-YYYYMMDD，两端都可省略
}

// BacktestConfig 定义了回测记账参数
type BacktestConfig struct {
	InitialCapital float64
	StakeAmount    float64
	FeeRate        float64
	ExportPath     string
}

// DataConfig 定义了行情来源
type DataConfig struct {
	CSVDir string
	WSURL  string
	Live   bool // 为 true 时通过 WS 持续接收 K 线并在每根新 K 线上重新评估
}

type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type MetricsConfig struct {
	Enabled bool
	Addr    string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("Engine.Pairs", []string{"BTC/USDT"})
	v.SetDefault("Engine.Timeframe", "15m")
	v.SetDefault("Engine.StartupCandleCount", 200)
	v.SetDefault("Engine.Timerange", "")

	v.SetDefault("Backtest.InitialCapital", 1000.0)
	v.SetDefault("Backtest.StakeAmount", 100.0)
	v.SetDefault("Backtest.FeeRate", 0.001)
	v.SetDefault("Backtest.ExportPath", "user_data/backtest_results/trades.json")

	v.SetDefault("Data.CSVDir", "user_data/data")
	v.SetDefault("Data.WSURL", "wss://ws.okx.com:8443/ws/v5/business")
	v.SetDefault("Data.Live", false)

	v.SetDefault("Log.Level", "info")
	v.SetDefault("Log.MaxSizeMB", 100)
	v.SetDefault("Log.MaxBackups", 5)
	v.SetDefault("Log.MaxAgeDays", 30)

	v.SetDefault("Metrics.Enabled", false)
	v.SetDefault("Metrics.Addr", ":9100")
}

// LoadConfig 读取并解析配置文件；找不到文件时使用默认值
// 环境变量 ATRBO_<SECTION>_<KEY> 覆盖文件中的值，例如 ATRBO_BACKTEST_FEERATE
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	// 设置配置文件的名称、类型和路径
	v.SetConfigName("config") // 文件名是 config
	v.SetConfigType("yaml")   // 文件类型是 yaml
	v.AddConfigPath(configPath)

	v.SetEnvPrefix("ATRBO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	// 查找并读取配置文件
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		Logger.Warn("Config file not found, using defaults", zap.String("path", configPath))
	}

	// 将配置绑定到结构体
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
