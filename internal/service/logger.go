package service

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger 是全局日志接口
// 在其他模块中使用：service.Logger.Info("backtest finished", zap.String("pair", pair))
// InitLogger 之前是 Nop，测试中可以直接使用
var Logger = zap.NewNop()

// encoderConfig ISO8601 时间格式的 JSON 编码配置
func encoderConfig() zapcore.EncoderConfig {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.TimeKey = "time"
	return encCfg
}

// NewBootstrapLogger 配置加载完成之前使用的日志，写到 w (通常是 stderr)
func NewBootstrapLogger(w io.Writer) *zap.Logger {
	return zap.New(zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.AddSync(w), zap.InfoLevel))
}

// InitLogger 初始化 Zap 日志，Log.File 不为空时同时写入滚动日志文件
func InitLogger(cfg LogConfig) error {
	level := zap.NewAtomicLevel()
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return err
		}
	}

	encCfg := encoderConfig()

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.Lock(os.Stdout), level),
	}
	if cfg.File != "" {
		rotate := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(rotate), level))
	}

	Logger = zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	return nil
}
