package service

import (
	"fmt"
	"time"

	"github.com/spf13/cast"
)

// 将 time.Duration 原(1h0m0s或者15m0s)格式化为标准的 K 线周期字符串，如 "15m", "1h", "1d"
func FormatInterval(d time.Duration) string {
	day := 24 * time.Hour
	if d >= day && d%day == 0 {
		return fmt.Sprintf("%dd", d/day)
	}

	if d >= time.Hour && d%time.Hour == 0 {
		return fmt.Sprintf("%dh", d/time.Hour)
	}

	if d >= time.Minute && d%time.Minute == 0 {
		return fmt.Sprintf("%dm", d/time.Minute)
	}

	// 默认或无法识别的，返回原始 Duration 的 String()
	return d.String()
}

// 将 K 线周期字符串解析为 time.Duration
// 例如 "15m" -> 15*time.Minute
func ParseIntervalDuration(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid interval format: %s", s)
	}

	unit := s[len(s)-1:]
	valueStr := s[:len(s)-1]

	var unitDuration time.Duration
	switch unit {
	case "m":
		unitDuration = time.Minute
	case "h", "H":
		unitDuration = time.Hour
	case "d", "D":
		unitDuration = 24 * time.Hour
	default:
		return 0, fmt.Errorf("unsupported interval unit: %s", unit)
	}

	value, err := cast.ToIntE(valueStr)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("invalid interval value: %s", valueStr)
	}

	return time.Duration(value) * unitDuration, nil
}
