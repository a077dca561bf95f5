package backtest

import (
	"fmt"
	"strings"
	"time"
)

const timerangeLayout = "20060102"

// ParseTimerange 解析 "YYYYMMDD-YYYYMMDD" 格式，两端都可以省略 ("20251026-", "-20251125")
// 结束日期包含当天全部 K 线
func ParseTimerange(s string) (Timerange, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Timerange{}, nil
	}
	start, end, ok := strings.Cut(s, "-")
	if !ok {
		return Timerange{}, fmt.Errorf("invalid timerange %q, want YYYYMMDD-YYYYMMDD", s)
	}

	var tr Timerange
	if start != "" {
		t, err := time.Parse(timerangeLayout, start)
		if err != nil {
			return Timerange{}, fmt.Errorf("invalid timerange start %q: %w", start, err)
		}
		tr.Start = t
	}
	if end != "" {
		t, err := time.Parse(timerangeLayout, end)
		if err != nil {
			return Timerange{}, fmt.Errorf("invalid timerange end %q: %w", end, err)
		}
		tr.End = t.Add(24*time.Hour - time.Nanosecond)
	}
	if !tr.Start.IsZero() && !tr.End.IsZero() && tr.End.Before(tr.Start) {
		return Timerange{}, fmt.Errorf("timerange end %s before start %s", end, start)
	}
	return tr, nil
}

func (t Timerange) String() string {
	var start, end string
	if !t.Start.IsZero() {
		start = t.Start.Format(timerangeLayout)
	}
	if !t.End.IsZero() {
		end = t.End.Format(timerangeLayout)
	}
	return start + "-" + end
}
