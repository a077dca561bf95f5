package data

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"atr-stoch-breakout/internal/model"

	"github.com/spf13/cast"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var csvHeader = []string{"date", "open", "high", "low", "close", "volume"}

// FileName 数据文件名，BTC/USDT + 15m -> BTC_USDT-15m.csv
func FileName(pair, timeframe string) string {
	return strings.ReplaceAll(pair, "/", "_") + "-" + timeframe + ".csv"
}

// LoadCSV 读取 date,open,high,low,close,volume 格式的 K 线文件
// date 可以是毫秒时间戳或 RFC3339 字符串；读出的序列会做结构校验
func LoadCSV(path, pair, timeframe string) (*model.PriceSeries, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	series, err := ReadCSV(f, pair, timeframe)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return series, nil
}

// ReadCSV 从任意 reader 读取，UTF-16 (带 BOM) 的文件会先转成 UTF-8
func ReadCSV(r io.Reader, pair, timeframe string) (*model.PriceSeries, error) {
	br := bufio.NewReader(r)
	if b, _ := br.Peek(2); len(b) == 2 && ((b[0] == 0xFF && b[1] == 0xFE) || (b[0] == 0xFE && b[1] == 0xFF)) {
		tr := transform.NewReader(br, unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder())
		br = bufio.NewReader(tr)
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = len(csvHeader)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, name := range csvHeader {
		if !strings.EqualFold(strings.TrimPrefix(strings.TrimSpace(header[i]), "\ufeff"), name) {
			return nil, fmt.Errorf("unexpected header %v, want %v", header, csvHeader)
		}
	}

	series := model.NewPriceSeries(pair, timeframe)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bar, err := parseRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		series.Bars = append(series.Bars, bar)
	}

	if err := series.Validate(); err != nil {
		return nil, err
	}
	return series, nil
}

func parseRecord(rec []string) (model.PriceBar, error) {
	ts, err := parseDate(rec[0])
	if err != nil {
		return model.PriceBar{}, err
	}
	var values [5]float64
	for i := range values {
		v, err := cast.ToFloat64E(strings.TrimSpace(rec[i+1]))
		if err != nil {
			return model.PriceBar{}, fmt.Errorf("%s: %w", csvHeader[i+1], err)
		}
		values[i] = v
	}
	return model.PriceBar{
		Timestamp: ts,
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
	}, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if ms, err := cast.ToInt64E(s); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q is neither unix ms nor RFC3339", s)
	}
	return ts.UTC(), nil
}
