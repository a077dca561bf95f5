package recorder

import (
	"os"
	"path/filepath"

	"atr-stoch-breakout/internal/model"

	"github.com/goccy/go-json"
)

// JSON 文件记录器，每次运行覆盖上一次的导出
type JSONFileRecorder struct {
	Path string
}

func NewJSONFileRecorder(path string) *JSONFileRecorder {
	return &JSONFileRecorder{
		path,
	}
}

// Record 写入已平仓交易，没有交易时写入空数组
func (r *JSONFileRecorder) Record(trades []*model.TradeRecord) error {
	if trades == nil {
		trades = []*model.TradeRecord{}
	}
	data, err := json.MarshalIndent(trades, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(r.Path), 0o755); err != nil {
		return err
	}
	// 先写临时文件再改名，避免读到写了一半的文件
	tmp := r.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, r.Path)
}

// Load 读回导出的交易
func (r *JSONFileRecorder) Load() ([]*model.TradeRecord, error) {
	data, err := os.ReadFile(r.Path)
	if err != nil {
		return nil, err
	}
	var trades []*model.TradeRecord
	if err := json.Unmarshal(data, &trades); err != nil {
		return nil, err
	}
	return trades, nil
}
