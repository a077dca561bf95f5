package strategy

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	"go.uber.org/multierr"
)

// ErrInvalidParameter 候选参数越界、类型不符或名称未知
var ErrInvalidParameter = errors.New("invalid parameter")

// ParamKind 参数取值类型
type ParamKind string

const (
	KindInt     ParamKind = "int"
	KindDecimal ParamKind = "decimal"
)

// Consumer 参数的使用方
type Consumer string

const (
	ConsumerIndicator Consumer = "indicator"
	ConsumerEntry     Consumer = "entry"
	ConsumerRisk      Consumer = "risk"
)

// SpaceBuy 全部参数都归在 buy 空间
const SpaceBuy = "buy"

const (
	ParamEMAPeriod         = "ema_period"
	ParamStochLowThreshold = "stoch_low_threshold"
	ParamATRPeriod         = "atr_period"
	ParamTPMultiplier      = "tp_multiplier"
	ParamSLMultiplier      = "sl_multiplier"
)

// Parameter 一个可调参数的声明
type Parameter struct {
	Name     string
	Kind     ParamKind
	Low      float64
	High     float64
	Default  float64
	Decimals int32 // 仅 KindDecimal 使用，步长为 10^-Decimals
	Space    string
	Consumer Consumer
}

// Step 取值步长
func (p Parameter) Step() float64 {
	if p.Kind == KindInt {
		return 1
	}
	return math.Pow10(-int(p.Decimals))
}

// normalize 校验并规整单个取值
func (p Parameter) normalize(raw any) (float64, error) {
	v, err := cast.ToFloat64E(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidParameter, p.Name, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s is not finite", ErrInvalidParameter, p.Name)
	}

	d := decimal.NewFromFloat(v)
	switch p.Kind {
	case KindInt:
		if !d.IsInteger() {
			return 0, fmt.Errorf("%w: %s must be an integer, got %v", ErrInvalidParameter, p.Name, raw)
		}
	case KindDecimal:
		d = d.Round(p.Decimals)
	}

	if d.LessThan(decimal.NewFromFloat(p.Low)) || d.GreaterThan(decimal.NewFromFloat(p.High)) {
		return 0, fmt.Errorf("%w: %s=%s outside [%v, %v]", ErrInvalidParameter, p.Name, d.String(), p.Low, p.High)
	}
	return d.InexactFloat64(), nil
}

// ParameterSpace 声明可调参数的范围和默认值，本身不做搜索
type ParameterSpace struct {
	params []Parameter
}

// NewParameterSpace 返回本策略的参数空间
func NewParameterSpace() *ParameterSpace {
	return &ParameterSpace{params: []Parameter{
		{Name: ParamEMAPeriod, Kind: KindInt, Low: 20, High: 200, Default: 80, Space: SpaceBuy, Consumer: ConsumerIndicator},
		{Name: ParamStochLowThreshold, Kind: KindInt, Low: 5, High: 40, Default: 20, Space: SpaceBuy, Consumer: ConsumerEntry},
		{Name: ParamATRPeriod, Kind: KindInt, Low: 5, High: 30, Default: 10, Space: SpaceBuy, Consumer: ConsumerIndicator},
		{Name: ParamTPMultiplier, Kind: KindDecimal, Low: 1.0, High: 6.0, Default: 3.0, Decimals: 1, Space: SpaceBuy, Consumer: ConsumerRisk},
		{Name: ParamSLMultiplier, Kind: KindDecimal, Low: 0.5, High: 3.0, Default: 1.5, Decimals: 1, Space: SpaceBuy, Consumer: ConsumerRisk},
	}}
}

// Parameters 返回参数声明的副本
func (s *ParameterSpace) Parameters() []Parameter {
	out := make([]Parameter, len(s.params))
	copy(out, s.params)
	return out
}

func (s *ParameterSpace) Lookup(name string) (Parameter, bool) {
	for _, p := range s.params {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// Defaults 默认参数组合
func (s *ParameterSpace) Defaults() ParameterSet {
	values := make(map[string]float64, len(s.params))
	for _, p := range s.params {
		values[p.Name] = p.Default
	}
	return toParameterSet(values)
}

// Candidate 把外部给出的取值校验成 ParameterSet，缺失的参数用默认值补齐
// 所有问题一次性返回
func (s *ParameterSpace) Candidate(values map[string]any) (ParameterSet, error) {
	var errs error

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, ok := s.Lookup(name); !ok {
			errs = multierr.Append(errs, fmt.Errorf("%w: unknown parameter %q", ErrInvalidParameter, name))
		}
	}

	resolved := make(map[string]float64, len(s.params))
	for _, p := range s.params {
		raw, ok := values[p.Name]
		if !ok {
			resolved[p.Name] = p.Default
			continue
		}
		v, err := p.normalize(raw)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		resolved[p.Name] = v
	}
	if errs != nil {
		return ParameterSet{}, errs
	}
	return toParameterSet(resolved), nil
}

func toParameterSet(v map[string]float64) ParameterSet {
	return ParameterSet{
		EMAPeriod:         int(v[ParamEMAPeriod]),
		StochLowThreshold: int(v[ParamStochLowThreshold]),
		ATRPeriod:         int(v[ParamATRPeriod]),
		TPMultiplier:      v[ParamTPMultiplier],
		SLMultiplier:      v[ParamSLMultiplier],
	}
}
