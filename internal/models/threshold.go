package models

import (
	"fmt"
	"strings"
)

// ThresholdSet 六个可调阈值（外部配置面随时可改，单次评估使用同一份快照）
type ThresholdSet struct {
	Angle        float64 `json:"angle"`         // 规则1 体轴角度（度）
	HeadDrop     float64 `json:"head_drop"`     // 规则2 头部下落比例
	Floor        float64 `json:"floor"`         // 规则3 头部 y 地面阈值
	Ratio        float64 `json:"ratio"`         // 规则4 宽高比下降量
	CenterDrop   float64 `json:"center_drop"`   // 规则5 重心下落比例
	LyingSeconds float64 `json:"lying_seconds"` // 长时间卧床判定秒数
}

// DefaultThresholds 默认阈值
func DefaultThresholds() ThresholdSet {
	return ThresholdSet{
		Angle:        55,
		HeadDrop:     0.20,
		Floor:        0.55,
		Ratio:        0.7,
		CenterDrop:   0.15,
		LyingSeconds: 10,
	}
}

// Validate 检查阈值范围
func (t ThresholdSet) Validate() error {
	if t.Angle <= 0 || t.Angle >= 180 {
		return fmt.Errorf("angle threshold must be in (0,180): %g", t.Angle)
	}
	if t.HeadDrop < 0 || t.Floor < 0 || t.Ratio < 0 || t.CenterDrop < 0 {
		return fmt.Errorf("fractional thresholds must be non-negative")
	}
	if t.LyingSeconds < 0 {
		return fmt.Errorf("lying threshold must be non-negative: %g", t.LyingSeconds)
	}
	return nil
}

// CombinePolicy 规则组合策略
type CombinePolicy string

const (
	PolicyOr    CombinePolicy = "or"    // 任一规则触发
	PolicyAnd   CombinePolicy = "and"   // 所有启用规则触发
	PolicyCount CombinePolicy = "count" // 至少两条规则触发（默认）
)

// ParseCombinePolicy 解析策略名称
func ParseCombinePolicy(s string) (CombinePolicy, error) {
	switch p := CombinePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyOr, PolicyAnd, PolicyCount:
		return p, nil
	case "":
		return PolicyCount, nil
	default:
		return "", fmt.Errorf("unknown combine policy: %q", s)
	}
}
