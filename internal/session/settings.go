package session

import (
	"fmt"

	"wisefido-pose/internal/models"
)

// Settings 可在运行时修改的检测配置（阈值、规则开关、组合策略、报警开关）
type Settings struct {
	Thresholds   models.ThresholdSet  `json:"thresholds"`
	Enabled      models.RuleToggles   `json:"enabled"` // 下标 0..5 对应规则 1..6
	Policy       models.CombinePolicy `json:"policy"`
	AlertEnabled bool                 `json:"alert_enabled"` // 关闭后不再请求提示音和振动，横幅仍然显示
}

// DefaultSettings 默认配置：默认阈值、全部规则启用、count 策略、报警开启
func DefaultSettings() Settings {
	return Settings{
		Thresholds:   models.DefaultThresholds(),
		Enabled:      models.AllRulesEnabled(),
		Policy:       models.PolicyCount,
		AlertEnabled: true,
	}
}

// Validate 检查配置
func (s Settings) Validate() error {
	if err := s.Thresholds.Validate(); err != nil {
		return fmt.Errorf("invalid thresholds: %w", err)
	}
	if _, err := models.ParseCombinePolicy(string(s.Policy)); err != nil {
		return err
	}
	return nil
}

// normalized 空策略按默认值处理
func (s Settings) normalized() Settings {
	if p, err := models.ParseCombinePolicy(string(s.Policy)); err == nil {
		s.Policy = p
	}
	return s
}
