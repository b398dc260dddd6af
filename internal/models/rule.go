package models

import (
	"fmt"
	"strconv"
	"strings"
)

// RuleID 规则编号（与配置、调试面板使用同一编号）
type RuleID int

const (
	RuleAxisHorizontal RuleID = iota + 1 // 规则1：体轴水平化
	RuleHeadDrop                         // 规则2：头部急落
	RuleFloorProximity                   // 规则3：接近地面
	RuleAspectChange                     // 规则4：宽高比变化
	RuleCenterDrop                       // 规则5：重心急落
	RuleStillness                        // 规则6：跌倒后静止
)

// RuleCount 规则总数
const RuleCount = 6

// AllRules 按评估顺序排列的全部规则
var AllRules = [RuleCount]RuleID{
	RuleAxisHorizontal,
	RuleHeadDrop,
	RuleFloorProximity,
	RuleAspectChange,
	RuleCenterDrop,
	RuleStillness,
}

var ruleNames = [RuleCount]string{
	"axis horizontalization",
	"head sudden drop",
	"floor proximity",
	"aspect ratio change",
	"centroid sudden drop",
	"post-fall stillness",
}

// Valid 编号是否在 1..6 内
func (r RuleID) Valid() bool {
	return r >= RuleAxisHorizontal && r <= RuleStillness
}

// Index 数组下标（0..5）
func (r RuleID) Index() int {
	return int(r) - 1
}

// Key 配置键，如 "rule1"
func (r RuleID) Key() string {
	return "rule" + strconv.Itoa(int(r))
}

// Name 可读名称（用于报警横幅）
func (r RuleID) Name() string {
	if !r.Valid() {
		return "unknown rule"
	}
	return ruleNames[r.Index()]
}

func (r RuleID) String() string {
	return r.Key()
}

// ParseRuleID 解析 "3" 或 "rule3"
func ParseRuleID(s string) (RuleID, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "rule")
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid rule id %q: %w", s, err)
	}
	id := RuleID(n)
	if !id.Valid() {
		return 0, fmt.Errorf("rule id out of range: %d", n)
	}
	return id, nil
}

// RuleNames 将规则编号列表转换为名称列表
func RuleNames(ids []RuleID) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, id.Name())
	}
	return names
}

// RuleOutcome 单条规则的评估结果（每帧重新生成，不持久化）
type RuleOutcome struct {
	Rule      RuleID  `json:"rule"`
	Triggered bool    `json:"triggered"`
	Value     float64 `json:"value"`     // 与阈值比较的原始数值
	Threshold float64 `json:"threshold"` // 本次评估使用的阈值
}

// Describe 调试字符串 "当前值>阈值"
func (o RuleOutcome) Describe() string {
	switch o.Rule {
	case RuleAxisHorizontal:
		return fmt.Sprintf("%.0f°>%g°", o.Value, o.Threshold)
	case RuleStillness:
		return fmt.Sprintf("%.1fs>%gs", o.Value, o.Threshold)
	default:
		return fmt.Sprintf("%.2f>%g", o.Value, o.Threshold)
	}
}

// RuleOutcomes 六条规则的结果，下标 = RuleID.Index()
type RuleOutcomes [RuleCount]RuleOutcome

// Get 按编号取结果
func (o RuleOutcomes) Get(id RuleID) RuleOutcome {
	return o[id.Index()]
}

// RuleToggles 六条规则的启用开关，下标 = RuleID.Index()
type RuleToggles [RuleCount]bool

// AllRulesEnabled 全部启用
func AllRulesEnabled() RuleToggles {
	return RuleToggles{true, true, true, true, true, true}
}

// Enabled 规则是否启用
func (t RuleToggles) Enabled(id RuleID) bool {
	if !id.Valid() {
		return false
	}
	return t[id.Index()]
}

// Count 启用的规则数
func (t RuleToggles) Count() int {
	n := 0
	for _, on := range t {
		if on {
			n++
		}
	}
	return n
}

// ParseRuleToggles 解析 "1,2,6" 形式的启用列表；空字符串表示全部禁用
func ParseRuleToggles(s string) (RuleToggles, error) {
	var t RuleToggles
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		id, err := ParseRuleID(part)
		if err != nil {
			return RuleToggles{}, err
		}
		t[id.Index()] = true
	}
	return t, nil
}

// RuleStatus 对外展示的单条规则状态
type RuleStatus struct {
	Rule       RuleID `json:"rule"`
	Key        string `json:"key"`
	Name       string `json:"name"`
	Enabled    bool   `json:"enabled"`
	Active     bool   `json:"active"` // 启用且触发
	Diagnostic string `json:"diagnostic,omitempty"`
}
