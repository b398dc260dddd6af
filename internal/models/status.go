package models

import "time"

// Status 粗粒度行为状态
type Status string

const (
	StatusUnknown  Status = "unknown"
	StatusFall     Status = "fall"
	StatusLying    Status = "lying"
	StatusSitting  Status = "sitting"
	StatusStanding Status = "standing"
	StatusMoving   Status = "moving"
)

// SessionState 单个摄像头会话的状态（只由状态分类器和静止跟踪器修改）
type SessionState struct {
	CurrentStatus    Status     `json:"current_status"`
	FallDetectedTime *time.Time `json:"fall_detected_time,omitempty"` // 进入 fall 时设置，恢复时清除
	LyingStartTime   *time.Time `json:"lying_start_time,omitempty"`   // 水平且静止时开始计时
	LyingAlertTime   *time.Time `json:"lying_alert_time,omitempty"`   // 长时间卧床报警的进入时刻，随 LyingStartTime 一起清除
	StillStartTime   *time.Time `json:"still_start_time,omitempty"`   // 位移低于静止阈值时开始计时
}

// ClearLying 清除卧床计时
func (s *SessionState) ClearLying() {
	s.LyingStartTime = nil
	s.LyingAlertTime = nil
}

// NewSessionState 初始状态
func NewSessionState() SessionState {
	return SessionState{CurrentStatus: StatusUnknown}
}

// AlertKind 报警类型
type AlertKind string

const (
	AlertFall  AlertKind = "fall"
	AlertLying AlertKind = "lying"
)

// AlertEffect 状态进入时产生的副作用（只在进入边沿产生一次）
type AlertEffect struct {
	Kind           AlertKind     `json:"kind"`
	Rules          []RuleID      `json:"rules,omitempty"`
	Tone           bool          `json:"tone"`
	Vibrate        bool          `json:"vibrate"`
	Banner         []string      `json:"banner,omitempty"` // 屏幕中央显示的规则名称
	BannerDuration time.Duration `json:"banner_duration,omitempty"`
	DurationSec    int           `json:"duration_sec,omitempty"` // lying 报警时的已卧床秒数
}

// FrameResult 每帧输出（供展示层与缓存使用）
type FrameResult struct {
	CameraID  string         `json:"camera_id"`
	Seq       uint64         `json:"seq"`
	Timestamp time.Time      `json:"timestamp"`
	Status    Status         `json:"status"`
	Text      string         `json:"text"`
	Skipped   bool           `json:"skipped"` // 本帧未生成特征向量
	Features  *FeatureVector `json:"features,omitempty"`
	Rules     []RuleStatus   `json:"rules"`
	Triggered []RuleID       `json:"triggered,omitempty"`
	Effects   []AlertEffect  `json:"effects,omitempty"`
}
