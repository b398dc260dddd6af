package models

import (
	"time"
)

// AlarmEvent 报警事件（对应 pose_alarm_events 表）
type AlarmEvent struct {
	EventID     string    `json:"event_id" db:"event_id"`
	CameraID    string    `json:"camera_id" db:"camera_id"`
	EventType   string    `json:"event_type" db:"event_type"`     // Fall, ProlongedLying
	Category    string    `json:"category" db:"category"`         // safety
	AlarmLevel  string    `json:"alarm_level" db:"alarm_level"`   // ALERT, WARNING
	AlarmStatus string    `json:"alarm_status" db:"alarm_status"` // active, acknowledged
	TriggeredAt time.Time `json:"triggered_at" db:"triggered_at"`
	TriggerData string    `json:"trigger_data" db:"trigger_data"` // JSONB
	Metadata    string    `json:"metadata" db:"metadata"`         // JSONB
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// 报警事件类型
const (
	EventTypeFall           = "Fall"
	EventTypeProlongedLying = "ProlongedLying"
)

// TriggerData 触发数据快照（JSONB 结构）
type TriggerData struct {
	EventType      string   `json:"event_type"`
	Status         Status   `json:"status"`
	BodyAngle      float64  `json:"body_angle"`
	HeadHeight     float64  `json:"head_height"`
	CenterY        float64  `json:"center_y"`
	AspectRatio    float64  `json:"aspect_ratio"`
	TriggeredRules []string `json:"triggered_rules,omitempty"`
	Diagnostics    []string `json:"diagnostics,omitempty"`
	DurationSec    *int     `json:"duration_sec,omitempty"`
	Source         string   `json:"source"` // "PoseCamera"
}
