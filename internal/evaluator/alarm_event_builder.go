package evaluator

import (
	"encoding/json"
	"fmt"
	"time"

	"wisefido-pose/internal/models"

	"github.com/google/uuid"
)

// AlarmEventBuilder 报警事件构建器
type AlarmEventBuilder struct {
	cameraID string
}

// NewAlarmEventBuilder 创建报警事件构建器
func NewAlarmEventBuilder(cameraID string) *AlarmEventBuilder {
	return &AlarmEventBuilder{
		cameraID: cameraID,
	}
}

// BuildAlarmEvent 构建报警事件
func (b *AlarmEventBuilder) BuildAlarmEvent(
	eventType string,
	category string,
	alarmLevel string,
	triggeredAt time.Time,
	triggerData *models.TriggerData,
	metadata map[string]interface{},
) (*models.AlarmEvent, error) {
	// 序列化 trigger_data
	triggerDataJSON, err := json.Marshal(triggerData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal trigger data: %w", err)
	}

	// 序列化 metadata
	metadataJSON := "{}"
	if metadata != nil {
		metadataBytes, err := json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadataJSON = string(metadataBytes)
	}

	event := &models.AlarmEvent{
		EventID:     uuid.New().String(),
		CameraID:    b.cameraID,
		EventType:   eventType,
		Category:    category,
		AlarmLevel:  alarmLevel,
		AlarmStatus: "active",
		TriggeredAt: triggeredAt,
		TriggerData: string(triggerDataJSON),
		Metadata:    metadataJSON,
		CreatedAt:   time.Now(),
	}

	return event, nil
}

// BuildFromEffect 根据帧结果中的报警副作用构建报警事件
// fall -> Fall/ALERT，lying -> ProlongedLying/WARNING
func (b *AlarmEventBuilder) BuildFromEffect(result models.FrameResult, effect models.AlertEffect) (*models.AlarmEvent, error) {
	eventType := models.EventTypeFall
	level := "ALERT"
	if effect.Kind == models.AlertLying {
		eventType = models.EventTypeProlongedLying
		level = "WARNING"
	}

	triggerData := BuildTriggerData(eventType, result, effect)
	metadata := map[string]interface{}{
		"seq":     result.Seq,
		"trigger": "pose-rules",
	}

	return b.BuildAlarmEvent(eventType, "safety", level, result.Timestamp, triggerData, metadata)
}

// BuildTriggerData 构建触发数据
func BuildTriggerData(eventType string, result models.FrameResult, effect models.AlertEffect) *models.TriggerData {
	td := &models.TriggerData{
		EventType:      eventType,
		Status:         result.Status,
		TriggeredRules: models.RuleNames(effect.Rules),
		Source:         "PoseCamera",
	}
	if result.Features != nil {
		td.BodyAngle = result.Features.BodyAngle
		td.HeadHeight = result.Features.HeadHeight
		td.CenterY = result.Features.CenterY
		td.AspectRatio = result.Features.AspectRatio
	}
	for _, rs := range result.Rules {
		if rs.Active {
			td.Diagnostics = append(td.Diagnostics, rs.Key+": "+rs.Diagnostic)
		}
	}
	if effect.Kind == models.AlertLying {
		d := effect.DurationSec
		td.DurationSec = &d
	}
	return td
}
