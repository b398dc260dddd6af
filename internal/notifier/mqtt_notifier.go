package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	"wisefido-pose/internal/models"
	"wisefido-pose/internal/mqtt"

	"go.uber.org/zap"
)

// Publisher MQTT 发布接口（*mqtt.Client 实现）
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// ToneCommand 提示音命令
type ToneCommand struct {
	FrequencyHz int     `json:"frequency_hz"`
	Waveform    string  `json:"waveform"`
	DurationMs  int     `json:"duration_ms"`
	Gain        float64 `json:"gain"`
}

// AlertCommand 下发给摄像头终端的报警命令
type AlertCommand struct {
	CameraID    string       `json:"camera_id"`
	Kind        string       `json:"kind"`
	Status      string       `json:"status"`
	Text        string       `json:"text"`
	Tone        *ToneCommand `json:"tone,omitempty"`
	Vibrate     []int        `json:"vibrate,omitempty"`
	Banner      []string     `json:"banner,omitempty"`
	BannerMs    int64        `json:"banner_ms,omitempty"`
	TimestampMs int64        `json:"timestamp_ms"`
}

// MQTTNotifier 通过 MQTT 向终端下发提示音/振动/横幅命令
// 主题：<prefix><camera>/alert
type MQTTNotifier struct {
	publisher   Publisher
	topicPrefix string
	qos         byte
	logger      *zap.Logger
}

// NewMQTTNotifier 创建 MQTT 报警命令发布器
func NewMQTTNotifier(publisher Publisher, topicPrefix string, qos byte, logger *zap.Logger) *MQTTNotifier {
	return &MQTTNotifier{
		publisher:   publisher,
		topicPrefix: topicPrefix,
		qos:         qos,
		logger:      logger,
	}
}

// BuildAlertCommand 根据副作用构建命令；无任何输出时返回 nil
func BuildAlertCommand(result models.FrameResult, effect models.AlertEffect) *AlertCommand {
	if !effect.Tone && !effect.Vibrate && len(effect.Banner) == 0 {
		return nil
	}

	cmd := &AlertCommand{
		CameraID:    result.CameraID,
		Kind:        string(effect.Kind),
		Status:      string(result.Status),
		Text:        result.Text,
		Banner:      effect.Banner,
		BannerMs:    effect.BannerDuration.Milliseconds(),
		TimestampMs: result.Timestamp.UnixMilli(),
	}
	if effect.Tone {
		cmd.Tone = &ToneCommand{
			FrequencyHz: ToneFrequencyHz,
			Waveform:    ToneWaveform,
			DurationMs:  ToneDurationMs,
			Gain:        ToneGain,
		}
	}
	if effect.Vibrate {
		cmd.Vibrate = append([]int(nil), VibrationPattern...)
	}
	return cmd
}

// Notify 发布报警命令
func (n *MQTTNotifier) Notify(_ context.Context, result models.FrameResult, effect models.AlertEffect) error {
	cmd := BuildAlertCommand(result, effect)
	if cmd == nil {
		return nil
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal alert command: %w", err)
	}

	topic := mqtt.AlertTopic(n.topicPrefix, result.CameraID)
	if err := n.publisher.Publish(topic, n.qos, false, payload); err != nil {
		return err
	}

	n.logger.Info("Alert command published",
		zap.String("topic", topic),
		zap.String("kind", cmd.Kind),
		zap.Bool("tone", cmd.Tone != nil),
		zap.Bool("vibrate", len(cmd.Vibrate) > 0),
	)
	return nil
}
