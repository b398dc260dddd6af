package notifier

import (
	"context"
	"fmt"
	"time"

	"wisefido-pose/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// WebhookPayload 推送给护理人员系统的报警内容
type WebhookPayload struct {
	CameraID    string   `json:"camera_id"`
	Kind        string   `json:"kind"`
	Status      string   `json:"status"`
	Text        string   `json:"text"`
	Rules       []string `json:"rules,omitempty"`
	DurationSec int      `json:"duration_sec,omitempty"`
	BodyAngle   *float64 `json:"body_angle,omitempty"`
	Timestamp   string   `json:"timestamp"`
}

// WebhookNotifier 通过 HTTP POST 推送报警
type WebhookNotifier struct {
	httpClient *resty.Client
	url        string
	logger     *zap.Logger
}

// NewWebhookNotifier 创建 webhook 推送器
func NewWebhookNotifier(url string, timeout time.Duration, retries int, logger *zap.Logger) *WebhookNotifier {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &WebhookNotifier{
		httpClient: client,
		url:        url,
		logger:     logger,
	}
}

// BuildWebhookPayload 构建推送内容
func BuildWebhookPayload(result models.FrameResult, effect models.AlertEffect) WebhookPayload {
	p := WebhookPayload{
		CameraID:    result.CameraID,
		Kind:        string(effect.Kind),
		Status:      string(result.Status),
		Text:        result.Text,
		Rules:       models.RuleNames(effect.Rules),
		DurationSec: effect.DurationSec,
		Timestamp:   result.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if result.Features != nil {
		angle := result.Features.BodyAngle
		p.BodyAngle = &angle
	}
	return p
}

// Notify 推送报警
func (n *WebhookNotifier) Notify(ctx context.Context, result models.FrameResult, effect models.AlertEffect) error {
	payload := BuildWebhookPayload(result, effect)

	resp, err := n.httpClient.R().
		SetContext(ctx).
		SetBody(payload).
		Post(n.url)
	if err != nil {
		n.logger.Error("Alert webhook call failed",
			zap.String("camera_id", result.CameraID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to call alert webhook: %w", err)
	}

	if resp.IsError() {
		n.logger.Error("Alert webhook returned error",
			zap.String("camera_id", result.CameraID),
			zap.Int("status_code", resp.StatusCode()),
		)
		return fmt.Errorf("alert webhook error: status %d", resp.StatusCode())
	}

	n.logger.Info("Alert webhook delivered",
		zap.String("camera_id", result.CameraID),
		zap.String("kind", payload.Kind),
	)
	return nil
}
