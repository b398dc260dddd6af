// Package source 姿态数据来源：每次 Next 返回一帧关键点。
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wisefido-pose/internal/features"
	"wisefido-pose/internal/models"
)

// ErrSourceClosed 数据来源已关闭或已读完
var ErrSourceClosed = errors.New("pose source closed")

// PoseSource 姿态数据来源
type PoseSource interface {
	// Next 阻塞直到下一帧到达、ctx 取消或来源关闭
	Next(ctx context.Context) (models.Frame, error)
	Close() error
}

// DropCounter 会在队列满时丢帧的来源（MQTTSource）
type DropCounter interface {
	Dropped() uint64
}

// Payload 姿态帧的传输格式（MQTT / Redis Streams / 回放文件通用）
type Payload struct {
	CameraID    string            `json:"camera_id"`
	Seq         uint64            `json:"seq"`
	TimestampMs int64             `json:"timestamp_ms"`
	Landmarks   []models.Landmark `json:"landmarks"` // 空数组表示画面中无人
}

// DecodeFrame 解析一帧
// payload 中未携带 camera_id 时使用 fallbackCameraID；mirror 为 true 时做水平镜像
func DecodeFrame(data []byte, fallbackCameraID string, mirror bool) (models.Frame, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return models.Frame{}, fmt.Errorf("failed to decode pose payload: %w", err)
	}

	cameraID := p.CameraID
	if cameraID == "" {
		cameraID = fallbackCameraID
	}
	if cameraID == "" {
		return models.Frame{}, errors.New("pose payload without camera_id")
	}

	frame := models.Frame{
		CameraID:  cameraID,
		Seq:       p.Seq,
		Landmarks: p.Landmarks,
	}
	if p.TimestampMs > 0 {
		frame.Timestamp = time.UnixMilli(p.TimestampMs)
	}
	if mirror && len(frame.Landmarks) > 0 {
		frame.Landmarks = features.Mirror(frame.Landmarks)
	}
	return frame, nil
}

// EncodeFrame 将一帧编码为传输格式（回放录制与测试使用）
func EncodeFrame(frame models.Frame) ([]byte, error) {
	p := Payload{
		CameraID:  frame.CameraID,
		Seq:       frame.Seq,
		Landmarks: frame.Landmarks,
	}
	if !frame.Timestamp.IsZero() {
		p.TimestampMs = frame.Timestamp.UnixMilli()
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode pose payload: %w", err)
	}
	return data, nil
}
