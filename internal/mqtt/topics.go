package mqtt

import (
	"fmt"
	"strings"
)

// CameraIDFromTopic 从 "pose/<camera>/landmarks" 形式的主题中解析摄像头ID
func CameraIDFromTopic(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[1] == "" {
		return "", fmt.Errorf("unexpected pose topic: %s", topic)
	}
	return parts[1], nil
}

// AlertTopic 设备报警命令主题：<prefix><camera>/alert
func AlertTopic(prefix, cameraID string) string {
	return prefix + cameraID + "/alert"
}
