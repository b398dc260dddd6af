package models

import "time"

// MediaPipe Pose 关键点索引（33 点布局，核心逻辑只读取其中 5 个）
const (
	LandmarkNose          = 0
	LandmarkLeftShoulder  = 11
	LandmarkRightShoulder = 12
	LandmarkLeftHip       = 23
	LandmarkRightHip      = 24

	PoseLandmarkCount = 33
)

// Landmark 单个身体关键点（归一化图像坐标）
type Landmark struct {
	X          float64 `json:"x"`          // [0,1]，左 -> 右
	Y          float64 `json:"y"`          // [0,1]，上 -> 下（值越大越靠近画面底部）
	Z          float64 `json:"z"`          // 深度，核心逻辑不使用
	Visibility float64 `json:"visibility"` // 置信度 [0,1]
}

// Frame 一帧姿态数据（来自外部姿态估计模型）
type Frame struct {
	CameraID  string     `json:"camera_id"`
	Seq       uint64     `json:"seq"`
	Timestamp time.Time  `json:"timestamp"`
	Landmarks []Landmark `json:"landmarks"` // 为空表示画面中未检测到人
}

// HasPerson 是否检测到人
func (f Frame) HasPerson() bool {
	return len(f.Landmarks) > 0
}
