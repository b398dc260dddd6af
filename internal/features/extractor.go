// Package features 将单帧关键点转换为紧凑的特征向量。
package features

import (
	"errors"
	"fmt"
	"math"

	"wisefido-pose/internal/models"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrInsufficientVisibility 可信关键点不足，本帧不生成特征向量
var ErrInsufficientVisibility = errors.New("insufficient landmark visibility")

const (
	// TorsoMinVisibility 肩、髋四个关键点的最低可见度
	TorsoMinVisibility = 0.3
	// VisiblePointThreshold 参与重心/外接框计算的关键点可见度下限（严格大于）
	VisiblePointThreshold = 0.5
	// MinVisiblePoints 构成外接框所需的最少关键点数
	MinVisiblePoints = 5
)

// Extract 计算特征向量；prev 为上一帧特征（会话第一帧传 nil）
func Extract(landmarks []models.Landmark, prev *models.FeatureVector) (models.FeatureVector, error) {
	if len(landmarks) <= models.LandmarkRightHip {
		return models.FeatureVector{}, fmt.Errorf("%w: expected at least %d landmarks, got %d",
			ErrInsufficientVisibility, models.LandmarkRightHip+1, len(landmarks))
	}

	nose := landmarks[models.LandmarkNose]
	leftShoulder := landmarks[models.LandmarkLeftShoulder]
	rightShoulder := landmarks[models.LandmarkRightShoulder]
	leftHip := landmarks[models.LandmarkLeftHip]
	rightHip := landmarks[models.LandmarkRightHip]

	if leftShoulder.Visibility < TorsoMinVisibility || rightShoulder.Visibility < TorsoMinVisibility ||
		leftHip.Visibility < TorsoMinVisibility || rightHip.Visibility < TorsoMinVisibility {
		return models.FeatureVector{}, fmt.Errorf("%w: torso landmark below %.1f", ErrInsufficientVisibility, TorsoMinVisibility)
	}

	shoulderMidX := (leftShoulder.X + rightShoulder.X) / 2
	shoulderMidY := (leftShoulder.Y + rightShoulder.Y) / 2
	hipMidX := (leftHip.X + rightHip.X) / 2
	hipMidY := (leftHip.Y + rightHip.Y) / 2

	xs := make([]float64, 0, len(landmarks))
	ys := make([]float64, 0, len(landmarks))
	for _, p := range landmarks {
		if p.Visibility > VisiblePointThreshold {
			xs = append(xs, p.X)
			ys = append(ys, p.Y)
		}
	}
	if len(ys) < MinVisiblePoints {
		return models.FeatureVector{}, fmt.Errorf("%w: %d visible landmarks, need %d",
			ErrInsufficientVisibility, len(ys), MinVisiblePoints)
	}

	fv := models.FeatureVector{
		BodyAngle:    BodyAngle(shoulderMidX-hipMidX, shoulderMidY-hipMidY),
		HeadHeight:   nose.Y,
		CenterY:      stat.Mean(ys, nil),
		AspectRatio:  aspectRatio(xs, ys),
		ShoulderMidX: shoulderMidX,
		ShoulderMidY: shoulderMidY,
	}
	if prev != nil {
		fv.Movement = math.Hypot(shoulderMidX-prev.ShoulderMidX, shoulderMidY-prev.ShoulderMidY)
	}

	return fv, nil
}

// BodyAngle 肩部中点相对髋部中点的位移与竖直方向的夹角（度，[0,180]）
// y 轴向下，因此直立时 dy < 0，结果为 0
func BodyAngle(dx, dy float64) float64 {
	return math.Abs(math.Atan2(dx, -dy) * 180 / math.Pi)
}

// aspectRatio 外接框 高/宽；宽度为 0 时返回 0
func aspectRatio(xs, ys []float64) float64 {
	width := floats.Max(xs) - floats.Min(xs)
	height := floats.Max(ys) - floats.Min(ys)
	if width <= 0 {
		return 0
	}
	return height / width
}

// Mirror 水平镜像（x' = 1 - x），返回新切片，不修改输入
func Mirror(landmarks []models.Landmark) []models.Landmark {
	out := make([]models.Landmark, len(landmarks))
	for i, p := range landmarks {
		p.X = 1 - p.X
		out[i] = p
	}
	return out
}
