package models

// FeatureVector 单帧特征向量（每帧最多生成一次，生成后不再修改）
type FeatureVector struct {
	BodyAngle   float64 `json:"body_angle"`   // 体轴角度（度），0 = 直立，90 = 水平
	HeadHeight  float64 `json:"head_height"`  // 鼻尖 y（越小越高）
	CenterY     float64 `json:"center_y"`     // 可见关键点 y 均值
	AspectRatio float64 `json:"aspect_ratio"` // 外接框 高/宽
	Movement    float64 `json:"movement"`     // 肩部中点相对上一帧的位移

	// 下一帧计算 Movement 使用
	ShoulderMidX float64 `json:"shoulder_mid_x"`
	ShoulderMidY float64 `json:"shoulder_mid_y"`
}
