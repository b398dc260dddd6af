package notifier

import (
	"context"
	"sync"
	"time"

	"wisefido-pose/internal/models"
	"wisefido-pose/internal/timeutil"
)

// Banner 屏幕中央显示的跌倒规则横幅
type Banner struct {
	CameraID  string    `json:"camera_id"`
	Rules     []string  `json:"rules"`
	ShownAt   time.Time `json:"shown_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type bannerEntry struct {
	banner Banner
	timer  timeutil.Timer
}

// BannerBoard 每个摄像头当前显示的横幅
// 新横幅替换旧横幅并取消旧横幅的自动消失定时器
type BannerBoard struct {
	mu      sync.Mutex
	clock   timeutil.Clock
	banners map[string]*bannerEntry
}

// NewBannerBoard 创建横幅面板
func NewBannerBoard(clock timeutil.Clock) *BannerBoard {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &BannerBoard{
		clock:   clock,
		banners: make(map[string]*bannerEntry),
	}
}

// Notify 显示横幅，BannerDuration 后自动消失
func (b *BannerBoard) Notify(_ context.Context, result models.FrameResult, effect models.AlertEffect) error {
	if len(effect.Banner) == 0 || effect.BannerDuration <= 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if prev, ok := b.banners[result.CameraID]; ok {
		prev.timer.Stop()
	}

	now := b.clock.Now()
	entry := &bannerEntry{
		banner: Banner{
			CameraID:  result.CameraID,
			Rules:     append([]string(nil), effect.Banner...),
			ShownAt:   now,
			ExpiresAt: now.Add(effect.BannerDuration),
		},
	}
	cameraID := result.CameraID
	entry.timer = b.clock.AfterFunc(effect.BannerDuration, func() {
		b.dismiss(cameraID, entry)
	})
	b.banners[cameraID] = entry
	return nil
}

func (b *BannerBoard) dismiss(cameraID string, entry *bannerEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.banners[cameraID]; ok && cur == entry {
		delete(b.banners, cameraID)
	}
}

// Active 当前显示的横幅
func (b *BannerBoard) Active(cameraID string) (Banner, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.banners[cameraID]
	if !ok {
		return Banner{}, false
	}
	return entry.banner, true
}

// Clear 立即清除横幅（会话重置时调用）
func (b *BannerBoard) Clear(cameraID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if entry, ok := b.banners[cameraID]; ok {
		entry.timer.Stop()
		delete(b.banners, cameraID)
	}
}
