// Package history 保存最近若干帧的特征向量，用于固定帧差回看。
//
// Buffer 只有单一写者和单一读者，调用方负责串行化访问。
package history

import (
	"time"

	"wisefido-pose/internal/models"
)

const (
	// Capacity 缓冲区容量（超出后按 FIFO 淘汰最旧条目），不对外开放配置
	Capacity = 30
	// LookbackLag 规则 2/4/5 使用的回看帧数
	LookbackLag = 8
)

// Entry 历史条目
type Entry struct {
	Features  models.FeatureVector
	Timestamp time.Time
}

// Buffer 固定容量滑动窗口，最旧在前
type Buffer struct {
	entries []Entry
}

// NewBuffer 创建缓冲区
func NewBuffer() *Buffer {
	return &Buffer{
		entries: make([]Entry, 0, Capacity),
	}
}

// Push 追加一帧，长度超过容量时淘汰最旧条目
func (b *Buffer) Push(fv models.FeatureVector, ts time.Time) {
	e := Entry{Features: fv, Timestamp: ts}
	if len(b.entries) < Capacity {
		b.entries = append(b.entries, e)
		return
	}
	copy(b.entries, b.entries[1:])
	b.entries[len(b.entries)-1] = e
}

// Lookback 返回最新条目之前第 n 个条目；条目数不足 n+1 时 ok 为 false
func (b *Buffer) Lookback(n int) (Entry, bool) {
	if n < 0 || len(b.entries) < n+1 {
		return Entry{}, false
	}
	return b.entries[len(b.entries)-1-n], true
}

// Len 当前条目数
func (b *Buffer) Len() int {
	return len(b.entries)
}

// Reset 清空
func (b *Buffer) Reset() {
	b.entries = b.entries[:0]
}
