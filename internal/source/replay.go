package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"wisefido-pose/internal/models"

	"go.uber.org/zap"
)

// maxReplayLine 单行最大长度（33 个关键点的 JSON 远小于此值）
const maxReplayLine = 1 << 20

// ReplaySource 从 JSON-lines 文件回放姿态帧（每行一个 Payload）
type ReplaySource struct {
	mu      sync.Mutex
	scanner *bufio.Scanner
	closer  io.Closer
	camera  string
	mirror  bool
	logger  *zap.Logger
	line    int
	closed  bool
}

// NewReplaySource 从 reader 回放；defaultCamera 用于未携带 camera_id 的行
func NewReplaySource(r io.Reader, defaultCamera string, mirror bool, logger *zap.Logger) *ReplaySource {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxReplayLine)

	s := &ReplaySource{
		scanner: scanner,
		camera:  defaultCamera,
		mirror:  mirror,
		logger:  logger,
	}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// OpenReplayFile 打开回放文件
func OpenReplayFile(path, defaultCamera string, mirror bool, logger *zap.Logger) (*ReplaySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open replay file: %w", err)
	}
	logger.Info("Replaying pose file", zap.String("path", path))
	return NewReplaySource(f, defaultCamera, mirror, logger), nil
}

// Next 返回下一帧；读完后返回 ErrSourceClosed
func (s *ReplaySource) Next(ctx context.Context) (models.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return models.Frame{}, err
		}
		if s.closed {
			return models.Frame{}, ErrSourceClosed
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return models.Frame{}, fmt.Errorf("failed to read replay line %d: %w", s.line+1, err)
			}
			return models.Frame{}, ErrSourceClosed
		}
		s.line++

		line := s.scanner.Bytes()
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		frame, err := DecodeFrame(line, s.camera, s.mirror)
		if err != nil {
			s.logger.Warn("Skipping malformed replay line", zap.Int("line", s.line), zap.Error(err))
			continue
		}
		return frame, nil
	}
}

// Close 关闭来源
func (s *ReplaySource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
