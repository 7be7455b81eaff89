// Package sweeper removes expired capture files and runs periodic maintenance jobs.
package sweeper

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/xiaocaoooo/yemoshot/internal/observability"
)

// DefaultMaxAge is how long a capture file is kept.
const DefaultMaxAge = 24 * time.Hour

// Result summarises one sweep.
type Result struct {
	Scanned int `json:"scanned"`
	Removed int `json:"removed"`
	Failed  int `json:"failed"`
}

// Sweeper deletes regular files in Dir whose modification time is older than MaxAge.
type Sweeper struct {
	dir     string
	maxAge  time.Duration
	now     func() time.Time
	logger  *zap.Logger
	metrics *observability.Metrics
}

// Option configures a Sweeper.
type Option func(*Sweeper)

func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Sweeper) { s.logger = logger }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(s *Sweeper) { s.metrics = m }
}

func New(dir string, maxAge time.Duration, opts ...Option) *Sweeper {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	s := &Sweeper{
		dir:    dir,
		maxAge: maxAge,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep is best effort: listing, stat and remove failures are logged and
// counted but never returned.
func (s *Sweeper) Sweep(ctx context.Context) Result {
	var res Result

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug("sweep: list directory failed", zap.String("dir", s.dir), zap.Error(err))
		}
		return res
	}

	now := s.now()
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if entry.IsDir() {
			continue
		}
		res.Scanned++

		path := filepath.Join(s.dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			res.Failed++
			s.logger.Debug("sweep: stat failed", zap.String("file", path), zap.Error(err))
			continue
		}
		if now.Sub(info.ModTime()) <= s.maxAge {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			res.Failed++
			s.logger.Debug("sweep: remove failed", zap.String("file", path), zap.Error(err))
			continue
		}
		res.Removed++
	}

	s.metrics.FilesSwept(res.Removed)
	if res.Removed > 0 || res.Failed > 0 {
		s.logger.Info("sweep completed",
			zap.String("dir", s.dir),
			zap.Int("scanned", res.Scanned),
			zap.Int("removed", res.Removed),
			zap.Int("failed", res.Failed))
	}
	return res
}
