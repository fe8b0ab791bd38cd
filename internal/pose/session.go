package pose

import (
	"context"
	"fmt"

	"github.com/andresmejia3/trackpose/internal/estimator"
	"github.com/andresmejia3/trackpose/internal/types"
	"github.com/andresmejia3/trackpose/internal/utils"
	"github.com/andresmejia3/trackpose/internal/video"
	"go.uber.org/zap"
)

// Session pairs one loaded estimator with one frame source per run.
// Sessions are not shared between goroutines.
type Session struct {
	Opener    video.Opener
	Estimator estimator.Estimator
	Key       string
	Progress  Progress
}

// Run estimates the pose of one track over clip. The clip is released on every path,
// so temporary copies never outlive the run.
func (s *Session) Run(ctx context.Context, clip *video.Clip, boxes types.TrackBoxes) (*types.ClipResult, error) {
	defer func() {
		if err := clip.Release(); err != nil {
			utils.Logger.Warn("failed to release video", zap.String("ref", clip.Ref), zap.Error(err))
		}
	}()

	utils.Logger.Info("processing "+s.Key,
		zap.Int("frames", len(boxes)),
		zap.Int("missing", boxes.Missing()),
	)

	src, err := s.Opener.Open(ctx, clip.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", clip.Ref, err)
	}

	opts := []Option{WithKey(s.Key)}
	if s.Progress != nil {
		opts = append(opts, WithProgress(s.Progress))
	}
	track, err := TopDown(src, boxes, s.Estimator, opts...)
	if err != nil {
		return nil, err
	}
	return Assemble(track), nil
}
