// Package pose runs a top-down estimator over one tracked subject for a whole clip.
package pose

import (
	"errors"
	"fmt"
	"io"

	"github.com/andresmejia3/trackpose/internal/estimator"
	"github.com/andresmejia3/trackpose/internal/types"
	"github.com/andresmejia3/trackpose/internal/utils"
	"github.com/andresmejia3/trackpose/internal/video"
	"go.uber.org/zap"
)

var (
	// ErrBoxCount means the source reports a frame count different from the number of boxes.
	ErrBoxCount = errors.New("box count does not match the video frame count")
	// ErrShortRead means the video could not supply a frame for every box.
	ErrShortRead = errors.New("video ended before every box had a frame")
	// ErrJointCount means the estimator returned a different number of joints than it announced.
	ErrJointCount = errors.New("estimator returned an unexpected joint count")
)

// Progress is ticked once per frame. *progressbar.ProgressBar satisfies it.
type Progress interface {
	Add(num int) error
}

// Track holds the per-frame estimator outputs, F rows each.
type Track struct {
	Coords  [][][2]float64
	Scores  [][]float64
	Visible [][]float64
}

// Len returns F.
func (t *Track) Len() int {
	return len(t.Coords)
}

func (t *Track) append(kp types.Keypoints) {
	t.Coords = append(t.Coords, kp.Coords)
	t.Scores = append(t.Scores, kp.Scores)
	t.Visible = append(t.Visible, kp.Visible)
}

type loopConfig struct {
	progress Progress
	key      string
}

// Option customizes TopDown.
type Option func(*loopConfig)

// WithProgress ticks p once per frame.
func WithProgress(p Progress) Option {
	return func(c *loopConfig) { c.progress = p }
}

// WithKey tags log lines with the clip/track being processed.
func WithKey(key string) Option {
	return func(c *loopConfig) { c.key = key }
}

// TopDown reads one frame per box and runs est on every frame whose box is present.
// Frames with a missing box get all-zero placeholders and never reach the estimator.
// src is closed before TopDown returns, whatever the outcome.
func TopDown(src video.FrameSource, boxes types.TrackBoxes, est estimator.Estimator, opts ...Option) (*Track, error) {
	defer src.Close()

	cfg := loopConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	log := utils.Logger.With(zap.String("key", cfg.key))

	if c, ok := src.(video.Counter); ok {
		if n := c.FrameCount(); n > 0 && n != len(boxes) {
			return nil, fmt.Errorf("%w: %d boxes, %d frames", ErrBoxCount, len(boxes), n)
		}
	}

	numJoints := est.NumJoints()
	track := &Track{
		Coords:  make([][][2]float64, 0, len(boxes)),
		Scores:  make([][]float64, 0, len(boxes)),
		Visible: make([][]float64, 0, len(boxes)),
	}

	for i, box := range boxes {
		frame, err := src.Next()
		if err == io.EOF {
			return nil, fmt.Errorf("%w: got %d of %d frames", ErrShortRead, i, len(boxes))
		}
		if err != nil {
			return nil, fmt.Errorf("%w: frame %d: %w", ErrShortRead, i, err)
		}

		if box.Missing() {
			log.Debug("no detection, skipping frame", zap.Int("frame", i))
			track.append(types.ZeroKeypoints(numJoints))
		} else {
			frame.ToRGB()
			kp, err := est.Infer(frame, box)
			if err != nil {
				return nil, fmt.Errorf("estimator failed on frame %d: %w", i, err)
			}
			if len(kp.Coords) != numJoints || len(kp.Scores) != numJoints || len(kp.Visible) != numJoints {
				return nil, fmt.Errorf("%w: frame %d has %d/%d/%d rows, want %d",
					ErrJointCount, i, len(kp.Coords), len(kp.Scores), len(kp.Visible), numJoints)
			}
			track.append(kp)
		}

		if cfg.progress != nil {
			cfg.progress.Add(1)
		}
	}

	log.Debug("track complete", zap.Int("frames", len(boxes)), zap.Int("missing", boxes.Missing()))
	return track, nil
}
