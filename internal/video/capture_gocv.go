//go:build gocv

package video

import (
	"context"
	"fmt"
	"io"

	"github.com/andresmejia3/trackpose/internal/types"
	"gocv.io/x/gocv"
)

// The OpenCV backend needs cgo and a system OpenCV, so it is only compiled with -tags gocv.
func init() {
	backends["gocv"] = func(o Options) Opener { return &CaptureOpener{CountCheck: o.CountCheck} }
}

// CaptureOpener decodes with OpenCV's VideoCapture. Frames come out in OpenCV's native BGR order.
type CaptureOpener struct {
	CountCheck bool
}

func (o *CaptureOpener) Open(_ context.Context, path string) (FrameSource, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture on %s: %w", path, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("capture on %s did not open", path)
	}

	src := &CaptureSource{capture: vc, mat: gocv.NewMat()}
	if o.CountCheck {
		src.count = int(vc.Get(gocv.VideoCaptureFrameCount))
	}
	return src, nil
}

// CaptureSource reads frames from a gocv.VideoCapture.
type CaptureSource struct {
	capture *gocv.VideoCapture
	mat     gocv.Mat
	count   int
	index   int
	closed  bool
}

func (s *CaptureSource) Next() (*types.Frame, error) {
	if ok := s.capture.Read(&s.mat); !ok || s.mat.Empty() {
		return nil, io.EOF
	}
	if s.mat.Channels() != 3 {
		return nil, fmt.Errorf("frame %d: expected 3 channels, got %d", s.index, s.mat.Channels())
	}

	f := &types.Frame{
		Index:  s.index,
		Width:  s.mat.Cols(),
		Height: s.mat.Rows(),
		Order:  types.OrderBGR,
		Data:   s.mat.ToBytes(),
	}
	s.index++
	return f, nil
}

func (s *CaptureSource) FrameCount() int {
	return s.count
}

func (s *CaptureSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.mat.Close()
	return s.capture.Close()
}
