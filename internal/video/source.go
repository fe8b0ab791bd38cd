// Package video provides forward-only frame sources over a video file.
//
// A FrameSource is consumed exactly once, front to back, and must be closed by
// whoever opened it. Next returns io.EOF at the end of the stream; any other
// error is a read failure.
package video

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/andresmejia3/trackpose/internal/types"
	"github.com/andresmejia3/trackpose/internal/utils"
)

// FrameSource yields decoded frames in order.
type FrameSource interface {
	Next() (*types.Frame, error)
	Close() error
}

// Counter is implemented by sources that know their frame count up front.
// FrameCount returns 0 when the count is unknown.
type Counter interface {
	FrameCount() int
}

// Opener opens a frame source on a local video file.
type Opener interface {
	Open(ctx context.Context, path string) (FrameSource, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, path string) (FrameSource, error)

func (f OpenerFunc) Open(ctx context.Context, path string) (FrameSource, error) {
	return f(ctx, path)
}

// Options configures the decoding backends.
type Options struct {
	FFmpeg     string
	FFprobe    string
	Order      types.PixelOrder
	CountCheck bool // expose the container frame count so callers can validate up front
}

var backends = map[string]func(Options) Opener{
	"ffmpeg": func(o Options) Opener { return &FFmpegOpener{Options: o} },
}

// NewOpener returns the opener registered under backend.
func NewOpener(backend string, opts Options) (Opener, error) {
	if backend == "" {
		backend = "ffmpeg"
	}
	mk, ok := backends[backend]
	if !ok {
		return nil, fmt.Errorf("unknown video backend %q (available: %v)", backend, Backends())
	}
	return mk(opts), nil
}

// Backends lists the compiled-in decoding backends.
func Backends() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// --- FFmpeg backend ---

// FFmpegOpener decodes through an ffmpeg subprocess writing rawvideo to a pipe.
type FFmpegOpener struct {
	Options
}

func (o *FFmpegOpener) Open(ctx context.Context, path string) (FrameSource, error) {
	ffmpeg, ffprobe := o.FFmpeg, o.FFprobe
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}

	info, err := utils.ProbeVideo(ctx, ffprobe, path)
	if err != nil {
		return nil, fmt.Errorf("failed to probe %s: %w", path, err)
	}

	pixFmt := "rgb24"
	if o.Order == types.OrderBGR {
		pixFmt = "bgr24"
	}

	// The source owns the process; Close cancels it so an early exit never leaves ffmpeg blocked on a full pipe
	ctx, cancel := context.WithCancel(ctx)
	decoder := utils.NewFFmpegRawDecoder(ctx, ffmpeg, path, pixFmt)
	out, err := decoder.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create decoder pipe: %w", err)
	}
	if err := decoder.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start decoder: %w", err)
	}

	src := NewRawSource(out, info.Width, info.Height, o.Order)
	src.cmd = decoder
	src.cancel = cancel
	if o.CountCheck {
		src.count = info.Frames
	}
	return src, nil
}

// RawSource reads fixed-size packed frames from a byte stream.
type RawSource struct {
	r      io.ReadCloser
	width  int
	height int
	order  types.PixelOrder
	count  int
	index  int
	cmd     *utils.SafeCommand
	cancel  context.CancelFunc
	readErr error
	closed  bool
}

// NewRawSource wraps a stream of Width*Height*3 byte frames.
func NewRawSource(r io.ReadCloser, width, height int, order types.PixelOrder) *RawSource {
	return &RawSource{r: r, width: width, height: height, order: order}
}

// Next reads the next frame. A partial trailing frame is a read failure, not EOF.
func (s *RawSource) Next() (*types.Frame, error) {
	buf := make([]byte, s.width*s.height*3)
	if _, err := io.ReadFull(s.r, buf); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		s.readErr = fmt.Errorf("frame %d: %w", s.index, err)
		return nil, s.readErr
	}
	f := &types.Frame{Index: s.index, Width: s.width, Height: s.height, Order: s.order, Data: buf}
	s.index++
	return f, nil
}

func (s *RawSource) FrameCount() int {
	return s.count
}

// Close releases the pipe and reaps the decoder process. Safe to call twice.
// After a failed read the decoder's own logs are shown, since they usually name the cause.
func (s *RawSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.r.Close()
	if s.cmd != nil {
		s.cancel()
		// The process is killed when closed early, so its exit status carries no information here
		_ = s.cmd.Wait()
		if s.readErr != nil {
			utils.ShowError("Video decoder failed", s.readErr, s.cmd)
		}
	}
	return err
}
