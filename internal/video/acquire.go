package video

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/trackpose/internal/utils"
	"go.uber.org/zap"
)

// Clip is a local, readable copy of a video reference.
// When the copy was created only for this run, Release deletes it.
type Clip struct {
	Ref       string
	Path      string
	temporary bool
	released  bool
}

// Temporary reports whether Release will delete Path.
func (c *Clip) Temporary() bool {
	return c.temporary
}

// Release removes the temporary copy, if any. Safe to call more than once.
func (c *Clip) Release() error {
	if c.released || !c.temporary {
		c.released = true
		return nil
	}
	c.released = true
	if err := os.Remove(c.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove temporary video %s: %w", c.Path, err)
	}
	utils.Logger.Debug("removed temporary video", zap.String("path", c.Path))
	return nil
}

// AcquireOptions controls how a reference is materialized.
type AcquireOptions struct {
	FFmpeg  string
	TempDir string
	// Robust re-encodes the video to constant frame rate so every frame decodes exactly once.
	Robust bool
	Client *http.Client
}

// Acquire turns a reference (local path or http(s) URL) into a local Clip.
func Acquire(ctx context.Context, ref string, opts AcquireOptions) (*Clip, error) {
	if isRemote(ref) {
		tmp, err := download(ctx, ref, opts)
		if err != nil {
			return nil, err
		}
		clip := &Clip{Ref: ref, Path: tmp, temporary: true}
		if !opts.Robust {
			return clip, nil
		}
		// Transcode the download and drop the raw copy straight away
		robust, err := transcode(ctx, tmp, opts)
		clip.Release()
		if err != nil {
			return nil, err
		}
		return &Clip{Ref: ref, Path: robust, temporary: true}, nil
	}

	info, err := os.Stat(ref)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory, expected a video file", ref)
	}

	if opts.Robust {
		robust, err := transcode(ctx, ref, opts)
		if err != nil {
			return nil, err
		}
		return &Clip{Ref: ref, Path: robust, temporary: true}, nil
	}
	return &Clip{Ref: ref, Path: ref}, nil
}

func isRemote(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

func tempFile(opts AcquireOptions, ext string) (*os.File, error) {
	if ext == "" {
		ext = ".mp4"
	}
	return os.CreateTemp(opts.TempDir, "trackpose-*"+ext)
}

func download(ctx context.Context, ref string, opts AcquireOptions) (string, error) {
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download %s: %w", ref, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download %s: %s", ref, resp.Status)
	}

	ext := ""
	if u, err := url.Parse(ref); err == nil {
		ext = path.Ext(u.Path)
	}
	f, err := tempFile(opts, ext)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to download %s: %w", ref, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	utils.Logger.Debug("downloaded video", zap.String("ref", ref), zap.String("path", f.Name()))
	return f.Name(), nil
}

func transcode(ctx context.Context, input string, opts AcquireOptions) (string, error) {
	ffmpeg := opts.FFmpeg
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}

	f, err := tempFile(opts, ".mp4")
	if err != nil {
		return "", err
	}
	out := f.Name()
	f.Close()

	cmd := utils.NewFFmpegTranscoder(ctx, ffmpeg, input, out)
	if err := cmd.Run(); err != nil {
		os.Remove(out)
		utils.ShowError("Failed to re-encode "+filepath.Base(input), err, cmd)
		return "", fmt.Errorf("ffmpeg transcode failed: %w", err)
	}
	return out, nil
}
