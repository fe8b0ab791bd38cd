package video

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andresmejia3/trackpose/internal/types"
	"github.com/andresmejia3/trackpose/internal/utils"
)

// MockCloser wraps a bytes.Buffer to satisfy io.ReadCloser.
// This allows us to use in-memory buffers as if they were decoder pipes.
type MockCloser struct {
	*bytes.Buffer
	closed bool
}

func (m *MockCloser) Close() error {
	m.closed = true
	return nil
}

func TestRawSourceReadsWholeFrames(t *testing.T) {
	// Two 2x1 frames followed by EOF
	pipe := &MockCloser{Buffer: bytes.NewBuffer([]byte{
		1, 2, 3, 4, 5, 6,
		7, 8, 9, 10, 11, 12,
	})}
	src := NewRawSource(pipe, 2, 1, types.OrderBGR)

	for i := 0; i < 2; i++ {
		f, err := src.Next()
		if err != nil {
			t.Fatalf("Frame %d: unexpected error %v", i, err)
		}
		if f.Index != i || len(f.Data) != 6 || f.Order != types.OrderBGR {
			t.Errorf("Frame %d: unexpected frame %+v", i, f)
		}
	}

	if _, err := src.Next(); err != io.EOF {
		t.Errorf("Expected io.EOF at end of stream, got %v", err)
	}

	if err := src.Close(); err != nil {
		t.Fatal(err)
	}
	if !pipe.closed {
		t.Error("Expected the pipe to be closed")
	}
	// Second close is a no-op
	if err := src.Close(); err != nil {
		t.Errorf("Second Close returned %v", err)
	}
}

func TestRawSourcePartialFrameIsAnError(t *testing.T) {
	pipe := &MockCloser{Buffer: bytes.NewBuffer([]byte{1, 2, 3, 4})}
	src := NewRawSource(pipe, 2, 1, types.OrderRGB)
	defer src.Close()

	_, err := src.Next()
	if err == nil || err == io.EOF {
		t.Fatalf("Expected a read failure for a truncated frame, got %v", err)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("Expected ErrUnexpectedEOF in chain, got %v", err)
	}
}

func TestRawSourceShowsDecoderLogsOnFailure(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	// A decoder that complains and dies half way through a 2x1 frame
	ctx, cancel := context.WithCancel(context.Background())
	decoder := utils.NewSafeCommand(ctx, "sh", "-c", "echo 'moov atom not found' >&2; printf abcd")
	out, err := decoder.StdoutPipe()
	if err != nil {
		t.Fatal(err)
	}
	if err := decoder.Start(); err != nil {
		t.Fatal(err)
	}
	src := NewRawSource(out, 2, 1, types.OrderRGB)
	src.cmd = decoder
	src.cancel = cancel

	if _, err := src.Next(); err == nil || err == io.EOF {
		t.Fatalf("Expected a read failure, got %v", err)
	}

	oldStderr := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w
	src.Close()
	w.Close()
	os.Stderr = oldStderr

	logs, _ := io.ReadAll(r)
	r.Close()
	if !strings.Contains(string(logs), "moov atom not found") {
		t.Errorf("Expected decoder logs in the error box, got %q", logs)
	}
}

func TestNewOpener(t *testing.T) {
	if _, err := NewOpener("", Options{}); err != nil {
		t.Errorf("Default backend should resolve: %v", err)
	}
	if _, err := NewOpener("ffmpeg", Options{}); err != nil {
		t.Errorf("ffmpeg backend should resolve: %v", err)
	}
	if _, err := NewOpener("quicktime", Options{}); err == nil {
		t.Error("Expected an error for an unknown backend")
	}
}

func TestAcquireLocalIsNotTemporary(t *testing.T) {
	tmp, err := os.CreateTemp("", "clip_*.mp4")
	if err != nil {
		t.Fatal(err)
	}
	tmp.Close()
	defer os.Remove(tmp.Name())

	clip, err := Acquire(context.Background(), tmp.Name(), AcquireOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if clip.Temporary() || clip.Path != tmp.Name() {
		t.Fatalf("Expected the local file to be used in place, got %+v", clip)
	}
	if err := clip.Release(); err != nil {
		t.Fatal(err)
	}
	// The caller's file must survive Release
	if _, err := os.Stat(tmp.Name()); err != nil {
		t.Errorf("Release deleted a non-temporary file: %v", err)
	}
}

func TestAcquireRejectsDirectory(t *testing.T) {
	dir := t.TempDir()
	if _, err := Acquire(context.Background(), dir, AcquireOptions{}); err == nil {
		t.Error("Expected an error for a directory")
	}
}

func TestAcquireRemoteDownloadsAndReleases(t *testing.T) {
	payload := []byte("not really an mp4")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	dir := t.TempDir()
	clip, err := Acquire(context.Background(), srv.URL+"/videos/clip.mp4", AcquireOptions{TempDir: dir, Client: srv.Client()})
	if err != nil {
		t.Fatal(err)
	}
	if !clip.Temporary() {
		t.Fatal("Expected a downloaded clip to be temporary")
	}
	if filepath.Dir(clip.Path) != dir || filepath.Ext(clip.Path) != ".mp4" {
		t.Errorf("Unexpected temp path %s", clip.Path)
	}

	got, err := os.ReadFile(clip.Path)
	if err != nil || !bytes.Equal(got, payload) {
		t.Fatalf("Downloaded content mismatch: %q, %v", got, err)
	}

	if err := clip.Release(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(clip.Path); !os.IsNotExist(err) {
		t.Errorf("Expected temporary copy to be removed, stat err = %v", err)
	}
}

func TestAcquireRemoteHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	dir := t.TempDir()
	if _, err := Acquire(context.Background(), srv.URL+"/missing.mp4", AcquireOptions{TempDir: dir, Client: srv.Client()}); err == nil {
		t.Fatal("Expected an error for a 404")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("Expected no leftover temp files, found %d", len(entries))
	}
}
