package worker

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/andresmejia3/trackpose/internal/types"
	"github.com/andresmejia3/trackpose/internal/utils" // Using the SafeCommand wrapper
	"github.com/vmihailenco/msgpack/v5"
)

// ErrWorker wraps errors reported by the Python side (as opposed to pipe failures).
var ErrWorker = errors.New("python worker error")

// ErrMessageTooLarge means a reply header announced more than maxMessageSize bytes,
// which only happens when the stream is corrupt.
var ErrMessageTooLarge = errors.New("worker message exceeds size limit")

// Replies carry keypoints, not pixels; 256 MiB is far above any real one.
const maxMessageSize = 256 << 20

// Config describes how to launch a pose worker process.
type Config struct {
	Python         string // interpreter, default python3
	Script         string
	ConfigPath     string
	CheckpointPath string
	Device         string
	// LoadTimeout bounds model loading (the handshake); 0 waits forever
	LoadTimeout    time.Duration
}

// PythonWorker drives a top-down pose model living in a Python process.
//
// Protocol: every message in both directions is [uint32 big-endian length][msgpack body].
// Requests go over stdin; replies come back on a dedicated pipe (FD 3 in the child) so
// library noise on stdout cannot corrupt the stream. The first reply is a handshake
// announcing the joint count once the model has loaded.
type PythonWorker struct {
	ID        int
	Cmd       *utils.SafeCommand
	Stdin     io.WriteCloser
	DataPipe  io.ReadCloser
	numJoints int
}

type handshake struct {
	Ready     bool   `msgpack:"ready"`
	NumJoints int    `msgpack:"num_joints"`
	Error     string `msgpack:"error"`
}

type inferRequest struct {
	Frame  []byte     `msgpack:"frame"`
	Width  int        `msgpack:"width"`
	Height int        `msgpack:"height"`
	BBox   [4]float64 `msgpack:"bbox"` // x, y, w, h
}

type inferResponse struct {
	Keypoints [][2]float64 `msgpack:"keypoints"`
	Scores    []float64    `msgpack:"scores"`
	Visible   []float64    `msgpack:"visible"`
	Error     string       `msgpack:"error"`
}

// NewPythonWorker starts the worker and blocks until the model is loaded.
func NewPythonWorker(ctx context.Context, id int, cfg Config) (*PythonWorker, error) {
	python := cfg.Python
	if python == "" {
		python = "python3"
	}
	args := []string{"-u", cfg.Script, "--config", cfg.ConfigPath, "--checkpoint", cfg.CheckpointPath}
	if cfg.Device != "" {
		args = append(args, "--device", cfg.Device)
	}

	// 1. Initialize the SafeCommand
	py := utils.NewSafeCommand(ctx, python, args...)

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close() // Prevent FD leak
		r.Close() // Close read-end too!
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close() // Close write end if start fails
		r.Close() // Close read-end too!
		return nil, fmt.Errorf("worker %d failed to start: %w", id, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	pw := &PythonWorker{
		ID:       id,
		Cmd:      py,
		Stdin:    stdin,
		DataPipe: r,
	}
	if err := pw.awaitReadyWithin(cfg.LoadTimeout); err != nil {
		utils.ShowError(fmt.Sprintf("Pose worker %d failed to load the model", id), err, py)
		pw.Close()
		return nil, err
	}
	return pw, nil
}

// awaitReadyWithin kills the worker when the handshake takes longer than timeout.
func (w *PythonWorker) awaitReadyWithin(timeout time.Duration) error {
	if timeout <= 0 {
		return w.awaitReady()
	}

	done := make(chan error, 1)
	go func() { done <- w.awaitReady() }()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		if w.Cmd != nil && w.Cmd.Process != nil {
			w.Cmd.Process.Kill()
		}
		w.DataPipe.Close() // unblocks the pending read
		<-done
		return fmt.Errorf("worker %d did not load the model within %s", w.ID, timeout)
	}
}

// awaitReady reads the handshake sent after the model finished loading.
func (w *PythonWorker) awaitReady() error {
	var hs handshake
	if err := readMessage(w.DataPipe, &hs); err != nil {
		return fmt.Errorf("worker %d did not complete handshake: %w", w.ID, err)
	}
	if hs.Error != "" {
		return fmt.Errorf("%w: %s", ErrWorker, hs.Error)
	}
	if !hs.Ready || hs.NumJoints <= 0 {
		return fmt.Errorf("worker %d sent an invalid handshake (ready=%v, joints=%d)", w.ID, hs.Ready, hs.NumJoints)
	}
	w.numJoints = hs.NumJoints
	return nil
}

// NumJoints is the joint count announced by the loaded model.
func (w *PythonWorker) NumJoints() int {
	return w.numJoints
}

// Infer runs the model on one RGB frame restricted to one box.
func (w *PythonWorker) Infer(frame *types.Frame, box types.Box) (types.Keypoints, error) {
	req := inferRequest{
		Frame:  frame.Data,
		Width:  frame.Width,
		Height: frame.Height,
		BBox:   box.XYWH(),
	}
	if err := writeMessage(w.Stdin, req); err != nil {
		return types.Keypoints{}, fmt.Errorf("failed to send frame %d: %w", frame.Index, err)
	}

	var resp inferResponse
	if err := readMessage(w.DataPipe, &resp); err != nil {
		return types.Keypoints{}, fmt.Errorf("failed to read result for frame %d: %w", frame.Index, err)
	}
	if resp.Error != "" {
		return types.Keypoints{}, fmt.Errorf("%w: %s", ErrWorker, resp.Error)
	}

	return types.Keypoints{Coords: resp.Keypoints, Scores: resp.Scores, Visible: resp.Visible}, nil
}

// Close shuts the worker down. Closing stdin lets the Python loop exit on EOF.
func (w *PythonWorker) Close() error {
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd == nil {
		return nil
	}
	return w.Cmd.Wait()
}

func writeMessage(w io.Writer, v interface{}) error {
	body, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal msgpack request: %w", err)
	}
	// Protocol: [Length][Data]
	if err := binary.Write(w, binary.BigEndian, uint32(len(body))); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

func readMessage(r io.Reader, v interface{}) error {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return err // This is where we catch an import-time crash in the worker
	}

	size := binary.BigEndian.Uint32(header)
	if size > maxMessageSize {
		return fmt.Errorf("%w: header claims %d bytes", ErrMessageTooLarge, size)
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return err
	}
	if err := msgpack.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to unmarshal msgpack reply: %w", err)
	}
	return nil
}
