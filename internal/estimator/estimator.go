// Package estimator loads top-down pose models and runs them on one subject box at a time.
package estimator

import (
	"context"
	"fmt"
	"time"

	"github.com/andresmejia3/trackpose/internal/types"
	"github.com/andresmejia3/trackpose/internal/worker"
)

// Estimator predicts keypoints for the subject inside box. Boxes are (x, y, w, h) in
// pixels of an RGB frame; every call returns NumJoints rows.
type Estimator interface {
	Infer(frame *types.Frame, box types.Box) (types.Keypoints, error)
	NumJoints() int
	Close() error
}

// Loader builds an Estimator from a model config and checkpoint.
type Loader interface {
	Load(ctx context.Context, configPath, checkpointPath string) (Estimator, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, configPath, checkpointPath string) (Estimator, error)

func (f LoaderFunc) Load(ctx context.Context, configPath, checkpointPath string) (Estimator, error) {
	return f(ctx, configPath, checkpointPath)
}

// Options configures the model backends.
type Options struct {
	Python      string // python interpreter for the worker backend
	Script      string // worker script
	Device      string // e.g. cuda:0, passed through to the worker
	ONNXLibrary string // path to libonnxruntime, empty for the default lookup
	LoadTimeout time.Duration
}

// NewLoader returns the loader for backend ("python" or "onnx").
func NewLoader(backend string, opts Options) (Loader, error) {
	switch backend {
	case "", "python":
		return pythonLoader(opts), nil
	case "onnx":
		return LoaderFunc(func(_ context.Context, configPath, checkpointPath string) (Estimator, error) {
			est, err := NewONNXEstimator(configPath, checkpointPath, opts.ONNXLibrary)
			if err != nil {
				return nil, err
			}
			return est, nil
		}), nil
	default:
		return nil, fmt.Errorf("unknown estimator backend %q (available: python, onnx)", backend)
	}
}

// LoadMethod resolves m under dataDir, loads it once and checks the model emits m.NumJoints joints.
func LoadMethod(ctx context.Context, loader Loader, m Method, dataDir string) (Estimator, error) {
	cfg, ckpt, err := m.Resolve(dataDir)
	if err != nil {
		return nil, err
	}
	est, err := loader.Load(ctx, cfg, ckpt)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", m.Name, err)
	}
	if est.NumJoints() != m.NumJoints {
		est.Close()
		return nil, fmt.Errorf("%s: model emits %d joints, expected %d", m.Name, est.NumJoints(), m.NumJoints)
	}
	return est, nil
}

func pythonLoader(opts Options) Loader {
	return LoaderFunc(func(ctx context.Context, configPath, checkpointPath string) (Estimator, error) {
		w, err := worker.NewPythonWorker(ctx, 0, worker.Config{
			Python:         opts.Python,
			Script:         opts.Script,
			ConfigPath:     configPath,
			CheckpointPath: checkpointPath,
			Device:         opts.Device,
			LoadTimeout:    opts.LoadTimeout,
		})
		if err != nil {
			return nil, err
		}
		return w, nil
	})
}
