package estimator

import (
	"encoding/json"
	"fmt"
	"image"
	"math"
	"os"
	"sync"

	"github.com/andresmejia3/trackpose/internal/types"
	ort "github.com/yalue/onnxruntime_go"
	"golang.org/x/image/draw"
)

// ONNXMetadata describes an exported heatmap model. It is the "config" of the onnx backend.
type ONNXMetadata struct {
	InputShape  []int64    `json:"input_shape"`  // [1, 3, H, W]
	OutputShape []int64    `json:"output_shape"` // [1, J, h, w]
	InputName   string     `json:"input_name"`
	OutputName  string     `json:"output_name"`
	Mean        [3]float32 `json:"mean"`
	Std         [3]float32 `json:"std"`

	// Padding grows the box before cropping, 1.25 when unset
	Padding float64 `json:"padding"`
}

var imagenetMean = [3]float32{123.675, 116.28, 103.53}
var imagenetStd = [3]float32{58.395, 57.12, 57.375}

func (m *ONNXMetadata) setDefaults() error {
	if len(m.InputShape) != 4 || len(m.OutputShape) != 4 {
		return fmt.Errorf("expected 4-d input and output shapes, got %v and %v", m.InputShape, m.OutputShape)
	}
	if m.InputShape[1] != 3 {
		return fmt.Errorf("expected a 3-channel input, got shape %v", m.InputShape)
	}
	if m.InputName == "" {
		m.InputName = "input"
	}
	if m.OutputName == "" {
		m.OutputName = "output"
	}
	if m.Std == [3]float32{} {
		m.Mean, m.Std = imagenetMean, imagenetStd
	}
	if m.Padding <= 0 {
		m.Padding = 1.25
	}
	return nil
}

// The onnxruntime environment is process-wide; sessions share it.
var (
	envMu   sync.Mutex
	envRefs int
)

func acquireEnv(library string) error {
	envMu.Lock()
	defer envMu.Unlock()
	if envRefs == 0 {
		if library != "" {
			ort.SetSharedLibraryPath(library)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}
	envRefs++
	return nil
}

func releaseEnv() {
	envMu.Lock()
	defer envMu.Unlock()
	envRefs--
	if envRefs == 0 {
		ort.DestroyEnvironment()
	}
}

// ONNXEstimator runs a top-down heatmap model in-process through onnxruntime.
// It is not safe for concurrent use; each session loads its own.
type ONNXEstimator struct {
	session      *ort.AdvancedSession
	Metadata     ONNXMetadata
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// NewONNXEstimator loads modelPath with the shapes described in metadataPath.
func NewONNXEstimator(metadataPath, modelPath, library string) (*ONNXEstimator, error) {
	metaFile, err := os.ReadFile(metadataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var metadata ONNXMetadata
	if err := json.Unmarshal(metaFile, &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if err := metadata.setDefaults(); err != nil {
		return nil, fmt.Errorf("invalid metadata %s: %w", metadataPath, err)
	}

	if err := acquireEnv(library); err != nil {
		return nil, err
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.InputShape...))
	if err != nil {
		releaseEnv()
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		releaseEnv()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		releaseEnv()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &ONNXEstimator{
		session:      session,
		Metadata:     metadata,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

func (e *ONNXEstimator) NumJoints() int {
	return int(e.Metadata.OutputShape[1])
}

func (e *ONNXEstimator) Infer(frame *types.Frame, box types.Box) (types.Keypoints, error) {
	inH, inW := int(e.Metadata.InputShape[2]), int(e.Metadata.InputShape[3])
	region := boxRegion(box, float64(inW)/float64(inH), e.Metadata.Padding)

	input := preprocess(frame.Image(), region, inW, inH, e.Metadata.Mean, e.Metadata.Std)
	copy(e.inputTensor.GetData(), input)

	if err := e.session.Run(); err != nil {
		return types.Keypoints{}, fmt.Errorf("inference failed: %w", err)
	}

	j, h, w := int(e.Metadata.OutputShape[1]), int(e.Metadata.OutputShape[2]), int(e.Metadata.OutputShape[3])
	return decodeHeatmaps(e.outputTensor.GetData(), j, h, w, region), nil
}

func (e *ONNXEstimator) Close() error {
	if e.inputTensor != nil {
		e.inputTensor.Destroy()
	}
	if e.outputTensor != nil {
		e.outputTensor.Destroy()
	}
	if e.session != nil {
		e.session.Destroy()
	}
	releaseEnv()
	return nil
}

// boxRegion grows the box by padding around its center and widens the short side
// so the region matches the model's input aspect ratio (width / height).
func boxRegion(box types.Box, aspect, padding float64) image.Rectangle {
	cx, cy := box.X+box.W/2, box.Y+box.H/2
	w, h := box.W, box.H
	if w > aspect*h {
		h = w / aspect
	} else {
		w = h * aspect
	}
	w, h = math.Max(w*padding, 1), math.Max(h*padding, 1)

	x0, y0 := int(math.Floor(cx-w/2)), int(math.Floor(cy-h/2))
	return image.Rect(x0, y0, x0+int(math.Ceil(w)), y0+int(math.Ceil(h)))
}

// preprocess crops region out of img (zero padding outside the frame), resizes it
// to inW x inH and returns a normalized CHW tensor.
func preprocess(img *image.RGBA, region image.Rectangle, inW, inH int, mean, std [3]float32) []float32 {
	crop := image.NewRGBA(image.Rect(0, 0, region.Dx(), region.Dy()))
	draw.Draw(crop, crop.Bounds(), img, region.Min, draw.Src)

	scaled := image.NewRGBA(image.Rect(0, 0, inW, inH))
	draw.BiLinear.Scale(scaled, scaled.Bounds(), crop, crop.Bounds(), draw.Src, nil)

	plane := inW * inH
	out := make([]float32, 3*plane)
	for y := 0; y < inH; y++ {
		for x := 0; x < inW; x++ {
			p := scaled.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				out[c*plane+y*inW+x] = (float32(scaled.Pix[p+c]) - mean[c]) / std[c]
			}
		}
	}
	return out
}

// decodeHeatmaps takes the argmax of each joint's heatmap and maps it back into frame pixels.
// The peak value is the score; it doubles as visibility since heatmap models have no separate head.
func decodeHeatmaps(data []float32, numJoints, h, w int, region image.Rectangle) types.Keypoints {
	kp := types.ZeroKeypoints(numJoints)
	sx := float64(region.Dx()) / float64(w)
	sy := float64(region.Dy()) / float64(h)

	for j := 0; j < numJoints; j++ {
		heatmap := data[j*h*w : (j+1)*h*w]
		maxIdx := 0
		maxVal := heatmap[0]
		for i, val := range heatmap {
			if val > maxVal {
				maxVal = val
				maxIdx = i
			}
		}

		px, py := maxIdx%w, maxIdx/w
		kp.Coords[j] = [2]float64{
			float64(region.Min.X) + (float64(px)+0.5)*sx,
			float64(region.Min.Y) + (float64(py)+0.5)*sy,
		}
		score := math.Max(float64(maxVal), 0)
		kp.Scores[j] = score
		kp.Visible[j] = score
	}
	return kp
}
