package types

import (
	"image"
	"math"
)

// Box is a person bounding box in pixel units, (x, y) being the top-left corner.
// A box with any NaN coordinate means the tracked subject was not detected in that frame.
type Box struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	W float64 `json:"w" yaml:"w"`
	H float64 `json:"h" yaml:"h"`
}

// MissingBox returns the "no detection this frame" sentinel.
func MissingBox() Box {
	nan := math.NaN()
	return Box{X: nan, Y: nan, W: nan, H: nan}
}

// Missing reports whether any coordinate is NaN.
func (b Box) Missing() bool {
	return math.IsNaN(b.X) || math.IsNaN(b.Y) || math.IsNaN(b.W) || math.IsNaN(b.H)
}

// XYWH returns the box in the (x, y, width, height) convention estimators expect.
func (b Box) XYWH() [4]float64 {
	return [4]float64{b.X, b.Y, b.W, b.H}
}

// TrackBoxes holds one box per video frame for a single track.
type TrackBoxes []Box

// Missing counts the frames without a detection.
func (t TrackBoxes) Missing() int {
	n := 0
	for _, b := range t {
		if b.Missing() {
			n++
		}
	}
	return n
}

// PixelOrder is the channel ordering of a packed 3-byte-per-pixel frame.
type PixelOrder int

const (
	OrderRGB PixelOrder = iota
	OrderBGR
)

func (o PixelOrder) String() string {
	if o == OrderBGR {
		return "bgr"
	}
	return "rgb"
}

// Frame is one decoded video frame, packed as Width*Height*3 bytes.
type Frame struct {
	Index  int
	Width  int
	Height int
	Order  PixelOrder
	Data   []byte
}

// ToRGB swaps the red and blue channels in place when the frame is BGR.
func (f *Frame) ToRGB() {
	if f.Order == OrderRGB {
		return
	}
	for i := 0; i+2 < len(f.Data); i += 3 {
		f.Data[i], f.Data[i+2] = f.Data[i+2], f.Data[i]
	}
	f.Order = OrderRGB
}

// Image wraps an RGB frame into an opaque image.RGBA.
// Call ToRGB first if the frame may be BGR.
func (f *Frame) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for p, q := 0, 0; p+2 < len(f.Data) && q+3 < len(img.Pix); p, q = p+3, q+4 {
		img.Pix[q] = f.Data[p]
		img.Pix[q+1] = f.Data[p+1]
		img.Pix[q+2] = f.Data[p+2]
		img.Pix[q+3] = 0xFF
	}
	return img
}

// Keypoints is the estimator output for one subject in one frame, J rows each.
type Keypoints struct {
	Coords  [][2]float64 `msgpack:"keypoints"`
	Scores  []float64    `msgpack:"scores"`
	Visible []float64    `msgpack:"visible"`
}

// ZeroKeypoints is the placeholder used for frames without a detection.
func ZeroKeypoints(numJoints int) Keypoints {
	return Keypoints{
		Coords:  make([][2]float64, numJoints),
		Scores:  make([]float64, numJoints),
		Visible: make([]float64, numJoints),
	}
}

// ClipResult is the per-track record for a whole clip.
// Keypoints is (F, J, 3) where the third channel is the normalized confidence;
// Scores keeps the raw model scores and Visibility the per-joint visibility, both (F, J).
type ClipResult struct {
	Keypoints  [][][3]float64 `json:"keypoints" msgpack:"keypoints"`
	Scores     [][]float64    `json:"scores" msgpack:"scores"`
	Visibility [][]float64    `json:"visibility" msgpack:"visibility"`
}

// NumFrames returns F.
func (r *ClipResult) NumFrames() int {
	return len(r.Keypoints)
}

// NumJoints returns J, or 0 for an empty clip.
func (r *ClipResult) NumJoints() int {
	if len(r.Keypoints) == 0 {
		return 0
	}
	return len(r.Keypoints[0])
}
