// Package tracks reads per-frame person boxes for one track from a YAML or JSON file.
//
// The file is a list with one entry per video frame. An entry is either an
// [x, y, w, h] list in pixels or null when the person was not detected:
//
//	- [10, 10, 50, 50]
//	- null
//	- [12, 11, 49, 51]
//
// JSON files use the same shape, since JSON is read as YAML.
package tracks

import (
	"fmt"
	"os"

	"github.com/andresmejia3/trackpose/internal/types"
	"gopkg.in/yaml.v3"
)

// Load reads the box sequence stored at path.
func Load(path string) (types.TrackBoxes, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	boxes, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse boxes in %s: %w", path, err)
	}
	return boxes, nil
}

// Parse decodes a box list. null entries (and boxes with .nan coordinates) become missing boxes.
func Parse(data []byte) (types.TrackBoxes, error) {
	var raw []*[]float64
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	boxes := make(types.TrackBoxes, len(raw))
	for i, entry := range raw {
		if entry == nil {
			boxes[i] = types.MissingBox()
			continue
		}
		b := *entry
		if len(b) != 4 {
			return nil, fmt.Errorf("frame %d: expected [x, y, w, h], got %d values", i, len(b))
		}
		boxes[i] = types.Box{X: b[0], Y: b[1], W: b[2], H: b[3]}
	}
	return boxes, nil
}

// Save writes boxes in the format Load reads, with missing boxes as null.
func Save(path string, boxes types.TrackBoxes) error {
	raw := make([]*[]float64, len(boxes))
	for i, b := range boxes {
		if b.Missing() {
			continue
		}
		xywh := b.XYWH()
		row := xywh[:]
		raw[i] = &row
	}

	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
