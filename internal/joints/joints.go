// Package joints holds the read-only joint dictionary: the ordered keypoint
// labels of each supported joint set. Downstream consumers use it to interpret
// the columns of a clip result; the inference loop never consults it.
package joints

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownVariant is returned when a joint set name is not in the dictionary.
var ErrUnknownVariant = errors.New("unknown joint set")

// Joint set names.
const (
	MMPose          = "MMPose"
	MMPoseWholebody = "MMPoseWholebody"
	MMPoseHalpe     = "MMPoseHalpe"
)

var coco17 = []string{
	"Nose", "Left Eye", "Right Eye", "Left Ear", "Right Ear",
	"Left Shoulder", "Right Shoulder", "Left Elbow", "Right Elbow",
	"Left Wrist", "Right Wrist", "Left Hip", "Right Hip", "Left Knee",
	"Right Knee", "Left Ankle", "Right Ankle",
}

// dictionary is built once at init and never mutated.
var dictionary = map[string][]string{
	MMPose: coco17,
	MMPoseWholebody: concat(coco17,
		"Left Big Toe", "Left Little Toe", "Left Heel",
		"Right Big Toe", "Right Little Toe", "Right Heel",
	),
	MMPoseHalpe: concat(coco17,
		"Head", "Neck", "Pelvis",
		"Left Big Toe", "Right Big Toe", "Left Little Toe",
		"Right Little Toe", "Left Heel", "Right Heel",
	),
}

func concat(base []string, extra ...string) []string {
	out := make([]string, 0, len(base)+len(extra))
	out = append(out, base...)
	return append(out, extra...)
}

// Labels returns a copy of the ordered joint labels of a variant.
func Labels(variant string) ([]string, error) {
	labels, ok := dictionary[variant]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, variant)
	}
	out := make([]string, len(labels))
	copy(out, labels)
	return out, nil
}

// Count returns J for a variant.
func Count(variant string) (int, error) {
	labels, ok := dictionary[variant]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownVariant, variant)
	}
	return len(labels), nil
}

// Index returns the column of a joint label within a variant, or -1.
func Index(variant, label string) int {
	for i, l := range dictionary[variant] {
		if l == label {
			return i
		}
	}
	return -1
}

// Variants lists the dictionary keys in sorted order.
func Variants() []string {
	names := make([]string, 0, len(dictionary))
	for name := range dictionary {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
