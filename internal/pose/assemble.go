package pose

import (
	"github.com/andresmejia3/trackpose/internal/types"
)

// NormalizeScores divides every score by the single largest score in the clip.
// When that maximum is zero the scores are returned unchanged. The input is never modified.
func NormalizeScores(scores [][]float64) [][]float64 {
	maxScore := 0.0
	for _, row := range scores {
		for _, s := range row {
			if s > maxScore {
				maxScore = s
			}
		}
	}

	out := make([][]float64, len(scores))
	for i, row := range scores {
		out[i] = make([]float64, len(row))
		for j, s := range row {
			if maxScore == 0 {
				out[i][j] = s
			} else {
				out[i][j] = s / maxScore
			}
		}
	}
	return out
}

// Assemble stacks a track into a ClipResult, with the normalized confidence as the third coordinate channel.
func Assemble(t *Track) *types.ClipResult {
	normalized := NormalizeScores(t.Scores)

	res := &types.ClipResult{
		Keypoints:  make([][][3]float64, t.Len()),
		Scores:     make([][]float64, t.Len()),
		Visibility: make([][]float64, t.Len()),
	}
	for i, coords := range t.Coords {
		row := make([][3]float64, len(coords))
		for j, c := range coords {
			row[j] = [3]float64{c[0], c[1], normalized[i][j]}
		}
		res.Keypoints[i] = row
		res.Scores[i] = append([]float64(nil), t.Scores[i]...)
		res.Visibility[i] = append([]float64(nil), t.Visible[i]...)
	}
	return res
}

// Summary is a short report on a finished clip.
type Summary struct {
	Frames         int
	Joints         int
	Detected       int
	Missing        int
	MeanConfidence float64 // mean raw score over detected frames
}

// Summarize reports detection coverage and mean raw confidence for res.
func Summarize(res *types.ClipResult, boxes types.TrackBoxes) Summary {
	s := Summary{Frames: res.NumFrames(), Joints: res.NumJoints(), Missing: boxes.Missing()}
	s.Detected = s.Frames - s.Missing

	total, n := 0.0, 0
	for i, row := range res.Scores {
		if i < len(boxes) && boxes[i].Missing() {
			continue
		}
		for _, v := range row {
			total += v
			n++
		}
	}
	if n > 0 {
		s.MeanConfidence = total / float64(n)
	}
	return s
}
