package tracks

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/andresmejia3/trackpose/internal/types"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantFrames  int
		wantMissing int
		wantErr     bool
	}{
		{
			name:        "YAML with a gap",
			input:       "- [10, 10, 50, 50]\n- null\n- [12, 11, 49, 51]\n",
			wantFrames:  3,
			wantMissing: 1,
		},
		{
			name:        "JSON",
			input:       `[[10, 10, 50, 50], null, null, [1.5, 2.5, 3, 4]]`,
			wantFrames:  4,
			wantMissing: 2,
		},
		{
			name:        "NaN coordinate counts as missing",
			input:       "- [10, .nan, 50, 50]\n- [1, 1, 1, 1]\n",
			wantFrames:  2,
			wantMissing: 1,
		},
		{
			name:       "Empty list",
			input:      "[]",
			wantFrames: 0,
		},
		{
			name:    "Wrong arity",
			input:   "- [10, 10, 50]\n",
			wantErr: true,
		},
		{
			name:    "Not a list",
			input:   "boxes: 3\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			boxes, err := Parse([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(boxes) != tt.wantFrames || boxes.Missing() != tt.wantMissing {
				t.Errorf("Got %d frames / %d missing, want %d / %d", len(boxes), boxes.Missing(), tt.wantFrames, tt.wantMissing)
			}
		})
	}
}

func TestParseKeepsOrder(t *testing.T) {
	boxes, err := Parse([]byte("- [1, 2, 3, 4]\n- null\n- [5, 6, 7, 8]\n"))
	if err != nil {
		t.Fatal(err)
	}
	if boxes[0] != (types.Box{X: 1, Y: 2, W: 3, H: 4}) || !boxes[1].Missing() || boxes[2].X != 5 {
		t.Errorf("Unexpected boxes %+v", boxes)
	}
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boxes.yaml")
	in := types.TrackBoxes{{X: 1, Y: 2, W: 3, H: 4}, types.MissingBox()}
	if err := Save(path, in); err != nil {
		t.Fatal(err)
	}

	out, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 || out[0] != in[0] || !out[1].Missing() {
		t.Errorf("Unexpected boxes %+v", out)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); !os.IsNotExist(err) {
		t.Errorf("Expected a not-exist error, got %v", err)
	}
}
