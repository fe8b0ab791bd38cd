package results

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/andresmejia3/trackpose/internal/types"
)

func sampleRecord() *Record {
	return &Record{
		Video:  "clip.mp4",
		Track:  "track-3",
		Method: "HRNet_W48_COCO",
		Joints: []string{"Nose", "Left Eye"},
		Result: &types.ClipResult{
			Keypoints:  [][][3]float64{{{1, 2, 1}, {3, 4, 0.5}}, {{0, 0, 0}, {0, 0, 0}}},
			Scores:     [][]float64{{0.9, 0.45}, {0, 0}},
			Visibility: [][]float64{{1, 1}, {0, 0}},
		},
	}
}

func TestWriteAndReadByExtension(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"out/clip.json", "out/clip.msgpack"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			want := sampleRecord()
			if err := Write(path, want); err != nil {
				t.Fatal(err)
			}
			got, err := Read(path)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("Read() = %+v, want %+v", got, want)
			}
		})
	}

	// The extension decides the encoding
	data, _ := os.ReadFile(filepath.Join(dir, "out/clip.json"))
	if !bytes.HasPrefix(data, []byte("{")) {
		t.Errorf("Expected a JSON document, got %q", data[:10])
	}
}

func TestFormatFor(t *testing.T) {
	tests := map[string]Format{
		"a.json":    FormatJSON,
		"a.JSON":    FormatJSON,
		"a.msgpack": FormatMsgpack,
		"a":         FormatMsgpack,
	}
	for path, want := range tests {
		if got := FormatFor(path); got != want {
			t.Errorf("FormatFor(%s) = %s, want %s", path, got, want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("JSON"); err != nil || f != FormatJSON {
		t.Errorf("ParseFormat(JSON) = %s, %v", f, err)
	}
	if f, err := ParseFormat("mp"); err != nil || f != FormatMsgpack {
		t.Errorf("ParseFormat(mp) = %s, %v", f, err)
	}
	if _, err := ParseFormat("npz"); err == nil {
		t.Error("Expected an error for npz")
	}
}

func TestUnmarshalGarbage(t *testing.T) {
	if _, err := Unmarshal(FormatJSON, []byte("not json")); err == nil {
		t.Error("Expected a decode error")
	}
}
