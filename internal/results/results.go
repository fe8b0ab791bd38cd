// Package results encodes clip results for files, the database and the cache.
package results

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/trackpose/internal/types"
	"github.com/vmihailenco/msgpack/v5"
)

// Format is a result encoding.
type Format string

const (
	FormatMsgpack Format = "msgpack"
	FormatJSON    Format = "json"
)

// Record is a clip result together with what produced it.
type Record struct {
	Video  string            `json:"video" msgpack:"video"`
	Track  string            `json:"track,omitempty" msgpack:"track,omitempty"`
	Method string            `json:"method" msgpack:"method"`
	Joints []string          `json:"joints,omitempty" msgpack:"joints,omitempty"` // labels of the leading columns
	Result *types.ClipResult `json:"result" msgpack:"result"`
}

// ParseFormat accepts "msgpack"/"mp"/"json", case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "msgpack", "mp":
		return FormatMsgpack, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown result format %q (expected msgpack or json)", s)
}

// FormatFor picks the format from a file extension, msgpack when unrecognized.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatMsgpack
}

// Extension returns the file extension for f, including the dot.
func (f Format) Extension() string {
	if f == FormatJSON {
		return ".json"
	}
	return ".msgpack"
}

// Encode writes rec to w.
func Encode(w io.Writer, f Format, rec *Record) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	case FormatMsgpack:
		return msgpack.NewEncoder(w).Encode(rec)
	}
	return fmt.Errorf("unknown result format %q", f)
}

// Decode reads one record from r.
func Decode(r io.Reader, f Format) (*Record, error) {
	var rec Record
	var err error
	switch f {
	case FormatJSON:
		err = json.NewDecoder(r).Decode(&rec)
	case FormatMsgpack:
		err = msgpack.NewDecoder(r).Decode(&rec)
	default:
		return nil, fmt.Errorf("unknown result format %q", f)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s result: %w", f, err)
	}
	return &rec, nil
}

// Marshal encodes rec into a byte slice.
func Marshal(f Format, rec *Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, f, rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a record from data.
func Unmarshal(f Format, data []byte) (*Record, error) {
	return Decode(bytes.NewReader(data), f)
}

// Write stores rec at path, creating parent directories. The format follows the extension.
func Write(path string, rec *Record) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := Marshal(FormatFor(path), rec)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Read loads a record written by Write.
func Read(path string) (*Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f, FormatFor(path))
}
