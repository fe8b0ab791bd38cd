package utils

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

// --- 1. Process Safety & Command Wrapping ---

// SafeCommand wraps a standard exec.Cmd with a buffer to catch Stderr (worker / ffmpeg logs)
// This ensures we don't lose critical crash information if a child process dies.
type SafeCommand struct {
	*exec.Cmd
	Stderr *bytes.Buffer
}

// NewSafeCommand initializes a command and attaches a buffer to its Stderr pipe
// It prepares the command for execution but does not start it.
func NewSafeCommand(ctx context.Context, name string, args ...string) *SafeCommand {
	cmd := exec.CommandContext(ctx, name, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	return &SafeCommand{Cmd: cmd, Stderr: stderr}
}

// ShowError prints a formatted error box and dumps child process logs if a SafeCommand is provided.
// Unlike a hard exit, it lets the caller return the error so deferred cleanup still runs.
func ShowError(context string, err error, s *SafeCommand) {
	fmt.Fprintf(os.Stderr, "\n---------------------------------------------------------\n")
	fmt.Fprintf(os.Stderr, "🚨 TRACKPOSE ERROR: %s\n", context)
	if err != nil {
		fmt.Fprintf(os.Stderr, "DETAILS: %v\n", err)
	}

	// If we have a SafeCommand and it captured logs, print them.
	if s != nil && s.Stderr.Len() > 0 {
		fmt.Fprintf(os.Stderr, "\nCHILD PROCESS LOGS:\n%s\n", s.Stderr.String())
	}
	fmt.Fprintf(os.Stderr, "---------------------------------------------------------\n")
}

// --- 2. Video Probing ---

// VideoInfo is the subset of ffprobe stream metadata the decoder needs.
type VideoInfo struct {
	Width  int
	Height int
	Frames int // 0 when the container does not record a frame count
}

// ProbeVideo reads the first video stream's dimensions and frame count with ffprobe.
func ProbeVideo(ctx context.Context, ffprobe, path string) (VideoInfo, error) {
	if _, err := exec.LookPath(ffprobe); err != nil {
		return VideoInfo{}, fmt.Errorf("%s not found: %w", ffprobe, err)
	}

	type ffprobeOutput struct {
		Streams []struct {
			Width    int    `json:"width"`
			Height   int    `json:"height"`
			NbFrames string `json:"nb_frames"`
		} `json:"streams"`
	}

	cmd := exec.CommandContext(ctx, ffprobe, "-v", "error", "-select_streams", "v:0",
		"-show_entries", "stream=width,height,nb_frames", "-of", "json", path)
	out, err := cmd.Output()
	if err != nil {
		return VideoInfo{}, fmt.Errorf("ffprobe failed: %w", err)
	}

	var res ffprobeOutput
	if err := json.Unmarshal(out, &res); err != nil {
		return VideoInfo{}, fmt.Errorf("ffprobe JSON parse error: %w", err)
	}
	if len(res.Streams) == 0 {
		return VideoInfo{}, fmt.Errorf("no video stream in %s", path)
	}

	s := res.Streams[0]
	if s.Width <= 0 || s.Height <= 0 {
		return VideoInfo{}, fmt.Errorf("invalid video dimensions %dx%d", s.Width, s.Height)
	}

	// "N/A" or missing for some containers; treat as unknown
	frames, _ := strconv.Atoi(s.NbFrames)
	return VideoInfo{Width: s.Width, Height: s.Height, Frames: frames}, nil
}

// NewFFmpegRawDecoder creates a decoder pipe emitting packed rawvideo frames on Stdout.
// pixFmt is an ffmpeg pixel format such as "rgb24" or "bgr24".
func NewFFmpegRawDecoder(ctx context.Context, ffmpeg, inputPath, pixFmt string) *SafeCommand {
	// -loglevel error keeps the stderr buffer small on long videos.
	// Frames must come out exactly as stored: rawvideo has no timestamps, so without
	// passthrough ffmpeg resamples variable frame rate input to a constant rate, and
	// autorotation would swap the probed width and height.
	return NewSafeCommand(ctx, ffmpeg, "-hide_banner", "-loglevel", "error", "-nostdin",
		"-noautorotate", "-i", inputPath,
		"-fps_mode", "passthrough", "-f", "rawvideo", "-pix_fmt", pixFmt, "-")
}

// NewFFmpegTranscoder re-encodes a video into a constant frame rate H.264 file so that
// sequential decoding yields every frame exactly once.
func NewFFmpegTranscoder(ctx context.Context, ffmpeg, inputPath, outputPath string) *SafeCommand {
	return NewSafeCommand(ctx, ffmpeg, "-hide_banner", "-loglevel", "error", "-nostdin", "-y",
		"-i", inputPath, "-an", "-c:v", "libx264", "-pix_fmt", "yuv420p", "-vsync", "cfr", outputPath)
}

// GenerateVideoID creates a deterministic hash for the video file
// based on its path, size, and modification time.
func GenerateVideoID(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	input := fmt.Sprintf("%s-%d-%d", path, info.Size(), info.ModTime().UnixNano())
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:]), nil
}

// GenerateRefID hashes a remote reference (URL) that has no local file metadata.
func GenerateRefID(ref string) string {
	hash := sha256.Sum256([]byte(ref))
	return hex.EncodeToString(hash[:])
}
