package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/andresmejia3/trackpose/internal/results"
	"github.com/andresmejia3/trackpose/internal/types"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestStoreIntegration runs a full integration test against a real Postgres container.
// It requires Docker to be running.
func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// Explicitly check for Docker availability and fail hard if missing
	// We wrap this in a function to recover from panics inside testcontainers (e.g. socket not found)
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("testcontainers panicked: %v", r)
			}
		}()
		_, err = testcontainers.NewDockerClientWithOpts(ctx)
		return
	}()
	if err != nil {
		t.Fatalf("Docker not available, cannot run integration test: %v", err)
	}

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("trackpose_test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
		testcontainers.WithLogger(noopLogger{}),
	)
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("Failed to terminate container: %v", err)
		}
	}()

	// Get Connection String
	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	// Initialize Store (runs migrations)
	s, err := New(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to connect to store: %v", err)
	}
	defer s.Close(ctx)

	// --- Test Scenarios ---

	if err := s.EnsureVideoMetadata(ctx, "vid_123", "/tmp/video.mp4"); err != nil {
		t.Fatalf("EnsureVideoMetadata failed: %v", err)
	}
	// Idempotent
	if err := s.EnsureVideoMetadata(ctx, "vid_123", "/data/video.mp4"); err != nil {
		t.Fatalf("EnsureVideoMetadata (again) failed: %v", err)
	}

	// Boxes survive the round trip, including the NaN rows of missing detections
	boxes := types.TrackBoxes{{X: 10, Y: 10, W: 50, H: 50}, types.MissingBox(), {X: 12, Y: 11, W: 49, H: 51}}
	if err := s.InsertPersonBoxes(ctx, "vid_123", "0", boxes); err != nil {
		t.Fatalf("InsertPersonBoxes failed: %v", err)
	}
	got, err := s.FetchPersonBoxes(ctx, "vid_123", "0")
	if err != nil {
		t.Fatalf("FetchPersonBoxes failed: %v", err)
	}
	if len(got) != 3 || got[0] != boxes[0] || !got[1].Missing() || got[2] != boxes[2] {
		t.Errorf("Unexpected boxes %+v", got)
	}

	if _, err := s.FetchPersonBoxes(ctx, "vid_123", "42"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for an unknown track, got %v", err)
	}

	// Results
	rec := &results.Record{
		Video:  "/data/video.mp4",
		Track:  "0",
		Method: "HRNet_W48_COCO",
		Result: &types.ClipResult{
			Keypoints:  [][][3]float64{{{1, 2, 1}}, {{0, 0, 0}}, {{3, 4, 0.5}}},
			Scores:     [][]float64{{0.8}, {0}, {0.4}},
			Visibility: [][]float64{{1}, {0}, {1}},
		},
	}
	if err := s.SaveResult(ctx, "vid_123", "0", rec); err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}
	// Saving again replaces the row
	if err := s.SaveResult(ctx, "vid_123", "0", rec); err != nil {
		t.Fatalf("SaveResult (again) failed: %v", err)
	}

	loaded, err := s.LoadResult(ctx, "vid_123", "0", "HRNet_W48_COCO")
	if err != nil {
		t.Fatalf("LoadResult failed: %v", err)
	}
	if !reflect.DeepEqual(loaded, rec) {
		t.Errorf("LoadResult() = %+v, want %+v", loaded, rec)
	}
	if _, err := s.LoadResult(ctx, "vid_123", "0", "HRFormer_COCO"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for another method, got %v", err)
	}

	infos, err := s.ListResults(ctx)
	if err != nil {
		t.Fatalf("ListResults failed: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(infos))
	}
	if infos[0].Path != "/data/video.mp4" || infos[0].Frames != 3 || infos[0].Joints != 1 {
		t.Errorf("Unexpected listing %+v", infos[0])
	}

	// Reset drops everything; a new Store recreates the schema
	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	s2, err := New(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to reconnect: %v", err)
	}
	defer s2.Close(ctx)
	if infos, err := s2.ListResults(ctx); err != nil || len(infos) != 0 {
		t.Errorf("Expected an empty database after Reset, got %d rows (%v)", len(infos), err)
	}
}

type noopLogger struct{}

func (n noopLogger) Printf(format string, v ...interface{}) {}
