package cache

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/andresmejia3/trackpose/internal/results"
	"github.com/andresmejia3/trackpose/internal/types"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

var hrnet = Model{
	Backend:    "python",
	Method:     "HRNet_W48_COCO",
	Config:     "/models/hrnet.py",
	Checkpoint: "/models/hrnet.pth",
}

func withModel(change func(m *Model)) Model {
	m := hrnet
	change(&m)
	return m
}

func TestKey(t *testing.T) {
	boxes := types.TrackBoxes{{X: 1, Y: 2, W: 3, H: 4}, types.MissingBox()}
	base := Key("vid", hrnet, boxes)

	if !strings.HasPrefix(base, keyPrefix) {
		t.Errorf("Key %s lacks prefix %s", base, keyPrefix)
	}
	if Key("vid", hrnet, boxes) != base {
		t.Error("Key is not deterministic")
	}

	// A NaN with a different payload is still the same missing box
	otherNaN := math.Float64frombits(0x7ff8000000000001)
	alt := types.TrackBoxes{{X: 1, Y: 2, W: 3, H: 4}, {X: otherNaN, Y: 0, W: 0, H: 0}}
	if Key("vid", hrnet, alt) != base {
		t.Error("Missing boxes should hash the same regardless of NaN payload")
	}

	changed := []string{
		Key("vid2", hrnet, boxes),
		Key("vid", withModel(func(m *Model) { m.Method = "HRFormer_COCO" }), boxes),
		Key("vid", withModel(func(m *Model) { m.Backend = "onnx" }), boxes),
		Key("vid", withModel(func(m *Model) { m.Config = "/opt/hrnet.py" }), boxes),
		Key("vid", withModel(func(m *Model) { m.Checkpoint = "/opt/hrnet.pth" }), boxes),
		Key("vid", hrnet, types.TrackBoxes{{X: 1, Y: 2, W: 3, H: 5}, types.MissingBox()}),
		Key("vid", hrnet, boxes[:1]),
	}
	for i, k := range changed {
		if k == base {
			t.Errorf("Variant %d collides with the base key", i)
		}
	}
}

// TestCacheIntegration runs against a real Redis container. It requires Docker.
func TestCacheIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

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

	redisContainer, err := tcredis.Run(ctx, "redis:7-alpine", testcontainers.WithLogger(noopLogger{}))
	if err != nil {
		t.Fatalf("Failed to start redis container: %v", err)
	}
	defer redisContainer.Terminate(ctx)

	uri, err := redisContainer.ConnectionString(ctx)
	if err != nil {
		t.Fatal(err)
	}
	redisOpts, err := redis.ParseURL(uri)
	if err != nil {
		t.Fatal(err)
	}

	c, err := New(ctx, Options{Addr: redisOpts.Addr, TTL: time.Minute})
	if err != nil {
		t.Fatalf("Failed to connect to redis: %v", err)
	}
	defer c.Close()

	key := Key("vid", hrnet, types.TrackBoxes{{X: 1, Y: 1, W: 2, H: 2}})

	// Miss
	rec, err := c.Get(ctx, key)
	if err != nil || rec != nil {
		t.Fatalf("Expected a clean miss, got %v, %v", rec, err)
	}

	want := &results.Record{
		Video:  "vid",
		Method: "HRNet_W48_COCO",
		Result: &types.ClipResult{
			Keypoints:  [][][3]float64{{{5, 6, 1}}},
			Scores:     [][]float64{{0.7}},
			Visibility: [][]float64{{1}},
		},
	}
	if err := c.Set(ctx, key, want); err != nil {
		t.Fatal(err)
	}

	got, err := c.Get(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}

	n, err := c.Flush(ctx)
	if err != nil || n != 1 {
		t.Errorf("Flush() = %d, %v, want 1 key removed", n, err)
	}
	if rec, _ := c.Get(ctx, key); rec != nil {
		t.Error("Expected a miss after Flush")
	}
}

type noopLogger struct{}

func (n noopLogger) Printf(format string, v ...interface{}) {}
