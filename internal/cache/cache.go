// Package cache keeps finished clip results in Redis so identical requests skip inference.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"time"

	"github.com/andresmejia3/trackpose/internal/results"
	"github.com/andresmejia3/trackpose/internal/types"
	"github.com/andresmejia3/trackpose/internal/utils"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "trackpose:topdown:"

// Options mirrors the redis section of the config.
type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Cache stores msgpack-encoded result records.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis and checks the connection.
func New(ctx context.Context, opts Options) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &Cache{client: client, ttl: opts.TTL}, nil
}

// Model names the weights that produced a result: the backend plus the resolved files.
type Model struct {
	Backend    string
	Method     string
	Config     string
	Checkpoint string
}

// Key identifies a run by video, model and the exact box sequence.
// Missing boxes hash identically whatever NaN payload they carry.
func Key(videoID string, model Model, boxes types.TrackBoxes) string {
	h := sha256.New()
	for _, s := range []string{videoID, model.Backend, model.Method, model.Config, model.Checkpoint} {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}

	buf := make([]byte, 8)
	for _, b := range boxes {
		if b.Missing() {
			h.Write([]byte{0})
			continue
		}
		h.Write([]byte{1})
		for _, v := range b.XYWH() {
			binary.BigEndian.PutUint64(buf, math.Float64bits(v))
			h.Write(buf)
		}
	}
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached record, or nil on a miss.
func (c *Cache) Get(ctx context.Context, key string) (*results.Record, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // cache miss
		}
		return nil, err
	}

	rec, err := results.Unmarshal(results.FormatMsgpack, data)
	if err != nil {
		utils.Logger.Error("failed to decode cached result", zap.String("key", key), zap.Error(err))
		return nil, err
	}
	return rec, nil
}

// Set stores rec under key for the configured TTL (0 keeps it forever).
func (c *Cache) Set(ctx context.Context, key string, rec *results.Record) error {
	data, err := results.Marshal(results.FormatMsgpack, rec)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// Flush removes every cached result.
func (c *Cache) Flush(ctx context.Context) (int, error) {
	n := 0
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return n, err
		}
		n++
	}
	return n, iter.Err()
}

func (c *Cache) Close() error {
	return c.client.Close()
}
