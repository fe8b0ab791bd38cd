package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/andresmejia3/trackpose/internal/results"
	"github.com/andresmejia3/trackpose/internal/types"
	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when no row matches the requested key.
var ErrNotFound = errors.New("not found")

// Store manages the PostgreSQL connection. The connection is shared by concurrent
// batch sessions, so every query goes through mu.
type Store struct {
	mu   sync.Mutex
	conn *pgx.Conn
}

// ResultInfo describes one stored top-down result without its payload.
type ResultInfo struct {
	VideoID   string
	Path      string
	TrackID   string
	Method    string
	Frames    int
	Joints    int
	CreatedAt time.Time
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the necessary tables if they don't exist (Auto-Migration).
// person_bbox.boxes is the flattened (F, 4) box array with NaN rows for missing detections.
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS video_metadata (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			indexed_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS person_bbox (
			video_id TEXT REFERENCES video_metadata(id) ON DELETE CASCADE,
			track_id TEXT NOT NULL,
			num_frames INT NOT NULL,
			boxes DOUBLE PRECISION[] NOT NULL,
			PRIMARY KEY (video_id, track_id)
		);
		CREATE TABLE IF NOT EXISTS top_down_people (
			video_id TEXT REFERENCES video_metadata(id) ON DELETE CASCADE,
			track_id TEXT NOT NULL,
			method TEXT NOT NULL,
			num_frames INT NOT NULL,
			num_joints INT NOT NULL,
			result BYTEA NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			PRIMARY KEY (video_id, track_id, method)
		);
		CREATE INDEX IF NOT EXISTS top_down_people_method_idx ON top_down_people (method);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// EnsureVideoMetadata registers the video in the database. If it exists, it updates the timestamp.
func (s *Store) EnsureVideoMetadata(ctx context.Context, videoID, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.Exec(ctx, `
		INSERT INTO video_metadata (id, path, indexed_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET indexed_at = NOW(), path = EXCLUDED.path
	`, videoID, path)
	return err
}

// InsertPersonBoxes stores (or replaces) the box sequence of one track.
func (s *Store) InsertPersonBoxes(ctx context.Context, videoID, trackID string, boxes types.TrackBoxes) error {
	flat := make([]float64, 0, 4*len(boxes))
	for _, b := range boxes {
		if b.Missing() {
			nan := math.NaN()
			flat = append(flat, nan, nan, nan, nan)
			continue
		}
		flat = append(flat, b.X, b.Y, b.W, b.H)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.Exec(ctx, `
		INSERT INTO person_bbox (video_id, track_id, num_frames, boxes)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (video_id, track_id) DO UPDATE SET num_frames = EXCLUDED.num_frames, boxes = EXCLUDED.boxes
	`, videoID, trackID, len(boxes), flat)
	return err
}

// FetchPersonBoxes returns the box sequence of one track.
func (s *Store) FetchPersonBoxes(ctx context.Context, videoID, trackID string) (types.TrackBoxes, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var flat []float64
	var frames int
	err := s.conn.QueryRow(ctx,
		"SELECT num_frames, boxes FROM person_bbox WHERE video_id = $1 AND track_id = $2",
		videoID, trackID).Scan(&frames, &flat)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("boxes for video %s track %s: %w", videoID, trackID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if len(flat) != 4*frames {
		return nil, fmt.Errorf("corrupt boxes for video %s track %s: %d values for %d frames", videoID, trackID, len(flat), frames)
	}

	boxes := make(types.TrackBoxes, frames)
	for i := range boxes {
		boxes[i] = types.Box{X: flat[4*i], Y: flat[4*i+1], W: flat[4*i+2], H: flat[4*i+3]}
	}
	return boxes, nil
}

// SaveResult stores a finished top-down result, replacing an earlier run of the same method.
func (s *Store) SaveResult(ctx context.Context, videoID, trackID string, rec *results.Record) error {
	payload, err := results.Marshal(results.FormatMsgpack, rec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.conn.Exec(ctx, `
		INSERT INTO top_down_people (video_id, track_id, method, num_frames, num_joints, result, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (video_id, track_id, method) DO UPDATE SET
			num_frames = EXCLUDED.num_frames,
			num_joints = EXCLUDED.num_joints,
			result = EXCLUDED.result,
			created_at = NOW()
	`, videoID, trackID, rec.Method, rec.Result.NumFrames(), rec.Result.NumJoints(), payload)
	return err
}

// LoadResult fetches a stored result.
func (s *Store) LoadResult(ctx context.Context, videoID, trackID, method string) (*results.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var payload []byte
	err := s.conn.QueryRow(ctx,
		"SELECT result FROM top_down_people WHERE video_id = $1 AND track_id = $2 AND method = $3",
		videoID, trackID, method).Scan(&payload)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("result for video %s track %s (%s): %w", videoID, trackID, method, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return results.Unmarshal(results.FormatMsgpack, payload)
}

// ListResults lists every stored result, newest first.
func (s *Store) ListResults(ctx context.Context) ([]ResultInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.conn.Query(ctx, `
		SELECT t.video_id, v.path, t.track_id, t.method, t.num_frames, t.num_joints, t.created_at
		FROM top_down_people t
		JOIN video_metadata v ON v.id = t.video_id
		ORDER BY t.created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var infos []ResultInfo
	for rows.Next() {
		var r ResultInfo
		if err := rows.Scan(&r.VideoID, &r.Path, &r.TrackID, &r.Method, &r.Frames, &r.Joints, &r.CreatedAt); err != nil {
			return nil, err
		}
		infos = append(infos, r)
	}
	return infos, rows.Err()
}

// Reset drops all application tables to clear the database state.
// This is useful for development to force a schema refresh without migrations.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS top_down_people CASCADE;
		DROP TABLE IF EXISTS person_bbox CASCADE;
		DROP TABLE IF EXISTS video_metadata CASCADE;
	`)
	return err
}
