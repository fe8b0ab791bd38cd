package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/trackpose/internal/cache"
	"github.com/andresmejia3/trackpose/internal/estimator"
	"github.com/andresmejia3/trackpose/internal/joints"
	"github.com/andresmejia3/trackpose/internal/pose"
	"github.com/andresmejia3/trackpose/internal/results"
	"github.com/andresmejia3/trackpose/internal/tracks"
	"github.com/andresmejia3/trackpose/internal/types"
	"github.com/andresmejia3/trackpose/internal/utils"
	"github.com/andresmejia3/trackpose/internal/video"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

// clipOutcome is what a finished clip run reports back to the command.
type clipOutcome struct {
	Record  *results.Record
	Path    string
	Summary pose.Summary
	Cached  bool
}

// runClip takes one clip from its references to a written result:
// resolve the method, load boxes, consult the cache, load the model, run the session
// and persist. showBar toggles the per-frame progress bar.
func runClip(ctx context.Context, opts Options, showBar bool) (*clipOutcome, error) {
	name := opts.Method
	if name == "" {
		name = Cfg.Model.Method
	}
	method, err := Cfg.Model.ResolveMethod(name)
	if err != nil {
		return nil, err
	}

	videoID, err := videoIDFor(opts.VideoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to generate video ID: %w", err)
	}

	boxes, trackID, err := loadBoxes(ctx, videoID, opts)
	if err != nil {
		return nil, err
	}
	key := filepath.Base(opts.VideoPath) + "/" + trackID
	log := utils.Logger.With(zap.String("key", key), zap.String("method", method.Name))

	if DB != nil {
		if err := DB.EnsureVideoMetadata(ctx, videoID, opts.VideoPath); err != nil {
			return nil, fmt.Errorf("failed to register video metadata: %w", err)
		}
		if opts.BoxesPath != "" {
			if err := DB.InsertPersonBoxes(ctx, videoID, trackID, boxes); err != nil {
				return nil, fmt.Errorf("failed to store person boxes: %w", err)
			}
		}
	}

	outPath, err := outputPath(opts, videoID, trackID, method.Name)
	if err != nil {
		return nil, err
	}

	cacheKey := cache.Key(videoID, modelKey(method), boxes)
	if Cache != nil && !opts.NoCache {
		rec, err := Cache.Get(ctx, cacheKey)
		if err != nil {
			log.Warn("cache lookup failed", zap.Error(err))
		} else if rec != nil {
			log.Info("cache hit", zap.String("cache_key", cacheKey))
			if err := results.Write(outPath, rec); err != nil {
				return nil, fmt.Errorf("failed to write %s: %w", outPath, err)
			}
			return &clipOutcome{Record: rec, Path: outPath, Summary: pose.Summarize(rec.Result, boxes), Cached: true}, nil
		}
	}

	opener, err := video.NewOpener(Cfg.Video.Backend, video.Options{
		FFmpeg:     Cfg.Video.FFmpeg,
		FFprobe:    Cfg.Video.FFprobe,
		Order:      Cfg.Video.Order(),
		CountCheck: Cfg.Video.CountCheck,
	})
	if err != nil {
		return nil, err
	}

	loader, err := estimator.NewLoader(Cfg.Model.Backend, estimator.Options{
		Python:      Cfg.Model.Python,
		Script:      Cfg.Model.Script,
		Device:      Cfg.Model.Device,
		ONNXLibrary: Cfg.Model.ONNXLibrary,
		LoadTimeout: Cfg.Model.LoadTimeout,
	})
	if err != nil {
		return nil, err
	}
	est, err := estimator.LoadMethod(ctx, loader, method, Cfg.Model.DataDir)
	if err != nil {
		return nil, err
	}
	defer est.Close()

	clip, err := video.Acquire(ctx, opts.VideoPath, video.AcquireOptions{
		FFmpeg:  Cfg.Video.FFmpeg,
		TempDir: Cfg.Video.TempDir,
		Robust:  opts.Robust || Cfg.Video.Robust,
		Client:  &http.Client{Timeout: Cfg.Video.Timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to acquire %s: %w", opts.VideoPath, err)
	}

	bar := progressbar.NewOptions(len(boxes),
		progressbar.OptionSetDescription("🦴 "+key),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetVisibility(showBar),
	)

	session := &pose.Session{Opener: opener, Estimator: est, Key: key, Progress: bar}
	res, err := session.Run(ctx, clip, boxes)
	if err != nil {
		return nil, err
	}
	bar.Finish()

	labels, err := joints.Labels(method.Variant)
	if err != nil {
		return nil, err
	}
	rec := &results.Record{
		Video:  opts.VideoPath,
		Track:  trackID,
		Method: method.Name,
		Joints: labels,
		Result: res,
	}

	if err := results.Write(outPath, rec); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", outPath, err)
	}
	if DB != nil {
		if err := DB.SaveResult(ctx, videoID, trackID, rec); err != nil {
			return nil, fmt.Errorf("failed to save result: %w", err)
		}
	}
	if Cache != nil {
		if err := Cache.Set(ctx, cacheKey, rec); err != nil {
			log.Warn("failed to cache result", zap.Error(err))
		}
	}

	return &clipOutcome{Record: rec, Path: outPath, Summary: pose.Summarize(res, boxes)}, nil
}

// modelKey identifies the configured weights of method for the result cache,
// so switching backends or overriding model files never serves an old result.
func modelKey(method estimator.Method) cache.Model {
	config, checkpoint := method.Paths(Cfg.Model.DataDir)
	return cache.Model{
		Backend:    Cfg.Model.Backend,
		Method:     method.Name,
		Config:     config,
		Checkpoint: checkpoint,
	}
}

// videoIDFor hashes local files by path, size and mtime; remote references by URL.
func videoIDFor(ref string) (string, error) {
	if isURL(ref) {
		return utils.GenerateRefID(ref), nil
	}
	return utils.GenerateVideoID(ref)
}

func isURL(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// loadBoxes reads the box file, or fetches the stored boxes for the track when no file is given.
// The track ID defaults to the box file name without extension.
func loadBoxes(ctx context.Context, videoID string, opts Options) (types.TrackBoxes, string, error) {
	trackID := opts.TrackID
	if opts.BoxesPath != "" {
		boxes, err := tracks.Load(opts.BoxesPath)
		if err != nil {
			return nil, "", err
		}
		if trackID == "" {
			trackID = strings.TrimSuffix(filepath.Base(opts.BoxesPath), filepath.Ext(opts.BoxesPath))
		}
		return boxes, trackID, nil
	}

	if DB == nil {
		return nil, "", fmt.Errorf("track %q: reading stored boxes requires a database (--db)", trackID)
	}
	boxes, err := DB.FetchPersonBoxes(ctx, videoID, trackID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch boxes for track %q: %w", trackID, err)
	}
	return boxes, trackID, nil
}

// outputPath returns opts.OutputPath, or <output dir>/<video id>_<track>_<method><ext>.
func outputPath(opts Options, videoID, trackID, method string) (string, error) {
	if opts.OutputPath != "" {
		return opts.OutputPath, nil
	}
	format := Cfg.Output.Format
	if opts.Format != "" {
		format = opts.Format
	}
	f, err := results.ParseFormat(format)
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s_%s_%s%s", videoID[:12], trackID, method, f.Extension())
	return filepath.Join(Cfg.Output.Dir, name), nil
}

// printSummary writes the post-run report to stderr next to the progress bar.
func printSummary(o *clipOutcome) {
	s := o.Summary
	source := "computed"
	if o.Cached {
		source = "cached"
	}
	fmt.Fprintf(os.Stderr, "\n🏁 %s (%s): %d frames x %d joints, %d detected, %d missing, mean confidence %.3f\n",
		o.Record.Method, source, s.Frames, s.Joints, s.Detected, s.Missing, s.MeanConfidence)
	fmt.Fprintf(os.Stderr, "💾 Saved to %s\n", o.Path)
}
