package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/andresmejia3/trackpose/internal/utils"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

var (
	batchParallel int
	batchFailFast bool
)

var batchCmd = &cobra.Command{
	Use:   "batch <manifest.yaml>",
	Short: "Run a manifest of clips, each in its own session",
	Long: `Each manifest entry names a video, its boxes (or stored track), and
optionally a method and output path:

  clips:
    - video: walk.mp4
      boxes: walk_person1.yaml
      method: HRNet_W48_COCO
    - video: walk.mp4
      track: person2

Every entry loads its own model and decoder. --parallel bounds how many run at once.`,
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{annotStore: optional, annotCache: optional},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runBatch(cmd.Context(), args[0])
	},
}

func init() {
	batchCmd.Flags().IntVarP(&batchParallel, "parallel", "p", 1, "Number of clips processed at once")
	batchCmd.Flags().BoolVar(&batchFailFast, "fail-fast", false, "Stop at the first failed clip")
	rootCmd.AddCommand(batchCmd)
}

type manifest struct {
	Clips []Options `yaml:"clips"`
}

func loadManifest(path string) ([]Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	if len(m.Clips) == 0 {
		return nil, fmt.Errorf("manifest %s has no clips", path)
	}
	return m.Clips, nil
}

func runBatch(ctx context.Context, manifestPath string) error {
	clips, err := loadManifest(manifestPath)
	if err != nil {
		utils.ShowError("Failed to load manifest", err, nil)
		return err
	}
	if batchParallel < 1 {
		batchParallel = 1
	}
	for i := range clips {
		if err := validateTopDownFlags(&clips[i]); err != nil {
			return fmt.Errorf("clip %d: %w", i, err)
		}
	}

	fmt.Fprintf(os.Stderr, "📦 %d clips, %d at a time\n", len(clips), batchParallel)

	// One bar per clip when sequential; a single clip counter otherwise.
	sequential := batchParallel == 1
	overall := progressbar.NewOptions(len(clips),
		progressbar.OptionSetDescription("📦 Batch"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetVisibility(!sequential),
	)

	g := &errgroup.Group{}
	runCtx := ctx
	if batchFailFast {
		g, runCtx = errgroup.WithContext(ctx)
	}
	g.SetLimit(batchParallel)

	var mu sync.Mutex
	var failed []int
	for i, clip := range clips {
		g.Go(func() error {
			if runCtx.Err() != nil {
				return runCtx.Err()
			}
			outcome, err := runClip(runCtx, clip, sequential)
			overall.Add(1)
			if err != nil {
				utils.Logger.Error("clip failed", zap.Int("clip", i), zap.String("video", clip.VideoPath), zap.Error(err))
				mu.Lock()
				failed = append(failed, i)
				mu.Unlock()
				if batchFailFast {
					return fmt.Errorf("clip %d (%s): %w", i, clip.VideoPath, err)
				}
				return nil
			}
			if sequential {
				printSummary(outcome)
			} else {
				utils.Logger.Info("clip done", zap.Int("clip", i), zap.String("output", outcome.Path), zap.Bool("cached", outcome.Cached))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		utils.ShowError("Batch aborted", err, nil)
		return err
	}
	overall.Finish()

	if len(failed) > 0 {
		sort.Ints(failed)
		err := fmt.Errorf("%d of %d clips failed: %v", len(failed), len(clips), failed)
		utils.ShowError("Batch finished with errors", err, nil)
		return err
	}
	fmt.Fprintf(os.Stderr, "\n✨ Batch complete: %d clips\n", len(clips))
	return nil
}
