package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/andresmejia3/trackpose/internal/estimator"
	"github.com/andresmejia3/trackpose/internal/results"
	"github.com/andresmejia3/trackpose/internal/utils"
	"github.com/spf13/cobra"
)

var topDownOpts Options

var topDownCmd = &cobra.Command{
	Use:   "topdown",
	Short: "Estimate the pose of one tracked person across a video",
	Long: `Runs a top-down pose model on the given person box of every frame.
Boxes come from a YAML/JSON file (--boxes) or, with a database, from the
stored track (--track). Frames without a box get all-zero keypoints.`,
	Annotations: map[string]string{annotStore: optional, annotCache: optional},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runTopDown(cmd.Context(), topDownOpts)
	},
}

func init() {
	topDownCmd.Flags().StringVarP(&topDownOpts.VideoPath, "input", "i", "", "Path or http(s) URL of the video")
	topDownCmd.Flags().StringVarP(&topDownOpts.BoxesPath, "boxes", "b", "", "YAML/JSON file with one [x, y, w, h] box (or null) per frame")
	topDownCmd.Flags().StringVarP(&topDownOpts.TrackID, "track", "t", "", "Track ID (reads stored boxes when --boxes is not set)")
	topDownCmd.Flags().StringVarP(&topDownOpts.Method, "method", "m", "", "Pose method (default from config, see 'trackpose methods')")
	topDownCmd.Flags().StringVarP(&topDownOpts.OutputPath, "output", "o", "", "Result file, .msgpack or .json (default: <output dir>/<video>_<track>_<method>)")
	topDownCmd.Flags().StringVarP(&topDownOpts.Format, "format", "f", "", "Result format for the default output name: msgpack or json")
	topDownCmd.Flags().BoolVar(&topDownOpts.Robust, "robust", false, "Re-encode the video to constant frame rate before decoding")
	topDownCmd.Flags().BoolVar(&topDownOpts.NoCache, "no-cache", false, "Ignore cached results")

	topDownCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(topDownCmd)
}

func runTopDown(ctx context.Context, opts Options) error {
	if err := validateTopDownFlags(&opts); err != nil {
		return err
	}

	outcome, err := runClip(ctx, opts, true)
	if err != nil {
		utils.ShowError("Top-down estimation failed", err, nil)
		return err
	}
	printSummary(outcome)
	return nil
}

// validateTopDownFlags checks a clip run before any model or decoder is started.
func validateTopDownFlags(opts *Options) error {
	if opts.VideoPath == "" {
		err := fmt.Errorf("no video given")
		utils.ShowError("Configuration Error", err, nil)
		return err
	}
	if !isURL(opts.VideoPath) {
		info, err := os.Stat(opts.VideoPath)
		if err != nil {
			if os.IsNotExist(err) {
				utils.ShowError("Input file does not exist", err, nil)
				return err
			}
			utils.ShowError("Unable to access input file", err, nil)
			return err
		}
		if info.IsDir() {
			err := fmt.Errorf("is a directory")
			utils.ShowError("Input path is a directory, expected a video file", err, nil)
			return err
		}
	}

	if opts.BoxesPath == "" && opts.TrackID == "" {
		err := fmt.Errorf("one of --boxes or --track is required")
		utils.ShowError("Configuration Error", err, nil)
		return err
	}
	if opts.BoxesPath != "" {
		if _, err := os.Stat(opts.BoxesPath); err != nil {
			utils.ShowError("Unable to access boxes file", err, nil)
			return err
		}
	}

	if opts.Method != "" {
		if _, err := estimator.LookupMethod(opts.Method); err != nil {
			utils.ShowError("Configuration Error", err, nil)
			return err
		}
	}
	if opts.Format != "" {
		if _, err := results.ParseFormat(opts.Format); err != nil {
			utils.ShowError("Configuration Error", err, nil)
			return err
		}
	}
	return nil
}
