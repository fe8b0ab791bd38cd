package cmd

import (
	"fmt"
	"os"

	"github.com/andresmejia3/trackpose/internal/results"
	"github.com/andresmejia3/trackpose/internal/tracks"
	"github.com/andresmejia3/trackpose/internal/utils"
	"github.com/spf13/cobra"
)

var (
	exportVideo  string
	exportTrack  string
	exportMethod string
	exportOutput string
	exportBoxes  string
)

var exportCmd = &cobra.Command{
	Use:         "export",
	Short:       "Write a stored pose result and/or the track's boxes to files",
	Annotations: map[string]string{annotStore: required},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		if err := validateExportFlags(exportOutput, exportBoxes); err != nil {
			return err
		}

		videoID, err := videoIDFor(exportVideo)
		if err != nil {
			utils.ShowError("Failed to generate video ID", err, nil)
			return err
		}

		if exportOutput != "" {
			method := exportMethod
			if method == "" {
				method = Cfg.Model.Method
			}
			rec, err := DB.LoadResult(cmd.Context(), videoID, exportTrack, method)
			if err != nil {
				utils.ShowError("Failed to load result", err, nil)
				return err
			}
			if err := results.Write(exportOutput, rec); err != nil {
				utils.ShowError("Failed to write result", err, nil)
				return err
			}
			fmt.Fprintf(os.Stderr, "💾 Exported %s/%s (%s) to %s\n", exportVideo, exportTrack, rec.Method, exportOutput)
		}

		if exportBoxes != "" {
			boxes, err := DB.FetchPersonBoxes(cmd.Context(), videoID, exportTrack)
			if err != nil {
				utils.ShowError("Failed to load boxes", err, nil)
				return err
			}
			if err := tracks.Save(exportBoxes, boxes); err != nil {
				utils.ShowError("Failed to write boxes", err, nil)
				return err
			}
			fmt.Fprintf(os.Stderr, "💾 Exported %d boxes of %s/%s to %s\n", len(boxes), exportVideo, exportTrack, exportBoxes)
		}
		return nil
	},
}

func validateExportFlags(output, boxes string) error {
	if output == "" && boxes == "" {
		err := fmt.Errorf("nothing to export, set --output and/or --boxes")
		utils.ShowError("Configuration Error", err, nil)
		return err
	}
	return nil
}

func init() {
	exportCmd.Flags().StringVarP(&exportVideo, "input", "i", "", "Video the result was computed for")
	exportCmd.Flags().StringVarP(&exportTrack, "track", "t", "", "Track ID")
	exportCmd.Flags().StringVarP(&exportMethod, "method", "m", "", "Pose method (default from config)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Result destination, .msgpack or .json")
	exportCmd.Flags().StringVarP(&exportBoxes, "boxes", "b", "", "Box file destination (YAML), usable as topdown --boxes")

	exportCmd.MarkFlagRequired("input")
	exportCmd.MarkFlagRequired("track")
	rootCmd.AddCommand(exportCmd)
}
