package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/trackpose/internal/estimator"
	"github.com/andresmejia3/trackpose/internal/joints"
	"github.com/andresmejia3/trackpose/internal/pose"
	"github.com/andresmejia3/trackpose/internal/results"
	"github.com/andresmejia3/trackpose/internal/types"
	"github.com/andresmejia3/trackpose/internal/utils"
	"github.com/spf13/cobra"
)

var inspectJoint string

var inspectCmd = &cobra.Command{
	Use:   "inspect <result file>",
	Short: "Summarize a result file, or print one joint's trajectory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runInspect(os.Stdout, args[0], inspectJoint)
	},
}

func init() {
	inspectCmd.Flags().StringVarP(&inspectJoint, "joint", "j", "", `Joint label to print per frame, e.g. "Left Wrist" (see 'trackpose joints')`)
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(out io.Writer, path, joint string) error {
	rec, err := results.Read(path)
	if err != nil {
		utils.ShowError("Failed to read result", err, nil)
		return err
	}
	res := rec.Result
	if res == nil {
		err := fmt.Errorf("%s holds no result", path)
		utils.ShowError("Failed to read result", err, nil)
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	if joint == "" {
		s := pose.Summarize(res, placeholderRows(res))
		fmt.Fprintf(w, "VIDEO\t%s\n", rec.Video)
		fmt.Fprintf(w, "TRACK\t%s\n", rec.Track)
		fmt.Fprintf(w, "METHOD\t%s\n", rec.Method)
		fmt.Fprintf(w, "FRAMES\t%d\n", s.Frames)
		fmt.Fprintf(w, "JOINTS\t%d\n", s.Joints)
		fmt.Fprintf(w, "DETECTED\t%d\n", s.Detected)
		fmt.Fprintf(w, "MISSING\t%d\n", s.Missing)
		fmt.Fprintf(w, "MEAN CONFIDENCE\t%.3f\n", s.MeanConfidence)
		return w.Flush()
	}

	m, err := estimator.LookupMethod(rec.Method)
	if err != nil {
		utils.ShowError("Unknown method in result", err, nil)
		return err
	}
	col := joints.Index(m.Variant, joint)
	if col < 0 || col >= res.NumJoints() {
		err := fmt.Errorf("joint %q is not labelled in %s (see 'trackpose joints %s')", joint, m.Variant, m.Variant)
		utils.ShowError("Unknown joint", err, nil)
		return err
	}

	fmt.Fprintln(w, "FRAME\tX\tY\tCONFIDENCE\tSCORE")
	fmt.Fprintln(w, "-----\t-\t-\t----------\t-----")
	for f, row := range res.Keypoints {
		kp := row[col]
		fmt.Fprintf(w, "%d\t%.2f\t%.2f\t%.3f\t%.3f\n", f, kp[0], kp[1], kp[2], res.Scores[f][col])
	}
	return w.Flush()
}

// placeholderRows marks the frames whose scores are all zero, which is how frames without a box are stored.
func placeholderRows(res *types.ClipResult) types.TrackBoxes {
	boxes := make(types.TrackBoxes, len(res.Scores))
	for i, row := range res.Scores {
		empty := true
		for _, v := range row {
			if v != 0 {
				empty = false
				break
			}
		}
		if empty {
			boxes[i] = types.MissingBox()
		}
	}
	return boxes
}
