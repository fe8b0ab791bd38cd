package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/trackpose/internal/utils"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:         "list",
	Short:       "List the pose results stored in the database",
	Annotations: map[string]string{annotStore: required},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		infos, err := DB.ListResults(cmd.Context())
		if err != nil {
			utils.ShowError("Failed to list results", err, nil)
			return err
		}

		if len(infos) == 0 {
			fmt.Println("No results found in database.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "VIDEO ID\tTRACK\tMETHOD\tFRAMES\tJOINTS\tCREATED\tPATH")
		fmt.Fprintln(w, "--------\t-----\t------\t------\t------\t-------\t----")

		for _, r := range infos {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
				r.VideoID[:12], r.TrackID, r.Method, r.Frames, r.Joints, r.CreatedAt.Local().Format("2006-01-02 15:04"), r.Path)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
