package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/trackpose/internal/joints"
	"github.com/andresmejia3/trackpose/internal/utils"
	"github.com/spf13/cobra"
)

var jointsCmd = &cobra.Command{
	Use:       "joints [variant]",
	Short:     "Print the joint labels of a skeleton variant",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: joints.Variants(),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if len(args) == 0 {
			return listVariants()
		}
		return printJoints(args[0])
	},
}

func init() {
	rootCmd.AddCommand(jointsCmd)
}

func listVariants() error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "VARIANT\tJOINTS")
	fmt.Fprintln(w, "-------\t------")
	for _, v := range joints.Variants() {
		n, _ := joints.Count(v)
		fmt.Fprintf(w, "%s\t%d\n", v, n)
	}
	return w.Flush()
}

func printJoints(variant string) error {
	labels, err := joints.Labels(variant)
	if err != nil {
		utils.ShowError("Unknown skeleton variant", err, nil)
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "INDEX\tLABEL")
	fmt.Fprintln(w, "-----\t-----")
	for i, l := range labels {
		fmt.Fprintf(w, "%d\t%s\n", i, l)
	}
	return w.Flush()
}
