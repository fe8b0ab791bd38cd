package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/trackpose/internal/estimator"
	"github.com/spf13/cobra"
)

var methodsVerbose bool

var methodsCmd = &cobra.Command{
	Use:   "methods",
	Short: "List the supported pose methods",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		if methodsVerbose {
			fmt.Fprintln(w, "METHOD\tJOINTS\tSKELETON\tCONFIG\tCHECKPOINT")
		} else {
			fmt.Fprintln(w, "METHOD\tJOINTS\tSKELETON")
		}

		for _, name := range estimator.MethodNames() {
			m, err := Cfg.Model.ResolveMethod(name)
			if err != nil {
				return err
			}
			marker := ""
			if name == Cfg.Model.Method {
				marker = " (default)"
			}
			if methodsVerbose {
				fmt.Fprintf(w, "%s%s\t%d\t%s\t%s\t%s\n", m.Name, marker, m.NumJoints, m.Variant, m.Config, m.Checkpoint)
			} else {
				fmt.Fprintf(w, "%s%s\t%d\t%s\n", m.Name, marker, m.NumJoints, m.Variant)
			}
		}
		return w.Flush()
	},
}

func init() {
	methodsCmd.Flags().BoolVarP(&methodsVerbose, "verbose", "v", false, "Also print config and checkpoint paths (after config overrides)")
	rootCmd.AddCommand(methodsCmd)
}
