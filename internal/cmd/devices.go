package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xiaocaoooo/yemoshot/internal/device"
)

var devicesJSON bool

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List the device profiles accepted as deviceType",
	RunE: func(cmd *cobra.Command, args []string) error {
		profiles := device.All()
		out := cmd.OutOrStdout()

		if devicesJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(profiles)
		}

		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tWIDTH\tHEIGHT\tMOBILE")
		for _, p := range profiles {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%t\n", p.Name, p.Width, p.Height, p.Mobile)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
	devicesCmd.Flags().BoolVar(&devicesJSON, "json", false, "print JSON instead of a table")
}
