package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags.
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the goingest version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Printf("goingest %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
