package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	versionString = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "conversion-assistant",
	Short: "Guides a scientific data file through conversion to an archival format",
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(versionString)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}
