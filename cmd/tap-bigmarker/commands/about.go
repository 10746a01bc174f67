package commands

import (
	"fmt"

	"tap-bigmarker/lib/serviceutil"
	"tap-bigmarker/tap"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(aboutCmd)
	rootCmd.AddCommand(versionCmd)
}

// Version is set at build time via -ldflags.
var Version = "dev"

var aboutCmd = &cobra.Command{
	Use:   "about",
	Short: "Prints the tap name, version and settings schema.",
	Run: func(cmd *cobra.Command, args []string) {
		schema, err := tap.ConfigSchema()
		if err != nil {
			serviceutil.Fatal("failed to render settings schema", err)
		}
		fmt.Printf("%s %s\n\nsettings schema:\n%s\n", tap.Name, Version, schema)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Prints the tap version.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(Version)
	},
}
