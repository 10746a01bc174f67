package commands

import (
	"context"
	"fmt"
	"os"

	"tap-bigmarker/lib/telemetry"

	"github.com/spf13/cobra"
)

var (
	configPath  string
	catalogPath string
	statePath   string
	stateDbPath string
	discover    bool
	verbose     bool
	httpDumpDir string

	tel telemetry.Telemetry
)

var rootCmd = &cobra.Command{
	Use:   "tap-bigmarker",
	Short: "tap-bigmarker extracts data from the BigMarker API as singer messages.",
	Long: "tap-bigmarker is a Singer tap for the BigMarker webinar platform.\n" +
		"By default it syncs every selected stream, writing SCHEMA/RECORD/STATE\n" +
		"messages to stdout and logs to stderr.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(verbose)

		var err error
		tel, err = telemetry.SetupFromEnv(cmd.Context(), "tap-bigmarker")
		if err != nil {
			// a broken collector should not block an extraction run
			fmt.Fprintln(os.Stderr, "telemetry setup failed:", err)
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if err := tel.Shutdown(context.Background()); err != nil {
			fmt.Fprintln(os.Stderr, "telemetry shutdown failed:", err)
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		if discover {
			runDiscover()
			return
		}
		runSync(cmd.Context())
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "config.json5", "Path to the tap settings file.")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Log at debug level.")

	rootCmd.Flags().StringVar(&catalogPath, "catalog", "", "Path to a catalog controlling stream selection.")
	rootCmd.Flags().StringVar(&statePath, "state", "", "Path to a state file with bookmarks from a previous run.")
	rootCmd.Flags().StringVar(&stateDbPath, "state-db", "", "Path to a sqlite database for persisting bookmarks between runs.")
	rootCmd.Flags().BoolVar(&discover, "discover", false, "Print the stream catalog to stdout and exit.")
	rootCmd.Flags().StringVar(&httpDumpDir, "http-dump-dir", "", "Dump every HTTP exchange to files in this directory.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
