package commands

import (
	"os"
	"strings"

	"tap-bigmarker/tap"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(streamsCmd)
}

var streamsCmd = &cobra.Command{
	Use:   "streams",
	Short: "Prints the streams this tap can extract.",
	Run: func(cmd *cobra.Command, args []string) {
		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Stream", "Method", "Path", "Primary Keys", "Replication", "Parent"})

		for _, s := range tap.Streams {
			t.AppendRow(table.Row{
				s.Name,
				s.Method,
				s.Path,
				strings.Join(s.PrimaryKeys, ", "),
				s.ReplicationMethod,
				s.Parent,
			})
		}

		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}
