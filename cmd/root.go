package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/dStats/cmd/backup"
	"github.com/ValentinKolb/dStats/cmd/ingest"
	"github.com/ValentinKolb/dStats/cmd/kv"
	"github.com/ValentinKolb/dStats/cmd/lock"
	"github.com/ValentinKolb/dStats/cmd/query"
	"github.com/ValentinKolb/dStats/cmd/serve"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dstats",
		Short: "contribution statistics store",
		Long: fmt.Sprintf(`dStats (v%s)

Ingests contribution events (commits, reviews, mails, blueprints, members,
translations, CI votes), resolves them to canonical users and companies and
keeps the records in a shared key-value store that readers follow through an
incremental update log.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dStats",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dStats v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(lock.LockCommands)
	RootCmd.AddCommand(ingest.IngestCmd)
	RootCmd.AddCommand(query.QueryCmd)
	RootCmd.AddCommand(backup.DumpCmd)
	RootCmd.AddCommand(backup.RestoreCmd)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
