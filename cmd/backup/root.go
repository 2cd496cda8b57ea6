package backup

import (
	"fmt"

	"github.com/ValentinKolb/dStats/cmd/util"
	"github.com/ValentinKolb/dStats/lib/dump"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// DumpCmd writes every key of the store to a dump file
	DumpCmd = &cobra.Command{
		Use:   "dump [target]",
		Short: "Write a snapshot of the record store",
		Long:  "Write every key-value pair of the record store to a local file or an S3 object (s3://bucket/key).",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return util.BindCommandFlags(cmd)
		},
		RunE: runDump,
	}

	// RestoreCmd loads a dump file into the store
	RestoreCmd = &cobra.Command{
		Use:   "restore [source]",
		Short: "Load a snapshot into the record store",
		Long:  "Load a dump written by dump into the record store. Keys are written verbatim; a store that already holds records is refused unless --force is given.",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return util.BindCommandFlags(cmd)
		},
		RunE: runRestore,
	}
)

func init() {
	cobra.OnInitialize(util.InitClientConfig)

	for _, cmd := range []*cobra.Command{DumpCmd, RestoreCmd} {
		util.SetupStoreFlags(cmd)

		key := "s3-region"
		cmd.Flags().String(key, "", util.WrapString("Region of the S3 bucket, the AWS default chain is used if empty"))

		key = "s3-endpoint"
		cmd.Flags().String(key, "", util.WrapString("Custom endpoint for S3 compatible stores (MinIO, LocalStack, ...)"))

		key = "s3-path-style"
		cmd.Flags().Bool(key, false, util.WrapString("Use path-style addressing (required for MinIO)"))
	}

	RestoreCmd.Flags().Bool("force", false, util.WrapString("Restore into a store that already holds records"))
}

func s3Config() dump.S3Config {
	return dump.S3Config{
		Region:       viper.GetString("s3-region"),
		Endpoint:     viper.GetString("s3-endpoint"),
		UsePathStyle: viper.GetBool("s3-path-style"),
	}
}

func runDump(cmd *cobra.Command, args []string) error {
	target, err := dump.ParseTarget(args[0])
	if err != nil {
		return err
	}
	storage, h, err := util.OpenStorage()
	if err != nil {
		return err
	}
	defer h.Close()

	n, err := dump.Dump(cmd.Context(), target, s3Config(), storage.Export)
	if err != nil {
		return err
	}
	fmt.Printf("dumped %d keys to %s\n", n, target)
	return nil
}

func runRestore(cmd *cobra.Command, args []string) error {
	source, err := dump.ParseTarget(args[0])
	if err != nil {
		return err
	}
	storage, h, err := util.OpenStorage()
	if err != nil {
		return err
	}
	defer h.Close()

	count, err := storage.RecordCount()
	if err != nil {
		return err
	}
	if count > 0 && !viper.GetBool("force") {
		return fmt.Errorf("store already holds %d records, use --force to restore anyway", count)
	}

	n, err := dump.Restore(cmd.Context(), source, s3Config(), storage.Import)
	if err != nil {
		return err
	}
	fmt.Printf("restored %d keys from %s\n", n, source)
	return nil
}
