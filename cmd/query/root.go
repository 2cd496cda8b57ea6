package query

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"

	"github.com/ValentinKolb/dStats/cmd/util"
	"github.com/ValentinKolb/dStats/lib/memstore"
	"github.com/ValentinKolb/dStats/lib/record"
	"github.com/ValentinKolb/dStats/lib/runtime"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// QueryCmd syncs a multi-index with the store and prints matching records
	QueryCmd = &cobra.Command{
		Use:   "query",
		Short: "Filter the records of the store",
		Long: `Pull the updates for a reader id into an in-memory index and print the
records matching all given filters as JSON lines. Values of one filter are
alternatives. A reader id the store has not seen, or one whose cursor was
compacted away, receives the full record set.`,
		Example: `  dstats query --module nova,glance --company ibm --type commit
  dstats query --reader web-1 --release icehouse --count`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return util.BindCommandFlags(cmd) },
		RunE:    run,
	}
)

func init() {
	cobra.OnInitialize(util.InitClientConfig)
	util.SetupStoreFlags(QueryCmd)

	key := "reader"
	QueryCmd.Flags().String(key, "", util.WrapString("Reader id whose cursor is used and advanced. A random id is used if empty"))

	for _, key := range []string{"module", "company", "user", "type", "release", "blueprint"} {
		QueryCmd.Flags().StringSlice(key, nil, util.WrapString(fmt.Sprintf("Only records with one of these %s values", key)))
	}

	key = "since"
	QueryCmd.Flags().Int64(key, 0, util.WrapString("Only records dated at or after this unix time"))

	key = "until"
	QueryCmd.Flags().Int64(key, 0, util.WrapString("Only records dated before this unix time (0 for no limit)"))

	key = "count"
	QueryCmd.Flags().Bool(key, false, util.WrapString("Print only the number of matching records"))
}

func run(_ *cobra.Command, _ []string) error {
	storage, h, err := util.OpenStorage()
	if err != nil {
		return err
	}
	defer h.Close()

	reader := viper.GetString("reader")
	if reader == "" {
		reader = runtime.NewReaderID()
	}
	updates, err := storage.GetUpdate(reader)
	if err != nil {
		return err
	}
	idx := memstore.New()
	idx.Update(slices.Values(updates))

	ids := filter(idx).Resolve(idx.RecordIDs())
	if viper.GetBool("count") {
		fmt.Println(len(ids))
		return nil
	}

	enc := json.NewEncoder(os.Stdout)
	for _, r := range idx.Records(ids) {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	fmt.Fprintf(os.Stderr, "%d of %d records (reader %s)\n", len(ids), idx.Len(), reader)
	return nil
}

// filter intersects the index lookups of every given flag
func filter(idx *memstore.Index) memstore.Filter {
	var f memstore.Filter
	if v := viper.GetStringSlice("module"); len(v) > 0 {
		f = f.And(idx.RecordIDsByModules(v...))
	}
	if v := viper.GetStringSlice("company"); len(v) > 0 {
		f = f.And(idx.RecordIDsByCompanies(v...))
	}
	if v := viper.GetStringSlice("user"); len(v) > 0 {
		f = f.And(idx.RecordIDsByUserIDs(v...))
	}
	if v := viper.GetStringSlice("type"); len(v) > 0 {
		types := make([]record.Type, len(v))
		for i, t := range v {
			types[i] = record.Type(t)
		}
		f = f.And(idx.RecordIDsByTypes(types...))
	}
	if v := viper.GetStringSlice("release"); len(v) > 0 {
		f = f.And(idx.RecordIDsByReleases(v...))
	}
	if v := viper.GetStringSlice("blueprint"); len(v) > 0 {
		f = f.And(idx.RecordIDsByBlueprintIDs(v...))
	}
	if since, until := viper.GetInt64("since"), viper.GetInt64("until"); since != 0 || until != 0 {
		f = f.And(idx.RecordIDsByDate(since, until))
	}
	return f
}
