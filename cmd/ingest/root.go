package ingest

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"

	"github.com/ValentinKolb/dStats/cmd/util"
	"github.com/ValentinKolb/dStats/lib/corrections"
	"github.com/ValentinKolb/dStats/lib/defaults"
	"github.com/ValentinKolb/dStats/lib/processor"
	"github.com/ValentinKolb/dStats/lib/record"
	"github.com/ValentinKolb/dStats/lib/runtime"
	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var log = logger.GetLogger("cmd")

// maxEventSize bounds a single line of the events file
const maxEventSize = 64 * 1024 * 1024

var (
	// IngestCmd runs one ingestion cycle against the record store
	IngestCmd = &cobra.Command{
		Use:   "ingest",
		Short: "Process crawler events into the record store",
		Long: `Run one ingestion cycle: store the defaults, process the crawler events
into records, apply corrections, finalize and declare the live readers.
Every step is optional. The cycle holds the writer lease of the store.`,
		Example: `  dstats ingest --store tcp://localhost:8080 --defaults default_data.yaml --events events.jsonl
  dstats ingest --corrections https://example.org/corrections.yaml --active-readers web-1,web-2`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return util.BindCommandFlags(cmd) },
		RunE:    run,
	}
)

func init() {
	cobra.OnInitialize(util.InitClientConfig)
	util.SetupStoreFlags(IngestCmd)

	key := "defaults"
	IngestCmd.Flags().String(key, "", util.WrapString("YAML file with releases, repos, companies and users. Without it the tables stored by an earlier run are used"))

	key = "events"
	IngestCmd.Flags().String(key, "", util.WrapString("File of crawler events, one JSON object per line, - for stdin"))

	key = "corrections"
	IngestCmd.Flags().String(key, "", util.WrapString("Path or http(s) URL of a corrections document"))

	key = "finalize"
	IngestCmd.Flags().Bool(key, true, util.WrapString("Recompute user ids, review numbers, core reviewers, disagreements and blueprint mentions after processing"))

	key = "timings"
	IngestCmd.Flags().Bool(key, false, util.WrapString("Print the finalize phase timings"))

	key = "active-readers"
	IngestCmd.Flags().StringSlice(key, nil, util.WrapString("Reader ids still alive. The update log is compacted below the slowest of them, other readers resync on their next update"))

	key = "force"
	IngestCmd.Flags().Bool(key, false, util.WrapString("Run even if another process holds the writer lease"))
}

func run(cmd *cobra.Command, _ []string) error {
	storage, h, err := util.OpenStorage()
	if err != nil {
		return err
	}
	defer h.Close()

	release, err := acquireWriter()
	if err != nil {
		return err
	}
	defer func() {
		if err := release(); err != nil {
			log.Warningf("%v", err)
		}
	}()

	d, err := loadDefaults(storage)
	if err != nil {
		return err
	}
	p, err := processor.New(storage, d)
	if err != nil {
		return err
	}

	if path := viper.GetString("events"); path != "" {
		n, err := processEvents(storage, p, path)
		if err != nil {
			return err
		}
		fmt.Printf("records written: %d\n", n)
	}

	if uri := viper.GetString("corrections"); uri != "" {
		cs, err := corrections.LoadURI(cmd.Context(), uri)
		if err != nil {
			return err
		}
		records, users, err := cs.Apply(storage)
		if err != nil {
			return err
		}
		fmt.Printf("corrections applied: %d records of %d, %d users of %d\n", records, len(cs.Records), users, len(cs.Users))
	}

	if viper.GetBool("finalize") {
		n, err := p.Finalize()
		if err != nil {
			return err
		}
		fmt.Printf("records finalized: %d\n", n)
		if viper.GetBool("timings") {
			gometrics.WriteOnce(p.Timers(), os.Stdout)
		}
	}

	if cmd.Flags().Changed("active-readers") {
		readers := viper.GetStringSlice("active-readers")
		if err := storage.ActivePIDs(readers); err != nil {
			return err
		}
		first, err := storage.FirstValidUpdate()
		if err != nil {
			return err
		}
		fmt.Printf("active readers: %d, first valid update: %d\n", len(readers), first)
	}
	return nil
}

// acquireWriter takes the writer lease; with --force a held lease is ignored
func acquireWriter() (func() error, error) {
	lm, err := util.OpenLockManager()
	if err != nil {
		return nil, err
	}
	release, err := runtime.AcquireWriter(lm)
	if errors.Is(err, runtime.ErrWriterLocked) && viper.GetBool("force") {
		log.Warningf("writer lease is held by another process, continuing (--force)")
		return func() error { return nil }, nil
	}
	return release, err
}

func loadDefaults(storage *runtime.Storage) (*defaults.Defaults, error) {
	path := viper.GetString("defaults")
	if path == "" {
		return defaults.LoadStored(storage)
	}
	d, err := defaults.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := d.Store(storage); err != nil {
		return nil, fmt.Errorf("store defaults: %w", err)
	}
	return d, nil
}

func processEvents(storage *runtime.Storage, p *processor.Processor, path string) (int, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return 0, err
		}
		defer f.Close()
		r = f
	}

	er := &eventReader{scanner: bufio.NewScanner(r)}
	er.scanner.Buffer(make([]byte, 64*1024), maxEventSize)

	n, err := storage.SetRecords(p.Process(er.Events()), record.MergeSource)
	if err != nil {
		return n, err
	}
	if err := p.Err(); err != nil {
		return n, err
	}
	if err := er.scanner.Err(); err != nil {
		return n, fmt.Errorf("read events: %w", err)
	}
	if er.skipped > 0 {
		log.Warningf("skipped %d invalid events", er.skipped)
	}
	return n, nil
}

// eventReader decodes a JSON lines stream of crawler events
type eventReader struct {
	scanner *bufio.Scanner
	line    int
	skipped int
}

// Events yields the valid events of the stream. Invalid lines are logged and skipped.
func (er *eventReader) Events() iter.Seq[record.Event] {
	return func(yield func(record.Event) bool) {
		for er.scanner.Scan() {
			er.line++
			data := bytes.TrimSpace(er.scanner.Bytes())
			if len(data) == 0 {
				continue
			}
			ev, err := record.DecodeEvent(data)
			if err != nil {
				er.skipped++
				log.Warningf("events line %d: %v", er.line, err)
				continue
			}
			if !yield(ev) {
				return
			}
		}
	}
}
