package util

import (
	"strings"

	"github.com/ValentinKolb/dStats/lib/lockmgr"
	"github.com/ValentinKolb/dStats/lib/runtime"
	"github.com/ValentinKolb/dStats/rpc/client"
	"github.com/ValentinKolb/dStats/rpc/common"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupStoreFlags adds the store connection flags to a command
func SetupStoreFlags(cmd *cobra.Command) {
	key := "store"
	cmd.PersistentFlags().String(key, "http://localhost:8080", WrapString("URI of the record store: memory://[name], tcp://host:port[/shard], http://host:port[/shard] or unix:///path/to/socket[?shard=N]. Query parameters serializer, timeout, retries and conns tune the client"))

	key = "lock"
	cmd.PersistentFlags().String(key, "", WrapString("URI of the lock manager holding the writer lease. Defaults to the store URI with the lock shard (200), so a store URI naming a shard needs an explicit lock URI"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "warn", WrapString("The level at which logs will be output (debug, info, warn, error)"))
}

// InitClientConfig initializes configuration from environment variables
func InitClientConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("dstats")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper and applies the log level
func BindCommandFlags(cmd *cobra.Command) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if level := viper.GetString("log-level"); level != "" {
		return common.InitLoggers(level)
	}
	return nil
}

// OpenStore connects to the store named by the store flag
func OpenStore() (client.Handle, error) {
	return client.Open(viper.GetString("store"))
}

// OpenStorage connects to the store and wraps it in the update-log client
func OpenStorage() (*runtime.Storage, client.Handle, error) {
	h, err := OpenStore()
	if err != nil {
		return nil, nil, err
	}
	return runtime.New(h), h, nil
}

// OpenLockManager connects to the lock manager named by the lock flag,
// falling back to the store URI
func OpenLockManager() (lockmgr.ILockManager, error) {
	uri := viper.GetString("lock")
	if uri == "" {
		uri = viper.GetString("store")
	}
	return client.OpenLockManager(uri)
}
