package commands

import (
	"context"
	"log"
	"log/syslog"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
	logrus_syslog "github.com/sirupsen/logrus/hooks/syslog"
	"github.com/skycoin/skycoin/src/util/logging"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/skycoin/skytftp/pkg/fileio"
	"github.com/skycoin/skytftp/pkg/tftp"
)

var (
	port        int
	output      string
	timeout     time.Duration
	stopOnError bool
	appendOut   bool
	logLevel    string
	syslogAddr  string
	tag         string
)

var rootCmd = &cobra.Command{
	Use:   "tftp-client <server> <filename>",
	Short: "Fetches a single file from a tftp-server",
	Args:  cobra.ExactArgs(2),
	Run: func(_ *cobra.Command, args []string) {
		server, filename := args[0], args[1]

		logger := logging.MustGetLogger(tag)
		lvl, err := logging.LevelFromString(logLevel)
		if err != nil {
			log.Fatal("Failed to parse log level: ", err)
		}
		logging.SetLevel(lvl)

		if syslogAddr != "" {
			hook, err := logrus_syslog.NewSyslogHook("udp", syslogAddr, syslog.LOG_INFO, tag)
			if err != nil {
				logger.Fatalf("Unable to connect to syslog daemon on %v", syslogAddr)
			}
			logging.AddHook(hook)
		}

		sink, err := openSink(filename)
		if err != nil {
			logger.Fatal(err)
		}

		c := tftp.NewClient(server, port)
		c.Logger = logger
		c.Timeout = timeout
		c.StopOnError = stopOnError

		logger.Infof("Server: %s", c.ServerAddr)
		logger.Infof("Requesting: %s", filename)

		res, err := c.Get(context.Background(), filename, sink)
		if res != nil {
			for _, d := range res.Diagnostics {
				logger.Warnf("Server error: %s", d)
			}
		}
		if err != nil {
			logger.Fatal("Transfer failed: ", err)
		}
		logger.Infof("Received %d bytes in %d blocks (%d duplicates) in %s.",
			res.Stats.Bytes, res.Stats.Blocks, res.Stats.Duplicates, res.Duration)
	},
}

func init() {
	rootCmd.Flags().IntVarP(&port, "port", "p", tftp.DefaultPort, "server well-known port")
	rootCmd.Flags().StringVarP(&output, "output", "o", "", `save location, "-" for STDOUT (default "received_<filename>")`)
	rootCmd.Flags().DurationVarP(&timeout, "timeout", "t", tftp.DefaultReceiveTimeout, "how long to wait for each packet")
	rootCmd.Flags().BoolVar(&stopOnError, "stop-on-error", false, "end the transfer when the server sends an error packet")
	rootCmd.Flags().BoolVarP(&appendOut, "append", "a", false, "append to an existing save location instead of replacing it")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "logging level")
	rootCmd.Flags().StringVar(&syslogAddr, "syslog", "", "syslog server address. E.g. localhost:514")
	rootCmd.Flags().StringVar(&tag, "tag", "tftp-client", "logging tag")
}

func openSink(filename string) (fileio.Sink, error) {
	if output == "-" {
		return fileio.NewWriterSink(os.Stdout), nil
	}

	path := output
	if path == "" {
		path = "received_" + filepath.Base(filename)
	}
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}

	fs := afero.NewOsFs()
	if !appendOut {
		if err := fs.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}
	return fileio.NewFileSink(fs, path), nil
}

// Execute executes root CLI command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
