package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log"
	"log/syslog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	logrus_syslog "github.com/sirupsen/logrus/hooks/syslog"
	"github.com/skycoin/skycoin/src/util/logging"
	"github.com/spf13/cobra"

	"github.com/skycoin/skytftp/internal/metrics"
	"github.com/skycoin/skytftp/pkg/fileio"
	"github.com/skycoin/skytftp/pkg/tftp"
	"github.com/skycoin/skytftp/pkg/transferlog"
	"github.com/skycoin/skytftp/pkg/util/pathutil"
)

const configEnv = "SKYTFTP_CONFIG"

var (
	metricsAddr  string
	syslogAddr   string
	tag          string
	cfgFromStdin bool
	port         int
	root         string
)

var rootCmd = &cobra.Command{
	Use:   "tftp-server [config.json]",
	Short: "Read-only TFTP-style file server",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		conf := parseConfig(args)
		if cmd.Flags().Changed("port") {
			if err := conf.SetPort(port); err != nil {
				log.Fatalf("Failed to set port: %s", err)
			}
		}
		if cmd.Flags().Changed("root") {
			conf.Root = root
		}
		if err := conf.Validate(); err != nil {
			log.Fatalf("Invalid config: %s", err)
		}

		// Logger
		logger := logging.MustGetLogger(tag)
		logLevel, err := logging.LevelFromString(conf.LogLevel)
		if err != nil {
			log.Fatal("Failed to parse LogLevel: ", err)
		}
		logging.SetLevel(logLevel)

		if syslogAddr != "" {
			hook, err := logrus_syslog.NewSyslogHook("udp", syslogAddr, syslog.LOG_INFO, tag)
			if err != nil {
				logger.Fatalf("Unable to connect to syslog daemon on %v", syslogAddr)
			}
			logging.AddHook(hook)
		}

		// Metrics
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(metricsAddr, nil); err != nil {
				logger.Println("Failed to start metrics API:", err)
			}
		}()

		files, err := fileio.NewOsSource(conf.Root)
		if err != nil {
			logger.Fatal("Failed to open root: ", err)
		}

		if conf.TransferLog.Type == "bbolt" {
			if _, err := pathutil.EnsureDir(filepath.Dir(conf.TransferLog.Location)); err != nil {
				logger.Fatal("Failed to create transfer log directory: ", err)
			}
		}
		transfers, err := transferlog.NewStore(conf.TransferLog.Type, conf.TransferLog.Location)
		if err != nil {
			logger.Fatal("Failed to open transfer log: ", err)
		}
		defer func() {
			if err := transfers.Close(); err != nil {
				logger.WithError(err).Warn("Failed to close transfer log.")
			}
		}()

		srv := tftp.NewServer(conf, files,
			tftp.SetLogger(logger),
			tftp.SetMetrics(metrics.NewPrometheus("tftp_server")),
			tftp.SetTransferLog(transfers))

		ctx, cancel := signalContext(logger)
		defer cancel()

		if err := srv.ListenAndServe(ctx); err != nil && err != context.Canceled {
			logger.Error(err)
		}
	},
}

func init() {
	rootCmd.Flags().StringVarP(&metricsAddr, "metrics", "m", ":2121", "address to bind metrics API to")
	rootCmd.Flags().StringVar(&syslogAddr, "syslog", "", "syslog server address. E.g. localhost:514")
	rootCmd.Flags().StringVar(&tag, "tag", "tftp-server", "logging tag")
	rootCmd.Flags().BoolVarP(&cfgFromStdin, "stdin", "i", false, "read configuration from STDIN")
	rootCmd.Flags().IntVarP(&port, "port", "p", tftp.DefaultPort, "well-known port, overrides the config address port")
	rootCmd.Flags().StringVarP(&root, "root", "r", ".", "directory files are served from, overrides the config root")
}

// parseConfig reads the config from STDIN or from the first config path found,
// falling back to defaults when there is none.
func parseConfig(args []string) *tftp.Config {
	conf := tftp.DefaultConfig()

	var rdr io.Reader
	if cfgFromStdin {
		rdr = bufio.NewReader(os.Stdin)
	} else {
		path, err := pathutil.FindConfigPath(args, 0, configEnv, pathutil.ServerDefaults())
		if err == pathutil.ErrConfigNotFound {
			return conf
		}
		f, err := os.Open(path)
		if err != nil {
			log.Fatalf("Failed to open config: %s", err)
		}
		defer f.Close() // nolint
		rdr = f
	}

	if err := json.NewDecoder(rdr).Decode(conf); err != nil {
		log.Fatalf("Failed to decode %s: %s", rdr, err)
	}
	return conf
}

func signalContext(logger *logging.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-ch:
			logger.Infof("Received %s, shutting down.", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(ch)
	}()
	return ctx, cancel
}

// Execute executes root CLI command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
