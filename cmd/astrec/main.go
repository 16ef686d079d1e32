package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"Kakofonix/astrec/config"
	"Kakofonix/astrec/internal/logger"
	"Kakofonix/astrec/internal/version"
)

const example = `  astrec -i eth0 -w rec -b 60 -m 239.64.64.1 -p 7150
  astrec --config /etc/astrec/config.json -vv
  astrec -l`

// options holds the command line switches. Only flags that were set
// override the configuration file.
type options struct {
	configPath    string
	envFile       string
	iface         string
	group         string
	port          int
	prefix        string
	blockMinutes  int
	verbosity     int
	list          bool
	logLevel      string
	logFile       string
	metricsListen string
	healthListen  string
	manifest      bool
}

func main() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the command line and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		if errors.Is(err, config.ErrConfiguration) {
			fmt.Fprintln(stderr, "Run 'astrec --help' for usage.")
		}
		return 1
	}
	return 0
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "astrec",
		Short: "Record an ASTERIX multicast feed to time-blocked files",
		Long: `astrec joins a UDP multicast group carrying ASTERIX surveillance data and
appends every datagram payload to <prefix>.ast. Every block of minutes,
counted from the Unix epoch, the file is closed and renamed to
<prefix>_<YYYYMMDD_HHMM>_<HHMM>.ast (UTC start and end of the recording).`,
		Example:       example,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(stdout, "%s v%s\n", version.Banner, version.Version)
			if opts.list {
				return listInterfaces(stdout)
			}

			cfg, err := loadSettings(cmd, opts)
			if err != nil {
				return err
			}
			if cfg.Capture.Verbosity > config.Quiet {
				cfg.PrintSettings(stdout)
			}
			if err := cfg.InitializeLogging(); err != nil {
				return err
			}
			log := logger.GetLogger()
			defer log.Close()

			return run(cmd.Context(), cfg, log, stdout)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "path to a JSON or YAML configuration file")
	f.StringVar(&opts.envFile, "env-file", ".env", "dotenv file with ASTREC_* credential overrides")
	f.StringVarP(&opts.iface, "interface", "i", "", "use network interface <int> (name or IPv4 address)")
	f.StringVarP(&opts.group, "mcast", "m", "", "subscribe to multicast group address <mcast>")
	f.IntVarP(&opts.port, "port", "p", 0, "listen to UDP multicast port <port>")
	f.StringVarP(&opts.prefix, "write", "w", "", "write asterix raw data to <file>.ast")
	f.IntVarP(&opts.blockMinutes, "block", "b", 0, "create a new asterix file every <min> minutes")
	f.CountVarP(&opts.verbosity, "verbose", "v", "be verbose (-v shows received frames, -vv also the first 20 octets)")
	f.BoolVarP(&opts.list, "list", "l", false, "list available network interfaces and exit")
	f.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	f.StringVar(&opts.logFile, "log-file", "", "also log to this file, rotated by size")
	f.StringVar(&opts.metricsListen, "metrics-listen", "", "serve Prometheus metrics on this address")
	f.StringVar(&opts.healthListen, "health-listen", "", "serve the gRPC health service on this address")
	f.BoolVar(&opts.manifest, "manifest", false, "write a JSON manifest next to every recording")

	cmd.AddCommand(newVersionCmd(stdout), newHealthCmd(stdout), newCollectLogsCmd(stdout))
	return cmd
}

// loadSettings reads the configuration file, applies the flags that were
// given and validates the result.
func loadSettings(cmd *cobra.Command, opts *options) (*config.Config, error) {
	if err := config.LoadEnvFile(opts.envFile); err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}
	cfg.ApplyEnv()

	f := cmd.Flags()
	if f.Changed("interface") {
		cfg.Capture.Interface = opts.iface
	}
	if f.Changed("mcast") {
		cfg.Capture.Group = opts.group
	}
	if f.Changed("port") {
		cfg.Capture.Port = opts.port
	}
	if f.Changed("write") {
		cfg.Capture.Prefix = opts.prefix
	}
	if f.Changed("block") {
		cfg.Capture.BlockMinutes = opts.blockMinutes
	}
	if f.Changed("verbose") {
		cfg.Capture.Verbosity = min(opts.verbosity, config.VeryVerbose)
	}
	if f.Changed("log-level") {
		cfg.Logging.Level = opts.logLevel
	}
	if f.Changed("log-file") {
		cfg.Logging.File = opts.logFile
	}
	if f.Changed("metrics-listen") {
		cfg.Metrics.Listen = opts.metricsListen
	}
	if f.Changed("health-listen") {
		cfg.Health.Listen = opts.healthListen
	}
	if f.Changed("manifest") {
		cfg.Capture.Manifest = opts.manifest
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version and exit",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(stdout, version.Version)
		},
	}
}
