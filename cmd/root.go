// cmd/root.go
package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// runOptions bundles every flag docbench's subcommands share, filled
// from the command line and optionally seeded from --config before
// flags are re-applied on top.
type runOptions struct {
	URL        string
	Database   string
	Profile    string
	Reads      float64
	Writes     float64
	Updates    float64
	Distribution string
	ZipfianTheta float64
	DocSize      string

	Transport          string
	Compression        string
	HTTPVersion        string
	StrictHTTPVersion  bool

	Warmup   string
	Duration string
	Preload  int
	Seed     int64
	MaxErrors string
	KneeRule  string
	LinkMbps  float64
	// NetworkLimited asserts the link speed should be treated as known for
	// verdict classification even when --link-mbps itself is unset (e.g.
	// the operator knows qualitatively that the network is the bound but
	// hasn't measured an exact figure).
	NetworkLimited bool

	SNMPEnabled  bool
	SNMPProfile  string
	SNMPPort     int
	SNMPInterval string
	SNMPTimeout  string

	Out       string
	OutCSV    string
	Latencies string
	Verbose   bool
	LogLevel  string
	Config    string
}

var opts runOptions

var rootCmd = &cobra.Command{
	Use:   "docbench",
	Short: "Closed-loop and rate-driven load generator for finding a document database's performance knee",
}

// Execute runs the configured command, exiting with a non-zero status
// on any unrecoverable error (validation, negotiation, transport).
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.URL, "url", "", "target database base URL (required)")
	pf.StringVar(&opts.Database, "database", "docbench", "target database name")
	pf.StringVar(&opts.Profile, "profile", "mixed", "workload profile (mixed, writes, reads, query-by-id, bulk-writes, random-reads, parameterized-equality, range, text-prefix, text-search, text-search-rare, text-search-common, text-search-mixed, vector-search, vector-search-exact)")
	pf.Float64Var(&opts.Reads, "reads", 80, "relative weight of reads under the mixed profile")
	pf.Float64Var(&opts.Writes, "writes", 10, "relative weight of writes under the mixed profile")
	pf.Float64Var(&opts.Updates, "updates", 10, "relative weight of updates under the mixed profile")
	pf.StringVar(&opts.Distribution, "distribution", "uniform", "key distribution (uniform, zipfian, latest)")
	pf.Float64Var(&opts.ZipfianTheta, "zipfian-theta", 0, "zipfian skew parameter (default 0.99 when distribution=zipfian)")
	pf.StringVar(&opts.DocSize, "doc-size", "1KB", "synthetic document size (B, KB, MB suffix)")

	pf.StringVar(&opts.Transport, "transport", "raw", "HTTP transport implementation (raw, client)")
	pf.StringVar(&opts.Compression, "compression", "identity", "wire compression (identity, gzip, zstd, br, deflate)")
	pf.StringVar(&opts.HTTPVersion, "http-version", "auto", "HTTP protocol version (auto, 1.1, 2, 3)")
	pf.BoolVar(&opts.StrictHTTPVersion, "strict-http-version", false, "fail instead of falling back to 1.1 when the requested version cannot be negotiated")

	pf.StringVar(&opts.Warmup, "warmup", "5s", "per-step warmup duration (ms, s, m suffix)")
	pf.StringVar(&opts.Duration, "duration", "30s", "per-step measurement duration (ms, s, m suffix)")
	pf.IntVar(&opts.Preload, "preload", 10000, "number of documents to preload before ramping")
	pf.Int64Var(&opts.Seed, "seed", 1, "master RNG seed, for reproducible runs")
	pf.StringVar(&opts.MaxErrors, "max-errors", "5%", "error rate ceiling that stops the ramp (percent)")
	pf.StringVar(&opts.KneeRule, "knee-rule", "dthr=-10%,dp95=20%", "knee detection thresholds (dthr=<percent>,dp95=<percent>)")
	pf.Float64Var(&opts.LinkMbps, "link-mbps", 0, "known link speed in Mbps, enabling the network-limited verdict (0 = unknown)")
	pf.BoolVar(&opts.NetworkLimited, "network-limited", false, "treat the link speed as known for verdict classification even without an exact --link-mbps figure")

	pf.BoolVar(&opts.SNMPEnabled, "snmp-enabled", false, "poll server counters over SNMP in addition to REST")
	pf.StringVar(&opts.SNMPProfile, "snmp-profile", "minimal", "SNMP OID profile (minimal, extended)")
	pf.IntVar(&opts.SNMPPort, "snmp-port", 161, "SNMP agent port")
	pf.StringVar(&opts.SNMPInterval, "snmp-interval", "250ms", "SNMP polling interval")
	pf.StringVar(&opts.SNMPTimeout, "snmp-timeout", "2s", "SNMP request timeout")

	pf.StringVar(&opts.Out, "out", "docbench-summary.json", "path to write the JSON summary")
	pf.StringVar(&opts.OutCSV, "out-csv", "", "path to write a CSV summary (optional)")
	pf.StringVar(&opts.Latencies, "latencies", "", "embed per-step latency histogram bins in the JSON summary (normalized, raw, both; empty disables)")
	pf.BoolVar(&opts.Verbose, "verbose", false, "debug-level logging, including the per-step deduplicated error summary")
	pf.StringVar(&opts.LogLevel, "log", "info", "log level (debug, info, warn, error)")
	pf.StringVar(&opts.Config, "config", "", "optional YAML file seeding flag defaults (flags still win)")

	rootCmd.AddCommand(closedCmd, rateCmd)
}

func setupLogging() error {
	level, err := logrus.ParseLevel(opts.LogLevel)
	if err != nil {
		return err
	}
	if opts.Verbose {
		level = logrus.DebugLevel
	}
	logrus.SetLevel(level)
	return nil
}
