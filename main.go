package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/czerwonk/pingwatch/apperror"
	"github.com/czerwonk/pingwatch/config"
	"github.com/czerwonk/pingwatch/monitor"
	"github.com/czerwonk/pingwatch/plot"
	"github.com/czerwonk/pingwatch/probe"
	"github.com/czerwonk/pingwatch/store"
)

const version string = "0.1.0"

const (
	exitOK          = 0
	exitFailure     = 1
	exitConfig      = 2
	exitPersistence = 3
	exitInterrupted = 130
)

var (
	configFile = kingpin.Flag("config.path", "Path to config file").Default("").String()
	logLevel   = kingpin.Flag("log.level", "Only log messages with the given severity or above. Valid levels: [debug, info, warn, error, fatal]").Default("info").String()
	logFile    = kingpin.Flag("log.file", "Write logs to this file (rotated) instead of stderr").Default("").String()

	runCmd          = kingpin.Command("run", "Probe all targets for a number of rounds and append the results to a CSV file")
	targetsFile     = runCmd.Flag("targets", "Text file with one hostname/IP per line").Default("").String()
	outFile         = runCmd.Flag("out", "CSV output path").Default("data/logs/run.csv").String()
	pingInterval    = runCmd.Flag("interval", "Time between measurement rounds").Default("5s").Duration()
	pingCount       = runCmd.Flag("count", "Number of rounds (use a large number for longer runs)").Default("10").Int()
	pingTimeout     = runCmd.Flag("timeout", "Timeout for a single probe").Default("2s").Duration()
	pingMode        = runCmd.Flag("ping.mode", "Probe mechanism. Valid choices: [auto, icmp, exec]").Default(probe.ModeAuto).Enum(probe.ModeAuto, probe.ModeICMP, probe.ModeExec)
	pingSize        = runCmd.Flag("ping.size", "Payload size for ICMP echo requests").Default("56").Uint16()
	pingWorkers     = runCmd.Flag("ping.workers", "Number of targets probed concurrently within a round").Default("1").Int()
	dnsNameServer   = runCmd.Flag("dns.nameserver", "DNS server used to resolve hostname of targets").Default("").String()
	tailnet         = runCmd.Flag("tailscale.net", "Also probe all devices of this tailnet (API key from TS_API_KEY)").Default("").String()
	metricsTextfile = runCmd.Flag("metrics.textfile", "Write metrics of the latest round to this file (node_exporter textfile format)").Default("").String()
	rttMode         = runCmd.Flag("metrics.rttunit", "Export round trip times as either millis, or seconds, or both. Valid choices: [ms, s, both]").Default("ms").String()
	listenAddress   = runCmd.Flag("web.listen-address", "Address on which to expose metrics while running (disabled if empty)").Default("").String()
	metricsPath     = runCmd.Flag("web.telemetry-path", "Path under which to expose metrics").Default("/metrics").String()

	plotCmd   = kingpin.Command("plot", "Render a latency chart from a CSV file")
	plotIn    = plotCmd.Flag("in", "CSV file written by the run command").Required().String()
	plotOut   = plotCmd.Flag("out", "Output image path (png, svg, pdf)").Default("docs/latency.png").String()
	plotTitle = plotCmd.Flag("title", "Chart title").Default(plot.DefaultTitle).String()
	plotDPI   = plotCmd.Flag("dpi", "Resolution of png output").Default("160").Int()
)

func main() {
	kingpin.Version(versionInfo())
	cmd := kingpin.Parse()

	setLogLevel(*logLevel)
	if *logFile != "" {
		setLogFile(*logFile)
	}

	switch cmd {
	case runCmd.FullCommand():
		os.Exit(runMonitor())
	case plotCmd.FullCommand():
		os.Exit(renderPlot())
	}
}

func versionInfo() string {
	return fmt.Sprintf("pingwatch %s\nNetwork latency & availability monitor", version)
}

func runMonitor() int {
	cfg, err := loadConfig()
	if err != nil {
		log.Errorf("could not load config.path: %v", err)
		return exitConfig
	}

	if err := cfg.Validate(); err != nil {
		log.Errorln(err)
		return exitConfig
	}

	scale := rttUnitFromString(cfg.Metrics.RTTUnit)
	if scale == rttInvalid {
		log.Errorln("metrics.rttunit must be `ms` for millis, or `s` for seconds, or `both`")
		return exitConfig
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	extra := cfg.Targets
	if cfg.Tailscale.Tailnet != "" {
		hosts, err := tsDiscover(ctx, cfg.Tailscale.Tailnet)
		if err != nil {
			return exitCode(err)
		}
		extra = append(extra, hosts...)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Output), 0o755); err != nil {
		return exitCode(apperror.New(apperror.Persistence, "main.run", err))
	}

	prober, err := probe.New(probe.Options{
		Mode:        cfg.Ping.Mode,
		PayloadSize: cfg.Ping.Size,
		Resolver:    probe.NewResolver(cfg.DNS.Nameserver),
	})
	if err != nil {
		return exitCode(err)
	}
	defer prober.Close()

	log.Infof("Starting pingwatch (Version: %s, strategy=%s, interval=%s, count=%d, timeout=%s)",
		version, prober.Strategy(), cfg.Interval(), cfg.Ping.Count, cfg.Ping.Timeout.Duration())

	collector := newRoundCollector(scale)
	reg := prometheus.NewRegistry()
	reg.MustRegister(collector)

	opts := []monitor.Option{monitor.WithObserver(collector.Observe)}
	if cfg.Metrics.Textfile != "" {
		opts = append(opts, monitor.WithObserver(textfileObserver(cfg.Metrics.Textfile, reg)))
	}
	if cfg.Web.ListenAddress != "" {
		srv := startServer(cfg.Web.ListenAddress, cfg.Web.TelemetryPath, reg)
		defer stopServer(srv)
	}

	w := store.NewWriter(cfg.Output)
	m := monitor.New(monitor.Config{
		TargetsPath:  cfg.TargetsFile,
		ExtraTargets: extra,
		Interval:     cfg.Interval(),
		Count:        cfg.Ping.Count,
		Timeout:      cfg.Ping.Timeout.Duration(),
		Workers:      cfg.Ping.Workers,
	}, prober, w, opts...)

	err = m.Run(ctx)
	if err == nil {
		log.Infof("Finished %d round(s), results in %s", cfg.Ping.Count, w.Path())
	}
	return exitCode(err)
}

func renderPlot() int {
	opts := plot.Options{Title: *plotTitle, DPI: *plotDPI}
	if err := plot.RenderFile(*plotIn, *plotOut, opts); err != nil {
		log.Errorf("could not plot %s: %v", *plotIn, err)
		return exitFailure
	}

	log.Infof("Wrote %s", *plotOut)
	return exitOK
}

// exitCode logs err and maps it to the exit status of the process.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, context.Canceled):
		log.Warnln("interrupted")
		return exitInterrupted
	case apperror.IsKind(err, apperror.Configuration):
		log.Errorf("configuration error: %v", err)
		return exitConfig
	case apperror.IsKind(err, apperror.Persistence):
		log.Errorf("could not persist results: %v", err)
		return exitPersistence
	default:
		log.Errorln(err)
		return exitFailure
	}
}

func loadConfig() (*config.Config, error) {
	if *configFile == "" {
		cfg := config.Config{}
		addFlagToConfig(&cfg)

		return &cfg, nil
	}

	f, err := os.Open(*configFile)
	if err != nil {
		return nil, fmt.Errorf("cannot load config file: %w", err)
	}
	defer f.Close()

	cfg, err := config.FromYAML(f)
	if err == nil {
		addFlagToConfig(cfg)
	}

	return cfg, err
}

// addFlagToConfig updates cfg with command line flag values, unless the
// config has non-zero values.
func addFlagToConfig(cfg *config.Config) {
	if cfg.TargetsFile == "" {
		cfg.TargetsFile = *targetsFile
	}
	if cfg.Output == "" {
		cfg.Output = *outFile
	}
	if cfg.Ping.Interval == nil {
		cfg.SetInterval(*pingInterval)
	}
	if cfg.Ping.Timeout == 0 {
		cfg.Ping.Timeout.Set(*pingTimeout)
	}
	if cfg.Ping.Count == 0 {
		cfg.Ping.Count = *pingCount
	}
	if cfg.Ping.Mode == "" {
		cfg.Ping.Mode = *pingMode
	}
	if cfg.Ping.Size == 0 {
		cfg.Ping.Size = *pingSize
	}
	if cfg.Ping.Workers == 0 {
		cfg.Ping.Workers = *pingWorkers
	}
	if cfg.DNS.Nameserver == "" {
		cfg.DNS.Nameserver = *dnsNameServer
	}
	if cfg.Tailscale.Tailnet == "" {
		cfg.Tailscale.Tailnet = *tailnet
	}
	if cfg.Metrics.Textfile == "" {
		cfg.Metrics.Textfile = *metricsTextfile
	}
	if cfg.Metrics.RTTUnit == "" {
		cfg.Metrics.RTTUnit = *rttMode
	}
	if cfg.Web.ListenAddress == "" {
		cfg.Web.ListenAddress = *listenAddress
	}
	if cfg.Web.TelemetryPath == "" {
		cfg.Web.TelemetryPath = *metricsPath
	}
}
