package main

import (
	"time"

	"cmon/internal/pkg/global"

	"github.com/spf13/pflag"
)

// Flag names.
const (
	flagCephURL         = "ceph-url"
	flagPrometheusURL   = "prometheus-url"
	flagRefreshInterval = "refresh-interval"
	flagMaxFailures     = "max-failures"
	flagParser          = "parser"
	flagIntegrity       = "integrity"
	flagLogLevel        = "log-level"
	flagMetricsAddr     = "metrics-addr"
	flagIOLoad          = "ioload"
	flagAlerts          = "alerts"
	flagPools           = "pools"
	flagRBDs            = "rbds"
	flagRGWs            = "rgws"
)

// cliConf holds flag values; only flags set on the command line are
// applied over the loaded configuration.
var cliConf struct {
	cephURL         string
	prometheusURL   string
	refreshInterval time.Duration
	maxFailures     int
	parser          string
	integrity       string
	logLevel        string
	metricsAddr     string
	panels          global.PanelConfig
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&cliConf.cephURL, flagCephURL, "c", "", "URL of the mgr/prometheus endpoint")
	f.StringVarP(&cliConf.prometheusURL, flagPrometheusURL, "p", "", "URL of a Prometheus server scraping the cluster")
	f.DurationVarP(&cliConf.refreshInterval, flagRefreshInterval, "r", 0,
		"refresh interval (5s, 10s or 15s), must match the Prometheus scrape interval")
	f.IntVar(&cliConf.maxFailures, flagMaxFailures, 0, "consecutive failed scrapes before exiting")
	f.StringVar(&cliConf.parser, flagParser, "", "exposition parser: positional or strict")
	f.StringVar(&cliConf.integrity, flagIntegrity, "", "missing join data: skip or propagate")
	f.StringVar(&cliConf.logLevel, flagLogLevel, "", "log level")
	f.StringVar(&cliConf.metricsAddr, flagMetricsAddr, "", "listen address for /metrics and the JSON API")
	f.BoolVar(&cliConf.panels.IOLoad, flagIOLoad, false, "poll IO load history from Prometheus")
	f.BoolVar(&cliConf.panels.Alerts, flagAlerts, false, "poll alerts from Prometheus")
	f.BoolVar(&cliConf.panels.Pools, flagPools, false, "log pool performance each refresh")
	f.BoolVar(&cliConf.panels.RBDs, flagRBDs, false, "log RBD image performance each refresh")
	f.BoolVar(&cliConf.panels.RGWs, flagRGWs, false, "log RGW performance each refresh")
}

// flagOverrides returns a config override applying every flag that was set.
func flagOverrides(f *pflag.FlagSet) func(*global.Config) {
	return func(c *global.Config) {
		if f.Changed(flagCephURL) {
			c.CephURL = cliConf.cephURL
		}
		if f.Changed(flagPrometheusURL) {
			c.PrometheusURL = cliConf.prometheusURL
		}
		if f.Changed(flagRefreshInterval) {
			c.RefreshInterval = cliConf.refreshInterval
		}
		if f.Changed(flagMaxFailures) {
			c.Runtime.MaxFailures = cliConf.maxFailures
		}
		if f.Changed(flagParser) {
			c.Runtime.Parser = cliConf.parser
		}
		if f.Changed(flagIntegrity) {
			c.Runtime.Integrity = cliConf.integrity
		}
		if f.Changed(flagLogLevel) {
			c.Runtime.Log.Lvl = cliConf.logLevel
		}
		if f.Changed(flagMetricsAddr) {
			c.Runtime.MetricsAddr = cliConf.metricsAddr
		}
		if f.Changed(flagIOLoad) {
			c.Panels.IOLoad = cliConf.panels.IOLoad
		}
		if f.Changed(flagAlerts) {
			c.Panels.Alerts = cliConf.panels.Alerts
		}
		if f.Changed(flagPools) {
			c.Panels.Pools = cliConf.panels.Pools
		}
		if f.Changed(flagRBDs) {
			c.Panels.RBDs = cliConf.panels.RBDs
		}
		if f.Changed(flagRGWs) {
			c.Panels.RGWs = cliConf.panels.RGWs
		}
	}
}
