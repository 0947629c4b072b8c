package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cmon/internal/pkg/ceph"
	"cmon/internal/pkg/fetch"
	"cmon/internal/pkg/global"
	"cmon/internal/pkg/mahttp"
	"cmon/internal/pkg/merge"
	"cmon/internal/pkg/promapi"
	"cmon/internal/pkg/store"
	"cmon/internal/pkg/watch"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Modified at build time
var version = "v0.0.0"

// ioLoadWindow how much IO load history to fetch from Prometheus.
const ioLoadWindow = 15 * time.Minute

var rootCmd = &cobra.Command{
	Use:   "cmon",
	Short: "Ceph cluster monitor",
	Long: `
Scrapes the Ceph mgr/prometheus endpoint once per refresh interval, keeps
the latest sample and rate of every series and serves cluster views
(health, capacity, PGs, pools, RBD, RGW, OSDs) as JSON.
`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "cmon: %v\n", err)
		os.Exit(1)
	}
}

func setupZapLogger() zap.AtomicLevel {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(global.CmonConf.Runtime.Log.Level())
	cfg.OutputPaths = global.CmonConf.Runtime.Log.Outputs
	if len(cfg.OutputPaths) == 0 {
		cfg.OutputPaths = []string{"stdout"}
	}
	cfg.EncoderConfig.EncodeTime = logTimestampMSEncoder
	opts := []zap.Option{
		zap.AddStacktrace(zapcore.ErrorLevel),
	}
	l, err := cfg.Build(opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to setup zap logging: %v", err))
	}

	// set newly configured logger as default (access via zap.L() // zap.S())
	zap.ReplaceGlobals(l)

	return cfg.Level
}

// logTimestampMSEncoder encodes the log timestamp as an int64 from Time.UnixMilli()
func logTimestampMSEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendInt64(t.UnixMilli())
}

func newStore(conf global.Config) *store.Store {
	decoder := store.DecodePositional
	if conf.Runtime.Parser == global.ParserStrict {
		decoder = store.DecodeStrict
	}

	return store.New(store.Conf{
		URL:            conf.CephURL,
		ScrapeInterval: conf.RefreshInterval,
		MaxFailures:    conf.Runtime.MaxFailures,
		Fetcher:        fetch.NewClient(fetch.ClientConf{URL: conf.CephURL, Timeout: conf.Runtime.ScrapeTimeout}),
		Decoder:        decoder,
	})
}

func integrityPolicy(conf global.Config) merge.Policy {
	if conf.Runtime.Integrity == global.IntegrityPropagate {
		return merge.PolicyPropagate
	}

	return merge.PolicySkip
}

func run(cmd *cobra.Command, _ []string) error {
	if err := global.LoadConfig(flagOverrides(cmd.Flags())); err != nil {
		return err
	}
	conf := global.CmonConf

	level := setupZapLogger()
	log := zap.S()
	defer log.Sync()

	log.Infow("cmon parameters configured",
		"version", version,
		"ceph_url", conf.CephURL,
		"prometheus_url", conf.PrometheusURL,
		"refresh_interval", conf.RefreshInterval,
		"max_failures", conf.Runtime.MaxFailures,
		"parser", conf.Runtime.Parser,
		"panels", conf.Panels)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := newStore(conf)
	if err := st.Build(ctx); err != nil {
		return errors.Wrapf(err, "unable to start with %s", conf.CephURL)
	}
	logSummary(st.Snapshot(), conf)

	api := mahttp.NewAPI(st, integrityPolicy(conf))
	mux := http.NewServeMux()
	mux.Handle("/metrics", mahttp.ValidationMiddleware(promhttp.Handler()))
	mux.Handle("/loglvl", mahttp.ValidationMiddleware(level))
	api.Register(mux)

	wg := &sync.WaitGroup{}
	wg.Add(1)
	srv := mahttp.StartHTTPServer(wg, conf.Runtime.MetricsAddr, mux)

	registry := watch.NewRegistry()
	if err := registry.Register(watch.NewScrapeWatch(watch.ScrapeWatchConf{
		Interval: conf.RefreshInterval,
		Timeout:  conf.Runtime.ScrapeTimeout,
		Updater:  st,
	})); err != nil {
		return err
	}

	if conf.PrometheusURL != "" {
		prom := promapi.NewClient(promapi.ClientConf{URL: conf.PrometheusURL, Timeout: conf.Runtime.ScrapeTimeout})
		for _, w := range promWatches(prom, api, conf) {
			if err := registry.Register(w); err != nil {
				return err
			}
		}
	}

	ch := make(chan interface{}, 16)
	if err := registry.Start(ch); err != nil {
		return err
	}

	runErr := loop(ctx, ch, st, conf)

	log.Info("shutting down")
	registry.Stop()
	httpctx, httpcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpcancel()
	if err := srv.Shutdown(httpctx); err != nil {
		log.Errorw("http server shutdown failed", zap.Error(err))
	}
	registry.Wait()
	wg.Wait()

	return runErr
}

// loop consumes watch messages until shutdown is requested or the store
// gives up.
func loop(ctx context.Context, ch <-chan interface{}, st *store.Store, conf global.Config) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case msg := <-ch:
			switch m := msg.(type) {
			case watch.ScrapeEvent:
				if m.Fatal {
					return m.Err
				}
				if m.Err != nil {
					zap.S().Warnw("refresh skipped, showing previous data", zap.Error(m.Err))
					continue
				}
				logSummary(st.Snapshot(), conf)

			case watch.PollEvent:
				zap.S().Debugw("poll complete", "poller", m.Name, "duration", m.Duration, zap.Error(m.Err))
			}
		}
	}
}

// promWatches polls alerts and IO load history from Prometheus for the
// enabled panels and caches the results in api.
func promWatches(prom *promapi.Client, api *mahttp.API, conf global.Config) []watch.Watcher {
	var watches []watch.Watcher

	if conf.Panels.Alerts {
		watches = append(watches, watch.NewPollWatch(watch.PollWatchConf{
			Name:      "alerts",
			Interval:  conf.RefreshInterval,
			Timeout:   conf.Runtime.ScrapeTimeout,
			Immediate: true,
			Poller: watch.PollerFunc(func(ctx context.Context, _ time.Time) error {
				alerts, err := prom.Alerts(ctx)
				api.SetAlerts(alerts, err)
				return err
			}),
		}))
	}
	if conf.Panels.IOLoad {
		watches = append(watches, watch.NewPollWatch(watch.PollWatchConf{
			Name:      "ioload",
			Interval:  conf.RefreshInterval,
			Timeout:   conf.Runtime.ScrapeTimeout,
			Immediate: true,
			Poller: watch.PollerFunc(func(ctx context.Context, now time.Time) error {
				load, err := prom.IOLoadHistory(ctx, now, ioLoadWindow, conf.RefreshInterval)
				api.SetIOLoad(load, err)
				return err
			}),
		}))
	}

	return watches
}

// logSummary writes the cluster overview and any enabled tables to the log.
func logSummary(s *store.Snapshot, conf global.Config) {
	log := zap.S()
	sum := mahttp.BuildSummary(s)

	log.Infow("cluster summary",
		"health", sum.Health,
		"version", sum.Version,
		"hosts", sum.Inventory.Hosts,
		"raw_used", sum.Raw,
		"raw_used_pct", fmt.Sprintf("%.1f", sum.Capacity.PercentUsed()),
		"iops", humanize.SIWithDigits(sum.IOPS, 1, ""),
		"throughput", humanize.Bytes(uint64(sum.Throughput))+"/s",
		"pgs_ok_pct", sum.PGs.OK.Pct,
		"errors", sum.Errors)

	policy := integrityPolicy(conf)
	if conf.Panels.Pools {
		pools, reason, err := ceph.Pools(s, policy)
		log.Infow("pools", "count", len(pools), "reason", reason, "records", pools, zap.Error(err))
	}
	if conf.Panels.RBDs {
		images, reason, err := ceph.RBDPerformance(s, policy)
		log.Infow("rbd images", "count", len(images), "reason", reason, "top", ceph.TopRBD(images, 10), zap.Error(err))
	}
	if conf.Panels.RGWs {
		gws, reason := ceph.RGWPerformance(s)
		log.Infow("rgw daemons", "count", len(gws), "reason", reason, "records", gws)
	}
}
