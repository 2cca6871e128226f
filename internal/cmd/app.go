package cmd

import (
	"sort"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Iron-Ham/replan/internal/config"
	"github.com/Iron-Ham/replan/internal/errors"
	"github.com/Iron-Ham/replan/internal/event"
	"github.com/Iron-Ham/replan/internal/event/natsink"
	"github.com/Iron-Ham/replan/internal/logging"
	"github.com/Iron-Ham/replan/internal/replan/monitor"
	"github.com/Iron-Ham/replan/internal/replan/split"
)

// app holds the collaborators a command needs. It is built once per
// invocation from the loaded configuration.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	bus      *event.Bus
	registry *prometheus.Registry
	splitter *split.Splitter
	engine   *monitor.Engine

	conn *nats.Conn
	sink *natsink.Sink
}

// connectNATS is swapped out in tests.
var connectNATS = natsink.Connect

// newApp wires logging, metrics, the event bus, and the optional NATS sink
// into a monitor engine.
func newApp(cfg *config.Config) (*app, error) {
	logger := logging.NopLogger()
	if cfg.Logging.Enabled {
		l, err := logging.NewLogger(cfg.Logging.Dir, logging.ParseLevel(cfg.Logging.Level))
		if err != nil {
			return nil, errors.Wrap(err, "failed to create logger")
		}
		logger = l
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		bus:    event.NewBus(event.WithLogger(logger)),
	}

	var metrics *monitor.Metrics
	if cfg.Metrics.Enabled {
		a.registry = prometheus.NewRegistry()
		metrics = monitor.NewMetrics(a.registry, cfg.Metrics.Namespace)
	}

	if cfg.Events.NATS.Enabled {
		conn, err := connectNATS(cfg.Events.NATS.URL)
		if err != nil {
			_ = logger.Close()
			return nil, errors.Wrapf(err, "failed to connect to NATS at %s", cfg.Events.NATS.URL)
		}
		a.conn = conn
		a.sink = natsink.New(conn,
			natsink.WithSubjectPrefix(cfg.Events.NATS.SubjectPrefix),
			natsink.WithLogger(logger),
		)
		a.sink.Attach(a.bus)
	}

	a.splitter = split.New(
		split.WithMaxSubtasks(cfg.Replan.Split.MaxSubtasks),
		split.WithMaxDepth(cfg.Replan.Split.MaxDepth),
	)
	a.engine = monitor.NewEngine(
		monitor.WithThresholds(cfg.Replan.Thresholds),
		monitor.WithSplitter(a.splitter),
		monitor.WithBus(a.bus),
		monitor.WithLogger(logger),
		monitor.WithMetrics(metrics),
		monitor.WithHistoryLimit(cfg.Replan.History.Limit),
	)
	return a, nil
}

// close flushes the NATS connection and closes the log file.
func (a *app) close() {
	if a.conn != nil {
		if err := a.conn.Drain(); err != nil {
			a.logger.Warn("failed to drain NATS connection", "error", err)
		}
		a.logger.Info("event sink closed",
			"published", a.sink.Published(),
			"failures", a.sink.Failures())
	}
	_ = a.logger.Close()
}

// metricSample is one series flattened for display.
type metricSample struct {
	Name   string
	Labels string
	Value  float64
}

// metricSamples flattens counters and gauges from the registry. Histograms
// are reported by sample count.
func (a *app) metricSamples() ([]metricSample, error) {
	if a.registry == nil {
		return nil, nil
	}
	families, err := a.registry.Gather()
	if err != nil {
		return nil, errors.Wrap(err, "failed to gather metrics")
	}

	var out []metricSample
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			sort.Strings(labels)

			s := metricSample{Name: mf.GetName(), Labels: joinLabels(labels)}
			switch {
			case m.GetCounter() != nil:
				s.Value = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				s.Value = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				s.Value = float64(m.GetHistogram().GetSampleCount())
			}
			out = append(out, s)
		}
	}
	return out, nil
}

func joinLabels(labels []string) string {
	if len(labels) == 0 {
		return ""
	}
	return "{" + strings.Join(labels, ",") + "}"
}
