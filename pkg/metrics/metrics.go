package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

var HistogramBuckets = []float64{
	// fast responses (0 - 500ms)
	25, 50, 75, 100, 150, 200, 300, 400, 500,
	// medium (500ms - 2s)
	750, 1000, 1250, 1500, 1750, 2000,
	// slow (2s - 15s); provider callbacks must answer well inside 5s
	2500, 3000, 4000, 5000, 7500, 10000, 15000,
	// provider outages
	30000, 60000,
}

// Metric is a definition for the name, description, type, ID, and
// prometheus.Collector type (i.e. CounterVec, Summary, etc) of each metric
type Metric struct {
	MetricCollector prometheus.Collector
	ID              string
	Name            string
	Description     string
	Type            string
	Args            []string
}

// NewMetric associates prometheus.Collector based on Metric.Type
func NewMetric(m *Metric, subsystem string) prometheus.Collector {
	switch m.Type {
	case "counter_vec":
		return prometheus.NewCounterVec(prometheus.CounterOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description}, m.Args)
	case "counter":
		return prometheus.NewCounter(prometheus.CounterOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description})
	case "gauge_vec":
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description}, m.Args)
	case "gauge":
		return prometheus.NewGauge(prometheus.GaugeOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description})
	case "histogram_vec":
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description, Buckets: HistogramBuckets}, m.Args)
	case "histogram":
		return prometheus.NewHistogram(prometheus.HistogramOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description, Buckets: HistogramBuckets})
	case "summary_vec":
		return prometheus.NewSummaryVec(prometheus.SummaryOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description}, m.Args)
	case "summary":
		return prometheus.NewSummary(prometheus.SummaryOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description})
	}
	return nil
}

var (
	metricCallbacks = &Metric{
		ID:          "callbacks",
		Name:        "provider_callbacks_total",
		Description: "Provider callbacks received, by kind and outcome.",
		Type:        "counter_vec",
		Args:        []string{"kind", "outcome"},
	}
	metricDecisions = &Metric{
		ID:          "decisions",
		Name:        "reconciliation_decisions_total",
		Description: "Reconciliation outcomes, by resulting status and actor kind.",
		Type:        "counter_vec",
		Args:        []string{"status", "actor"},
	}
	metricReminders = &Metric{
		ID:          "reminders",
		Name:        "reminders_dispatched_total",
		Description: "Reminder dispatch attempts, by channel and resulting status.",
		Type:        "counter_vec",
		Args:        []string{"channel", "status"},
	}
	metricSMSFallback = &Metric{
		ID:          "smsFallback",
		Name:        "sms_unconfigured_fallback_total",
		Description: "SMS messages logged instead of sent because gateway credentials are missing.",
		Type:        "counter",
	}
	metricProviderCalls = &Metric{
		ID:          "providerCalls",
		Name:        "provider_call_dur_ms",
		Description: "Payment provider API latency in milliseconds.",
		Type:        "histogram_vec",
		Args:        []string{"op", "outcome"},
	}
)

const domainSubsystem = "rentpay"

// Domain holds the service's business counters. A nil *Domain is valid and
// records nothing, which keeps tests free of registry setup.
type Domain struct {
	callbacks     *prometheus.CounterVec
	decisions     *prometheus.CounterVec
	reminders     *prometheus.CounterVec
	smsFallback   prometheus.Counter
	providerCalls *prometheus.HistogramVec
}

// NewDomain registers the business metrics on reg.
func NewDomain(reg prometheus.Registerer) (*Domain, error) {
	d := &Domain{
		callbacks:     NewMetric(metricCallbacks, domainSubsystem).(*prometheus.CounterVec),
		decisions:     NewMetric(metricDecisions, domainSubsystem).(*prometheus.CounterVec),
		reminders:     NewMetric(metricReminders, domainSubsystem).(*prometheus.CounterVec),
		smsFallback:   NewMetric(metricSMSFallback, domainSubsystem).(prometheus.Counter),
		providerCalls: NewMetric(metricProviderCalls, domainSubsystem).(*prometheus.HistogramVec),
	}
	for _, c := range []prometheus.Collector{d.callbacks, d.decisions, d.reminders, d.smsFallback, d.providerCalls} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Domain) Callback(kind, outcome string) {
	if d == nil {
		return
	}
	d.callbacks.WithLabelValues(kind, outcome).Inc()
}

func (d *Domain) Decision(status, actor string) {
	if d == nil {
		return
	}
	d.decisions.WithLabelValues(status, actor).Inc()
}

func (d *Domain) Reminder(channel, status string) {
	if d == nil {
		return
	}
	d.reminders.WithLabelValues(channel, status).Inc()
}

func (d *Domain) SMSFallback() {
	if d == nil {
		return
	}
	d.smsFallback.Inc()
}

func (d *Domain) ProviderCall(op, outcome string, ms float64) {
	if d == nil {
		return
	}
	d.providerCalls.WithLabelValues(op, outcome).Observe(ms)
}

const (
	RefererKey = "X-Referer"
)

func newDefaultDomain() (*Domain, error) { return NewDomain(prometheus.DefaultRegisterer) }

var Module = fx.Options(
	fx.Provide(newDefaultDomain),
)
