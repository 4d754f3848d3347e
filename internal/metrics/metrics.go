package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/customeros/lenderinbox/internal/enum"
)

const (
	ModeBatch  = "batch"
	ModeDaemon = "daemon"
)

// Message metrics
var (
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lenderinbox_messages_total",
			Help: "Total number of lender messages handled, by outcome",
		},
		[]string{"mailbox", "outcome"},
	)

	SubmissionsUpdatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lenderinbox_submissions_updated_total",
			Help: "Total number of submission rows updated from lender replies",
		},
	)

	EventsPublishFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lenderinbox_events_publish_failures_total",
			Help: "Total number of notification events that could not be published",
		},
	)
)

// Mailbox metrics
var (
	ConnectionFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lenderinbox_connection_failures_total",
			Help: "Total number of failed mailbox connections",
		},
		[]string{"mailbox", "mode"},
	)

	MailboxesWatched = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lenderinbox_mailboxes_watched",
			Help: "Number of mailboxes with a running daemon worker",
		},
	)

	CycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lenderinbox_mailbox_cycle_duration_seconds",
			Help:    "Duration of one unseen-message cycle for a mailbox",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"mode"},
	)
)

// Run metrics
var (
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lenderinbox_runs_total",
			Help: "Total number of batch runs, by result",
		},
		[]string{"result"},
	)
)

func RecordOutcome(mailbox string, status enum.OutcomeStatus) {
	MessagesTotal.WithLabelValues(mailbox, status.String()).Inc()
}

func RecordConnectionFailure(mailbox, mode string) {
	ConnectionFailuresTotal.WithLabelValues(mailbox, mode).Inc()
}

func ObserveCycle(mode string, started time.Time) {
	CycleDuration.WithLabelValues(mode).Observe(time.Since(started).Seconds())
}

func RecordRun(err error) {
	if err != nil {
		RunsTotal.WithLabelValues("error").Inc()
		return
	}
	RunsTotal.WithLabelValues("success").Inc()
}
