package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/edvin/jenkins-maintenance/internal/maintenance"
)

// Recorder counts per-entity outcomes of maintenance operations in a private
// registry that is flushed to a node_exporter textfile.
type Recorder struct {
	registry *prometheus.Registry
	outcomes *prometheus.CounterVec
	duration *prometheus.GaugeVec
	failures *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jenkins_maintenance_entity_outcomes_total",
			Help: "Entities handled by a maintenance operation, by outcome",
		}, []string{"operation", "kind", "outcome"}),
		duration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "jenkins_maintenance_operation_duration_seconds",
			Help: "Wall-clock duration of the last run of a maintenance operation",
		}, []string{"operation"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jenkins_maintenance_operation_failures_total",
			Help: "Maintenance operations that ended with an error, by exit code",
		}, []string{"operation", "exit_code"}),
	}
	r.registry.MustRegister(r.outcomes, r.duration, r.failures)
	return r
}

// Observe records one finished operation. report may be nil for operations
// that do not produce one.
func (r *Recorder) Observe(operation string, report *maintenance.Report, elapsed time.Duration, err error) {
	r.duration.WithLabelValues(operation).Set(elapsed.Seconds())
	if report != nil {
		for _, o := range report.Outcomes {
			r.outcomes.WithLabelValues(operation, string(o.Kind), o.State.String()).Inc()
		}
	}
	if err != nil {
		r.failures.WithLabelValues(operation, strconv.Itoa(maintenance.ExitCode(err))).Inc()
	}
}

// WriteTextfile writes the registry atomically to path.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}

// Gatherer exposes the registry, mostly for tests.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}
