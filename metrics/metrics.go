package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "op_cyrunner"
)

// RunResult is the label recorded for every finished run.
type RunResult string

const (
	RunResultPass          RunResult = "pass"
	RunResultFail          RunResult = "fail"
	RunResultMissingReport RunResult = "missing_report"
	RunResultError         RunResult = "error"
)

// Error categories recorded in errors_total. The error detail belongs in the
// log line, never in the label.
const (
	ErrorUpload        = "upload"
	ErrorStaging       = "staging"
	ErrorExecution     = "execution"
	ErrorMissingReport = "missing_report"
	ErrorHTTPServer    = "http_server"
)

var (
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "runs_total",
		Help:      "Count of finished test runs by result",
	}, []string{
		"result",
	})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Wall clock duration of test runs, staging and cleanup included",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200},
	}, []string{
		"result",
	})

	runsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "runs_in_flight",
		Help:      "Number of test runner processes currently running",
	})

	specTestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "spec_tests_total",
		Help:      "Count of tests reported by the runner, by outcome",
	}, []string{
		"outcome",
	})

	httpResponseCodesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "http_response_codes_total",
		Help:      "Count of HTTP responses by route and status code",
	}, []string{
		"route",
		"status_code",
	})
)

func RecordError(category string) {
	errorsTotal.WithLabelValues(category).Inc()
}

func RecordRun(result RunResult, duration time.Duration) {
	runsTotal.WithLabelValues(string(result)).Inc()
	runDuration.WithLabelValues(string(result)).Observe(duration.Seconds())
}

// RunStarted increments the in-flight gauge and returns the func that decrements it.
func RunStarted() func() {
	runsInFlight.Inc()
	return runsInFlight.Dec
}

func RecordSpecTests(passes, failures, pending int) {
	specTestsTotal.WithLabelValues("pass").Add(float64(passes))
	specTestsTotal.WithLabelValues("fail").Add(float64(failures))
	specTestsTotal.WithLabelValues("pending").Add(float64(pending))
}

func RecordHTTPResponse(route string, statusCode int) {
	httpResponseCodesTotal.WithLabelValues(route, strconv.Itoa(statusCode)).Inc()
}

// Register adds every collector to r. The collectors stay registered with the
// default registry too.
func Register(r prometheus.Registerer) {
	r.MustRegister(
		errorsTotal,
		runsTotal,
		runDuration,
		runsInFlight,
		specTestsTotal,
		httpResponseCodesTotal,
	)
}
