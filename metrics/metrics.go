package metrics

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/ethereum-optimism/infra/op-shard/types"
)

const (
	MetricsNamespace = "op_shard"
	pushJobName      = "op_shard"
)

var (
	nonAlphanumericRegex = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	filesEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "files_enqueued_total",
		Help:      "Number of test files pushed onto the work queue",
	})

	filesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "files_processed_total",
		Help:      "Number of test files run by workers",
	}, []string{
		"result",
	})

	testsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "tests_total",
		Help:      "Completed test cases by status",
	}, []string{
		"status",
	})

	failuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "failures_total",
		Help:      "Failure records by exception class",
	}, []string{
		"class",
	})

	workerExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "worker_exits_total",
		Help:      "Worker process exits by exit code",
	}, []string{
		"code",
	})

	runDuration = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Wall time of the last sharded run",
	})

	runResult = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_result",
		Help:      "Result of the last sharded run",
	}, []string{
		"result",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

func RecordEnqueued(files int) {
	filesEnqueued.Add(float64(files))
}

func RecordFileProcessed(passed bool) {
	result := "pass"
	if !passed {
		result = "fail"
	}
	filesProcessed.WithLabelValues(result).Inc()
}

func RecordStat(status types.TestStatus) {
	if !status.IsValid() {
		log.Error("RecordStat - invalid status", "status", status)
		return
	}
	testsTotal.WithLabelValues(string(status)).Inc()
}

func RecordFailure(class string) {
	failuresTotal.WithLabelValues(class).Inc()
}

func RecordWorkerExit(code int) {
	workerExits.WithLabelValues(strconv.Itoa(code)).Inc()
}

func RecordRun(success bool, duration time.Duration) {
	runDuration.Set(duration.Seconds())
	runResult.Reset()
	result := "pass"
	if !success {
		result = "fail"
	}
	runResult.WithLabelValues(result).Set(1)
}

// Push sends every registered metric to a Prometheus pushgateway, grouped
// by run and instance so the leader and each worker keep separate series.
func Push(ctx context.Context, url string, runID string, instance string) error {
	err := push.New(url, pushJobName).
		Gatherer(prometheus.DefaultGatherer).
		Grouping("run_id", runID).
		Grouping("instance", instance).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	return nil
}
