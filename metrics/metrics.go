package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ethereum-optimism/infra/ci-runner/types"
)

const (
	MetricsNamespace = "cirunner"
)

var (
	Debug                bool = true
	validResults              = []types.StepStatus{types.StepStatusPass, types.StepStatusFail, types.StepStatusSkip}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	stepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "steps_total",
		Help:      "Count of executed pipeline steps",
	}, []string{
		"kind",
		"result",
	})

	stepDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "step_duration_seconds",
		Help:      "Duration of the last execution of a pipeline step",
	}, []string{
		"kind",
		"name",
	})

	stepExitCode = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "step_exit_code",
		Help:      "Exit code of the last execution of a pipeline step",
	}, []string{
		"kind",
		"name",
	})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "runs_total",
		Help:      "Count of pipeline runs",
	}, []string{
		"result",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of pipeline runs",
	}, []string{
		"run_id",
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
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
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

// RecordStep records the outcome of a single pipeline step
func RecordStep(kind types.StepKind, name string, result types.StepStatus, exitCode int, duration time.Duration) {
	if !isValidResult(result) {
		log.Error("RecordStep - invalid result", "result", result)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "steps_total",
			"kind", kind,
			"name", name,
			"result", result,
			"exit_code", exitCode)
	}
	stepsTotal.WithLabelValues(string(kind), string(result)).Inc()
	stepDuration.WithLabelValues(string(kind), name).Set(duration.Seconds())
	stepExitCode.WithLabelValues(string(kind), name).Set(float64(exitCode))
}

// RecordRun records the outcome of a whole pipeline run
func RecordRun(runID string, result types.StepStatus, duration time.Duration) {
	if !isValidResult(result) {
		log.Error("RecordRun - invalid result", "result", result)
		return
	}
	runsTotal.WithLabelValues(string(result)).Inc()
	runDuration.WithLabelValues(runID).Set(duration.Seconds())
}

func isValidResult(result types.StepStatus) bool {
	return slices.Contains(validResults, result)
}
