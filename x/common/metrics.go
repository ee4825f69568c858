package swap_common

import (
	"github.com/prometheus/client_golang/prometheus"
)

type SwapMetrics struct {
	NumSwapRequests    *prometheus.CounterVec
	NumCacheLookups    *prometheus.CounterVec
	NumWorkerCalls     *prometheus.CounterVec
	WorkerCallDuration prometheus.Histogram
}

const (
	PrometheusLabelStatus        = "status"
	PrometheusLabelResult        = "result"
	PrometheusValueReceived      = "Received"
	PrometheusValueCompleted     = "Completed"
	PrometheusValueFailed        = "Failed"
	PrometheusValueCacheHit      = "Hit"
	PrometheusValueCacheMiss     = "Miss"
	PrometheusValueWorkerAttempt = "Attempt"
	PrometheusValueWorkerSuccess = "Success"
	PrometheusValueWorkerFailure = "Failure"
)

func NewPrometheusSwapMetrics(module string) *SwapMetrics {
	return NewPrometheusSwapMetricsOn(module, prometheus.DefaultRegisterer)
}

func NewPrometheusSwapMetricsOn(module string, registerer prometheus.Registerer) *SwapMetrics {
	numSwapRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "FaceSwap",
		Subsystem: module + "_MetricsSubsystem",
		Name:      "NumSwapRequests",
		Help:      "number of swap requests since start",
	},
		[]string{PrometheusLabelStatus},
	)
	numCacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "FaceSwap",
		Subsystem: module + "_MetricsSubsystem",
		Name:      "NumCacheLookups",
		Help:      "number of result cache lookups since start",
	},
		[]string{PrometheusLabelResult},
	)
	numWorkerCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "FaceSwap",
		Subsystem: module + "_MetricsSubsystem",
		Name:      "NumWorkerCalls",
		Help:      "number of face swap worker calls since start",
	},
		[]string{PrometheusLabelStatus},
	)
	workerCallDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "FaceSwap",
		Subsystem: module + "_MetricsSubsystem",
		Name:      "WorkerCallDurationSeconds",
		Help:      "duration of face swap worker calls in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	})
	registerer.MustRegister(numSwapRequests, numCacheLookups, numWorkerCalls, workerCallDuration)
	return &SwapMetrics{
		NumSwapRequests:    numSwapRequests,
		NumCacheLookups:    numCacheLookups,
		NumWorkerCalls:     numWorkerCalls,
		WorkerCallDuration: workerCallDuration,
	}
}
