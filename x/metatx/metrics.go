package metatx

import (
	"time"

	"github.com/iov-one/msvault/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tendermint/tendermint/libs/log"
)

var (
	operationsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "msvault",
		Subsystem: "metatx",
		Name:      "operations_total",
		Help:      "Number of coordinator operations by result.",
	}, []string{"op", "result"})

	conflictsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "msvault",
		Subsystem: "metatx",
		Name:      "conflicts_total",
		Help:      "Number of conditional writes rejected because of a concurrent update.",
	}, []string{"op"})

	executionMetric = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "msvault",
		Subsystem: "metatx",
		Name:      "execution_duration_seconds",
		Help:      "Vault execution duration distribution in seconds.",
		Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
	}, []string{"result"})
)

// result returns the metric label of an operation outcome.
func result(err error) string {
	if err == nil {
		return "ok"
	}
	switch {
	case errors.ErrConflict.Is(err):
		return "conflict"
	case errors.ErrNotAnOwner.Is(err), errors.ErrUnauthorized.Is(err):
		return "unauthorized"
	case errors.ErrExecutionFailed.Is(err), errors.ErrAlreadyExecuted.Is(err):
		return "reverted"
	case errors.ErrDatabase.Is(err):
		return "unavailable"
	}
	return "rejected"
}

// observe records the operation outcome and writes it to the logger. Store
// and vault failures are logged as errors, requests refused because of the
// caller or the transaction state at info level, successful reads (lowPrio)
// at debug level and everything else at info level.
func observe(logger log.Logger, op string, start time.Time, err error, lowPrio bool, keyvals ...interface{}) {
	delta := time.Since(start)
	res := result(err)
	operationsMetric.WithLabelValues(op, res).Inc()

	logger = logger.With("op", op, "duration", delta/time.Microsecond)
	switch {
	case err == nil:
	case res == "rejected" || res == "unauthorized":
		logger.Info("operation rejected", append(keyvals, "result", res, "err", err)...)
		return
	default:
		logger.Error("operation failed", append(keyvals, "result", res, "err", err)...)
		return
	}
	if lowPrio {
		logger.Debug("operation", keyvals...)
	} else {
		logger.Info("operation", keyvals...)
	}
}
