package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nyxdb/contractcoord/internal/coordinator"
)

// CoordinatorCollector exposes the contract calculator's behavior as
// Prometheus metrics.
type CoordinatorCollector struct {
	calculationsTotal  prometheus.Counter
	calculationSeconds prometheus.Histogram
	contractsAdded     prometheus.Counter
	contractsRemoved   prometheus.Counter
	branchRegistered   prometheus.Counter
	acksIngested       prometheus.Counter
	liveContracts      prometheus.Gauge
}

// NewCoordinatorCollector creates a collector registered on the
// provided registry (default if nil).
func NewCoordinatorCollector(reg prometheus.Registerer, namespace string) *CoordinatorCollector {
	if namespace == "" {
		namespace = "contractcoord"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	builder := promauto.With(reg)
	return &CoordinatorCollector{
		calculationsTotal: builder.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calculations_total",
			Help:      "Number of CalculateAllContracts invocations.",
		}),
		calculationSeconds: builder.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "calculation_duration_seconds",
			Help:      "Wall time of a single CalculateAllContracts invocation.",
			Buckets:   prometheus.DefBuckets,
		}),
		contractsAdded: builder.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contracts_added_total",
			Help:      "Contracts minted across all invocations.",
		}),
		contractsRemoved: builder.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contracts_removed_total",
			Help:      "Contracts retired across all invocations.",
		}),
		branchRegistered: builder.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "branch_registrations_total",
			Help:      "Branch registrations emitted across all invocations.",
		}),
		acksIngested: builder.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acks_ingested_total",
			Help:      "Acks accepted via ReportAck.",
		}),
		liveContracts: builder.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_contracts",
			Help:      "Contracts currently held in the durable contract set.",
		}),
	}
}

// ObserveCalculation records one CalculateAllContracts invocation: its
// wall time, the diff it produced, and the contract count after it is
// applied.
func (c *CoordinatorCollector) ObserveCalculation(d time.Duration, diff coordinator.Diff, liveAfter int) {
	c.calculationsTotal.Inc()
	c.calculationSeconds.Observe(d.Seconds())
	c.contractsAdded.Add(float64(len(diff.AddContracts)))
	c.contractsRemoved.Add(float64(len(diff.RemoveContracts)))
	c.branchRegistered.Add(float64(len(diff.RegisterCurrentBranches)))
	c.liveContracts.Set(float64(liveAfter))
}

// ObserveAckIngested records one accepted ReportAck call.
func (c *CoordinatorCollector) ObserveAckIngested() {
	c.acksIngested.Inc()
}

// StartServer serves Prometheus metrics on addr until ctx is canceled.
func StartServer(ctx context.Context, addr string) error {
	if addr == "" {
		return fmt.Errorf("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Printf("metrics: server error: %v\n", err)
		}
	}()

	return nil
}
