package instrumentation

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	api "github.com/retirectl/retirectl/api/v1alpha1"
	"github.com/retirectl/retirectl/internal/orchestrator"
	"github.com/sirupsen/logrus"
)

const (
	gracefulShutdownTimeout = 5 * time.Second
	readTimeout             = 5 * time.Second
	writeTimeout            = 10 * time.Second
)

// RetirementMetrics counts phase outcomes and processed devices during a
// run. Large batches take long enough that watching progress over a scrape
// endpoint is worth having; short runs simply never start the listener.
type RetirementMetrics struct {
	registry *prometheus.Registry

	phaseOutcomes    *prometheus.CounterVec
	devicesProcessed prometheus.Counter
}

var _ orchestrator.Metrics = (*RetirementMetrics)(nil)

func NewRetirementMetrics() *RetirementMetrics {
	m := &RetirementMetrics{
		registry: prometheus.NewRegistry(),
		phaseOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "retirectl_phase_outcomes_total",
			Help: "Teardown phase outcomes by phase and status.",
		}, []string{"phase", "status"}),
		devicesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "retirectl_devices_processed_total",
			Help: "Devices whose phase pipeline has completed.",
		}),
	}
	m.registry.MustRegister(m.phaseOutcomes, m.devicesProcessed)
	return m
}

func (m *RetirementMetrics) RecordPhaseOutcome(phase api.RetirementPhase, status api.PhaseStatus) {
	m.phaseOutcomes.WithLabelValues(string(phase), string(status)).Inc()
}

func (m *RetirementMetrics) RecordDeviceProcessed() {
	m.devicesProcessed.Inc()
}

// Serve exposes the metrics endpoint until the context is canceled. It
// returns once the server has shut down.
func (m *RetirementMetrics) Serve(ctx context.Context, log logrus.FieldLogger, address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:         address,
		Handler:      mux,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("metrics listening on %s", address)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
