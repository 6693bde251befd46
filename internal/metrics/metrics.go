// Package metrics exports node counters in Prometheus format.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/cargowatch/telenode/internal/alert"
	"github.com/cargowatch/telenode/internal/delivery"
	"github.com/cargowatch/telenode/log2"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/temoto/alive/v2"
)

const (
	namespace      = "telenode"
	// cycles_total outcome label when snapshot lock timed out
	OutcomeSkipped = "Skipped"
)

type Config struct {
	Listen string `hcl:"listen"`
}

type Metrics struct {
	cycles        *prometheus.CounterVec
	attempts      prometheus.Counter
	notifications *prometheus.CounterVec
	alertActive   *prometheus.GaugeVec
	errors        prometheus.Counter
	mirrored      *prometheus.CounterVec
	sequence      prometheus.Gauge
	cycleDuration prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	self := &Metrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Delivery cycles by transport outcome.",
		}, []string{"outcome"}),
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_attempts_total",
			Help:      "Transport command attempts including retries.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_notifications_total",
			Help:      "Emitted alert notifications by signal.",
		}, []string{"signal"}),
		alertActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alert_active",
			Help:      "1 while signal is in Alert state.",
		}, []string{"signal"}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors reported through the logger.",
		}),
		mirrored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirror_messages_total",
			Help:      "Diagnostic records handled by broker mirror by result.",
		}, []string{"result"}),
		sequence: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sequence",
			Help:      "Sequence id of last constructed packet.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Delivery cycle duration including all transport retries.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}
	reg.MustRegister(self.cycles, self.attempts, self.notifications, self.alertActive,
		self.errors, self.mirrored, self.sequence, self.cycleDuration)
	return self
}

// RegisterSkips exposes snapshot lock skip counter owned by the store.
func (self *Metrics) RegisterSkips(reg prometheus.Registerer, skipped func() uint64) {
	reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "snapshot_lock_skips_total",
		Help:      "Snapshot updates dropped on lock timeout.",
	}, func() float64 { return float64(skipped()) }))
}

func (self *Metrics) ObserveCycle(r *delivery.CycleReport) {
	self.cycleDuration.Observe(r.Duration.Seconds())
	if r.Skipped {
		self.cycles.WithLabelValues(OutcomeSkipped).Inc()
		return
	}
	self.cycles.WithLabelValues(r.Outcome.Status.String()).Inc()
	self.attempts.Add(float64(r.Outcome.Attempts))
	self.sequence.Set(float64(r.Packet.SequenceID))
	for _, n := range r.Alert.Notifications {
		self.notifications.WithLabelValues(n.Signal.String()).Inc()
	}
	for _, sig := range []alert.Signal{alert.Thermal, alert.Humidity} {
		v := 0.0
		if r.Alert.Signals[sig].State == alert.Alert {
			v = 1
		}
		self.alertActive.WithLabelValues(sig.String()).Set(v)
	}
}

// LogError is log2 error hook.
func (self *Metrics) LogError(error) { self.errors.Inc() }

func (self *Metrics) Mirrored(result string) { self.mirrored.WithLabelValues(result).Inc() }

// Serve exposes /metrics until alive stops.
func Serve(a *alive.Alive, listen string, g prometheus.Gatherer, log *log2.Log) error {
	if listen == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if !a.Add(1) {
		return nil
	}
	go func() {
		defer a.Done()
		<-a.StopChan()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("metrics listen=%s err=%v", listen, errors.ErrorStack(err))
		}
	}()
	log.Infof("metrics listen=%s", listen)
	return nil
}
