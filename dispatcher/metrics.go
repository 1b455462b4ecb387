// metrics.go defines the Prometheus counters of the dispatcher.

package dispatcher

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/xaionaro-go/hwscaler/types"
)

type Metrics struct {
	Frames   *prometheus.CounterVec
	Failures *prometheus.CounterVec
}

// NewMetrics creates the dispatcher's collectors and registers them in reg.
// Collectors already registered in reg are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	frames := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hwscaler",
		Name:      "frames_total",
		Help:      "Frames emitted to the sink, by processing path.",
	}, []string{"path"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hwscaler",
		Name:      "frame_failures_total",
		Help:      "Frames that could not be processed, by error kind.",
	}, []string{"kind"})

	m := &Metrics{}
	var err error
	if m.Frames, err = registerCounterVec(reg, frames); err != nil {
		return nil, err
	}
	if m.Failures, err = registerCounterVec(reg, failures); err != nil {
		return nil, err
	}
	return m, nil
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if reg == nil {
		return c, nil
	}
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var alreadyRegistered prometheus.AlreadyRegisteredError
	if errors.As(err, &alreadyRegistered) {
		if existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec); ok {
			return existing, nil
		}
	}
	return nil, err
}

func (m *Metrics) observeFrame(path types.DispatchPath) {
	if m == nil {
		return
	}
	m.Frames.WithLabelValues(path.String()).Inc()
}

func (m *Metrics) observeFailure(kind types.ErrorKind) {
	if m == nil {
		return
	}
	m.Failures.WithLabelValues(kind.String()).Inc()
}
