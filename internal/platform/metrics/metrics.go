package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the onboarding engine.
type Metrics struct {
	SessionsStarted    prometheus.Counter
	SessionsCompleted  prometheus.Counter
	SessionsAbandoned  prometheus.Counter
	SessionsRestarted  prometheus.Counter
	TurnsHandled       prometheus.Counter
	ValidationFailures *prometheus.CounterVec
	RegistrationErrors prometheus.Counter
}

// New creates and registers all Prometheus metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers metrics on the given registerer; tests pass a private
// registry so parallel suites don't collide on duplicate registration.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "crecheflow_onboarding_sessions_started_total",
			Help: "Total number of onboarding sessions created.",
		}),
		SessionsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "crecheflow_onboarding_sessions_completed_total",
			Help: "Total number of onboarding sessions committed to records.",
		}),
		SessionsAbandoned: factory.NewCounter(prometheus.CounterOpts{
			Name: "crecheflow_onboarding_sessions_abandoned_total",
			Help: "Total number of onboarding sessions abandoned by the user.",
		}),
		SessionsRestarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "crecheflow_onboarding_sessions_restarted_total",
			Help: "Total number of onboard_restart commands honored.",
		}),
		TurnsHandled: factory.NewCounter(prometheus.CounterOpts{
			Name: "crecheflow_onboarding_turns_total",
			Help: "Total number of inbound turns processed by the engine.",
		}),
		ValidationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crecheflow_onboarding_validation_failures_total",
			Help: "Total rejected inputs, labelled by the step that rejected them.",
		}, []string{"step"}),
		RegistrationErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "crecheflow_onboarding_registration_errors_total",
			Help: "Total completion commits that failed to create records.",
		}),
	}
}
