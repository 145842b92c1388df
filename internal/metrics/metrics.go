package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Métricas del core de identidad/tokens. Viven en un paquete aparte para evitar
// ciclos entre jwt, refresh, identity y http.

var (
	TokenVerifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ironlog_token_verifications_total",
		Help: "Verificaciones de bearer tokens por resultado",
	}, []string{"result"}) // ok|invalid_signature|expired|revoked

	RefreshRotations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ironlog_refresh_rotations_total",
		Help: "Rotaciones de refresh token por resultado",
	}, []string{"result"}) // ok|invalid|lost_race|error

	Revocations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ironlog_revocations_total",
		Help: "Tokens agregados a la revocation store por motivo",
	}, []string{"reason"}) // rotation|logout|revoke_all

	RevocationStoreFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ironlog_revocation_store_failures_total",
		Help: "Consultas a la revocation store que fallaron y aplicaron la política",
	}, []string{"policy"})

	RevocationSweeps = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ironlog_revocation_sweep_purged_total",
		Help: "Entradas purgadas por el sweep in-process",
	})

	Provisioning = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ironlog_identity_provisioning_total",
		Help: "Llamadas a provisioning por resultado",
	}, []string{"outcome"}) // created|updated|unchanged|email_not_verified|error

	AuthzDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ironlog_ownership_decisions_total",
		Help: "Decisiones del authorizer de ownership",
	}, []string{"kind", "decision"})
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		TokenVerifications,
		RefreshRotations,
		Revocations,
		RevocationStoreFailures,
		RevocationSweeps,
		Provisioning,
		AuthzDecisions,
	}
}

// Register registra las métricas en el registry dado (o el default si es nil).
// Registrar dos veces no es error.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	return nil
}

// Handler expone /metrics para el gatherer dado (o el default).
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
