package revocation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dropDatabas3/ironlog/internal/metrics"
	"github.com/dropDatabas3/ironlog/internal/observability/logger"
)

// Policy decide qué contestar cuando la store no responde.
type Policy int

const (
	// FailOpen trata el token como no revocado. Un outage del cache no tumba
	// la API, pero un token revocado puede pasar mientras dure.
	FailOpen Policy = iota
	// FailClosed trata el token como revocado.
	FailClosed
)

func (p Policy) String() string {
	if p == FailClosed {
		return "fail_closed"
	}
	return "fail_open"
}

// ParsePolicy acepta "fail_open" | "fail_closed" (vacío = fail_open).
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fail_open", "open":
		return FailOpen, nil
	case "fail_closed", "closed":
		return FailClosed, nil
	default:
		return FailOpen, fmt.Errorf("revocation: unknown failure policy %q", s)
	}
}

// Checker envuelve una Store con timeout por llamada, reintento acotado y la
// política de falla. Implementa jwt.RevocationChecker.
type Checker struct {
	Store   Store
	Policy  Policy
	Retries int           // intentos extra tras el primero
	Timeout time.Duration // por intento
}

func NewChecker(s Store, p Policy, retries int, timeout time.Duration) *Checker {
	if retries < 0 {
		retries = 0
	}
	if timeout <= 0 {
		timeout = 250 * time.Millisecond
	}
	return &Checker{Store: s, Policy: p, Retries: retries, Timeout: timeout}
}

// Revoked nunca bloquea más de (Retries+1)*Timeout.
func (c *Checker) Revoked(ctx context.Context, id string) bool {
	var lastErr error
	for attempt := 0; attempt <= c.Retries; attempt++ {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
		callCtx, cancel := context.WithTimeout(ctx, c.Timeout)
		revoked, err := c.Store.IsRevoked(callCtx, id)
		cancel()
		if err == nil {
			return revoked
		}
		lastErr = err
	}

	metrics.RevocationStoreFailures.WithLabelValues(c.Policy.String()).Inc()
	logger.From(ctx).Warn("revocation store unavailable, applying policy",
		logger.Component("revocation"),
		logger.String("policy", c.Policy.String()),
		logger.Err(lastErr),
	)
	return c.Policy == FailClosed
}

// Revoke delega en la store con el mismo timeout por intento.
func (c *Checker) Revoke(ctx context.Context, id string, ttl time.Duration) error {
	var err error
	for attempt := 0; attempt <= c.Retries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, c.Timeout)
		err = c.Store.Revoke(callCtx, id, ttl)
		cancel()
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) {
			break
		}
	}
	return fmt.Errorf("revocation: revoke: %w", err)
}
