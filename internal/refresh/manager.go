package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/ironlog/internal/audit"
	"github.com/dropDatabas3/ironlog/internal/jwt"
	"github.com/dropDatabas3/ironlog/internal/metrics"
	"github.com/dropDatabas3/ironlog/internal/observability/logger"
)

// ErrInvalidRefreshToken es uniforme: forjado, expirado, revocado, ya rotado o
// desconocido se ven igual desde afuera.
var ErrInvalidRefreshToken = errors.New("invalid_refresh_token")

// Revoker agrega ids a la revocation store.
type Revoker interface {
	Revoke(ctx context.Context, id string, ttl time.Duration) error
}

// RoleResolver da el rol vigente del subject al emitir un access nuevo.
type RoleResolver interface {
	RoleOf(ctx context.Context, subject string) (string, error)
}

// Pair es lo que recibe el cliente en login/refresh.
type Pair struct {
	Access  jwt.Token
	Refresh jwt.Token
}

type Manager struct {
	verifier *jwt.Verifier
	issuer   *jwt.Issuer
	index    Index
	revoker  Revoker
	roles    RoleResolver
	cutoff   jwt.CutoffSource // nil si roles no expone cutoffs
	now      func() time.Time
}

// NewManager conecta el índice como recorder del issuer: todo refresh emitido
// queda registrado. Si roles también implementa jwt.CutoffSource, Rotate lo
// usa para no emitir sobre un "logout everywhere" concurrente.
func NewManager(v *jwt.Verifier, iss *jwt.Issuer, idx Index, rev Revoker, roles RoleResolver) *Manager {
	iss.SetRecorder(idx)
	m := &Manager{
		verifier: v,
		issuer:   iss,
		index:    idx,
		revoker:  rev,
		roles:    roles,
		now:      time.Now,
	}
	if cs, ok := roles.(jwt.CutoffSource); ok {
		m.cutoff = cs
	}
	return m
}

// IssuePair emite access + refresh para un subject ya autenticado (login).
func (m *Manager) IssuePair(ctx context.Context, subject, role string) (Pair, error) {
	access, err := m.issuer.IssueAccess(ctx, subject, role)
	if err != nil {
		return Pair{}, fmt.Errorf("issue access: %w", err)
	}
	ref, err := m.issuer.IssueRefresh(ctx, subject)
	if err != nil {
		return Pair{}, fmt.Errorf("issue refresh: %w", err)
	}
	return Pair{Access: access, Refresh: ref}, nil
}

// Rotate canjea un refresh válido por un par nuevo. El refresh viejo sale del
// índice y entra a la revocation store antes de emitir nada. Si subject no es
// vacío, el token tiene que pertenecerle.
func (m *Manager) Rotate(ctx context.Context, oldRefresh, subject string) (Pair, error) {
	log := logger.From(ctx).With(logger.Component("refresh"), logger.Op("rotate"))

	c, err := m.validate(ctx, oldRefresh, subject)
	if err != nil {
		metrics.RefreshRotations.WithLabelValues("invalid").Inc()
		return Pair{}, err
	}

	role, err := m.roles.RoleOf(ctx, c.Subject)
	if err != nil {
		log.Info("refresh subject not resolvable", logger.Subject(c.Subject), logger.Err(err))
		metrics.RefreshRotations.WithLabelValues("invalid").Inc()
		return Pair{}, ErrInvalidRefreshToken
	}

	// Corte leído antes del Take. Si cambia antes de que el par nuevo quede en
	// el índice, un RevokeAllForSubject pudo listar sin verlo.
	before, hasBefore := m.cutoffOf(ctx, c.Subject)
	if hasBefore && jwt.IssuedBeforeCutoff(c.IssuedAt, before) {
		metrics.RefreshRotations.WithLabelValues("invalid").Inc()
		return Pair{}, ErrInvalidRefreshToken
	}

	// Gate: de dos rotaciones concurrentes sólo una saca la entrada.
	if _, err := m.index.Take(ctx, c.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			audit.Log(ctx, audit.RefreshReplay, map[string]any{"subject": c.Subject, "jti": c.ID})
			metrics.RefreshRotations.WithLabelValues("lost_race").Inc()
			return Pair{}, ErrInvalidRefreshToken
		}
		log.Error("refresh index take failed", logger.TokenID(c.ID), logger.Err(err))
		metrics.RefreshRotations.WithLabelValues("error").Inc()
		return Pair{}, ErrInvalidRefreshToken
	}
	m.revoke(ctx, c.ID, c.ExpiresAt, "rotation")

	pair, err := m.IssuePair(ctx, c.Subject, role)
	if err != nil {
		log.Error("issue after rotation failed", logger.Subject(c.Subject), logger.Err(err))
		metrics.RefreshRotations.WithLabelValues("error").Inc()
		return Pair{}, err
	}

	if after, hasAfter := m.cutoffOf(ctx, c.Subject); hasAfter != hasBefore || !after.Equal(before) {
		m.discard(ctx, pair)
		audit.Log(ctx, audit.RefreshRejected, map[string]any{"subject": c.Subject, "jti": c.ID, "reason": "cutoff_during_rotation"})
		metrics.RefreshRotations.WithLabelValues("invalid").Inc()
		return Pair{}, ErrInvalidRefreshToken
	}
	metrics.RefreshRotations.WithLabelValues("ok").Inc()
	log.Debug("rotated", logger.Subject(c.Subject), logger.TokenID(c.ID))
	return pair, nil
}

func (m *Manager) validate(ctx context.Context, raw, subject string) (*jwt.Claims, error) {
	c, err := m.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}
	if c.TokenUse != jwt.UseRefresh || c.ID == "" {
		return nil, ErrInvalidRefreshToken
	}
	if subject != "" && c.Subject != subject {
		audit.Log(ctx, audit.RefreshRejected, map[string]any{"subject": subject, "token_subject": c.Subject, "reason": "subject_mismatch"})
		return nil, ErrInvalidRefreshToken
	}
	e, err := m.index.Lookup(ctx, c.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			audit.Log(ctx, audit.RefreshReplay, map[string]any{"subject": c.Subject, "jti": c.ID})
		} else {
			logger.From(ctx).Error("refresh index lookup failed", logger.Component("refresh"), logger.TokenID(c.ID), logger.Err(err))
		}
		return nil, ErrInvalidRefreshToken
	}
	if e.Subject != c.Subject || !m.now().Before(e.ExpiresAt) {
		return nil, ErrInvalidRefreshToken
	}
	return c, nil
}

// RevokeAllForSubject saca del índice y revoca todos los refresh del subject.
// Devuelve cuántos sacó este llamado; los que ganó una rotación concurrente no
// cuentan.
func (m *Manager) RevokeAllForSubject(ctx context.Context, subject string) (int, error) {
	entries, err := m.index.ListBySubject(ctx, subject)
	if err != nil {
		return 0, fmt.Errorf("list refresh tokens: %w", err)
	}
	n := 0
	for _, e := range entries {
		if _, err := m.index.Take(ctx, e.ID); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return n, fmt.Errorf("take refresh token: %w", err)
		}
		m.revoke(ctx, e.ID, e.ExpiresAt, "revoke_all")
		n++
	}
	audit.Log(ctx, audit.SubjectRevokedAll, map[string]any{"subject": subject, "count": n})
	return n, nil
}

// Logout revoca el access en uso y, si viene, el refresh del mismo subject.
// Un refresh inválido o ajeno se ignora: logout siempre termina la sesión actual.
func (m *Manager) Logout(ctx context.Context, access *jwt.Claims, accessRaw, refreshRaw string) error {
	id := access.RevocationID(accessRaw)
	if ttl := access.ExpiresAt.Sub(m.now()); ttl > 0 {
		if err := m.revoker.Revoke(ctx, id, ttl); err != nil {
			return fmt.Errorf("revoke access: %w", err)
		}
		metrics.Revocations.WithLabelValues("logout").Inc()
	}
	if refreshRaw != "" {
		if c, err := m.validate(ctx, refreshRaw, access.Subject); err == nil {
			if _, err := m.index.Take(ctx, c.ID); err == nil {
				m.revoke(ctx, c.ID, c.ExpiresAt, "logout")
			}
		}
	}
	audit.Log(ctx, audit.Logout, map[string]any{"subject": access.Subject, "jti": access.ID})
	return nil
}

func (m *Manager) cutoffOf(ctx context.Context, subject string) (time.Time, bool) {
	if m.cutoff == nil {
		return time.Time{}, false
	}
	return m.cutoff.TokensValidFrom(ctx, subject)
}

// discard anula un par recién emitido: saca el refresh del índice (si un
// RevokeAllForSubject no lo hizo ya) y revoca ambos.
func (m *Manager) discard(ctx context.Context, p Pair) {
	if _, err := m.index.Take(ctx, p.Refresh.ID); err != nil && !errors.Is(err, ErrNotFound) {
		logger.From(ctx).Error("refresh index take failed", logger.Component("refresh"), logger.TokenID(p.Refresh.ID), logger.Err(err))
	}
	m.revoke(ctx, p.Refresh.ID, p.Refresh.ExpiresAt, "cutoff")
	m.revoke(ctx, p.Access.ID, p.Access.ExpiresAt, "cutoff")
}

// revoke registra id hasta exp. Si la store falla el token igual ya salió del
// índice, así que no vuelve a rotar; sólo lo logueamos.
func (m *Manager) revoke(ctx context.Context, id string, exp time.Time, reason string) {
	ttl := exp.Sub(m.now())
	if ttl <= 0 {
		return
	}
	if err := m.revoker.Revoke(ctx, id, ttl); err != nil {
		logger.From(ctx).Error("revoke refresh failed",
			logger.Component("refresh"), logger.TokenID(id), logger.String("reason", reason), logger.Err(err))
		return
	}
	metrics.Revocations.WithLabelValues(reason).Inc()
}
