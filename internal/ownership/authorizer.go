package ownership

import (
	"context"
	"errors"

	"github.com/dropDatabas3/ironlog/internal/audit"
	"github.com/dropDatabas3/ironlog/internal/identity"
	"github.com/dropDatabas3/ironlog/internal/metrics"
	"github.com/dropDatabas3/ironlog/internal/observability/logger"
)

// resolver lleva un id de un kind hasta el id del usuario dueño.
type resolver func(ctx context.Context, id int64) (int64, error)

// Authorizer compone un resolver por kind sobre los Lookups.
type Authorizer struct {
	resolvers map[Kind]resolver
}

func NewAuthorizer(l Lookups) *Authorizer {
	a := &Authorizer{resolvers: make(map[Kind]resolver, len(kindNames))}

	session := func(ctx context.Context, id int64) (int64, error) {
		return l.SessionOwner(ctx, id)
	}
	instance := func(ctx context.Context, id int64) (int64, error) {
		sid, err := l.ExerciseInstanceSession(ctx, id)
		if err != nil {
			return 0, err
		}
		return session(ctx, sid)
	}
	item := func(kind Kind) resolver {
		return func(ctx context.Context, id int64) (int64, error) {
			sid, err := l.ItemSession(ctx, kind, id)
			if err != nil {
				return 0, err
			}
			return session(ctx, sid)
		}
	}

	a.resolvers[KindSession] = session
	a.resolvers[KindExerciseInstance] = instance
	for _, k := range ItemKinds {
		a.resolvers[k] = item(k)
	}
	a.resolvers[KindLibraryExercise] = l.LibraryExerciseOwner
	return a
}

// CanAccess: admin siempre; moderator sobre recursos compartidos (library
// exercises); el resto sólo si la cadena termina en el caller.
func (a *Authorizer) CanAccess(ctx context.Context, caller Caller, ref Ref) bool {
	ok := a.decide(ctx, caller, ref)
	decision := "deny"
	if ok {
		decision = "allow"
	}
	metrics.AuthzDecisions.WithLabelValues(ref.Kind.String(), decision).Inc()
	if !ok {
		audit.Log(ctx, audit.OwnershipDenied, map[string]any{
			"user_id":       caller.ID,
			"resource_kind": ref.Kind.String(),
			"resource_id":   ref.ID,
		})
	}
	return ok
}

func (a *Authorizer) decide(ctx context.Context, caller Caller, ref Ref) bool {
	switch caller.Role {
	case identity.RoleAdmin:
		return true
	case identity.RoleModerator:
		if ref.Kind == KindLibraryExercise {
			return true
		}
	}
	if caller.ID == 0 {
		return false
	}
	owner, ok := a.owner(ctx, ref)
	return ok && owner == caller.ID
}

func (a *Authorizer) owner(ctx context.Context, ref Ref) (int64, bool) {
	r, ok := a.resolvers[ref.Kind]
	if !ok {
		return 0, false
	}
	owner, err := r(ctx, ref.ID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logger.From(ctx).Warn("ownership lookup failed",
				logger.Component("ownership"), logger.Resource(ref.Kind.String(), ref.ID), logger.Err(err))
		}
		return 0, false
	}
	return owner, true
}

// CanAccessAnyItem prueba el id contra cada item kind (set, cardio interval,
// note). Hace hasta un lookup por kind: si se conoce el kind, usar CanAccess.
func (a *Authorizer) CanAccessAnyItem(ctx context.Context, caller Caller, itemID int64) bool {
	if caller.Role == identity.RoleAdmin {
		return true
	}
	for _, k := range ItemKinds {
		if owner, ok := a.owner(ctx, Ref{Kind: k, ID: itemID}); ok && owner == caller.ID && caller.ID != 0 {
			metrics.AuthzDecisions.WithLabelValues(k.String(), "allow").Inc()
			return true
		}
	}
	metrics.AuthzDecisions.WithLabelValues("any_item", "deny").Inc()
	audit.Log(ctx, audit.OwnershipDenied, map[string]any{
		"user_id":       caller.ID,
		"resource_kind": "any_item",
		"resource_id":   itemID,
	})
	return false
}
