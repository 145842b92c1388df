package ownership

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dropDatabas3/ironlog/internal/identity"
)

const (
	userA int64 = 1
	userB int64 = 2
	admin int64 = 3
	mod   int64 = 4
)

// S=10 de A, instance 20 en S, set 30 / cardio 31 en la instance, note 32 en S.
func seeded() *MemoryLookups {
	l := NewMemoryLookups()
	l.AddSession(10, userA)
	l.AddInstance(20, 10)
	l.AddItem(KindSet, 30, 20)
	l.AddItem(KindCardioInterval, 31, 20)
	l.AddItem(KindNote, 32, 10)
	l.AddLibraryExercise(40, userA)
	return l
}

func TestSessionScenarioOwnerOtherAdmin(t *testing.T) {
	ctx := context.Background()
	a := NewAuthorizer(seeded())
	s := Ref{Kind: KindSession, ID: 10}

	assert.True(t, a.CanAccess(ctx, Caller{ID: userA, Role: identity.RoleUser}, s))
	assert.False(t, a.CanAccess(ctx, Caller{ID: userB, Role: identity.RoleUser}, s))
	assert.True(t, a.CanAccess(ctx, Caller{ID: admin, Role: identity.RoleAdmin}, s))
}

func TestNestedChainResolvesToSessionOwner(t *testing.T) {
	ctx := context.Background()
	a := NewAuthorizer(seeded())
	refs := []Ref{
		{KindExerciseInstance, 20},
		{KindSet, 30},
		{KindCardioInterval, 31},
		{KindNote, 32},
		{KindLibraryExercise, 40},
	}
	for _, r := range refs {
		assert.True(t, a.CanAccess(ctx, Caller{ID: userA, Role: identity.RoleUser}, r), r.Kind.String())
		assert.False(t, a.CanAccess(ctx, Caller{ID: userB, Role: identity.RoleUser}, r), r.Kind.String())
	}
}

func TestUnknownIDsDeny(t *testing.T) {
	ctx := context.Background()
	a := NewAuthorizer(seeded())
	caller := Caller{ID: userA, Role: identity.RoleUser}

	for _, k := range []Kind{KindSession, KindExerciseInstance, KindSet, KindCardioInterval, KindNote, KindLibraryExercise} {
		assert.False(t, a.CanAccess(ctx, caller, Ref{Kind: k, ID: 9999}), k.String())
	}
	assert.False(t, a.CanAccess(ctx, caller, Ref{Kind: Kind(99), ID: 10}))
	assert.False(t, a.CanAccess(ctx, Caller{}, Ref{Kind: KindSession, ID: 10}))
}

func TestModeratorOnlyElevatedOnLibrary(t *testing.T) {
	ctx := context.Background()
	a := NewAuthorizer(seeded())
	m := Caller{ID: mod, Role: identity.RoleModerator}

	assert.True(t, a.CanAccess(ctx, m, Ref{Kind: KindLibraryExercise, ID: 40}))
	assert.False(t, a.CanAccess(ctx, m, Ref{Kind: KindSession, ID: 10}))
	assert.False(t, a.CanAccess(ctx, m, Ref{Kind: KindSet, ID: 30}))
}

type brokenLookups struct{ *MemoryLookups }

func (brokenLookups) SessionOwner(context.Context, int64) (int64, error) {
	return 0, errors.New("connection reset")
}

func TestLookupFailureDenies(t *testing.T) {
	a := NewAuthorizer(brokenLookups{seeded()})
	assert.False(t, a.CanAccess(context.Background(), Caller{ID: userA, Role: identity.RoleUser}, Ref{Kind: KindSet, ID: 30}))
}

func TestCanAccessAnyItem(t *testing.T) {
	ctx := context.Background()
	a := NewAuthorizer(seeded())

	assert.True(t, a.CanAccessAnyItem(ctx, Caller{ID: userA, Role: identity.RoleUser}, 31))
	assert.True(t, a.CanAccessAnyItem(ctx, Caller{ID: userA, Role: identity.RoleUser}, 32))
	assert.False(t, a.CanAccessAnyItem(ctx, Caller{ID: userB, Role: identity.RoleUser}, 30))
	assert.False(t, a.CanAccessAnyItem(ctx, Caller{ID: userA, Role: identity.RoleUser}, 777))
	assert.True(t, a.CanAccessAnyItem(ctx, Caller{ID: admin, Role: identity.RoleAdmin}, 777))
}

func TestParseKind(t *testing.T) {
	k, ok := ParseKind("sessions")
	assert.True(t, ok)
	assert.Equal(t, KindSession, k)

	k, ok = ParseKind("Library_Exercise")
	assert.True(t, ok)
	assert.Equal(t, KindLibraryExercise, k)

	_, ok = ParseKind("workout")
	assert.False(t, ok)
}
