// Package ownership decide si un caller puede tocar un recurso anidado
// (set → exercise instance → session → usuario).
//
// Nunca devuelve error hacia afuera: un id inexistente o una falla del lookup
// se ven igual que un recurso ajeno (deny).
package ownership

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dropDatabas3/ironlog/internal/identity"
)

// ErrNotFound lo devuelven los Lookups cuando el id no existe.
var ErrNotFound = errors.New("ownership: resource not found")

// Kind es el tipo de recurso.
type Kind int

const (
	KindSession Kind = iota + 1
	KindExerciseInstance
	KindSet
	KindCardioInterval
	KindNote
	KindLibraryExercise
)

var kindNames = map[Kind]string{
	KindSession:          "session",
	KindExerciseInstance: "exercise_instance",
	KindSet:              "set",
	KindCardioInterval:   "cardio_interval",
	KindNote:             "note",
	KindLibraryExercise:  "library_exercise",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind acepta los nombres de String() (y plurales simples).
func ParseKind(s string) (Kind, bool) {
	s = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "s")
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}

// ItemKinds son los hijos directos de un exercise instance.
var ItemKinds = []Kind{KindSet, KindCardioInterval, KindNote}

// Lookups resuelve un eslabón de la cadena. Sólo lectura.
type Lookups interface {
	SessionOwner(ctx context.Context, sessionID int64) (int64, error)
	ExerciseInstanceSession(ctx context.Context, instanceID int64) (int64, error)
	// ItemSession resuelve set/cardio interval/note hasta su session.
	ItemSession(ctx context.Context, kind Kind, itemID int64) (int64, error)
	LibraryExerciseOwner(ctx context.Context, exerciseID int64) (int64, error)
}

// Caller es quien hace el request.
type Caller struct {
	ID   int64
	Role identity.Role
}

// Ref apunta a un recurso.
type Ref struct {
	Kind Kind
	ID   int64
}
