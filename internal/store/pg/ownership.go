package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dropDatabas3/ironlog/internal/ownership"
)

// OwnershipLookups resuelve la cadena de ownership. Sólo lectura.
type OwnershipLookups struct {
	db *sql.DB
}

var _ ownership.Lookups = (*OwnershipLookups)(nil)

func NewOwnershipLookups(db *sql.DB) *OwnershipLookups { return &OwnershipLookups{db: db} }

func (l *OwnershipLookups) SessionOwner(ctx context.Context, id int64) (int64, error) {
	return l.scalar(ctx, `SELECT user_id FROM workout_session WHERE id = $1`, id)
}

func (l *OwnershipLookups) ExerciseInstanceSession(ctx context.Context, id int64) (int64, error) {
	return l.scalar(ctx, `SELECT session_id FROM exercise_instance WHERE id = $1`, id)
}

func (l *OwnershipLookups) ItemSession(ctx context.Context, kind ownership.Kind, id int64) (int64, error) {
	var q string
	switch kind {
	case ownership.KindSet:
		q = `SELECT ei.session_id FROM exercise_set s
		     JOIN exercise_instance ei ON ei.id = s.exercise_instance_id
		     WHERE s.id = $1`
	case ownership.KindCardioInterval:
		q = `SELECT ei.session_id FROM cardio_interval c
		     JOIN exercise_instance ei ON ei.id = c.exercise_instance_id
		     WHERE c.id = $1`
	case ownership.KindNote:
		q = `SELECT session_id FROM session_note WHERE id = $1`
	default:
		return 0, fmt.Errorf("ownership: %s is not an item kind", kind)
	}
	return l.scalar(ctx, q, id)
}

func (l *OwnershipLookups) LibraryExerciseOwner(ctx context.Context, id int64) (int64, error) {
	var owner sql.NullInt64
	err := l.db.QueryRowContext(ctx, `SELECT created_by FROM library_exercise WHERE id = $1`, id).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ownership.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	// Ejercicios de sistema (sin creador): nadie es dueño.
	if !owner.Valid {
		return 0, ownership.ErrNotFound
	}
	return owner.Int64, nil
}

func (l *OwnershipLookups) scalar(ctx context.Context, q string, id int64) (int64, error) {
	var v int64
	err := l.db.QueryRowContext(ctx, q, id).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ownership.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return v, nil
}
