package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dropDatabas3/ironlog/internal/identity"
)

// IdentityRepo implementa identity.Repository sobre la tabla app_user.
type IdentityRepo struct {
	db *sql.DB
}

var _ identity.Repository = (*IdentityRepo)(nil)

func NewIdentityRepo(db *sql.DB) *IdentityRepo { return &IdentityRepo{db: db} }

const selectUser = `
	SELECT id, subject, email, first_name, last_name, picture_url, role,
	       tokens_valid_from, deleted_at, created_at, updated_at
	FROM app_user`

func (r *IdentityRepo) GetBySubject(ctx context.Context, subject string) (*identity.Record, error) {
	return r.getOne(ctx, selectUser+` WHERE subject = $1`, subject)
}

func (r *IdentityRepo) GetByID(ctx context.Context, id int64) (*identity.Record, error) {
	return r.getOne(ctx, selectUser+` WHERE id = $1`, id)
}

func (r *IdentityRepo) getOne(ctx context.Context, q string, arg any) (*identity.Record, error) {
	var (
		rec       identity.Record
		picture   sql.NullString
		role      string
		validFrom sql.NullTime
		deletedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, q, arg).Scan(
		&rec.ID, &rec.Subject, &rec.Email, &rec.FirstName, &rec.LastName, &picture, &role,
		&validFrom, &deletedAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.PictureURL = picture.String
	rec.Role = identity.Role(role)
	if validFrom.Valid {
		rec.TokensValidFrom = validFrom.Time
	}
	rec.Deleted = deletedAt.Valid
	return &rec, nil
}

func (r *IdentityRepo) Create(ctx context.Context, rec *identity.Record) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO app_user (subject, email, first_name, last_name, picture_url, role)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		RETURNING id, created_at, updated_at`,
		rec.Subject, rec.Email, rec.FirstName, rec.LastName, rec.PictureURL, string(rec.Role),
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	return mapWriteErr(err)
}

func (r *IdentityRepo) Update(ctx context.Context, id int64, ch identity.Changes) error {
	if ch.Empty() {
		return nil
	}
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if ch.Email != nil {
		add("email", *ch.Email)
	}
	if ch.FirstName != nil {
		add("first_name", *ch.FirstName)
	}
	if ch.LastName != nil {
		add("last_name", *ch.LastName)
	}
	if ch.PictureURL != nil {
		add("picture_url", *ch.PictureURL)
	}
	if ch.Role != nil {
		add("role", string(*ch.Role))
	}
	args = append(args, id)
	q := fmt.Sprintf(`UPDATE app_user SET %s, updated_at = now() WHERE id = $%d`, strings.Join(sets, ", "), len(args))

	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return mapWriteErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return identity.ErrNotFound
	}
	return nil
}

func (r *IdentityRepo) SetTokensValidFrom(ctx context.Context, id int64, t time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE app_user SET tokens_valid_from = $1, updated_at = now() WHERE id = $2`, t, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return identity.ErrNotFound
	}
	return nil
}

func mapWriteErr(err error) error {
	if err == nil {
		return nil
	}
	if constraint, ok := uniqueViolation(err); ok {
		if constraint == "app_user_subject_key" {
			return identity.ErrSubjectTaken
		}
		return identity.ErrEmailTaken
	}
	return err
}
