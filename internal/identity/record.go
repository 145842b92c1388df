// Package identity mantiene el registro local de cada usuario autenticado por
// el identity provider externo.
package identity

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound            = errors.New("identity: not found")
	ErrEmailTaken          = errors.New("identity: email already in use")
	ErrSubjectTaken        = errors.New("identity: subject already provisioned")
	ErrEmailNotVerified    = errors.New("identity: email not verified")
	ErrIdentityDeleted     = errors.New("identity: record deleted")
	ErrInvalidPrincipal    = errors.New("identity: principal missing subject or email")
	ErrUnsupportedProvider = errors.New("identity: unsupported provider")
)

// Role del usuario dentro de la app.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// ParseRole acepta el nombre del rol sin importar mayúsculas y con el prefijo
// "ROLE_" que emiten algunos tenants.
func ParseRole(s string) (Role, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "role_")
	switch Role(s) {
	case RoleUser, RoleModerator, RoleAdmin:
		return Role(s), true
	}
	return "", false
}

// Record es el registro local. ID y Subject son inmutables.
type Record struct {
	ID              int64
	Subject         string
	Email           string
	FirstName       string
	LastName        string
	PictureURL      string
	Role            Role
	TokensValidFrom time.Time
	Deleted         bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Changes contiene los campos a actualizar; nil = sin cambio.
type Changes struct {
	Email      *string
	FirstName  *string
	LastName   *string
	PictureURL *string
	Role       *Role
}

func (c Changes) Empty() bool {
	return c.Email == nil && c.FirstName == nil && c.LastName == nil && c.PictureURL == nil && c.Role == nil
}

// Apply copia los cambios sobre r.
func (c Changes) Apply(r *Record) {
	if c.Email != nil {
		r.Email = *c.Email
	}
	if c.FirstName != nil {
		r.FirstName = *c.FirstName
	}
	if c.LastName != nil {
		r.LastName = *c.LastName
	}
	if c.PictureURL != nil {
		r.PictureURL = *c.PictureURL
	}
	if c.Role != nil {
		r.Role = *c.Role
	}
}

// Repository persiste registros de identidad.
type Repository interface {
	// GetBySubject retorna ErrNotFound si no existe. Los borrados vuelven con Deleted=true.
	GetBySubject(ctx context.Context, subject string) (*Record, error)
	GetByID(ctx context.Context, id int64) (*Record, error)
	// Create asigna ID/CreatedAt. ErrSubjectTaken si el subject ya existe,
	// ErrEmailTaken si el email ya existe entre activos.
	Create(ctx context.Context, r *Record) error
	Update(ctx context.Context, id int64, ch Changes) error
	SetTokensValidFrom(ctx context.Context, id int64, t time.Time) error
}
