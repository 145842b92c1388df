package errors

import (
	stderrors "errors"

	"github.com/dropDatabas3/ironlog/internal/authn"
	"github.com/dropDatabas3/ironlog/internal/identity"
	"github.com/dropDatabas3/ironlog/internal/jwt"
	"github.com/dropDatabas3/ironlog/internal/ownership"
	"github.com/dropDatabas3/ironlog/internal/refresh"
)

// domainMap: sentinel de dominio -> error de API. El orden importa: el primero
// que matchea gana.
var domainMap = []struct {
	sentinel error
	api      *AppError
}{
	{jwt.ErrExpired, ErrTokenExpired},
	{jwt.ErrRevoked, ErrTokenRevoked},
	{jwt.ErrInvalidSignature, ErrTokenInvalid},
	{refresh.ErrInvalidRefreshToken, ErrInvalidRefreshToken},
	{identity.ErrEmailNotVerified, ErrAccountNotVerified},
	{identity.ErrIdentityDeleted, ErrAccountDeleted},
	{identity.ErrEmailTaken, ErrEmailAlreadyInUse},
	{identity.ErrInvalidPrincipal, ErrInvalidPrincipal},
	{identity.ErrUnsupportedProvider, ErrUnknownProvider},
	{identity.ErrNotFound, ErrUserNotFound},
	{ownership.ErrNotFound, ErrNotFound},
	{authn.ErrUnknownProvider, ErrUnknownProvider},
}

// FromError convierte err en AppError. Un *AppError pasa tal cual; un sentinel
// conocido se mapea conservando la causa; el resto es 500.
func FromError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	for _, m := range domainMap {
		if stderrors.Is(err, m.sentinel) {
			return m.api.WithCause(err)
		}
	}
	return ErrInternalServerError.WithCause(err)
}
