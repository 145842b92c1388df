package logger

import (
	"time"

	"go.uber.org/zap"
)

// Field es un alias para no importar zap en los callers.
type Field = zap.Field

// ─── HTTP ───

func RequestID(v string) zap.Field { return zap.String("request_id", v) }
func Method(v string) zap.Field { return zap.String("method", v) }
func Path(v string) zap.Field { return zap.String("path", v) }
func Status(v int) zap.Field { return zap.Int("status", v) }
func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }
func ClientIP(v string) zap.Field { return zap.String("client_ip", v) }
func Bytes(v int) zap.Field { return zap.Int("bytes", v) }

// ─── Identidad / tokens ───

// Subject es el identificador externo (sub) del principal.
func Subject(v string) zap.Field { return zap.String("subject", v) }

// UserID es el id numérico local.
func UserID(v int64) zap.Field { return zap.Int64("user_id", v) }

// TokenID es el jti. Nunca loguear el token completo.
func TokenID(v string) zap.Field { return zap.String("jti", v) }

func Role(v string) zap.Field { return zap.String("role", v) }
func Provider(v string) zap.Field { return zap.String("provider", v) }

// Resource identifica un recurso protegido por ownership.
func Resource(kind string, id int64) zap.Field {
	return zap.Dict("resource", zap.String("kind", kind), zap.Int64("id", id))
}

// ─── Sistema ───

func Component(v string) zap.Field { return zap.String("component", v) }
func Op(v string) zap.Field { return zap.String("op", v) }
func Layer(v string) zap.Field { return zap.String("layer", v) }
func Err(err error) zap.Field { return zap.Error(err) }
func Count(v int) zap.Field { return zap.Int("count", v) }

func String(key, v string) zap.Field { return zap.String(key, v) }
func Int(key string, v int) zap.Field { return zap.Int(key, v) }
func Bool(key string, v bool) zap.Field { return zap.Bool(key, v) }
func Any(key string, v any) zap.Field { return zap.Any(key, v) }
