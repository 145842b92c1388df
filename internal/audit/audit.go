package audit

import (
	"context"
	"sort"
	"time"

	"github.com/dropDatabas3/ironlog/internal/observability/logger"
	"go.uber.org/zap"
)

// Event names used across the core.
const (
	TokenRevokedHit    = "token_revoked_hit"
	EmailNotVerified   = "email_not_verified"
	OwnershipDenied    = "ownership_denied"
	RefreshRejected    = "refresh_rejected"
	RefreshReplay      = "refresh_replay"
	SubjectRevokedAll  = "subject_revoked_all"
	Logout             = "logout"
	RoleClaimMalformed = "role_claim_malformed"
)

// Log writes a structured audit event through the request logger.
// Fields must carry identifiers only, never token contents.
func Log(ctx context.Context, event string, fields map[string]any) {
	zf := make([]zap.Field, 0, len(fields)+2)
	zf = append(zf,
		zap.String("audit_event", event),
		zap.String("ts", time.Now().UTC().Format(time.RFC3339Nano)),
	)
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		zf = append(zf, zap.Any(k, fields[k]))
	}
	logger.From(ctx).With(logger.Component("audit")).Info("audit", zf...)
}
