package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/dropDatabas3/ironlog/internal/audit"
	"github.com/dropDatabas3/ironlog/internal/metrics"
	"github.com/dropDatabas3/ironlog/internal/observability/logger"
	"github.com/dropDatabas3/ironlog/internal/util"
)

// farFuture es el corte de un registro borrado: ningún token es válido.
var farFuture = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

// Service provisiona y consulta registros de identidad.
type Service struct {
	repo      Repository
	namespace string
	cutoffs   *gocache.Cache
	now       func() time.Time
}

// NewService: namespace es el prefijo de las custom claims del provider
// (ver claims.Role). cutoffTTL memoiza TokensValidFrom; 0 = 30s.
func NewService(repo Repository, namespace string, cutoffTTL time.Duration) *Service {
	if cutoffTTL <= 0 {
		cutoffTTL = 30 * time.Second
	}
	return &Service{
		repo:      repo,
		namespace: namespace,
		cutoffs:   gocache.New(cutoffTTL, 2*cutoffTTL),
		now:       time.Now,
	}
}

// Provision mapea un principal verificado a su registro local: lo crea la
// primera vez y después sólo escribe los campos que cambiaron. Sin
// email_verified no lee ni escribe nada.
func (s *Service) Provision(ctx context.Context, p Principal) (*Record, error) {
	log := logger.From(ctx).With(logger.Component("identity"), logger.Provider(p.Provider))

	prof, err := ExtractProfile(p)
	if err != nil {
		metrics.Provisioning.WithLabelValues("error").Inc()
		return nil, err
	}
	if !prof.EmailVerified {
		audit.Log(ctx, audit.EmailNotVerified, map[string]any{"subject": prof.ID, "provider": p.Provider})
		metrics.Provisioning.WithLabelValues("email_not_verified").Inc()
		return nil, ErrEmailNotVerified
	}
	if prof.ID == "" || prof.Email == "" {
		metrics.Provisioning.WithLabelValues("error").Inc()
		return nil, ErrInvalidPrincipal
	}

	role, reason := roleFromClaims(p.Claims, s.namespace)
	if reason != "" {
		log.Info("role claim fallback to user", logger.Subject(prof.ID), logger.String("reason", reason))
		if reason != "role_claim_absent" {
			audit.Log(ctx, audit.RoleClaimMalformed, map[string]any{"subject": prof.ID, "reason": reason})
		}
	}
	first, last := resolveNames(prof)

	rec, err := s.repo.GetBySubject(ctx, prof.ID)
	if errors.Is(err, ErrNotFound) {
		rec = &Record{
			Subject:    prof.ID,
			Email:      prof.Email,
			FirstName:  first,
			LastName:   last,
			PictureURL: prof.PictureURL,
			Role:       role,
		}
		err = s.repo.Create(ctx, rec)
		if err == nil {
			metrics.Provisioning.WithLabelValues("created").Inc()
			log.Info("identity created", logger.Subject(rec.Subject), logger.UserID(rec.ID), logger.String("email", util.MaskEmail(rec.Email)))
			return rec, nil
		}
		if !errors.Is(err, ErrSubjectTaken) {
			metrics.Provisioning.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("create identity: %w", err)
		}
		// Primer login concurrente: otro request lo creó; seguimos como update.
		rec, err = s.repo.GetBySubject(ctx, prof.ID)
	}
	if err != nil {
		metrics.Provisioning.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("lookup identity: %w", err)
	}
	if rec.Deleted {
		metrics.Provisioning.WithLabelValues("error").Inc()
		return nil, ErrIdentityDeleted
	}

	ch := diff(rec, prof.Email, first, last, prof.PictureURL, role)
	if ch.Empty() {
		metrics.Provisioning.WithLabelValues("unchanged").Inc()
		return rec, nil
	}
	if err := s.repo.Update(ctx, rec.ID, ch); err != nil {
		metrics.Provisioning.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("update identity: %w", err)
	}
	ch.Apply(rec)
	metrics.Provisioning.WithLabelValues("updated").Inc()
	log.Debug("identity updated", logger.Subject(rec.Subject), logger.UserID(rec.ID))
	return rec, nil
}

func diff(r *Record, email, first, last, picture string, role Role) Changes {
	var ch Changes
	if email != r.Email {
		ch.Email = &email
	}
	if first != r.FirstName {
		ch.FirstName = &first
	}
	if last != r.LastName {
		ch.LastName = &last
	}
	if picture != "" && picture != r.PictureURL {
		ch.PictureURL = &picture
	}
	if role != r.Role {
		ch.Role = &role
	}
	return ch
}

func (s *Service) BySubject(ctx context.Context, subject string) (*Record, error) {
	return s.repo.GetBySubject(ctx, subject)
}

func (s *Service) ByID(ctx context.Context, id int64) (*Record, error) {
	return s.repo.GetByID(ctx, id)
}

// RoleOf implementa refresh.RoleResolver.
func (s *Service) RoleOf(ctx context.Context, subject string) (string, error) {
	rec, err := s.repo.GetBySubject(ctx, subject)
	if err != nil {
		return "", err
	}
	if rec.Deleted {
		return "", ErrIdentityDeleted
	}
	return string(rec.Role), nil
}

// InvalidateTokens corta todos los tokens del subject emitidos hasta ahora.
func (s *Service) InvalidateTokens(ctx context.Context, subject string) error {
	rec, err := s.repo.GetBySubject(ctx, subject)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	if err := s.repo.SetTokensValidFrom(ctx, rec.ID, now); err != nil {
		return fmt.Errorf("set tokens_valid_from: %w", err)
	}
	s.cutoffs.Set(subject, now, gocache.DefaultExpiration)
	return nil
}

// TokensValidFrom implementa jwt.CutoffSource. Memoizado unos segundos para no
// pegarle a la base en cada request.
func (s *Service) TokensValidFrom(ctx context.Context, subject string) (time.Time, bool) {
	if v, ok := s.cutoffs.Get(subject); ok {
		t := v.(time.Time)
		return t, !t.IsZero()
	}
	rec, err := s.repo.GetBySubject(ctx, subject)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logger.From(ctx).Warn("tokens_valid_from lookup failed", logger.Component("identity"), logger.Subject(subject), logger.Err(err))
		}
		return time.Time{}, false
	}
	t := rec.TokensValidFrom
	if rec.Deleted {
		t = farFuture
	}
	s.cutoffs.Set(subject, t, gocache.DefaultExpiration)
	return t, !t.IsZero()
}
