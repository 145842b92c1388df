// Package app arma el grafo de dependencias a partir de la config: cache,
// revocation store, claves, repositorios, servicios y router.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/ironlog/internal/authn"
	"github.com/dropDatabas3/ironlog/internal/cache"
	"github.com/dropDatabas3/ironlog/internal/claims"
	"github.com/dropDatabas3/ironlog/internal/config"
	"github.com/dropDatabas3/ironlog/internal/http/handlers"
	"github.com/dropDatabas3/ironlog/internal/http/router"
	"github.com/dropDatabas3/ironlog/internal/identity"
	"github.com/dropDatabas3/ironlog/internal/jwt"
	"github.com/dropDatabas3/ironlog/internal/metrics"
	"github.com/dropDatabas3/ironlog/internal/observability/logger"
	"github.com/dropDatabas3/ironlog/internal/ownership"
	"github.com/dropDatabas3/ironlog/internal/rate"
	"github.com/dropDatabas3/ironlog/internal/refresh"
	"github.com/dropDatabas3/ironlog/internal/revocation"
	"github.com/dropDatabas3/ironlog/internal/store/pg"
	"github.com/dropDatabas3/ironlog/internal/util"
)

// Algoritmos aceptados en id tokens del provider.
var providerMethods = []string{"EdDSA", "RS256"}

// redisBacked lo implementa el cache redis; da acceso al cliente nativo.
type redisBacked interface {
	Redis() *redis.Client
	Prefix() string
}

type Container struct {
	Config *config.Config

	Cache      cache.Client
	DB         *sql.DB // nil sin storage.dsn
	Keys       *jwt.KeySet
	Issuer     *jwt.Issuer
	Verifier   *jwt.Verifier
	Revocation *revocation.Checker
	Sweeper    *revocation.Sweeper // nil con redis (expira solo)
	Identities *identity.Service
	Tokens     *refresh.Manager
	Authn      *authn.Authenticator
	Authorizer *ownership.Authorizer

	loginLimiter   rate.Limiter
	refreshLimiter rate.Limiter
}

// Build conecta todo. Redis caído no es fatal: se degrada a memoria con un
// warning. Sin DSN usa repositorios en memoria (sólo dev).
func Build(ctx context.Context, cfg *config.Config) (*Container, error) {
	log := logger.L().With(logger.Component("app"))
	c := &Container{Config: cfg}

	cc, err := cache.New(ctx, cache.Config{
		Driver:   strings.ToLower(cfg.Cache.Kind),
		Addr:     cfg.Cache.Redis.Addr,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
		Prefix:   cfg.Cache.Redis.Prefix,

		DefaultTTL: cfg.Cache.Memory.DefaultTTL,
	})
	if err != nil {
		log.Warn("redis unavailable, falling back to in-process cache", logger.Err(err))
		cc = cache.NewMemory(cfg.Cache.Redis.Prefix, cfg.Cache.Memory.DefaultTTL, 0)
	}
	c.Cache = cc

	policy, err := revocation.ParsePolicy(cfg.Revocation.FailurePolicy)
	if err != nil {
		return nil, err
	}
	store := revocation.NewCacheStore(cc)
	c.Revocation = revocation.NewChecker(store, policy, cfg.Revocation.Retries, cfg.Revocation.Timeout)
	if _, ok := cc.(cache.Purger); ok {
		c.Sweeper = revocation.NewSweeper(cc, cfg.Revocation.SweepInterval, cfg.Revocation.MaxAge)
	}

	if c.Keys, err = loadKeys(cfg); err != nil {
		return nil, err
	}

	var (
		repo    identity.Repository
		lookups ownership.Lookups
	)
	if dsn := strings.TrimSpace(cfg.Storage.DSN); dsn != "" {
		db, err := pg.Open(ctx, dsn, pg.PoolConfig{
			MaxOpenConns:    cfg.Storage.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Storage.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		c.DB = db
		log.Info("postgres connected", logger.String("dsn", util.MaskDSN(dsn)))
		repo = pg.NewIdentityRepo(db)
		lookups = pg.NewOwnershipLookups(db)
	} else {
		log.Warn("storage.dsn empty, using in-memory repositories (dev only)")
		repo = identity.NewMemoryRepository()
		lookups = ownership.NewMemoryLookups()
	}

	c.Identities = identity.NewService(repo, claims.Namespace(cfg.Provider.ClaimNamespace), 0)
	c.Authorizer = ownership.NewAuthorizer(lookups)

	c.Issuer = jwt.NewIssuer(cfg.JWT.Issuer, c.Keys, nil)
	c.Issuer.AccessTTL = cfg.JWT.AccessTTL
	c.Issuer.RefreshTTL = cfg.JWT.RefreshTTL
	c.Verifier = jwt.NewVerifier(c.Keys,
		jwt.WithIssuer(cfg.JWT.Issuer),
		jwt.WithRevocation(c.Revocation),
		jwt.WithCutoff(c.Identities),
	)

	var idx refresh.Index = refresh.NewMemoryIndex()
	rb, isRedis := cc.(redisBacked)
	if isRedis {
		idx = refresh.NewRedisIndex(rb.Redis(), rb.Prefix())
	}
	c.Tokens = refresh.NewManager(c.Verifier, c.Issuer, idx, c.Revocation, c.Identities)

	var providers []authn.Provider
	if cfg.Provider.JWKSURL != "" || cfg.Provider.JWKSFile != "" {
		src := jwt.NewRemoteJWKS(cfg.Provider.JWKSURL, cfg.Provider.JWKSFile, cfg.Provider.JWKSCacheTTL)
		opts := []jwt.VerifierOption{
			jwt.WithMethods(providerMethods...),
			jwt.WithRevocation(c.Revocation),
			jwt.WithCutoff(c.Identities),
		}
		if cfg.Provider.Issuer != "" {
			opts = append(opts, jwt.WithIssuer(cfg.Provider.Issuer))
		}
		if cfg.Provider.Audience != "" {
			opts = append(opts, jwt.WithAudience(cfg.Provider.Audience))
		}
		providers = append(providers, authn.Provider{
			Name:     cfg.Provider.Name,
			Issuer:   cfg.Provider.Issuer,
			Verifier: jwt.NewVerifier(src, opts...),
			Bearer:   cfg.Provider.AcceptBearer,
		})
	} else {
		log.Warn("no provider JWKS configured, login disabled")
	}
	c.Authn = authn.New(cfg.JWT.Issuer, c.Verifier, c.Identities, providers...)

	if cfg.Rate.Enabled {
		if isRedis {
			c.loginLimiter = rate.NewRedisLimiter(rb.Redis(), rb.Prefix()+":rl:login:", cfg.Rate.Login.Limit, cfg.Rate.Login.Window)
			c.refreshLimiter = rate.NewRedisLimiter(rb.Redis(), rb.Prefix()+":rl:refresh:", cfg.Rate.Refresh.Limit, cfg.Rate.Refresh.Window)
		} else {
			c.loginLimiter = rate.NewMemoryLimiter(cfg.Rate.Login.Limit, cfg.Rate.Login.Window)
			c.refreshLimiter = rate.NewMemoryLimiter(cfg.Rate.Refresh.Limit, cfg.Rate.Refresh.Window)
		}
	}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	cacheKind := "memory"
	if isRedis {
		cacheKind = "redis"
	}
	log.Info("container ready",
		logger.String("cache", cacheKind),
		logger.Bool("postgres", c.DB != nil),
		logger.String("revocation_policy", policy.String()),
		logger.Int("providers", len(providers)),
	)
	return c, nil
}

func loadKeys(cfg *config.Config) (*jwt.KeySet, error) {
	if path := strings.TrimSpace(cfg.JWT.KeyFile); path != "" {
		ks, err := jwt.LoadKeySetPEM(path, cfg.JWT.KeyID)
		if err != nil {
			return nil, fmt.Errorf("load signing key: %w", err)
		}
		return ks, nil
	}
	logger.L().Warn("jwt.key_file empty, generating ephemeral signing key (dev only)")
	return jwt.GenerateKeySet(cfg.JWT.KeyID)
}

// Handler arma el router HTTP.
func (c *Container) Handler() http.Handler {
	return router.New(router.Deps{
		Authenticator:  c.Authn,
		Login:          c.Authn,
		Tokens:         c.Tokens,
		Cutoff:         c.Identities,
		Authorizer:     c.Authorizer,
		JWKS:           c.Issuer,
		Metrics:        metrics.Handler(prometheus.DefaultGatherer),
		Checks:         c.checks(),
		CacheStats:     c.Cache,
		LoginLimiter:   c.loginLimiter,
		RefreshLimiter: c.refreshLimiter,
	})
}

func (c *Container) checks() []handlers.Check {
	checks := []handlers.Check{
		{Name: "cache", Fn: c.Cache.Ping},
		{Name: "signing_key", Fn: c.selfCheck},
	}
	if c.DB != nil {
		checks = append(checks, handlers.Check{Name: "postgres", Fn: c.DB.PingContext})
	}
	return checks
}

// selfCheck firma y verifica un access efímero con la clave activa.
func (c *Container) selfCheck(ctx context.Context) error {
	tok, err := c.Issuer.IssueAccess(ctx, "selfcheck", string(identity.RoleUser))
	if err != nil {
		return err
	}
	cl, err := jwt.NewVerifier(c.Keys, jwt.WithIssuer(c.Issuer.Iss)).Verify(ctx, tok.Raw)
	if err != nil {
		return err
	}
	if cl.Subject != "selfcheck" {
		return fmt.Errorf("selfcheck: unexpected subject %q", cl.Subject)
	}
	return nil
}

// RunBackground arranca las tareas de fondo; terminan cuando ctx se cancela.
func (c *Container) RunBackground(ctx context.Context) {
	if c.Sweeper != nil {
		go c.Sweeper.Run(ctx)
	}
}

func (c *Container) Close() error {
	var firstErr error
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			firstErr = err
		}
	}
	if c.Cache != nil {
		if err := c.Cache.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
