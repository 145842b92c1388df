package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/ironlog/internal/identity"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"app_env"`
	} `yaml:"app"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Server struct {
		Addr            string        `yaml:"addr"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Storage struct {
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxOpenConns    int           `yaml:"max_open_conns"`
			MaxIdleConns    int           `yaml:"max_idle_conns"`
			ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL time.Duration `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	JWT struct {
		Issuer     string        `yaml:"issuer"`
		KeyFile    string        `yaml:"key_file"` // PEM PKCS#8 Ed25519; vacío => clave efímera (solo dev)
		KeyID      string        `yaml:"key_id"`
		AccessTTL  time.Duration `yaml:"access_ttl"`
		RefreshTTL time.Duration `yaml:"refresh_ttl"`
	} `yaml:"jwt"`

	Revocation struct {
		// fail_open (default) | fail_closed. Ver DESIGN.md.
		FailurePolicy string        `yaml:"failure_policy"`
		Retries       int           `yaml:"retries"`
		Timeout       time.Duration `yaml:"timeout"`
		SweepInterval time.Duration `yaml:"sweep_interval"`
		MaxAge        time.Duration `yaml:"max_age"`
	} `yaml:"revocation"`

	// Provider es el identity provider externo (Auth0, Google, ...).
	Provider struct {
		Name           string        `yaml:"name"` // oidc | google | github | microsoft
		Issuer         string        `yaml:"issuer"`
		Audience       string        `yaml:"audience"`
		JWKSURL        string        `yaml:"jwks_url"`
		JWKSFile       string        `yaml:"jwks_file"`
		JWKSCacheTTL   time.Duration `yaml:"jwks_cache_ttl"`
		ClaimNamespace string        `yaml:"claim_namespace"`
		// AcceptBearer permite usar el token del provider directamente como bearer.
		AcceptBearer bool `yaml:"accept_bearer"`
	} `yaml:"provider"`

	Rate struct {
		Enabled bool `yaml:"enabled"`
		Login   struct {
			Limit  int           `yaml:"limit"`
			Window time.Duration `yaml:"window"`
		} `yaml:"login"`
		Refresh struct {
			Limit  int           `yaml:"limit"`
			Window time.Duration `yaml:"window"`
		} `yaml:"refresh"`
	} `yaml:"rate"`
}

// Load lee el YAML (si path no está vacío), aplica defaults, overrides por env y valida.
func Load(path string) (*Config, error) {
	var c Config
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	c.applyEnvOverrides()
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}
	if c.Storage.Postgres.MaxOpenConns == 0 {
		c.Storage.Postgres.MaxOpenConns = 25
	}
	if c.Storage.Postgres.MaxIdleConns == 0 {
		c.Storage.Postgres.MaxIdleConns = 10
	}
	if c.Storage.Postgres.ConnMaxLifetime == 0 {
		c.Storage.Postgres.ConnMaxLifetime = 15 * time.Minute
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "ironlog"
	}
	if c.Cache.Memory.DefaultTTL == 0 {
		c.Cache.Memory.DefaultTTL = 24 * time.Hour
	}
	if c.JWT.Issuer == "" {
		c.JWT.Issuer = "http://localhost:8080"
	}
	if c.JWT.KeyID == "" {
		c.JWT.KeyID = "ironlog-1"
	}
	if c.JWT.AccessTTL == 0 {
		c.JWT.AccessTTL = 15 * time.Minute
	}
	if c.JWT.RefreshTTL == 0 {
		c.JWT.RefreshTTL = 7 * 24 * time.Hour
	}
	if c.Revocation.FailurePolicy == "" {
		c.Revocation.FailurePolicy = "fail_open"
	}
	if c.Revocation.Retries == 0 {
		c.Revocation.Retries = 1
	}
	if c.Revocation.Timeout == 0 {
		c.Revocation.Timeout = 250 * time.Millisecond
	}
	if c.Revocation.SweepInterval == 0 {
		c.Revocation.SweepInterval = time.Hour
	}
	if c.Revocation.MaxAge == 0 {
		c.Revocation.MaxAge = 24 * time.Hour
	}
	if c.Provider.Name == "" {
		c.Provider.Name = "oidc"
	}
	if c.Provider.JWKSCacheTTL == 0 {
		c.Provider.JWKSCacheTTL = 10 * time.Minute
	}
	if c.Provider.ClaimNamespace == "" {
		c.Provider.ClaimNamespace = strings.TrimRight(c.JWT.Issuer, "/") + "/claims"
	}
	if c.Rate.Login.Limit == 0 {
		c.Rate.Login.Limit = 10
	}
	if c.Rate.Login.Window == 0 {
		c.Rate.Login.Window = time.Minute
	}
	if c.Rate.Refresh.Limit == 0 {
		c.Rate.Refresh.Limit = 30
	}
	if c.Rate.Refresh.Window == 0 {
		c.Rate.Refresh.Window = time.Minute
	}
}

// Validate chequea combinaciones inválidas. Se llama después de defaults.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Cache.Kind) {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("cache.kind %q inválido (memory|redis)", c.Cache.Kind))
	}
	if strings.EqualFold(c.Cache.Kind, "redis") && strings.TrimSpace(c.Cache.Redis.Addr) == "" {
		errs = append(errs, errors.New("cache.redis.addr requerido con cache.kind=redis"))
	}
	switch c.Revocation.FailurePolicy {
	case "fail_open", "fail_closed":
	default:
		errs = append(errs, fmt.Errorf("revocation.failure_policy %q inválido (fail_open|fail_closed)", c.Revocation.FailurePolicy))
	}
	if c.Revocation.Retries < 0 {
		errs = append(errs, errors.New("revocation.retries no puede ser negativo"))
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		errs = append(errs, errors.New("jwt.refresh_ttl debe ser mayor que jwt.access_ttl"))
	}
	if strings.EqualFold(c.App.Env, "prod") {
		if strings.TrimSpace(c.JWT.KeyFile) == "" {
			errs = append(errs, errors.New("jwt.key_file es obligatorio en prod"))
		}
		if strings.TrimSpace(c.Storage.DSN) == "" {
			errs = append(errs, errors.New("storage.dsn es obligatorio en prod"))
		}
	}
	if !identity.KnownProvider(c.Provider.Name) {
		errs = append(errs, fmt.Errorf("provider.name %q sin extractor de claims (oidc|auth0|google|github|microsoft)", c.Provider.Name))
	}
	if c.Provider.JWKSURL == "" && c.Provider.JWKSFile == "" && strings.EqualFold(c.App.Env, "prod") {
		errs = append(errs, errors.New("provider.jwks_url o provider.jwks_file requerido en prod"))
	}
	return errors.Join(errs...)
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}

// applyEnvOverrides pisa el YAML con variables de entorno.
func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}

	// STORAGE
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvInt("POSTGRES_MAX_OPEN_CONNS"); ok {
		c.Storage.Postgres.MaxOpenConns = v
	}
	if v, ok := getEnvInt("POSTGRES_MAX_IDLE_CONNS"); ok {
		c.Storage.Postgres.MaxIdleConns = v
	}

	// CACHE
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PREFIX"); ok {
		c.Cache.Redis.Prefix = v
	}

	// JWT
	if v, ok := getEnvStr("JWT_ISSUER"); ok {
		c.JWT.Issuer = v
	}
	if v, ok := getEnvStr("JWT_KEY_FILE"); ok {
		c.JWT.KeyFile = v
	}
	if v, ok := getEnvStr("JWT_KEY_ID"); ok {
		c.JWT.KeyID = v
	}
	if v, ok := getEnvDur("JWT_ACCESS_TTL"); ok {
		c.JWT.AccessTTL = v
	}
	if v, ok := getEnvDur("JWT_REFRESH_TTL"); ok {
		c.JWT.RefreshTTL = v
	}

	// REVOCATION
	if v, ok := getEnvStr("REVOCATION_FAILURE_POLICY"); ok {
		c.Revocation.FailurePolicy = strings.ToLower(v)
	}
	if v, ok := getEnvInt("REVOCATION_RETRIES"); ok {
		c.Revocation.Retries = v
	}
	if v, ok := getEnvDur("REVOCATION_TIMEOUT"); ok {
		c.Revocation.Timeout = v
	}
	if v, ok := getEnvDur("REVOCATION_SWEEP_INTERVAL"); ok {
		c.Revocation.SweepInterval = v
	}

	// PROVIDER
	if v, ok := getEnvStr("PROVIDER_NAME"); ok {
		c.Provider.Name = v
	}
	if v, ok := getEnvStr("PROVIDER_ISSUER"); ok {
		c.Provider.Issuer = v
	}
	if v, ok := getEnvStr("PROVIDER_AUDIENCE"); ok {
		c.Provider.Audience = v
	}
	if v, ok := getEnvStr("PROVIDER_JWKS_URL"); ok {
		c.Provider.JWKSURL = v
	}
	if v, ok := getEnvStr("PROVIDER_JWKS_FILE"); ok {
		c.Provider.JWKSFile = v
	}
	if v, ok := getEnvStr("PROVIDER_CLAIM_NAMESPACE"); ok {
		c.Provider.ClaimNamespace = v
	}
	if v, ok := getEnvBool("PROVIDER_ACCEPT_BEARER"); ok {
		c.Provider.AcceptBearer = v
	}

	// RATE
	if v, ok := getEnvBool("RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
	if v, ok := getEnvInt("RATE_LOGIN_LIMIT"); ok {
		c.Rate.Login.Limit = v
	}
	if v, ok := getEnvInt("RATE_REFRESH_LIMIT"); ok {
		c.Rate.Refresh.Limit = v
	}
}
