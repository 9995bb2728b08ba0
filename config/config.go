// Package config loads the service configuration from defaults, an
// optional YAML file, .env files and AUTH_* environment variables.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	auth "github.com/babisque/ecommerce-auth"
	"github.com/babisque/ecommerce-auth/logging"
)

const EnvPrefix = "AUTH_"

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type HTTP struct {
	Addr        string `yaml:"addr"`
	MetricsPath string `yaml:"metrics_path"`
	RequireAuth bool   `yaml:"require_auth"`
	AdminRole   string `yaml:"admin_role"`
}

type Database struct {
	Driver        string `yaml:"driver"`
	DSN           string `yaml:"dsn"`
	Migrate       bool   `yaml:"migrate"`
	Transactional bool   `yaml:"transactional"`
	Debug         bool   `yaml:"debug"`
}

type Token struct {
	SigningKey string        `yaml:"signing_key"`
	Issuer     string        `yaml:"issuer"`
	Audience   []string      `yaml:"audience"`
	Expiration time.Duration `yaml:"expiration"`
}

type Security struct {
	BcryptCost     int                 `yaml:"bcrypt_cost"`
	RoleCacheTTL   time.Duration       `yaml:"role_cache_ttl"`
	PasswordPolicy auth.PasswordPolicy `yaml:"password_policy"`
}

type Config struct {
	HTTP     HTTP           `yaml:"http"`
	Database Database       `yaml:"database"`
	Token    Token          `yaml:"token"`
	Security Security       `yaml:"security"`
	Logging  logging.Config `yaml:"logging"`
}

var _ auth.TokenConfig = (*Config)(nil)

// Default returns the configuration used when nothing overrides it.
// The signing key has no default.
func Default() *Config {
	return &Config{
		HTTP: HTTP{
			Addr:        ":8080",
			MetricsPath: "/metrics",
			AdminRole:   "Admin",
		},
		Database: Database{
			Driver:        DriverSQLite,
			DSN:           "file:auth.db?cache=shared&_pragma=foreign_keys(1)",
			Migrate:       true,
			Transactional: true,
		},
		Token: Token{
			Issuer:     "Issuer",
			Audience:   []string{"eCommerce"},
			Expiration: 60 * time.Minute,
		},
		Security: Security{
			BcryptCost:     12,
			RoleCacheTTL:   5 * time.Minute,
			PasswordPolicy: auth.DefaultPasswordPolicy(),
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load builds a Config. path is an optional YAML file; envFiles are
// loaded with godotenv when present and never override variables that
// are already set.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to read config file").
				WithMetadata(map[string]any{"path": path})
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse config file").
				WithMetadata(map[string]any{"path": path})
		}
	}

	for _, f := range envFiles {
		if f == "" {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to load env file").
				WithMetadata(map[string]any{"path": f})
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the values the service cannot start without
func (c *Config) Validate() error {
	err := validation.Errors{
		"http": validation.ValidateStruct(&c.HTTP,
			validation.Field(&c.HTTP.Addr, validation.Required),
			validation.Field(&c.HTTP.AdminRole, validation.When(c.HTTP.RequireAuth, validation.Required)),
		),
		"database": validation.ValidateStruct(&c.Database,
			validation.Field(&c.Database.Driver, validation.Required, validation.In(DriverSQLite, DriverPostgres)),
			validation.Field(&c.Database.DSN, validation.Required),
		),
		"token": validation.ValidateStruct(&c.Token,
			validation.Field(&c.Token.SigningKey, validation.Required, validation.Length(auth.MinSigningKeyLength, 0)),
			validation.Field(&c.Token.Issuer, validation.Required),
			validation.Field(&c.Token.Audience, validation.Required, validation.Each(validation.Required)),
			validation.Field(&c.Token.Expiration, validation.Required, validation.Min(time.Second)),
		),
		"security": validation.ValidateStruct(&c.Security,
			validation.Field(&c.Security.BcryptCost, validation.Min(4), validation.Max(31)),
			validation.Field(&c.Security.RoleCacheTTL, validation.Min(time.Duration(0))),
		),
	}.Filter()

	if err != nil {
		return goerrors.FromOzzoValidation(err, "invalid configuration").
			WithTextCode(auth.TextCodeValidationFailed)
	}
	return nil
}

func (c *Config) GetSigningKey() string {
	return c.Token.SigningKey
}

func (c *Config) GetIssuer() string {
	return c.Token.Issuer
}

func (c *Config) GetAudience() []string {
	return c.Token.Audience
}

func (c *Config) GetTokenExpiration() time.Duration {
	return c.Token.Expiration
}

func (c *Config) applyEnvOverrides() error {
	var errs validation.Errors = map[string]error{}

	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs[EnvPrefix+key] = err
				return
			}
			*dst = b
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			i, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs[EnvPrefix+key] = err
				return
			}
			*dst = i
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs[EnvPrefix+key] = err
				return
			}
			*dst = d
		}
	}
	csv := func(key string, dst *[]string) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			out := []string{}
			for _, p := range strings.Split(v, ",") {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			*dst = out
		}
	}

	str("HTTP_ADDR", &c.HTTP.Addr)
	str("HTTP_METRICS_PATH", &c.HTTP.MetricsPath)
	boolean("HTTP_REQUIRE_AUTH", &c.HTTP.RequireAuth)
	str("HTTP_ADMIN_ROLE", &c.HTTP.AdminRole)

	str("DATABASE_DRIVER", &c.Database.Driver)
	str("DATABASE_DSN", &c.Database.DSN)
	boolean("DATABASE_MIGRATE", &c.Database.Migrate)
	boolean("DATABASE_TRANSACTIONAL", &c.Database.Transactional)
	boolean("DATABASE_DEBUG", &c.Database.Debug)

	str("TOKEN_SIGNING_KEY", &c.Token.SigningKey)
	str("TOKEN_ISSUER", &c.Token.Issuer)
	csv("TOKEN_AUDIENCE", &c.Token.Audience)
	duration("TOKEN_EXPIRATION", &c.Token.Expiration)

	integer("SECURITY_BCRYPT_COST", &c.Security.BcryptCost)
	duration("SECURITY_ROLE_CACHE_TTL", &c.Security.RoleCacheTTL)
	integer("SECURITY_PASSWORD_MIN_LENGTH", &c.Security.PasswordPolicy.MinLength)
	integer("SECURITY_PASSWORD_MAX_LENGTH", &c.Security.PasswordPolicy.MaxLength)

	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)
	str("LOG_OUTPUT", &c.Logging.Output)
	str("LOG_FILE_PATH", &c.Logging.FilePath)

	if err := errs.Filter(); err != nil {
		return goerrors.FromOzzoValidation(err, "invalid environment overrides").
			WithTextCode(auth.TextCodeValidationFailed)
	}
	return nil
}
