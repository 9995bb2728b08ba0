package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"

	auth "github.com/babisque/ecommerce-auth"
	"github.com/babisque/ecommerce-auth/config"
	"github.com/babisque/ecommerce-auth/database"
	"github.com/babisque/ecommerce-auth/logging"
	"github.com/babisque/ecommerce-auth/metrics"
	"github.com/babisque/ecommerce-auth/middleware/jwtware"
)

type App struct {
	config     *config.Config
	logger     *logging.Logger
	db         *bun.DB
	metrics    *metrics.Metrics
	tokens     *auth.TokenService
	identities *auth.IdentityManager
	srv        *fiber.App
}

// NewApp wires every component from cfg. Close releases what it opened.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{config: cfg}

	steps := []func(context.Context, *App) error{
		WithLogger,
		WithPersistence,
		WithServices,
		WithHTTPServer,
	}

	for _, step := range steps {
		if err := step(ctx, app); err != nil {
			_ = app.Close()
			return nil, err
		}
	}

	return app, nil
}

func (a *App) Config() *config.Config {
	return a.config
}

func (a *App) GetLogger(name string) auth.Logger {
	return a.logger.Named(name)
}

func (a *App) Server() *fiber.App {
	return a.srv
}

func (a *App) Close() error {
	var errs []error
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if a.logger != nil {
		errs = append(errs, a.logger.Close())
	}
	return errors.Join(errs...)
}

func WithLogger(_ context.Context, app *App) error {
	lgr, err := logging.New(app.config.Logging)
	if err != nil {
		return err
	}
	app.logger = lgr
	return nil
}

func WithPersistence(ctx context.Context, app *App) error {
	db, err := database.Open(ctx, database.Config{
		Driver: app.config.Database.Driver,
		DSN:    app.config.Database.DSN,
		Debug:  app.config.Database.Debug,
	}, app.GetLogger("db"))
	if err != nil {
		return err
	}
	app.db = db

	if app.config.Database.Migrate {
		if err := database.Migrate(ctx, db, app.GetLogger("migrate")); err != nil {
			return err
		}
	}

	return nil
}

func WithServices(_ context.Context, app *App) error {
	app.metrics = metrics.New(nil)

	tokens, err := auth.NewTokenService(app.config, auth.WithTokenLogger(app.GetLogger("token")))
	if err != nil {
		return err
	}
	app.tokens = tokens

	repo := auth.NewRepositoryManager(app.db)
	store := auth.NewStore(repo, auth.WithRoleCacheTTL(app.config.Security.RoleCacheTTL))

	app.identities = auth.NewIdentityManager(
		store,
		auth.NewBcryptHasher(app.config.Security.BcryptCost),
		auth.WithManagerLogger(app.GetLogger("identity")),
		auth.WithManagerMetrics(app.metrics),
		auth.WithPasswordPolicy(app.config.Security.PasswordPolicy),
		auth.WithTransactions(app.config.Database.Transactional),
	)

	return nil
}

func WithHTTPServer(_ context.Context, app *App) error {
	srv := fiber.New(fiber.Config{
		AppName:               "authorization",
		DisableStartupMessage: true,
		ErrorHandler:          auth.ErrorHandler(app.GetLogger("http")),
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
	})

	srv.Use(recover.New())
	srv.Use(app.metrics.Middleware())

	if path := app.config.HTTP.MetricsPath; path != "" {
		srv.Get(path, app.metrics.Handler())
	}

	opts := []auth.HTTPControllerOption{
		auth.WithControllerLogger(app.GetLogger("http")),
		auth.WithIdentityService(app.identities),
		auth.WithTokenIssuer(app.tokens),
	}

	if app.config.HTTP.RequireAuth {
		opts = append(opts, auth.WithGuard(BearerGuard(app.tokens, app.config.HTTP.AdminRole)))
	}

	auth.RegisterRoutes(srv, opts...)
	app.srv = srv

	return nil
}

// BearerGuard requires a valid token carrying role. Failures are rendered
// by the app error handler.
func BearerGuard(tokens *auth.TokenService, role string) fiber.Handler {
	return jwtware.New(jwtware.Config{
		TokenValidator: jwtware.TokenValidatorFunc(func(raw string) (jwtware.AuthClaims, error) {
			claims, err := tokens.Validate(raw)
			if err != nil {
				return nil, err
			}
			return claims, nil
		}),
		RequiredRole: role,
		ContextEnricher: func(ctx context.Context, claims jwtware.AuthClaims) context.Context {
			if jc, ok := claims.(*auth.JWTClaims); ok {
				return auth.WithClaimsContext(ctx, jc)
			}
			return ctx
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			switch {
			case errors.Is(err, jwtware.ErrJWTMissingOrMalformed):
				c.Set(fiber.HeaderWWWAuthenticate, bearerChallenge("", ""))
				return goerrors.Wrap(err, goerrors.CategoryAuth, "missing or malformed bearer token").
					WithCode(goerrors.CodeUnauthorized).
					WithTextCode(goerrors.TextCodeTokenMalformed)
			case auth.IsTokenExpiredError(err):
				c.Set(fiber.HeaderWWWAuthenticate, bearerChallenge("invalid_token", "the access token expired"))
			case auth.IsMalformedError(err):
				c.Set(fiber.HeaderWWWAuthenticate, bearerChallenge("invalid_token", "the access token is invalid"))
			case goerrors.IsCategory(err, goerrors.CategoryAuthz):
				c.Set(fiber.HeaderWWWAuthenticate, bearerChallenge("insufficient_scope", "role "+role+" is required"))
			}
			return err
		},
	})
}

const bearerRealm = "ecommerce-auth"

// bearerChallenge builds an RFC 6750 WWW-Authenticate value
func bearerChallenge(code, description string) string {
	challenge := fmt.Sprintf("Bearer realm=%q", bearerRealm)
	if code != "" {
		challenge += fmt.Sprintf(", error=%q", code)
	}
	if description != "" {
		challenge += fmt.Sprintf(", error_description=%q", description)
	}
	return challenge
}
