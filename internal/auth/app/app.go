package app

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/heronworks/authcore/internal/auth/oauth"
	"github.com/heronworks/authcore/internal/auth/service"
	"github.com/heronworks/authcore/internal/auth/store"
	"github.com/heronworks/authcore/internal/auth/store/drivers/sqlite"
	"github.com/heronworks/authcore/pkg/cryptox"
	"github.com/heronworks/authcore/pkg/jwtx"
	"github.com/heronworks/authcore/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application wires the store, token issuance, the auth flows, and the
// background sweeper together for the authcore process.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db store.Store

	tokenService *service.TokenService
	authService  *service.AuthService
	sweeper      *service.Sweeper
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "authcore",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	cryptox.SetPepperPath(cfg.PepperFile)

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	if err := app.initServices(); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	return app, nil
}

// Run starts the sweeper and blocks until a shutdown signal arrives.
func (app *Application) Run() error {
	ctx := slogx.WithContext(context.Background(), app.logger)
	app.sweeper.Start(ctx)

	app.logger.Info("authcore started",
		"version", BuildVersion,
		"algorithm", app.cfg.Algorithm)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	sig := <-shutdown
	app.logger.Info("shutdown signal received", "signal", sig.String())

	return app.Shutdown()
}

// Shutdown stops the sweeper and closes the database.
func (app *Application) Shutdown() error {
	app.sweeper.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("authcore stopped")
	return nil
}

// Auth exposes the flow service for embedding callers.
func (app *Application) Auth() *service.AuthService { return app.authService }

// Tokens exposes the token service for embedding callers.
func (app *Application) Tokens() *service.TokenService { return app.tokenService }

func (app *Application) initDatabase() error {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(dsn)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied")
	return nil
}

func (app *Application) initServices() error {
	signer, verifier, err := buildSigner(app.cfg)
	if err != nil {
		return err
	}

	app.tokenService = &service.TokenService{
		Signer:     signer,
		Verifier:   verifier,
		Issuer:     app.cfg.Issuer,
		Audience:   app.cfg.Audience,
		AccessTTL:  app.cfg.AccessTTL,
		RefreshTTL: app.cfg.RefreshTTL,
	}

	exchanger := oauth.NewExchanger(configuredProviders(app.cfg)...)
	app.authService = service.NewAuthService(app.db, app.tokenService, exchanger)
	app.sweeper = service.NewSweeper(app.db, app.cfg.SweepInterval)
	return nil
}

func buildSigner(cfg Config) (jwtx.Signer, *jwtx.Verifier, error) {
	switch cfg.Algorithm {
	case "HS256":
		key := []byte(cfg.HS256Secret)
		signer, err := jwtx.NewSignerHS256(key)
		if err != nil {
			return nil, nil, err
		}
		return signer, jwtx.NewVerifierHS256(key, cfg.Issuer, cfg.Audience), nil
	case "EdDSA":
		pemKey, err := os.ReadFile(cfg.SigningKeyFile)
		if err != nil {
			return nil, nil, fmt.Errorf("read signing key: %w", err)
		}
		signer, err := jwtx.NewSignerEdDSA(pemKey)
		if err != nil {
			return nil, nil, err
		}
		pub := signer.(interface{ PublicKey() ed25519.PublicKey }).PublicKey()
		return signer, jwtx.NewVerifierEdDSA(pub, cfg.Issuer, cfg.Audience), nil
	default:
		return nil, nil, fmt.Errorf("unsupported algorithm %q", cfg.Algorithm)
	}
}

// configuredProviders returns a provider for every set of credentials present
// in the environment. Missing credentials simply leave that provider out.
func configuredProviders(cfg Config) []oauth.Provider {
	var providers []oauth.Provider
	if cfg.GoogleClientID != "" && cfg.GoogleClientSecret != "" {
		providers = append(providers, oauth.NewGoogle(cfg.GoogleClientID, cfg.GoogleClientSecret))
	}
	if cfg.GitHubClientID != "" && cfg.GitHubClientSecret != "" {
		providers = append(providers, oauth.NewGitHub(cfg.GitHubClientID, cfg.GitHubClientSecret))
	}
	if cfg.MicrosoftClientID != "" && cfg.MicrosoftClientSecret != "" {
		providers = append(providers, oauth.NewMicrosoft(cfg.MicrosoftClientID, cfg.MicrosoftClientSecret))
	}
	return providers
}
