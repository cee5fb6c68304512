// Package server initializes and runs the notes server. It opens the
// database, applies migrations, selects the keystore backend, wires the
// services, and runs the HTTP API next to the expiry reaper until a
// shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/notekeeper/internal/dbx"
	"github.com/dmitrijs2005/notekeeper/internal/logging"
	"github.com/dmitrijs2005/notekeeper/internal/server/config"
	"github.com/dmitrijs2005/notekeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/notekeeper/internal/server/keyvault"
	"github.com/dmitrijs2005/notekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/notekeeper/internal/server/services"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	services httpapi.Services
	reaper   *services.ExpiryReaper
}

// NewKeyStore returns the keystore backend selected by c.KeyStoreBackend.
func NewKeyStore(ctx context.Context, c *config.Config) (keyvault.Store, error) {
	switch c.KeyStoreBackend {
	case config.KeyStoreFile:
		return keyvault.NewFileStore(c.KeyStoreDir)
	case config.KeyStoreS3:
		return keyvault.NewS3Store(ctx, keyvault.S3Settings{
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			Bucket:       c.S3Bucket,
			Region:       c.S3Region,
			BaseEndpoint: c.S3BaseEndpoint,
		})
	default:
		return nil, fmt.Errorf("unknown keystore backend %q", c.KeyStoreBackend)
	}
}

// Open connects to PostgreSQL, applies pending migrations and builds the
// key vault. The caller owns the returned *sql.DB.
func Open(ctx context.Context, c *config.Config, logger logging.Logger) (*sql.DB, *repomanager.PostgresRepositoryManager, *keyvault.Vault, error) {
	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("db ping error: %w", err)
	}

	m := repomanager.NewPostgresRepositoryManager()
	if err := m.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("migrations error: %w", err)
	}

	store, err := NewKeyStore(ctx, c)
	if err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("keystore init error: %w", err)
	}

	return db, m, keyvault.NewVault(store, c.RSAKeyBits, logger), nil
}

const notifyTimeout = 10 * time.Second

// NewNotifier posts to the configured webhook relay, or only logs when none
// is set.
func NewNotifier(c *config.Config, logger logging.Logger) services.Notifier {
	if c.NotifyWebhookURL == "" {
		return services.NewLogNotifier(logger)
	}
	return services.NewWebhookNotifier(c.NotifyWebhookURL, notifyTimeout, logger)
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	sqlDB, m, vault, err := Open(ctx, c, logger)
	if err != nil {
		return nil, err
	}
	db := dbx.NewSQLDatabase(sqlDB)

	svc := httpapi.Services{
		Sessions: services.NewSessionService(db, m, vault, c, logger),
		Users:    services.NewUserService(db, m, vault, NewNotifier(c, logger), c, logger),
		Notes:    services.NewNoteService(db, m, vault, logger),
		Accesses: services.NewAccessService(db, m, vault, logger),
		Shares:   services.NewShareService(db, m, vault, c.BaseURL, logger),
		Admin:    services.NewAdminService(db, m, vault, logger),
	}

	return &App{
		config:   c,
		logger:   logger,
		db:       sqlDB,
		services: svc,
		reaper:   services.NewExpiryReaper(db, m, c.ReaperInterval, logger),
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	secure := strings.HasPrefix(app.config.BaseURL, "https://")
	s := httpapi.NewHTTPServer(app.config.EndpointAddrHTTP, app.logger, app.services,
		app.config.RefreshTokenValidityDuration, secure)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run blocks until a signal arrives or the HTTP server fails.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.reaper.Run(ctx)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
	app.logger.Info(ctx, "Stopped")
}
