// Package server wires configuration, storage, the session subsystem and the
// HTTP API together and runs them until the process is signalled.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/videohub/internal/dbx"
	"github.com/dmitrijs2005/videohub/internal/filex"
	"github.com/dmitrijs2005/videohub/internal/logging"
	"github.com/dmitrijs2005/videohub/internal/server/auth"
	"github.com/dmitrijs2005/videohub/internal/server/config"
	"github.com/dmitrijs2005/videohub/internal/server/guard"
	"github.com/dmitrijs2005/videohub/internal/server/httpapi"
	"github.com/dmitrijs2005/videohub/internal/server/media"
	"github.com/dmitrijs2005/videohub/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/videohub/internal/server/services"
	"github.com/dmitrijs2005/videohub/internal/server/sessions"
)

const tokenIssuer = "videohub"

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	server *httpapi.Server
}

func openStore(ctx context.Context, c *config.Config) (*sql.DB, repomanager.RepositoryManager, error) {
	if c.StoreKind == config.StoreMemory {
		return nil, repomanager.NewInMemoryRepositoryManager(), nil
	}

	db, err := dbx.Open(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrations error: %w", err)
	}
	return db, rm, nil
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.New(c.LogLevel, c.LogFormat, os.Stdout)

	hasher, err := auth.NewPasswordHasher(c.PasswordHasher, c.BcryptCost)
	if err != nil {
		return nil, err
	}

	codec, err := auth.NewCodec(auth.TokenConfig{
		AccessSecret:  []byte(c.AccessTokenSecret),
		RefreshSecret: []byte(c.RefreshTokenSecret),
		AccessTTL:     c.AccessTokenTTL,
		RefreshTTL:    c.RefreshTokenTTL,
		Issuer:        tokenIssuer,
	})
	if err != nil {
		return nil, err
	}

	uploadDir, err := filex.EnsureDir(c.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("upload dir error: %w", err)
	}

	s3cfg := media.S3Config{
		Region:        c.S3Region,
		AccessKey:     c.S3AccessKey,
		SecretKey:     c.S3SecretKey,
		Bucket:        c.S3Bucket,
		BaseEndpoint:  c.S3BaseEndpoint,
		PublicBaseURL: c.S3PublicBaseURL,
	}
	s3client, err := media.NewS3Client(ctx, s3cfg)
	if err != nil {
		return nil, fmt.Errorf("s3 init error: %w", err)
	}

	db, rm, err := openStore(ctx, c)
	if err != nil {
		return nil, err
	}

	repo := rm.Users(db)
	sm := sessions.NewManager(repo, codec, logger)
	accounts := services.NewAccountService(db, rm, hasher, sm, sessions.NewRotator(sm),
		media.NewS3Uploader(s3client, s3cfg, logger), logger)

	g := guard.New(codec, repo, logger, guard.WithRejectFunc(httpapi.Reject))
	h := httpapi.NewHandler(accounts, httpapi.Options{
		CookieSecure:   c.CookieSecure,
		AccessTTL:      c.AccessTokenTTL,
		RefreshTTL:     c.RefreshTokenTTL,
		UploadDir:      uploadDir,
		MaxUploadBytes: c.MaxUploadBytes,
		RequestTimeout: c.RequestTimeout,
	}, logger)

	return &App{
		config: c,
		logger: logger,
		db:     db,
		server: httpapi.NewServer(c.HTTPAddr, httpapi.NewRouter(h, g, logger), logger),
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run blocks until ctx is cancelled or a termination signal arrives.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "store", app.config.StoreKind)

	app.initSignalHandler(cancelFunc)

	err := app.server.Run(ctx)
	if err != nil {
		app.logger.Error(ctx, "http server failed", "error", err)
	}

	if app.db != nil {
		if cerr := app.db.Close(); cerr != nil {
			app.logger.Error(ctx, "db close failed", "error", cerr)
		}
	}

	app.logger.Info(ctx, "App stopped")
	return err
}
