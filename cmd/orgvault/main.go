package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	_ "golang.org/x/crypto/x509roots/fallback" // CA certs for the Salesforce token endpoints on minimal images

	"github.com/ericfisherdev/orgvault/internal/adapter/driven/bridge"
	"github.com/ericfisherdev/orgvault/internal/adapter/driven/loopback"
	"github.com/ericfisherdev/orgvault/internal/adapter/driven/memory"
	"github.com/ericfisherdev/orgvault/internal/adapter/driven/salesforce"
	sqliteadapter "github.com/ericfisherdev/orgvault/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/orgvault/internal/adapter/driven/vaultcrypto"
	httphandler "github.com/ericfisherdev/orgvault/internal/adapter/driving/http"
	"github.com/ericfisherdev/orgvault/internal/application"
	"github.com/ericfisherdev/orgvault/internal/config"
	"github.com/ericfisherdev/orgvault/internal/domain/model"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(newLogger(cfg))
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"redirect_uri", cfg.RedirectURI,
		"kdf_iterations", cfg.KDFIterations,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 5. Wire driven adapters.
	vaultStore := sqliteadapter.NewVaultRepo(db)
	configStore, err := sqliteadapter.NewOAuthConfigRepo(db, cfg.SecretKey)
	if err != nil {
		return err
	}
	if cfg.SecretKey == nil {
		slog.Warn("ORGVAULT_SECRET_KEY not set, oauth client secrets are stored unencrypted")
	}
	sessions := memory.NewSessionStore()
	codec := vaultcrypto.NewCodec(cfg.KDFIterations, 0)
	oauthClient := salesforce.NewClient(nil, slog.Default())
	authFlow := loopback.NewAuthFlow(cfg.OAuthTimeout, slog.Default())
	browserBridge := bridge.New(cfg.BridgeTimeout, slog.Default())

	// 6. Application services.
	vaultSvc := application.NewVaultService(vaultStore, configStore, sessions, codec, slog.Default())
	dispatcher := application.NewLoginDispatcher(
		browserBridge,
		selectorsFromConfig(cfg),
		cfg.SettleDelay,
		application.RetryPolicy{MaxAttempts: cfg.InjectAttempts, Delay: cfg.RetryDelay},
		slog.Default(),
	)
	orgSvc := application.NewOrgService(vaultSvc, configStore, oauthClient, authFlow, dispatcher, cfg.RedirectURI, slog.Default())

	refresher := application.NewTokenRefresher(orgSvc, vaultSvc, cfg.RefreshInterval, slog.Default())

	g, gctx := errgroup.WithContext(ctx)

	// 7. HTTP API. Background logins stop with gctx.
	apiHandler := httphandler.NewHandler(gctx, vaultSvc, orgSvc, refresher, browserBridge, httphandler.DefaultPollWait, slog.Default())
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(apiHandler, slog.Default(), cfg.AllowedOrigins),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// OAuth connect holds its request open while the user is on the
		// consent page.
		WriteTimeout: cfg.OAuthTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g.Go(func() error {
		refresher.Start(gctx)
		return nil
	})
	g.Go(func() error {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		// 8. Wait for shutdown signal or a server failure.
		<-gctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		return nil
	})

	slog.Info("orgvault started", "listen_addr", cfg.ListenAddr)

	err = g.Wait()

	// Logins still in flight write to the database; let them finish before
	// it is closed.
	apiHandler.Wait()
	if err != nil {
		return err
	}

	// Drop the master password from memory before exiting.
	vaultSvc.Lock()
	slog.Info("shutdown complete")
	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// selectorsFromConfig overrides the default login form selectors with any
// configured candidates.
func selectorsFromConfig(cfg *config.Config) model.SelectorSet {
	sel := model.DefaultSelectors()
	if len(cfg.UsernameSelectors) > 0 {
		sel.Username = cfg.UsernameSelectors
	}
	if len(cfg.PasswordSelectors) > 0 {
		sel.Password = cfg.PasswordSelectors
	}
	if len(cfg.SubmitSelectors) > 0 {
		sel.Submit = cfg.SubmitSelectors
	}
	return sel
}
