package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"bracketd/internal/api"
	"bracketd/internal/bracket"
	"bracketd/internal/broker"
	"bracketd/internal/catalog"
	"bracketd/internal/config"
	"bracketd/internal/journal"
	"bracketd/internal/sizing"
	"bracketd/internal/util"
)

func main() {
	// Credentials usually come from a local .env in development.
	_ = godotenv.Load()

	cfgPath := "config/bracketd.yaml"
	if p := os.Getenv("BRACKETD_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	gateway := broker.NewProjectXGateway(
		cfg.Venue.BaseURL,
		cfg.Venue.Username,
		cfg.Venue.APIKey,
		cfg.Trading.RequestTimeout.Std(),
		logger,
	)
	auth := broker.NewTokenManager(gateway, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	accountID := cfg.Venue.AccountID
	if accountID == 0 {
		accountID, err = discoverAccount(ctx, gateway, auth)
		if err != nil {
			log.Fatalf("discovering trading account: %v", err)
		}
		logger.Info("discovered trading account", "accountId", accountID)
	}

	cat := catalog.New(gateway, auth, logger)
	if err := cat.Refresh(ctx); err != nil {
		// Start anyway; placements fail with unknown_symbol until the venue
		// is reachable and an operator re-runs the refresh path via restart.
		logger.Error("initial catalog refresh failed", "error", err)
	}

	var jnl *journal.Journal
	if cfg.Journal.Path != "" {
		jnl, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			log.Fatalf("opening journal: %v", err)
		}
		defer jnl.Close()
	}

	engine := sizing.NewEngine(cfg.Trading.RiskFraction, cat.Lookup)
	registry := bracket.NewRegistry()
	pacer := util.NewPacer(cfg.Trading.PacingDelay.Std())

	workflow := bracket.NewWorkflow(gateway, auth, cat, engine, registry, pacer, jnl, logger, accountID)
	reconciler := bracket.NewReconciler(gateway, auth, registry, jnl, logger, accountID, cfg.Trading.PollInterval.Std())

	srv := api.NewServer(workflow, registry, cat, jnl, logger, cfg.Trading.DefaultSymbol)
	httpServer := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: srv.Handler(),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("bracketd listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		err := reconciler.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("bracketd: %v", err)
	}
}

// discoverAccount picks the first active account when none is configured.
func discoverAccount(ctx context.Context, gw broker.Gateway, auth *broker.TokenManager) (int64, error) {
	token, err := auth.Token(ctx, false)
	if err != nil {
		return 0, err
	}
	accounts, err := gw.SearchAccounts(ctx, token)
	if err != nil {
		return 0, err
	}
	for _, a := range accounts {
		if a.Active {
			return a.ID, nil
		}
	}
	return 0, errors.New("no active account returned by venue")
}
