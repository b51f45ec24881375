package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/cimillas/ticket-ledger/internal/app"
	"github.com/cimillas/ticket-ledger/internal/clock"
	"github.com/cimillas/ticket-ledger/internal/config"
	"github.com/cimillas/ticket-ledger/internal/domain"
	"github.com/cimillas/ticket-ledger/internal/logging"
	"github.com/cimillas/ticket-ledger/internal/storage/memory"
	"github.com/cimillas/ticket-ledger/internal/storage/postgres"
	transporthttp "github.com/cimillas/ticket-ledger/internal/transport/http"
	"github.com/cimillas/ticket-ledger/migrations"
)

const startupTimeout = 10 * time.Second

// ledgerStore is what every service needs from the storage layer.
type ledgerStore interface {
	app.HoldRepository
	app.SaleRepository
	app.InventoryRepository
	app.AdminRepository
	app.AuditRepository
	app.StatusRepository
	transporthttp.Pinger
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ledgerd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flagSet := pflag.NewFlagSet("ledgerd", pflag.ContinueOnError)
	configPath := flagSet.StringP("config", "c", "", "path to YAML config (default: $CONFIG_PATH or ./config.yaml)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	envPath := loadEnvFile()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger := logging.New(cfg.Log)
	if envPath != "" {
		logger.Info("loaded env file", slog.String("path", envPath))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	clk := clock.NewSystem()
	notifier := app.NewNotifier(logger)
	unsubscribe := notifier.AddUpdateListener(func(ev app.UpdateEvent) {
		logger.Debug("inventory updated",
			slog.String("type", string(ev.Type)),
			slog.String("event_id", ev.EventID),
			slog.String("ticket_type_id", ev.TicketTypeID),
			slog.Int("quantity", ev.Quantity),
			slog.Int64("version", ev.Version),
		)
	})
	defer unsubscribe()

	holds := app.NewHoldService(store, clk,
		app.WithHoldTTL(domain.ChannelOnline, cfg.Holds.OnlineTTL),
		app.WithHoldTTL(domain.ChannelCash, cfg.Holds.CashTTL),
		app.WithHoldTTL(domain.ChannelAdmin, cfg.Holds.AdminTTL),
		app.WithSweepBatch(cfg.Holds.SweepBatch),
		app.WithHoldNotifier(notifier),
		app.WithHoldLogger(logger),
	)
	sweeper := app.NewSweeper(holds, cfg.Sweeper.Interval, logger)

	handler := transporthttp.NewRouter(transporthttp.Services{
		Holds:     holds,
		Sales:     app.NewSaleService(store, clk, notifier, logger),
		Inventory: app.NewInventoryService(store, clk, notifier, logger),
		Audit:     app.NewAuditService(store),
		Admin:     app.NewAdminService(store, clk),
		Status:    app.NewStatusService(store, clk),
		Sweeper:   sweeper,
		Store:     store,
	}, cfg.Server.Origins(), logger)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("ledgerd listening", slog.String("addr", cfg.Server.Addr), slog.String("storage", cfg.Storage.Driver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if cfg.Sweeper.Enabled {
		g.Go(func() error {
			return sweeper.Run(gctx)
		})
	} else {
		logger.Warn("expiry sweeper disabled; expired holds stay held until released")
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("ledgerd stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ledgerStore, func(), error) {
	if cfg.Storage.Driver == config.DriverMemory {
		logger.Warn("using in-memory storage; inventory is lost on restart")
		return memory.New(), func() {}, nil
	}

	startupCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	pool, err := postgres.NewPool(startupCtx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	if err := migrations.Apply(startupCtx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("apply migrations: %w", err)
	}
	return postgres.NewRepository(pool), pool.Close, nil
}

// loadEnvFile loads the nearest .env from the working directory or its
// parents without overriding variables already set. It returns the path
// loaded, or "" when none was found.
func loadEnvFile() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for i := 0; i < 6; i++ {
		path := filepath.Join(dir, ".env")
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err != nil {
				fmt.Fprintf(os.Stderr, "ledgerd: WARN: failed to load %s: %v\n", path, err)
				return ""
			}
			return path
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}
