// Command scanner runs the payment watchers. Each invocation runs exactly
// one watcher, selected by the first argument; deployments run one process
// per watcher or a single process with the schedule command.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/trxgate/trxgate/internal/adapters/kucoin"
	"github.com/trxgate/trxgate/internal/adapters/rates"
	"github.com/trxgate/trxgate/internal/adapters/tron"
	"github.com/trxgate/trxgate/internal/domain/entities"
	"github.com/trxgate/trxgate/internal/domain/services/ledger"
	"github.com/trxgate/trxgate/internal/domain/services/quote"
	"github.com/trxgate/trxgate/internal/domain/services/reconciliation"
	"github.com/trxgate/trxgate/internal/domain/services/settlement"
	"github.com/trxgate/trxgate/internal/domain/services/sweep"
	"github.com/trxgate/trxgate/internal/domain/services/tracking"
	"github.com/trxgate/trxgate/internal/domain/services/wallet"
	"github.com/trxgate/trxgate/internal/infrastructure/cache"
	"github.com/trxgate/trxgate/internal/infrastructure/config"
	"github.com/trxgate/trxgate/internal/infrastructure/database"
	"github.com/trxgate/trxgate/internal/infrastructure/repositories"
	"github.com/trxgate/trxgate/internal/workers/addrscan"
	"github.com/trxgate/trxgate/internal/workers/balancesweep"
	"github.com/trxgate/trxgate/internal/workers/blockscan"
	"github.com/trxgate/trxgate/internal/workers/exchconvert"
	"github.com/trxgate/trxgate/internal/workers/exchdeposit"
	"github.com/trxgate/trxgate/internal/workers/schedule"
	"github.com/trxgate/trxgate/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, cfg.Environment)
	defer log.Sync()

	if len(os.Args) < 2 {
		printUsage()
		return
	}
	command := os.Args[1]
	params := parseParams(os.Args[2:])

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize", zap.Error(err))
	}
	defer app.close()

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, log)
	}

	if err := app.dispatch(ctx, command, params); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("watcher failed", zap.Error(err), zap.String("command", command))
	}

	log.Info("watcher stopped", zap.String("command", command))
}

// app holds the wired object graph shared by the commands.
type app struct {
	cfg    *config.Config
	log    *zap.Logger
	db     *sqlx.DB
	redis  cache.RedisClient
	chain  *tron.Client
	exch   *kucoin.Client
	rates  *rates.Source

	payments    *repositories.PaymentRepository
	addresses   *repositories.AddressRepository
	users       *repositories.UserRepository
	checkpoints *repositories.CheckpointRepository

	ledger     *ledger.Service
	settler    *settlement.Service
	sweeper    *sweep.Service
	reconciler *reconciliation.Service
	quotes     *quote.Service
}

func newApp(cfg *config.Config, log *zap.Logger) (*app, error) {
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	if err := database.RunMigrations(cfg.Database.URL); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}

	// A dead cache only disables rate caching; not worth refusing to start.
	redisClient, err := cache.NewRedisClient(&cfg.Redis, log)
	if err != nil {
		log.Warn("redis unavailable, rate caching disabled", zap.Error(err))
		redisClient = nil
	}

	chain := tron.NewClient(tron.Config{
		BaseURL: cfg.Tron.APIURL,
		Timeout: time.Duration(cfg.Tron.Timeout) * time.Second,
	}, log)

	exch := kucoin.NewClient(kucoin.Config{
		APIKey:        cfg.KuCoin.APIKey,
		APISecret:     cfg.KuCoin.APISecret,
		APIPassphrase: cfg.KuCoin.APIPassphrase,
		BaseURL:       cfg.KuCoin.BaseURL,
		Timeout:       time.Duration(cfg.KuCoin.Timeout) * time.Second,
	}, log)

	rateSource := rates.NewSource(cfg.Gateways, redisClient, log)

	payments := repositories.NewPaymentRepository(db)
	addresses := repositories.NewAddressRepository(db)
	users := repositories.NewUserRepository(db)
	checkpoints := repositories.NewCheckpointRepository(db)

	ledgerSvc := ledger.NewService(payments, rateSource, log)
	settler := settlement.NewService(users, cfg.Notify, log)
	sweeper := sweep.NewService(chain, cfg.Tron.CollectionAddress, log)
	reconciler := reconciliation.NewService(payments, addresses, ledgerSvc, settler, sweeper, log)

	wallets := wallet.NewService(chain, addresses, cfg.Tron.DynamicAddresses, log)
	allocator := tracking.NewAllocator(payments, nil, log)
	quotes := quote.NewService(rateSource, payments, users, wallets, allocator, log)

	return &app{
		cfg:         cfg,
		log:         log,
		db:          db,
		redis:       redisClient,
		chain:       chain,
		exch:        exch,
		rates:       rateSource,
		payments:    payments,
		addresses:   addresses,
		users:       users,
		checkpoints: checkpoints,
		ledger:      ledgerSvc,
		settler:     settler,
		sweeper:     sweeper,
		reconciler:  reconciler,
		quotes:      quotes,
	}, nil
}

func (a *app) close() {
	if a.redis != nil {
		a.redis.Close()
	}
	a.db.Close()
}

// storeCheck adapts the pooled connection to the watchers' liveness probe.
type storeCheck struct{ db *sqlx.DB }

func (s storeCheck) Ensure(ctx context.Context) error {
	return database.EnsureConnection(ctx, s.db)
}

func (a *app) dispatch(ctx context.Context, command string, params map[string]string) error {
	store := storeCheck{db: a.db}

	switch command {
	case "block":
		verbose := params["verbose"] == "true"
		return blockscan.NewWorker(a.chain, a.checkpoints, store, a.reconciler, verbose, a.log).Run(ctx)

	case "address":
		tierName := params["time"]
		if tierName == "" {
			tierName = "20s"
		}
		tier, ok := addrscan.TierByName(tierName)
		if !ok {
			a.log.Error("unknown scan tier", zap.String("time", tierName))
			fmt.Fprint(os.Stderr, "available tiers:\n"+addrscan.Describe())
			return nil
		}
		return addrscan.NewWorker(a.chain, a.addresses, store, a.reconciler, tier, a.log).Run(ctx)

	case "balance":
		mode := params["mode"]
		if mode == "" {
			mode = balancesweep.ModeLast3Days
		}
		return balancesweep.NewWorker(a.addresses, a.sweeper, store, a.log).Run(ctx, mode)

	case "conversion":
		feed := kucoin.NewFeed(a.exch, a.log)
		return exchconvert.NewWorker(feed, a.exch, a.log).Run(ctx)

	case "deposit":
		feed := kucoin.NewFeed(a.exch, a.log)
		return exchdeposit.NewWorker(feed, a.exch, store, a.reconciler, a.log).Run(ctx)

	case "schedule":
		factory := func(tier addrscan.Tier) *addrscan.Worker {
			return addrscan.NewWorker(a.chain, a.addresses, store, a.reconciler, tier, a.log)
		}
		sweeper := balancesweep.NewWorker(a.addresses, a.sweeper, store, a.log)
		convert := exchconvert.NewWorker(nil, a.exch, a.log)

		worker := schedule.NewWorker(factory, sweeper, convert, a.log)
		if err := worker.Start(); err != nil {
			return err
		}
		<-ctx.Done()
		worker.Stop()
		return nil

	case "quote":
		return a.runQuote(ctx, params)

	default:
		a.log.Info("unknown command", zap.String("command", command))
		printUsage()
		return nil
	}
}

// runQuote opens a payment from the command line, for operators and for the
// upstream server shelling out.
func (a *app) runQuote(ctx context.Context, params map[string]string) error {
	userID, err := uuid.Parse(params["user"])
	if err != nil {
		return fmt.Errorf("quote needs user=<uuid>: %w", err)
	}
	amount, err := decimal.NewFromString(params["amount"])
	if err != nil {
		return fmt.Errorf("quote needs amount=<fiat>: %w", err)
	}

	gatewayID := entities.GatewayDefault
	if raw, ok := params["gateway"]; ok {
		if _, err := fmt.Sscanf(raw, "%d", &gatewayID); err != nil {
			return fmt.Errorf("invalid gateway %q: %w", raw, err)
		}
	}

	q, err := a.quotes.CreatePayment(ctx, userID, amount, gatewayID, params["currency"])
	if err != nil {
		return err
	}

	fmt.Printf("payment %s\n", q.Payment.ID)
	fmt.Printf("  send exactly %s %s\n", q.PayableAmount, q.Payment.CryptoCurrency)
	fmt.Printf("  to address   %s\n", q.Payment.DepositAddress)
	return nil
}

func parseParams(args []string) map[string]string {
	params := make(map[string]string, len(args))
	for _, arg := range args {
		if key, value, found := strings.Cut(arg, "="); found {
			params[key] = value
		} else {
			params[arg] = "true"
		}
	}
	return params
}

func serveMetrics(addr string, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	log.Info("serving metrics", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Warn("metrics server stopped", zap.Error(err))
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `usage: scanner <command> [key=value ...]

commands:
  block      [verbose=true]        follow the chain block by block
  address    time=<tier>           poll deposit addresses on one tier
  balance    [mode=all|last3days]  batch-sweep settled addresses
  conversion                       convert exchange TRX to USDT as deposits land
  deposit                          watch the exchange deposit feed
  schedule                         run the periodic passes on a cron
  quote      user=<uuid> amount=<fiat> [gateway=<id>] [currency=<code>]

address tiers:
%s`, addrscan.Describe())
}
