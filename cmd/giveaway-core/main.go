// Command giveaway-core is the composition root: it wires config, the
// storage provider, the outbox publisher, and the reclamation loop
// together, and exposes a thin net/http adapter as an example consumer of
// the core. It does not implement full HTTP routing or a CLI surface --
// that is explicitly out of scope for the core itself -- but shows a
// realistic way to drive it, matching the spirit of the teacher's cmd/bd
// composition root without duplicating its CLI.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/giveaway/core/internal/cache"
	"github.com/giveaway/core/internal/categories"
	"github.com/giveaway/core/internal/claims"
	"github.com/giveaway/core/internal/config"
	"github.com/giveaway/core/internal/httpapi"
	"github.com/giveaway/core/internal/items"
	"github.com/giveaway/core/internal/metrics"
	"github.com/giveaway/core/internal/outbox"
	"github.com/giveaway/core/internal/reclaim"
	"github.com/giveaway/core/internal/store"
	"github.com/giveaway/core/internal/store/memstore"
	"github.com/giveaway/core/internal/store/pg"
)

var (
	configPath = flag.String("config", "", "path to options.yaml")
	httpAddr   = flag.String("http-addr", ":8080", "address for the example HTTP adapter")
	noNATS     = flag.Bool("no-nats", false, "skip connecting to NATS and run without the outbox publisher")
)

func main() {
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "giveaway-core: logger init: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("load config", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// internal/store/pg is the production storage provider, used whenever
	// database_url is configured; memstore stands in otherwise (e.g. for
	// local smoke-testing this binary without a live Postgres instance).
	st, closeStore := openStore(ctx, cfg, log)
	defer closeStore() //nolint:errcheck

	rec, err := metrics.New()
	if err != nil {
		log.Warn("metrics init failed, running without OTel instruments", zap.Error(err))
		rec = nil
	}

	var queueCache *cache.QueueSummaryCache
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Warn("invalid redis_url, queue summary cache disabled", zap.Error(err))
		} else {
			queueCache = cache.New(redis.NewClient(opts), cfg.QueueSummaryCacheTTL)
		}
	}

	itemsSvc := items.New(st, cfg)
	claimsSvc := claims.New(st, cfg)
	claimsSvc.Metrics = rec
	claimsSvc.QueueCache = queueCache
	categoriesSvc := categories.New(st)

	reclaimer := reclaim.New(st, cfg, log.Named("reclaim"))
	reclaimer.Metrics = rec
	stopReclaim := make(chan struct{})
	go reclaimer.Start(ctx, stopReclaim)
	defer close(stopReclaim)

	if !*noNATS {
		startOutboxPublisher(ctx, st, cfg, log)
	}

	srv := &httpapi.Server{Items: itemsSvc, Claims: claimsSvc, Categories: categoriesSvc}
	httpSrv := &http.Server{
		Addr:              *httpAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("http adapter listening", zap.String("addr", *httpAddr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
}

// openStore opens the Postgres-backed store and runs its migrations when
// cfg.DatabaseURL is set, falling back to an in-memory store otherwise.
// The returned close func always matches whichever store was opened.
func openStore(ctx context.Context, cfg config.Options, log *zap.Logger) (store.Store, func() error) {
	if cfg.DatabaseURL == "" {
		log.Warn("database_url not set, running against an in-memory store")
		st := memstore.New()
		return st, st.Close
	}

	pgStore, err := pg.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("connect to postgres", zap.Error(err))
	}
	if err := pgStore.Migrate(ctx); err != nil {
		log.Fatal("run migrations", zap.Error(err))
	}
	return pgStore, pgStore.Close
}

// startOutboxPublisher connects to NATS, ensures the event stream exists,
// and starts draining the outbox on a background goroutine. A connection
// failure is logged but not fatal -- lifecycle writes still succeed and
// land in the outbox table; they simply wait for a publisher to drain
// them (spec section 9: the publisher is decoupled from the write path).
func startOutboxPublisher(ctx context.Context, st store.OutboxReader, cfg config.Options, log *zap.Logger) {
	nc, err := nats.Connect(cfg.NATSUrl, nats.MaxReconnects(-1), nats.ReconnectWait(time.Second))
	if err != nil {
		log.Warn("nats connect failed, outbox will not be drained", zap.Error(err))
		return
	}

	js, err := nc.JetStream()
	if err != nil {
		log.Warn("jetstream init failed, outbox will not be drained", zap.Error(err))
		nc.Close()
		return
	}
	if err := outbox.EnsureStream(js); err != nil {
		log.Warn("ensure stream failed, outbox will not be drained", zap.Error(err))
		nc.Close()
		return
	}

	pub := outbox.NewPublisher(st, js, cfg.OutboxPollInterval, log.Named("outbox"))
	go func() {
		<-ctx.Done()
		nc.Close()
	}()
	go pub.Run(ctx)
}
