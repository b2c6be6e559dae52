// Command commerced runs the commerce core daemon: the transaction batcher,
// the outbox processor publishing to NATS, and an embedded broker when no
// external one is configured.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"

	"github.com/plaenen/commercecore/pkg/assets"
	"github.com/plaenen/commercecore/pkg/batcher"
	"github.com/plaenen/commercecore/pkg/commands"
	"github.com/plaenen/commercecore/pkg/config"
	"github.com/plaenen/commercecore/pkg/natsx"
	"github.com/plaenen/commercecore/pkg/observability"
	"github.com/plaenen/commercecore/pkg/outbox"
	"github.com/plaenen/commercecore/pkg/outbox/natspub"
	"github.com/plaenen/commercecore/pkg/projection"
	"github.com/plaenen/commercecore/pkg/queries"
	"github.com/plaenen/commercecore/pkg/runner"
	"github.com/plaenen/commercecore/pkg/store/sqlite"
	"github.com/plaenen/commercecore/pkg/uow"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("daemon exited with error", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx := context.Background()

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	tel, err := observability.Init(ctx, observability.Config{
		ServiceName:    "commerced",
		ServiceVersion: "dev",
		Environment:    cfg.Environment,
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	defer tel.Shutdown(context.Background())

	db, err := sqlite.Open(sqlite.WithDSN(cfg.DatabaseDSN))
	if err != nil {
		return err
	}
	defer db.Close()
	if err := sqlite.Migrate(ctx, db); err != nil {
		return err
	}

	natsURL := cfg.NATSURL
	if natsURL == "" {
		srv, err := natsx.StartEmbeddedServer()
		if err != nil {
			return err
		}
		defer srv.Shutdown()
		natsURL = srv.URL()
		logger.Info("running embedded nats server", "url", natsURL)
	}
	publisher, err := natspub.Connect(natsURL)
	if err != nil {
		return err
	}
	defer publisher.Close()

	var assetStore *assets.Store
	if cfg.AssetBucketURL != "" {
		assetStore, err = assets.OpenStore(ctx, cfg.AssetBucketURL)
		if err != nil {
			return err
		}
		defer assetStore.Close()
	}

	b := batcher.New(db, batcher.WithConfig(cfg.Batcher), batcher.WithLogger(logger))
	manager := uow.NewManager(db, b)
	router := projection.Default()

	// The command services and query router form the in-process API
	// surface; embedders reach them the same way.
	app := application{
		Variants:    commands.NewVariantService(manager, router, logger, assetStore),
		Products:    commands.NewProductService(manager, router, logger),
		Collections: commands.NewCollectionService(manager, router, logger),
		Schedules:   commands.NewScheduleService(manager, router, logger),
		Queries:     queries.New(db),
	}
	logger.Info("command and query services ready",
		"queryTypes", len(app.Queries.Types()),
		"assetStorage", assetStore != nil)

	processor := outbox.New(sqlite.NewOutboxStore(db), publisher,
		outbox.WithConfig(cfg.Outbox), outbox.WithLogger(logger))

	r := runner.New(
		[]runner.Service{b, processor},
		runner.WithLogger(logger),
	)

	logger.Info("commerced starting", "db", cfg.DatabaseDSN, "nats", natsURL)
	if err := r.Run(ctx); err != nil {
		return fmt.Errorf("runner failed: %w", err)
	}
	return nil
}

// application bundles the in-process API surface.
type application struct {
	Variants    *commands.VariantService
	Products    *commands.ProductService
	Collections *commands.CollectionService
	Schedules   *commands.ScheduleService
	Queries     *queries.Router
}
