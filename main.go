package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"offerctr/adapters/boosting"
	"offerctr/adapters/importance"
	"offerctr/adapters/postgres"
	"offerctr/adapters/redisstore"
	"offerctr/adapters/resamplers"
	"offerctr/adapters/tabular"
	"offerctr/app"
	"offerctr/domain/encoding"
	"offerctr/domain/feature"
	"offerctr/domain/table"
	"offerctr/domain/temporal"
	"offerctr/internal"
	"offerctr/internal/config"
	"offerctr/internal/dataset"
	"offerctr/internal/metrics"
	"offerctr/internal/testkit"
	"offerctr/ports"
)

// main runs one training pipeline over the configured warehouse or CSV
// directory. All knobs come from the environment (.env supported); CLI
// argument handling stays with external tooling.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Server.MetricsEnabled {
		metrics.Init()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := internal.NewDefaultLogger()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("pipeline failed: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *internal.Logger) error {
	wiring, cleanup, err := buildWiring(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	service := app.NewPipelineService(
		wiring.source,
		boosting.NewBooster(),
		resamplers.NewRegistry(),
		importance.NewCorrelationScorer(),
		wiring.rejects,
		wiring.predictions,
		wiring.runs,
		wiring.snapshots,
	)

	req, err := buildTrainRequest(cfg)
	if err != nil {
		return err
	}

	result, err := service.Train(ctx, req)
	if err != nil {
		return err
	}
	logger.Info("run %s done: %d columns, auc=%.4f, log_loss=%.4f, %d rejects",
		result.RunID, len(result.Columns), result.Metrics.AUC,
		result.Metrics.LogLoss, result.Counts.RejectedRows)
	return nil
}

// wiring bundles the ports a training run needs
type wiring struct {
	source      ports.TableSourcePort
	rejects     ports.RejectSinkPort
	predictions ports.PredictionSinkPort
	runs        ports.RunStorePort
	snapshots   ports.SnapshotStorePort
}

// buildWiring connects the configured backends. With DATABASE_URL set,
// everything runs against the warehouse; otherwise sources read CSV files
// under DATA_DIR and outputs stay in memory for the run summary log.
func buildWiring(ctx context.Context, cfg *config.Config, logger *internal.Logger) (*wiring, func(), error) {
	cleanup := func() {}
	w := &wiring{}

	if cfg.Database.URL != "" {
		db, err := sqlx.Connect("postgres", cfg.Database.URL)
		if err != nil {
			return nil, cleanup, fmt.Errorf("connecting to database: %w", err)
		}
		cleanup = func() { db.Close() }
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return nil, func() {}, err
		}
		w.source = postgres.NewTableSource(db)
		w.rejects = postgres.NewRejectSink(db)
		w.predictions = postgres.NewPredictionSink(db)
		w.runs = postgres.NewRunStore(db)
		logger.Info("using warehouse source and sinks")
	} else {
		w.source = tabular.NewCSVSource(cfg.Data.Dir, tableSchemas(cfg.Data))
		w.rejects = testkit.NewInMemoryRejectSink()
		w.predictions = testkit.NewInMemoryPredictionSink()
		w.runs = testkit.NewInMemoryRunStore()
		logger.Info("using CSV source from %s, outputs held in memory", cfg.Data.Dir)
	}

	if cfg.Redis.Addr != "" {
		client, err := redisstore.Dial(ctx, redisstore.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, cleanup, fmt.Errorf("connecting to redis: %w", err)
		}
		prev := cleanup
		cleanup = func() { client.Close(); prev() }
		w.snapshots = redisstore.NewSnapshotStore(client, "offerctr")
		logger.Info("statistic snapshots enabled via redis")
	}

	return w, cleanup, nil
}

// buildTrainRequest translates configuration into the pipeline request.
// Entity keys follow the statistic plan: per user, per offer, per user x
// offer pair, and per offer category.
func buildTrainRequest(cfg *config.Config) (app.TrainRequest, error) {
	data := cfg.Data

	smoother, err := encoding.NewSmoother(cfg.Feature.SmoothingAlpha, cfg.Feature.PriorRate)
	if err != nil {
		return app.TrainRequest{}, err
	}
	ensembleCfg, err := config.LoadEnsemble(cfg.Pipeline.EnsembleFile)
	if err != nil {
		return app.TrainRequest{}, err
	}

	keySpecs := []temporal.KeySpec{
		{Name: "user", Columns: []string{data.UserColumn}},
		{Name: "offer", Columns: []string{data.OfferColumn}},
		{Name: "user_offer", Columns: []string{data.UserColumn, data.OfferColumn}},
	}
	if data.CategoryColumn != "" {
		keySpecs = append(keySpecs,
			temporal.KeySpec{Name: "category", Columns: []string{data.CategoryColumn}})
	}

	req := app.TrainRequest{
		Interactions: ports.TableRequest{
			Table:   data.InteractionsTable,
			OrderBy: data.TimestampColumn,
		},
		Loader: dataset.Config{ChunkRows: data.ChunkRows, BudgetBytes: data.BudgetBytes},
		Assembler: feature.Config{
			RecordIDColumn:      data.RecordIDColumn,
			TimestampColumn:     data.TimestampColumn,
			LabelColumn:         data.LabelColumn,
			KeySpecs:            keySpecs,
			Engine:              temporal.Config{HalfLife: cfg.Feature.HalfLife},
			Smoother:            smoother,
			NumericColumns:      data.NumericColumns,
			CategoricalColumns:  data.CategoricalColumns,
			CategoryHashBuckets: cfg.Feature.CategoryHashBuckets,
		},
		Selector: feature.Selector{
			VarianceThreshold: cfg.Feature.VarianceThreshold,
			TopK:              cfg.Feature.TopK,
		},
		Ensemble:           ensembleCfg,
		Method:             cfg.Pipeline.Resample,
		ValidationFraction: cfg.Pipeline.ValidationFraction,
		Workers:            cfg.Pipeline.Workers,
		SnapshotName:       cfg.Pipeline.SnapshotName,
		WarmStart:          cfg.Redis.Addr != "",
	}

	if data.OffersTable != "" && len(data.OfferColumns) > 0 {
		req.Offers = &dataset.AuxTable{
			Request: ports.TableRequest{Table: data.OffersTable},
			Join: table.JoinSpec{
				Keys:       []string{data.OfferColumn},
				Duplicates: table.KeepFirst,
			},
		}
	}
	if data.TransactionsTable != "" {
		req.Transactions = &ports.TableRequest{
			Table:   data.TransactionsTable,
			OrderBy: data.TransactionTimeColumn,
		}
		req.Assembler.TransactionKey = temporal.KeySpec{
			Name:    "user_spend",
			Columns: []string{data.UserColumn},
		}
		req.Assembler.TransactionTimeColumn = data.TransactionTimeColumn
		req.Assembler.TransactionAmountColumn = data.TransactionAmountColumn
	}

	return req, nil
}

// tableSchemas declares the CSV column contracts. CSV carries no types, so
// the configured column lists decide how cells parse; a file that does not
// satisfy its declared schema fails at open, not mid-replay.
func tableSchemas(data config.DataConfig) map[string]table.Schema {
	offerSide := make(map[string]bool, len(data.OfferColumns))
	for _, name := range data.OfferColumns {
		offerSide[name] = true
	}
	kindOf := func(name string) table.Kind {
		for _, n := range data.NumericColumns {
			if n == name {
				return table.Float64
			}
		}
		return table.Category
	}

	interactions := []table.ColumnSpec{
		{Name: data.RecordIDColumn, Kind: table.String},
		{Name: data.TimestampColumn, Kind: table.Timestamp},
		{Name: data.LabelColumn, Kind: table.Bool},
		{Name: data.UserColumn, Kind: table.String},
		{Name: data.OfferColumn, Kind: table.String},
	}
	offers := []table.ColumnSpec{
		{Name: data.OfferColumn, Kind: table.String},
	}
	for _, name := range append(append([]string{}, data.NumericColumns...), data.CategoricalColumns...) {
		spec := table.ColumnSpec{Name: name, Kind: kindOf(name)}
		if offerSide[name] {
			offers = append(offers, spec)
		} else {
			interactions = append(interactions, spec)
		}
	}

	return map[string]table.Schema{
		data.InteractionsTable: table.NewSchema(interactions...),
		data.OffersTable:       table.NewSchema(offers...),
		data.TransactionsTable: table.NewSchema(
			table.ColumnSpec{Name: data.UserColumn, Kind: table.String},
			table.ColumnSpec{Name: data.TransactionTimeColumn, Kind: table.Timestamp},
			table.ColumnSpec{Name: data.TransactionAmountColumn, Kind: table.Float64},
		),
	}
}
