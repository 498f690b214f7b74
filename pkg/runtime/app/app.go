package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/de-tools/variance-atlas/pkg/llm"
	"github.com/de-tools/variance-atlas/pkg/services/attribution"
	"github.com/de-tools/variance-atlas/pkg/services/commentary"
	"github.com/de-tools/variance-atlas/pkg/services/config"
	"github.com/de-tools/variance-atlas/pkg/services/formatter"
	"github.com/de-tools/variance-atlas/pkg/services/ingest"
	"github.com/de-tools/variance-atlas/pkg/services/period"
	"github.com/de-tools/variance-atlas/pkg/services/query"
	"github.com/de-tools/variance-atlas/pkg/services/summary"
	ingeststore "github.com/de-tools/variance-atlas/pkg/store/ingest"
	"github.com/de-tools/variance-atlas/pkg/store/ledger"
	"github.com/de-tools/variance-atlas/pkg/store/warehouse"
	"github.com/rs/zerolog"
)

// App holds the wired services for one configuration.
type App struct {
	Commentary *commentary.Orchestrator
	Ingest     *ingest.Loader

	db *sql.DB
}

// New connects to the configured warehouse and wires every service on top of
// it. A missing model key does not fail startup; the model backed operations
// report llm.ErrNotConfigured instead.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := zerolog.Ctx(ctx)

	source, db, err := warehouse.DefaultRegistry().Open(ctx, cfg.Warehouse)
	if err != nil {
		return nil, err
	}
	a := &App{db: db}

	if err := a.wire(ctx, cfg, source); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info().
		Str("driver", cfg.Warehouse.Driver).
		Int("reports", len(cfg.Reports)).
		Msg("application initialized")
	return a, nil
}

func (a *App) wire(ctx context.Context, cfg *config.Config, source warehouse.DataSource) error {
	logger := zerolog.Ctx(ctx)

	ledgerStore, err := ledger.NewStore(source)
	if err != nil {
		return fmt.Errorf("failed to create ledger store: %w", err)
	}
	resolver := period.NewResolver(source)
	engine := attribution.NewEngine(resolver, ledgerStore, attribution.WithWorkers(cfg.Attribution.Workers))

	llmSvc, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		logger.Warn().Err(err).Msg("language model unavailable, commentary and questions are disabled")
		llmSvc = llm.Disabled(err)
	}
	writer := formatter.New(llmSvc)

	loop, err := query.NewLoop(llmSvc, source, writer,
		query.WithMaxRetries(cfg.Query.MaxRetries),
		query.WithSchema(schemaFunc(cfg, source)),
	)
	if err != nil {
		return fmt.Errorf("failed to create query loop: %w", err)
	}

	a.Commentary, err = commentary.New(commentary.Deps{
		Resolver:  resolver,
		Engine:    engine,
		Summaries: summary.NewBuilder(ledgerStore),
		Writer:    writer,
		Loop:      loop,
	}, cfg.DomainReports())
	if err != nil {
		return fmt.Errorf("failed to create commentary orchestrator: %w", err)
	}

	runs, err := ingeststore.NewStore(a.db, source.Dialect())
	if err != nil {
		return fmt.Errorf("failed to create ingest run store: %w", err)
	}
	opts := []ingest.Option{
		ingest.WithChunkSize(cfg.Ingest.ChunkSize),
		ingest.WithRetry(cfg.Ingest.Attempts, cfg.Ingest.RetryDelay),
	}
	if objects, err := ingest.NewS3Client(ctx, cfg.Ingest.AWSProfile); err != nil {
		logger.Warn().Err(err).Msg("s3 sources are disabled")
	} else {
		opts = append(opts, ingest.WithObjectGetter(objects))
	}
	a.Ingest, err = ingest.NewLoader(a.db, source.Dialect(), runs, opts...)
	if err != nil {
		return fmt.Errorf("failed to create ingest loader: %w", err)
	}
	return nil
}

// schemaFunc describes the configured tables, annotated with the column
// metadata of the reports that read them.
func schemaFunc(cfg *config.Config, source warehouse.DataSource) func(ctx context.Context) (string, error) {
	var specs []query.TableSpec
	for _, table := range cfg.SchemaTables() {
		spec := query.TableSpec{Name: table, Descriptions: map[string]string{}}
		for _, r := range cfg.Reports {
			if r.Table != table {
				continue
			}
			for col, desc := range r.Metadata {
				spec.Descriptions[col] = desc
			}
		}
		specs = append(specs, spec)
	}

	return func(ctx context.Context) (string, error) {
		return query.DescribeTables(ctx, source, specs)
	}
}

func (a *App) Close() error {
	if a.db == nil {
		return nil
	}
	if err := a.db.Close(); err != nil {
		return errors.Join(fmt.Errorf("failed to close warehouse connection"), err)
	}
	return nil
}
