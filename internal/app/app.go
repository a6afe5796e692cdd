package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/riskibarqy/orbito-profiles/internal/config"
	"github.com/riskibarqy/orbito-profiles/internal/domain/profile"
	"github.com/riskibarqy/orbito-profiles/internal/infrastructure/repository/memory"
	"github.com/riskibarqy/orbito-profiles/internal/infrastructure/repository/postgres"
	"github.com/riskibarqy/orbito-profiles/internal/infrastructure/supabase"
	"github.com/riskibarqy/orbito-profiles/internal/platform/logging"
	"github.com/riskibarqy/orbito-profiles/internal/platform/resilience"
	"github.com/riskibarqy/orbito-profiles/internal/usecase"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	"github.com/uptrace/opentelemetry-go-extra/otelsqlx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
)

const dbPingTimeout = 5 * time.Second

// Provisioner bundles the profile service with the resources backing its store.
type Provisioner struct {
	Service *usecase.ProfileService
	closers []func() error
}

func (p *Provisioner) Close() error {
	var firstErr error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.closers = nil
	return firstErr
}

func NewProvisioner(ctx context.Context, cfg config.Config, logger *logging.Logger) (*Provisioner, error) {
	if logger == nil {
		logger = logging.Default()
	}

	p := &Provisioner{}
	repo, err := p.newRepository(ctx, cfg, logger)
	if err != nil {
		_ = p.Close()
		return nil, err
	}

	p.Service = usecase.NewProfileService(repo, usecase.ProfileServiceConfig{
		InsertMode:        cfg.InsertMode,
		ReadFailurePolicy: cfg.ReadFailurePolicy,
	}, logger)
	return p, nil
}

func (p *Provisioner) newRepository(ctx context.Context, cfg config.Config, logger *logging.Logger) (profile.Repository, error) {
	switch cfg.Store {
	case config.StoreREST:
		return newSupabaseRepository(cfg, logger)
	case config.StorePostgres:
		info, err := postgres.ParseDBURL(cfg.DBURL, cfg.DBDisablePreparedBinary)
		if err != nil {
			return nil, err
		}
		db, err := openDB(ctx, info)
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, db.Close)
		logger.Info("profile store ready",
			"store", cfg.Store,
			"db_url", info.Redacted,
			"db_name", info.DBName,
			"pool_mode", string(info.PoolMode),
			"project_ref", info.ProjectRef,
			"table", cfg.ProfileTable,
		)
		return postgres.NewProfileRepository(db, cfg.ProfileTable), nil
	case config.StoreMemory:
		logger.Warn("profile store is in-memory; nothing will be persisted", "store", cfg.Store)
		return memory.NewProfileRepository(), nil
	default:
		return nil, fmt.Errorf("unsupported profile store %q", cfg.Store)
	}
}

func newSupabaseRepository(cfg config.Config, logger *logging.Logger) (*supabase.Client, error) {
	info := supabase.InspectAPIKey(cfg.SupabaseKey)
	logArgs := []any{"store", cfg.Store, "table", cfg.ProfileTable, "schema", cfg.SupabaseSchema, "key_format", info.Format}
	if info.Format == supabase.KeyFormatJWT {
		logArgs = append(logArgs, "key_role", info.Role, "key_ref", info.Ref)
	}
	logger.Info("profile store ready", logArgs...)
	for _, warning := range supabase.KeyWarnings(info, cfg.SupabaseURL, time.Now()) {
		logger.Warn("supabase api key check", "warning", warning)
	}

	client, err := supabase.NewClient(supabase.ClientConfig{
		HTTPClient: &http.Client{
			Timeout:   cfg.SupabaseTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		BaseURL: cfg.SupabaseURL,
		APIKey:  cfg.SupabaseKey,
		Schema:  cfg.SupabaseSchema,
		Table:   cfg.ProfileTable,
		Timeout: cfg.SupabaseTimeout,
		Logger:  logger,
		CircuitBreaker: resilience.CircuitBreakerConfig{
			Enabled:          cfg.SupabaseCircuitEnabled,
			FailureThreshold: cfg.SupabaseCircuitFailureCount,
			OpenTimeout:      cfg.SupabaseCircuitOpenTimeout,
			HalfOpenMaxReq:   cfg.SupabaseCircuitHalfOpenMaxReq,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("build supabase client: %w", err)
	}
	return client, nil
}

func openDB(ctx context.Context, info postgres.ConnInfo) (*sqlx.DB, error) {
	db, err := otelsqlx.Open("postgres", info.DSN,
		otelsql.WithAttributes(attribute.String("db.system", "postgresql")),
		otelsql.WithDBName(info.DBName),
		otelsql.WithQueryFormatter(postgres.FormatQueryForTrace),
	)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, dbPingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}
