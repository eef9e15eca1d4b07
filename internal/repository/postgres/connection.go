package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"arbor/internal/domain/repositories"
)

// RepositoryConfig holds configuration for repository implementations
type RepositoryConfig struct {
	Pool   *pgxpool.Pool
	Tables *TableNames
	Logger *slog.Logger
}

// TableNames holds dynamically prefixed table names
type TableNames struct {
	Pages       string
	Blocks      string
	Attachments string
}

// NewTableNames creates table names with the given prefix
func NewTableNames(prefix string) *TableNames {
	return &TableNames{
		Pages:       fmt.Sprintf("%spages", prefix),
		Blocks:      fmt.Sprintf("%sblocks", prefix),
		Attachments: fmt.Sprintf("%sattachments", prefix),
	}
}

// CreateConnectionPool creates a pgx connection pool.
//
// Transaction poolers (PgBouncer-style, conventionally port 6543) do not
// support prepared statements, which pgx creates by default
// (QueryExecModeCacheStatement). When that port is detected and the user
// did not set default_query_exec_mode explicitly in the connection string,
// the pool falls back to QueryExecModeCacheDescribe: still the extended
// protocol, but caching statement descriptions instead of server-side
// prepared statements.
//
// The fmt.Sprintf-interpolated table prefixes (dev_, test_, prod_) are safe
// with prepared statements because the SQL text is fixed before it reaches
// the server; each environment simply prepares its own statements.
func CreateConnectionPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	// Configure pool size
	config.MaxConns = 25
	config.MinConns = 5

	if config.ConnConfig.Port == 6543 && config.ConnConfig.DefaultQueryExecMode == pgx.QueryExecModeCacheStatement {
		config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheDescribe
		slog.Debug("auto-configured cache_describe mode for transaction pooler compatibility", "port", 6543)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// GetExecutor returns the transaction stored in the context when present,
// otherwise the pool. Repositories call this on every query so they
// automatically participate in surrounding transactions.
func GetExecutor(ctx context.Context, pool *pgxpool.Pool) repositories.DBTX {
	if tx := repositories.GetTx(ctx); tx != nil {
		return tx
	}
	return pool
}
