package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/databricks/databricks-sql-go"
	"github.com/de-tools/variance-atlas/pkg/store/duckdb"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/snowflakedb/gosnowflake"
	_ "modernc.org/sqlite"
)

const (
	DriverDatabricks = "databricks"
	DriverSnowflake  = "snowflake"
	DriverPostgres   = "postgres"
	DriverSQLite     = "sqlite"
	DriverDuckDB     = "duckdb"

	defaultHTTPPath = "/sql/1.0/warehouses/warehouse"
)

// DefaultRegistry returns a registry with every built-in driver registered.
func DefaultRegistry() Registry {
	r := NewRegistry()
	for name, d := range map[string]Driver{
		DriverDatabricks: {Dialect: DialectDatabricks, Open: openDatabricks},
		DriverSnowflake:  {Dialect: DialectSnowflake, Open: openSnowflake},
		DriverPostgres:   {Dialect: DialectPostgres, Open: openPostgres},
		DriverSQLite:     {Dialect: DialectSQLite, Open: openSQLite},
		DriverDuckDB:     {Dialect: DialectDuckDB, Open: openDuckDB},
	} {
		// names are unique literals
		_ = r.Register(name, d)
	}
	return r
}

func DatabricksDSN(s Settings) (string, error) {
	if s.DSN != "" {
		return s.DSN, nil
	}
	if s.Host == "" || s.Token == "" {
		return "", fmt.Errorf("databricks requires host and token")
	}

	httpPath := s.HTTPPath
	if httpPath == "" {
		httpPath = defaultHTTPPath
	}

	dsn := fmt.Sprintf("token:%s@%s%s", s.Token, s.Host, httpPath)

	params := url.Values{}
	if s.Catalog != "" {
		params.Set("catalog", s.Catalog)
	}
	if s.Schema != "" {
		params.Set("schema", s.Schema)
	}
	if len(params) > 0 {
		dsn += "?" + params.Encode()
	}
	return dsn, nil
}

func openDatabricks(_ context.Context, s Settings) (*sql.DB, error) {
	dsn, err := DatabricksDSN(s)
	if err != nil {
		return nil, err
	}
	return sql.Open("databricks", dsn)
}

func SnowflakeDSN(s Settings) (string, error) {
	if s.DSN != "" {
		return s.DSN, nil
	}
	return gosnowflake.DSN(&gosnowflake.Config{
		Account:   s.Account,
		User:      s.User,
		Password:  s.Password,
		Database:  s.Database,
		Schema:    s.Schema,
		Warehouse: s.Warehouse,
		Role:      s.Role,
	})
}

func openSnowflake(_ context.Context, s Settings) (*sql.DB, error) {
	dsn, err := SnowflakeDSN(s)
	if err != nil {
		return nil, fmt.Errorf("failed to create DSN: %w", err)
	}
	return sql.Open("snowflake", dsn)
}

func openPostgres(ctx context.Context, s Settings) (*sql.DB, error) {
	if s.DSN == "" {
		return nil, fmt.Errorf("postgres requires a dsn")
	}
	db, err := sql.Open("pgx", s.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func openSQLite(_ context.Context, s Settings) (*sql.DB, error) {
	path := s.Path
	if path == "" {
		path = s.DSN
	}
	if path == "" {
		return nil, fmt.Errorf("sqlite requires a path")
	}
	return sql.Open("sqlite", path)
}

func openDuckDB(_ context.Context, s Settings) (*sql.DB, error) {
	path := s.Path
	if path == "" {
		path = s.DSN
	}
	return duckdb.NewDB(duckdb.Settings{
		DbPath:      path,
		BootQueries: s.Init,
	})
}
