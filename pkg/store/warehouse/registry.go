package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
)

// Settings holds connection parameters for every supported driver. Each
// driver reads only the fields it needs.
type Settings struct {
	Driver  string `mapstructure:"driver"`
	DSN     string `mapstructure:"dsn"`
	Path    string `mapstructure:"path"`
	Profile string `mapstructure:"profile"`
	MaxRows int    `mapstructure:"max_rows"`
	// Init statements run on each new duckdb connection.
	Init []string `mapstructure:"init"`

	// databricks
	Host     string `mapstructure:"host"`
	Token    string `mapstructure:"token"`
	HTTPPath string `mapstructure:"http_path"`
	Catalog  string `mapstructure:"catalog"`
	Schema   string `mapstructure:"schema"`

	// snowflake
	Account   string `mapstructure:"account"`
	User      string `mapstructure:"user"`
	Password  string `mapstructure:"password"`
	Database  string `mapstructure:"database"`
	Warehouse string `mapstructure:"warehouse"`
	Role      string `mapstructure:"role"`
}

// OpenFunc opens a connection pool for the given settings
type OpenFunc func(ctx context.Context, settings Settings) (*sql.DB, error)

type Driver struct {
	Dialect Dialect
	Open    OpenFunc
}

// Registry manages the warehouse drivers available to the application
type Registry interface {
	// Register adds a new driver under name
	Register(name string, driver Driver) error
	// Open connects using settings.Driver and wraps the pool in a DataSource
	Open(ctx context.Context, settings Settings) (DataSource, *sql.DB, error)
	// ListDrivers returns the registered driver names, sorted
	ListDrivers() []string
}

type registry struct {
	mu      sync.RWMutex
	drivers map[string]Driver
}

func NewRegistry() Registry {
	return &registry{
		drivers: make(map[string]Driver),
	}
}

func (r *registry) Register(name string, driver Driver) error {
	if name == "" {
		return fmt.Errorf("driver name cannot be empty")
	}
	if driver.Open == nil {
		return fmt.Errorf("driver open function cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.drivers[name]; exists {
		return fmt.Errorf("driver %q is already registered", name)
	}

	r.drivers[name] = driver
	return nil
}

func (r *registry) Open(ctx context.Context, settings Settings) (DataSource, *sql.DB, error) {
	r.mu.RLock()
	driver, exists := r.drivers[settings.Driver]
	r.mu.RUnlock()

	if !exists {
		return nil, nil, fmt.Errorf("driver %q is not registered", settings.Driver)
	}

	db, err := driver.Open(ctx, settings)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s connection: %w", settings.Driver, err)
	}

	source, err := NewDataSource(db, driver.Dialect, WithMaxRows(settings.MaxRows))
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return source, db, nil
}

func (r *registry) ListDrivers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
