package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/de-tools/variance-atlas/pkg/llm"
	"github.com/de-tools/variance-atlas/pkg/models/domain"
	"github.com/de-tools/variance-atlas/pkg/store/warehouse"
	"github.com/spf13/viper"
)

const EnvPrefix = "ATLAS"

type Config struct {
	Warehouse        warehouse.Settings `mapstructure:"warehouse"`
	DatabricksConfig string             `mapstructure:"databricks_config"`
	LLM              llm.Config         `mapstructure:"llm"`
	Query            QueryConfig        `mapstructure:"query"`
	Attribution      AttributionConfig  `mapstructure:"attribution"`
	Ingest           IngestConfig       `mapstructure:"ingest"`
	Reports          []ReportConfig     `mapstructure:"reports"`
	Server           ServerConfig       `mapstructure:"server"`
	Log              LogConfig          `mapstructure:"log"`
}

type QueryConfig struct {
	MaxRetries int `mapstructure:"max_retries"`
	// Tables described to the model. Empty means every report table.
	Tables []string `mapstructure:"tables"`
}

type AttributionConfig struct {
	Workers int `mapstructure:"workers"`
}

type IngestConfig struct {
	ChunkSize  int           `mapstructure:"chunk_size"`
	Attempts   int           `mapstructure:"attempts"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	AWSProfile string        `mapstructure:"aws_profile"`
}

type ReportConfig struct {
	Name                string            `mapstructure:"name"`
	Table               string            `mapstructure:"table"`
	PeriodColumn        string            `mapstructure:"period_column"`
	ReasonColumn        string            `mapstructure:"reason_column"`
	AmountColumn        string            `mapstructure:"amount_column"`
	ContributingColumns []string          `mapstructure:"contributing_columns"`
	TopN                int               `mapstructure:"top_n"`
	Summary             string            `mapstructure:"summary"`
	Scale               float64           `mapstructure:"scale"`
	Movers              int               `mapstructure:"movers"`
	Metadata            map[string]string `mapstructure:"metadata"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads the YAML file at path, applies ATLAS_ environment overrides and
// validates the result. An empty path looks for atlas.yaml in the working
// directory and tolerates its absence.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("atlas")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("warehouse.driver", warehouse.DriverDuckDB)
	v.SetDefault("warehouse.path", "")
	v.SetDefault("warehouse.dsn", "")
	v.SetDefault("warehouse.profile", "")
	v.SetDefault("warehouse.host", "")
	v.SetDefault("warehouse.token", "")
	v.SetDefault("warehouse.password", "")
	v.SetDefault("warehouse.max_rows", 10000)
	v.SetDefault("databricks_config", "")
	v.SetDefault("llm.provider", string(llm.ProviderAnthropic))
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.requests_per_minute", 0)
	v.SetDefault("query.max_retries", 10)
	v.SetDefault("attribution.workers", 4)
	v.SetDefault("ingest.chunk_size", 10000)
	v.SetDefault("ingest.attempts", 3)
	v.SetDefault("ingest.retry_delay", "1s")
	v.SetDefault("ingest.aws_profile", "")
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	for i := range cfg.Reports {
		cfg.Reports[i].applyDefaults()
	}

	if err := cfg.resolveProfile(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *ReportConfig) applyDefaults() {
	if r.PeriodColumn == "" {
		r.PeriodColumn = "Date"
	}
	if r.ReasonColumn == "" {
		r.ReasonColumn = "Reason_Code"
	}
	if r.AmountColumn == "" {
		r.AmountColumn = "Amount"
	}
	if r.ContributingColumns == nil {
		r.ContributingColumns = []string{"Sales", "Revenue"}
	}
	if r.TopN == 0 {
		r.TopN = 3
	}
	if r.Summary == "" {
		r.Summary = string(domain.SummaryPivot)
	}
	if r.Scale == 0 {
		r.Scale = 1
	}
	if r.Movers == 0 {
		r.Movers = 2
	}
}

// resolveProfile fills databricks host and token from the named
// .databrickscfg profile unless they are set explicitly.
func (c *Config) resolveProfile() error {
	if c.Warehouse.Driver != warehouse.DriverDatabricks || c.Warehouse.Profile == "" {
		return nil
	}

	path := c.DatabricksConfig
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to locate .databrickscfg: %w", err)
		}
		path = filepath.Join(home, ".databrickscfg")
	}

	registry, err := NewRegistry(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	profile, err := registry.GetConfig(context.Background(), c.Warehouse.Profile)
	if err != nil {
		return err
	}

	if c.Warehouse.Host == "" {
		c.Warehouse.Host = profile.Host
	}
	if c.Warehouse.Token == "" {
		c.Warehouse.Token = profile.Token
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains(warehouse.DefaultRegistry().ListDrivers(), c.Warehouse.Driver) {
		errs = append(errs, fmt.Errorf("warehouse.driver: unknown driver %q", c.Warehouse.Driver))
	}
	switch c.LLM.Provider {
	case llm.ProviderAnthropic, llm.ProviderGemini:
	default:
		errs = append(errs, fmt.Errorf("llm.provider: unknown provider %q", c.LLM.Provider))
	}
	if c.Query.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("query.max_retries must be at least 1"))
	}
	if c.Attribution.Workers < 1 {
		errs = append(errs, fmt.Errorf("attribution.workers must be at least 1"))
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		errs = append(errs, fmt.Errorf("log.format: expected json or console, got %q", c.Log.Format))
	}

	if len(c.Reports) == 0 {
		errs = append(errs, fmt.Errorf("reports: at least one report is required"))
	}
	seen := make(map[string]struct{}, len(c.Reports))
	for i, r := range c.Reports {
		prefix := fmt.Sprintf("reports[%d]", i)
		if r.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else if _, dup := seen[r.Name]; dup {
			errs = append(errs, fmt.Errorf("%s.name: duplicate report %q", prefix, r.Name))
		}
		seen[r.Name] = struct{}{}

		for field, value := range map[string]string{
			"table":         r.Table,
			"period_column": r.PeriodColumn,
			"reason_column": r.ReasonColumn,
			"amount_column": r.AmountColumn,
		} {
			if strings.TrimSpace(value) == "" {
				errs = append(errs, fmt.Errorf("%s.%s is required", prefix, field))
			}
		}
		for _, col := range r.ContributingColumns {
			if strings.TrimSpace(col) == "" {
				errs = append(errs, fmt.Errorf("%s.contributing_columns contains an empty name", prefix))
			}
		}
		if r.TopN < 1 {
			errs = append(errs, fmt.Errorf("%s.top_n must be at least 1", prefix))
		}
		if _, err := domain.ParseSummaryKind(r.Summary); err != nil {
			errs = append(errs, fmt.Errorf("%s.summary: %w", prefix, err))
		}
	}

	return errors.Join(errs...)
}

// DomainReports converts the configured reports.
func (c *Config) DomainReports() []domain.Report {
	reports := make([]domain.Report, 0, len(c.Reports))
	for _, r := range c.Reports {
		reports = append(reports, domain.Report{
			Name: r.Name,
			Table: domain.Table{
				Name:         r.Table,
				PeriodColumn: r.PeriodColumn,
				ReasonColumn: r.ReasonColumn,
				AmountColumn: r.AmountColumn,
			},
			ContributingColumns: r.ContributingColumns,
			TopN:                r.TopN,
			Summary:             domain.SummaryKind(r.Summary),
			Scale:               r.Scale,
			Movers:              r.Movers,
			Metadata:            r.Metadata,
		})
	}
	return reports
}

// SchemaTables lists the tables described to the query model.
func (c *Config) SchemaTables() []string {
	if len(c.Query.Tables) > 0 {
		return c.Query.Tables
	}
	var tables []string
	for _, r := range c.Reports {
		if !slices.Contains(tables, r.Table) {
			tables = append(tables, r.Table)
		}
	}
	return tables
}
