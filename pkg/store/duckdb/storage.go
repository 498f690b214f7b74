package duckdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"

	"github.com/marcboeker/go-duckdb/v2"
)

const defaultThreads = 4

type Settings struct {
	DbPath  string
	Threads int
	// BootQueries run on every new connection, e.g. views over CSV files.
	BootQueries []string
}

func NewDB(settings Settings) (*sql.DB, error) {
	threads := settings.Threads
	if threads <= 0 {
		threads = defaultThreads
	}

	c, err := duckdb.NewConnector(fmt.Sprintf("%s?threads=%d", settings.DbPath, threads), func(exec driver.ExecerContext) error {
		bootQueries := append([]string{}, settings.BootQueries...)

		for _, query := range bootQueries {
			_, err := exec.ExecContext(context.Background(), query, nil)
			if err != nil {
				return fmt.Errorf("boot query failed: %w", err)
			}
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	db := sql.OpenDB(c)
	return db, nil
}
