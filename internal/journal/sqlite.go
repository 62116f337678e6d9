package journal

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/amoylab/osrf/internal/common/config"

	"github.com/glebarez/sqlite"
)

// NewSQLite opens a journal in the sqlite file named by cfg.DBName
func NewSQLite(cfg *config.DatabaseConfig) (*DB, error) {
	if cfg.DBName != ":memory:" {
		dir := filepath.Dir(cfg.DBName)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	return open(sqlite.Open(cfg.DBName))
}
