package journal

import (
	"github.com/amoylab/osrf/internal/common/config"

	"gorm.io/driver/postgres"
)

// NewPostgres opens a journal on a PostgreSQL server
func NewPostgres(cfg *config.DatabaseConfig) (*DB, error) {
	return open(postgres.Open(cfg.GetDSN()))
}
