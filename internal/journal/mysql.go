package journal

import (
	"github.com/amoylab/osrf/internal/common/config"

	"gorm.io/driver/mysql"
)

// NewMySQL opens a journal on a MySQL server
func NewMySQL(cfg *config.DatabaseConfig) (*DB, error) {
	return open(mysql.Open(cfg.GetDSN()))
}
