package db

import (
	"fmt"
	"os"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"punchcard-labs/timeclock/internal/logging"
	"punchcard-labs/timeclock/internal/models"
)

// Open connects to the durable store. driver is "sqlite" or "postgres";
// dsn is the sqlite file path or the postgres connection string.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch driver {
	case "sqlite", "":
		dialector = sqlite.Open(sqliteDSN(dsn))
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s store: %w", driver, err)
	}

	logging.Info("Connected to durable store", "driver", driver)
	return db, nil
}

// sqliteDSN appends the busy timeout so concurrent punch transactions queue
// on the writer lock instead of failing with SQLITE_BUSY.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "?") {
		return dsn
	}
	return dsn + "?_busy_timeout=5000"
}

// SchemaExists reports whether the backing store already exists. For sqlite
// that is the database file on disk; for postgres the schema is managed
// externally and is assumed present.
func SchemaExists(driver, dsn string) bool {
	if driver != "sqlite" && driver != "" {
		return true
	}
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	_, err := os.Stat(path)
	return err == nil
}

// Bootstrap prepares the schema. When fresh is true every table is dropped
// and recreated; otherwise the schema is migrated in place.
func Bootstrap(db *gorm.DB, fresh bool) error {
	if fresh {
		logging.Info("Backing store is new, creating schema from scratch")
		err := db.Migrator().DropTable(
			&models.Time{}, &models.Role{}, &models.Member{}, &models.Guild{},
		)
		if err != nil {
			return fmt.Errorf("failed to drop tables: %w", err)
		}
	}

	err := db.AutoMigrate(
		&models.Guild{}, &models.Role{}, &models.Member{}, &models.Time{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
