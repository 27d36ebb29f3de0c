package db

import (
	"context"
	"embed"
	"fmt"
	"net/http"

	migrate "github.com/rubenv/sql-migrate"
)

// MigrationsTableName is the name of the table sql-migrate uses to track applied migrations.
const MigrationsTableName = "sim_migrations"

// Migrate applies (or rolls back) the embedded schema migrations against dbURL.
func Migrate(dbURL string, dir migrate.MigrationDirection, count int, migrationFiles embed.FS) (int, error) {
	dbConnectionPool, err := OpenDBConnectionPool(dbURL)
	if err != nil {
		return 0, fmt.Errorf("database URL '%s': %w", truncateDSN(dbURL), err)
	}
	defer dbConnectionPool.Close()

	ms := migrate.MigrationSet{TableName: MigrationsTableName}

	m := migrate.HttpFileSystemMigrationSource{FileSystem: http.FS(migrationFiles)}
	ctx := context.Background()
	sqlDB, err := dbConnectionPool.SqlDB(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetching sql.DB: %w", err)
	}
	return ms.ExecMax(sqlDB, dbConnectionPool.DriverName(), m, dir, count)
}

// truncateDSN redacts a DSN before it's embedded in an error message.
func truncateDSN(dsn string) string {
	if len(dsn) <= 16 {
		return "***"
	}
	return dsn[:8] + "..." + dsn[len(dsn)-4:]
}
