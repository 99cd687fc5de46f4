package initializers

import (
	"fmt"
	"log"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/afuentesm/NormaTrack/models"
)

// Migrate brings the schema up to date: versioned SQL migrations on the
// Postgres path, AutoMigrate on the sqlite fallback.
func Migrate() error {
	log.Println("Starting database migration...")

	if !UsingPostgres {
		err := DB.AutoMigrate(
			&models.Requirement{},
			&models.Area{},
			&models.Plant{},
			&models.StandardDef{},
			&models.User{},
		)
		if err != nil {
			return fmt.Errorf("error auto-migrating local database: %w", err)
		}
		log.Println("Local migration completed successfully!")
		return nil
	}

	dsn := os.Getenv("DIRECT_URL")
	if dsn == "" {
		return fmt.Errorf("DIRECT_URL environment variable not set")
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("error getting underlying *sql.DB: %w", err)
	}

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{
		MigrationsTable: "schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create the postgres driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://db/migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("error creating migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("error running migrations: %w", err)
	}

	log.Println("Migration completed successfully!")
	return nil
}
