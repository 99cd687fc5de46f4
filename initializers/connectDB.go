package initializers

import (
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var DB *gorm.DB // migrate is also using this var

// UsingPostgres is false on the local sqlite fallback path, which is
// process-local with last-write-wins semantics and no cross-process push
// updates.
var UsingPostgres bool

// ConnectDB opens the primary Postgres database when DIRECT_URL is set, and
// falls back to a local sqlite file otherwise.
func ConnectDB() error {
	log.Println("Connecting to database")

	dsn := os.Getenv("DIRECT_URL")
	if dsn == "" {
		path := os.Getenv("LOCAL_DB_PATH")
		if path == "" {
			path = "normatrack.db"
		}
		log.Printf("DIRECT_URL not set, falling back to local storage at %s", path)

		var err error
		DB, err = gorm.Open(sqlite.Open(path), &gorm.Config{})
		if err != nil {
			return fmt.Errorf("failed to open local database: %w", err)
		}
		UsingPostgres = false
		log.Println("Local database connection successful")
		return nil
	}

	var err error
	// Configure Postgres driver
	pgConfig := postgres.Config{
		PreferSimpleProtocol: true, // Disable implicit prepared statement usage
		DriverName:           "postgres",
		DSN:                  dsn,
	}

	DB, err = gorm.Open(postgres.New(pgConfig), &gorm.Config{
		PrepareStmt:          false,
		DisableAutomaticPing: true,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to the database: %w", err)
	}
	UsingPostgres = true

	log.Println("Database connection successful")
	return nil
}
