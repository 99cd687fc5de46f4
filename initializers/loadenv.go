package initializers

import (
	"fmt"

	"github.com/joho/godotenv"
)

// LoadEnv reads the optional .env file. A missing file is fine in
// production, where configuration comes from the process environment.
func LoadEnv() error {
	if err := godotenv.Load(); err != nil {
		return fmt.Errorf("no .env file found: %w", err)
	}
	return nil
}
