// taxdesk - command-line client for the tax portal's document folders.
package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/taxdesk/taxdesk/internal/cli"
)

func main() {
	// A missing .env is normal; values already in the environment win
	_ = godotenv.Load()

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
