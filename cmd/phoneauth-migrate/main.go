// Command phoneauth-migrate applies the identity directory schema to the
// Postgres database named by DATABASE_URL.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/MrEthical07/phoneauth/directory"
	"github.com/MrEthical07/phoneauth/internal/config"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is not set; create a .env or export DATABASE_URL")
		os.Exit(1)
	}

	if err := directory.Migrate(cfg.DatabaseURL, *direction); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
	fmt.Println("migrations applied:", *direction)
}
