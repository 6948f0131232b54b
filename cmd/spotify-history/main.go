// Command spotify-history runs the listening-history application: an
// interactive menu by default, or a read-only JSON API with -serve.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/jmorin/go-spotify-history/internal/auth"
	"github.com/jmorin/go-spotify-history/internal/cli"
	"github.com/jmorin/go-spotify-history/internal/db"
	"github.com/jmorin/go-spotify-history/internal/web"
)

const defaultDBPath = "spotify_listening_history.db"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Missing .env is fine; the variables may come from the environment.
	_ = godotenv.Load()

	serve := flag.Bool("serve", false, "serve the JSON API instead of the interactive menu")
	flag.Parse()

	dbPath := os.Getenv("SPOTIFY_HISTORY_DB")
	if dbPath == "" {
		dbPath = defaultDBPath
	}

	database, err := db.New(dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()

	if err := database.History().EnsureSchema(context.Background()); err != nil {
		return fmt.Errorf("preparing schema: %w", err)
	}

	if *serve {
		addr := os.Getenv("SPOTIFY_HISTORY_ADDR")
		if addr == "" {
			addr = web.DefaultAddr
		}
		server := web.NewServer(web.ServerConfig{Addr: addr, Database: database})
		fmt.Printf("Serving listening history on http://%s\n", addr)
		return server.Run()
	}

	authenticator, err := auth.New()
	if err != nil {
		return fmt.Errorf("configuring authentication: %w", err)
	}

	menu := cli.New(cli.Config{
		In:          os.Stdin,
		Out:         os.Stdout,
		Database:    database,
		Credentials: authenticator,
	})
	return menu.Run(context.Background())
}
