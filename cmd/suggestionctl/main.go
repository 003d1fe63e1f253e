// cmd/suggestionctl/main.go
// Operator CLI for the batch jobs around the suggestion engine

package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/imadgeboyega/kiekky-matchmaking/internal/cli"
)

func main() {
	// Missing .env is fine; the environment may already be set
	_ = godotenv.Load()

	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	if err := cli.RootCmd(cli.ConnectFromEnv).Execute(); err != nil {
		os.Exit(1)
	}
}
