// cmd/igor-migrate applies or rolls back pkg/storage/migrations against a
// target database, the way golang-migrate is meant to be driven from a
// small CLI rather than left as an unused go.mod entry.
package main

import (
	"log"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/voidshard/igor/pkg/storage/migrations"
)

var CLI struct {
	DatabaseURL string `long:"database-url" env:"DATABASE_URL" description:"Postgres connection string" required:"true"`
	Down        bool   `long:"down" description:"Roll back every applied migration instead of applying pending ones"`
}

func main() {
	parser := flags.NewParser(&CLI, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	var err error
	if CLI.Down {
		err = migrations.Down(CLI.DatabaseURL)
	} else {
		err = migrations.Up(CLI.DatabaseURL)
	}
	if err != nil {
		log.Fatal("[igor-migrate]", err)
	}
}
