// Package main provides the pkgindex command, which maintains Arduino board
// manager package indexes.
package main

import (
	"log"
	"os"

	"github.com/spresense-arduino/pkgindex/internal/cli"
)

func main() {
	app := cli.NewApp()

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
