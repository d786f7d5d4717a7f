// Command taskd runs the personal task manager service.
package main

import (
	"os"

	"taskd/app/cli"
)

// version is set at build time using -ldflags.
var version = "dev"

func main() {
	if err := cli.NewRootCommand(version).Execute(); err != nil {
		os.Exit(1)
	}
}
