// Command bookshelf runs the sync daemon: it keeps the local library in step
// with the remote one and serves the Telegram front and health endpoints.
package main

import (
	"fmt"
	"os"

	"bookshelf/internal/app"
)

func main() {
	daemon, err := app.New()
	if err != nil {
		fmt.Fprintln(os.Stderr, "bookshelf:", err)
		os.Exit(1)
	}
	if err := daemon.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "bookshelf:", err)
		os.Exit(1)
	}
}
