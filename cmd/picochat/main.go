// picochat - chat widget for a remote question-answering backend
// Runs the same turn controller in a terminal, a full-screen TUI or a browser
// page served over websocket.
//
// Environment variables:
//   PICOCHAT_CONFIG_JSON       - Full config JSON (alternative to config file)
//   PICOCHAT_ENDPOINT_URL      - Chat endpoint, bypassing base_url resolution
//   PICOCHAT_LOG_LEVEL         - debug, info, warn or error

package main

import (
	"fmt"
	"os"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
