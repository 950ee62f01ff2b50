// Command topicctl administers the topic graph without going through the
// HTTP API: bulk import, index reload, the moderation queue and tokens.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
