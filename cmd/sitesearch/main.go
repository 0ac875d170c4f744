// Command sitesearch crawls the configured sites, maintains the lemma index
// and serves search.
package main

import (
	"os"

	"github.com/deidaraiorek/sitesearch/cmd/sitesearch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
