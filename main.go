// goingest keeps a relational ledger, a content-addressed object store,
// and a vector search index converged over content discovered from site
// schema maps.
package main

import (
	"fmt"
	"os"

	"github.com/jonesrussell/goingest/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
