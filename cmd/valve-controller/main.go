// Command valve-controller drives the heating circuit pump and mixing valve.
package main

import (
	"fmt"
	"os"

	"github.com/sweeney/valve-controller/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
