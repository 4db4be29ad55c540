package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/openctemio/reposcan/cmd/reposcan-admin/cmd"
)

// Version is set by build flags.
var Version = "dev"

func main() {
	cmd.SetVersion(Version)
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, cmd.ErrDenied) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
