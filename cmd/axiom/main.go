package main

import (
	"fmt"
	"os"

	"github.com/nicdgonzalez/axiom/internal/app"
)

func main() {
	if err := app.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if hint := app.Hint(err); hint != "" {
			fmt.Fprintf(os.Stderr, "hint: %s\n", hint)
		}
		os.Exit(app.ExitCode(err))
	}
}
