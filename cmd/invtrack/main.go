package main

import (
	"fmt"
	"os"

	"invtrack/cmd/internal/app"
)

func main() {
	if err := app.Run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "invtrack:", err)
		os.Exit(1)
	}
}
