package main

import (
	"os"

	"skywidget/cmd/internal/app"
)

func main() {
	// app.Run logs its own failure.
	if err := app.Run(); err != nil {
		os.Exit(1)
	}
}
