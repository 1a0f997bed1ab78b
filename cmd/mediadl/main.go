package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"
)

var version = "dev"

func main() {
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}
