package main

import (
	"context"
	"fmt"
	"os"

	"example.com/trainingsync/internal/cli"
	"example.com/trainingsync/internal/config"
)

func main() {
	cfg := config.Load()
	root := cli.NewRootCmd(cfg, cli.OpenRuntime, nil)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
