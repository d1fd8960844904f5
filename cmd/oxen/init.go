package main

import (
	"fmt"
	"os"

	"github.com/oxenhq/oxen-core/internal/repo"
)

func runInit(args []string) int {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}

	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			return 128
		}
	}

	if _, err := repo.Init(dir, repo.Config{}); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}

	fmt.Printf("Initialized empty oxen repository in %s/.oxen\n", dir)
	return 0
}
