package main

import (
	"fmt"
	"os"

	"github.com/oxenhq/oxen-core/internal/repo"
)

func runAdd(r *repo.Repository, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: oxen add <path>...")
		return 1
	}

	for _, path := range args {
		if err := r.Add(path); err != nil {
			fmt.Fprintf(os.Stderr, "error: add %q: %v\n", path, err)
			return 1
		}
	}
	return 0
}

func runRm(r *repo.Repository, args []string) int {
	recursive := false
	var paths []string
	for _, a := range args {
		if a == "-r" || a == "--recursive" {
			recursive = true
			continue
		}
		paths = append(paths, a)
	}

	if len(paths) != 1 {
		fmt.Fprintln(os.Stderr, "usage: oxen rm [-r] <path>")
		return 1
	}

	if err := r.Rm(paths[0], recursive); err != nil {
		fmt.Fprintf(os.Stderr, "error: rm %q: %v\n", paths[0], err)
		return 1
	}
	return 0
}
