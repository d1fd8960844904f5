package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/oxenhq/oxen-core/internal/repo"
	"github.com/oxenhq/oxen-core/internal/termcolor"
)

func runBranch(r *repo.Repository, args []string, cw *termcolor.Writer) int {
	deleteFlag := false
	force := false
	var name string

	for _, a := range args {
		switch a {
		case "-d", "--delete":
			deleteFlag = true
		case "-D":
			deleteFlag = true
			force = true
		case "-f", "--force":
			force = true
		default:
			name = a
		}
	}

	if deleteFlag {
		if name == "" {
			fmt.Fprintln(os.Stderr, "usage: oxen branch -d <name>")
			return 1
		}
		if err := r.DeleteBranch(name, force); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		fmt.Printf("Deleted branch %s\n", name)
		return 0
	}

	if name != "" {
		if err := r.CreateBranch(name); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		return 0
	}

	branches, err := r.Refs.ListBranches()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}
	sort.Strings(branches)

	current, attached := r.CurrentBranch()
	for _, b := range branches {
		if attached && b == current {
			fmt.Printf("* %s\n", cw.Green(b))
		} else {
			fmt.Printf("  %s\n", b)
		}
	}
	return 0
}
