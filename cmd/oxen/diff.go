package main

import (
	"fmt"
	"os"

	"github.com/oxenhq/oxen-core/internal/hashing"
	"github.com/oxenhq/oxen-core/internal/merkle"
	"github.com/oxenhq/oxen-core/internal/repo"
	"github.com/oxenhq/oxen-core/internal/termcolor"
)

func runDiff(r *repo.Repository, args []string, cw *termcolor.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: oxen diff <path> [<rev-a>] [<rev-b>]")
		return 1
	}
	path := args[0]

	var a, b hashing.Hash
	var err error
	switch len(args) {
	case 1:
		// a: HEAD, b: zero hash (working copy).
		a, err = resolveRevision(r, "HEAD")
	case 2:
		a, err = resolveRevision(r, args[1])
	default:
		a, err = resolveRevision(r, args[1])
		if err == nil {
			b, err = resolveRevision(r, args[2])
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	result, err := r.Diff(path, a, b)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	if result.Equal {
		return 0
	}

	if result.DataType != merkle.DataTypeText {
		fmt.Printf("Binary files differ for %s\n", path)
		return 0
	}

	fmt.Printf("--- %s\n+++ %s\n", path, path)
	for _, line := range result.Lines {
		switch line.Tag {
		case '-':
			fmt.Println(cw.Red("-" + line.Text))
		case '+':
			fmt.Println(cw.Green("+" + line.Text))
		default:
			fmt.Println(" " + line.Text)
		}
	}
	return 0
}
