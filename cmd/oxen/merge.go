package main

import (
	"fmt"
	"os"
	"time"

	"github.com/oxenhq/oxen-core/internal/repo"
)

func runMerge(r *repo.Repository, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: oxen merge <branch>")
		return 1
	}
	branch := args[0]

	author, err := resolveAuthor()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}

	outcome, err := r.Merge(branch, author, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	switch {
	case len(outcome.Conflicts) > 0:
		fmt.Printf("Automatic merge failed; fix conflicts and commit the result.\n\n")
		for _, c := range outcome.Conflicts {
			fmt.Printf("CONFLICT: %s\n", c.Path)
		}
		return 1
	case outcome.FastForward:
		fmt.Printf("Fast-forwarded to %s\n", branch)
	case !outcome.MergeCommit.IsZero():
		fmt.Printf("Merge made commit %s\n", outcome.MergeCommit.ShortString(10))
	default:
		fmt.Println("Already up to date.")
	}
	return 0
}
