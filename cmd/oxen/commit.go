package main

import (
	"fmt"
	"os"
	"time"

	"github.com/oxenhq/oxen-core/internal/repo"
)

func runCommit(r *repo.Repository, args []string) int {
	var message string
	for i := 0; i < len(args); i++ {
		if args[i] == "-m" && i+1 < len(args) {
			message = args[i+1]
			i++
			continue
		}
	}

	if message == "" {
		fmt.Fprintln(os.Stderr, "usage: oxen commit -m <message>")
		return 1
	}

	author, err := resolveAuthor()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}

	hash, err := r.Commit(message, author, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 1
	}

	if branch, ok := r.CurrentBranch(); ok {
		fmt.Printf("[%s %s] %s\n", branch, hash.ShortString(10), message)
	} else {
		fmt.Printf("[detached HEAD %s] %s\n", hash.ShortString(10), message)
	}
	return 0
}
