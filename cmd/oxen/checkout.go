package main

import (
	"fmt"
	"os"

	"github.com/oxenhq/oxen-core/internal/hashing"
	"github.com/oxenhq/oxen-core/internal/repo"
)

func runCheckout(r *repo.Repository, args []string) int {
	create := false
	force := false
	var target string

	for _, a := range args {
		switch a {
		case "-b":
			create = true
		case "-f", "--force":
			force = true
		default:
			if target != "" {
				fmt.Fprintln(os.Stderr, "usage: oxen checkout [-b] [-f] <branch|commit>")
				return 1
			}
			target = a
		}
	}
	if target == "" {
		fmt.Fprintln(os.Stderr, "usage: oxen checkout [-b] [-f] <branch|commit>")
		return 1
	}

	ct := repo.CheckoutTarget{Create: create}
	if create {
		ct.Branch = target
	} else if h, err := hashing.Parse(target); err == nil {
		ct.Hash = h
	} else {
		ct.Branch = target
	}

	result, err := r.Checkout(ct, force)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	if create {
		fmt.Printf("Switched to a new branch '%s'\n", target)
	} else {
		fmt.Printf("Switched to '%s'\n", target)
	}
	if len(result.Written) > 0 {
		fmt.Printf("  %d file(s) updated\n", len(result.Written))
	}
	if len(result.Removed) > 0 {
		fmt.Printf("  %d file(s) removed\n", len(result.Removed))
	}
	return 0
}

func runRestore(r *repo.Repository, args []string) int {
	staged := false
	source := ""
	var path string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--staged":
			staged = true
		case args[i] == "--source" && i+1 < len(args):
			i++
			source = args[i]
		default:
			if path != "" {
				fmt.Fprintln(os.Stderr, "usage: oxen restore [--staged] [--source <rev>] <path>")
				return 1
			}
			path = args[i]
		}
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "usage: oxen restore [--staged] [--source <rev>] <path>")
		return 1
	}

	var rev hashing.Hash
	if source != "" {
		h, err := resolveRevision(r, source)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		rev = h
	}

	if err := r.Restore(path, rev, staged); err != nil {
		fmt.Fprintf(os.Stderr, "error: restore %q: %v\n", path, err)
		return 1
	}
	return 0
}
