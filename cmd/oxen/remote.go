package main

import (
	"fmt"
	"os"

	"github.com/oxenhq/oxen-core/internal/repo"
)

func runRemote(r *repo.Repository, args []string) int {
	if len(args) == 0 {
		for name, rem := range r.Config.Remotes {
			fmt.Printf("%s\t%s\n", name, rem.URL)
		}
		return 0
	}

	switch args[0] {
	case "add":
		if len(args) != 3 {
			fmt.Fprintln(os.Stderr, "usage: oxen remote add <name> <url>")
			return 1
		}
		r.Config.SetRemote(args[1], args[2])
		if err := r.SaveConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			return 128
		}
		return 0
	case "remove", "rm":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "usage: oxen remote remove <name>")
			return 1
		}
		if !r.Config.RemoveRemote(args[1]) {
			fmt.Fprintf(os.Stderr, "error: no such remote %q\n", args[1])
			return 1
		}
		if err := r.SaveConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			return 128
		}
		return 0
	default:
		fmt.Fprintln(os.Stderr, "usage: oxen remote [add <name> <url> | remove <name>]")
		return 1
	}
}
