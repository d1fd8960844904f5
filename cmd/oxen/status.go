package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/oxenhq/oxen-core/internal/repo"
	"github.com/oxenhq/oxen-core/internal/termcolor"
)

func runStatus(r *repo.Repository, args []string, cw *termcolor.Writer) int {
	porcelain := false
	for _, a := range args {
		if a == "-s" || a == "--porcelain" {
			porcelain = true
		}
	}

	data, err := r.Status()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}

	sort.Strings(data.Added)
	sort.Strings(data.Modified)
	sort.Strings(data.Removed)
	sort.Strings(data.Untracked)

	if porcelain {
		return printPorcelainStatus(data)
	}
	return printLongStatus(r, data, cw)
}

func printPorcelainStatus(data repo.StagedData) int {
	for _, p := range data.Added {
		fmt.Printf("A  %s\n", p)
	}
	for _, p := range data.Modified {
		fmt.Printf(" M %s\n", p)
	}
	for _, p := range data.Removed {
		fmt.Printf(" D %s\n", p)
	}
	for _, p := range data.Untracked {
		fmt.Printf("?? %s\n", p)
	}
	return 0
}

func printLongStatus(r *repo.Repository, data repo.StagedData, cw *termcolor.Writer) int {
	if branch, ok := r.CurrentBranch(); ok {
		fmt.Printf("On branch %s\n", branch)
	} else {
		fmt.Println("HEAD detached")
	}

	if len(data.Added) > 0 || len(data.Modified) > 0 || len(data.Removed) > 0 {
		fmt.Println(cw.Bold("Changes:"))
		for _, p := range data.Added {
			fmt.Printf("\t%s %s\n", cw.Green("new file:"), p)
		}
		for _, p := range data.Modified {
			fmt.Printf("\t%s %s\n", cw.Yellow("modified:"), p)
		}
		for _, p := range data.Removed {
			fmt.Printf("\t%s  %s\n", cw.Red("deleted:"), p)
		}
		fmt.Println()
	}

	if len(data.Untracked) > 0 {
		fmt.Println(cw.Bold("Untracked files:"))
		for _, p := range data.Untracked {
			fmt.Printf("\t%s\n", p)
		}
		fmt.Println()
	}

	if len(data.Added) == 0 && len(data.Modified) == 0 && len(data.Removed) == 0 && len(data.Untracked) == 0 {
		fmt.Println("nothing to commit, working tree clean")
	}

	return 0
}
