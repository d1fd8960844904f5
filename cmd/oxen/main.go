// Package main is the oxen CLI entry point.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/oxenhq/oxen-core/internal/cli"
	"github.com/oxenhq/oxen-core/internal/repo"
	"github.com/oxenhq/oxen-core/internal/termcolor"
)

// Build-time variables set via -ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	gf, args := parseGlobalFlags(os.Args[1:])

	// --version is handled before app.Run because "--" prefixed args
	// would be treated as unknown commands by the dispatcher.
	for _, a := range args {
		if a == "--version" {
			printVersion()
			os.Exit(0)
		}
	}

	cw := termcolor.NewWriter(os.Stdout, gf.colorMode)

	app := cli.NewApp("oxen", version)
	app.Stderr = os.Stderr

	// r is declared here and assigned after dispatch determines that the
	// matched command needs it (NeedsRepo). Closures capture the pointer
	// variable, which is populated before they execute.
	var r *repo.Repository

	app.Register(&cli.Command{
		Name:     "init",
		Summary:  "Create a new repository in the current directory",
		Usage:    "oxen init",
		Examples: []string{"oxen init"},
		Run:      func(args []string) int { return runInit(args) },
	})

	app.Register(&cli.Command{
		Name:      "add",
		Summary:   "Stage file contents for the next commit",
		Usage:     "oxen add <path>...",
		Examples:  []string{"oxen add data.csv", "oxen add images/"},
		NeedsRepo: true,
		Run:       func(args []string) int { return runAdd(r, args) },
	})

	app.Register(&cli.Command{
		Name:      "rm",
		Summary:   "Unstage or remove a path",
		Usage:     "oxen rm [-r] <path>",
		Examples:  []string{"oxen rm stale.csv", "oxen rm -r old-dataset/"},
		NeedsRepo: true,
		Run:       func(args []string) int { return runRm(r, args) },
	})

	app.Register(&cli.Command{
		Name:      "status",
		Summary:   "Show staged, unstaged, and untracked changes",
		Usage:     "oxen status [-s|--porcelain]",
		Examples:  []string{"oxen status", "oxen status --porcelain"},
		NeedsRepo: true,
		Run:       func(args []string) int { return runStatus(r, args, cw) },
	})

	app.Register(&cli.Command{
		Name:      "commit",
		Summary:   "Record staged changes as a new commit",
		Usage:     "oxen commit -m <message>",
		Examples:  []string{"oxen commit -m \"add training split\""},
		NeedsRepo: true,
		Run:       func(args []string) int { return runCommit(r, args) },
	})

	app.Register(&cli.Command{
		Name:      "log",
		Summary:   "Show commit history",
		Usage:     "oxen log [--oneline] [-n <count>]",
		Examples:  []string{"oxen log", "oxen log --oneline -n5"},
		NeedsRepo: true,
		Run:       func(args []string) int { return runLog(r, args, cw) },
	})

	app.Register(&cli.Command{
		Name:      "checkout",
		Summary:   "Switch the working copy to a branch or commit",
		Usage:     "oxen checkout [-b] <branch|commit>",
		Examples:  []string{"oxen checkout main", "oxen checkout -b experiment"},
		NeedsRepo: true,
		Run:       func(args []string) int { return runCheckout(r, args) },
	})

	app.Register(&cli.Command{
		Name:      "restore",
		Summary:   "Restore a path from the index or a commit",
		Usage:     "oxen restore [--staged] [--source <rev>] <path>",
		Examples:  []string{"oxen restore data.csv", "oxen restore --staged data.csv"},
		NeedsRepo: true,
		Run:       func(args []string) int { return runRestore(r, args) },
	})

	app.Register(&cli.Command{
		Name:      "branch",
		Summary:   "List, create, or delete branches",
		Usage:     "oxen branch [-d] [<name>]",
		Examples:  []string{"oxen branch", "oxen branch experiment", "oxen branch -d experiment"},
		NeedsRepo: true,
		Run:       func(args []string) int { return runBranch(r, args, cw) },
	})

	app.Register(&cli.Command{
		Name:      "merge",
		Summary:   "Merge a branch into the current branch",
		Usage:     "oxen merge <branch>",
		Examples:  []string{"oxen merge experiment"},
		NeedsRepo: true,
		Run:       func(args []string) int { return runMerge(r, args) },
	})

	app.Register(&cli.Command{
		Name:      "diff",
		Summary:   "Show changes to a path between two revisions",
		Usage:     "oxen diff <path> [<rev-a>] [<rev-b>]",
		Examples:  []string{"oxen diff data.csv", "oxen diff data.csv main experiment"},
		NeedsRepo: true,
		Run:       func(args []string) int { return runDiff(r, args, cw) },
	})

	app.Register(&cli.Command{
		Name:      "remote",
		Summary:   "Manage configured remotes",
		Usage:     "oxen remote [add <name> <url> | remove <name>]",
		Examples:  []string{"oxen remote", "oxen remote add origin http://host/repos/acme/dataset"},
		NeedsRepo: true,
		Run:       func(args []string) int { return runRemote(r, args) },
	})

	app.Register(&cli.Command{
		Name:      "push",
		Summary:   "Upload commits, nodes, and blobs to a remote",
		Usage:     "oxen push [<remote>] [<branch>]",
		Examples:  []string{"oxen push", "oxen push origin main"},
		NeedsRepo: true,
		Run:       func(args []string) int { return runPush(r, args) },
	})

	app.Register(&cli.Command{
		Name:      "fetch",
		Summary:   "Download a branch from a remote without updating the working copy",
		Usage:     "oxen fetch [<remote>] [<branch>]",
		Examples:  []string{"oxen fetch", "oxen fetch origin main"},
		NeedsRepo: true,
		Run:       func(args []string) int { return runFetch(r, args) },
	})

	app.Register(&cli.Command{
		Name:      "pull",
		Summary:   "Fetch a branch and reconcile it with the current branch",
		Usage:     "oxen pull [<remote>] [<branch>]",
		Examples:  []string{"oxen pull", "oxen pull origin main"},
		NeedsRepo: true,
		Run:       func(args []string) int { return runPull(r, args) },
	})

	app.Register(&cli.Command{
		Name:    "clone",
		Summary: "Clone a remote repository into a new directory",
		Usage:   "oxen clone <url> [<dir>] [--depth N] [--subtree P] [--all]",
		Examples: []string{
			"oxen clone http://host/repos/acme/dataset",
			"oxen clone http://host/repos/acme/dataset --depth 1",
			"oxen clone http://host/repos/acme/dataset --subtree images/",
		},
		Run: func(args []string) int { return runClone(args) },
	})

	app.Register(&cli.Command{
		Name:    "update",
		Summary: "Update to the latest release",
		Usage:   "oxen update [--check]",
		Examples: []string{
			"oxen update",
			"oxen update --check",
		},
		Run: func(args []string) int { return runUpdate(args) },
	})

	app.Register(&cli.Command{
		Name:    "version",
		Summary: "Show version information",
		Usage:   "oxen version",
		Run:     func([]string) int { printVersion(); return 0 },
	})

	// Determine which command will run so we can open the repo only when needed.
	if len(args) > 0 {
		c := app.Lookup(args[0])
		if c != nil && c.NeedsRepo {
			wd, err := os.Getwd()
			if err != nil {
				fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
				os.Exit(128)
			}
			r, err = repo.Discover(wd, repo.Config{})
			if err != nil {
				fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
				os.Exit(128)
			}
		}
	}

	os.Exit(app.Run(args, cw))
}

func printVersion() {
	fmt.Printf("oxen %s\n", version)
	fmt.Printf("  commit:     %s\n", commit)
	fmt.Printf("  built:      %s\n", buildDate)
	fmt.Printf("  go version: %s\n", runtime.Version())
	fmt.Printf("  platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
}
