package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/oxenhq/oxen-core/internal/hashing"
	"github.com/oxenhq/oxen-core/internal/repo"
	"github.com/oxenhq/oxen-core/internal/termcolor"
)

func runLog(r *repo.Repository, args []string, cw *termcolor.Writer) int {
	maxCount := 0
	oneline := false

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--oneline":
			oneline = true
		case args[i] == "-n" && i+1 < len(args):
			i++
			n, err := strconv.Atoi(args[i])
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: invalid -n value: %q\n", args[i])
				return 1
			}
			maxCount = n
		case strings.HasPrefix(args[i], "-n"):
			n, err := strconv.Atoi(args[i][2:])
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: invalid -n value: %q\n", args[i][2:])
				return 1
			}
			maxCount = n
		default:
			fmt.Fprintf(os.Stderr, "error: unknown option: %q\n", args[i])
			return 1
		}
	}

	head, err := r.Refs.ResolveHead()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}

	branches, err := r.Refs.ListBranches()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}
	decorations := buildDecorations(r, branches, head, cw)

	n := 0
	first := true
	hash := head
	for !hash.IsZero() {
		if maxCount > 0 && n >= maxCount {
			break
		}
		node, err := r.Nodes.GetNode(hash)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			return 128
		}
		if node.Commit == nil {
			fmt.Fprintf(os.Stderr, "fatal: %s is not a commit\n", hash)
			return 128
		}
		c := node.Commit

		decor := ""
		if d, ok := decorations[hash]; ok {
			decor = " " + cw.Yellow("(") + d + cw.Yellow(")")
		}

		if oneline {
			fmt.Printf("%s%s %s\n", cw.Yellow(hash.ShortString(10)), decor, firstLine(c.Message))
		} else {
			if !first {
				fmt.Println()
			}
			fmt.Printf("%s %s%s\n", cw.Yellow("commit"), cw.Yellow(hash.String()), decor)
			if len(c.Parents) > 1 {
				parentStrs := make([]string, len(c.Parents))
				for i, p := range c.Parents {
					parentStrs[i] = p.ShortString(10)
				}
				fmt.Printf("Merge: %s\n", strings.Join(parentStrs, " "))
			}
			fmt.Printf("Author: %s <%s>\n", c.Author.Name, c.Author.Email)
			fmt.Printf("Date:   %s\n", oxenDateFormat(c.Author.When))
			fmt.Println()
			for _, line := range strings.Split(c.Message, "\n") {
				fmt.Printf("    %s\n", line)
			}
		}

		first = false
		n++

		if len(c.Parents) == 0 {
			break
		}
		hash = c.Parents[0]
	}

	return 0
}

func buildDecorations(r *repo.Repository, branches []string, head hashing.Hash, cw *termcolor.Writer) map[hashing.Hash]string {
	result := make(map[hashing.Hash]string)
	type decoInfo struct {
		headArrow string
		branches  []string
	}
	byHash := make(map[hashing.Hash]*decoInfo)

	getInfo := func(h hashing.Hash) *decoInfo {
		if info, ok := byHash[h]; ok {
			return info
		}
		info := &decoInfo{}
		byHash[h] = info
		return info
	}

	currentBranch, attached := r.CurrentBranch()

	for _, name := range branches {
		tip, err := r.Refs.GetBranch(name)
		if err != nil {
			continue
		}
		info := getInfo(tip)
		if attached && name == currentBranch {
			info.headArrow = cw.BoldCyan("HEAD -> ") + cw.Green(name)
		} else {
			info.branches = append(info.branches, cw.Green(name))
		}
	}

	if !attached {
		info := getInfo(head)
		info.headArrow = cw.BoldCyan("HEAD")
	}

	for hash, info := range byHash {
		var parts []string
		if info.headArrow != "" {
			parts = append(parts, info.headArrow)
		}
		parts = append(parts, info.branches...)
		if len(parts) > 0 {
			result[hash] = strings.Join(parts, cw.Yellow(", "))
		}
	}

	return result
}

func firstLine(msg string) string {
	if idx := strings.IndexByte(msg, '\n'); idx >= 0 {
		return msg[:idx]
	}
	return msg
}
