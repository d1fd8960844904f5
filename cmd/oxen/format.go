package main

import (
	"fmt"
	"time"

	"github.com/oxenhq/oxen-core/internal/hashing"
	"github.com/oxenhq/oxen-core/internal/repo"
)

// oxenDateFormat formats a time.Time the same way git log does.
// Layout: "Mon Jan 2 15:04:05 2006 -0700".
func oxenDateFormat(t time.Time) string {
	return t.Format("Mon Jan 2 15:04:05 2006 -0700")
}

// resolveRevision resolves rev to a commit hash: "HEAD", a branch name,
// or a full 32-character hex hash.
func resolveRevision(r *repo.Repository, rev string) (hashing.Hash, error) {
	if rev == "" || rev == "HEAD" {
		h, err := r.Refs.ResolveHead()
		if err != nil {
			return hashing.Hash{}, fmt.Errorf("HEAD: %w", err)
		}
		return h, nil
	}

	if h, err := r.Refs.GetBranch(rev); err == nil {
		return h, nil
	}

	if h, err := hashing.Parse(rev); err == nil {
		return h, nil
	}

	return hashing.Hash{}, fmt.Errorf("unknown revision: %s", rev)
}
