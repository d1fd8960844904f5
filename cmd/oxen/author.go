package main

import (
	"fmt"
	"os"
	"os/user"
	"time"

	"github.com/oxenhq/oxen-core/internal/merkle"
)

// resolveAuthor builds the Signature attached to a new commit or merge,
// reading OXEN_AUTHOR_NAME/OXEN_AUTHOR_EMAIL and falling back to the OS
// user account when they're unset.
func resolveAuthor() (merkle.Signature, error) {
	name := os.Getenv("OXEN_AUTHOR_NAME")
	email := os.Getenv("OXEN_AUTHOR_EMAIL")

	if name == "" || email == "" {
		u, err := user.Current()
		if err != nil {
			return merkle.Signature{}, fmt.Errorf("resolve author: set OXEN_AUTHOR_NAME and OXEN_AUTHOR_EMAIL: %w", err)
		}
		if name == "" {
			name = u.Username
		}
		if email == "" {
			host, _ := os.Hostname()
			email = fmt.Sprintf("%s@%s", u.Username, host)
		}
	}

	return merkle.Signature{Name: name, Email: email, When: time.Now()}, nil
}
