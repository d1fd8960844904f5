// Package repoconfig reads and writes a repository's .oxen/config.toml:
// remotes, vnode bucket size, the minimum protocol version this
// repository requires of a remote, and an optional subtree/depth
// restriction recorded by a shallow or partial clone.
package repoconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/oxenhq/oxen-core/internal/merkle"
	"github.com/oxenhq/oxen-core/internal/oxerr"
)

// FileName is the config file's name under .oxen/.
const FileName = "config.toml"

// DefaultVNodeSize mirrors merkle.DefaultBucketSize; kept as its own
// constant so config.toml remains self-describing without importing
// merkle's internals at the zero-value call site.
const DefaultVNodeSize = merkle.DefaultBucketSize

// MinVersion is the protocol/format version this build of oxen writes
// and the minimum it requires of a remote.
const MinVersion = 1

// Remote is one entry in the [remotes] table.
type Remote struct {
	Name string `toml:"-"`
	URL  string `toml:"url"`
}

// Config is the decoded shape of config.toml.
type Config struct {
	VNodeSize    int               `toml:"vnode_size"`
	MinVersion   int               `toml:"min_version"`
	Remotes      map[string]Remote `toml:"remotes"`
	SubtreePaths []string          `toml:"subtree_paths,omitempty"`
	Depth        *int              `toml:"depth,omitempty"`
}

// New returns the config a freshly initialised repository should start
// with: no remotes, default bucket size, current min version.
func New() *Config {
	return &Config{
		VNodeSize:  DefaultVNodeSize,
		MinVersion: MinVersion,
		Remotes:    map[string]Remote{},
	}
}

// Path returns the config.toml path under the given .oxen directory.
func Path(oxenDir string) string {
	return filepath.Join(oxenDir, FileName)
}

// Load reads and decodes config.toml from the given .oxen directory.
func Load(oxenDir string) (*Config, error) {
	path := Path(oxenDir)
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if os.IsNotExist(err) {
			return nil, oxerr.New(oxerr.KindNotFound, fmt.Sprintf("no config at %s", path))
		}
		return nil, oxerr.Wrap(oxerr.KindCorruptStore, fmt.Sprintf("decode %s", path), err)
	}
	if cfg.Remotes == nil {
		cfg.Remotes = map[string]Remote{}
	}
	for name, r := range cfg.Remotes {
		r.Name = name
		cfg.Remotes[name] = r
	}
	return &cfg, nil
}

// Save writes cfg to config.toml atomically (temp file + rename, the
// convention every other on-disk store in this repository follows).
func (c *Config) Save(oxenDir string) error {
	path := Path(oxenDir)
	tmp, err := os.CreateTemp(oxenDir, ".tmp-config-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	removeTemp := true
	defer func() {
		tmp.Close()
		if removeTemp {
			os.Remove(tmpPath)
		}
	}()

	enc := toml.NewEncoder(tmp)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("repoconfig: encode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	removeTemp = false
	return nil
}

// SetRemote adds or replaces a named remote.
func (c *Config) SetRemote(name, url string) {
	if c.Remotes == nil {
		c.Remotes = map[string]Remote{}
	}
	c.Remotes[name] = Remote{Name: name, URL: url}
}

// RemoveRemote deletes a named remote, reporting whether it existed.
func (c *Config) RemoveRemote(name string) bool {
	if _, ok := c.Remotes[name]; !ok {
		return false
	}
	delete(c.Remotes, name)
	return true
}

// Remote looks up a named remote.
func (c *Config) Remote(name string) (Remote, bool) {
	r, ok := c.Remotes[name]
	return r, ok
}

// IsShallow reports whether this repository was cloned with a depth or
// subtree restriction, which relaxes the closure invariant: not every node reachable from a ref need be present
// locally.
func (c *Config) IsShallow() bool {
	return c.Depth != nil || len(c.SubtreePaths) > 0
}
