// Package artifact checks produces/consumes contracts against the filesystem.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// Checker matches artifact patterns relative to a root directory. Patterns use
// doublestar syntax, so "**/*.xml" matches at any depth. Absolute patterns are
// matched as-is.
type Checker struct {
	root  string
	locks sync.Map // pattern -> *sync.Mutex
}

// NewChecker creates a checker rooted at root.
func NewChecker(root string) *Checker {
	return &Checker{root: root}
}

// Root returns the directory relative patterns are resolved against.
func (c *Checker) Root() string {
	return c.root
}

// Validate reports the first syntactically invalid pattern.
func Validate(patterns []string) error {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(filepath.ToSlash(p)) {
			return fmt.Errorf("invalid artifact pattern %q", p)
		}
	}
	return nil
}

// Match returns the paths matching pattern. Access to the same pattern is
// serialized so that a producer's check never interleaves with a consumer's.
func (c *Checker) Match(pattern string) ([]string, error) {
	mu, _ := c.locks.LoadOrStore(pattern, &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
	defer mu.(*sync.Mutex).Unlock()

	if filepath.IsAbs(pattern) {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("match %s: %w", pattern, err)
		}
		return matches, nil
	}

	matches, err := doublestar.Glob(os.DirFS(c.root), filepath.ToSlash(filepath.Clean(pattern)))
	if err != nil {
		return nil, fmt.Errorf("match %s: %w", pattern, err)
	}
	for i, m := range matches {
		matches[i] = filepath.Join(c.root, filepath.FromSlash(m))
	}
	return matches, nil
}

// Missing returns the patterns that match nothing, in the order given.
func (c *Checker) Missing(patterns []string) ([]string, error) {
	var missing []string
	for _, p := range patterns {
		matches, err := c.Match(p)
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			missing = append(missing, p)
		}
	}
	return missing, nil
}
