package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// RootEnv overrides build root discovery.
const RootEnv = "BUILDGRAPH_ROOT"

// BuildFileNames are the build definitions looked for, in priority order.
var BuildFileNames = []string{"build.yaml", "build.yml", "build.hcl", "BUILD.md"}

// FindRoot returns the build root directory
// Priority order:
//  1. BUILDGRAPH_ROOT environment variable (if set)
//  2. Nearest ancestor of start containing a .buildgraph directory
//  3. Nearest ancestor of start containing a build file
//  4. start itself (fallback)
func FindRoot(start string) (string, error) {
	if root := os.Getenv(RootEnv); root != "" {
		return filepath.Abs(root)
	}

	start, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", start, err)
	}

	if dir, ok := walkUp(start, func(dir string) bool {
		info, err := os.Stat(filepath.Join(dir, DirName))
		return err == nil && info.IsDir()
	}); ok {
		return dir, nil
	}

	if dir, ok := walkUp(start, func(dir string) bool {
		_, found := FindBuildFile(dir)
		return found
	}); ok {
		return dir, nil
	}

	return start, nil
}

// FindBuildFile returns the first build file present in dir.
func FindBuildFile(dir string) (string, bool) {
	files := BuildFiles(dir)
	if len(files) == 0 {
		return "", false
	}
	return files[0], true
}

// BuildFiles returns every build file present in dir, in priority order.
func BuildFiles(dir string) []string {
	var files []string
	for _, name := range BuildFileNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			files = append(files, path)
		}
	}
	return files
}

func walkUp(start string, match func(string) bool) (string, bool) {
	current := start
	for {
		if match(current) {
			return current, true
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", false
		}
		current = parent
	}
}

// EnsureDir creates the .buildgraph directory under root and returns its path.
func EnsureDir(root string) (string, error) {
	dir := filepath.Join(root, DirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create %s directory: %w", DirName, err)
	}
	return dir, nil
}
