package display

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/fatih/color"
)

// LoadingBuildFile shows which build file is being read.
func LoadingBuildFile(w io.Writer, path string) {
	fmt.Fprintf(w, "Loading build definitions from %s...\n", filepath.Base(path))
}

// BuildFileLoaded confirms a build file was parsed.
func BuildFileLoaded(w io.Writer, format string, targets, parameters int) {
	check := color.New(color.FgGreen).Sprint("✓")
	fmt.Fprintf(w, "%s Loaded %s (%s), %s\n", check, plural(targets, "target"), format, plural(parameters, "parameter"))
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
