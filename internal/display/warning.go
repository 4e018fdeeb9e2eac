package display

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
)

// Warning represents a user-facing warning message
type Warning struct {
	Title      string   // Main warning title
	Message    string   // Detailed explanation (optional)
	Items      []string // Related targets or files (optional)
	ItemKind   string   // Singular noun for Items, e.g. "target"; defaults to "item"
	Suggestion string   // Action to take (optional)
}

// Display shows a formatted warning in yellow
func (w Warning) Display(out io.Writer) {
	var b strings.Builder

	b.WriteString("⚠️  Warning: ")
	b.WriteString(w.Title)
	b.WriteString("\n")

	if w.Message != "" {
		b.WriteString("    ")
		b.WriteString(w.Message)
		b.WriteString("\n")
	}

	if len(w.Items) > 0 {
		kind := w.ItemKind
		if kind == "" {
			kind = "item"
		}
		if len(w.Items) == 1 {
			fmt.Fprintf(&b, "    Affected %s:\n", kind)
		} else {
			fmt.Fprintf(&b, "    Affected %ss:\n", kind)
		}
		for i, item := range w.Items {
			fmt.Fprintf(&b, "      %d. %s\n", i+1, item)
		}
	}

	if w.Suggestion != "" {
		b.WriteString("    Suggestion:\n")
		b.WriteString("    ")
		b.WriteString(w.Suggestion)
		b.WriteString("\n")
	}

	color.New(color.FgYellow).Fprint(out, b.String())
}

// WarnSkipNotPlanned reports --skip names that are not part of the plan.
func WarnSkipNotPlanned(targets []string) Warning {
	return Warning{
		Title:      "Skipped targets are not in the plan",
		Message:    "--skip only affects targets the plan would otherwise run; these names were ignored.",
		Items:      targets,
		ItemKind:   "target",
		Suggestion: "Run 'buildgraph plan' to see which targets are planned.",
	}
}

// WarnMultipleBuildFiles reports a directory holding more than one build
// file; files[0] is the one used.
func WarnMultipleBuildFiles(files []string) Warning {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = filepath.Base(f)
	}
	return Warning{
		Title:      "Multiple build files found",
		Message:    fmt.Sprintf("Using %s; the others are ignored.", names[0]),
		Items:      names,
		ItemKind:   "file",
		Suggestion: "Remove the unused files or pick one with --file.",
	}
}
