package graph

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

func escDotID(id string) string {
	return strings.ReplaceAll(id, "\"", "\\\"")
}

// WriteDot writes the graph in Graphviz DOT format. dependsOn edges are solid,
// before/after edges dashed and trigger edges dotted. Targets listed in
// highlight are drawn bold.
func (g *Graph) WriteDot(w io.Writer, name string, highlight ...string) error {
	bold := make(map[int]bool, len(highlight))
	for _, h := range highlight {
		if id, ok := g.ID(h); ok {
			bold[id] = true
		}
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "digraph \"%s\" {\n\trankdir=\"LR\"\n", escDotID(name))
	for i, t := range g.targets {
		style := ""
		if bold[i] {
			style = ",style=bold"
		}
		fmt.Fprintf(bw, "\t\"%s\" [shape=box%s];\n", escDotID(t.Name), style)
	}
	for i, t := range g.targets {
		for _, d := range g.deps[i] {
			fmt.Fprintf(bw, "\t\"%s\" -> \"%s\";\n", escDotID(g.targets[d].Name), escDotID(t.Name))
		}
	}
	for i, t := range g.targets {
		for _, next := range g.orderNext[i] {
			fmt.Fprintf(bw, "\t\"%s\" -> \"%s\" [style=dashed];\n", escDotID(t.Name), escDotID(g.targets[next].Name))
		}
	}
	for i, t := range g.targets {
		for _, trig := range g.triggers[i] {
			fmt.Fprintf(bw, "\t\"%s\" -> \"%s\" [style=dotted,label=\"triggers\"];\n", escDotID(t.Name), escDotID(g.targets[trig].Name))
		}
	}
	fmt.Fprintln(bw, "}")
	return bw.Flush()
}
