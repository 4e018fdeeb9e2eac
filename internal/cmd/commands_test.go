package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harrison/buildgraph/internal/graph"
	"github.com/harrison/buildgraph/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListCommand(t *testing.T) {
	newWorkspace(t, pipelineYAML)

	output, err := executeCommand(t, "list")
	require.NoError(t, err)

	assert.Contains(t, output, "Targets (5):")
	assert.Contains(t, output, "    Clean     Remove build outputs.")
	assert.Contains(t, output, "  * Compile   Build the solution.")
	assert.Contains(t, output, "Parameters (3):")
	assert.Contains(t, output, "ApiKey         (not set)  Key for publishing.")
	assert.Contains(t, output, "Source         https://feed.example [default]  Package feed.")

	lines := strings.Split(output, "\n")
	assert.Equal(t, "Targets (5):", lines[0])
	assert.True(t, strings.HasSuffix(lines[1], "Clean     Remove build outputs."), "declaration order: %q", lines[1])
}

func TestListMasksSecrets(t *testing.T) {
	newWorkspace(t, pipelineYAML)

	output, err := executeCommand(t, "list", "-p", "ApiKey=hunter2", "-c", "Release")
	require.NoError(t, err)

	assert.NotContains(t, output, "hunter2")
	assert.Contains(t, output, "ApiKey         **** [flag]")
	assert.Contains(t, output, "Configuration  Release [flag]")
}

func TestGraphCommand(t *testing.T) {
	t.Run("stdout", func(t *testing.T) {
		newWorkspace(t, pipelineYAML)

		output, err := executeCommand(t, "graph")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(output, "digraph "))
		assert.Contains(t, output, `"Restore" -> "Compile";`)
		assert.Contains(t, output, `"Clean" -> "Restore" [style=dashed];`)
		assert.Contains(t, output, `"Test" -> "Coverage" [style=dotted,label="triggers"];`)
		assert.NotContains(t, output, "style=bold")
	})

	t.Run("highlights the plan and writes a file", func(t *testing.T) {
		dir := newWorkspace(t, pipelineYAML)
		out := filepath.Join(dir, "graphs", "build.dot")

		output, err := executeCommand(t, "graph", "Compile", "--output", out)
		require.NoError(t, err)
		assert.Contains(t, output, "Graph written to")

		data, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"Compile" [shape=box,style=bold];`)
		assert.Contains(t, string(data), `"Restore" [shape=box,style=bold];`)
		assert.Contains(t, string(data), `"Test" [shape=box];`)
	})
}

func TestValidateCommand(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		newWorkspace(t, pipelineYAML)

		output, err := executeCommand(t, "validate")
		require.NoError(t, err)
		assert.Contains(t, output, "Loaded 5 targets (yaml), 2 parameters")
		assert.Contains(t, output, "is valid")
	})

	t.Run("unknown reference", func(t *testing.T) {
		newWorkspace(t, "targets:\n  - name: Compile\n    depends_on: [Restore]\n")

		_, err := executeCommand(t, "validate")
		require.Error(t, err)
		var unknown *registry.UnknownTargetError
		require.True(t, errors.As(err, &unknown))
		assert.Equal(t, "Restore", unknown.Name)
		assert.Equal(t, "Compile", unknown.Referrer)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})

	t.Run("duplicate target", func(t *testing.T) {
		newWorkspace(t, "targets:\n  - name: Compile\n  - name: compile\n")

		_, err := executeCommand(t, "validate")
		require.Error(t, err)
		var dup *registry.DuplicateTargetError
		assert.True(t, errors.As(err, &dup))
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})

	t.Run("ordering cycle", func(t *testing.T) {
		newWorkspace(t, "targets:\n  - name: A\n    before: [B]\n  - name: B\n    before: [A]\n")

		_, err := executeCommand(t, "validate")
		require.Error(t, err)
		var cycle *graph.CycleError
		require.True(t, errors.As(err, &cycle))
		assert.True(t, cycle.Contains("A"))
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})

	t.Run("no build file", func(t *testing.T) {
		t.Setenv("BUILDGRAPH_ROOT", t.TempDir())

		_, err := executeCommand(t, "validate")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no build file found")
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})
}

func TestHistoryCommand(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		newWorkspace(t, pipelineYAML)

		output, err := executeCommand(t, "history")
		require.NoError(t, err)
		assert.Contains(t, output, "No invocations recorded yet.")
	})

	t.Run("after runs", func(t *testing.T) {
		newWorkspace(t, failingYAML)

		_, err := executeCommand(t, "run", "Compile")
		require.NoError(t, err)
		_, err = executeCommand(t, "run", "Test")
		require.Error(t, err)

		output, err := executeCommand(t, "history")
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(output), "\n")
		require.Len(t, lines, 3)
		assert.True(t, strings.HasPrefix(lines[0], "ID"))
		assert.Contains(t, lines[1], "PartialFailure")
		assert.Contains(t, lines[1], "Test")
		assert.Contains(t, lines[2], "Success")

		id := strings.Fields(lines[1])[0]
		output, err = executeCommand(t, "history", "--id", id)
		require.NoError(t, err)
		assert.Contains(t, output, "Invocation:    "+id)
		assert.Contains(t, output, "Outcome:       PartialFailure")
		assert.Contains(t, output, "sh exited with code 3")

		output, err = executeCommand(t, "history", "--target", "compile")
		require.NoError(t, err)
		assert.Equal(t, 2, strings.Count(output, "Succeeded"))

		output, err = executeCommand(t, "history", "--limit", "1")
		require.NoError(t, err)
		assert.Equal(t, 2, len(strings.Split(strings.TrimSpace(output), "\n")))
	})

	t.Run("unknown id", func(t *testing.T) {
		newWorkspace(t, failingYAML)
		_, err := executeCommand(t, "run", "Compile")
		require.NoError(t, err)

		_, err = executeCommand(t, "history", "--id", "missing")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})
}
