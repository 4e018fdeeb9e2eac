package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/harrison/buildgraph/internal/config"
	"github.com/stretchr/testify/require"
)

const pipelineYAML = `default: Compile

parameters:
  - name: ApiKey
    description: Key for publishing.
    secret: true
  - name: Source
    description: Package feed.
    default: https://feed.example

targets:
  - name: Clean
    description: Remove build outputs.
    before: [Restore]
  - name: Restore
  - name: Compile
    description: Build the solution.
    depends_on: [Restore]
    run: echo compiled
  - name: Test
    depends_on: [Compile]
  - name: Coverage
    depends_on: [Test]
    triggered_by: [Test]
`

// newWorkspace writes build.yaml into a fresh directory and makes it the build root.
func newWorkspace(t *testing.T, buildYAML string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "build.yaml"), []byte(buildYAML), 0644))
	t.Setenv(config.RootEnv, dir)
	return dir
}

// executeCommand runs the root command with args and returns everything it printed.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}
