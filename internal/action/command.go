package action

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/harrison/buildgraph/internal/models"
	"github.com/hashicorp/hcl/v2"
)

// waitDelay bounds how long a killed command may keep its output pipes open.
const waitDelay = 5 * time.Second

// Command runs an external program for a target. Exactly one of Args and
// Script is set: Args is an argv whose elements are rendered individually,
// Script is rendered once and handed to the platform shell.
type Command struct {
	Args   []Value
	Script Value
	Dir    Value            // working directory, relative to the build root
	Env    map[string]Value // added to the inherited environment
	Scope  *Scope
}

var _ models.Action = (*Command)(nil)

// Validate reports a command that has nothing to run.
func (c *Command) Validate() error {
	if len(c.Args) == 0 && c.Script.IsZero() {
		return errors.New("command has neither args nor script")
	}
	if len(c.Args) > 0 && !c.Script.IsZero() {
		return errors.New("command sets both args and script")
	}
	return nil
}

// Invoke renders the command against inv.Build and runs it to completion.
// Cancelling ctx kills the process.
func (c *Command) Invoke(ctx context.Context, inv models.Invocation) error {
	if err := c.Validate(); err != nil {
		return err
	}
	evalCtx := c.Scope.EvalContext(inv.Build, inv.Target)

	argv, err := c.argv(evalCtx)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.WaitDelay = waitDelay
	cmd.Stdout = inv.Stdout
	cmd.Stderr = inv.Stderr

	dir, err := c.Dir.Render(evalCtx)
	if err != nil {
		return fmt.Errorf("render dir: %w", err)
	}
	cmd.Dir = resolveDir(inv.Build.RootDir(), dir)

	env, err := c.environ(evalCtx)
	if err != nil {
		return err
	}
	cmd.Env = env

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%s exited with code %d", filepath.Base(argv[0]), exitErr.ExitCode())
		}
		return fmt.Errorf("run %s: %w", filepath.Base(argv[0]), err)
	}
	return nil
}

func (c *Command) argv(evalCtx *hcl.EvalContext) ([]string, error) {
	if !c.Script.IsZero() {
		script, err := c.Script.Render(evalCtx)
		if err != nil {
			return nil, fmt.Errorf("render script: %w", err)
		}
		return append(shell(), script), nil
	}
	argv := make([]string, 0, len(c.Args))
	for i, a := range c.Args {
		s, err := a.Render(evalCtx)
		if err != nil {
			return nil, fmt.Errorf("render argument %d: %w", i, err)
		}
		argv = append(argv, s)
	}
	if strings.TrimSpace(argv[0]) == "" {
		return nil, errors.New("command program is empty")
	}
	return argv, nil
}

func (c *Command) environ(evalCtx *hcl.EvalContext) ([]string, error) {
	env := os.Environ()
	names := make([]string, 0, len(c.Env))
	for name := range c.Env {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v, err := c.Env[name].Render(evalCtx)
		if err != nil {
			return nil, fmt.Errorf("render env %s: %w", name, err)
		}
		env = append(env, name+"="+v)
	}
	return env, nil
}

func resolveDir(root, dir string) string {
	switch {
	case dir == "":
		return root
	case filepath.IsAbs(dir) || root == "":
		return dir
	default:
		return filepath.Join(root, dir)
	}
}

func shell() []string {
	if runtime.GOOS == "windows" {
		return []string{"cmd", "/C"}
	}
	return []string{"sh", "-c"}
}
