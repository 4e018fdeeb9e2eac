// Package display formats user-facing CLI messages that are not part of the
// invocation log: warnings about the command line or the workspace, and
// build file loading notices.
//
// Colors come from fatih/color and follow its global color.NoColor switch,
// which the CLI sets from the --color flag / config. All functions write to
// an io.Writer for testability.
//
//	display.WarnSkipNotPlanned([]string{"Docs"}).Display(os.Stderr)
package display
