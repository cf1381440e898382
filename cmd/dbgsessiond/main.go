// Command dbgsessiond runs the debug session orchestrator's UI-facing
// command surface over stdio.
//
// Grounded on cmd/hlb/main.go and cmd/hlb/command/app.go: a thin main
// that builds a *cli.App and runs it against os.Args, with subcommands
// living in their own files in this package rather than main.go.
package main

import (
	"fmt"
	"os"

	isatty "github.com/mattn/go-isatty"
	cli "github.com/urfave/cli/v2"
)

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "dbgsessiond: %s\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "dbgsessiond"
	app.Usage = "mediates IDE debugging sessions over the Debug Adapter Protocol"
	app.Description = "debug session orchestrator: DAP client, breakpoint/watch stores, and a jrpc2 command surface for a UI"
	app.Commands = []*cli.Command{
		serveCommand,
		validateConfigCommand,
	}
	return app
}

// logPrefix mirrors cmd/hlb/command/app.go's isatty check, used here to
// decide whether the log prefix gets an ANSI color wrapped around it
// instead of always being plain text.
func logPrefix(name string) string {
	if isatty.IsTerminal(os.Stderr.Fd()) {
		return "\x1b[36m" + name + "\x1b[0m: "
	}
	return name + ": "
}
