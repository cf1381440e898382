package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	shellquote "github.com/kballard/go-shellquote"
	cli "github.com/urfave/cli/v2"

	"github.com/dbgsession/core/launchconfig"
	"github.com/dbgsession/core/orchestrator"
	"github.com/dbgsession/core/rpc/uiserver"
)

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "run the orchestrator's jrpc2 command surface over stdio",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "logfile",
			Usage: "file to log output to (stderr if unset)",
		},
		&cli.StringFlag{
			Name:  "launch-config",
			Usage: "primary launch-config file path (written to, read first)",
			Value: ".dbgsession/launch.json",
		},
		&cli.StringFlag{
			Name:  "vscode-launch-config",
			Usage: "secondary launch-config file path, read (not copied) when the primary is absent",
			Value: ".vscode/launch.json",
		},
		&cli.StringSliceFlag{
			Name:  "adapter",
			Usage: "register a debug adapter as type=executable [args...], may be repeated",
		},
	},
	Action: serveAction,
}

func serveAction(c *cli.Context) error {
	logger := log.New(os.Stderr, logPrefix("dbgsessiond"), log.LstdFlags)
	if path := c.String("logfile"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("open logfile: %w", err)
		}
		defer f.Close()
		logger.SetOutput(f)
	}

	launcher, err := parseAdapterFlags(c.StringSlice("adapter"))
	if err != nil {
		return err
	}

	resolver := launchconfig.New(
		launchconfig.FileStore{Path: c.String("launch-config")},
		launchconfig.FileStore{Path: c.String("vscode-launch-config")},
	)

	orch := orchestrator.New(launcher, resolver, logger)
	server := uiserver.New(orch, logger)

	logger.Printf("listening on stdio")
	return server.Listen(context.Background(), os.Stdin, os.Stdout)
}

// parseAdapterFlags turns repeated --adapter type=executable [args...]
// flags into a orchestrator.StaticLauncher, splitting the executable
// part with shellquote so a quoted path with spaces survives, the same
// way launchconfig.RunPreLaunchTask avoids a shell string.
func parseAdapterFlags(specs []string) (orchestrator.StaticLauncher, error) {
	launcher := orchestrator.StaticLauncher{}
	for _, spec := range specs {
		parts := strings.SplitN(spec, "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid --adapter %q, want type=executable [args...]", spec)
		}
		argv, err := shellquote.Split(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid --adapter %q: %w", spec, err)
		}
		launcher[parts[0]] = argv
	}
	return launcher, nil
}
