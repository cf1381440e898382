package main

import (
	"context"
	"fmt"

	cli "github.com/urfave/cli/v2"

	"github.com/dbgsession/core/launchconfig"
)

var validateConfigCommand = &cli.Command{
	Name:      "validate-config",
	Usage:     "parse a launch-config file and report every configuration it defines",
	ArgsUsage: "<path>",
	Action:    validateConfigAction,
}

func validateConfigAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("validate-config: want exactly one path argument")
	}
	path := c.Args().First()

	resolver := launchconfig.New(launchconfig.FileStore{Path: path}, nil)
	file, err := resolver.Read(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("version %s\n", file.Version)
	for _, cfg := range file.Configurations {
		fmt.Printf("configuration %q: type=%s request=%s preLaunchTask=%q\n", cfg.Name, cfg.Type, cfg.Request, cfg.PreLaunchTask)
	}
	for _, compound := range file.Compounds {
		fmt.Printf("compound %q: %v (stopAll=%v)\n", compound.Name, compound.Configurations, compound.StopAll)
	}
	return nil
}
