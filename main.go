package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/edgeforge/nodeforge/internal/cmd"
	"github.com/edgeforge/nodeforge/internal/constants"
	"github.com/edgeforge/nodeforge/internal/utils"
	"github.com/edgeforge/nodeforge/internal/version"
)

// nodeforge turns arm64 single board computers into Kubernetes nodes.
func main() {
	app := cli.NewApp()
	app.Name = "nodeforge"
	app.Usage = "prepare single board computers as Kubernetes nodes"
	app.Version = version.GetVersion()
	app.Flags = []cli.Flag{
		&cli.BoolFlag{
			Name:    "debug",
			EnvVars: []string{"NODEFORGE_DEBUG"},
			Usage:   "verbose logging, also written to " + constants.LogDir,
		},
	}
	app.Before = func(c *cli.Context) error {
		utils.SetLogger(c.Bool("debug"))
		v := version.Get()
		utils.Log.Debug().Str("version", v.Version).Str("compiled with", v.GoVersion).Msg("nodeforge")
		return nil
	}
	app.Commands = append(cmd.Commands, &cli.Command{
		Name:  "version",
		Usage: "print version information",
		Action: func(c *cli.Context) error {
			v := version.Get()
			fmt.Fprintf(c.App.Writer, "nodeforge %s (%s)\n", v.Version, v.GoVersion)
			return nil
		},
	})

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
