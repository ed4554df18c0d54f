package main

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli"
)

type BuildArgs struct {
	Version string
	Commit  string
	Date    string
}

const defaultConfig = "waked.yaml"

var configFlag = cli.StringFlag{
	Name:   "config, c",
	Usage:  "path to the config file (yaml or json)",
	Value:  defaultConfig,
	EnvVar: "WAKED_CONFIG",
}

func Execute(args []string, bArgs BuildArgs) error {
	return newApp(bArgs, os.Stdout).Run(args)
}

func newApp(bArgs BuildArgs, out io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = "waked"
	app.HelpName = "waked"
	app.Usage = "run commands on self-adjusting timers that pause across system suspend"
	app.UsageText = "waked <command> [arguments...]"
	app.Version = fmt.Sprintf("%s (%s, %s)", bArgs.Version, bArgs.Commit, bArgs.Date)
	app.Writer = out
	app.Commands = []cli.Command{
		{
			Name:   "run",
			Usage:  "run the daemon until SIGINT or SIGTERM",
			Flags:  []cli.Flag{configFlag},
			Action: run,
		},
		{
			Name:   "check",
			Usage:  "validate the config and print every timer's parsed interval",
			Flags:  []cli.Flag{configFlag},
			Action: check,
		},
		{
			Name:  "history",
			Usage: "print recent rounds from the journal",
			Flags: []cli.Flag{
				configFlag,
				cli.IntFlag{
					Name:  "limit, n",
					Usage: "maximum number of rounds to print (0 prints all)",
					Value: 20,
				},
				cli.StringFlag{
					Name:  "timer, t",
					Usage: "only print rounds of this timer",
				},
			},
			Action: history,
		},
	}
	return app
}
