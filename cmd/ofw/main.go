// Package main is the ofw command line client: browser-assisted login,
// cached bearer sessions, and read access to folders and messages.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"

	"github.com/kherry/ofw-client/pkg/config"
	"github.com/kherry/ofw-client/pkg/logging"
)

const version = "0.1.0"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	app := cli.NewApp()
	app.Name = "ofw"
	app.HelpName = "ofw"
	app.Usage = "client for the OurFamilyWizard message platform"
	app.Version = version
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "path to a YAML config file",
		},
		cli.StringFlag{
			Name:  "account, a",
			Usage: "account identifier (defaults to the resolved username)",
		},
		cli.BoolFlag{
			Name:  "headed",
			Usage: "run the browser with a visible window",
		},
		cli.BoolFlag{
			Name:  "debug",
			Usage: "save screenshots of failed logins",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:   "login",
			Usage:  "force a fresh browser login and cache the token",
			Action: withContext(ctx, loginAction),
		},
		{
			Name:   "logout",
			Usage:  "end the remote session and purge the cached token",
			Action: withContext(ctx, logoutAction),
		},
		{
			Name:   "status",
			Usage:  "show the cached token and whether the server accepts it",
			Action: withContext(ctx, statusAction),
		},
		{
			Name:   "folders",
			Usage:  "list message folders with counts",
			Action: withContext(ctx, foldersAction),
		},
		{
			Name:   "messages",
			Usage:  "list messages in a folder",
			Action: withContext(ctx, messagesAction),
			Flags: []cli.Flag{
				cli.IntFlag{Name: "folder, f", Usage: "folder ID (default: inbox)"},
				cli.IntFlag{Name: "page, p", Value: 1, Usage: "page number"},
				cli.IntFlag{Name: "size, s", Value: 25, Usage: "page size (max 50)"},
				cli.StringFlag{Name: "match, m", Usage: "glob filter on subject or author"},
				cli.BoolFlag{Name: "unread, u", Usage: "only print the inbox unread count"},
			},
		},
		{
			Name:      "read",
			Usage:     "print one message",
			ArgsUsage: "<message-id>",
			Action:    withContext(ctx, readAction),
		},
		{
			Name:  "credentials",
			Usage: "manage credentials in the OS keyring",
			Subcommands: []cli.Command{
				{
					Name:   "set",
					Usage:  "prompt for credentials and store them",
					Action: credentialsSetAction,
				},
				{
					Name:   "clear",
					Usage:  "remove stored credentials",
					Action: credentialsClearAction,
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if dir, dirErr := logging.Dir(); dirErr == nil {
			fmt.Fprintf(os.Stderr, "logs: %s\n", dir)
		}
		os.Exit(1)
	}
}

// withContext threads the signal-cancelled context into command actions.
func withContext(ctx context.Context, action func(context.Context, *cli.Context) error) func(*cli.Context) error {
	return func(c *cli.Context) error {
		return action(ctx, c)
	}
}

// loadConfig builds the effective config from the --config file (or
// defaults) and the global flags.
func loadConfig(c *cli.Context) (*config.Config, error) {
	var cfg *config.Config
	if path := c.GlobalString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.DefaultConfig()
	}

	if c.GlobalBool("headed") {
		cfg.Headless = false
	}
	if c.GlobalBool("debug") {
		cfg.DebugScreenshots = true
	}
	return cfg, nil
}
