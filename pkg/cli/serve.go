package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/m-mizutani/chack/pkg/platform"
	"github.com/m-mizutani/chack/pkg/tool"
	"github.com/urfave/cli/v3"
)

func serveCommand() *cli.Command {
	var (
		cfg  config
		addr string
	)
	tools := defaultTools()

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "Listen address",
			Value:       ":8080",
			Sources:     cli.EnvVars("CHACK_ADDR"),
			Destination: &addr,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, backendFlags(&cfg)...)
	flags = append(flags, storeFlags(&cfg)...)
	flags = append(flags, tool.Flags(tools...)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Run the gateway HTTP server",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg.setupLogger()

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			orch, err := cfg.newOrchestrator(ctx, tools)
			if err != nil {
				return err
			}

			return platform.NewServer(addr, orch).Start(ctx)
		},
	}
}
