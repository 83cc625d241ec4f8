package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/convosec/keycore/cmd/app/commands"
)

func getSystemCommands(version string) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "scheduler",
			Usage: "Run the background auto-rotation and expiry scheduler",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunScheduler(ctx, version)
			},
		},
		{
			Name:  "migrate",
			Usage: "Run database migrations",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunMigrations()
			},
		},
		{
			Name:  "rotate-due",
			Usage: "Run one auto-rotation sweep pass and exit",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunAutoRotationSweep(ctx)
			},
		},
		{
			Name:  "expire-keys",
			Usage: "Run one expiry sweep pass and exit",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunExpirySweep(ctx)
			},
		},
		{
			Name:  "audit",
			Usage: "Query a tenant's audit trail",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "tenant",
					Aliases:  []string{"t"},
					Required: true,
					Usage:    "Tenant whose audit trail to query",
				},
				&cli.StringFlag{
					Name:    "operation",
					Aliases: []string{"op"},
					Value:   "",
					Usage:   "Filter by operation (KEY_GENERATE, KEY_ROTATE, KEY_REVOKE, ENCRYPT, DECRYPT, SESSION_KEY_EXCHANGE)",
				},
				&cli.StringFlag{
					Name:    "result",
					Aliases: []string{"r"},
					Value:   "",
					Usage:   "Filter by result (success, failure, denied)",
				},
				&cli.IntFlag{
					Name:    "offset",
					Aliases: []string{"o"},
					Value:   0,
					Usage:   "Pagination offset",
				},
				&cli.IntFlag{
					Name:    "limit",
					Aliases: []string{"l"},
					Value:   50,
					Usage:   "Page size",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunAuditQuery(
					ctx,
					cmd.String("tenant"),
					cmd.String("operation"),
					cmd.String("result"),
					int(cmd.Int("offset")),
					int(cmd.Int("limit")),
				)
			},
		},
		{
			Name:  "stats",
			Usage: "Show audited activity and key status breakdown for a tenant",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "tenant",
					Aliases:  []string{"t"},
					Required: true,
					Usage:    "Tenant to report on",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunAuditStats(ctx, cmd.String("tenant"))
			},
		},
	}
}
