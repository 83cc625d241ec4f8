package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/convosec/keycore/cmd/app/commands"
)

func getKeyCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "create-key",
			Usage: "Create a new encryption key for a tenant",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "tenant",
					Aliases:  []string{"t"},
					Required: true,
					Usage:    "Tenant the key belongs to",
				},
				&cli.StringFlag{
					Name:     "name",
					Aliases:  []string{"n"},
					Required: true,
					Usage:    "Human-readable key name",
				},
				&cli.StringFlag{
					Name:    "type",
					Value:   "data",
					Usage:   "Key type: master, data, or session",
				},
				&cli.StringFlag{
					Name:    "algorithm",
					Aliases: []string{"alg"},
					Value:   "",
					Usage:   "Encryption algorithm (aes-256-gcm, aes-256-cbc, chacha20-poly1305); empty uses the configured default",
				},
				&cli.StringFlag{
					Name:    "conversation",
					Aliases: []string{"c"},
					Value:   "",
					Usage:   "Conversation ID (required for session keys)",
				},
				&cli.IntFlag{
					Name:    "valid-days",
					Value:   0,
					Usage:   "Validity window in days; 0 means no expiry",
				},
				&cli.BoolFlag{
					Name:  "auto-rotate",
					Value: false,
					Usage: "Enable automatic rotation for this key",
				},
				&cli.IntFlag{
					Name:  "rotation-interval-days",
					Value: 0,
					Usage: "Days between automatic rotations (required with --auto-rotate)",
				},
				&cli.StringFlag{
					Name:  "created-by",
					Value: "",
					Usage: "Actor recorded in the audit trail",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunCreateKey(ctx, commands.CreateKeyOptions{
					TenantID:             cmd.String("tenant"),
					Name:                 cmd.String("name"),
					KeyType:              cmd.String("type"),
					Algorithm:            cmd.String("algorithm"),
					ConversationID:       cmd.String("conversation"),
					ValidDays:            int(cmd.Int("valid-days")),
					AutoRotate:           cmd.Bool("auto-rotate"),
					RotationIntervalDays: int(cmd.Int("rotation-interval-days")),
					CreatedBy:            cmd.String("created-by"),
				})
			},
		},
		{
			Name:  "rotate-key",
			Usage: "Rotate a key to a new version with fresh material",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "tenant",
					Aliases:  []string{"t"},
					Required: true,
					Usage:    "Tenant the key belongs to",
				},
				&cli.StringFlag{
					Name:     "id",
					Aliases:  []string{"i"},
					Required: true,
					Usage:    "Key ID (UUID)",
				},
				&cli.StringFlag{
					Name:    "reason",
					Aliases: []string{"r"},
					Value:   "",
					Usage:   "Reason recorded in the audit trail",
				},
				&cli.BoolFlag{
					Name:  "expire-old",
					Value: false,
					Usage: "Retire the old version as expired instead of rotated",
				},
				&cli.StringFlag{
					Name:  "performed-by",
					Value: "",
					Usage: "Actor recorded in the audit trail",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunRotateKey(
					ctx,
					cmd.String("tenant"),
					cmd.String("id"),
					cmd.String("reason"),
					cmd.Bool("expire-old"),
					cmd.String("performed-by"),
				)
			},
		},
		{
			Name:  "revoke-key",
			Usage: "Permanently revoke a key; revoked keys can neither encrypt nor decrypt",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "tenant",
					Aliases:  []string{"t"},
					Required: true,
					Usage:    "Tenant the key belongs to",
				},
				&cli.StringFlag{
					Name:     "id",
					Aliases:  []string{"i"},
					Required: true,
					Usage:    "Key ID (UUID)",
				},
				&cli.StringFlag{
					Name:     "reason",
					Aliases:  []string{"r"},
					Required: true,
					Usage:    "Reason recorded on the key and in the audit trail",
				},
				&cli.StringFlag{
					Name:  "performed-by",
					Value: "",
					Usage: "Actor recorded in the audit trail",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunRevokeKey(
					ctx,
					cmd.String("tenant"),
					cmd.String("id"),
					cmd.String("reason"),
					cmd.String("performed-by"),
				)
			},
		},
		{
			Name:  "list-keys",
			Usage: "List a tenant's key records",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "tenant",
					Aliases:  []string{"t"},
					Required: true,
					Usage:    "Tenant whose keys to list",
				},
				&cli.StringFlag{
					Name:  "type",
					Value: "",
					Usage: "Filter by key type: master, data, or session",
				},
				&cli.StringFlag{
					Name:  "status",
					Value: "",
					Usage: "Filter by status: active, rotated, revoked, or expired",
				},
				&cli.StringFlag{
					Name:    "conversation",
					Aliases: []string{"c"},
					Value:   "",
					Usage:   "Filter by conversation ID",
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
				return commands.RunListKeys(
					ctx,
					cmd.String("tenant"),
					cmd.String("type"),
					cmd.String("status"),
					cmd.String("conversation"),
					int(cmd.Int("offset")),
					int(cmd.Int("limit")),
				)
			},
		},
	}
}
