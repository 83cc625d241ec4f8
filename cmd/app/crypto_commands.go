package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/convosec/keycore/cmd/app/commands"
)

func getCryptoCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "encrypt",
			Usage: "Encrypt a plaintext and print the {ciphertext, iv, auth_tag} triple",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "tenant",
					Aliases:  []string{"t"},
					Required: true,
					Usage:    "Tenant performing the operation",
				},
				&cli.StringFlag{
					Name:    "key-id",
					Aliases: []string{"k"},
					Value:   "",
					Usage:   "Explicit key ID; omit to use the tenant's default data key",
				},
				&cli.StringFlag{
					Name:    "conversation",
					Aliases: []string{"c"},
					Value:   "",
					Usage:   "Conversation ID; selects the conversation's session key",
				},
				&cli.StringFlag{
					Name:     "plaintext",
					Aliases:  []string{"p"},
					Required: true,
					Usage:    "Plaintext to encrypt",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunEncrypt(
					ctx,
					cmd.String("tenant"),
					cmd.String("key-id"),
					cmd.String("conversation"),
					cmd.String("plaintext"),
				)
			},
		},
		{
			Name:  "decrypt",
			Usage: "Authenticate and decrypt a base64-encoded {ciphertext, iv, auth_tag} triple",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "tenant",
					Aliases:  []string{"t"},
					Required: true,
					Usage:    "Tenant performing the operation",
				},
				&cli.StringFlag{
					Name:     "key-id",
					Aliases:  []string{"k"},
					Required: true,
					Usage:    "Key ID the data was encrypted with",
				},
				&cli.IntFlag{
					Name:    "key-version",
					Aliases: []string{"v"},
					Value:   0,
					Usage:   "Key version for data encrypted before a rotation; 0 means the record itself",
				},
				&cli.StringFlag{
					Name:     "ciphertext",
					Required: true,
					Usage:    "Base64-encoded ciphertext",
				},
				&cli.StringFlag{
					Name:     "iv",
					Required: true,
					Usage:    "Base64-encoded initialization vector",
				},
				&cli.StringFlag{
					Name:     "auth-tag",
					Required: true,
					Usage:    "Base64-encoded authentication tag",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunDecrypt(
					ctx,
					cmd.String("tenant"),
					cmd.String("key-id"),
					int(cmd.Int("key-version")),
					cmd.String("ciphertext"),
					cmd.String("iv"),
					cmd.String("auth-tag"),
				)
			},
		},
		{
			Name:  "init-session",
			Usage: "Ensure a conversation has an active session key",
			Flags: sessionFlags(),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunInitSession(ctx, cmd.String("tenant"), cmd.String("conversation"))
			},
		},
		{
			Name:  "exchange-session",
			Usage: "Perform an audited session key exchange for a conversation",
			Flags: sessionFlags(),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunExchangeSession(ctx, cmd.String("tenant"), cmd.String("conversation"))
			},
		},
		{
			Name:  "session-info",
			Usage: "Show a conversation's session key metadata",
			Flags: sessionFlags(),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunSessionInfo(ctx, cmd.String("tenant"), cmd.String("conversation"))
			},
		},
	}
}

func sessionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "tenant",
			Aliases:  []string{"t"},
			Required: true,
			Usage:    "Tenant the conversation belongs to",
		},
		&cli.StringFlag{
			Name:     "conversation",
			Aliases:  []string{"c"},
			Required: true,
			Usage:    "Conversation ID",
		},
	}
}
