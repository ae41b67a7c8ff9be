package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/chack/pkg/model"
	"github.com/urfave/cli/v3"
)

func memoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "memory",
		Usage: "Inspect or clear long-term memory",
		Commands: []*cli.Command{
			memoryShowCommand(),
			memoryResetCommand(),
		},
	}
}

func memoryKeyFlags(platformTag, chatID *string) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "platform",
			Usage:       "Platform tag of the conversation",
			Value:       "console",
			Destination: platformTag,
		},
		&cli.StringFlag{
			Name:        "chat-id",
			Usage:       "Conversation ID",
			Required:    true,
			Destination: chatID,
		},
	}
}

func memoryShowCommand() *cli.Command {
	var (
		cfg         config
		platformTag string
		chatID      string
	)

	flags := memoryKeyFlags(&platformTag, &chatID)
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, storeFlags(&cfg)...)

	return &cli.Command{
		Name:  "show",
		Usage: "Print the stored long-term memory of a conversation",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg.setupLogger()

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}

			key := model.ConversationKey{Platform: platformTag, ChatID: chatID}
			rec, err := repo.GetMemory(ctx, key)
			if err != nil {
				return err
			}
			if rec == nil {
				fmt.Println("No long-term memory for", key.String())
				return nil
			}

			fmt.Printf("Conversation: %s\nUpdated: %s\n\n%s\n",
				key.String(), rec.UpdatedAt.Format("2006-01-02 15:04:05"), rec.Summary)
			return nil
		},
	}
}

func memoryResetCommand() *cli.Command {
	var (
		cfg         config
		platformTag string
		chatID      string
	)

	flags := memoryKeyFlags(&platformTag, &chatID)
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, storeFlags(&cfg)...)

	return &cli.Command{
		Name:  "reset",
		Usage: "Delete the stored long-term memory of a conversation",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg.setupLogger()

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}

			key := model.ConversationKey{Platform: platformTag, ChatID: chatID}
			if err := repo.PutMemory(ctx, key, nil); err != nil {
				return err
			}

			fmt.Println("Long-term memory cleared for", key.String())
			return nil
		},
	}
}
