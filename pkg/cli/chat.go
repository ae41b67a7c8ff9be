package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/m-mizutani/chack/pkg/model"
	"github.com/m-mizutani/chack/pkg/tool"
	"github.com/m-mizutani/chack/pkg/usecase/gateway"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

// replyBuffer collects the turn's replies so they print after the spinner
// stops.
type replyBuffer struct {
	texts []string
}

func (b *replyBuffer) Reply(ctx context.Context, reply *model.Reply) error {
	b.texts = append(b.texts, reply.Text)
	return nil
}

func chatCommand() *cli.Command {
	var (
		cfg    config
		chatID string
	)
	tools := defaultTools()

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "chat-id",
			Usage:       "Conversation ID, so separate sessions keep separate memory",
			Value:       "local",
			Sources:     cli.EnvVars("CHACK_CHAT_ID"),
			Destination: &chatID,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, backendFlags(&cfg)...)
	flags = append(flags, storeFlags(&cfg)...)
	flags = append(flags, tool.Flags(tools...)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Interactive conversation on the local console",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg.setupLogger()

			// The local console is always a permitted DM.
			orch, err := cfg.newOrchestrator(ctx, tools, func(gc *gateway.Config) {
				gc.Admission.AllowDMs = true
				gc.Admission.DMAllowlistIDs = nil
				gc.Admission.DMAllowlistUsernames = nil
				gc.Admission.DMUsernamePatterns = nil
				gc.Admission.DMRequirePatterns = nil
			})
			if err != nil {
				return err
			}

			rl, err := readline.New("you> ")
			if err != nil {
				return goerr.Wrap(err, "failed to initialize readline")
			}
			defer rl.Close()

			fmt.Println("Type a message, /reset to reset the conversation, exit to quit.")

			key := model.ConversationKey{Platform: "console", ChatID: chatID}
			for {
				line, err := rl.Readline()
				if err == readline.ErrInterrupt {
					continue
				}
				if err == io.EOF {
					return nil
				}
				if err != nil {
					return goerr.Wrap(err, "failed to read input")
				}

				line = strings.TrimSpace(line)
				switch {
				case line == "":
					continue
				case line == "exit" || line == "quit":
					return nil
				case line == "/reset":
					if err := orch.Reset(ctx, key); err != nil {
						fmt.Println("Reset failed:", err)
						continue
					}
					fmt.Println("Conversation reset.")
					continue
				}

				sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
				sp.Suffix = " thinking..."
				sp.Start()

				buf := &replyBuffer{}
				ev := &model.Event{
					Platform: "console",
					Kind:     model.ChatKindDM,
					ChatID:   chatID,
					SenderID: "console",
					Text:     line,
				}
				admitted := orch.HandleEvent(ctx, ev, buf)
				sp.Stop()

				if !admitted {
					fmt.Println("(message dropped by admission filter)")
					continue
				}
				for _, text := range buf.texts {
					fmt.Println("bot>", text)
				}
			}
		},
	}
}
