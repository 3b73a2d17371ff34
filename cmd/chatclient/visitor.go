package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/northlane/livechat-server/internal/chat"
	"github.com/northlane/livechat-server/internal/chatclient"
	"github.com/northlane/livechat-server/internal/model"
)

func newVisitorCmd() *cobra.Command {
	var visitorID, name, email string

	cmd := &cobra.Command{
		Use:   "visitor",
		Short: "Chat as a site visitor; each input line is sent as a message",
		RunE: func(cmd *cobra.Command, args []string) error {
			if visitorID == "" {
				visitorID = uuid.NewString()
				fmt.Fprintf(os.Stderr, "* visitor id %s\n", visitorID)
			}

			cfg := chatclient.VisitorConfig{Options: baseOptions(), VisitorID: visitorID}
			if name != "" {
				cfg.VisitorName = &name
			}
			if email != "" {
				cfg.VisitorEmail = &email
			}
			cfg.OnFrame = printVisitorFrame

			v := chatclient.NewVisitor(cfg)
			v.OpenPanel()

			ctx, cancel := signalContext()
			defer cancel()
			go v.Run(ctx)

			lines := make(chan string)
			go func() {
				scanner := bufio.NewScanner(os.Stdin)
				for scanner.Scan() {
					lines <- scanner.Text()
				}
				cancel()
			}()

			for {
				select {
				case <-ctx.Done():
					return nil
				case line := <-lines:
					line = strings.TrimSpace(line)
					if line == "" {
						continue
					}
					if _, err := v.Send(line); err != nil {
						fmt.Fprintf(os.Stderr, "! not sent: %v\n", err)
					}
				}
			}
		},
	}

	cmd.Flags().StringVar(&visitorID, "id", "", "visitor id to resume (random when empty)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "contact email")
	return cmd
}

func printVisitorFrame(f chatclient.Frame) {
	switch f.Type {
	case chat.TypeSessionStarted:
		if f.Session == nil {
			return
		}
		fmt.Printf("* session %s (%d earlier messages)\n", f.Session.ID, len(f.Messages))
		for _, m := range f.Messages {
			printMessage(m)
		}
	case chat.TypeNewMessage:
		if f.Message != nil {
			printMessage(*f.Message)
		}
	case chat.TypeSessionClosed:
		fmt.Println("* the conversation was closed; your next message starts a new one")
	case chat.TypeError:
		fmt.Fprintf(os.Stderr, "! server error %s\n", f.Code)
	}
}

func printMessage(m model.ChatMessage) {
	who := string(m.SenderType)
	if m.SenderName != nil && *m.SenderName != "" {
		who = *m.SenderName
	}
	fmt.Printf("[%s] %s: %s\n", stamp(m.CreatedAt), who, m.Message)
}
