package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/northlane/livechat-server/internal/chat"
	"github.com/northlane/livechat-server/internal/chatclient"
)

const adminHelp = `commands:
  /list                     open sessions, most recent first
  /history <sessionId>      show a session's timeline
  /reply <sessionId> <text> answer a visitor
  /close <sessionId>        close a session`

func newAdminCmd() *cobra.Command {
	var token, password, displayName string

	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Answer visitors from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			api, err := newAPIClient(serverURL)
			if err != nil {
				return err
			}
			if token == "" {
				if password == "" {
					return fmt.Errorf("either --token or --password is required")
				}
				if token, err = api.login(ctx, password, displayName); err != nil {
					return err
				}
			}
			api.token = token

			cfg := chatclient.AdminConfig{Options: baseOptions(), Token: token}
			cfg.OnFrame = printAdminFrame
			a := chatclient.NewAdmin(cfg)

			if err := preload(ctx, api, a); err != nil {
				fmt.Fprintf(os.Stderr, "! could not load sessions: %v\n", err)
			}

			go a.Run(ctx)
			fmt.Fprintln(os.Stderr, adminHelp)

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
					runAdminCommand(a, strings.TrimSpace(line))
				}
			}
		},
	}

	cmd.Flags().StringVar(&token, "token", os.Getenv("LIVECHAT_ADMIN_TOKEN"), "admin bearer token")
	cmd.Flags().StringVar(&password, "password", "", "admin password (logs in when no token is given)")
	cmd.Flags().StringVar(&displayName, "name", "", "display name shown to visitors")
	return cmd
}

func preload(ctx context.Context, api *apiClient, a *chatclient.Admin) error {
	sessions, err := api.openSessions(ctx)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		history, err := api.messages(ctx, s.ID)
		if err != nil {
			return err
		}
		a.Load(s, history)
	}
	return nil
}

func runAdminCommand(a *chatclient.Admin, line string) {
	if line == "" {
		return
	}
	fields := strings.SplitN(line, " ", 3)

	switch fields[0] {
	case "/list":
		for _, s := range a.Sessions() {
			fmt.Printf("%s  %-6s  %s  %s\n", s.ID, s.Status, stamp(s.LastMessageAt), s.VisitorID)
		}
	case "/history":
		if len(fields) < 2 {
			fmt.Fprintln(os.Stderr, adminHelp)
			return
		}
		for _, e := range a.Timeline(fields[1]).Entries() {
			mark := ""
			if e.Failed {
				mark = " (not sent)"
			} else if e.Pending {
				mark = " (sending)"
			}
			fmt.Printf("[%s] %s: %s%s\n", stamp(e.Message.CreatedAt), e.Message.SenderType, e.Message.Message, mark)
		}
	case "/reply", "/r":
		if len(fields) < 3 {
			fmt.Fprintln(os.Stderr, adminHelp)
			return
		}
		if _, err := a.Reply(fields[1], fields[2]); err != nil {
			fmt.Fprintf(os.Stderr, "! not sent: %v\n", err)
		}
	case "/close":
		if len(fields) < 2 {
			fmt.Fprintln(os.Stderr, adminHelp)
			return
		}
		if err := a.CloseSession(fields[1]); err != nil {
			fmt.Fprintf(os.Stderr, "! close failed: %v\n", err)
		}
	default:
		fmt.Fprintln(os.Stderr, adminHelp)
	}
}

func printAdminFrame(f chatclient.Frame) {
	switch f.Type {
	case chat.TypeNewMessage:
		if f.Message != nil {
			fmt.Printf("<%s> ", f.Message.SessionID)
			printMessage(*f.Message)
		}
	case chat.TypeSessionClosed:
		if f.Session != nil {
			fmt.Printf("* session %s closed\n", f.Session.ID)
		}
	case chat.TypeError:
		fmt.Fprintf(os.Stderr, "! server error %s\n", f.Code)
	}
}
