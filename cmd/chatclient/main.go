package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/northlane/livechat-server/internal/chatclient"
)

var (
	serverURL string
	verbose   bool
	fixed     bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "chatclient",
		Short: "Terminal client for the live chat server",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := zerolog.WarnLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).Level(level)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", envOr("LIVECHAT_SERVER", "ws://localhost:8080/ws/chat"), "websocket endpoint")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log connection details")
	rootCmd.PersistentFlags().BoolVar(&fixed, "fixed-backoff", false, "reconnect every 3s instead of exponential backoff")

	rootCmd.AddCommand(newVisitorCmd(), newAdminCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func baseOptions() chatclient.Options {
	var backoff chatclient.Backoff = chatclient.DefaultBackoff()
	if fixed {
		backoff = chatclient.FixedBackoff{}
	}
	return chatclient.Options{
		ServerURL: serverURL,
		Backoff:   backoff,
		OnStatus: func(s chatclient.Status) {
			fmt.Fprintf(os.Stderr, "* %s\n", s)
		},
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func stamp(t time.Time) string {
	return t.Local().Format("15:04:05")
}
