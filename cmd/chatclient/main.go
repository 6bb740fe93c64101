package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/urfave/cli/v3"

	"github.com/Tyrowin/gochat-presence/internal/chatclient"
	"github.com/Tyrowin/gochat-presence/internal/protocol"
)

const help = `commands:
  <text>                        send to the public room
  /msg <peer> <text>            send a private message
  /typing [peer]                signal typing (public when peer is omitted)
  /react <id> <emoji> [peer]    add a reaction (peer for private messages)
  /unreact <id> <emoji> [peer]  remove a reaction
  /who                          list online users
  /quit                         leave`

func main() {
	var (
		url      string
		origin   string
		name     string
		logLevel string
	)

	app := &cli.Command{
		Name:  "gochat-client",
		Usage: "Line-mode chat client",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "url",
				Usage:       "WebSocket endpoint of the server",
				Sources:     cli.EnvVars("GOCHAT_URL"),
				Value:       "ws://localhost:8080/ws",
				Destination: &url,
			},
			&cli.StringFlag{
				Name:        "origin",
				Usage:       "Origin header sent with the handshake",
				Value:       "http://localhost:8080",
				Destination: &origin,
			},
			&cli.StringFlag{
				Name:        "name",
				Aliases:     []string{"n"},
				Usage:       "display name",
				Required:    true,
				Destination: &name,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error)",
				Sources:     cli.EnvVars("GOCHAT_LOG_LEVEL"),
				Value:       "warn",
				Destination: &logLevel,
			},
		},
		Action: func(ctx context.Context, _ *cli.Command) error {
			level, err := zerolog.ParseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("failed to parse log level: %w", err)
			}
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level)

			c, err := chatclient.Dial(ctx, url, chatclient.WithOrigin(origin), chatclient.WithLogger(log.Logger))
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()
			return session(ctx, c, name, os.Stdin, os.Stdout)
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := app.Run(ctx, os.Args)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func session(ctx context.Context, c *chatclient.Client, name string, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(ctx) }()
	go func() {
		for fact := range c.Updates() {
			if line := render(fact); line != "" {
				fmt.Fprintln(out, line)
			}
		}
	}()

	if err := c.Join(name); err != nil {
		return err
	}
	fmt.Fprintln(out, help)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-runErr:
			return err
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := command(c, line, out)
			if err != nil {
				fmt.Fprintln(out, "error:", err)
			}
			if quit {
				return nil
			}
		}
	}
}

func command(c *chatclient.Client, line string, out io.Writer) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		return false, c.Send(line)
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit":
		return true, nil
	case "/who":
		names := lo.Map(c.View().Snapshot().Online, func(u protocol.User, _ int) string { return u.DisplayName })
		fmt.Fprintln(out, "online:", strings.Join(names, ", "))
		return false, nil
	case "/typing":
		return false, c.StartTyping(arg(fields, 1))
	case "/msg":
		if len(fields) < 3 {
			return false, fmt.Errorf("usage: /msg <peer> <text>")
		}
		_, rest, _ := strings.Cut(line, " ")
		peer, body, _ := strings.Cut(strings.TrimSpace(rest), " ")
		_, err := c.SendPrivate(peer, body)
		return false, err
	case "/react", "/unreact":
		if len(fields) < 3 {
			return false, fmt.Errorf("usage: %s <id> <emoji> [peer]", fields[0])
		}
		peer := arg(fields, 3)
		if fields[0] == "/react" {
			return false, c.AddReaction(fields[1], fields[2], peer)
		}
		return false, c.RemoveReaction(fields[1], fields[2], peer)
	default:
		return false, fmt.Errorf("unknown command %q", fields[0])
	}
}

func arg(fields []string, i int) string {
	if i < len(fields) {
		return fields[i]
	}
	return ""
}

func render(fact protocol.Fact) string {
	switch f := fact.(type) {
	case protocol.PublicMessage:
		return fmt.Sprintf("[%s] %s: %s  (%s)", f.Timestamp.Format("15:04"), f.From, f.Body, f.ID)
	case protocol.PrivateMessage:
		return fmt.Sprintf("[%s] %s -> %s: %s  (%s)", f.Timestamp.Format("15:04"), f.From, f.To, f.Body, f.ID)
	case protocol.MessageReaction:
		parts := lo.MapToSlice(f.Reactions, func(emoji string, names []string) string {
			return fmt.Sprintf("%s %d", emoji, len(names))
		})
		return fmt.Sprintf("reactions on %s: %s", f.MessageID, strings.Join(parts, " "))
	case protocol.Typing:
		if len(f.TypingUsers) == 0 {
			return ""
		}
		return strings.Join(f.TypingUsers, ", ") + " typing..."
	case protocol.PrivateTyping:
		if !f.IsTyping {
			return ""
		}
		return f.From + " is typing to you..."
	case protocol.UserJoined:
		return "* " + f.DisplayName + " joined"
	case protocol.UserLeft:
		return "* " + f.DisplayName + " left"
	}
	return ""
}
