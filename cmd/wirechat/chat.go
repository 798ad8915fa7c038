package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-client/internal/chat"
	"github.com/vovakirdan/wirechat-client/internal/client"
	"github.com/vovakirdan/wirechat-client/internal/config"
	logpkg "github.com/vovakirdan/wirechat-client/internal/log"
	"github.com/vovakirdan/wirechat-client/internal/session"
)

const chatHelp = `commands:
  /msg <user> <text>           send a direct message
  /group <room> <text>         send to a room
  /create <room> [user,user]   create a room and invite users
  /members <room>              list room members
  /chats                       list chats
  /show <user|#room>           print a chat
  /quit                        log out and exit`

func newChatCommand() *cobra.Command {
	var (
		host     string
		port     int
		username string
		password string
		offline  bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Log in and chat from the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			bootLogger := logpkg.New("info")
			cfg, _, err := config.Load(bootLogger, configPath)
			if err != nil {
				return err
			}
			cfg.UpdateFrom(config.Config{Host: host, Port: port, LogLevel: logLevel})
			if err := cfg.Validate(); err != nil {
				return err
			}
			if username == "" {
				return errors.New("--user is required")
			}

			logger := logpkg.New(cfg.LogLevel)
			c := client.New(cfg, client.WithLogger(logger))

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if offline {
				err = c.SetLogin(username, password)
			} else {
				err = c.Login(ctx, username, password)
			}
			if err != nil {
				return err
			}
			defer c.Logout()

			events, cancel, err := c.Subscribe()
			if err != nil {
				return err
			}
			defer cancel()
			go printEvents(cmd.OutOrStdout(), username, events)

			fmt.Fprintln(cmd.OutOrStdout(), chatHelp)
			return repl(ctx, c, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "relay host")
	cmd.Flags().IntVar(&port, "port", 0, "relay port")
	cmd.Flags().StringVarP(&username, "user", "u", "", "username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password")
	cmd.Flags().BoolVar(&offline, "offline", false, "open stored chats without contacting the relay first")
	return cmd
}

func printEvents(out io.Writer, self string, events <-chan session.Event) {
	for ev := range events {
		switch ev.Kind {
		case session.EventMessageAdded:
			if ev.Message.From == self {
				continue
			}
			fmt.Fprintf(out, "[%s] %s: %s\n", label(ev.Chat), ev.Message.From, ev.Message.Content)
		case session.EventConnectionChanged:
			if ev.Online {
				fmt.Fprintln(out, "* online")
			} else {
				fmt.Fprintln(out, "* offline, reconnecting")
			}
		case session.EventAuthRejected:
			fmt.Fprintln(out, "* the relay keeps rejecting the stored credentials")
		case session.EventChatsChanged:
			fmt.Fprintf(out, "* new chat %s\n", label(ev.Chat))
		}
	}
}

func label(c chat.Chat) string {
	if c == nil {
		return "?"
	}
	if c.Kind() == chat.KindMultiUser {
		return "#" + c.Name()
	}
	return c.Name()
}

func repl(ctx context.Context, c *client.Client, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := execute(ctx, c, strings.TrimSpace(line), out)
			if err != nil {
				fmt.Fprintln(out, "error:", err)
			}
			if quit {
				return nil
			}
		}
	}
}

func execute(ctx context.Context, c *client.Client, line string, out io.Writer) (bool, error) {
	if line == "" {
		return false, nil
	}
	fields := strings.SplitN(line, " ", 3)

	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch fields[0] {
	case "/quit":
		return true, nil
	case "/msg":
		if len(fields) < 3 {
			return false, errors.New("usage: /msg <user> <text>")
		}
		return false, c.SendMessage(reqCtx, fields[1], fields[2])
	case "/group":
		if len(fields) < 3 {
			return false, errors.New("usage: /group <room> <text>")
		}
		return false, c.SendGroupMessage(reqCtx, fields[1], fields[2])
	case "/create":
		if len(fields) < 2 {
			return false, errors.New("usage: /create <room> [user,user]")
		}
		var invitees []string
		if len(fields) == 3 {
			invitees = strings.Split(fields[2], ",")
		}
		return false, c.CreateGroup(reqCtx, fields[1], invitees)
	case "/members":
		if len(fields) < 2 {
			return false, errors.New("usage: /members <room>")
		}
		members, err := c.Members(reqCtx, fields[1])
		if err != nil {
			return false, err
		}
		fmt.Fprintln(out, strings.Join(members, ", "))
		return false, nil
	case "/chats":
		for _, ch := range c.Chats() {
			fmt.Fprintf(out, "%-20s %d messages\n", label(ch), len(ch.Messages()))
		}
		return false, nil
	case "/show":
		if len(fields) < 2 {
			return false, errors.New("usage: /show <user|#room>")
		}
		kind, name := chat.KindSingleUser, fields[1]
		if strings.HasPrefix(name, "#") {
			kind, name = chat.KindMultiUser, strings.TrimPrefix(name, "#")
		}
		for _, ch := range c.Chats() {
			if ch.Kind() != kind || ch.Name() != name {
				continue
			}
			for _, m := range ch.Messages() {
				fmt.Fprintf(out, "%s %s: %s\n", time.UnixMilli(m.Time).Format("15:04"), m.From, m.Content)
			}
			return false, nil
		}
		return false, fmt.Errorf("no chat %s", fields[1])
	default:
		fmt.Fprintln(out, chatHelp)
		return false, nil
	}
}
