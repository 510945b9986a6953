// Command vesta-watch logs in to a Vesta server and prints notifications
// and chat messages as they arrive.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"vesta/internal/api"
	"vesta/internal/config"
	"vesta/internal/inbox"
	"vesta/internal/logging"
	"vesta/internal/realtime"
	"vesta/internal/session"
	"vesta/internal/store"
	"vesta/internal/topics"
)

type options struct {
	server      string
	email       string
	password    string
	sessionPath string
	logout      bool
	logLevel    string
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "vesta-watch:", err)
		os.Exit(2)
	}

	logger := logging.New(config.LoggingConfig{Level: opts.logLevel, Format: "text"}, os.Stderr)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout, logger); err != nil {
		fmt.Fprintln(os.Stderr, "vesta-watch:", api.UserMessage(err))
		logger.Debug("run failed", "error", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, out io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("vesta-watch", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&o.server, "server", envOr("VESTA_SERVER", "http://localhost:8080"), "Server base URL")
	fs.StringVar(&o.email, "email", os.Getenv("VESTA_EMAIL"), "Log in with this email instead of the saved session")
	fs.StringVar(&o.password, "password", os.Getenv("VESTA_PASSWORD"), "Password for -email")
	fs.StringVar(&o.sessionPath, "session", "", "Session file (default: user config dir)")
	fs.BoolVar(&o.logout, "logout", false, "Forget the saved session and exit")
	fs.StringVar(&o.logLevel, "log-level", envOr("LOG_LEVEL", "warn"), "Log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.email != "" && o.password == "" {
		return o, errors.New("-password (or VESTA_PASSWORD) is required with -email")
	}
	o.server = strings.TrimRight(o.server, "/")
	return o, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// websocketURL maps http(s)://host to ws(s)://host/ws
func websocketURL(server string) string {
	switch {
	case strings.HasPrefix(server, "https://"):
		return "wss://" + strings.TrimPrefix(server, "https://") + "/ws"
	case strings.HasPrefix(server, "http://"):
		return "ws://" + strings.TrimPrefix(server, "http://") + "/ws"
	}
	return server + "/ws"
}

func run(ctx context.Context, o options, out io.Writer, logger *slog.Logger) error {
	path := o.sessionPath
	if path == "" {
		var err error
		if path, err = session.DefaultPath(); err != nil {
			return err
		}
	}
	sess, err := session.Open(path)
	if err != nil {
		return err
	}
	if o.logout {
		return sess.Clear()
	}

	client := api.New(o.server,
		api.WithTokenSource(sess.Token),
		api.WithLogger(logger),
		api.WithOnUnauthorized(func() {
			logger.Warn("session expired, clearing saved login")
			if err := sess.Clear(); err != nil {
				logger.Error("clear session", "error", err)
			}
		}),
	)

	me, err := login(ctx, client, sess, o)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Logged in as %s <%s>\n", me.Name, me.Email)

	notes := inbox.NewNotificationCenter(client, logger)
	convs := inbox.NewConversations(client, me.ID, logger)
	notes.SetConversationOpen(convs.IsOpen)
	if err := notes.Load(ctx); err != nil {
		return err
	}
	if err := convs.Load(ctx); err != nil {
		return err
	}
	printSummary(out, notes, convs)

	onNotification := func(dest string, body json.RawMessage) {
		notes.HandlePush(dest, body)
		var n store.Notification
		if json.Unmarshal(body, &n) == nil {
			fmt.Fprintf(out, "[%s] %s: %s  (unread %d)\n",
				n.CreatedAt.Local().Format(time.Kitchen), n.Title, n.Body, notes.Unread())
		}
	}
	onMessage := func(dest string, body json.RawMessage) {
		convs.HandlePush(dest, body)
		var m store.Message
		if json.Unmarshal(body, &m) == nil {
			fmt.Fprintf(out, "[%s] message in %s: %s  (unread messages %d)\n",
				m.CreatedAt.Local().Format(time.Kitchen), m.ConversationID, m.Content, convs.TotalUnread())
		}
	}

	var m *realtime.Manager
	var connects atomic.Int32
	subscribe := func() {
		m.Subscribe(topics.Notifications(me.ID), onNotification)
		m.Subscribe(topics.Messages(me.ID), onMessage)
	}
	m = realtime.New(realtime.Options{
		URL:    websocketURL(o.server),
		Token:  sess.Token,
		Logger: logger,
		OnConnect: func() {
			// the first connection flushes the queued subscriptions
			if connects.Add(1) > 1 {
				subscribe()
			}
		},
	})
	subscribe()
	m.Connect(ctx)
	defer m.Disconnect()

	fmt.Fprintln(out, "Watching for events, press Ctrl+C to stop.")
	<-ctx.Done()
	return nil
}

// login reuses the saved session unless credentials were given
func login(ctx context.Context, client *api.Client, sess *session.Session, o options) (*store.User, error) {
	if o.email == "" && sess.LoggedIn() {
		me, err := client.Me(ctx)
		if err == nil {
			return me, sess.Save(sess.Token(), me)
		}
		if !api.IsStatus(err, 401) {
			return nil, err
		}
		return nil, errors.New("saved session expired, log in again with -email")
	}
	if o.email == "" {
		return nil, errors.New("not logged in, pass -email and -password")
	}

	res, err := client.Login(ctx, o.email, o.password)
	if err != nil {
		return nil, err
	}
	if err := sess.Save(res.Token, res.User); err != nil {
		return nil, err
	}
	return res.User, nil
}

func printSummary(out io.Writer, notes *inbox.NotificationCenter, convs *inbox.Conversations) {
	fmt.Fprintf(out, "%d unread notifications, %d unread messages\n", notes.Unread(), convs.TotalUnread())
	for _, c := range convs.List() {
		last := ""
		if c.LastMessage != nil {
			last = c.LastMessage.Content
		}
		fmt.Fprintf(out, "  %-24s %-20s %3d  %s\n", c.ListingTitle, c.OtherUser.Name, c.UnreadCount, last)
	}
}
