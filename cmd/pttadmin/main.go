package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/darkjan1234/rpoiptt12/internal/config"
	"github.com/darkjan1234/rpoiptt12/internal/presence"
	"github.com/darkjan1234/rpoiptt12/internal/session"
	"github.com/darkjan1234/rpoiptt12/internal/storage"
)

const (
	// refreshWindow triggers a proactive token refresh before opening the
	// realtime connection.
	refreshWindow = 10 * time.Minute
	// watchInterval is how often the watch loop redraws and checks for a
	// superseded token.
	watchInterval = 2 * time.Second
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("pttadmin failed")
	}
}

func run() error {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if cfg.Debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	store := storage.NewStore(cfg.Home)
	mgr := session.New(cfg.ServerURL, store)

	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		return nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch args[0] {
	case "login":
		return loginCommand(ctx, mgr, args[1:])
	case "logout":
		mgr.Restore(ctx)
		mgr.Logout(ctx)
		return nil
	case "status":
		return statusCommand(ctx, mgr)
	case "users":
		return usersCommand(ctx, mgr)
	case "channels":
		return channelsCommand(ctx, mgr)
	case "watch":
		return watchCommand(ctx, cfg, store, mgr)
	case "help", "--help", "-h":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func loginCommand(ctx context.Context, mgr *session.Manager, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	username := fs.String("username", "", "admin username")
	password := fs.String("password", "", "admin password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" || *password == "" {
		return fmt.Errorf("both -username and -password are required")
	}

	if err := mgr.Login(ctx, *username, *password); err != nil {
		return err
	}
	user := mgr.CurrentUser()
	fmt.Printf("Logged in as %s (admin: %v)\n", user.Username, user.IsAdmin)
	return nil
}

func statusCommand(ctx context.Context, mgr *session.Manager) error {
	mgr.Restore(ctx)
	if mgr.State() != session.StateAuthenticated {
		fmt.Println("Not logged in")
		return nil
	}
	user := mgr.CurrentUser()
	fmt.Printf("Logged in as %s (id %d, admin: %v)\n", user.Username, user.ID, user.IsAdmin)
	return nil
}

func usersCommand(ctx context.Context, mgr *session.Manager) error {
	if err := requireSession(ctx, mgr); err != nil {
		return err
	}
	users, err := mgr.API().ListUsers(ctx)
	if err != nil {
		return err
	}
	for _, u := range users {
		fmt.Printf("%6d  %-20s admin=%-5v active=%v\n", u.ID, u.Username, u.IsAdmin, u.IsActive)
	}
	return nil
}

func channelsCommand(ctx context.Context, mgr *session.Manager) error {
	if err := requireSession(ctx, mgr); err != nil {
		return err
	}
	channels, err := mgr.API().ListChannels(ctx)
	if err != nil {
		return err
	}
	for _, ch := range channels {
		fmt.Printf("%6d  %-20s members=%-4d online=%-4d active=%v\n",
			ch.ID, ch.Name, ch.MemberCount, ch.OnlineUsers, ch.IsActive)
	}
	return nil
}

// watchCommand connects the presence stream and redraws roster snapshots
// until interrupted or the session ends.
func watchCommand(ctx context.Context, cfg *config.Config, store *storage.Store, mgr *session.Manager) error {
	if err := requireSession(ctx, mgr); err != nil {
		return err
	}

	clientID, err := store.ClientID()
	if err != nil {
		return err
	}
	if _, err := mgr.EnsureFreshToken(refreshWindow); err != nil {
		return err
	}

	stream := presence.NewStream(cfg.ServerURL, clientID, mgr)
	defer stream.Close()

	sessionEnded := make(chan struct{}, 1)
	mgr.OnStateChange(func(state session.State) {
		if state != session.StateAuthenticated {
			stream.Close()
			select {
			case sessionEnded <- struct{}{}:
			default:
			}
		}
	})

	if err := stream.Connect(); err != nil {
		return err
	}

	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sessionEnded:
			return fmt.Errorf("session ended; log in again")
		case <-ticker.C:
			// A token refresh mid-connection supersedes the bound token.
			if err := stream.Rebind(); err != nil {
				return err
			}
			printRoster(stream)
		}
	}
}

func printRoster(stream *presence.Stream) {
	fmt.Printf("--- %s | connected=%v ---\n", time.Now().Format(time.TimeOnly), stream.IsConnected())
	for _, entry := range stream.Roster() {
		mark := " "
		if entry.IsSpeaking {
			mark = "*"
		}
		fmt.Printf("%s %-20s channel=%-6d joined=%s\n",
			mark, entry.Username, entry.ChannelID, entry.JoinedAt.Format(time.TimeOnly))
	}
}

func requireSession(ctx context.Context, mgr *session.Manager) error {
	mgr.Restore(ctx)
	if mgr.State() != session.StateAuthenticated {
		return fmt.Errorf("not logged in; run `pttadmin login` first")
	}
	return nil
}

func printUsage() {
	fmt.Println(`pttadmin - PTT platform admin client

Usage:
  pttadmin login -username <name> -password <pass>
  pttadmin logout
  pttadmin status
  pttadmin users
  pttadmin channels
  pttadmin watch

Environment:
  PTTADMIN_SERVER_URL  API base URL (default http://localhost:5000)
  PTTADMIN_HOME        state directory (default ~/.pttadmin)
  PTTADMIN_LOG_LEVEL   trace|debug|info|warn|error
  PTTADMIN_DEBUG       force debug logging`)
}
