package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"time"

	"github.com/chattyhq/chatty-cli/internal/api"
	"github.com/chattyhq/chatty-cli/internal/config"
	"github.com/chattyhq/chatty-cli/internal/notify"
	"github.com/chattyhq/chatty-cli/internal/session"
	"github.com/chattyhq/chatty-cli/internal/storage"
	"github.com/chattyhq/chatty-cli/internal/version"
	"github.com/chattyhq/chatty-cli/internal/websocket"
	"github.com/chattyhq/chatty-cli/pkg/logger"
	"github.com/chattyhq/chatty-cli/pkg/types"
)

func main() {
	if err := run(); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.LogLevel != "" {
		level, err := logger.ParseLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger.SetLevel(level)
	} else if cfg.Debug {
		logger.SetLevel(logger.LevelDebug)
	}

	if cfg.Debug {
		logger.Debugf("config: ServerURL=%s ChattyHome=%s AuthMode=%s", cfg.ServerURL, cfg.ChattyHome, cfg.AuthMode)
	}

	creds := storage.NewCredentials(cfg.CredentialsFile)
	apiClient := api.New(cfg, creds)
	defer apiClient.Close()
	channel := websocket.NewClient(cfg.ServerURL, cfg.Debug)
	mgr := session.NewManager(apiClient, creds, channel, notify.NewConsole(), cfg.AuthMode)

	ctx := context.Background()

	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		return nil
	}

	switch args[0] {
	case "signup":
		return signupCommand(ctx, mgr)
	case "login":
		return loginCommand(ctx, mgr)
	case "logout":
		mgr.Logout(ctx)
		return nil
	case "whoami":
		return whoamiCommand(ctx, mgr, creds)
	case "profile":
		return profileCommand(ctx, mgr, args[1:])
	case "online":
		return onlineCommand(ctx, mgr)
	case "version", "--version", "-v":
		fmt.Println("chatty " + version.RichVersion())
		return nil
	case "help", "--help", "-h":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func signupCommand(ctx context.Context, mgr *session.Manager) error {
	fullName, err := promptLine("Full name: ")
	if err != nil {
		return err
	}
	email, err := promptLine("Email: ")
	if err != nil {
		return err
	}
	password, err := promptPassword("Password: ")
	if err != nil {
		return err
	}

	if err := mgr.Signup(ctx, types.SignupRequest{FullName: fullName, Email: email, Password: password}); err != nil {
		return err
	}
	mgr.DisconnectSocket()
	return nil
}

func loginCommand(ctx context.Context, mgr *session.Manager) error {
	email, err := promptLine("Email: ")
	if err != nil {
		return err
	}
	password, err := promptPassword("Password: ")
	if err != nil {
		return err
	}

	if err := mgr.Login(ctx, types.LoginRequest{Email: email, Password: password}); err != nil {
		return err
	}
	mgr.DisconnectSocket()
	return nil
}

func whoamiCommand(ctx context.Context, mgr *session.Manager, creds *storage.Credentials) error {
	mgr.CheckAuth(ctx)
	mgr.DisconnectSocket()

	st := mgr.Snapshot()
	if st.User == nil {
		fmt.Println("Not logged in. Run `chatty login` first.")
		return nil
	}

	fmt.Printf("Logged in as %s <%s> (id %s)\n", st.User.FullName, st.User.Email, st.User.ID)
	if token, ok := creds.Get(); ok {
		if exp, ok := storage.ExpiresAt(token); ok {
			fmt.Printf("Session expires %s\n", exp.Format(time.RFC1123))
		}
	}
	return nil
}

func profileCommand(ctx context.Context, mgr *session.Manager, args []string) error {
	flags := flag.NewFlagSet("profile", flag.ContinueOnError)
	name := flags.String("name", "", "new full name")
	pic := flags.String("pic", "", "path to a new profile picture")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *name == "" && *pic == "" {
		return fmt.Errorf("nothing to update: pass -name and/or -pic")
	}

	mgr.CheckAuth(ctx)
	mgr.DisconnectSocket()
	if !mgr.IsAuthenticated() {
		return fmt.Errorf("not logged in; run `chatty login` first")
	}

	req := types.UpdateProfileRequest{FullName: *name}
	if *pic != "" {
		dataURL, err := profilePicDataURL(*pic)
		if err != nil {
			return err
		}
		req.ProfilePic = dataURL
	}

	return mgr.UpdateProfile(ctx, req)
}

func onlineCommand(ctx context.Context, mgr *session.Manager) error {
	mgr.CheckAuth(ctx)
	if !mgr.IsAuthenticated() {
		return fmt.Errorf("not logged in; run `chatty login` first")
	}
	defer mgr.DisconnectSocket()

	fmt.Println("Watching online users (Ctrl-C to stop)...")

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var last []string
	for {
		select {
		case <-interrupt:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			ids := mgr.Snapshot().OnlineUserIDs
			if slices.Equal(ids, last) {
				continue
			}
			last = ids
			if len(ids) == 0 {
				fmt.Println("online: (nobody)")
				continue
			}
			fmt.Printf("online (%d): %v\n", len(ids), ids)
		}
	}
}

func printUsage() {
	fmt.Print(`Usage: chatty <command>

Commands:
  signup    Create an account and log in
  login     Log in with email and password
  logout    Log out (always clears the local session)
  whoami    Show the current user and session expiry
  profile   Update profile fields (-name, -pic)
  online    Watch the online-user roster
  version   Print version information
  help      Show this help

Environment:
  CHATTY_SERVER_URL   Backend base URL
  CHATTY_HOME_DIR     Local state directory (default ~/.chatty)
  CHATTY_AUTH_MODE    Credential transport: bearer (default) or cookie
  CHATTY_LOG_LEVEL    trace|debug|info|warn|error
`)
}
