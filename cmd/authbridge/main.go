// Package main provides the authbridge command line tool. It drives the
// session and calendar-auth subsystems of the scheduling client: direct
// login against the hosted store, inheriting a session from an embedding
// host over the websocket bridge, and the Google OAuth calendar flow.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/classplan-dev/authbridge/internal/callback"
	"github.com/classplan-dev/authbridge/internal/config"
	"github.com/classplan-dev/authbridge/internal/logging"
	"github.com/classplan-dev/authbridge/internal/util"
	"github.com/classplan-dev/authbridge/internal/watcher"
	"github.com/classplan-dev/authbridge/internal/wsbridge"
	"github.com/classplan-dev/authbridge/sdk/channel"
	"github.com/classplan-dev/authbridge/sdk/googleauth"
	"github.com/classplan-dev/authbridge/sdk/session"
	"github.com/classplan-dev/authbridge/sdk/store"
)

func init() {
	logging.SetupBaseLogger()
}

func main() {
	var (
		configPath   string
		login        bool
		username     string
		password     string
		googleLogin  bool
		status       bool
		watch        bool
		logout       bool
		googleLogout bool
		noBrowser    bool
	)

	flag.StringVar(&configPath, "config", "config.yaml", "Path to the configuration file")
	flag.BoolVar(&login, "login", false, "Login with username and password")
	flag.StringVar(&username, "username", "", "Username for -login")
	flag.StringVar(&password, "password", "", "Password for -login")
	flag.BoolVar(&googleLogin, "google-login", false, "Connect a Google calendar account via OAuth")
	flag.BoolVar(&status, "status", false, "Show session and calendar connection status")
	flag.BoolVar(&watch, "watch", false, "With -status, keep watching the credential store for changes")
	flag.BoolVar(&logout, "logout", false, "Clear the session and credential cache")
	flag.BoolVar(&googleLogout, "google-logout", false, "Disconnect the Google calendar account")
	flag.BoolVar(&noBrowser, "no-browser", false, "Print the authorization URL instead of opening a browser")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("failed to load .env file: %v", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logging.SetDebug(cfg.Debug)
	if cfg.LogDir != "" {
		if errLog := logging.EnableFileOutput(cfg.LogDir); errLog != nil {
			log.Warnf("file logging disabled: %v", errLog)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kv := store.NewFileStore(cfg.StorePath)
	httpClient := util.NewHTTPClient(cfg.ProxyURL)

	var host channel.MessageChannel
	if cfg.HostBridgeURL != "" {
		bridge, errDial := wsbridge.Dial(ctx, cfg.HostBridgeURL, "authbridge-cli")
		if errDial != nil {
			log.Warnf("host bridge unavailable: %v", errDial)
		} else {
			defer bridge.Close()
			host = bridge
		}
	}

	var backendOverride *session.BackendParams
	if cfg.BackendURL != "" {
		backendOverride = &session.BackendParams{EndpointURL: cfg.BackendURL, AnonKey: cfg.BackendAnonKey}
	}
	mgr := session.NewManager(session.Options{
		Store:      kv,
		Host:       host,
		HTTPClient: httpClient,
		Backend:    backendOverride,
	})

	messages := channel.Loopback("http://localhost")
	controller := googleauth.NewController(googleauth.Options{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		Origin:       "http://localhost",
		Launcher:     &callback.Launcher{Port: cfg.CallbackPort, Messages: messages, NoBrowser: noBrowser},
		Messages:     messages,
		Store:        kv,
		HTTPClient:   httpClient,
		OnSignedOut: func() {
			fmt.Println("Google calendar connection expired and could not be refreshed; signed out.")
		},
	})

	switch {
	case login:
		runLogin(ctx, mgr, username, password)
	case googleLogin:
		runGoogleLogin(ctx, controller)
	case logout:
		mgr.Logout()
		fmt.Println("Logged out.")
	case googleLogout:
		controller.SignOut()
		fmt.Println("Google calendar disconnected.")
	case status:
		runStatus(ctx, mgr, controller, kv, watch)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func runLogin(ctx context.Context, mgr *session.Manager, username, password string) {
	if mgr.IsEmbedded() {
		if sess := mgr.InheritParentSession(ctx); sess != nil {
			fmt.Printf("Inherited session for %s from host.\n", sess.Username)
			return
		}
		log.Debug("host did not supply a session, falling back to direct login")
	}
	if username == "" || password == "" {
		log.Fatal("-login requires -username and -password")
	}
	sess := mgr.Login(ctx, username, password)
	if sess == nil {
		fmt.Println("Login failed.")
		os.Exit(1)
	}
	fmt.Printf("Logged in as %s.\n", sess.Username)
}

func runGoogleLogin(ctx context.Context, controller *googleauth.Controller) {
	if controller.LoadStoredTokens(ctx) {
		if user := controller.CurrentUser(); user != nil {
			fmt.Printf("Already connected as %s.\n", user.Email)
			return
		}
	}
	user, err := controller.SignIn(ctx)
	if err != nil {
		if googleauth.IsCancelled(err) {
			fmt.Println("Sign-in cancelled.")
			os.Exit(1)
		}
		log.Fatalf("google sign-in failed: %v", err)
	}
	fmt.Printf("Connected Google calendar for %s.\n", user.Email)
}

func runStatus(ctx context.Context, mgr *session.Manager, controller *googleauth.Controller, kv *store.FileStore, watch bool) {
	printStatus(ctx, mgr, controller)
	if !watch {
		return
	}

	w := watcher.New(kv.Path(), func() {
		fmt.Printf("\ncredential store changed at %s\n", time.Now().Format("15:04:05"))
		mgr.Reload()
		printStatus(ctx, mgr, controller)
	})
	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("watch failed: %v", err)
	}
}

func printStatus(ctx context.Context, mgr *session.Manager, controller *googleauth.Controller) {
	if sess := mgr.CurrentUser(); sess != nil {
		role := "member"
		if sess.IsAdmin {
			role = "admin"
		}
		fmt.Printf("Session: %s (%s)\n", sess.Username, role)
	} else {
		fmt.Println("Session: not logged in")
	}

	if controller.LoadStoredTokens(ctx) {
		if creds := controller.CalendarCredentials(); creds != nil {
			fmt.Println("Calendar: connected (access token valid)")
		} else {
			fmt.Println("Calendar: connected (token refresh pending)")
		}
	} else {
		fmt.Println("Calendar: not connected")
	}
}
