package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/luna/internal/api"
	"github.com/me/luna/internal/config"
	"github.com/me/luna/internal/controller"
	"github.com/me/luna/internal/logging"
	"github.com/me/luna/internal/store"
	"github.com/spf13/cobra"
)

var (
	flagServer    string
	flagConfig    string
	flagDB        string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	cfg    config.ClientConfig
	logger *slog.Logger
	st     *store.SQLiteStore
)

// NewRootCmd creates the root cobra command for the luna CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "luna",
		Short: "Luna: ask friends for a pad or tampon nearby",
		Long:  "Luna signs in to a Luna server, manages friends and sends or answers alerts.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// A failed command skips the post-run hook.
			if st != nil {
				st.Close()
				st = nil
			}
			var err error
			cfg, err = config.Load(flagConfig)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("server") {
				cfg.ServerURL = flagServer
			}
			if flags.Changed("db") {
				cfg.DBPath = flagDB
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = flagLogLevel
			}
			if flags.Changed("log-format") {
				cfg.LogFormat = flagLogFormat
			}
			if flagDebug {
				cfg.LogLevel = "debug"
			}
			logger = logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)

			dbPath, err := cfg.ResolveDBPath()
			if err != nil {
				return err
			}
			st, err = store.NewSQLiteStore(dbPath, logger)
			if err != nil {
				return err
			}
			if err := st.Migrate(cmd.Context()); err != nil {
				st.Close()
				return fmt.Errorf("migrate %s: %w", dbPath, err)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if st == nil {
				return nil
			}
			err := st.Close()
			st = nil
			return err
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagServer, "server", "", "Luna API base URL (or LUNA_SERVER env)")
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default ~/.luna/config.yaml)")
	root.PersistentFlags().StringVar(&flagDB, "db", "", "Session database path (default ~/.luna/luna.db)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newSignupCmd(),
		newLoginCmd(),
		newLogoutCmd(),
		newWhoamiCmd(),
		newStatusCmd(),
		newFriendsCmd(),
		newRequestsCmd(),
		newSearchCmd(),
		newAlertCmd(),
		newWatchCmd(),
	)

	return root
}

var errNotSignedIn = errors.New("not signed in; run `luna login` first")

// openController builds a controller over the configured server and
// resumes the stored session. With poll false the background loop is off
// and the caller refreshes explicitly.
func openController(ctx context.Context, poll bool, onChange func(controller.State)) (*controller.Controller, error) {
	client := api.NewClient(cfg.ServerURL, cfg.RequestTimeout, logger)
	interval := time.Duration(-1)
	if poll {
		interval = cfg.PollInterval
	}
	ctl := controller.New(client, controller.Config{
		PollInterval:       interval,
		SessionTTL:         cfg.SessionTTL,
		Latitude:           cfg.Latitude,
		Longitude:          cfg.Longitude,
		SyncFriendRemovals: cfg.SyncFriendRemovals,
		Store:              st,
		Profile:            store.DefaultProfile,
		OnChange:           onChange,
	}, logger)
	if _, err := ctl.Resume(ctx); err != nil {
		ctl.Close()
		return nil, fmt.Errorf("resume session: %w", err)
	}
	return ctl, nil
}

// signedIn is openController for commands that need a session.
func signedIn(ctx context.Context) (*controller.Controller, error) {
	ctl, err := openController(ctx, false, nil)
	if err != nil {
		return nil, err
	}
	if ctl.Session() == nil {
		ctl.Close()
		return nil, errNotSignedIn
	}
	return ctl, nil
}
