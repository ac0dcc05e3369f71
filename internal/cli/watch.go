package cli

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/me/luna/internal/controller"
	"github.com/me/luna/pkg/model"
	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Poll the server and print changes until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			var mu sync.Mutex
			var last string
			onChange := func(s controller.State) {
				if s.Session == nil {
					return
				}
				line := summary(s)
				mu.Lock()
				defer mu.Unlock()
				if line == last {
					return
				}
				last = line
				fmt.Fprintln(out, line)
			}

			ctl, err := openController(ctx, true, onChange)
			if err != nil {
				return err
			}
			defer ctl.Close()
			if ctl.Session() == nil {
				return errNotSignedIn
			}

			logger.Info("watching", "server", cfg.ServerURL, "interval", cfg.PollInterval)
			<-ctx.Done()
			return nil
		},
	}
}

// summary is a one-line digest of s; watch prints it whenever it changes.
func summary(s controller.State) string {
	own := "none"
	if s.UserAlert != nil {
		own = fmt.Sprintf("%s %s", s.UserAlert.ProductType, s.UserAlert.Status)
		if s.UserAlert.HelperName != "" {
			own += " by " + s.UserAlert.HelperName
		}
	}
	pending := 0
	for _, a := range s.FriendAlerts {
		if a.Status == model.AlertStatusPending {
			pending++
		}
	}
	return fmt.Sprintf("your alert: %s | friend alerts: %d (%d pending) | friends: %d | requests: %d",
		own, len(s.FriendAlerts), pending, len(s.Friends), len(s.Requests))
}
