package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/me/luna/pkg/model"
	"github.com/spf13/cobra"
)

// productName maps user input onto a known product, keeping unknown values.
func productName(s string) string {
	s = strings.TrimSpace(s)
	for _, p := range model.Products {
		if strings.EqualFold(p, s) {
			return p
		}
	}
	return s
}

func newAlertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alert",
		Short: "Send, cancel, accept or list alerts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:       "send <product>",
		Short:     "Ask friends for a product (" + strings.Join(model.Products, ", ") + ")",
		Args:      cobra.ExactArgs(1),
		ValidArgs: model.Products,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctl, err := signedIn(cmd.Context())
			if err != nil {
				return err
			}
			defer ctl.Close()
			if err := ctl.SendAlert(cmd.Context(), productName(args[0])); err != nil {
				return errors.New(model.UserMessage(err))
			}
			printOwnAlert(cmd.OutOrStdout(), ctl.Snapshot().UserAlert)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "cancel",
		Short: "Cancel your active alert",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctl, err := signedIn(cmd.Context())
			if err != nil {
				return err
			}
			defer ctl.Close()
			if err := ctl.FetchAlerts(cmd.Context()); err != nil {
				return errors.New(model.UserMessage(err))
			}
			if ctl.Snapshot().UserAlert == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "No active alert.")
				return nil
			}
			if err := ctl.CancelAlert(cmd.Context()); err != nil {
				return errors.New(model.UserMessage(err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Alert cancelled.")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "accept <alert_id>",
		Short: "Offer to help with a friend's alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctl, err := signedIn(cmd.Context())
			if err != nil {
				return err
			}
			defer ctl.Close()
			if err := ctl.FetchAlerts(cmd.Context()); err != nil {
				return errors.New(model.UserMessage(err))
			}
			if err := ctl.AcceptFriendAlert(cmd.Context(), args[0]); err != nil {
				return errors.New(model.UserMessage(err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Alert accepted.")
			for _, a := range ctl.Snapshot().FriendAlerts {
				if a.ID == args[0] && a.LocationRevealed() {
					fmt.Fprintf(cmd.OutOrStdout(), "%s is at %s\n", a.SenderName, a.Location)
				}
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List your alert and your friends' alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctl, err := signedIn(cmd.Context())
			if err != nil {
				return err
			}
			defer ctl.Close()
			if err := ctl.FetchAlerts(cmd.Context()); err != nil {
				return errors.New(model.UserMessage(err))
			}
			s := ctl.Snapshot()
			printOwnAlert(cmd.OutOrStdout(), s.UserAlert)
			fmt.Fprintln(cmd.OutOrStdout())
			printFriendAlerts(cmd.OutOrStdout(), s.FriendAlerts)
			return nil
		},
	})

	return cmd
}
