package cli

import (
	"fmt"

	"github.com/me/luna/pkg/model"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Refresh and show your alert, friends' alerts and requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctl, err := signedIn(cmd.Context())
			if err != nil {
				return err
			}
			defer ctl.Close()

			if err := ctl.Refresh(cmd.Context()); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", model.UserMessage(err))
			}
			printState(cmd.OutOrStdout(), ctl.Snapshot())
			return nil
		},
	}
}
