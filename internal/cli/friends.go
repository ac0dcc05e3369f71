package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/me/luna/internal/controller"
	"github.com/me/luna/pkg/model"
	"github.com/spf13/cobra"
)

// refreshed opens a signed-in controller and loads the current lists.
func refreshed(ctx context.Context) (*controller.Controller, error) {
	ctl, err := signedIn(ctx)
	if err != nil {
		return nil, err
	}
	if err := ctl.Refresh(ctx); err != nil {
		ctl.Close()
		return nil, errors.New(model.UserMessage(err))
	}
	return ctl, nil
}

func newFriendsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "friends",
		Short: "List, add or remove friends",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List friends",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctl, err := refreshed(cmd.Context())
			if err != nil {
				return err
			}
			defer ctl.Close()
			printFriends(cmd.OutOrStdout(), ctl.Snapshot().Friends)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <name>",
		Short: "Send a friend request to the user matching name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctl, err := signedIn(cmd.Context())
			if err != nil {
				return err
			}
			defer ctl.Close()

			query := strings.Join(args, " ")
			target, err := pickUser(ctl.SearchDirectory(cmd.Context(), query), query)
			if err != nil {
				return err
			}
			if err := ctl.SendFriendRequest(cmd.Context(), target); err != nil {
				return errors.New(model.UserMessage(err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Friend request sent to %s.\n", target.Name)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <friend_id>",
		Short: "Remove a friend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctl, err := refreshed(cmd.Context())
			if err != nil {
				return err
			}
			defer ctl.Close()
			if err := ctl.RemoveFriend(cmd.Context(), args[0]); err != nil {
				return errors.New(model.UserMessage(err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Friend removed.")
			return nil
		},
	})

	return cmd
}

// pickUser chooses the search result for query: an exact name match, or
// the only result.
func pickUser(users []model.User, query string) (model.User, error) {
	for _, u := range users {
		if strings.EqualFold(u.Name, query) {
			return u, nil
		}
	}
	switch len(users) {
	case 0:
		return model.User{}, fmt.Errorf("no user matches %q", query)
	case 1:
		return users[0], nil
	}
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.Name)
	}
	return model.User{}, fmt.Errorf("%q matches %d users (%s); be more specific", query, len(users), strings.Join(names, ", "))
}

func newRequestsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "requests",
		Short: "List, accept or deny incoming friend requests",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List incoming friend requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctl, err := refreshed(cmd.Context())
			if err != nil {
				return err
			}
			defer ctl.Close()
			printRequests(cmd.OutOrStdout(), ctl.Snapshot().Requests)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "accept <request_id>",
		Short: "Accept a friend request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctl, err := signedIn(cmd.Context())
			if err != nil {
				return err
			}
			defer ctl.Close()
			if err := ctl.AcceptFriendRequest(cmd.Context(), args[0]); err != nil {
				return errors.New(model.UserMessage(err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Friend request accepted.")
			printFriends(cmd.OutOrStdout(), ctl.Snapshot().Friends)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "deny <request_id>",
		Short: "Deny a friend request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctl, err := refreshed(cmd.Context())
			if err != nil {
				return err
			}
			defer ctl.Close()
			if err := ctl.DenyFriendRequest(cmd.Context(), args[0]); err != nil {
				return errors.New(model.UserMessage(err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Friend request denied.")
			return nil
		},
	})

	return cmd
}

func newSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search the user directory by name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctl, err := signedIn(cmd.Context())
			if err != nil {
				return err
			}
			defer ctl.Close()
			printUsers(cmd.OutOrStdout(), ctl.SearchDirectory(cmd.Context(), strings.Join(args, " ")))
			return nil
		},
	}
}
