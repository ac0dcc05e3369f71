package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/me/luna/internal/controller"
	"github.com/me/luna/pkg/model"
	"github.com/spf13/cobra"
)

// prompt reads one line from in after printing label to out.
func prompt(in io.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(strings.TrimSpace(label), ":"), err)
	}
	return strings.TrimSpace(line), nil
}

func authenticate(cmd *cobra.Command, cr controller.Credentials, mode controller.Mode) error {
	if cr.Password == "" {
		pw, err := prompt(cmd.InOrStdin(), cmd.OutOrStdout(), "Password: ")
		if err != nil {
			return err
		}
		cr.Password = pw
	}

	ctl, err := openController(cmd.Context(), false, nil)
	if err != nil {
		return err
	}
	defer ctl.Close()

	sess, err := ctl.Authenticate(cmd.Context(), cr, mode)
	if err != nil {
		return errors.New(model.UserMessage(err))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", sess.Name, sess.Role)
	return nil
}

func newSignupCmd() *cobra.Command {
	var cr controller.Credentials
	var role string

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			cr.Role = model.Role(strings.ToLower(strings.TrimSpace(role)))
			return authenticate(cmd, cr, controller.ModeSignup)
		},
	}

	cmd.Flags().StringVar(&cr.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&cr.Password, "password", "", "Password (prompted if omitted)")
	cmd.Flags().StringVar(&cr.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&role, "role", string(model.RoleSender), "Role (sender, receiver)")
	return cmd
}

func newLoginCmd() *cobra.Command {
	var cr controller.Credentials

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to an existing account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return authenticate(cmd, cr, controller.ModeLogin)
		},
	}

	cmd.Flags().StringVar(&cr.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&cr.Password, "password", "", "Password (prompted if omitted)")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctl, err := openController(cmd.Context(), false, nil)
			if err != nil {
				return err
			}
			defer ctl.Close()
			if err := ctl.EndSession(cmd.Context()); err != nil {
				return fmt.Errorf("end session: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		},
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctl, err := signedIn(cmd.Context())
			if err != nil {
				return err
			}
			defer ctl.Close()

			sess := ctl.Session()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Name:    %s\n", sess.Name)
			fmt.Fprintf(out, "Role:    %s\n", sess.Role)
			fmt.Fprintf(out, "ID:      %s\n", sess.ID)
			fmt.Fprintf(out, "Since:   %s\n", humanize.Time(sess.CreatedAt))
			if !sess.ExpiresAt.IsZero() {
				fmt.Fprintf(out, "Expires: %s\n", humanize.Time(sess.ExpiresAt))
			}
			return nil
		},
	}
}
