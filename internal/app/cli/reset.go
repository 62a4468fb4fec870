package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPasswordResetCmd(a *app) *cobra.Command {
	reset := &cobra.Command{
		Use:   "password-reset",
		Short: "Recover access to an account",
	}

	var email string
	request := &cobra.Command{
		Use:   "request",
		Short: "Email a reset link",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string, p *portal) error {
			if err := p.client.RequestPasswordReset(cmd.Context(), email); err != nil {
				return p.explain(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "If the account exists, a reset link is on its way.")
			return nil
		}),
	}
	request.Flags().StringVar(&email, "email", "", "account email")
	_ = request.MarkFlagRequired("email")

	var token, password string
	confirm := &cobra.Command{
		Use:   "confirm",
		Short: "Set a new password with the token from the reset email",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string, p *portal) error {
			if password == "" {
				line, err := readLine(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read password: %w", err)
				}
				password = line
			}
			if err := p.client.ResetPassword(cmd.Context(), token, password); err != nil {
				return p.explain(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Password updated. Sign in with `hrportal login`.")
			return nil
		}),
	}
	confirm.Flags().StringVar(&token, "token", "", "reset token")
	confirm.Flags().StringVar(&password, "password", "", "new password (read from stdin when empty)")
	_ = confirm.MarkFlagRequired("token")

	reset.AddCommand(request, confirm)
	return reset
}
