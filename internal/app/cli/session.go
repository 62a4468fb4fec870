package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"hrportal/internal/domain/auth"
	"hrportal/internal/portal/apiclient"
)

func newLoginCmd(a *app) *cobra.Command {
	var email, password, mfaCode string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and keep the session for later commands",
		Long:  `Sign in with email and password. The password is read from stdin when --password is not given.`,
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string, p *portal) error {
			if password == "" {
				line, err := readLine(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read password: %w", err)
				}
				password = line
			}

			res := p.store.Login(cmd.Context(), apiclient.Credentials{Email: email, Password: password, MFACode: mfaCode})
			if !res.Success {
				return fmt.Errorf("login failed (%s): %s", res.Reason, res.Message)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Signed in as %s (%s)\n", displayName(*res.Identity), res.Identity.Role)
			fmt.Fprintf(out, "Landing page: %s\n", p.guard.Landing())
			return nil
		}),
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.Flags().StringVar(&mfaCode, "mfa-code", "", "six digit code when MFA is enabled")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session on the server and forget it locally",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string, p *portal) error {
			out := cmd.OutOrStdout()
			if !p.store.State().Authenticated() {
				fmt.Fprintln(out, "Already signed out")
				return nil
			}
			if err := p.client.Logout(cmd.Context()); err != nil && !errors.Is(err, apiclient.ErrSessionInvalid) {
				p.logger.Warn("server logout failed", "err", err)
			}
			p.store.Logout(cmd.Context())
			fmt.Fprintln(out, "Signed out")
			return nil
		}),
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in identity",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string, p *portal) error {
			if err := p.requireSession(); err != nil {
				return err
			}
			if refresh {
				identity, err := p.client.Me(cmd.Context())
				if err != nil {
					return p.explain(err)
				}
				if err := p.store.UpdateIdentity(cmd.Context(), identity); err != nil {
					return err
				}
			}
			printIdentity(cmd.OutOrStdout(), *p.store.Identity())
			fmt.Fprintf(cmd.OutOrStdout(), "Landing:    %s\n", p.guard.Landing())
			return nil
		}),
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "reload the identity from the server")
	return cmd
}

func newProfileCmd(a *app) *cobra.Command {
	profile := &cobra.Command{
		Use:   "profile",
		Short: "Manage your own profile",
	}

	var name, email string
	update := &cobra.Command{
		Use:   "update",
		Short: "Change display name or email",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string, p *portal) error {
			if err := p.requireSession(); err != nil {
				return err
			}
			current := p.store.Identity()
			change := apiclient.ProfileUpdate{Name: current.Name, Email: current.Email}
			if name != "" {
				change.Name = name
			}
			if email != "" {
				change.Email = email
			}

			identity, err := p.client.UpdateProfile(cmd.Context(), change)
			if err != nil {
				return p.explain(err)
			}
			if err := p.store.UpdateIdentity(cmd.Context(), identity); err != nil {
				return err
			}
			printIdentity(cmd.OutOrStdout(), identity)
			return nil
		}),
	}
	update.Flags().StringVar(&name, "name", "", "new display name")
	update.Flags().StringVar(&email, "email", "", "new email")
	update.MarkFlagsOneRequired("name", "email")

	profile.AddCommand(update)
	return profile
}

func printIdentity(w io.Writer, identity auth.Identity) {
	fmt.Fprintf(w, "Name:       %s\n", displayName(identity))
	fmt.Fprintf(w, "Email:      %s\n", identity.Email)
	fmt.Fprintf(w, "Role:       %s\n", identity.Role)
	if identity.Department != nil {
		fmt.Fprintf(w, "Department: %s\n", identity.Department.Name)
	}
}

func displayName(identity auth.Identity) string {
	if identity.Name != "" {
		return identity.Name
	}
	if identity.Email != "" {
		return identity.Email
	}
	return identity.ID
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("empty password")
	}
	return line, nil
}
