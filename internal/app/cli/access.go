package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"hrportal/internal/domain/access"
	"hrportal/internal/portal/guard"
	"hrportal/internal/portal/navigation"
)

func newMenuCmd(a *app) *cobra.Command {
	var remote bool
	cmd := &cobra.Command{
		Use:   "menu",
		Short: "List the menu entries your role can see",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string, p *portal) error {
			if err := p.requireSession(); err != nil {
				return err
			}

			entries := navigation.Collect(navigation.ForSession(p.store, access.Menu()))
			if remote {
				var err error
				entries, err = p.client.Navigation(cmd.Context())
				if err != nil {
					return p.explain(err)
				}
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, entry := range entries {
				fmt.Fprintf(tw, "%s\t%s\n", entry.Label, entry.Path)
			}
			return tw.Flush()
		}),
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "ask the server for the menu instead of filtering locally")
	return cmd
}

func newOpenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "open <path>",
		Short: "Check whether the current session may open a view",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string, p *portal) error {
			d := p.guard.Evaluate(args[0])
			out := cmd.OutOrStdout()
			switch d.State {
			case guard.StateAllowed:
				if d.Redirect != "" {
					fmt.Fprintf(out, "redirect: %s\n", d.Redirect)
					return nil
				}
				fmt.Fprintf(out, "allowed: %s\n", viewName(d.Route))
			case guard.StateUnauthenticated:
				if d.Redirect == "" {
					fmt.Fprintf(out, "public: %s\n", viewName(d.Route))
					return nil
				}
				fmt.Fprintf(out, "sign in required: redirect to %s\n", d.Redirect)
			case guard.StateDenied:
				fmt.Fprintf(out, "denied for role %s: redirect to %s\n", p.store.Identity().Role, d.Redirect)
			default:
				fmt.Fprintln(out, "session still loading")
			}
			return nil
		}),
	}
}

func viewName(route access.Route) string {
	if route.View == "" {
		return route.Path
	}
	return route.View
}

func newRoutesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "Print the route table and who may open each view",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "PATH\tVIEW\tACCESS")
			for _, route := range access.Routes() {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", route.Path, route.View, accessLabel(route))
			}
			return tw.Flush()
		},
	}
}

func accessLabel(route access.Route) string {
	switch {
	case route.Public:
		return "public"
	case len(route.Roles) == 0:
		return "any signed-in role"
	}
	names := make([]string, len(route.Roles))
	for i, role := range route.Roles {
		names[i] = string(role)
	}
	return strings.Join(names, ",")
}

func newAccessMatrixCmd(a *app) *cobra.Command {
	var pdfPath string
	var local bool
	cmd := &cobra.Command{
		Use:   "access-matrix",
		Short: "Print the role access matrix or save it as PDF",
		Long: `Without --pdf the matrix is printed as text. With --pdf the server renders it,
which requires a management role; add --local to render it on this machine instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			matrix := access.BuildMatrix(access.Routes())
			if pdfPath == "" {
				return matrix.WriteText(cmd.OutOrStdout())
			}
			if local {
				return writeFile(pdfPath, func(f *os.File) error {
					return matrix.WritePDF(f, time.Now())
				})
			}
			return a.run(func(cmd *cobra.Command, _ []string, p *portal) error {
				if err := p.requireSession(); err != nil {
					return err
				}
				if !p.store.HasRole(access.RolesFor("/settings/access")...) {
					return fmt.Errorf("role %s cannot export the access matrix", p.store.Identity().Role)
				}
				data, err := p.client.AccessMatrixPDF(cmd.Context())
				if err != nil {
					return p.explain(err)
				}
				return os.WriteFile(pdfPath, data, 0o644)
			})(cmd, args)
		},
	}
	cmd.Flags().StringVar(&pdfPath, "pdf", "", "write the matrix as PDF to this file")
	cmd.Flags().BoolVar(&local, "local", false, "render the PDF locally")
	return cmd
}

func writeFile(path string, fn func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

