package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newAuditCmd(a *app) *cobra.Command {
	var action string
	var limit int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List recent security events (management roles only)",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string, p *portal) error {
			if err := p.requireSession(); err != nil {
				return err
			}
			events, err := p.client.AuditEvents(cmd.Context(), action, limit)
			if err != nil {
				return p.explain(err)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tACTION\tACTOR\tIP")
			for _, evt := range events {
				actor := evt.ActorID
				if actor == "" {
					actor = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", evt.CreatedAt.UTC().Format(time.RFC3339), evt.Action, actor, evt.IP)
			}
			return tw.Flush()
		}),
	}
	cmd.Flags().StringVar(&action, "action", "", "only show this action, e.g. login.failed")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of events to show")
	return cmd
}
