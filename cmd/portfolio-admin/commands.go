package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tendant/portfolio-content/pkg/portfolio"
	"github.com/tendant/portfolio-content/pkg/portfolio/auth"
	"github.com/tendant/portfolio-content/pkg/portfolio/purge"
)

// NewGroupsCommand creates the groups command
func NewGroupsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "groups",
		Short: "List the resource groups a purge can select",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tLABEL\tTABLES\tBUCKETS")
			for _, g := range portfolio.DefaultRegistry().AllGroups() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", g.Key, g.Label, strings.Join(g.Tables, ","), strings.Join(g.Buckets, ","))
			}
			return w.Flush()
		},
	}
}

// NewActivityCommand creates the activity command
func NewActivityCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show the newest admin activity log entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, comps, err := buildComponents(ctx)
			if err != nil {
				return err
			}
			defer comps.Close()

			entries, err := comps.Service.ListActivity(ctx, limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tACTION\tUSER\tDESCRIPTION")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.OccurredAt.Format("2006-01-02 15:04:05"), e.ActionType, e.UserIdentifier, e.Description)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries")
	return cmd
}

// NewHashPasswordCommand creates the hash-password command
func NewHashPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Print the bcrypt hash of a password for ADMIN_PASSWORD_HASH",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(os.Stdin, cmd.ErrOrStderr(), "Password: ")
			if err != nil {
				return err
			}
			if password == "" {
				return errors.New("password cannot be empty")
			}
			hash, err := auth.HashCredential(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

// NewPurgeCommand creates the purge command
func NewPurgeCommand() *cobra.Command {
	var groups []string
	var identifier string
	var yes bool

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Irreversibly delete whole content sections",
		Long: `Delete every row and stored object of the selected resource groups.

The admin password is asked for again, then a countdown runs before the
purge function is called. Ctrl-C before confirmation cancels.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, comps, err := buildComponents(ctx)
			if err != nil {
				return err
			}
			defer comps.Close()

			if identifier == "" {
				identifier = cfg.AdminIdentifier
			}
			if identifier == "" {
				return errors.New("--identifier is required when ADMIN_IDENTIFIER is not set")
			}
			session := &portfolio.Session{ID: uuid.NewString(), UserID: identifier, Identifier: identifier}

			p, err := comps.Purges.For(session)
			if err != nil {
				return err
			}
			return runPurge(ctx, cmd, p, session, groups, yes)
		},
	}

	cmd.Flags().StringSliceVarP(&groups, "groups", "g", nil, "resource group keys to delete (see 'groups')")
	cmd.Flags().StringVar(&identifier, "identifier", "", "admin identifier (default: ADMIN_IDENTIFIER)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the final confirmation prompt")
	_ = cmd.MarkFlagRequired("groups")

	return cmd
}

func runPurge(ctx context.Context, cmd *cobra.Command, p *purge.Protocol, session *portfolio.Session, groups []string, yes bool) error {
	out := cmd.OutOrStdout()

	if err := p.Select(groups); err != nil {
		return err
	}
	if err := p.Initiate(session); err != nil {
		return err
	}
	fmt.Fprintf(out, "About to delete: %s\n", strings.Join(p.Status().SelectedGroupKeys, ", "))

	password, err := readPassword(os.Stdin, out, fmt.Sprintf("Password for %s: ", session.Identifier))
	if err != nil {
		_ = p.Cancel()
		return err
	}
	if err := p.Reauthenticate(ctx, "", password); err != nil {
		_ = p.Cancel()
		return err
	}

	for left := range p.Ticks(ctx) {
		fmt.Fprintf(out, "\rConfirmation available in %ds ", int(math.Ceil(left.Seconds())))
	}
	fmt.Fprintln(out)
	if ctx.Err() != nil {
		_ = p.Cancel()
		return errors.New("cancelled")
	}

	if !yes {
		fmt.Fprint(out, "Type DELETE to confirm: ")
		answer, err := readLine(os.Stdin)
		if err != nil || strings.TrimSpace(answer) != "DELETE" {
			_ = p.Cancel()
			return errors.New("cancelled")
		}
	}

	msg, err := p.Confirm(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, msg)
	return nil
}
