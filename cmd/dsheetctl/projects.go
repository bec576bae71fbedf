package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/rpggio/dsheet/internal/domain/access"
	"github.com/rpggio/dsheet/internal/domain/project"
	"github.com/spf13/cobra"
)

func newProjectCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Create and list projects",
	}

	var name string
	create := &cobra.Command{
		Use:   "create <key>",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			proj, err := a.projects.Create(cmd.Context(), project.CreateRequest{Key: args[0], Name: name})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created project %s\n", proj.Key)
			return nil
		},
	}
	create.Flags().StringVar(&name, "name", "", "display name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List projects with item counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			projects, err := a.projects.List(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tITEMS\tHIGHEST\tNAME")
			for _, p := range projects {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", p.Key, p.ItemCount, p.HighestNum, p.Name)
			}
			return tw.Flush()
		},
	}

	cmd.AddCommand(create, list)
	return cmd
}

func newTokenCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue and prune API bearer tokens",
	}

	var (
		role string
		ttl  = 30 * 24 * time.Hour
	)
	issue := &cobra.Command{
		Use:   "issue <subject>",
		Short: "Issue a bearer token; it is printed once and only its hash is kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := access.ParseRole(role)
			if err != nil {
				return fmt.Errorf("%w: %q", err, role)
			}
			token, sess, err := a.access.Issue(cmd.Context(), args[0], r, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			a.logger.Info("issued token", "subject", sess.Subject, "role", sess.Role, "expires_at", sess.ExpiresAt)
			return nil
		},
	}
	issue.Flags().StringVar(&role, "role", string(access.RoleEditor), "viewer|editor|admin")
	issue.Flags().DurationVar(&ttl, "ttl", ttl, "token lifetime")

	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete expired tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := a.access.Prune(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d tokens\n", n)
			return nil
		},
	}

	cmd.AddCommand(issue, prune)
	return cmd
}
