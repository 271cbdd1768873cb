package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"codepilot/internal/auth"
	"codepilot/internal/models"
)

func newMigrateCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "database migrated (%s)\n", a.dbType)
			return nil
		},
	}
}

func newPlansCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plans",
		Short: "Manage pricing plans",
	}

	seed := &cobra.Command{
		Use:   "seed",
		Short: "Insert the default Free, Pro and Team plans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			plans, err := a.workspace.SeedPricingPlans(cmd.Context())
			if err != nil {
				return err
			}
			printPlans(cmd, plans)
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List active plans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			plans, err := a.workspace.ListPricingPlans(cmd.Context())
			if err != nil {
				return err
			}
			printPlans(cmd, plans)
			return nil
		},
	}

	cmd.AddCommand(seed, list)
	return cmd
}

func printPlans(cmd *cobra.Command, plans []models.PricingPlan) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPRICE\tTOKENS")
	for _, p := range plans {
		fmt.Fprintf(w, "%d\t%s\t%d.%02d\t%d\n", p.ID, p.Name, p.Price/100, p.Price%100, p.TokensLimit)
	}
	w.Flush()
}

func newUsersCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Inspect and manage users",
	}

	setPlan := &cobra.Command{
		Use:   "plan <user-id> <free|pro|team>",
		Short: "Move a user to a tier and reset its token limit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan := models.Plan(args[1])
			if !plan.Valid() {
				return fmt.Errorf("unknown plan %q", args[1])
			}
			a, err := openApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.workspace.SetUserPlan(cmd.Context(), args[0], plan); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now on %s (%d tokens)\n", args[0], plan, plan.TokenLimit())
			return nil
		},
	}

	subscribe := &cobra.Command{
		Use:   "subscribe <user-id> <plan-name>",
		Short: "Subscribe a user to a pricing plan",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			plan, err := a.workspace.GetPricingPlanByName(cmd.Context(), args[1])
			if err != nil {
				return fmt.Errorf("find plan %q: %w", args[1], err)
			}
			sub, err := a.workspace.Subscribe(cmd.Context(), args[0], plan.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "subscription %d: %s on %s until %s\n",
				sub.ID, args[0], plan.Name, sub.CurrentPeriodEnd.Format("2006-01-02"))
			return nil
		},
	}

	stats := &cobra.Command{
		Use:   "stats <user-id>",
		Short: "Print a user's usage counters as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			st, err := a.workspace.UserStats(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		},
	}

	cmd.AddCommand(setPlan, subscribe, stats)
	return cmd
}

func newTokensCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Manage API tokens",
	}

	purge := &cobra.Command{
		Use:   "purge",
		Short: "Delete expired API tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			svc := auth.NewService(a.db, a.cache, 0)
			n, err := svc.PurgeExpiredTokens(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired tokens\n", n)
			return nil
		},
	}

	cmd.AddCommand(purge)
	return cmd
}
