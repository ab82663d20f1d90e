package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pario-ai/costdesk/pkg/models"
)

func newQuotaCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Show and manage the query quota",
	}
	cmd.AddCommand(
		newQuotaStatusCmd(opts),
		newQuotaTierCmd(opts),
		newQuotaResetCmd(opts),
	)
	return cmd
}

func newQuotaStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the tier and remaining queries",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.quota.Observe(cmd.Context())
			if err != nil {
				return err
			}
			printQuota(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

func newQuotaTierCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "tier free|premium",
		Short:     "Set the subscription tier (the counter resets on change)",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(models.TierFree), string(models.TierPremium)},
		RunE: func(cmd *cobra.Command, args []string) error {
			tier, err := models.ParseTier(args[0])
			if err != nil {
				return err
			}

			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.quota.SetTier(cmd.Context(), tier); err != nil {
				return err
			}
			st, err := a.quota.Observe(cmd.Context())
			if err != nil {
				return err
			}
			printQuota(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

func newQuotaResetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Zero the query counter",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.quota.Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Query counter reset.")
			return nil
		},
	}
}

func printQuota(w io.Writer, st models.QuotaState) {
	fmt.Fprintf(w, "Tier:       %s\n", st.Tier)
	fmt.Fprintf(w, "Queries:    %d / %d\n", st.Count, st.Limit)
	fmt.Fprintf(w, "Remaining:  %d\n", st.Remaining())
}
