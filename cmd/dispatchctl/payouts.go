package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	actorID string
	fromArg string
	toArg   string
)

func newRecalcBonusesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recalc-bonuses",
		Short: "Recompute payouts for tickets closed in a range",
		Long:  `Regenerate performance logs and fee snapshots from the current settings for every ticket closed in [from, to).`,
		RunE:  runRecalcBonuses,
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "Admin user id the run is recorded under (required)")
	cmd.Flags().StringVar(&fromArg, "from", "", "Start date, YYYY-MM-DD or RFC3339 (required)")
	cmd.Flags().StringVar(&toArg, "to", "", "End date, exclusive; defaults to now")
	_ = cmd.MarkFlagRequired("actor")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}

func runRecalcBonuses(cmd *cobra.Command, _ []string) error {
	rt, err := openRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	loc := rt.Config.App.Location()
	from, err := parseDate(fromArg, loc)
	if err != nil {
		return fmt.Errorf("--from: %w", err)
	}
	to := time.Now()
	if toArg != "" {
		if to, err = parseDate(toArg, loc); err != nil {
			return fmt.Errorf("--to: %w", err)
		}
	}

	actor, err := loadActor(cmd.Context(), rt.Users, actorID)
	if err != nil {
		return err
	}
	result, err := rt.Services().Bonus.Recalculate(cmd.Context(), actor, from, to)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "recalculated %d tickets, %d payout lines, total %s\n",
		result.Tickets, result.Logs, result.Total)
	return nil
}

func newNormalizeLegacyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "normalize-legacy",
		Short: "Rewrite tickets still in the retired overdue status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			actor, err := loadActor(cmd.Context(), rt.Users, actorID)
			if err != nil {
				return err
			}
			changed, err := rt.Services().Tickets.NormalizeLegacyStatuses(cmd.Context(), actor)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "normalized %d tickets\n", changed)
			return nil
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "Admin user id (required)")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func parseDate(raw string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.ParseInLocation(time.DateOnly, raw, loc)
}
