package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/carbonlens/carbonlens-cli/internal/model"
	"github.com/carbonlens/carbonlens-cli/internal/store"
)

var simsCmd = &cobra.Command{
	Use:   "sims",
	Short: "Manage saved simulations",
	Long:  "Commands for listing, inspecting, renaming, and deleting saved simulations, and syncing them into the local history store.",
}

// -- sims list --

var simsLocal bool

var simsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved simulations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		var summaries []model.SimulationSummary
		if simsLocal {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			if err := st.Migrate(ctx); err != nil {
				return err
			}
			saved, err := st.ListSimulations(ctx, store.Filter{})
			if err != nil {
				return eris.Wrap(err, "sims list")
			}
			for _, s := range saved {
				summaries = append(summaries, summarize(s))
			}
		} else {
			client, err := initClient()
			if err != nil {
				return err
			}
			summaries, err = client.ListSimulations(ctx)
			if err != nil {
				return reportError(err)
			}
		}

		if len(summaries) == 0 {
			fmt.Fprintln(os.Stderr, "No simulations found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tCOUNTRY\tPOLICY\tPRICE\tCOVERAGE\tREVENUE ($M)\tRISK")
		for _, s := range summaries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t$%.0f\t%.0f%%\t%.2f\t%s\n",
				s.ID, s.PolicyName, s.Country, s.PolicyType,
				s.CarbonPriceUSD, s.CoveragePercent, s.RevenueMillion, s.RiskCategory)
		}
		return w.Flush()
	},
}

func summarize(s model.SavedSimulation) model.SimulationSummary {
	sum := model.SimulationSummary{
		ID:              s.ID,
		PolicyName:      s.PolicyName,
		CreatedAt:       s.CreatedAt,
		Country:         s.InputParams.Country,
		PolicyType:      s.InputParams.PolicyType,
		CarbonPriceUSD:  s.InputParams.CarbonPriceUSD,
		CoveragePercent: s.InputParams.CoveragePercent,
	}
	if s.Results != nil {
		sum.RevenueMillion = s.Results.RevenueMillion
		sum.RiskCategory = s.Results.RiskCategory
	}
	return sum
}

// -- sims show --

var simsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one saved simulation with full results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := initClient()
		if err != nil {
			return err
		}
		sim, err := client.GetSimulation(cmd.Context(), args[0])
		if err != nil {
			return reportError(err)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sim)
	},
}

// -- sims rename --

var simsRenameCmd = &cobra.Command{
	Use:   "rename <id> <name>",
	Short: "Rename a saved simulation",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := initClient()
		if err != nil {
			return err
		}
		sim, err := client.RenameSimulation(cmd.Context(), args[0], args[1])
		if err != nil {
			return reportError(err)
		}
		fmt.Printf("Renamed to %q\n", sim.PolicyName)
		return nil
	},
}

// -- sims delete --

var simsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a saved simulation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := initClient()
		if err != nil {
			return err
		}
		if err := client.DeleteSimulation(cmd.Context(), args[0]); err != nil {
			return reportError(err)
		}
		fmt.Println("Deleted.")
		return nil
	},
}

// -- sims sync --

var simsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Copy saved simulations from the backend into the local store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		client, err := initClient()
		if err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		summaries, err := client.ListSimulations(ctx)
		if err != nil {
			return reportError(err)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(4)
		sims := make([]*model.SavedSimulation, len(summaries))
		for i, s := range summaries {
			g.Go(func() error {
				sim, err := client.GetSimulation(gctx, s.ID)
				if err != nil {
					return eris.Wrapf(err, "fetch simulation %s", s.ID)
				}
				sims[i] = sim
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return reportError(err)
		}

		for _, sim := range sims {
			if err := st.PutSimulation(ctx, *sim); err != nil {
				return eris.Wrapf(err, "store simulation %s", sim.ID)
			}
		}

		zap.L().Info("synced simulations", zap.Int("count", len(sims)))
		fmt.Printf("Synced %d simulations.\n", len(sims))
		return nil
	},
}

func init() {
	simsListCmd.Flags().BoolVar(&simsLocal, "local", false, "list from the local store instead of the backend")

	simsCmd.AddCommand(simsListCmd, simsShowCmd, simsRenameCmd, simsDeleteCmd, simsSyncCmd)
	rootCmd.AddCommand(simsCmd)
}
