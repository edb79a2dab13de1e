package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/carbonlens/carbonlens-cli/internal/compare"
	"github.com/carbonlens/carbonlens-cli/internal/model"
	"github.com/carbonlens/carbonlens-cli/internal/store"
	"github.com/carbonlens/carbonlens-cli/pkg/climate"
)

var (
	compareLocal bool
	compareSave  bool
)

var compareCmd = &cobra.Command{
	Use:   "compare <id1> <id2>",
	Short: "Compare two saved simulations side by side",
	Long:  "Resolves both simulations by ID, merges their stored parameters, and prints a side-by-side comparison. Selection order is preserved: the first ID always renders left.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id1, id2 := args[0], args[1]

		var sim1, sim2 *compare.RawSimulation
		var err error
		if compareLocal {
			sim1, sim2, err = localSides(cmd, id1, id2)
		} else {
			sim1, sim2, err = remoteSides(cmd, id1, id2)
		}
		if err != nil {
			return err
		}

		merged, err := compare.Merge(sim1, sim2)
		if err != nil {
			return err
		}
		printComparison(merged)

		if compareSave {
			left, err := compare.ToExportModel(sim1)
			if err != nil {
				return err
			}
			right, err := compare.ToExportModel(sim2)
			if err != nil {
				return err
			}

			rec := model.ComparisonRecord{
				Policy1Name:  left.PolicyName,
				Policy2Name:  right.PolicyName,
				Policy1Input: left.InputParams,
				Policy2Input: right.InputParams,
			}
			if compareLocal {
				st, err := openHistory(ctx)
				if err != nil {
					return err
				}
				defer st.Close() //nolint:errcheck
				rec.ID = uuid.New().String()
				if err := st.PutComparison(ctx, rec); err != nil {
					return eris.Wrap(err, "save comparison")
				}
				fmt.Fprintf(os.Stderr, "Comparison saved (%s)\n", rec.ID)
			} else {
				client, err := initClient()
				if err != nil {
					return err
				}
				saved, err := client.SaveComparison(ctx, rec)
				if err != nil {
					return reportError(err)
				}
				fmt.Fprintf(os.Stderr, "Comparison saved (%s)\n", saved.ID)
			}
		}
		return nil
	},
}

// -- compare list --

var compareListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved comparisons",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		var recs []model.ComparisonRecord
		if compareLocal {
			st, err := openHistory(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			recs, err = st.ListComparisons(ctx)
			if err != nil {
				return eris.Wrap(err, "compare list")
			}
		} else {
			client, err := initClient()
			if err != nil {
				return err
			}
			recs, err = client.ListComparisons(ctx)
			if err != nil {
				return reportError(err)
			}
		}

		if len(recs) == 0 {
			fmt.Fprintln(os.Stderr, "No comparisons found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPOLICY 1\tPOLICY 2\tCREATED")
		for _, r := range recs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				r.ID, r.Policy1Name, r.Policy2Name, r.CreatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

// -- compare show --

var compareShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a saved comparison",
	Long:  "Prints the stored pairing exactly as it was saved. Records carry policy names and parameters only; the model is never re-run.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var rec *model.ComparisonRecord
		if compareLocal {
			st, err := openHistory(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			rec, err = st.GetComparison(ctx, args[0])
			if err != nil {
				return err
			}
			if rec == nil {
				return eris.Errorf("comparison %s not found in the local store", args[0])
			}
		} else {
			client, err := initClient()
			if err != nil {
				return err
			}
			rec, err = client.GetComparison(ctx, args[0])
			if err != nil {
				return reportError(err)
			}
		}

		merged, err := compare.Merge(compare.FromRecord(rec))
		if err != nil {
			return err
		}
		printComparison(merged)
		return nil
	},
}

// -- compare delete --

var compareDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a saved comparison",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if compareLocal {
			st, err := openHistory(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			if err := st.DeleteComparison(ctx, args[0]); err != nil {
				return eris.Wrap(err, "compare delete")
			}
		} else {
			client, err := initClient()
			if err != nil {
				return err
			}
			if err := client.DeleteComparison(ctx, args[0]); err != nil {
				return reportError(err)
			}
		}
		fmt.Println("Deleted.")
		return nil
	},
}

// remoteSides resolves both sides server-side in one request.
func remoteSides(cmd *cobra.Command, id1, id2 string) (*compare.RawSimulation, *compare.RawSimulation, error) {
	client, err := initClient()
	if err != nil {
		return nil, nil, err
	}
	resp, err := client.Compare(cmd.Context(), climate.CompareRequest{
		SimulationID1: id1,
		SimulationID2: id2,
	})
	if err != nil {
		return nil, nil, reportError(err)
	}

	var sim1, sim2 compare.RawSimulation
	if err := json.Unmarshal(resp.Simulation1, &sim1); err != nil {
		return nil, nil, eris.Wrap(err, "decode first simulation")
	}
	if err := json.Unmarshal(resp.Simulation2, &sim2); err != nil {
		return nil, nil, eris.Wrap(err, "decode second simulation")
	}
	return &sim1, &sim2, nil
}

// openHistory opens the local history store ready for reads.
func openHistory(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// localSides loads both sides from the history store concurrently.
func localSides(cmd *cobra.Command, id1, id2 string) (*compare.RawSimulation, *compare.RawSimulation, error) {
	ctx := cmd.Context()

	st, err := openHistory(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer st.Close() //nolint:errcheck

	var saved1, saved2 *model.SavedSimulation
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		saved1, err = st.GetSimulation(gctx, id1)
		return err
	})
	g.Go(func() error {
		var err error
		saved2, err = st.GetSimulation(gctx, id2)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if saved1 == nil {
		return nil, nil, eris.Errorf("simulation %s not found in the local store", id1)
	}
	if saved2 == nil {
		return nil, nil, eris.Errorf("simulation %s not found in the local store", id2)
	}
	return compare.FromSaved(saved1), compare.FromSaved(saved2), nil
}

func printComparison(m *compare.Merged) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "\t%s\t%s\n", m.Left.PolicyName, m.Right.PolicyName)
	fmt.Fprintf(w, "Country\t%s\t%s\n", m.Left.Country, m.Right.Country)
	fmt.Fprintf(w, "Policy type\t%s\t%s\n", m.Left.PolicyType, m.Right.PolicyType)
	fmt.Fprintf(w, "Carbon price ($/t)\t%s\t%s\n", m.Left.CarbonPrice, m.Right.CarbonPrice)
	fmt.Fprintf(w, "Coverage (%%)\t%s\t%s\n", m.Left.Coverage, m.Right.Coverage)
	fmt.Fprintf(w, "Start year\t%s\t%s\n", m.Left.Year, m.Right.Year)
	fmt.Fprintf(w, "Duration (years)\t%s\t%s\n", m.Left.Duration, m.Right.Duration)

	if m.Left.Results != nil && m.Right.Results != nil {
		l, r := m.Left.Results, m.Right.Results
		fmt.Fprintf(w, "Revenue ($M)\t%.2f\t%.2f\n", l.RevenueMillion, r.RevenueMillion)
		fmt.Fprintf(w, "Risk-adjusted ($M)\t%.2f\t%.2f\n", l.RiskAdjustedValueMillion, r.RiskAdjustedValueMillion)
		fmt.Fprintf(w, "Abolishment risk\t%.1f%% (%s)\t%.1f%% (%s)\n",
			l.AbolishmentRiskPercent, l.RiskCategory, r.AbolishmentRiskPercent, r.RiskCategory)
		fmt.Fprintf(w, "CO2 reduced (Mt)\t%.3f\t%.3f\n", l.CO2ReducedMt, r.CO2ReducedMt)
	}
	w.Flush()
}

func init() {
	compareCmd.PersistentFlags().BoolVar(&compareLocal, "local", false, "use the local store instead of the backend")
	compareCmd.Flags().BoolVar(&compareSave, "save", false, "save the comparison")

	compareCmd.AddCommand(compareListCmd, compareShowCmd, compareDeleteCmd)
	rootCmd.AddCommand(compareCmd)
}
