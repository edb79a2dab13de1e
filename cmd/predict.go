package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/carbonlens/carbonlens-cli/internal/model"
)

var (
	predictCountry  string
	predictPolicy   string
	predictPrice    float64
	predictCoverage float64
	predictYear     int
	predictDuration int
	predictJSON     bool
	predictSave     bool
	predictName     string
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Run a policy simulation",
	Long:  "Runs the carbon-pricing model for one policy and prints revenue, risk, and emission projections.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		in := model.SimulationInput{
			Country:         predictCountry,
			PolicyType:      model.PolicyType(predictPolicy),
			CarbonPriceUSD:  predictPrice,
			CoveragePercent: predictCoverage,
			Year:            predictYear,
			ProjectionYears: predictDuration,
		}
		if err := in.Validate(); err != nil {
			return err
		}

		client, err := initClient()
		if err != nil {
			return err
		}

		result, err := client.Predict(ctx, in)
		if err != nil {
			return reportError(err)
		}
		if err := model.CheckProjections(result.Projections); err != nil {
			zap.L().Warn("backend returned unordered projections", zap.Error(err))
		}

		if predictSave {
			saved, err := client.SaveSimulation(ctx, in, result, predictName)
			if err != nil {
				return reportError(err)
			}
			fmt.Fprintf(os.Stderr, "Saved as %q (%s)\n", saved.PolicyName, saved.ID)
		}

		if predictJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}

		printPrediction(in, result)
		return nil
	},
}

func printPrediction(in model.SimulationInput, r *model.PredictionResult) {
	fmt.Printf("%s — %s @ $%.2f/tonne, %.0f%% coverage, %d\n\n",
		in.Country, in.PolicyType, in.CarbonPriceUSD, in.CoveragePercent, in.Year)

	fmt.Printf("Revenue:             $%.2fM/year\n", r.RevenueMillion)
	fmt.Printf("Risk-adjusted value: $%.2fM/year\n", r.RiskAdjustedValueMillion)
	fmt.Printf("Abolishment risk:    %.1f%% (%s)\n", r.AbolishmentRiskPercent, r.RiskCategory)
	fmt.Printf("CO2 covered:         %.2f Mt of %.2f Mt\n", r.CO2CoveredMt, r.TotalCountryCO2Mt)
	fmt.Printf("CO2 reduced:         %.3f Mt/year\n\n", r.CO2ReducedMt)

	if len(r.Projections) > 0 {
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "YEAR\tREVENUE ($M)\tCO2 REDUCED (Mt)\tRISK\tCATEGORY")
		for _, p := range r.Projections {
			fmt.Fprintf(w, "%d\t%.2f\t%.3f\t%.1f%%\t%s\n",
				p.Year, p.RevenueMillion, p.CO2ReducedMt, p.AbolishmentRiskPercent, p.RiskCategory)
		}
		w.Flush()
		fmt.Println()
	}

	fmt.Println(r.Recommendation)
}

func init() {
	predictCmd.Flags().StringVar(&predictCountry, "country", "", "country to simulate (required)")
	predictCmd.Flags().StringVar(&predictPolicy, "policy", string(model.PolicyCarbonTax), `policy type: "Carbon tax" or "ETS"`)
	predictCmd.Flags().Float64Var(&predictPrice, "price", 50, "carbon price in USD per tonne")
	predictCmd.Flags().Float64Var(&predictCoverage, "coverage", 40, "emissions coverage percent (10-90)")
	predictCmd.Flags().IntVar(&predictYear, "year", 2025, "policy start year")
	predictCmd.Flags().IntVar(&predictDuration, "duration", 5, "projection horizon in years (1-20)")
	predictCmd.Flags().BoolVar(&predictJSON, "json", false, "print the raw prediction JSON")
	predictCmd.Flags().BoolVar(&predictSave, "save", false, "save the simulation to the backend")
	predictCmd.Flags().StringVar(&predictName, "name", "", "policy name when saving")
	_ = predictCmd.MarkFlagRequired("country")

	rootCmd.AddCommand(predictCmd)
}
