package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/carbonlens/carbonlens-cli/internal/export"
	"github.com/carbonlens/carbonlens-cli/internal/model"
)

var (
	exportFormat string
	exportDir    string
	exportLocal  bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export simulation reports",
	Long:  "Generates CSV, XLSX, or PDF reports from saved simulations. Files are written whole; a failed export leaves nothing behind.",
}

// resolveSimulation fetches one simulation from the backend or the
// local store.
func resolveSimulation(ctx context.Context, id string) (*model.SavedSimulation, error) {
	if exportLocal {
		st, err := initStore(ctx)
		if err != nil {
			return nil, err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return nil, err
		}
		sim, err := st.GetSimulation(ctx, id)
		if err != nil {
			return nil, err
		}
		if sim == nil {
			return nil, eris.Errorf("simulation %s not found in the local store", id)
		}
		return sim, nil
	}

	client, err := initClient()
	if err != nil {
		return nil, err
	}
	sim, err := client.GetSimulation(ctx, id)
	if err != nil {
		return nil, reportError(err)
	}
	return sim, nil
}

// renderSimulation produces the report bytes for one format.
func renderSimulation(sim model.SavedSimulation, format string) ([]byte, error) {
	switch format {
	case "csv":
		s, err := export.SimulationCSV(sim)
		if err != nil {
			return nil, err
		}
		return []byte(s), nil
	case "xlsx":
		var buf bytes.Buffer
		if err := export.SimulationXLSX(sim, &buf); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case "pdf":
		return export.SimulationPDF(sim)
	default:
		return nil, eris.Errorf("unsupported format: %s (want csv, xlsx, or pdf)", format)
	}
}

func renderComparison(sim1, sim2 model.SavedSimulation, format string) ([]byte, error) {
	switch format {
	case "csv":
		s, err := export.ComparisonCSV(sim1, sim2)
		if err != nil {
			return nil, err
		}
		return []byte(s), nil
	case "xlsx":
		var buf bytes.Buffer
		if err := export.ComparisonXLSX(sim1, sim2, &buf); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case "pdf":
		return export.ComparisonPDF(sim1, sim2)
	default:
		return nil, eris.Errorf("unsupported format: %s (want csv, xlsx, or pdf)", format)
	}
}

// writeReport writes the finished report in one shot.
func writeReport(name string, data []byte) (string, error) {
	dir := exportDir
	if dir == "" {
		dir = cfg.Export.Dir
	}
	if dir == "" {
		dir = "."
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", eris.Wrap(err, "write report")
	}
	return path, nil
}

var exportSimCmd = &cobra.Command{
	Use:   "sim <id>",
	Short: "Export one simulation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sim, err := resolveSimulation(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		data, err := renderSimulation(*sim, exportFormat)
		if err != nil {
			return err
		}

		path, err := writeReport(export.FileName(sim.PolicyName, exportFormat), data)
		if err != nil {
			return err
		}

		zap.L().Info("exported simulation",
			zap.String("id", sim.ID),
			zap.String("format", exportFormat),
			zap.String("path", path))
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

var exportComparisonCmd = &cobra.Command{
	Use:   "comparison <id1> <id2>",
	Short: "Export a side-by-side comparison of two simulations",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Both sides fetched concurrently; everything downstream
		// works on the local copies.
		var sim1, sim2 *model.SavedSimulation
		g, gctx := errgroup.WithContext(cmd.Context())
		g.Go(func() error {
			var err error
			sim1, err = resolveSimulation(gctx, args[0])
			return err
		})
		g.Go(func() error {
			var err error
			sim2, err = resolveSimulation(gctx, args[1])
			return err
		})
		if err := g.Wait(); err != nil {
			return err
		}

		data, err := renderComparison(*sim1, *sim2, exportFormat)
		if err != nil {
			return err
		}

		path, err := writeReport(export.ComparisonFileName(exportFormat), data)
		if err != nil {
			return err
		}

		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

func init() {
	exportCmd.PersistentFlags().StringVar(&exportFormat, "format", "csv", "report format: csv, xlsx, or pdf")
	exportCmd.PersistentFlags().StringVar(&exportDir, "out", "", "output directory (default from config)")
	exportCmd.PersistentFlags().BoolVar(&exportLocal, "local", false, "resolve IDs from the local store")

	exportCmd.AddCommand(exportSimCmd, exportComparisonCmd)
	rootCmd.AddCommand(exportCmd)
}
