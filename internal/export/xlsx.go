package export

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/carbonlens/carbonlens-cli/internal/model"
)

func writeSheet(f *xlsx.File, name string, rows [][]string) error {
	sheet, err := f.AddSheet(name)
	if err != nil {
		return eris.Wrapf(err, "export: add sheet %s", name)
	}
	for _, row := range rows {
		r := sheet.AddRow()
		for _, cell := range row {
			r.AddCell().Value = cell
		}
	}
	return nil
}

// SimulationXLSX writes one simulation as a workbook, reusing the same
// section layout as the CSV export.
func SimulationXLSX(sim model.SavedSimulation, w io.Writer) error {
	if sim.Results == nil {
		return ErrNoResults
	}
	f := xlsx.NewFile()
	if err := writeSheet(f, "Simulation", simulationRows(sim)); err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "export: write xlsx")
	}
	return nil
}

// ComparisonXLSX writes a two-policy comparison workbook.
func ComparisonXLSX(sim1, sim2 model.SavedSimulation, w io.Writer) error {
	if sim1.Results == nil || sim2.Results == nil {
		return ErrInvalidComparison
	}
	f := xlsx.NewFile()
	if err := writeSheet(f, "Comparison", comparisonRows(sim1, sim2)); err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "export: write xlsx")
	}
	return nil
}
