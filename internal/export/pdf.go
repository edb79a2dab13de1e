package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/carbonlens/carbonlens-cli/internal/model"
)

const (
	pageWidth      = 210.0 // A4 portrait, mm
	marginLeft     = 14.0
	maxProjRowsPDF = 15
)

// intPrinter renders equivalency counts with thousands separators.
var intPrinter = message.NewPrinter(language.English)

func newDoc() *fpdf.Fpdf {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 15)
	return pdf
}

// banner draws the green title band at the top of the first page.
func banner(pdf *fpdf.Fpdf, title string) {
	pdf.SetFillColor(0, 255, 111)
	pdf.Rect(0, 0, pageWidth, 30, "F")
	pdf.SetTextColor(10, 13, 11)
	pdf.SetFont("Helvetica", "B", 20)
	pdf.SetXY(0, 12)
	pdf.CellFormat(pageWidth, 10, title, "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(102, 102, 102)
	pdf.SetXY(0, 23)
	generated := "Generated: " + time.Now().Format(timeLayout)
	pdf.CellFormat(pageWidth, 6, generated, "", 1, "C", false, 0, "")
	pdf.SetY(40)
}

func sectionTitle(pdf *fpdf.Fpdf, title string, centered bool) {
	pdf.SetFont("Helvetica", "B", 16)
	pdf.SetTextColor(1, 214, 223)
	align := "L"
	x := marginLeft
	if centered {
		align = "C"
		x = 0
	}
	pdf.SetX(x)
	pdf.CellFormat(pageWidth-2*x, 8, title, "", 1, align, false, 0, "")
	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Helvetica", "", 11)
	pdf.SetY(pdf.GetY() + 2)
}

func labelValues(pdf *fpdf.Fpdf, pairs [][2]string, valueX float64) {
	for _, pair := range pairs {
		y := pdf.GetY()
		pdf.SetFont("Helvetica", "B", 11)
		pdf.SetXY(marginLeft, y)
		pdf.CellFormat(valueX-marginLeft, 7, pair[0]+":", "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(pageWidth-valueX-marginLeft, 7, pair[1], "", 1, "L", false, 0, "")
	}
	pdf.SetY(pdf.GetY() + 5)
}

// grid draws a bordered table with a filled header row.
func grid(pdf *fpdf.Fpdf, headers []string, rows [][]string, widths []float64) {
	pdf.SetFont("Helvetica", "B", 8)
	pdf.SetFillColor(0, 255, 111)
	pdf.SetTextColor(10, 13, 11)
	pdf.SetX(marginLeft)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 6, h, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 8)
	pdf.SetTextColor(0, 0, 0)
	for _, row := range rows {
		pdf.SetX(marginLeft)
		for i, cell := range row {
			pdf.CellFormat(widths[i], 6, cell, "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
	}
}

func embedChart(pdf *fpdf.Fpdf, name, title string, png []byte) error {
	pdf.AddPage()
	pdf.SetY(20)
	sectionTitle(pdf, title, true)

	opts := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(png))
	pdf.ImageOptions(name, 20, pdf.GetY(), 170, 85, false, opts, 0, "")
	if err := pdf.Error(); err != nil {
		return eris.Wrap(err, "export: embed chart image")
	}
	return nil
}

// SimulationPDF assembles the multi-page report for one simulation:
// header and summaries, rasterized trend charts, the projections table
// (capped at 15 rows) and the free-text recommendation page.
func SimulationPDF(sim model.SavedSimulation) ([]byte, error) {
	res := sim.Results
	if res == nil {
		return nil, ErrNoResults
	}
	in := sim.InputParams

	pdf := newDoc()
	pdf.AddPage()

	title := sim.PolicyName
	if title == "" {
		title = "Climate Policy Simulation Report"
	}
	banner(pdf, title)

	sectionTitle(pdf, "Policy Parameters", false)
	labelValues(pdf, [][2]string{
		{"Country", orNA(in.Country)},
		{"Policy Type", orNA(string(in.PolicyType))},
		{"Carbon Price", fmt.Sprintf("$%s/tonne", num(in.CarbonPriceUSD))},
		{"Coverage", fmt.Sprintf("%s%%", num(in.CoveragePercent))},
		{"Year", itoa(in.Year)},
		{"Projection Period", fmt.Sprintf("%d years", in.ProjectionYears)},
	}, 60)

	sectionTitle(pdf, "Financial Predictions", false)
	labelValues(pdf, [][2]string{
		{"Predicted Revenue", fmt.Sprintf("$%.2fM", res.RevenueMillion)},
		{"Risk Adjusted Value", fmt.Sprintf("$%.2fM", res.RiskAdjustedValueMillion)},
		{"Abolishment Risk", fmt.Sprintf("%.1f%%", res.AbolishmentRiskPercent)},
		{"Risk Category", orNA(string(res.RiskCategory))},
	}, 70)

	if len(res.Projections) > 0 {
		revenuePNG, err := RenderTrendPNG(res.Projections, TrendRevenue)
		if err != nil {
			return nil, err
		}
		if err := embedChart(pdf, "revenue-trend", "Revenue Trend", revenuePNG); err != nil {
			return nil, err
		}

		co2PNG, err := RenderTrendPNG(res.Projections, TrendCO2)
		if err != nil {
			return nil, err
		}
		if err := embedChart(pdf, "co2-trend", "CO2 Reduction Trend", co2PNG); err != nil {
			return nil, err
		}
	}

	pdf.AddPage()
	pdf.SetY(20)

	sectionTitle(pdf, "Environmental Impact", false)
	labelValues(pdf, [][2]string{
		{"Total Country CO2", fmt.Sprintf("%.2f Million tonnes", res.TotalCountryCO2Mt)},
		{"CO2 Covered", fmt.Sprintf("%.2f Million tonnes", res.CO2CoveredMt)},
		{"Potential CO2 Reduction", fmt.Sprintf("%.2f Million tonnes", res.CO2ReducedMt)},
		{"CO2 Covered Per Capita", fmt.Sprintf("%.2f tonnes", res.CO2CoveredPerCapitaTonne)},
	}, 75)

	sectionTitle(pdf, "Environmental Equivalencies", false)
	labelValues(pdf, [][2]string{
		{"Cars Off Road (1 year)", intPrinter.Sprintf("%d", res.CarsOffRoadEquivalent)},
		{"Trees Planted (1 year)", intPrinter.Sprintf("%d", res.TreesPlantedEquivalent)},
		{"Coal Plants Closed (1GW)", fmt.Sprintf("%.2f", res.CoalPlantsClosedEquivalent)},
		{"Homes Powered Clean (1 year)", intPrinter.Sprintf("%d", res.HomesPoweredEquivalent)},
	}, 80)

	if len(res.Projections) > 0 {
		pdf.AddPage()
		pdf.SetY(20)
		sectionTitle(pdf, "Year-by-Year Projections", true)

		rows := make([][]string, 0, maxProjRowsPDF)
		for i, p := range res.Projections {
			if i >= maxProjRowsPDF {
				break
			}
			rows = append(rows, []string{
				itoa(p.Year),
				fmt.Sprintf("%.2f", p.RevenueMillion),
				fmt.Sprintf("%.2f", p.CO2ReducedMt),
				fmt.Sprintf("%.1f", p.AbolishmentRiskPercent),
				string(p.RiskCategory),
			})
		}
		grid(pdf,
			[]string{"Year", "Revenue ($M)", "CO2 Reduced (MT)", "Risk (%)", "Category"},
			rows,
			[]float64{25, 40, 45, 32, 40},
		)
	}

	if res.Recommendation != "" || res.ContextExplanation != "" {
		pdf.AddPage()
		pdf.SetY(20)
		sectionTitle(pdf, "Recommendations & Analysis", false)

		if res.Recommendation != "" {
			pdf.SetFont("Helvetica", "B", 11)
			pdf.SetX(marginLeft)
			pdf.CellFormat(0, 7, "Recommendation:", "", 1, "L", false, 0, "")
			pdf.SetFont("Helvetica", "", 11)
			pdf.SetX(marginLeft)
			pdf.MultiCell(pageWidth-2*marginLeft, 6, res.Recommendation, "", "L", false)
			pdf.SetY(pdf.GetY() + 5)
		}
		if res.ContextExplanation != "" {
			pdf.SetFont("Helvetica", "B", 11)
			pdf.SetX(marginLeft)
			pdf.CellFormat(0, 7, "Context Explanation:", "", 1, "L", false, 0, "")
			pdf.SetFont("Helvetica", "", 11)
			pdf.SetX(marginLeft)
			pdf.MultiCell(pageWidth-2*marginLeft, 6, res.ContextExplanation, "", "L", false)
		}
	}

	return output(pdf)
}

// ComparisonPDF assembles the two-policy report: per-policy parameter
// blocks followed by the side-by-side metric table.
func ComparisonPDF(sim1, sim2 model.SavedSimulation) ([]byte, error) {
	if sim1.Results == nil || sim2.Results == nil {
		return nil, ErrInvalidComparison
	}

	pdf := newDoc()
	pdf.AddPage()
	banner(pdf, "Policy Comparison Report")

	for i, sim := range []model.SavedSimulation{sim1, sim2} {
		in := sim.InputParams
		res := sim.Results
		sectionTitle(pdf, fmt.Sprintf("Policy %d", i+1), false)
		labelValues(pdf, [][2]string{
			{"Name", orPolicy(sim.PolicyName, i+1)},
			{"Country", orNA(in.Country)},
			{"Type", orNA(string(in.PolicyType))},
			{"Carbon Price", fmt.Sprintf("$%s/tonne", num(in.CarbonPriceUSD))},
			{"Coverage", fmt.Sprintf("%s%%", num(in.CoveragePercent))},
			{"Revenue", fmt.Sprintf("$%.2fM", res.RevenueMillion)},
			{"Risk Adjusted Value", fmt.Sprintf("$%.2fM", res.RiskAdjustedValueMillion)},
			{"Risk Category", orNA(string(res.RiskCategory))},
			{"CO2 Reduced", fmt.Sprintf("%.2fM tonnes", res.CO2ReducedMt)},
		}, 60)
	}

	pdf.AddPage()
	pdf.SetY(20)
	sectionTitle(pdf, "Side-by-Side Comparison", true)

	r1, r2 := sim1.Results, sim2.Results
	grid(pdf,
		[]string{"Metric", "Policy 1", "Policy 2", "Difference"},
		[][]string{
			{"Revenue ($M)",
				fmt.Sprintf("$%.2f", r1.RevenueMillion),
				fmt.Sprintf("$%.2f", r2.RevenueMillion),
				fmt.Sprintf("$%.2f", r1.RevenueMillion-r2.RevenueMillion)},
			{"Risk Adj. Value ($M)",
				fmt.Sprintf("$%.2f", r1.RiskAdjustedValueMillion),
				fmt.Sprintf("$%.2f", r2.RiskAdjustedValueMillion),
				fmt.Sprintf("$%.2f", r1.RiskAdjustedValueMillion-r2.RiskAdjustedValueMillion)},
			{"Abolishment Risk (%)",
				fmt.Sprintf("%.1f%%", r1.AbolishmentRiskPercent),
				fmt.Sprintf("%.1f%%", r2.AbolishmentRiskPercent),
				fmt.Sprintf("%.1f%%", r1.AbolishmentRiskPercent-r2.AbolishmentRiskPercent)},
			{"CO2 Reduced (M tonnes)",
				fmt.Sprintf("%.2f", r1.CO2ReducedMt),
				fmt.Sprintf("%.2f", r2.CO2ReducedMt),
				fmt.Sprintf("%.2f", r1.CO2ReducedMt-r2.CO2ReducedMt)},
		},
		[]float64{55, 42, 42, 43},
	)

	return output(pdf)
}

func output(pdf *fpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, eris.Wrap(err, "export: write pdf")
	}
	return buf.Bytes(), nil
}
