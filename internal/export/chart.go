package export

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/carbonlens/carbonlens-cli/internal/model"
)

// Trend selects which projection series a chart plots.
type Trend int

const (
	TrendRevenue Trend = iota // cumulative revenue, Million USD
	TrendCO2                  // cumulative CO2 reduced, Million tonnes
	TrendRisk                 // abolishment risk, percent
)

const (
	chartWidth  = 800
	chartHeight = 400
	gridSteps   = 5
	maxXLabels  = 6
)

// ValueRange computes the y-axis span for a series: the floor is pulled
// down to zero and the ceiling up to one so flat or all-zero series
// still render with a visible axis.
func ValueRange(values []float64) (min, max float64) {
	min, max = 0, 1
	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

// GridValues returns the horizontal gridline values: gridSteps equal
// intervals across [min, max], inclusive of both ends.
func GridValues(min, max float64) []float64 {
	span := max - min
	if span == 0 {
		span = 1
	}
	out := make([]float64, gridSteps+1)
	for i := 0; i <= gridSteps; i++ {
		out[i] = min + span*float64(i)/gridSteps
	}
	return out
}

// YearTicks subsamples the x-axis labels so at most maxLabels years are
// drawn, keeping the first year and an even stride after it.
func YearTicks(years []int, maxLabels int) []int {
	if len(years) == 0 {
		return nil
	}
	if maxLabels < 1 {
		maxLabels = 1
	}
	step := len(years) / maxLabels
	if step < 1 {
		step = 1
	}
	var out []int
	for i := 0; i < len(years); i += step {
		out = append(out, years[i])
	}
	return out
}

func trendSeries(projs []model.YearProjection, t Trend) (values []float64, label string, color drawing.Color) {
	values = make([]float64, len(projs))
	switch t {
	case TrendCO2:
		for i, p := range projs {
			values[i] = p.CO2ReducedCumulativeMt
		}
		return values, "Cumulative CO2 Reduced (Million tonnes)", drawing.ColorFromHex("60a5fa")
	case TrendRisk:
		for i, p := range projs {
			values[i] = p.AbolishmentRiskPercent
		}
		return values, "Abolishment Risk (%)", drawing.ColorFromHex("fbbf24")
	default:
		for i, p := range projs {
			values[i] = p.CumulativeRevenueMillion
		}
		return values, "Cumulative Revenue (Million USD)", drawing.ColorFromHex("00ff6f")
	}
}

// RenderTrendPNG rasterizes one projection series as a line chart. The
// axis math comes from the pure helpers above; this function only wires
// it into the renderer.
func RenderTrendPNG(projs []model.YearProjection, t Trend) ([]byte, error) {
	if len(projs) == 0 {
		return nil, eris.New("export: no projection data to chart")
	}

	values, label, color := trendSeries(projs, t)
	years := make([]int, len(projs))
	xs := make([]float64, len(projs))
	for i, p := range projs {
		years[i] = p.Year
		xs[i] = float64(p.Year)
	}

	yMin, yMax := ValueRange(values)
	var yTicks []chart.Tick
	var gridLines []chart.GridLine
	for _, v := range GridValues(yMin, yMax) {
		yTicks = append(yTicks, chart.Tick{Value: v, Label: num1(v)})
		gridLines = append(gridLines, chart.GridLine{Value: v})
	}

	var xTicks []chart.Tick
	for _, y := range YearTicks(years, maxXLabels) {
		xTicks = append(xTicks, chart.Tick{Value: float64(y), Label: itoa(y)})
	}
	xMin, xMax := xs[0], xs[len(xs)-1]
	if xMin == xMax {
		// Single-year horizon: widen the range so the renderer has a span.
		xMin, xMax = xMin-0.5, xMax+0.5
	}

	graph := chart.Chart{
		Title:  label,
		Width:  chartWidth,
		Height: chartHeight,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20},
		},
		XAxis: chart.XAxis{
			Ticks: xTicks,
			Range: &chart.ContinuousRange{Min: xMin, Max: xMax},
		},
		YAxis: chart.YAxis{
			Ticks: yTicks,
			Range: &chart.ContinuousRange{Min: yMin, Max: yMax},
			GridMajorStyle: chart.Style{
				StrokeColor: drawing.ColorFromHex("e0e0e0"),
				StrokeWidth: 1,
			},
			GridLines: gridLines,
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				XValues: xs,
				YValues: values,
				Style: chart.Style{
					StrokeColor: color,
					StrokeWidth: 3,
					DotColor:    color,
					DotWidth:    4,
				},
			},
		},
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, eris.Wrap(err, "export: render trend chart")
	}
	return buf.Bytes(), nil
}

func num1(v float64) string { return fmt.Sprintf("%.1f", v) }

func itoa(v int) string { return strconv.Itoa(v) }

