// Package compare unifies the two wire shapes a simulation can arrive
// in. A freshly-run side of a comparison nests its parameters under
// "input" (form-style camelCase or request-style snake_case keys); a
// persisted simulation nests them under "input_params" (snake_case
// only). This package is the single place that fallback chain lives —
// downstream rendering and export only ever see the normalized shapes.
package compare

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/carbonlens/carbonlens-cli/internal/model"
)

const notAvailable = "N/A"

// ErrMissingData is returned when a comparison side is absent entirely.
// Save and export paths assume both halves exist, so the merge fails
// fast instead of producing a half-blank comparison.
var ErrMissingData = eris.New("compare: missing comparison data")

// FlexID tolerates numeric, string and null identifiers.
type FlexID string

func (f *FlexID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		*f = ""
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		*f = FlexID(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*f = FlexID(n.String())
		return nil
	}
	return eris.Errorf("compare: unsupported id value %s", s)
}

// FlexInput accepts both spellings of every parameter key, preferring
// the fresh form-style spelling. Numeric fields additionally tolerate
// string-encoded numbers, which the original form submits.
type FlexInput struct {
	Country     *string
	PolicyType  *string
	CarbonPrice *float64
	Coverage    *float64
	Year        *int
	Duration    *int
}

func (f *FlexInput) UnmarshalJSON(b []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return eris.Wrap(err, "compare: decode input object")
	}
	f.Country = pickString(m, "country")
	f.PolicyType = pickString(m, "policyType", "policy_type")
	f.CarbonPrice = pickFloat(m, "carbonPrice", "carbon_price_usd")
	f.Coverage = pickFloat(m, "coverage", "coverage_percent")
	f.Year = pickInt(m, "year")
	f.Duration = pickInt(m, "duration", "projection_years")
	return nil
}

func pickString(m map[string]json.RawMessage, keys ...string) *string {
	for _, k := range keys {
		raw, ok := m[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return &s
		}
	}
	return nil
}

func pickFloat(m map[string]json.RawMessage, keys ...string) *float64 {
	for _, k := range keys {
		raw, ok := m[k]
		if !ok {
			continue
		}
		var v float64
		if err := json.Unmarshal(raw, &v); err == nil {
			return &v
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				return &parsed
			}
		}
	}
	return nil
}

func pickInt(m map[string]json.RawMessage, keys ...string) *int {
	if v := pickFloat(m, keys...); v != nil {
		n := int(*v)
		return &n
	}
	return nil
}

// RawSimulation is one side of a comparison as it came off the wire or
// out of local state, before normalization.
type RawSimulation struct {
	ID          FlexID                  `json:"id"`
	PolicyName  string                  `json:"policy_name"`
	Input       *FlexInput              `json:"input"`
	InputParams *FlexInput              `json:"input_params"`
	Results     *model.PredictionResult `json:"results"`
	CreatedAt   *time.Time              `json:"created_at"`
}

// field resolves one parameter, preferring the fresh envelope and
// falling back to the persisted one.
func field[T any](sim *RawSimulation, get func(*FlexInput) *T) *T {
	if sim.Input != nil {
		if v := get(sim.Input); v != nil {
			return v
		}
	}
	if sim.InputParams != nil {
		if v := get(sim.InputParams); v != nil {
			return v
		}
	}
	return nil
}

// DisplayModel is the uniform side-by-side rendering shape. Absent
// fields carry the "N/A" literal so templates never print a nil.
type DisplayModel struct {
	PolicyName  string
	Country     string
	PolicyType  string
	CarbonPrice string
	Coverage    string
	Year        string
	Duration    string
	Results     *model.PredictionResult
}

// NormalizeForDisplay adapts either wire shape into a DisplayModel. It
// tolerates any combination of missing fields without panicking.
func NormalizeForDisplay(sim *RawSimulation) DisplayModel {
	if sim == nil {
		return DisplayModel{
			PolicyName: notAvailable, Country: notAvailable, PolicyType: notAvailable,
			CarbonPrice: notAvailable, Coverage: notAvailable, Year: notAvailable, Duration: notAvailable,
		}
	}
	dm := DisplayModel{
		PolicyName:  sim.PolicyName,
		Country:     strOrNA(field(sim, func(f *FlexInput) *string { return f.Country })),
		PolicyType:  strOrNA(field(sim, func(f *FlexInput) *string { return f.PolicyType })),
		CarbonPrice: floatOrNA(field(sim, func(f *FlexInput) *float64 { return f.CarbonPrice })),
		Coverage:    floatOrNA(field(sim, func(f *FlexInput) *float64 { return f.Coverage })),
		Year:        intOrNA(field(sim, func(f *FlexInput) *int { return f.Year })),
		Duration:    intOrNA(field(sim, func(f *FlexInput) *int { return f.Duration })),
		Results:     sim.Results,
	}
	if dm.PolicyName == "" {
		dm.PolicyName = notAvailable
	}
	return dm
}

func strOrNA(v *string) string {
	if v == nil || *v == "" {
		return notAvailable
	}
	return *v
}

func floatOrNA(v *float64) string {
	if v == nil {
		return notAvailable
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func intOrNA(v *int) string {
	if v == nil {
		return notAvailable
	}
	return strconv.Itoa(*v)
}

// Merged is the unified comparison view-model. Left is always the first
// simulation the user selected; the ordering survives persistence.
type Merged struct {
	Left  DisplayModel
	Right DisplayModel
}

// Merge combines two simulations into one comparison view-model. Both
// sides must be present.
func Merge(sim1, sim2 *RawSimulation) (*Merged, error) {
	if sim1 == nil || sim2 == nil {
		return nil, ErrMissingData
	}
	return &Merged{
		Left:  NormalizeForDisplay(sim1),
		Right: NormalizeForDisplay(sim2),
	}, nil
}

// ToExportModel adapts either wire shape into the canonical form the
// exporters consume. Ephemeral simulations (not yet persisted) get a
// creation time of now.
func ToExportModel(sim *RawSimulation) (model.SavedSimulation, error) {
	if sim == nil {
		return model.SavedSimulation{}, ErrMissingData
	}
	out := model.SavedSimulation{
		ID:         string(sim.ID),
		PolicyName: sim.PolicyName,
		Results:    sim.Results,
		CreatedAt:  time.Now().UTC(),
	}
	if sim.CreatedAt != nil {
		out.CreatedAt = *sim.CreatedAt
	}
	if v := field(sim, func(f *FlexInput) *string { return f.Country }); v != nil {
		out.InputParams.Country = *v
	}
	if v := field(sim, func(f *FlexInput) *string { return f.PolicyType }); v != nil {
		out.InputParams.PolicyType = model.PolicyType(*v)
	}
	if v := field(sim, func(f *FlexInput) *float64 { return f.CarbonPrice }); v != nil {
		out.InputParams.CarbonPriceUSD = *v
	}
	if v := field(sim, func(f *FlexInput) *float64 { return f.Coverage }); v != nil {
		out.InputParams.CoveragePercent = *v
	}
	if v := field(sim, func(f *FlexInput) *int { return f.Year }); v != nil {
		out.InputParams.Year = *v
	}
	if v := field(sim, func(f *FlexInput) *int { return f.Duration }); v != nil {
		out.InputParams.ProjectionYears = *v
	}
	return out, nil
}

// FromRecord expands a persisted comparison back into its two sides.
// Records store names and parameters only, so the sides carry no
// results; nothing is ever recomputed from them.
func FromRecord(rec *model.ComparisonRecord) (*RawSimulation, *RawSimulation) {
	if rec == nil {
		return nil, nil
	}
	side := func(name string, in model.SimulationInput) *RawSimulation {
		policyType := string(in.PolicyType)
		created := rec.CreatedAt
		return &RawSimulation{
			PolicyName: name,
			InputParams: &FlexInput{
				Country:     &in.Country,
				PolicyType:  &policyType,
				CarbonPrice: &in.CarbonPriceUSD,
				Coverage:    &in.CoveragePercent,
				Year:        &in.Year,
				Duration:    &in.ProjectionYears,
			},
			CreatedAt: &created,
		}
	}
	return side(rec.Policy1Name, rec.Policy1Input), side(rec.Policy2Name, rec.Policy2Input)
}

// FromSaved wraps a locally-cached simulation in the raw shape so saved
// and fresh simulations flow through the same merge path.
func FromSaved(sim *model.SavedSimulation) *RawSimulation {
	if sim == nil {
		return nil
	}
	in := sim.InputParams
	policyType := string(in.PolicyType)
	created := sim.CreatedAt
	return &RawSimulation{
		ID:         FlexID(sim.ID),
		PolicyName: sim.PolicyName,
		InputParams: &FlexInput{
			Country:     &in.Country,
			PolicyType:  &policyType,
			CarbonPrice: &in.CarbonPriceUSD,
			Coverage:    &in.CoveragePercent,
			Year:        &in.Year,
			Duration:    &in.ProjectionYears,
		},
		Results:   sim.Results,
		CreatedAt: &created,
	}
}
