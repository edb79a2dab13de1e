package climate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/carbonlens/carbonlens-cli/internal/model"
)

// User is the authenticated account returned by GET /auth/me.
type User struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	CreatedAt     string `json:"created_at"`
}

// TokenResponse is the login grant.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// SignupResponse acknowledges account creation.
type SignupResponse struct {
	Message           string `json:"message"`
	VerificationToken string `json:"verification_token,omitempty"`
}

// Signup creates a new account.
func (c *Client) Signup(ctx context.Context, email, password string) (*SignupResponse, error) {
	var out SignupResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/signup",
		body:   map[string]string{"email": email, "password": password},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Login exchanges credentials for a bearer token. The endpoint takes
// an OAuth2 password form, so the email travels as "username".
func (c *Client) Login(ctx context.Context, email, password string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)

	var out TokenResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/login",
		form:   form,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Me returns the account for the current token.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var out User
	if err := c.do(ctx, request{method: http.MethodGet, path: "/auth/me"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyEmail redeems an email verification token.
func (c *Client) VerifyEmail(ctx context.Context, token string) error {
	q := url.Values{}
	q.Set("token", token)
	return c.do(ctx, request{method: http.MethodGet, path: "/auth/verify-email", query: q}, nil)
}

// ResendVerification requests a fresh verification email.
func (c *Client) ResendVerification(ctx context.Context, email string) error {
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/resend-verification",
		body:   map[string]string{"email": email},
	}, nil)
}

// Predict runs the policy model for one input.
func (c *Client) Predict(ctx context.Context, in model.SimulationInput) (*model.PredictionResult, error) {
	var out model.PredictionResult
	err := c.do(ctx, request{method: http.MethodPost, path: "/predict/all", body: in}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Countries lists the countries the model supports.
func (c *Client) Countries(ctx context.Context) ([]string, error) {
	var out struct {
		Countries []string `json:"countries"`
	}
	if err := c.do(ctx, request{method: http.MethodGet, path: "/countries"}, &out); err != nil {
		return nil, err
	}
	return out.Countries, nil
}

// PolicyTypes lists the supported policy instruments.
func (c *Client) PolicyTypes(ctx context.Context) ([]model.PolicyType, error) {
	var out struct {
		PolicyTypes []model.PolicyType `json:"policy_types"`
	}
	if err := c.do(ctx, request{method: http.MethodGet, path: "/policy-types"}, &out); err != nil {
		return nil, err
	}
	return out.PolicyTypes, nil
}

// ListSimulations returns the caller's saved simulations, newest first.
func (c *Client) ListSimulations(ctx context.Context) ([]model.SimulationSummary, error) {
	var out []model.SimulationSummary
	if err := c.do(ctx, request{method: http.MethodGet, path: "/simulations"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSimulation fetches one saved simulation with full results.
func (c *Client) GetSimulation(ctx context.Context, id string) (*model.SavedSimulation, error) {
	var out model.SavedSimulation
	if err := c.do(ctx, request{method: http.MethodGet, path: "/simulations/" + id}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveSimulation persists a completed simulation. The backend takes
// the input fields inline next to policy_name and results.
func (c *Client) SaveSimulation(ctx context.Context, in model.SimulationInput, results *model.PredictionResult, policyName string) (*model.SavedSimulation, error) {
	body := map[string]any{
		"country":          in.Country,
		"policy_type":      in.PolicyType,
		"carbon_price_usd": in.CarbonPriceUSD,
		"coverage_percent": in.CoveragePercent,
		"year":             in.Year,
		"projection_years": in.ProjectionYears,
		"results":          results,
	}
	if policyName != "" {
		body["policy_name"] = policyName
	}

	var out model.SavedSimulation
	if err := c.do(ctx, request{method: http.MethodPost, path: "/simulations", body: body}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RenameSimulation updates the display name of a saved simulation.
func (c *Client) RenameSimulation(ctx context.Context, id, policyName string) (*model.SavedSimulation, error) {
	var out model.SavedSimulation
	err := c.do(ctx, request{
		method: http.MethodPatch,
		path:   "/simulations/" + id,
		body:   map[string]string{"policy_name": policyName},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteSimulation removes a saved simulation.
func (c *Client) DeleteSimulation(ctx context.Context, id string) error {
	return c.do(ctx, request{method: http.MethodDelete, path: "/simulations/" + id}, nil)
}

// CompareRequest selects each side of a comparison either by saved
// simulation ID or by fresh input.
type CompareRequest struct {
	SimulationID1  string                 `json:"simulation_id_1,omitempty"`
	SimulationID2  string                 `json:"simulation_id_2,omitempty"`
	NewSimulation1 *model.SimulationInput `json:"new_simulation_1,omitempty"`
	NewSimulation2 *model.SimulationInput `json:"new_simulation_2,omitempty"`
}

// CompareResponse carries the two resolved sides as raw JSON. Saved
// and fresh sides use different field spellings, so decoding is left
// to the comparison merger.
type CompareResponse struct {
	Simulation1 json.RawMessage `json:"simulation_1"`
	Simulation2 json.RawMessage `json:"simulation_2"`
}

// Compare resolves and pairs two simulations server-side.
func (c *Client) Compare(ctx context.Context, req CompareRequest) (*CompareResponse, error) {
	var out CompareResponse
	if err := c.do(ctx, request{method: http.MethodPost, path: "/simulations/compare", body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListComparisons returns the caller's saved comparisons, newest first.
func (c *Client) ListComparisons(ctx context.Context) ([]model.ComparisonRecord, error) {
	var out []model.ComparisonRecord
	if err := c.do(ctx, request{method: http.MethodGet, path: "/simulations/comparisons"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveComparison persists a comparison pairing.
func (c *Client) SaveComparison(ctx context.Context, rec model.ComparisonRecord) (*model.ComparisonRecord, error) {
	var out model.ComparisonRecord
	if err := c.do(ctx, request{method: http.MethodPost, path: "/simulations/comparisons", body: rec}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetComparison fetches one saved comparison.
func (c *Client) GetComparison(ctx context.Context, id string) (*model.ComparisonRecord, error) {
	var out model.ComparisonRecord
	if err := c.do(ctx, request{method: http.MethodGet, path: "/simulations/comparisons/" + id}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteComparison removes a saved comparison.
func (c *Client) DeleteComparison(ctx context.Context, id string) error {
	return c.do(ctx, request{method: http.MethodDelete, path: "/simulations/comparisons/" + id}, nil)
}
