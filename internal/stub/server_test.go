package stub

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbonlens/carbonlens-cli/internal/model"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(NewServer(nil).Router())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, rawURL, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, rawURL, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

// signupAndLogin registers a fresh account and returns a bearer token.
func signupAndLogin(t *testing.T, ts *httptest.Server, email string) string {
	t.Helper()
	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/auth/signup", "", map[string]string{
		"email": email, "password": "password123",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	form := url.Values{"username": {email}, "password": {"password123"}}
	loginResp, err := http.Post(ts.URL+"/auth/login", "application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()))
	require.NoError(t, err)
	defer loginResp.Body.Close()
	require.Equal(t, http.StatusOK, loginResp.StatusCode)

	var grant struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	require.NoError(t, json.NewDecoder(loginResp.Body).Decode(&grant))
	assert.Equal(t, "bearer", grant.TokenType)
	require.NotEmpty(t, grant.AccessToken)
	return grant.AccessToken
}

func detailMessage(t *testing.T, data []byte) (code, message, field string) {
	t.Helper()
	var env struct {
		Detail struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
				Field   string `json:"field"`
			} `json:"error"`
		} `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(data, &env))
	return env.Detail.Error.Code, env.Detail.Error.Message, env.Detail.Error.Field
}

func TestHealth(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	resp, data := doJSON(t, http.MethodGet, ts.URL+"/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), `"ok"`)
}

func TestCountriesEndpoint(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	resp, data := doJSON(t, http.MethodGet, ts.URL+"/countries", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Countries []string `json:"countries"`
		Count     int      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, len(body.Countries), body.Count)
	assert.Contains(t, body.Countries, "Germany")
}

func TestPredictEndpoint(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	t.Run("valid input", func(t *testing.T) {
		t.Parallel()
		resp, data := doJSON(t, http.MethodPost, ts.URL+"/predict/all", "", germanyInput())
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var res model.PredictionResult
		require.NoError(t, json.Unmarshal(data, &res))
		assert.Equal(t, 13500.0, res.RevenueMillion)
		assert.Len(t, res.Projections, 10)
	})

	t.Run("validation error envelope", func(t *testing.T) {
		t.Parallel()
		in := germanyInput()
		in.CoveragePercent = 5
		resp, data := doJSON(t, http.MethodPost, ts.URL+"/predict/all", "", in)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		code, msg, field := detailMessage(t, data)
		assert.Equal(t, "VALIDATION_ERROR", code)
		assert.Equal(t, "Coverage must be between 10% and 90%", msg)
		assert.Equal(t, "coverage_percent", field)
	})
}

func TestAuthFlow(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	resp, data := doJSON(t, http.MethodPost, ts.URL+"/auth/signup", "", map[string]string{
		"email": "Alice@Example.com", "password": "password123",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var signup struct {
		Message           string `json:"message"`
		VerificationToken string `json:"verification_token"`
	}
	require.NoError(t, json.Unmarshal(data, &signup))
	require.NotEmpty(t, signup.VerificationToken)

	t.Run("duplicate signup conflicts", func(t *testing.T) {
		resp, data := doJSON(t, http.MethodPost, ts.URL+"/auth/signup", "", map[string]string{
			"email": "alice@example.com", "password": "password123",
		})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		code, _, _ := detailMessage(t, data)
		assert.Equal(t, "CONFLICT", code)
	})

	t.Run("wrong password is a detail string", func(t *testing.T) {
		form := url.Values{"username": {"alice@example.com"}, "password": {"wrong"}}
		loginResp, err := http.Post(ts.URL+"/auth/login", "application/x-www-form-urlencoded",
			strings.NewReader(form.Encode()))
		require.NoError(t, err)
		defer loginResp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, loginResp.StatusCode)

		body, err := io.ReadAll(loginResp.Body)
		require.NoError(t, err)
		var env struct {
			Detail string `json:"detail"`
		}
		require.NoError(t, json.Unmarshal(body, &env))
		assert.Equal(t, "Incorrect email or password", env.Detail)
	})

	// Email is lowercased at signup, so login is case-insensitive.
	form := url.Values{"username": {"alice@example.com"}, "password": {"password123"}}
	loginResp, err := http.Post(ts.URL+"/auth/login", "application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()))
	require.NoError(t, err)
	var grant struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.NewDecoder(loginResp.Body).Decode(&grant))
	loginResp.Body.Close()
	require.NotEmpty(t, grant.AccessToken)

	t.Run("verify email then me", func(t *testing.T) {
		resp, _ := doJSON(t, http.MethodGet, ts.URL+"/auth/verify-email?token="+signup.VerificationToken, "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		meResp, data := doJSON(t, http.MethodGet, ts.URL+"/auth/me", grant.AccessToken, nil)
		require.Equal(t, http.StatusOK, meResp.StatusCode)
		var me struct {
			Email         string `json:"email"`
			EmailVerified bool   `json:"email_verified"`
		}
		require.NoError(t, json.Unmarshal(data, &me))
		assert.Equal(t, "alice@example.com", me.Email)
		assert.True(t, me.EmailVerified)
	})

	t.Run("stale verification token rejected", func(t *testing.T) {
		resp, _ := doJSON(t, http.MethodGet, ts.URL+"/auth/verify-email?token="+signup.VerificationToken, "", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestSignupValidation(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	resp, data := doJSON(t, http.MethodPost, ts.URL+"/auth/signup", "", map[string]string{
		"email": "not-an-email", "password": "password123",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_, _, field := detailMessage(t, data)
	assert.Equal(t, "email", field)

	resp, data = doJSON(t, http.MethodPost, ts.URL+"/auth/signup", "", map[string]string{
		"email": "bob@example.com", "password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_, msg, _ := detailMessage(t, data)
	assert.Equal(t, "Password must be at least 8 characters", msg)
}

func TestRequireAuth(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	resp, data := doJSON(t, http.MethodGet, ts.URL+"/simulations/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	code, msg, _ := detailMessage(t, data)
	assert.Equal(t, "UNAUTHORIZED", code)
	assert.Equal(t, "Authentication required", msg)

	resp, data = doJSON(t, http.MethodGet, ts.URL+"/simulations/", "bogus-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_, msg, _ = detailMessage(t, data)
	assert.Equal(t, "Could not validate credentials", msg)
}

func saveSimulation(t *testing.T, ts *httptest.Server, token, name string) model.SavedSimulation {
	t.Helper()
	in := germanyInput()
	results, err := Predict(in)
	require.NoError(t, err)

	payload := map[string]any{
		"country":          in.Country,
		"policy_type":      in.PolicyType,
		"carbon_price_usd": in.CarbonPriceUSD,
		"coverage_percent": in.CoveragePercent,
		"year":             in.Year,
		"projection_years": in.ProjectionYears,
		"results":          results,
	}
	if name != "" {
		payload["policy_name"] = name
	}
	resp, data := doJSON(t, http.MethodPost, ts.URL+"/simulations/", token, payload)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var saved model.SavedSimulation
	require.NoError(t, json.Unmarshal(data, &saved))
	require.NotEmpty(t, saved.ID)
	return saved
}

func TestSimulationLifecycle(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	token := signupAndLogin(t, ts, "sims@example.com")

	t.Run("save without results rejected", func(t *testing.T) {
		resp, data := doJSON(t, http.MethodPost, ts.URL+"/simulations/", token, germanyInput())
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		_, _, field := detailMessage(t, data)
		assert.Equal(t, "results", field)
	})

	saved := saveSimulation(t, ts, token, "")
	// Unnamed simulations get the generated default.
	assert.Equal(t, "Carbon tax - Germany 2025", saved.PolicyName)

	named := saveSimulation(t, ts, token, "My Policy")
	assert.Equal(t, "My Policy", named.PolicyName)

	t.Run("list", func(t *testing.T) {
		resp, data := doJSON(t, http.MethodGet, ts.URL+"/simulations/", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var summaries []model.SimulationSummary
		require.NoError(t, json.Unmarshal(data, &summaries))
		assert.Len(t, summaries, 2)
		assert.Equal(t, "Germany", summaries[0].Country)
		assert.NotZero(t, summaries[0].RevenueMillion)
	})

	t.Run("get", func(t *testing.T) {
		resp, data := doJSON(t, http.MethodGet, ts.URL+"/simulations/"+saved.ID, token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var got model.SavedSimulation
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, saved.ID, got.ID)
		require.NotNil(t, got.Results)
		assert.Len(t, got.Results.Projections, 10)
	})

	t.Run("rename", func(t *testing.T) {
		resp, data := doJSON(t, http.MethodPatch, ts.URL+"/simulations/"+saved.ID, token,
			map[string]string{"policy_name": "Renamed"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var got model.SavedSimulation
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, "Renamed", got.PolicyName)
	})

	t.Run("rename to blank rejected", func(t *testing.T) {
		resp, data := doJSON(t, http.MethodPatch, ts.URL+"/simulations/"+saved.ID, token,
			map[string]string{"policy_name": "   "})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		_, msg, field := detailMessage(t, data)
		assert.Equal(t, "Policy name cannot be empty", msg)
		assert.Equal(t, "policy_name", field)
	})

	t.Run("rename too long rejected", func(t *testing.T) {
		resp, data := doJSON(t, http.MethodPatch, ts.URL+"/simulations/"+saved.ID, token,
			map[string]string{"policy_name": strings.Repeat("x", 201)})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		_, msg, _ := detailMessage(t, data)
		assert.Equal(t, "Policy name cannot exceed 200 characters", msg)
	})

	t.Run("delete", func(t *testing.T) {
		resp, _ := doJSON(t, http.MethodDelete, ts.URL+"/simulations/"+named.ID, token, nil)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		resp, data := doJSON(t, http.MethodGet, ts.URL+"/simulations/"+named.ID, token, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		code, _, _ := detailMessage(t, data)
		assert.Equal(t, "NOT_FOUND", code)
	})
}

func TestSimulationOwnership(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	owner := signupAndLogin(t, ts, "owner@example.com")
	other := signupAndLogin(t, ts, "other@example.com")

	saved := saveSimulation(t, ts, owner, "Private")

	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/simulations/"+saved.ID, other, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, data := doJSON(t, http.MethodGet, ts.URL+"/simulations/", other, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var summaries []model.SimulationSummary
	require.NoError(t, json.Unmarshal(data, &summaries))
	assert.Empty(t, summaries)
}

func TestCompareEndpoint(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	token := signupAndLogin(t, ts, "compare@example.com")
	saved := saveSimulation(t, ts, token, "Saved Side")

	t.Run("saved versus fresh", func(t *testing.T) {
		fresh := germanyInput()
		fresh.PolicyType = model.PolicyETS
		resp, data := doJSON(t, http.MethodPost, ts.URL+"/simulations/compare", token, CompareRequest{
			SimulationID1:  saved.ID,
			NewSimulation2: &fresh,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var cmp CompareResponse
		require.NoError(t, json.Unmarshal(data, &cmp))
		require.NotNil(t, cmp.Simulation1.ID)
		assert.Equal(t, saved.ID, *cmp.Simulation1.ID)
		assert.Equal(t, "Saved Side", cmp.Simulation1.PolicyName)
		assert.Nil(t, cmp.Simulation2.ID)
		assert.Equal(t, "ETS - Germany 2025", cmp.Simulation2.PolicyName)
		require.NotNil(t, cmp.Simulation2.Results)
	})

	t.Run("missing first simulation", func(t *testing.T) {
		fresh := germanyInput()
		resp, data := doJSON(t, http.MethodPost, ts.URL+"/simulations/compare", token, CompareRequest{
			SimulationID1:  "does-not-exist",
			NewSimulation2: &fresh,
		})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		_, msg, _ := detailMessage(t, data)
		assert.Equal(t, "First simulation not found. It may have been deleted or you don't have permission to view it.", msg)
	})

	t.Run("side without id or input", func(t *testing.T) {
		resp, data := doJSON(t, http.MethodPost, ts.URL+"/simulations/compare", token, CompareRequest{
			SimulationID1: saved.ID,
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		_, msg, field := detailMessage(t, data)
		assert.Contains(t, msg, "second policy")
		assert.Equal(t, "simulation_id_2", field)
	})

	t.Run("invalid fresh input surfaces the field", func(t *testing.T) {
		fresh := germanyInput()
		fresh.CarbonPriceUSD = -1
		resp, data := doJSON(t, http.MethodPost, ts.URL+"/simulations/compare", token, CompareRequest{
			SimulationID1:  saved.ID,
			NewSimulation2: &fresh,
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		_, msg, field := detailMessage(t, data)
		assert.Equal(t, "Carbon price must be greater than 0", msg)
		assert.Equal(t, "carbon_price_usd", field)
	})
}

func TestComparisonRecords(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	token := signupAndLogin(t, ts, "records@example.com")

	t.Run("missing names rejected", func(t *testing.T) {
		resp, _ := doJSON(t, http.MethodPost, ts.URL+"/simulations/comparisons/", token, model.ComparisonRecord{
			Policy1Name: "Only One",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	resp, data := doJSON(t, http.MethodPost, ts.URL+"/simulations/comparisons/", token, model.ComparisonRecord{
		Policy1Name:  "Tax A",
		Policy2Name:  "ETS B",
		Policy1Input: germanyInput(),
		Policy2Input: germanyInput(),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var rec model.ComparisonRecord
	require.NoError(t, json.Unmarshal(data, &rec))
	require.NotEmpty(t, rec.ID)

	resp, data = doJSON(t, http.MethodGet, ts.URL+"/simulations/comparisons/", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var recs []model.ComparisonRecord
	require.NoError(t, json.Unmarshal(data, &recs))
	assert.Len(t, recs, 1)

	resp, data = doJSON(t, http.MethodGet, ts.URL+"/simulations/comparisons/"+rec.ID, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got model.ComparisonRecord
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "Tax A", got.Policy1Name)

	resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/simulations/comparisons/"+rec.ID, token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/simulations/comparisons/"+rec.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
