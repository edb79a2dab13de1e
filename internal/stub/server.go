// Package stub is a deterministic in-memory implementation of the
// climate policy backend REST surface. It exists for offline use
// (`carbonlens serve`) and for end-to-end client tests: same routes,
// same envelopes, no model artifacts or database required.
package stub

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/carbonlens/carbonlens-cli/internal/model"
)

type user struct {
	Email     string
	Password  string
	Verified  bool
	CreatedAt time.Time
}

type storedSimulation struct {
	ID         string
	UserEmail  string
	PolicyName string
	Input      model.SimulationInput
	Results    *model.PredictionResult
	CreatedAt  time.Time
}

type storedComparison struct {
	Record    model.ComparisonRecord
	UserEmail string
}

// Server is the stub backend. All state is in memory and guarded by a
// single mutex; the workload is a CLI, not a fleet.
type Server struct {
	router chi.Router
	log    *zap.Logger

	mu          sync.Mutex
	users       map[string]*user
	tokens      map[string]string // token -> email
	verifyToken map[string]string // verification token -> email
	sims        map[string]*storedSimulation
	comparisons map[string]*storedComparison
}

// NewServer creates a stub server with empty state.
func NewServer(log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		log:         log,
		users:       make(map[string]*user),
		tokens:      make(map[string]string),
		verifyToken: make(map[string]string),
		sims:        make(map[string]*storedSimulation),
		comparisons: make(map[string]*storedComparison),
	}
	s.router = s.buildRouter()
	return s
}

// Router returns the chi router, for mounting under httptest.
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"service": "carbonlens stub", "status": "running"})
	})
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/predict/all", s.handlePredict)
	r.Get("/countries", s.handleCountries)
	r.Get("/policy-types", s.handlePolicyTypes)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", s.handleSignup)
		r.Post("/login", s.handleLogin)
		r.Get("/verify-email", s.handleVerifyEmail)
		r.Post("/resend-verification", s.handleResendVerification)
		r.With(s.requireAuth).Get("/me", s.handleMe)
	})

	r.Route("/simulations", func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/", s.handleListSimulations)
		r.Post("/", s.handleSaveSimulation)
		r.Post("/compare", s.handleCompare)
		// Static segment, matched ahead of /{id}.
		r.Route("/comparisons", func(r chi.Router) {
			r.Get("/", s.handleListComparisons)
			r.Post("/", s.handleSaveComparison)
			r.Get("/{id}", s.handleGetComparison)
			r.Delete("/{id}", s.handleDeleteComparison)
		})
		r.Get("/{id}", s.handleGetSimulation)
		r.Patch("/{id}", s.handleRenameSimulation)
		r.Delete("/{id}", s.handleDeleteSimulation)
	})

	return r
}

// ============================================================
// Error envelopes
// ============================================================

// errorInfo is the structured error body nested under "detail",
// matching the production backend's envelope.
type errorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDetailString emits the plain-string detail shape some auth
// endpoints use: {"detail": "..."}.
func writeDetailString(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

// writeDetailError emits the structured shape:
// {"detail": {"error": {"code", "message", "field"}}}.
func writeDetailError(w http.ResponseWriter, status int, code, msg, field string) {
	writeJSON(w, status, map[string]any{
		"detail": map[string]any{
			"error": errorInfo{Code: code, Message: msg, Field: field},
		},
	})
}

func writeInputError(w http.ResponseWriter, err error) bool {
	var ie *inputError
	if errors.As(err, &ie) {
		writeDetailError(w, http.StatusBadRequest, "VALIDATION_ERROR", ie.Message, ie.Field)
		return true
	}
	return false
}

// ============================================================
// Auth
// ============================================================

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeDetailError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", "")
			return
		}
		s.mu.Lock()
		email, known := s.tokens[token]
		s.mu.Unlock()
		if !known {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeDetailError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Could not validate credentials", "")
			return
		}
		r.Header.Set("X-Stub-User", email)
		next.ServeHTTP(w, r)
	})
}

func currentUser(r *http.Request) string {
	return r.Header.Get("X-Stub-User")
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetailError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body", "")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		writeDetailError(w, http.StatusBadRequest, "VALIDATION_ERROR", "A valid email address is required", "email")
		return
	}
	if len(req.Password) < 8 {
		writeDetailError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Password must be at least 8 characters", "password")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[req.Email]; exists {
		writeDetailError(w, http.StatusConflict, "CONFLICT", "An account with this email already exists", "email")
		return
	}
	s.users[req.Email] = &user{Email: req.Email, Password: req.Password, CreatedAt: time.Now().UTC()}
	verify := uuid.NewString()
	s.verifyToken[verify] = req.Email

	s.log.Info("stub: user signed up", zap.String("email", req.Email))
	writeJSON(w, http.StatusCreated, map[string]string{
		"message":            "Account created. Please verify your email.",
		"verification_token": verify,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeDetailString(w, http.StatusBadRequest, "Invalid form body")
		return
	}
	email := strings.ToLower(strings.TrimSpace(r.PostFormValue("username")))
	password := r.PostFormValue("password")

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[email]
	if !ok || u.Password != password {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeDetailString(w, http.StatusUnauthorized, "Incorrect email or password")
		return
	}

	token := uuid.NewString()
	s.tokens[token] = email
	writeJSON(w, http.StatusOK, map[string]string{
		"access_token": token,
		"token_type":   "bearer",
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	u := s.users[currentUser(r)]
	s.mu.Unlock()
	if u == nil {
		writeDetailError(w, http.StatusNotFound, "NOT_FOUND", "User not found", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"email":          u.Email,
		"email_verified": u.Verified,
		"created_at":     u.CreatedAt,
	})
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	s.mu.Lock()
	defer s.mu.Unlock()
	email, ok := s.verifyToken[token]
	if !ok {
		writeDetailString(w, http.StatusBadRequest, "Invalid or expired verification token")
		return
	}
	delete(s.verifyToken, token)
	if u := s.users[email]; u != nil {
		u.Verified = true
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Email verified successfully"})
}

func (s *Server) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetailError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body", "")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[email]
	if !ok {
		// Same response as success so the endpoint does not leak which
		// emails have accounts.
		writeJSON(w, http.StatusOK, map[string]string{"message": "If the account exists, a verification email was sent"})
		return
	}
	if u.Verified {
		writeJSON(w, http.StatusOK, map[string]string{"message": "Email already verified"})
		return
	}
	verify := uuid.NewString()
	s.verifyToken[verify] = email
	writeJSON(w, http.StatusOK, map[string]string{
		"message":            "If the account exists, a verification email was sent",
		"verification_token": verify,
	})
}

// ============================================================
// Prediction & reference data
// ============================================================

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var in model.SimulationInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetailError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body", "")
		return
	}
	result, err := Predict(in)
	if err != nil {
		if !writeInputError(w, err) {
			writeDetailError(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred. Please try again later.", "")
		}
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCountries(w http.ResponseWriter, _ *http.Request) {
	names := CountryNames()
	writeJSON(w, http.StatusOK, map[string]any{
		"countries": names,
		"count":     len(names),
	})
}

func (s *Server) handlePolicyTypes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"policy_types": []model.PolicyType{model.PolicyCarbonTax, model.PolicyETS},
		"descriptions": map[model.PolicyType]string{
			model.PolicyCarbonTax: "Direct tax on carbon emissions ($/tonne CO2)",
			model.PolicyETS:       "Emissions Trading System (cap-and-trade)",
		},
	})
}

// ============================================================
// Simulations
// ============================================================

// generatePolicyName builds the default display name for an unnamed
// simulation, e.g. "Carbon tax - Germany 2025".
func generatePolicyName(in model.SimulationInput) string {
	country := in.Country
	if country == "" {
		country = "Unknown"
	}
	policy := string(in.PolicyType)
	if policy == "" {
		policy = "Policy"
	}
	name := policy + " - " + country
	if in.Year != 0 {
		name += " " + strconv.Itoa(in.Year)
	}
	return name
}

type saveSimulationRequest struct {
	model.SimulationInput
	PolicyName string                  `json:"policy_name"`
	Results    *model.PredictionResult `json:"results"`
}

func (s *Server) detail(sim *storedSimulation) model.SavedSimulation {
	return model.SavedSimulation{
		ID:          sim.ID,
		PolicyName:  sim.PolicyName,
		InputParams: sim.Input,
		Results:     sim.Results,
		CreatedAt:   sim.CreatedAt,
	}
}

func (s *Server) handleSaveSimulation(w http.ResponseWriter, r *http.Request) {
	var req saveSimulationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetailError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid simulation data.", "")
		return
	}
	if req.Results == nil {
		writeDetailError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid simulation data. results: field required", "results")
		return
	}
	name := req.PolicyName
	if name == "" {
		name = generatePolicyName(req.SimulationInput)
	}

	sim := &storedSimulation{
		ID:         uuid.NewString(),
		UserEmail:  currentUser(r),
		PolicyName: name,
		Input:      req.SimulationInput,
		Results:    req.Results,
		CreatedAt:  time.Now().UTC(),
	}

	s.mu.Lock()
	s.sims[sim.ID] = sim
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, s.detail(sim))
}

func (s *Server) handleListSimulations(w http.ResponseWriter, r *http.Request) {
	email := currentUser(r)

	s.mu.Lock()
	var owned []*storedSimulation
	for _, sim := range s.sims {
		if sim.UserEmail == email {
			owned = append(owned, sim)
		}
	}
	s.mu.Unlock()

	sort.Slice(owned, func(i, j int) bool { return owned[i].CreatedAt.After(owned[j].CreatedAt) })

	summaries := make([]model.SimulationSummary, 0, len(owned))
	for _, sim := range owned {
		summaries = append(summaries, model.SimulationSummary{
			ID:              sim.ID,
			PolicyName:      sim.PolicyName,
			CreatedAt:       sim.CreatedAt,
			Country:         sim.Input.Country,
			PolicyType:      sim.Input.PolicyType,
			CarbonPriceUSD:  sim.Input.CarbonPriceUSD,
			CoveragePercent: sim.Input.CoveragePercent,
			RevenueMillion:  sim.Results.RevenueMillion,
			RiskCategory:    sim.Results.RiskCategory,
		})
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) ownedSimulation(r *http.Request) *storedSimulation {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	sim := s.sims[id]
	if sim == nil || sim.UserEmail != currentUser(r) {
		return nil
	}
	return sim
}

func (s *Server) handleGetSimulation(w http.ResponseWriter, r *http.Request) {
	sim := s.ownedSimulation(r)
	if sim == nil {
		writeDetailError(w, http.StatusNotFound, "NOT_FOUND",
			"Simulation not found. It may have been deleted or you don't have permission to view it.", "")
		return
	}
	writeJSON(w, http.StatusOK, s.detail(sim))
}

func (s *Server) handleRenameSimulation(w http.ResponseWriter, r *http.Request) {
	sim := s.ownedSimulation(r)
	if sim == nil {
		writeDetailError(w, http.StatusNotFound, "NOT_FOUND",
			"Simulation not found. It may have been deleted or you don't have permission to view it.", "")
		return
	}

	var body struct {
		PolicyName *string `json:"policy_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetailError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body", "")
		return
	}
	if body.PolicyName != nil {
		name := *body.PolicyName
		if strings.TrimSpace(name) == "" {
			writeDetailError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Policy name cannot be empty", "policy_name")
			return
		}
		if len(name) > 200 {
			writeDetailError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Policy name cannot exceed 200 characters", "policy_name")
			return
		}
		s.mu.Lock()
		sim.PolicyName = name
		s.mu.Unlock()
	}
	writeJSON(w, http.StatusOK, s.detail(sim))
}

func (s *Server) handleDeleteSimulation(w http.ResponseWriter, r *http.Request) {
	sim := s.ownedSimulation(r)
	if sim == nil {
		writeDetailError(w, http.StatusNotFound, "NOT_FOUND",
			"Simulation not found. It may have been deleted or you don't have permission to delete it.", "")
		return
	}
	s.mu.Lock()
	delete(s.sims, sim.ID)
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================
// Compare
// ============================================================

// CompareRequest selects each side of a comparison either by saved
// simulation ID or by fresh input, never both.
type CompareRequest struct {
	SimulationID1  string                 `json:"simulation_id_1,omitempty"`
	SimulationID2  string                 `json:"simulation_id_2,omitempty"`
	NewSimulation1 *model.SimulationInput `json:"new_simulation_1,omitempty"`
	NewSimulation2 *model.SimulationInput `json:"new_simulation_2,omitempty"`
}

// CompareSide is one resolved side of a comparison response.
type CompareSide struct {
	ID         *string                 `json:"id"`
	PolicyName string                  `json:"policy_name"`
	Input      model.SimulationInput   `json:"input"`
	Results    *model.PredictionResult `json:"results"`
}

// CompareResponse pairs the two resolved sides.
type CompareResponse struct {
	Simulation1 CompareSide `json:"simulation_1"`
	Simulation2 CompareSide `json:"simulation_2"`
}

func (s *Server) resolveSide(r *http.Request, savedID string, fresh *model.SimulationInput, ordinal, field string) (CompareSide, error) {
	if savedID != "" {
		s.mu.Lock()
		sim := s.sims[savedID]
		if sim != nil && sim.UserEmail != currentUser(r) {
			sim = nil
		}
		s.mu.Unlock()
		if sim == nil {
			return CompareSide{}, rejectNotFound(ordinal)
		}
		id := sim.ID
		return CompareSide{ID: &id, PolicyName: sim.PolicyName, Input: sim.Input, Results: sim.Results}, nil
	}
	if fresh != nil {
		results, err := Predict(*fresh)
		if err != nil {
			return CompareSide{}, err
		}
		return CompareSide{PolicyName: generatePolicyName(*fresh), Input: *fresh, Results: results}, nil
	}
	return CompareSide{}, rejectInput(field,
		"Please provide either a saved simulation or create a new simulation for the "+ordinal+" policy")
}

type notFoundError struct{ ordinal string }

func (e *notFoundError) Error() string {
	label := "First"
	if e.ordinal == "second" {
		label = "Second"
	}
	return label + " simulation not found. It may have been deleted or you don't have permission to view it."
}

func rejectNotFound(ordinal string) error { return &notFoundError{ordinal: ordinal} }

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req CompareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetailError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body", "")
		return
	}

	side1, err := s.resolveSide(r, req.SimulationID1, req.NewSimulation1, "first", "simulation_id_1")
	if err != nil {
		s.writeCompareError(w, err)
		return
	}
	side2, err := s.resolveSide(r, req.SimulationID2, req.NewSimulation2, "second", "simulation_id_2")
	if err != nil {
		s.writeCompareError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, CompareResponse{Simulation1: side1, Simulation2: side2})
}

func (s *Server) writeCompareError(w http.ResponseWriter, err error) {
	var nf *notFoundError
	if errors.As(err, &nf) {
		writeDetailError(w, http.StatusNotFound, "NOT_FOUND", nf.Error(), "")
		return
	}
	if !writeInputError(w, err) {
		writeDetailError(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred. Please try again later.", "")
	}
}

// ============================================================
// Comparisons
// ============================================================

func (s *Server) handleSaveComparison(w http.ResponseWriter, r *http.Request) {
	var rec model.ComparisonRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeDetailError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body", "")
		return
	}
	if rec.Policy1Name == "" || rec.Policy2Name == "" {
		writeDetailError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Both policy names are required", "policy1_name")
		return
	}
	rec.ID = uuid.NewString()
	rec.CreatedAt = time.Now().UTC()

	s.mu.Lock()
	s.comparisons[rec.ID] = &storedComparison{Record: rec, UserEmail: currentUser(r)}
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleListComparisons(w http.ResponseWriter, r *http.Request) {
	email := currentUser(r)

	s.mu.Lock()
	var owned []model.ComparisonRecord
	for _, c := range s.comparisons {
		if c.UserEmail == email {
			owned = append(owned, c.Record)
		}
	}
	s.mu.Unlock()

	sort.Slice(owned, func(i, j int) bool { return owned[i].CreatedAt.After(owned[j].CreatedAt) })
	writeJSON(w, http.StatusOK, owned)
}

func (s *Server) ownedComparison(r *http.Request) *storedComparison {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.comparisons[id]
	if c == nil || c.UserEmail != currentUser(r) {
		return nil
	}
	return c
}

func (s *Server) handleGetComparison(w http.ResponseWriter, r *http.Request) {
	c := s.ownedComparison(r)
	if c == nil {
		writeDetailError(w, http.StatusNotFound, "NOT_FOUND", "Comparison not found.", "")
		return
	}
	writeJSON(w, http.StatusOK, c.Record)
}

func (s *Server) handleDeleteComparison(w http.ResponseWriter, r *http.Request) {
	c := s.ownedComparison(r)
	if c == nil {
		writeDetailError(w, http.StatusNotFound, "NOT_FOUND", "Comparison not found.", "")
		return
	}
	s.mu.Lock()
	delete(s.comparisons, c.Record.ID)
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}
