package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/TheThommo/PerformanceAICoach-sub000/assessment"
	"github.com/TheThommo/PerformanceAICoach-sub000/auth"
	"github.com/TheThommo/PerformanceAICoach-sub000/coaching"
	"github.com/TheThommo/PerformanceAICoach-sub000/database/postgres"
	"github.com/TheThommo/PerformanceAICoach-sub000/logger"
	"github.com/TheThommo/PerformanceAICoach-sub000/recommendation"
	"github.com/TheThommo/PerformanceAICoach-sub000/session"
)

// fakeStore backs every service with in-memory maps so the full route tree
// can be exercised without Postgres.
type fakeStore struct {
	mu           sync.Mutex
	usersByID    map[int64]postgres.User
	usersByEmail map[string]postgres.User
	assessments  []postgres.Assessment
	sessions     map[int64]postgres.ChatSession
	progress     []postgres.ProgressEntry
	techniques   []postgres.Technique
	scenarios    []postgres.Scenario
	recs         map[int64]postgres.AiRecommendation
	insights     []postgres.CoachingInsight
	nextID       int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		usersByID:    map[int64]postgres.User{},
		usersByEmail: map[string]postgres.User{},
		sessions:     map[int64]postgres.ChatSession{},
		recs:         map[int64]postgres.AiRecommendation{},
		nextID:       1,
	}
}

func (f *fakeStore) id() int64 {
	id := f.nextID
	f.nextID++
	return id
}

func (f *fakeStore) AddUser(ctx context.Context, args postgres.AddUserParams) (postgres.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user := postgres.User{
		ID: f.id(), Username: args.Username, Email: args.Email,
		PasswordHash: args.PasswordHash, Role: args.Role, SubscriptionTier: args.SubscriptionTier,
	}
	f.usersByID[user.ID] = user
	f.usersByEmail[user.Email] = user
	return user, nil
}

func (f *fakeStore) GetUserByID(ctx context.Context, id int64) (postgres.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.usersByID[id]
	if !ok {
		return postgres.User{}, postgres.ErrNotFound
	}
	return user, nil
}

func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (postgres.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.usersByEmail[email]
	if !ok {
		return postgres.User{}, postgres.ErrNotFound
	}
	return user, nil
}

func (f *fakeStore) UpdateUserSubscription(ctx context.Context, args postgres.UpdateUserSubscriptionParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.usersByID[args.UserID]
	if !ok {
		return postgres.ErrNotFound
	}
	user.SubscriptionTier = args.SubscriptionTier
	user.IsSubscribed = args.IsSubscribed
	f.usersByID[args.UserID] = user
	return nil
}

func (f *fakeStore) AddAssessment(ctx context.Context, args postgres.AddAssessmentParams) (postgres.Assessment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record := postgres.Assessment{
		ID: f.id(), UserID: args.UserID,
		IntensityScore: args.IntensityScore, DecisionMakingScore: args.DecisionMakingScore,
		DiversionsScore: args.DiversionsScore, ExecutionScore: args.ExecutionScore,
		TotalScore: args.TotalScore, CreatedAt: time.Now().UTC(),
	}
	f.assessments = append([]postgres.Assessment{record}, f.assessments...)
	return record, nil
}

func (f *fakeStore) GetLatestAssessment(ctx context.Context, userID int64) (postgres.Assessment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.assessments {
		if a.UserID == userID {
			return a, nil
		}
	}
	return postgres.Assessment{}, postgres.ErrNotFound
}

func (f *fakeStore) GetUserAssessments(ctx context.Context, userID int64, limit int) ([]postgres.Assessment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []postgres.Assessment{}
	for _, a := range f.assessments {
		if a.UserID == userID {
			out = append(out, a)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) AddChatSession(ctx context.Context, userID int64, messages []postgres.ChatMessage) (postgres.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess := postgres.ChatSession{ID: f.id(), UserID: userID, Messages: messages, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	f.sessions[sess.ID] = sess
	return sess, nil
}

func (f *fakeStore) GetChatSession(ctx context.Context, id int64) (postgres.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[id]
	if !ok {
		return postgres.ChatSession{}, postgres.ErrNotFound
	}
	return sess, nil
}

func (f *fakeStore) UpdateChatSessionMessages(ctx context.Context, id int64, messages []postgres.ChatMessage) (postgres.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[id]
	if !ok {
		return postgres.ChatSession{}, postgres.ErrNotFound
	}
	sess.Messages = messages
	sess.UpdatedAt = time.Now().UTC()
	f.sessions[id] = sess
	return sess, nil
}

func (f *fakeStore) GetUserChatSessions(ctx context.Context, userID int64, limit int) ([]postgres.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []postgres.ChatSession{}
	for _, sess := range f.sessions {
		if sess.UserID == userID {
			out = append(out, sess)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) AddProgressEntry(ctx context.Context, args postgres.AddProgressEntryParams) (postgres.ProgressEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry := postgres.ProgressEntry{ID: f.id(), UserID: args.UserID, Score: args.Score, Notes: args.Notes, SessionDate: args.SessionDate}
	f.progress = append([]postgres.ProgressEntry{entry}, f.progress...)
	return entry, nil
}

func (f *fakeStore) GetRecentProgress(ctx context.Context, userID int64, days int) ([]postgres.ProgressEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []postgres.ProgressEntry{}
	for _, p := range f.progress {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) ListTechniques(ctx context.Context, category string) ([]postgres.Technique, error) {
	out := []postgres.Technique{}
	for _, t := range f.techniques {
		if category == "" || t.Category == category {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) ListScenarios(ctx context.Context, pressureLevel string) ([]postgres.Scenario, error) {
	out := []postgres.Scenario{}
	for _, s := range f.scenarios {
		if pressureLevel == "" || s.PressureLevel == pressureLevel {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) AddRecommendation(ctx context.Context, args postgres.AddRecommendationParams) (postgres.AiRecommendation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := postgres.AiRecommendation{
		ID: f.id(), UserID: args.UserID, Type: args.Type, Priority: args.Priority,
		ConfidenceScore: args.ConfidenceScore, Reasoning: args.Reasoning, Message: args.Message,
		Payload: args.Payload, ExpiresAt: args.ExpiresAt, CreatedAt: time.Now().UTC(),
	}
	f.recs[rec.ID] = rec
	return rec, nil
}

func (f *fakeStore) GetActiveUserRecommendations(ctx context.Context, userID int64, limit int) ([]postgres.AiRecommendation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []postgres.AiRecommendation{}
	for _, rec := range f.recs {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateRecommendationFeedback(ctx context.Context, args postgres.UpdateRecommendationFeedbackParams) (postgres.AiRecommendation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recs[args.ID]
	if !ok {
		return postgres.AiRecommendation{}, postgres.ErrNotFound
	}
	rec.UserFeedback = &args.Feedback
	rec.FeedbackComments = &args.Comments
	f.recs[args.ID] = rec
	return rec, nil
}

func (f *fakeStore) AddInsight(ctx context.Context, args postgres.AddInsightParams) (postgres.CoachingInsight, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ins := postgres.CoachingInsight{ID: f.id(), UserID: args.UserID, Category: args.Category, Title: args.Title}
	f.insights = append(f.insights, ins)
	return ins, nil
}

type fakeCoach struct{}

func (fakeCoach) GetCoachingResponse(ctx context.Context, message string, history []postgres.ChatMessage, userCtx coaching.UserContext) *coaching.Response {
	return &coaching.Response{
		Message:            "Stay in the blue.",
		Suggestions:        []string{"Reset with one breath"},
		BlueHeadTechniques: []string{"Box Breathing"},
		UrgencyLevel:       "low",
	}
}

func (fakeCoach) AnalyzeAssessmentResults(ctx context.Context, scores coaching.Scores, previous []postgres.Assessment) *coaching.Analysis {
	return &coaching.Analysis{
		OverallState: coaching.ClassifyOverallState(scores.Total()),
		Strengths:    []string{"execution"},
		NextSteps:    []string{"reassess next week"},
	}
}

type testServer struct {
	srv   *httptest.Server
	store *fakeStore
	token string
	user  postgres.User
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := newFakeStore()
	store.techniques = []postgres.Technique{
		{ID: 100, Name: "Box Breathing", Category: "breathing"},
		{ID: 101, Name: "Anchor Word", Category: "focus"},
	}
	store.scenarios = []postgres.Scenario{
		{ID: 200, Title: "Final hole lead", PressureLevel: "high"},
	}

	log := logger.Connect(logger.LoggerConnectProps{Production: false})
	ctx := context.Background()

	authService := auth.Connect(ctx, auth.AuthConnectProps{Logger: log, Store: store, JwtSecret: "test-secret"})
	sessionService := session.Connect(ctx, session.SessionConnectProps{Logger: log, Store: store, Coach: fakeCoach{}})
	assessmentService := assessment.Connect(ctx, assessment.AssessmentConnectProps{Logger: log, Store: store, Coach: fakeCoach{}})
	engine := recommendation.Connect(ctx, recommendation.EngineConnectProps{Logger: log, Store: store})

	apiService := Connect(ctx, ApiConnectProps{
		Logger:          log,
		Auth:            authService,
		Session:         sessionService,
		Assessment:      assessmentService,
		Recommendations: engine,
		Catalog:         store,
	})

	srv := httptest.NewServer(apiService.Router())
	t.Cleanup(srv.Close)

	ts := &testServer{srv: srv, store: store}

	body := ts.do(t, "POST", "/api/auth/register", "", map[string]any{
		"username": "thommo", "email": "thommo@example.com", "password": "long enough pw",
	}, http.StatusCreated)
	var login auth.LoginResult
	if err := json.Unmarshal(body, &login); err != nil {
		t.Fatalf("register response: %v", err)
	}
	ts.token = login.Token
	ts.user = login.User
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any, wantStatus int) []byte {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request: %v", err)
		}
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out bytes.Buffer
	if _, err := out.ReadFrom(resp.Body); err != nil {
		t.Fatalf("reading response: %v", err)
	}
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s: status %d, want %d (body %s)", method, path, resp.StatusCode, wantStatus, out.String())
	}
	return out.Bytes()
}

func TestHealthUnauthenticated(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, "GET", "/health", "", nil, http.StatusOK)
}

func TestAuthRequiredOnApiRoutes(t *testing.T) {
	ts := newTestServer(t)

	ts.do(t, "GET", "/api/techniques", "", nil, http.StatusUnauthorized)
	ts.do(t, "GET", "/api/techniques", "not-a-token", nil, http.StatusUnauthorized)
	ts.do(t, "GET", "/api/techniques", ts.token, nil, http.StatusOK)
}

func TestLoginFailure(t *testing.T) {
	ts := newTestServer(t)

	body := ts.do(t, "POST", "/api/auth/login", "", map[string]any{
		"email": "thommo@example.com", "password": "wrong",
	}, http.StatusUnauthorized)

	var errBody map[string]string
	if err := json.Unmarshal(body, &errBody); err != nil {
		t.Fatalf("error body: %v", err)
	}
	if errBody["error"] == "" {
		t.Error("error responses carry an error message")
	}
}

func TestChatFlow(t *testing.T) {
	ts := newTestServer(t)

	body := ts.do(t, "POST", "/api/chat", ts.token, map[string]any{
		"userId": ts.user.ID, "message": "I keep rushing my putts",
	}, http.StatusOK)

	var first chatResponse
	if err := json.Unmarshal(body, &first); err != nil {
		t.Fatalf("chat response: %v", err)
	}
	if len(first.Session.Messages) != 2 {
		t.Fatalf("first turn must produce 2 messages, got %d", len(first.Session.Messages))
	}
	if first.Response.Message == "" {
		t.Error("coaching response must carry a message")
	}

	body = ts.do(t, "POST", "/api/chat", ts.token, map[string]any{
		"userId": ts.user.ID, "message": "What should I focus on?", "sessionId": first.Session.ID,
	}, http.StatusOK)
	var second chatResponse
	if err := json.Unmarshal(body, &second); err != nil {
		t.Fatalf("chat response: %v", err)
	}
	if len(second.Session.Messages) != 4 {
		t.Fatalf("second turn must grow to 4 messages, got %d", len(second.Session.Messages))
	}

	ts.do(t, "POST", "/api/chat", ts.token, map[string]any{
		"userId": ts.user.ID, "message": "hello", "sessionId": 99999,
	}, http.StatusNotFound)
	ts.do(t, "POST", "/api/chat", ts.token, map[string]any{
		"userId": ts.user.ID, "message": "",
	}, http.StatusBadRequest)
	ts.do(t, "POST", "/api/chat", ts.token, map[string]any{
		"message": "no user",
	}, http.StatusBadRequest)
}

func TestAssessmentFlow(t *testing.T) {
	ts := newTestServer(t)

	ts.do(t, "GET", fmt.Sprintf("/api/assessments/latest/%d", ts.user.ID), ts.token, nil, http.StatusNotFound)

	body := ts.do(t, "POST", "/api/assessments", ts.token, map[string]any{
		"userId": ts.user.ID,
		"scores": map[string]int{"intensity": 80, "decisionMaking": 80, "diversions": 80, "execution": 80},
	}, http.StatusCreated)

	var result submitAssessmentResponse
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("assessment response: %v", err)
	}
	if result.Assessment.TotalScore != 320 {
		t.Errorf("total score %d, want 320", result.Assessment.TotalScore)
	}
	if result.Analysis.OverallState != coaching.StateBlueHead {
		t.Errorf("overall state %q, want blue_head", result.Analysis.OverallState)
	}

	ts.do(t, "GET", fmt.Sprintf("/api/assessments/latest/%d", ts.user.ID), ts.token, nil, http.StatusOK)
	ts.do(t, "GET", fmt.Sprintf("/api/assessments/user/%d", ts.user.ID), ts.token, nil, http.StatusOK)

	ts.do(t, "POST", "/api/assessments", ts.token, map[string]any{
		"userId": ts.user.ID,
		"scores": map[string]int{"intensity": 120, "decisionMaking": 80, "diversions": 80, "execution": 80},
	}, http.StatusBadRequest)
}

func TestSubmitAssessmentMissingScores(t *testing.T) {
	ts := newTestServer(t)

	cases := []struct {
		name string
		body map[string]any
	}{
		{"no scores object", map[string]any{"userId": ts.user.ID}},
		{"empty scores object", map[string]any{"userId": ts.user.ID, "scores": map[string]int{}}},
		{"one sub-score absent", map[string]any{
			"userId": ts.user.ID,
			"scores": map[string]int{"intensity": 80, "decisionMaking": 80, "diversions": 80},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts.do(t, "POST", "/api/assessments", ts.token, tc.body, http.StatusBadRequest)
		})
	}

	// A zero sent explicitly is a legitimate score, not a missing one.
	ts.do(t, "POST", "/api/assessments", ts.token, map[string]any{
		"userId": ts.user.ID,
		"scores": map[string]int{"intensity": 0, "decisionMaking": 80, "diversions": 80, "execution": 80},
	}, http.StatusCreated)

	if got := len(ts.store.assessments); got != 1 {
		t.Fatalf("only the complete submission may persist, found %d assessments", got)
	}
}

func TestProgressAndCatalogs(t *testing.T) {
	ts := newTestServer(t)

	ts.do(t, "POST", "/api/progress", ts.token, map[string]any{
		"userId": ts.user.ID, "score": 85, "notes": "good range session",
	}, http.StatusCreated)

	body := ts.do(t, "GET", fmt.Sprintf("/api/progress/%d", ts.user.ID), ts.token, nil, http.StatusOK)
	var entries []postgres.ProgressEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		t.Fatalf("progress response: %v", err)
	}
	if len(entries) != 1 || entries[0].Score != 85 {
		t.Fatalf("unexpected progress entries: %+v", entries)
	}

	ts.do(t, "GET", fmt.Sprintf("/api/progress/%d?days=abc", ts.user.ID), ts.token, nil, http.StatusBadRequest)

	body = ts.do(t, "GET", "/api/techniques?category=breathing", ts.token, nil, http.StatusOK)
	var techniques []postgres.Technique
	if err := json.Unmarshal(body, &techniques); err != nil {
		t.Fatalf("techniques response: %v", err)
	}
	if len(techniques) != 1 || techniques[0].Name != "Box Breathing" {
		t.Fatalf("category filter failed: %+v", techniques)
	}

	body = ts.do(t, "GET", "/api/scenarios?pressureLevel=high", ts.token, nil, http.StatusOK)
	var scenarios []postgres.Scenario
	if err := json.Unmarshal(body, &scenarios); err != nil {
		t.Fatalf("scenarios response: %v", err)
	}
	if len(scenarios) != 1 {
		t.Fatalf("pressure filter failed: %+v", scenarios)
	}
}

func TestUpdateSubscription(t *testing.T) {
	ts := newTestServer(t)

	body := ts.do(t, "POST", "/api/subscription", ts.token, map[string]any{
		"userId": ts.user.ID, "tier": postgres.TierPremium,
	}, http.StatusOK)

	var user postgres.User
	if err := json.Unmarshal(body, &user); err != nil {
		t.Fatalf("subscription response: %v", err)
	}
	if user.SubscriptionTier != postgres.TierPremium || !user.IsSubscribed {
		t.Fatalf("unexpected subscription state: %+v", user)
	}

	ts.do(t, "POST", "/api/subscription", ts.token, map[string]any{
		"userId": ts.user.ID, "tier": "platinum",
	}, http.StatusBadRequest)
	ts.do(t, "POST", "/api/subscription", ts.token, map[string]any{
		"userId": 99999, "tier": postgres.TierPremium,
	}, http.StatusNotFound)
}

func TestRecommendationEndpoints(t *testing.T) {
	ts := newTestServer(t)

	ts.do(t, "POST", "/api/chat", ts.token, map[string]any{
		"userId": ts.user.ID, "message": "I'm really nervous about tomorrow's pressure putt",
	}, http.StatusOK)

	body := ts.do(t, "POST", fmt.Sprintf("/api/recommendations/generate/%d", ts.user.ID), ts.token, nil, http.StatusOK)
	var recs []postgres.AiRecommendation
	if err := json.Unmarshal(body, &recs); err != nil {
		t.Fatalf("generate response: %v", err)
	}
	if len(recs) == 0 {
		t.Fatal("stress chat must yield recommendations")
	}

	ts.do(t, "GET", fmt.Sprintf("/api/recommendations/%d", ts.user.ID), ts.token, nil, http.StatusOK)

	ts.do(t, "POST", fmt.Sprintf("/api/recommendations/%d/feedback", recs[0].ID), ts.token, map[string]any{
		"feedback": 5, "comments": "spot on",
	}, http.StatusNoContent)
	ts.do(t, "POST", fmt.Sprintf("/api/recommendations/%d/feedback", recs[0].ID), ts.token, map[string]any{
		"feedback": 9,
	}, http.StatusBadRequest)
	ts.do(t, "POST", "/api/recommendations/99999/feedback", ts.token, map[string]any{
		"feedback": 4,
	}, http.StatusNotFound)

	ts.do(t, "POST", "/api/recommendations/generate/99999", ts.token, nil, http.StatusNotFound)
}
