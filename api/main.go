package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/TheThommo/PerformanceAICoach-sub000/assessment"
	"github.com/TheThommo/PerformanceAICoach-sub000/auth"
	"github.com/TheThommo/PerformanceAICoach-sub000/coaching"
	"github.com/TheThommo/PerformanceAICoach-sub000/database/postgres"
	"github.com/TheThommo/PerformanceAICoach-sub000/logger"
	"github.com/TheThommo/PerformanceAICoach-sub000/recommendation"
	"github.com/TheThommo/PerformanceAICoach-sub000/session"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// Catalog is the slice of the persistence layer the read-only content and
// progress endpoints use directly. *postgres.Database satisfies it.
type Catalog interface {
	ListTechniques(ctx context.Context, category string) ([]postgres.Technique, error)
	ListScenarios(ctx context.Context, pressureLevel string) ([]postgres.Scenario, error)
	AddProgressEntry(ctx context.Context, args postgres.AddProgressEntryParams) (postgres.ProgressEntry, error)
	GetRecentProgress(ctx context.Context, userID int64, days int) ([]postgres.ProgressEntry, error)
}

type ApiConnectProps struct {
	Logger          *logger.LogMiddleware
	Auth            *auth.Auth
	Session         *session.Session
	Assessment      *assessment.Assessment
	Recommendations *recommendation.Engine
	Catalog         Catalog
	// MaxHistoryMessages trims each session's message list on the listing
	// endpoint. Zero means no trimming.
	MaxHistoryMessages int
}

type Api struct {
	logger          *logger.LogMiddleware
	auth            *auth.Auth
	session         *session.Session
	assessment      *assessment.Assessment
	recommendations *recommendation.Engine
	catalog         Catalog
	maxHistory      int
}

func Connect(ctx context.Context, args ApiConnectProps) *Api {
	tracer := otel.Tracer("api/Connect")
	ctx, span := tracer.Start(ctx, "Connect")
	defer span.End()

	args.Logger.Logger(ctx).Info("[Api] HTTP layer started")
	return &Api{
		logger:          args.Logger,
		auth:            args.Auth,
		session:         args.Session,
		assessment:      args.Assessment,
		recommendations: args.Recommendations,
		catalog:         args.Catalog,
		maxHistory:      args.MaxHistoryMessages,
	}
}

// Router assembles the full route tree. Everything under /api except
// /api/auth requires a bearer token.
func (a *Api) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(requestLoggerMiddleware(a.logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		a.respondJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", a.handleRegister)
			r.Post("/login", a.handleLogin)
		})

		r.Group(func(r chi.Router) {
			r.Use(a.authMiddleware)

			r.Post("/subscription", a.handleUpdateSubscription)

			r.Post("/chat", a.handleChat)
			r.Get("/chat/sessions/{userId}", a.handleListSessions)

			r.Post("/assessments", a.handleSubmitAssessment)
			r.Get("/assessments/latest/{userId}", a.handleLatestAssessment)
			r.Get("/assessments/user/{userId}", a.handleAssessmentHistory)

			r.Post("/progress", a.handleAddProgress)
			r.Get("/progress/{userId}", a.handleGetProgress)

			r.Get("/techniques", a.handleListTechniques)
			r.Get("/scenarios", a.handleListScenarios)

			r.Post("/recommendations/generate/{userId}", a.handleGenerateRecommendations)
			r.Get("/recommendations/{userId}", a.handleActiveRecommendations)
			r.Post("/recommendations/{id}/feedback", a.handleRecommendationFeedback)
		})
	})

	return r
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *Api) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respondError(w, r, auth.ErrInvalidInput)
		return
	}

	user, err := a.auth.Register(r.Context(), auth.RegisterProps{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}

	result, err := a.auth.Login(r.Context(), auth.LoginProps{Email: user.Email, Password: req.Password})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respondJSON(w, r, http.StatusCreated, result)
}

func (a *Api) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginProps
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respondError(w, r, auth.ErrInvalidInput)
		return
	}

	result, err := a.auth.Login(r.Context(), req)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respondJSON(w, r, http.StatusOK, result)
}

type subscriptionRequest struct {
	UserID int64  `json:"userId"`
	Tier   string `json:"tier"`
}

// handleUpdateSubscription records an already-resolved tier change. Payment
// itself happens upstream; this endpoint only persists the outcome.
func (a *Api) handleUpdateSubscription(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respondError(w, r, auth.ErrInvalidInput)
		return
	}
	if req.UserID == 0 {
		a.respondError(w, r, auth.ErrInvalidInput)
		return
	}

	user, err := a.auth.UpdateSubscription(r.Context(), auth.UpdateSubscriptionProps{
		UserID: req.UserID,
		Tier:   req.Tier,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respondJSON(w, r, http.StatusOK, user)
}

type chatRequest struct {
	UserID    int64  `json:"userId"`
	Message   string `json:"message"`
	SessionID *int64 `json:"sessionId,omitempty"`
}

type chatResponse struct {
	Session  *postgres.ChatSession `json:"session"`
	Response *coaching.Response    `json:"response"`
}

func (a *Api) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respondError(w, r, session.ErrInvalidInput)
		return
	}
	if req.UserID == 0 {
		a.respondError(w, r, session.ErrInvalidInput)
		return
	}

	sess, response, err := a.session.HandleChatTurn(r.Context(), session.HandleChatTurnProps{
		UserID:    req.UserID,
		Message:   req.Message,
		SessionID: req.SessionID,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respondJSON(w, r, http.StatusOK, chatResponse{Session: sess, Response: response})
}

func (a *Api) handleListSessions(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userId")
	if err != nil {
		a.respondError(w, r, session.ErrInvalidInput)
		return
	}

	sessions, err := a.session.ListUserSessions(r.Context(), userID)
	if err != nil {
		a.respondError(w, r, err)
		return
	}

	if a.maxHistory > 0 {
		for i := range sessions {
			if len(sessions[i].Messages) > a.maxHistory {
				sessions[i].Messages = sessions[i].Messages[len(sessions[i].Messages)-a.maxHistory:]
			}
		}
	}
	a.respondJSON(w, r, http.StatusOK, sessions)
}

type submitAssessmentRequest struct {
	UserID int64                  `json:"userId"`
	Scores submitAssessmentScores `json:"scores"`
}

// Pointer fields distinguish an absent sub-score from a literal zero. All
// four must be present.
type submitAssessmentScores struct {
	Intensity      *int `json:"intensity"`
	DecisionMaking *int `json:"decisionMaking"`
	Diversions     *int `json:"diversions"`
	Execution      *int `json:"execution"`
}

func (s submitAssessmentScores) complete() bool {
	return s.Intensity != nil && s.DecisionMaking != nil && s.Diversions != nil && s.Execution != nil
}

type submitAssessmentResponse struct {
	Assessment *postgres.Assessment `json:"assessment"`
	Analysis   *coaching.Analysis   `json:"analysis"`
}

func (a *Api) handleSubmitAssessment(w http.ResponseWriter, r *http.Request) {
	var req submitAssessmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respondError(w, r, assessment.ErrInvalidInput)
		return
	}
	if req.UserID == 0 || !req.Scores.complete() {
		a.respondError(w, r, assessment.ErrInvalidInput)
		return
	}

	record, analysis, err := a.assessment.SubmitAssessment(r.Context(), assessment.SubmitAssessmentProps{
		UserID: req.UserID,
		Scores: coaching.Scores{
			Intensity:      *req.Scores.Intensity,
			DecisionMaking: *req.Scores.DecisionMaking,
			Diversions:     *req.Scores.Diversions,
			Execution:      *req.Scores.Execution,
		},
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respondJSON(w, r, http.StatusCreated, submitAssessmentResponse{Assessment: record, Analysis: analysis})
}

func (a *Api) handleLatestAssessment(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userId")
	if err != nil {
		a.respondError(w, r, assessment.ErrInvalidInput)
		return
	}

	record, err := a.assessment.Latest(r.Context(), userID)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respondJSON(w, r, http.StatusOK, record)
}

func (a *Api) handleAssessmentHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userId")
	if err != nil {
		a.respondError(w, r, assessment.ErrInvalidInput)
		return
	}

	records, err := a.assessment.History(r.Context(), userID)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respondJSON(w, r, http.StatusOK, records)
}

type addProgressRequest struct {
	UserID      int64      `json:"userId"`
	Score       int        `json:"score"`
	SessionDate *time.Time `json:"sessionDate,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

func (a *Api) handleAddProgress(w http.ResponseWriter, r *http.Request) {
	var req addProgressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respondError(w, r, session.ErrInvalidInput)
		return
	}
	if req.UserID == 0 || req.Score < 0 || req.Score > 100 {
		a.respondError(w, r, session.ErrInvalidInput)
		return
	}

	sessionDate := time.Now().UTC()
	if req.SessionDate != nil {
		sessionDate = *req.SessionDate
	}

	entry, err := a.catalog.AddProgressEntry(r.Context(), postgres.AddProgressEntryParams{
		UserID:      req.UserID,
		Score:       req.Score,
		SessionDate: sessionDate,
		Notes:       req.Notes,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respondJSON(w, r, http.StatusCreated, entry)
}

func (a *Api) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userId")
	if err != nil {
		a.respondError(w, r, session.ErrInvalidInput)
		return
	}

	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			a.respondError(w, r, session.ErrInvalidInput)
			return
		}
		days = parsed
	}

	entries, err := a.catalog.GetRecentProgress(r.Context(), userID, days)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respondJSON(w, r, http.StatusOK, entries)
}

func (a *Api) handleListTechniques(w http.ResponseWriter, r *http.Request) {
	techniques, err := a.catalog.ListTechniques(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respondJSON(w, r, http.StatusOK, techniques)
}

func (a *Api) handleListScenarios(w http.ResponseWriter, r *http.Request) {
	scenarios, err := a.catalog.ListScenarios(r.Context(), r.URL.Query().Get("pressureLevel"))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respondJSON(w, r, http.StatusOK, scenarios)
}

func (a *Api) handleGenerateRecommendations(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userId")
	if err != nil {
		a.respondError(w, r, recommendation.ErrInvalidInput)
		return
	}

	recs, err := a.recommendations.Generate(r.Context(), userID)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respondJSON(w, r, http.StatusOK, recs)
}

func (a *Api) handleActiveRecommendations(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userId")
	if err != nil {
		a.respondError(w, r, recommendation.ErrInvalidInput)
		return
	}

	recs, err := a.recommendations.Active(r.Context(), userID)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respondJSON(w, r, http.StatusOK, recs)
}

type feedbackRequest struct {
	Feedback int    `json:"feedback"`
	Comments string `json:"comments,omitempty"`
}

func (a *Api) handleRecommendationFeedback(w http.ResponseWriter, r *http.Request) {
	recID, err := pathID(r, "id")
	if err != nil {
		a.respondError(w, r, recommendation.ErrInvalidInput)
		return
	}

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respondError(w, r, recommendation.ErrInvalidInput)
		return
	}

	if _, err := a.recommendations.TrackEffectiveness(r.Context(), recommendation.TrackEffectivenessProps{
		RecommendationID: recID,
		Feedback:         req.Feedback,
		Comments:         req.Comments,
	}); err != nil {
		a.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(r *http.Request, param string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, param), 10, 64)
}

func (a *Api) respondJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.logger.Logger(r.Context()).Error("[Api] Could not encode response", zap.Error(err))
	}
}

func (a *Api) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, auth.ErrInvalidInput),
		errors.Is(err, session.ErrInvalidInput),
		errors.Is(err, assessment.ErrInvalidInput),
		errors.Is(err, recommendation.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		status = http.StatusUnauthorized
	case errors.Is(err, postgres.ErrNotFound):
		status = http.StatusNotFound
	}

	if status == http.StatusInternalServerError {
		a.logger.Logger(r.Context()).Error("[Api] Request failed",
			zap.Error(err), zap.String("path", r.URL.Path), zap.String("method", r.Method))
		err = errors.New("internal server error")
	}

	a.respondJSON(w, r, status, map[string]string{"error": err.Error()})
}
