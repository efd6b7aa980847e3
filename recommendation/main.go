package recommendation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/TheThommo/PerformanceAICoach-sub000/database/postgres"
	"github.com/TheThommo/PerformanceAICoach-sub000/logger"
	"github.com/TheThommo/PerformanceAICoach-sub000/modelapi"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var ErrInvalidInput = errors.New("invalid recommendation input")

const (
	maxStoredRecommendations   = 10
	maxReturnedRecommendations = 5

	contextAssessments  = 5
	contextChatSessions = 10
	engagementWindow    = 30
	chatPassSessions    = 3

	momentumDeltaThreshold = 5
	reEngagementRatio      = 0.7
)

// Expiry windows in days per recommendation type.
var expiryDays = map[string]int{
	postgres.RecommendationTypeChatFollowup: 3,
	postgres.RecommendationTypeRoutine:      5,
	postgres.RecommendationTypeTechnique:    7,
	postgres.RecommendationTypeScenario:     7,
	postgres.RecommendationTypeAssessment:   14,
}

type Store interface {
	GetUserByID(ctx context.Context, id int64) (postgres.User, error)
	GetUserAssessments(ctx context.Context, userID int64, limit int) ([]postgres.Assessment, error)
	GetUserChatSessions(ctx context.Context, userID int64, limit int) ([]postgres.ChatSession, error)
	GetRecentProgress(ctx context.Context, userID int64, days int) ([]postgres.ProgressEntry, error)
	AddRecommendation(ctx context.Context, args postgres.AddRecommendationParams) (postgres.AiRecommendation, error)
	GetActiveUserRecommendations(ctx context.Context, userID int64, limit int) ([]postgres.AiRecommendation, error)
	UpdateRecommendationFeedback(ctx context.Context, args postgres.UpdateRecommendationFeedbackParams) (postgres.AiRecommendation, error)
	AddInsight(ctx context.Context, args postgres.AddInsightParams) (postgres.CoachingInsight, error)
}

type EngineConnectProps struct {
	Logger     *logger.LogMiddleware
	Store      Store
	Classifier Classifier
}

type Engine struct {
	logger     *logger.LogMiddleware
	store      Store
	classifier Classifier
}

func Connect(ctx context.Context, args EngineConnectProps) *Engine {
	tracer := otel.Tracer("recommendation/Connect")
	ctx, span := tracer.Start(ctx, "Connect")
	defer span.End()

	classifier := args.Classifier
	if classifier == nil {
		classifier = KeywordClassifier{}
	}

	args.Logger.Logger(ctx).Info("[Recommendation] Recommendation engine started")
	return &Engine{logger: args.Logger, store: args.Store, classifier: classifier}
}

// candidate is an unsaved recommendation emitted by one of the passes.
type candidate struct {
	Type       string
	Priority   int
	Confidence float64
	Reasoning  string
	Message    string
	Payload    map[string]any
}

// Generate derives prioritized, time-bounded recommendations for a user from
// recent chat, assessment and engagement signal. A missing sub-context only
// skips its pass; only a missing user aborts. Persists up to 10, returns the
// top 5.
func (e *Engine) Generate(ctx context.Context, userID int64) ([]postgres.AiRecommendation, error) {
	tracer := otel.Tracer("recommendation/Generate")
	ctx, span := tracer.Start(ctx, "Generate")
	defer span.End()

	span.SetAttributes(attribute.Int64("user.id", userID))

	if _, err := e.store.GetUserByID(ctx, userID); err != nil {
		return nil, err
	}

	candidates := []candidate{}
	candidates = append(candidates, e.chatPass(ctx, userID)...)
	candidates = append(candidates, e.assessmentPass(ctx, userID)...)
	candidates = append(candidates, e.engagementPass(ctx, userID)...)

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].Confidence > candidates[j].Confidence
	})

	if len(candidates) > maxStoredRecommendations {
		candidates = candidates[:maxStoredRecommendations]
	}

	now := time.Now().UTC()
	stored := []postgres.AiRecommendation{}
	for _, c := range candidates {
		payload, err := json.Marshal(c.Payload)
		if err != nil {
			payload = []byte(`{}`)
		}
		expiresAt := now.AddDate(0, 0, expiryDays[c.Type])

		rec, err := e.store.AddRecommendation(ctx, postgres.AddRecommendationParams{
			UserID:          userID,
			Type:            c.Type,
			Priority:        c.Priority,
			ConfidenceScore: c.Confidence,
			Reasoning:       c.Reasoning,
			Message:         c.Message,
			Payload:         payload,
			ExpiresAt:       &expiresAt,
		})
		if err != nil {
			span.RecordError(err)
			e.logger.Logger(ctx).Error("[Recommendation] Could not persist recommendation",
				zap.Error(err), zap.Int64("user_id", userID), zap.String("type", c.Type))
			return nil, err
		}
		stored = append(stored, rec)
	}

	span.SetAttributes(attribute.Int("stored_count", len(stored)))

	if len(stored) > maxReturnedRecommendations {
		stored = stored[:maxReturnedRecommendations]
	}
	return stored, nil
}

// chatPass scans the three most recent sessions for practice requests and
// stress signals, pairing user and assistant messages by index.
func (e *Engine) chatPass(ctx context.Context, userID int64) []candidate {
	sessions, err := e.store.GetUserChatSessions(ctx, userID, contextChatSessions)
	if err != nil {
		e.logger.Logger(ctx).Warn("[Recommendation] Skipping chat pass",
			zap.Error(err), zap.Int64("user_id", userID))
		return nil
	}
	if len(sessions) > chatPassSessions {
		sessions = sessions[:chatPassSessions]
	}

	out := []candidate{}
	for _, sess := range sessions {
		for i, msg := range sess.Messages {
			if msg.Role != modelapi.USER {
				continue
			}
			var reply string
			if i+1 < len(sess.Messages) && sess.Messages[i+1].Role == modelapi.ASSISTANT {
				reply = sess.Messages[i+1].Content
			}

			for _, intent := range e.classifier.Classify(msg.Content) {
				switch intent {
				case IntentPractice:
					out = append(out, candidate{
						Type:       postgres.RecommendationTypeChatFollowup,
						Priority:   7,
						Confidence: 0.8,
						Reasoning:  "Player asked for practice guidance in a recent coaching chat",
						Message:    "Follow up on the practice plan you discussed with your coach",
						Payload: map[string]any{
							"sessionId":     sess.ID,
							"playerMessage": msg.Content,
							"coachReply":    reply,
						},
					})
				case IntentStress:
					out = append(out, candidate{
						Type:       postgres.RecommendationTypeTechnique,
						Priority:   9,
						Confidence: 0.85,
						Reasoning:  "Stress language detected in a recent coaching chat",
						Message:    "Work a stress-management technique into this week's practice: start with Box Breathing before every shot",
						Payload: map[string]any{
							"sessionId":     sess.ID,
							"playerMessage": msg.Content,
							"focus":         "stress_management",
						},
					})
				}
			}
		}
	}
	return out
}

var assessmentAreas = []struct {
	key   string
	label string
	value func(postgres.Assessment) int
}{
	{"intensity", "intensity control", func(a postgres.Assessment) int { return a.IntensityScore }},
	{"decisionMaking", "decision making", func(a postgres.Assessment) int { return a.DecisionMakingScore }},
	{"diversions", "handling diversions", func(a postgres.Assessment) int { return a.DiversionsScore }},
	{"execution", "execution", func(a postgres.Assessment) int { return a.ExecutionScore }},
}

// assessmentPass targets the weakest area of the latest assessment and
// reinforces momentum when an area improved by more than 5 points.
func (e *Engine) assessmentPass(ctx context.Context, userID int64) []candidate {
	assessments, err := e.store.GetUserAssessments(ctx, userID, contextAssessments)
	if err != nil {
		e.logger.Logger(ctx).Warn("[Recommendation] Skipping assessment pass",
			zap.Error(err), zap.Int64("user_id", userID))
		return nil
	}
	if len(assessments) == 0 {
		return nil
	}

	latest := assessments[0]

	weakest := 0
	for i, area := range assessmentAreas {
		if area.value(latest) < assessmentAreas[weakest].value(latest) {
			weakest = i
		}
	}

	out := []candidate{{
		Type:       postgres.RecommendationTypeTechnique,
		Priority:   8,
		Confidence: 0.75,
		Reasoning:  fmt.Sprintf("Latest assessment shows %s as the weakest area (%d/100)", assessmentAreas[weakest].label, assessmentAreas[weakest].value(latest)),
		Message:    fmt.Sprintf("Spend this week's practice on %s, your biggest opportunity right now", assessmentAreas[weakest].label),
		Payload: map[string]any{
			"area":         assessmentAreas[weakest].key,
			"score":        assessmentAreas[weakest].value(latest),
			"assessmentId": latest.ID,
		},
	}}

	if len(assessments) > 1 {
		previous := assessments[1]
		best := 0
		bestDelta := assessmentAreas[0].value(latest) - assessmentAreas[0].value(previous)
		for i := 1; i < len(assessmentAreas); i++ {
			delta := assessmentAreas[i].value(latest) - assessmentAreas[i].value(previous)
			if delta > bestDelta {
				best = i
				bestDelta = delta
			}
		}
		if bestDelta > momentumDeltaThreshold {
			out = append(out, candidate{
				Type:       postgres.RecommendationTypeAssessment,
				Priority:   6,
				Confidence: 0.7,
				Reasoning:  fmt.Sprintf("%s improved by %d points since the previous assessment", assessmentAreas[best].label, bestDelta),
				Message:    fmt.Sprintf("Your %s is trending up. Keep the same routine and reassess in a week to lock it in", assessmentAreas[best].label),
				Payload: map[string]any{
					"area":  assessmentAreas[best].key,
					"delta": bestDelta,
				},
			})
		}
	}

	return out
}

// engagementPass flags disengagement when the most recent practice score
// drops below 70% of the 30-day mean.
func (e *Engine) engagementPass(ctx context.Context, userID int64) []candidate {
	progress, err := e.store.GetRecentProgress(ctx, userID, engagementWindow)
	if err != nil {
		e.logger.Logger(ctx).Warn("[Recommendation] Skipping engagement pass",
			zap.Error(err), zap.Int64("user_id", userID))
		return nil
	}
	if len(progress) == 0 {
		return nil
	}

	sum := 0
	for _, p := range progress {
		sum += p.Score
	}
	mean := float64(sum) / float64(len(progress))
	latest := float64(progress[0].Score)

	if latest >= reEngagementRatio*mean {
		return nil
	}

	return []candidate{{
		Type:       postgres.RecommendationTypeRoutine,
		Priority:   8,
		Confidence: 0.8,
		Reasoning:  fmt.Sprintf("Latest practice score (%.0f) is well below the 30-day average (%.0f)", latest, mean),
		Message:    "Your practice scores have dipped. Book one short, structured session this week to get back on track",
		Payload: map[string]any{
			"latestScore": latest,
			"meanScore":   mean,
		},
	}}
}

// Active returns the user's stored, unexpired recommendations, ranked.
func (e *Engine) Active(ctx context.Context, userID int64) ([]postgres.AiRecommendation, error) {
	tracer := otel.Tracer("recommendation/Active")
	ctx, span := tracer.Start(ctx, "Active")
	defer span.End()

	if _, err := e.store.GetUserByID(ctx, userID); err != nil {
		return nil, err
	}
	return e.store.GetActiveUserRecommendations(ctx, userID, maxStoredRecommendations)
}

type TrackEffectivenessProps struct {
	RecommendationID int64
	Feedback         int
	Comments         string
}

// TrackEffectiveness records user feedback on a recommendation. Feedback of
// 4 or 5 additionally produces a coaching insight capturing what worked.
func (e *Engine) TrackEffectiveness(ctx context.Context, args TrackEffectivenessProps) (*postgres.AiRecommendation, error) {
	tracer := otel.Tracer("recommendation/TrackEffectiveness")
	ctx, span := tracer.Start(ctx, "TrackEffectiveness")
	defer span.End()

	if args.Feedback < 1 || args.Feedback > 5 {
		return nil, ErrInvalidInput
	}

	rec, err := e.store.UpdateRecommendationFeedback(ctx, postgres.UpdateRecommendationFeedbackParams{
		ID:       args.RecommendationID,
		Feedback: args.Feedback,
		Comments: args.Comments,
	})
	if err != nil {
		return nil, err
	}

	if args.Feedback >= 4 {
		dataPoints, _ := json.Marshal(map[string]any{
			"recommendationId": rec.ID,
			"type":             rec.Type,
			"feedback":         args.Feedback,
		})
		_, err := e.store.AddInsight(ctx, postgres.AddInsightParams{
			UserID:      rec.UserID,
			Category:    "recommendation_success",
			Title:       fmt.Sprintf("A %s recommendation landed well", rec.Type),
			Description: rec.Message,
			DataPoints:  dataPoints,
			ActionableSteps: []string{
				"Repeat what worked in the next practice block",
				"Generate a fresh set of recommendations after the next assessment",
			},
			Impact:    "positive",
			Timeframe: "recent",
		})
		if err != nil {
			// Insight is derived data; losing it never fails the feedback write.
			span.RecordError(err)
			e.logger.Logger(ctx).Warn("[Recommendation] Could not persist coaching insight",
				zap.Error(err), zap.Int64("recommendation_id", rec.ID))
		}
	}

	return &rec, nil
}
