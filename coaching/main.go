package coaching

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/TheThommo/PerformanceAICoach-sub000/database/postgres"
	"github.com/TheThommo/PerformanceAICoach-sub000/logger"
	"github.com/TheThommo/PerformanceAICoach-sub000/modelapi"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	// Contextual messages sent to the provider are capped; full history stays
	// in the store.
	contextWindowMessages = 10
	providerTimeout       = 20 * time.Second
)

const (
	StateRedHead      = "red_head"
	StateTransitional = "transitional"
	StateBlueHead     = "blue_head"
)

// Classification thresholds on the 0-400 total-score scale. Contractual:
// client code and historical data depend on these exact cutoffs.
const (
	BlueHeadThreshold     = 300
	TransitionalThreshold = 200
)

type Response struct {
	Message            string   `json:"message"`
	Suggestions        []string `json:"suggestions"`
	RedHeadIndicators  []string `json:"redHeadIndicators"`
	BlueHeadTechniques []string `json:"blueHeadTechniques"`
	UrgencyLevel       string   `json:"urgencyLevel"`
}

type Analysis struct {
	OverallState          string   `json:"overallState"`
	Strengths             []string `json:"strengths"`
	Opportunities         []string `json:"opportunities"`
	RecommendedTechniques []string `json:"recommendedTechniques"`
	Insights              []string `json:"insights"`
	NextSteps             []string `json:"nextSteps"`
}

type Scores struct {
	Intensity      int `json:"intensity"`
	DecisionMaking int `json:"decisionMaking"`
	Diversions     int `json:"diversions"`
	Execution      int `json:"execution"`
}

func (s Scores) Total() int {
	return s.Intensity + s.DecisionMaking + s.Diversions + s.Execution
}

// UserContext carries whatever recent signal exists for the player. Either
// field may be empty.
type UserContext struct {
	LatestAssessment *postgres.Assessment
	RecentProgress   []postgres.ProgressEntry
}

type CoachingConnectProps struct {
	Logger   *logger.LogMiddleware
	Provider modelapi.Provider
}

type Coaching struct {
	logger   *logger.LogMiddleware
	provider modelapi.Provider
}

func Connect(ctx context.Context, args CoachingConnectProps) *Coaching {
	tracer := otel.Tracer("coaching/Connect")
	ctx, span := tracer.Start(ctx, "Connect")
	defer span.End()

	args.Logger.Logger(ctx).Info("[Coaching] Coaching response adapter started")
	return &Coaching{logger: args.Logger, provider: args.Provider}
}

// GetCoachingResponse produces a structured coaching reply for one chat turn.
// It never returns an error: any provider failure, timeout or malformed
// output degrades to the deterministic fallback.
func (c *Coaching) GetCoachingResponse(ctx context.Context, message string, history []postgres.ChatMessage, userCtx UserContext) *Response {
	tracer := otel.Tracer("coaching/GetCoachingResponse")
	ctx, span := tracer.Start(ctx, "GetCoachingResponse")
	defer span.End()

	span.SetAttributes(
		attribute.Int("history_length", len(history)),
		attribute.Int("message_length", len(message)),
	)

	window := historyWindow(history)
	system := modelapi.COACHING_RESPONSE_PROMPT + contextBlock(userCtx)

	callCtx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	raw, err := c.provider.GenerateContent(callCtx, system, window, message)
	if err != nil {
		span.RecordError(err)
		c.logger.Logger(ctx).Error("[Coaching] Provider call failed, using fallback response", zap.Error(err))
		return fallbackResponse(message)
	}

	resp, err := parseResponse(raw)
	if err != nil {
		span.RecordError(err)
		c.logger.Logger(ctx).Error("[Coaching] Could not parse provider output, using fallback response",
			zap.Error(err),
			zap.String("raw_output", raw),
		)
		return fallbackResponse(message)
	}

	span.SetAttributes(attribute.String("urgency_level", resp.UrgencyLevel))
	return resp
}

// AnalyzeAssessmentResults interprets a submitted assessment against up to
// three prior ones. Same contract as GetCoachingResponse: never errors,
// always answers.
func (c *Coaching) AnalyzeAssessmentResults(ctx context.Context, scores Scores, previous []postgres.Assessment) *Analysis {
	tracer := otel.Tracer("coaching/AnalyzeAssessmentResults")
	ctx, span := tracer.Start(ctx, "AnalyzeAssessmentResults")
	defer span.End()

	span.SetAttributes(
		attribute.Int("total_score", scores.Total()),
		attribute.Int("previous_count", len(previous)),
	)

	callCtx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	raw, err := c.provider.GenerateContent(callCtx, modelapi.ASSESSMENT_ANALYSIS_PROMPT, nil, analysisUserPrompt(scores, previous))
	if err != nil {
		span.RecordError(err)
		c.logger.Logger(ctx).Error("[Coaching] Provider call failed, using fallback analysis", zap.Error(err))
		return fallbackAnalysis(scores)
	}

	analysis, err := parseAnalysis(raw)
	if err != nil {
		span.RecordError(err)
		c.logger.Logger(ctx).Error("[Coaching] Could not parse provider analysis, using fallback analysis",
			zap.Error(err),
			zap.String("raw_output", raw),
		)
		return fallbackAnalysis(scores)
	}

	span.SetAttributes(attribute.String("overall_state", analysis.OverallState))
	return analysis
}

func historyWindow(history []postgres.ChatMessage) []modelapi.ChatMessage {
	start := 0
	if len(history) > contextWindowMessages {
		start = len(history) - contextWindowMessages
	}

	window := make([]modelapi.ChatMessage, 0, len(history)-start)
	for _, m := range history[start:] {
		role := modelapi.USER
		if m.Role == modelapi.ASSISTANT {
			role = modelapi.ASSISTANT
		}
		window = append(window, modelapi.ChatMessage{Role: role, Content: m.Content})
	}
	return window
}

func contextBlock(userCtx UserContext) string {
	var b strings.Builder

	if userCtx.LatestAssessment != nil {
		a := userCtx.LatestAssessment
		fmt.Fprintf(&b, "\nThe player's latest assessment (0-100 per area): intensity %d, decisionMaking %d, diversions %d, execution %d, total %d/400.\n",
			a.IntensityScore, a.DecisionMakingScore, a.DiversionsScore, a.ExecutionScore, a.TotalScore)
	}

	if len(userCtx.RecentProgress) > 0 {
		scores := make([]string, 0, len(userCtx.RecentProgress))
		for _, p := range userCtx.RecentProgress {
			scores = append(scores, fmt.Sprintf("%d", p.Score))
		}
		fmt.Fprintf(&b, "\nPractice scores from the last week, newest first: %s.\n", strings.Join(scores, ", "))
	}

	return b.String()
}

func analysisUserPrompt(scores Scores, previous []postgres.Assessment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New assessment: intensity %d, decisionMaking %d, diversions %d, execution %d, total %d/400.\n",
		scores.Intensity, scores.DecisionMaking, scores.Diversions, scores.Execution, scores.Total())

	for i, a := range previous {
		fmt.Fprintf(&b, "Previous assessment %d (newest first): intensity %d, decisionMaking %d, diversions %d, execution %d, total %d.\n",
			i+1, a.IntensityScore, a.DecisionMakingScore, a.DiversionsScore, a.ExecutionScore, a.TotalScore)
	}
	return b.String()
}

// stripCodeFence removes a surrounding markdown code fence if the model
// ignored the no-fences instruction.
func stripCodeFence(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

func parseResponse(raw string) (*Response, error) {
	var resp Response
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &resp); err != nil {
		return nil, fmt.Errorf("unmarshal coaching response: %w", err)
	}

	if strings.TrimSpace(resp.Message) == "" {
		return nil, fmt.Errorf("coaching response missing message")
	}

	switch strings.ToLower(resp.UrgencyLevel) {
	case "low", "medium", "high":
		resp.UrgencyLevel = strings.ToLower(resp.UrgencyLevel)
	default:
		resp.UrgencyLevel = "low"
	}

	if len(resp.Suggestions) == 0 {
		resp.Suggestions = defaultSuggestions
	}
	if len(resp.BlueHeadTechniques) == 0 {
		resp.BlueHeadTechniques = defaultTechniques
	}
	if resp.RedHeadIndicators == nil {
		resp.RedHeadIndicators = []string{}
	}

	return &resp, nil
}

func parseAnalysis(raw string) (*Analysis, error) {
	var analysis Analysis
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &analysis); err != nil {
		return nil, fmt.Errorf("unmarshal assessment analysis: %w", err)
	}

	switch analysis.OverallState {
	case StateRedHead, StateTransitional, StateBlueHead:
	default:
		return nil, fmt.Errorf("invalid overall state %q", analysis.OverallState)
	}

	if len(analysis.RecommendedTechniques) == 0 {
		analysis.RecommendedTechniques = defaultTechniques
	}
	if len(analysis.NextSteps) == 0 {
		analysis.NextSteps = defaultNextSteps
	}

	return &analysis, nil
}

// ClassifyOverallState is the deterministic rule the fallback uses and the
// documented meaning of the 0-400 total score.
func ClassifyOverallState(totalScore int) string {
	if totalScore >= BlueHeadThreshold {
		return StateBlueHead
	}
	if totalScore >= TransitionalThreshold {
		return StateTransitional
	}
	return StateRedHead
}
