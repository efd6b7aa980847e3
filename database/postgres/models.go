package postgres

import (
	"encoding/json"
	"time"
)

const (
	RoleStudent = "student"
	RoleCoach   = "coach"
	RoleAdmin   = "admin"
)

const (
	TierFree     = "free"
	TierPremium  = "premium"
	TierUltimate = "ultimate"
)

type User struct {
	ID               int64     `json:"id"`
	Username         string    `json:"username"`
	Email            string    `json:"email"`
	PasswordHash     string    `json:"-"`
	Role             string    `json:"role"`
	SubscriptionTier string    `json:"subscriptionTier"`
	IsSubscribed     bool      `json:"isSubscribed"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Assessment is immutable after creation. TotalScore is computed once at
// write time as the sum of the four area scores.
type Assessment struct {
	ID                  int64     `json:"id"`
	UserID              int64     `json:"userId"`
	IntensityScore      int       `json:"intensityScore"`
	DecisionMakingScore int       `json:"decisionMakingScore"`
	DiversionsScore     int       `json:"diversionsScore"`
	ExecutionScore      int       `json:"executionScore"`
	TotalScore          int       `json:"totalScore"`
	CreatedAt           time.Time `json:"createdAt"`
}

type ChatMessage struct {
	Role                string    `json:"role"`
	Content             string    `json:"content"`
	Timestamp           time.Time `json:"timestamp"`
	UrgencyLevel        string    `json:"urgencyLevel,omitempty"`
	SuggestedTechniques []string  `json:"suggestedTechniques,omitempty"`
}

// ChatSession holds the append-only dialogue log for one user. Messages are
// stored as a single JSONB column so each chat turn's two appended entries
// land in one UPDATE.
type ChatSession struct {
	ID        int64         `json:"id"`
	UserID    int64         `json:"userId"`
	Messages  []ChatMessage `json:"messages"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

type ProgressEntry struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"userId"`
	Score       int       `json:"score"`
	SessionDate time.Time `json:"sessionDate"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Technique struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Scenario struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Category      string    `json:"category"`
	PressureLevel string    `json:"pressureLevel"`
	Description   string    `json:"description"`
	CreatedAt     time.Time `json:"createdAt"`
}

const (
	RecommendationTypeTechnique    = "technique"
	RecommendationTypeScenario     = "scenario"
	RecommendationTypeRoutine      = "routine"
	RecommendationTypeAssessment   = "assessment"
	RecommendationTypeChatFollowup = "chat_followup"
)

type AiRecommendation struct {
	ID               int64           `json:"id"`
	UserID           int64           `json:"userId"`
	Type             string          `json:"type"`
	Priority         int             `json:"priority"`
	ConfidenceScore  float64         `json:"confidenceScore"`
	Reasoning        string          `json:"reasoning"`
	Message          string          `json:"message"`
	Payload          json.RawMessage `json:"payload,omitempty"`
	ExpiresAt        *time.Time      `json:"expiresAt,omitempty"`
	UserFeedback     *int            `json:"userFeedback,omitempty"`
	FeedbackComments *string         `json:"feedbackComments,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
}

type CoachingInsight struct {
	ID              int64           `json:"id"`
	UserID          int64           `json:"userId"`
	Category        string          `json:"category"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	DataPoints      json.RawMessage `json:"dataPoints,omitempty"`
	ActionableSteps []string        `json:"actionableSteps"`
	Impact          string          `json:"impact"`
	Timeframe       string          `json:"timeframe"`
	CreatedAt       time.Time       `json:"createdAt"`
}
