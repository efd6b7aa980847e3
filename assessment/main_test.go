package assessment

import (
	"context"
	"errors"
	"testing"

	"github.com/TheThommo/PerformanceAICoach-sub000/coaching"
	"github.com/TheThommo/PerformanceAICoach-sub000/database/postgres"
	"github.com/TheThommo/PerformanceAICoach-sub000/logger"
)

type fakeStore struct {
	users       map[int64]postgres.User
	assessments []postgres.Assessment
	nextID      int64
	addErr      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: map[int64]postgres.User{}, nextID: 1}
}

func (f *fakeStore) GetUserByID(ctx context.Context, id int64) (postgres.User, error) {
	user, ok := f.users[id]
	if !ok {
		return postgres.User{}, postgres.ErrNotFound
	}
	return user, nil
}

func (f *fakeStore) AddAssessment(ctx context.Context, args postgres.AddAssessmentParams) (postgres.Assessment, error) {
	if f.addErr != nil {
		return postgres.Assessment{}, f.addErr
	}
	a := postgres.Assessment{
		ID:                  f.nextID,
		UserID:              args.UserID,
		IntensityScore:      args.IntensityScore,
		DecisionMakingScore: args.DecisionMakingScore,
		DiversionsScore:     args.DiversionsScore,
		ExecutionScore:      args.ExecutionScore,
		TotalScore:          args.TotalScore,
	}
	f.nextID++
	// newest first, like the real query
	f.assessments = append([]postgres.Assessment{a}, f.assessments...)
	return a, nil
}

func (f *fakeStore) GetLatestAssessment(ctx context.Context, userID int64) (postgres.Assessment, error) {
	for _, a := range f.assessments {
		if a.UserID == userID {
			return a, nil
		}
	}
	return postgres.Assessment{}, postgres.ErrNotFound
}

func (f *fakeStore) GetUserAssessments(ctx context.Context, userID int64, limit int) ([]postgres.Assessment, error) {
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

type fakeAnalyzer struct {
	lastPrevious []postgres.Assessment
}

func (f *fakeAnalyzer) AnalyzeAssessmentResults(ctx context.Context, scores coaching.Scores, previous []postgres.Assessment) *coaching.Analysis {
	f.lastPrevious = previous
	return &coaching.Analysis{OverallState: coaching.ClassifyOverallState(scores.Total())}
}

func newAssessment(t *testing.T, store Store, analyzer Analyzer) *Assessment {
	t.Helper()
	logMiddleware := logger.Connect(logger.LoggerConnectProps{Production: false})
	return Connect(context.Background(), AssessmentConnectProps{Logger: logMiddleware, Store: store, Coach: analyzer})
}

func TestSubmitAssessmentTotalScoreInvariant(t *testing.T) {
	tests := []struct {
		name     string
		scores   coaching.Scores
		expected int
		state    string
	}{
		{"all eighties", coaching.Scores{Intensity: 80, DecisionMaking: 80, Diversions: 80, Execution: 80}, 320, coaching.StateBlueHead},
		{"all forties", coaching.Scores{Intensity: 40, DecisionMaking: 40, Diversions: 40, Execution: 40}, 160, coaching.StateRedHead},
		{"mixed", coaching.Scores{Intensity: 55, DecisionMaking: 70, Diversions: 45, Execution: 62}, 232, coaching.StateTransitional},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			store.users[1] = postgres.User{ID: 1}
			a := newAssessment(t, store, &fakeAnalyzer{})

			record, analysis, err := a.SubmitAssessment(context.Background(), SubmitAssessmentProps{UserID: 1, Scores: tt.scores})
			if err != nil {
				t.Fatalf("SubmitAssessment failed: %v", err)
			}

			sum := record.IntensityScore + record.DecisionMakingScore + record.DiversionsScore + record.ExecutionScore
			if record.TotalScore != sum {
				t.Errorf("totalScore %d != sum of areas %d", record.TotalScore, sum)
			}
			if record.TotalScore != tt.expected {
				t.Errorf("totalScore = %d, expected %d", record.TotalScore, tt.expected)
			}
			if analysis.OverallState != tt.state {
				t.Errorf("overallState = %q, expected %q", analysis.OverallState, tt.state)
			}
		})
	}
}

func TestSubmitAssessmentValidation(t *testing.T) {
	store := newFakeStore()
	store.users[1] = postgres.User{ID: 1}
	a := newAssessment(t, store, &fakeAnalyzer{})

	tests := []coaching.Scores{
		{Intensity: -1, DecisionMaking: 50, Diversions: 50, Execution: 50},
		{Intensity: 50, DecisionMaking: 101, Diversions: 50, Execution: 50},
	}

	for _, scores := range tests {
		_, _, err := a.SubmitAssessment(context.Background(), SubmitAssessmentProps{UserID: 1, Scores: scores})
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("scores %+v: expected ErrInvalidInput, got %v", scores, err)
		}
	}
	if len(store.assessments) != 0 {
		t.Error("invalid submissions must not be persisted")
	}
}

func TestSubmitAssessmentUnknownUser(t *testing.T) {
	a := newAssessment(t, newFakeStore(), &fakeAnalyzer{})

	_, _, err := a.SubmitAssessment(context.Background(), SubmitAssessmentProps{
		UserID: 9,
		Scores: coaching.Scores{Intensity: 50, DecisionMaking: 50, Diversions: 50, Execution: 50},
	})
	if !errors.Is(err, postgres.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSubmitAssessmentExcludesNewRecordFromHistory(t *testing.T) {
	store := newFakeStore()
	store.users[1] = postgres.User{ID: 1}
	analyzer := &fakeAnalyzer{}
	a := newAssessment(t, store, analyzer)

	scores := coaching.Scores{Intensity: 50, DecisionMaking: 50, Diversions: 50, Execution: 50}
	for i := 0; i < 5; i++ {
		if _, _, err := a.SubmitAssessment(context.Background(), SubmitAssessmentProps{UserID: 1, Scores: scores}); err != nil {
			t.Fatalf("submission %d failed: %v", i, err)
		}
	}

	if len(analyzer.lastPrevious) != 3 {
		t.Fatalf("analysis should see up to 3 prior assessments, got %d", len(analyzer.lastPrevious))
	}
	latest, _ := store.GetLatestAssessment(context.Background(), 1)
	for _, p := range analyzer.lastPrevious {
		if p.ID == latest.ID {
			t.Error("the assessment just created must not appear in its own history")
		}
	}
}

func TestLatestWhenNone(t *testing.T) {
	store := newFakeStore()
	store.users[1] = postgres.User{ID: 1}
	a := newAssessment(t, store, &fakeAnalyzer{})

	_, err := a.Latest(context.Background(), 1)
	if !errors.Is(err, postgres.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for user with zero assessments, got %v", err)
	}
}
