package assessment

import (
	"context"
	"errors"

	"github.com/TheThommo/PerformanceAICoach-sub000/coaching"
	"github.com/TheThommo/PerformanceAICoach-sub000/database/postgres"
	"github.com/TheThommo/PerformanceAICoach-sub000/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var ErrInvalidInput = errors.New("invalid assessment input")

const previousAssessmentsForAnalysis = 3

type Store interface {
	GetUserByID(ctx context.Context, id int64) (postgres.User, error)
	AddAssessment(ctx context.Context, args postgres.AddAssessmentParams) (postgres.Assessment, error)
	GetLatestAssessment(ctx context.Context, userID int64) (postgres.Assessment, error)
	GetUserAssessments(ctx context.Context, userID int64, limit int) ([]postgres.Assessment, error)
}

type Analyzer interface {
	AnalyzeAssessmentResults(ctx context.Context, scores coaching.Scores, previous []postgres.Assessment) *coaching.Analysis
}

type AssessmentConnectProps struct {
	Logger *logger.LogMiddleware
	Store  Store
	Coach  Analyzer
}

type Assessment struct {
	logger *logger.LogMiddleware
	store  Store
	coach  Analyzer
}

func Connect(ctx context.Context, args AssessmentConnectProps) *Assessment {
	tracer := otel.Tracer("assessment/Connect")
	ctx, span := tracer.Start(ctx, "Connect")
	defer span.End()

	args.Logger.Logger(ctx).Info("[Assessment] Assessment analyzer started")
	return &Assessment{logger: args.Logger, store: args.Store, coach: args.Coach}
}

type SubmitAssessmentProps struct {
	UserID int64
	Scores coaching.Scores
}

// SubmitAssessment persists a four-area assessment and returns it with an
// analysis. The write happens first and stands on its own: analysis always
// answers (the adapter falls back internally), and nothing rolls the
// assessment back.
func (a *Assessment) SubmitAssessment(ctx context.Context, args SubmitAssessmentProps) (*postgres.Assessment, *coaching.Analysis, error) {
	tracer := otel.Tracer("assessment/SubmitAssessment")
	ctx, span := tracer.Start(ctx, "SubmitAssessment")
	defer span.End()

	span.SetAttributes(attribute.Int64("user.id", args.UserID))

	if err := validateScores(args.Scores); err != nil {
		return nil, nil, err
	}

	if _, err := a.store.GetUserByID(ctx, args.UserID); err != nil {
		return nil, nil, err
	}

	record, err := a.store.AddAssessment(ctx, postgres.AddAssessmentParams{
		UserID:              args.UserID,
		IntensityScore:      args.Scores.Intensity,
		DecisionMakingScore: args.Scores.DecisionMaking,
		DiversionsScore:     args.Scores.Diversions,
		ExecutionScore:      args.Scores.Execution,
		TotalScore:          args.Scores.Total(),
	})
	if err != nil {
		a.logger.Logger(ctx).Error("[Assessment] Could not persist assessment",
			zap.Error(err), zap.Int64("user_id", args.UserID))
		return nil, nil, err
	}

	previous := a.previousAssessments(ctx, args.UserID, record.ID)
	analysis := a.coach.AnalyzeAssessmentResults(ctx, args.Scores, previous)

	span.SetAttributes(
		attribute.Int("total_score", record.TotalScore),
		attribute.String("overall_state", analysis.OverallState),
	)
	return &record, analysis, nil
}

// previousAssessments returns up to the 3 most recent assessments before the
// one just created. A fetch failure only costs the analysis its history.
func (a *Assessment) previousAssessments(ctx context.Context, userID, excludeID int64) []postgres.Assessment {
	history, err := a.store.GetUserAssessments(ctx, userID, previousAssessmentsForAnalysis+1)
	if err != nil {
		a.logger.Logger(ctx).Warn("[Assessment] Could not load assessment history for analysis",
			zap.Error(err), zap.Int64("user_id", userID))
		return nil
	}

	previous := make([]postgres.Assessment, 0, previousAssessmentsForAnalysis)
	for _, h := range history {
		if h.ID == excludeID {
			continue
		}
		previous = append(previous, h)
		if len(previous) == previousAssessmentsForAnalysis {
			break
		}
	}
	return previous
}

func (a *Assessment) Latest(ctx context.Context, userID int64) (*postgres.Assessment, error) {
	tracer := otel.Tracer("assessment/Latest")
	ctx, span := tracer.Start(ctx, "Latest")
	defer span.End()

	latest, err := a.store.GetLatestAssessment(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &latest, nil
}

func (a *Assessment) History(ctx context.Context, userID int64) ([]postgres.Assessment, error) {
	tracer := otel.Tracer("assessment/History")
	ctx, span := tracer.Start(ctx, "History")
	defer span.End()

	if _, err := a.store.GetUserByID(ctx, userID); err != nil {
		return nil, err
	}
	return a.store.GetUserAssessments(ctx, userID, 0)
}

func validateScores(scores coaching.Scores) error {
	for _, v := range []int{scores.Intensity, scores.DecisionMaking, scores.Diversions, scores.Execution} {
		if v < 0 || v > 100 {
			return ErrInvalidInput
		}
	}
	return nil
}
