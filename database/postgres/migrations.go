package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'student',
		subscription_tier TEXT NOT NULL DEFAULT 'free',
		is_subscribed BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS assessments (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id),
		intensity_score INT NOT NULL,
		decision_making_score INT NOT NULL,
		diversions_score INT NOT NULL,
		execution_score INT NOT NULL,
		total_score INT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_assessments_user_created ON assessments (user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS chat_sessions (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id),
		messages JSONB NOT NULL DEFAULT '[]',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_sessions_user_updated ON chat_sessions (user_id, updated_at DESC)`,
	`CREATE TABLE IF NOT EXISTS user_progress (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id),
		score INT NOT NULL,
		session_date TIMESTAMPTZ NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_user_progress_user_date ON user_progress (user_id, session_date DESC)`,
	`CREATE TABLE IF NOT EXISTS techniques (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		description TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS scenarios (
		id BIGSERIAL PRIMARY KEY,
		title TEXT NOT NULL,
		category TEXT NOT NULL,
		pressure_level TEXT NOT NULL,
		description TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS ai_recommendations (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id),
		type TEXT NOT NULL,
		priority INT NOT NULL,
		confidence_score DOUBLE PRECISION NOT NULL,
		reasoning TEXT NOT NULL,
		message TEXT NOT NULL,
		payload JSONB NOT NULL DEFAULT '{}',
		expires_at TIMESTAMPTZ,
		user_feedback INT,
		feedback_comments TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ai_recommendations_user ON ai_recommendations (user_id, priority DESC, confidence_score DESC)`,
	`CREATE TABLE IF NOT EXISTS coaching_insights (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id),
		category TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		data_points JSONB NOT NULL DEFAULT '{}',
		actionable_steps JSONB NOT NULL DEFAULT '[]',
		impact TEXT NOT NULL DEFAULT '',
		timeframe TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

func runMigrations(ctx context.Context, conn *sql.DB) error {
	for _, stmt := range migrationStatements {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

var seedTechniques = []AddTechniqueParams{
	{Name: "Box Breathing", Category: "breathing", Description: "Four counts in, four held, four out, four held. Resets intensity between shots."},
	{Name: "Blue Head Reset", Category: "refocus", Description: "Physical trigger (glove tug, club tap) paired with a cue word to step out of red head."},
	{Name: "Pre-Shot Routine Lock", Category: "routine", Description: "A fixed 20-second routine executed identically before every shot, good or bad lie."},
	{Name: "Anchor Word", Category: "refocus", Description: "One word that captures your best golf, said aloud before committing to the shot."},
	{Name: "Commit-Then-Swing", Category: "decision", Description: "Pick one shot, one target, one club. No second-guessing once the routine starts."},
	{Name: "Shot Scrapbook", Category: "visualization", Description: "Replay three career-best shots in detail before stepping onto the first tee."},
	{Name: "Walk-Off Release", Category: "recovery", Description: "Ten deliberate steps after a bad hole during which the hole may be replayed, then it is closed."},
}

var seedScenarios = []AddScenarioParams{
	{Title: "First Tee Nerves", Category: "tournament", PressureLevel: "high", Description: "Opening drive with a crowd around the tee box and your card on the line."},
	{Title: "Water Carry Decision", Category: "course_management", PressureLevel: "medium", Description: "Par five second shot over water, playing partners waiting."},
	{Title: "Three-Putt Recovery", Category: "recovery", PressureLevel: "medium", Description: "Walking to the next tee after three-putting a green you hit in regulation."},
	{Title: "Closing Stretch Lead", Category: "tournament", PressureLevel: "high", Description: "Two-shot lead with three holes to play, everyone in the group knows it."},
	{Title: "Practice Round Drift", Category: "practice", PressureLevel: "low", Description: "Maintaining a scoring mindset during a casual round with friends."},
	{Title: "Plugged Bunker Lie", Category: "adversity", PressureLevel: "high", Description: "Fried-egg lie short-sided to a downhill pin after a good swing."},
}

// seedCatalogs populates the technique and scenario reference data when the
// tables are empty. Catalogs are read-only during normal operation.
func (d *Database) seedCatalogs(ctx context.Context) error {
	tracer := otel.Tracer("postgres/seedCatalogs")
	ctx, span := tracer.Start(ctx, "seedCatalogs")
	defer span.End()

	logger := d.logger.Logger(ctx)

	count, err := d.Queries.CountTechniques(ctx)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if count == 0 {
		for _, t := range seedTechniques {
			if _, err := d.Queries.AddTechnique(ctx, t); err != nil {
				span.RecordError(err)
				return err
			}
		}
		logger.Info("[Postgres] Seeded technique catalog", zap.Int("count", len(seedTechniques)))
	}

	count, err = d.Queries.CountScenarios(ctx)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if count == 0 {
		for _, s := range seedScenarios {
			if _, err := d.Queries.AddScenario(ctx, s); err != nil {
				span.RecordError(err)
				return err
			}
		}
		logger.Info("[Postgres] Seeded scenario catalog", zap.Int("count", len(seedScenarios)))
	}

	return nil
}
