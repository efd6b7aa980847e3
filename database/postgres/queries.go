package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned for lookups and updates that reference a row that
// does not exist.
var ErrNotFound = errors.New("not found")

type Queries struct {
	db *sql.DB
}

func New(db *sql.DB) *Queries {
	return &Queries{db: db}
}

type AddUserParams struct {
	Username         string
	Email            string
	PasswordHash     string
	Role             string
	SubscriptionTier string
}

func (q *Queries) AddUser(ctx context.Context, args AddUserParams) (User, error) {
	query := `
		INSERT INTO users (username, email, password_hash, role, subscription_tier)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, username, email, password_hash, role, subscription_tier, is_subscribed, created_at, updated_at
	`

	var user User
	err := q.db.QueryRowContext(ctx, query,
		args.Username, args.Email, args.PasswordHash, args.Role, args.SubscriptionTier,
	).Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&user.Role, &user.SubscriptionTier, &user.IsSubscribed,
		&user.CreatedAt, &user.UpdatedAt,
	)
	return user, err
}

const userColumns = `id, username, email, password_hash, role, subscription_tier, is_subscribed, created_at, updated_at`

func (q *Queries) scanUser(row *sql.Row) (User, error) {
	var user User
	err := row.Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&user.Role, &user.SubscriptionTier, &user.IsSubscribed,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return user, ErrNotFound
	}
	return user, err
}

func (q *Queries) GetUserByID(ctx context.Context, id int64) (User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return q.scanUser(q.db.QueryRowContext(ctx, query, id))
}

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return q.scanUser(q.db.QueryRowContext(ctx, query, email))
}

type UpdateUserSubscriptionParams struct {
	UserID           int64
	SubscriptionTier string
	IsSubscribed     bool
}

func (q *Queries) UpdateUserSubscription(ctx context.Context, args UpdateUserSubscriptionParams) error {
	query := `
		UPDATE users SET subscription_tier = $2, is_subscribed = $3, updated_at = now()
		WHERE id = $1
	`
	res, err := q.db.ExecContext(ctx, query, args.UserID, args.SubscriptionTier, args.IsSubscribed)
	if err != nil {
		return err
	}
	return requireRow(res)
}

type AddAssessmentParams struct {
	UserID              int64
	IntensityScore      int
	DecisionMakingScore int
	DiversionsScore     int
	ExecutionScore      int
	TotalScore          int
}

func (q *Queries) AddAssessment(ctx context.Context, args AddAssessmentParams) (Assessment, error) {
	query := `
		INSERT INTO assessments (user_id, intensity_score, decision_making_score, diversions_score, execution_score, total_score)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, user_id, intensity_score, decision_making_score, diversions_score, execution_score, total_score, created_at
	`

	var a Assessment
	err := q.db.QueryRowContext(ctx, query,
		args.UserID, args.IntensityScore, args.DecisionMakingScore,
		args.DiversionsScore, args.ExecutionScore, args.TotalScore,
	).Scan(
		&a.ID, &a.UserID, &a.IntensityScore, &a.DecisionMakingScore,
		&a.DiversionsScore, &a.ExecutionScore, &a.TotalScore, &a.CreatedAt,
	)
	return a, err
}

const assessmentColumns = `id, user_id, intensity_score, decision_making_score, diversions_score, execution_score, total_score, created_at`

func (q *Queries) GetLatestAssessment(ctx context.Context, userID int64) (Assessment, error) {
	query := `
		SELECT ` + assessmentColumns + ` FROM assessments
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	var a Assessment
	err := q.db.QueryRowContext(ctx, query, userID).Scan(
		&a.ID, &a.UserID, &a.IntensityScore, &a.DecisionMakingScore,
		&a.DiversionsScore, &a.ExecutionScore, &a.TotalScore, &a.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return a, ErrNotFound
	}
	return a, err
}

// GetUserAssessments returns assessments newest first. limit <= 0 means no
// limit.
func (q *Queries) GetUserAssessments(ctx context.Context, userID int64, limit int) ([]Assessment, error) {
	query := `
		SELECT ` + assessmentColumns + ` FROM assessments
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = q.db.QueryContext(ctx, query+` LIMIT $2`, userID, limit)
	} else {
		rows, err = q.db.QueryContext(ctx, query, userID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	assessments := []Assessment{}
	for rows.Next() {
		var a Assessment
		if err := rows.Scan(
			&a.ID, &a.UserID, &a.IntensityScore, &a.DecisionMakingScore,
			&a.DiversionsScore, &a.ExecutionScore, &a.TotalScore, &a.CreatedAt,
		); err != nil {
			return nil, err
		}
		assessments = append(assessments, a)
	}
	return assessments, rows.Err()
}

func (q *Queries) AddChatSession(ctx context.Context, userID int64, messages []ChatMessage) (ChatSession, error) {
	raw, err := marshalMessages(messages)
	if err != nil {
		return ChatSession{}, err
	}

	query := `
		INSERT INTO chat_sessions (user_id, messages)
		VALUES ($1, $2)
		RETURNING id, user_id, messages, created_at, updated_at
	`
	return q.scanChatSession(q.db.QueryRowContext(ctx, query, userID, raw))
}

func (q *Queries) scanChatSession(row *sql.Row) (ChatSession, error) {
	var s ChatSession
	var raw []byte
	err := row.Scan(&s.ID, &s.UserID, &raw, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(raw, &s.Messages); err != nil {
		return s, fmt.Errorf("corrupt message log for session %d: %w", s.ID, err)
	}
	return s, nil
}

func (q *Queries) GetChatSession(ctx context.Context, id int64) (ChatSession, error) {
	query := `SELECT id, user_id, messages, created_at, updated_at FROM chat_sessions WHERE id = $1`
	return q.scanChatSession(q.db.QueryRowContext(ctx, query, id))
}

// UpdateChatSessionMessages replaces the stored message log in a single
// UPDATE and advances updated_at.
func (q *Queries) UpdateChatSessionMessages(ctx context.Context, id int64, messages []ChatMessage) (ChatSession, error) {
	raw, err := marshalMessages(messages)
	if err != nil {
		return ChatSession{}, err
	}

	query := `
		UPDATE chat_sessions SET messages = $2, updated_at = now()
		WHERE id = $1
		RETURNING id, user_id, messages, created_at, updated_at
	`
	return q.scanChatSession(q.db.QueryRowContext(ctx, query, id, raw))
}

func (q *Queries) GetUserChatSessions(ctx context.Context, userID int64, limit int) ([]ChatSession, error) {
	query := `
		SELECT id, user_id, messages, created_at, updated_at FROM chat_sessions
		WHERE user_id = $1
		ORDER BY updated_at DESC, id DESC
	`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = q.db.QueryContext(ctx, query+` LIMIT $2`, userID, limit)
	} else {
		rows, err = q.db.QueryContext(ctx, query, userID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []ChatSession{}
	for rows.Next() {
		var s ChatSession
		var raw []byte
		if err := rows.Scan(&s.ID, &s.UserID, &raw, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &s.Messages); err != nil {
			return nil, fmt.Errorf("corrupt message log for session %d: %w", s.ID, err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

type AddProgressEntryParams struct {
	UserID      int64
	Score       int
	SessionDate time.Time
	Notes       string
}

func (q *Queries) AddProgressEntry(ctx context.Context, args AddProgressEntryParams) (ProgressEntry, error) {
	query := `
		INSERT INTO user_progress (user_id, score, session_date, notes)
		VALUES ($1, $2, $3, $4)
		RETURNING id, user_id, score, session_date, notes, created_at
	`

	var p ProgressEntry
	err := q.db.QueryRowContext(ctx, query,
		args.UserID, args.Score, args.SessionDate, args.Notes,
	).Scan(&p.ID, &p.UserID, &p.Score, &p.SessionDate, &p.Notes, &p.CreatedAt)
	return p, err
}

// GetRecentProgress returns progress entries within the trailing day window,
// newest first.
func (q *Queries) GetRecentProgress(ctx context.Context, userID int64, days int) ([]ProgressEntry, error) {
	query := `
		SELECT id, user_id, score, session_date, notes, created_at FROM user_progress
		WHERE user_id = $1 AND session_date >= now() - ($2 * interval '1 day')
		ORDER BY session_date DESC, id DESC
	`
	rows, err := q.db.QueryContext(ctx, query, userID, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []ProgressEntry{}
	for rows.Next() {
		var p ProgressEntry
		if err := rows.Scan(&p.ID, &p.UserID, &p.Score, &p.SessionDate, &p.Notes, &p.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, p)
	}
	return entries, rows.Err()
}

type AddTechniqueParams struct {
	Name        string
	Category    string
	Description string
}

func (q *Queries) AddTechnique(ctx context.Context, args AddTechniqueParams) (Technique, error) {
	query := `
		INSERT INTO techniques (name, category, description)
		VALUES ($1, $2, $3)
		RETURNING id, name, category, description, created_at
	`

	var t Technique
	err := q.db.QueryRowContext(ctx, query, args.Name, args.Category, args.Description).
		Scan(&t.ID, &t.Name, &t.Category, &t.Description, &t.CreatedAt)
	return t, err
}

// ListTechniques returns the technique catalog, optionally filtered by
// category.
func (q *Queries) ListTechniques(ctx context.Context, category string) ([]Technique, error) {
	query := `SELECT id, name, category, description, created_at FROM techniques`
	var rows *sql.Rows
	var err error
	if category != "" {
		rows, err = q.db.QueryContext(ctx, query+` WHERE category = $1 ORDER BY id`, category)
	} else {
		rows, err = q.db.QueryContext(ctx, query+` ORDER BY id`)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	techniques := []Technique{}
	for rows.Next() {
		var t Technique
		if err := rows.Scan(&t.ID, &t.Name, &t.Category, &t.Description, &t.CreatedAt); err != nil {
			return nil, err
		}
		techniques = append(techniques, t)
	}
	return techniques, rows.Err()
}

func (q *Queries) CountTechniques(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, `SELECT count(*) FROM techniques`).Scan(&count)
	return count, err
}

type AddScenarioParams struct {
	Title         string
	Category      string
	PressureLevel string
	Description   string
}

func (q *Queries) AddScenario(ctx context.Context, args AddScenarioParams) (Scenario, error) {
	query := `
		INSERT INTO scenarios (title, category, pressure_level, description)
		VALUES ($1, $2, $3, $4)
		RETURNING id, title, category, pressure_level, description, created_at
	`

	var s Scenario
	err := q.db.QueryRowContext(ctx, query,
		args.Title, args.Category, args.PressureLevel, args.Description,
	).Scan(&s.ID, &s.Title, &s.Category, &s.PressureLevel, &s.Description, &s.CreatedAt)
	return s, err
}

func (q *Queries) ListScenarios(ctx context.Context, pressureLevel string) ([]Scenario, error) {
	query := `SELECT id, title, category, pressure_level, description, created_at FROM scenarios`
	var rows *sql.Rows
	var err error
	if pressureLevel != "" {
		rows, err = q.db.QueryContext(ctx, query+` WHERE pressure_level = $1 ORDER BY id`, pressureLevel)
	} else {
		rows, err = q.db.QueryContext(ctx, query+` ORDER BY id`)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scenarios := []Scenario{}
	for rows.Next() {
		var s Scenario
		if err := rows.Scan(&s.ID, &s.Title, &s.Category, &s.PressureLevel, &s.Description, &s.CreatedAt); err != nil {
			return nil, err
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, rows.Err()
}

func (q *Queries) CountScenarios(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, `SELECT count(*) FROM scenarios`).Scan(&count)
	return count, err
}

type AddRecommendationParams struct {
	UserID          int64
	Type            string
	Priority        int
	ConfidenceScore float64
	Reasoning       string
	Message         string
	Payload         json.RawMessage
	ExpiresAt       *time.Time
}

const recommendationColumns = `id, user_id, type, priority, confidence_score, reasoning, message, payload, expires_at, user_feedback, feedback_comments, created_at`

func (q *Queries) AddRecommendation(ctx context.Context, args AddRecommendationParams) (AiRecommendation, error) {
	payload := args.Payload
	if payload == nil {
		payload = json.RawMessage(`{}`)
	}

	query := `
		INSERT INTO ai_recommendations (user_id, type, priority, confidence_score, reasoning, message, payload, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + recommendationColumns + `
	`
	return q.scanRecommendation(q.db.QueryRowContext(ctx, query,
		args.UserID, args.Type, args.Priority, args.ConfidenceScore,
		args.Reasoning, args.Message, []byte(payload), args.ExpiresAt,
	))
}

func (q *Queries) scanRecommendation(row *sql.Row) (AiRecommendation, error) {
	var r AiRecommendation
	var payload []byte
	var expiresAt sql.NullTime
	var feedback sql.NullInt64
	var comments sql.NullString

	err := row.Scan(
		&r.ID, &r.UserID, &r.Type, &r.Priority, &r.ConfidenceScore,
		&r.Reasoning, &r.Message, &payload, &expiresAt, &feedback,
		&comments, &r.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return r, ErrNotFound
	}
	if err != nil {
		return r, err
	}

	r.Payload = json.RawMessage(payload)
	if expiresAt.Valid {
		r.ExpiresAt = &expiresAt.Time
	}
	if feedback.Valid {
		v := int(feedback.Int64)
		r.UserFeedback = &v
	}
	if comments.Valid {
		r.FeedbackComments = &comments.String
	}
	return r, nil
}

func (q *Queries) GetRecommendation(ctx context.Context, id int64) (AiRecommendation, error) {
	query := `SELECT ` + recommendationColumns + ` FROM ai_recommendations WHERE id = $1`
	return q.scanRecommendation(q.db.QueryRowContext(ctx, query, id))
}

// GetActiveUserRecommendations returns unexpired recommendations ranked by
// (priority desc, confidence desc). Rows with no expiry never lapse.
func (q *Queries) GetActiveUserRecommendations(ctx context.Context, userID int64, limit int) ([]AiRecommendation, error) {
	query := `
		SELECT ` + recommendationColumns + ` FROM ai_recommendations
		WHERE user_id = $1 AND (expires_at IS NULL OR expires_at > now())
		ORDER BY priority DESC, confidence_score DESC, id DESC
		LIMIT $2
	`
	rows, err := q.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recs := []AiRecommendation{}
	for rows.Next() {
		var r AiRecommendation
		var payload []byte
		var expiresAt sql.NullTime
		var feedback sql.NullInt64
		var comments sql.NullString
		if err := rows.Scan(
			&r.ID, &r.UserID, &r.Type, &r.Priority, &r.ConfidenceScore,
			&r.Reasoning, &r.Message, &payload, &expiresAt, &feedback,
			&comments, &r.CreatedAt,
		); err != nil {
			return nil, err
		}
		r.Payload = json.RawMessage(payload)
		if expiresAt.Valid {
			r.ExpiresAt = &expiresAt.Time
		}
		if feedback.Valid {
			v := int(feedback.Int64)
			r.UserFeedback = &v
		}
		if comments.Valid {
			r.FeedbackComments = &comments.String
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

type UpdateRecommendationFeedbackParams struct {
	ID       int64
	Feedback int
	Comments string
}

func (q *Queries) UpdateRecommendationFeedback(ctx context.Context, args UpdateRecommendationFeedbackParams) (AiRecommendation, error) {
	query := `
		UPDATE ai_recommendations SET user_feedback = $2, feedback_comments = $3
		WHERE id = $1
		RETURNING ` + recommendationColumns + `
	`
	return q.scanRecommendation(q.db.QueryRowContext(ctx, query, args.ID, args.Feedback, args.Comments))
}

type AddInsightParams struct {
	UserID          int64
	Category        string
	Title           string
	Description     string
	DataPoints      json.RawMessage
	ActionableSteps []string
	Impact          string
	Timeframe       string
}

func (q *Queries) AddInsight(ctx context.Context, args AddInsightParams) (CoachingInsight, error) {
	dataPoints := args.DataPoints
	if dataPoints == nil {
		dataPoints = json.RawMessage(`{}`)
	}
	steps, err := json.Marshal(args.ActionableSteps)
	if err != nil {
		return CoachingInsight{}, err
	}

	query := `
		INSERT INTO coaching_insights (user_id, category, title, description, data_points, actionable_steps, impact, timeframe)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, user_id, category, title, description, data_points, actionable_steps, impact, timeframe, created_at
	`

	var ins CoachingInsight
	var rawDataPoints, rawSteps []byte
	err = q.db.QueryRowContext(ctx, query,
		args.UserID, args.Category, args.Title, args.Description,
		[]byte(dataPoints), steps, args.Impact, args.Timeframe,
	).Scan(
		&ins.ID, &ins.UserID, &ins.Category, &ins.Title, &ins.Description,
		&rawDataPoints, &rawSteps, &ins.Impact, &ins.Timeframe, &ins.CreatedAt,
	)
	if err != nil {
		return ins, err
	}
	ins.DataPoints = json.RawMessage(rawDataPoints)
	if err := json.Unmarshal(rawSteps, &ins.ActionableSteps); err != nil {
		return ins, err
	}
	return ins, nil
}

func (q *Queries) GetUserInsights(ctx context.Context, userID int64) ([]CoachingInsight, error) {
	query := `
		SELECT id, user_id, category, title, description, data_points, actionable_steps, impact, timeframe, created_at
		FROM coaching_insights
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`
	rows, err := q.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	insights := []CoachingInsight{}
	for rows.Next() {
		var ins CoachingInsight
		var rawDataPoints, rawSteps []byte
		if err := rows.Scan(
			&ins.ID, &ins.UserID, &ins.Category, &ins.Title, &ins.Description,
			&rawDataPoints, &rawSteps, &ins.Impact, &ins.Timeframe, &ins.CreatedAt,
		); err != nil {
			return nil, err
		}
		ins.DataPoints = json.RawMessage(rawDataPoints)
		if err := json.Unmarshal(rawSteps, &ins.ActionableSteps); err != nil {
			return nil, err
		}
		insights = append(insights, ins)
	}
	return insights, rows.Err()
}

func marshalMessages(messages []ChatMessage) ([]byte, error) {
	if messages == nil {
		messages = []ChatMessage{}
	}
	raw, err := json.Marshal(messages)
	if err != nil {
		return nil, fmt.Errorf("could not marshal message log: %w", err)
	}
	return raw, nil
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
