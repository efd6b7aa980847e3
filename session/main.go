package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/TheThommo/PerformanceAICoach-sub000/coaching"
	"github.com/TheThommo/PerformanceAICoach-sub000/database/postgres"
	"github.com/TheThommo/PerformanceAICoach-sub000/logger"
	"github.com/TheThommo/PerformanceAICoach-sub000/modelapi"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var ErrInvalidInput = errors.New("invalid chat input")

// Store is the slice of the persistence layer the orchestrator needs.
// *postgres.Database satisfies it.
type Store interface {
	GetUserByID(ctx context.Context, id int64) (postgres.User, error)
	GetChatSession(ctx context.Context, id int64) (postgres.ChatSession, error)
	AddChatSession(ctx context.Context, userID int64, messages []postgres.ChatMessage) (postgres.ChatSession, error)
	UpdateChatSessionMessages(ctx context.Context, id int64, messages []postgres.ChatMessage) (postgres.ChatSession, error)
	GetUserChatSessions(ctx context.Context, userID int64, limit int) ([]postgres.ChatSession, error)
	GetLatestAssessment(ctx context.Context, userID int64) (postgres.Assessment, error)
	GetRecentProgress(ctx context.Context, userID int64, days int) ([]postgres.ProgressEntry, error)
}

type Coach interface {
	GetCoachingResponse(ctx context.Context, message string, history []postgres.ChatMessage, userCtx coaching.UserContext) *coaching.Response
}

type SessionConnectProps struct {
	Logger *logger.LogMiddleware
	Store  Store
	Coach  Coach
}

type Session struct {
	logger *logger.LogMiddleware
	store  Store
	coach  Coach

	// Per-session locks serialize concurrent turns against the same session
	// so one append cannot overwrite another.
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func Connect(ctx context.Context, args SessionConnectProps) *Session {
	tracer := otel.Tracer("session/Connect")
	ctx, span := tracer.Start(ctx, "Connect")
	defer span.End()

	args.Logger.Logger(ctx).Info("[Session] Session orchestrator started")
	return &Session{
		logger: args.Logger,
		store:  args.Store,
		coach:  args.Coach,
		locks:  make(map[int64]*sync.Mutex),
	}
}

func (s *Session) sessionLock(id int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	return lock
}

type HandleChatTurnProps struct {
	UserID    int64
	Message   string
	SessionID *int64
}

// HandleChatTurn runs one chat turn: resolve or create the session, build
// player context, get the structured coaching reply, and append exactly two
// messages (user then assistant) in a single store write. No write happens
// until the coaching call has fully resolved.
func (s *Session) HandleChatTurn(ctx context.Context, args HandleChatTurnProps) (*postgres.ChatSession, *coaching.Response, error) {
	tracer := otel.Tracer("session/HandleChatTurn")
	ctx, span := tracer.Start(ctx, "HandleChatTurn")
	defer span.End()

	span.SetAttributes(attribute.Int64("user.id", args.UserID))

	if strings.TrimSpace(args.Message) == "" {
		return nil, nil, ErrInvalidInput
	}

	if args.SessionID != nil {
		return s.continueSession(ctx, *args.SessionID, args)
	}
	return s.startSession(ctx, args)
}

func (s *Session) continueSession(ctx context.Context, sessionID int64, args HandleChatTurnProps) (*postgres.ChatSession, *coaching.Response, error) {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.store.GetChatSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	// A session id belonging to someone else is indistinguishable from a
	// missing one.
	if sess.UserID != args.UserID {
		return nil, nil, postgres.ErrNotFound
	}

	response := s.coach.GetCoachingResponse(ctx, args.Message, sess.Messages, s.buildUserContext(ctx, sess.UserID))

	messages := appendTurn(sess.Messages, args.Message, response)
	updated, err := s.store.UpdateChatSessionMessages(ctx, sess.ID, messages)
	if err != nil {
		s.logger.Logger(ctx).Error("[Session] Could not persist chat turn",
			zap.Error(err), zap.Int64("session_id", sess.ID))
		return nil, nil, err
	}

	return &updated, response, nil
}

func (s *Session) startSession(ctx context.Context, args HandleChatTurnProps) (*postgres.ChatSession, *coaching.Response, error) {
	if _, err := s.store.GetUserByID(ctx, args.UserID); err != nil {
		return nil, nil, err
	}

	response := s.coach.GetCoachingResponse(ctx, args.Message, nil, s.buildUserContext(ctx, args.UserID))

	messages := appendTurn(nil, args.Message, response)
	created, err := s.store.AddChatSession(ctx, args.UserID, messages)
	if err != nil {
		s.logger.Logger(ctx).Error("[Session] Could not create chat session",
			zap.Error(err), zap.Int64("user_id", args.UserID))
		return nil, nil, err
	}

	return &created, response, nil
}

// buildUserContext gathers recent player signal. Missing data is normal for
// new users and never blocks the turn.
func (s *Session) buildUserContext(ctx context.Context, userID int64) coaching.UserContext {
	userCtx := coaching.UserContext{}

	latest, err := s.store.GetLatestAssessment(ctx, userID)
	if err == nil {
		userCtx.LatestAssessment = &latest
	} else if !errors.Is(err, postgres.ErrNotFound) {
		s.logger.Logger(ctx).Warn("[Session] Could not load latest assessment for context",
			zap.Error(err), zap.Int64("user_id", userID))
	}

	progress, err := s.store.GetRecentProgress(ctx, userID, 7)
	if err != nil {
		s.logger.Logger(ctx).Warn("[Session] Could not load recent progress for context",
			zap.Error(err), zap.Int64("user_id", userID))
	} else {
		userCtx.RecentProgress = progress
	}

	return userCtx
}

func appendTurn(messages []postgres.ChatMessage, userMessage string, response *coaching.Response) []postgres.ChatMessage {
	now := time.Now().UTC()
	appended := make([]postgres.ChatMessage, 0, len(messages)+2)
	appended = append(appended, messages...)
	appended = append(appended,
		postgres.ChatMessage{
			Role:      modelapi.USER,
			Content:   userMessage,
			Timestamp: now,
		},
		postgres.ChatMessage{
			Role:                modelapi.ASSISTANT,
			Content:             response.Message,
			Timestamp:           now,
			UrgencyLevel:        response.UrgencyLevel,
			SuggestedTechniques: response.BlueHeadTechniques,
		},
	)
	return appended
}

// ListUserSessions returns the user's sessions ordered by most recent
// activity.
func (s *Session) ListUserSessions(ctx context.Context, userID int64) ([]postgres.ChatSession, error) {
	tracer := otel.Tracer("session/ListUserSessions")
	ctx, span := tracer.Start(ctx, "ListUserSessions")
	defer span.End()

	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.GetUserChatSessions(ctx, userID, 0)
}
