package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/TheThommo/PerformanceAICoach-sub000/auth"
	"github.com/TheThommo/PerformanceAICoach-sub000/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey string

const (
	requestIDKey contextKey = "requestId"
	claimsKey    contextKey = "authClaims"
)

const requestIDHeader = "X-Request-Id"

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, requestID)))
	})
}

// RequestID returns the request id placed on the context by the middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func requestLoggerMiddleware(log *logger.LogMiddleware) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			start := time.Now()
			log.Logger(ctx).Info("Request Received",
				zap.String("url", r.URL.Path),
				zap.String("method", r.Method),
				zap.String("request_id", RequestID(ctx)))
			next.ServeHTTP(w, r)
			log.Logger(ctx).Info("Request Completed",
				zap.String("path", r.URL.Path),
				zap.String("method", r.Method),
				zap.String("request_id", RequestID(ctx)),
				zap.Duration("duration", time.Since(start)))
		})
	}
}

// authMiddleware requires a valid bearer token and stashes its claims on the
// request context.
func (a *Api) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			a.respondError(w, r, auth.ErrInvalidToken)
			return
		}

		claims, err := a.auth.ParseToken(token)
		if err != nil {
			a.respondError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

// AuthClaims returns the verified token claims for the request, if any.
func AuthClaims(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}
