package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/TheThommo/PerformanceAICoach-sub000/database/postgres"
	"github.com/TheThommo/PerformanceAICoach-sub000/logger"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidInput       = errors.New("invalid auth input")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

const tokenLifetime = 7 * 24 * time.Hour

type Store interface {
	AddUser(ctx context.Context, args postgres.AddUserParams) (postgres.User, error)
	GetUserByEmail(ctx context.Context, email string) (postgres.User, error)
	GetUserByID(ctx context.Context, id int64) (postgres.User, error)
	UpdateUserSubscription(ctx context.Context, args postgres.UpdateUserSubscriptionParams) error
}

type AuthConnectProps struct {
	Logger    *logger.LogMiddleware
	Store     Store
	JwtSecret string
}

type Auth struct {
	logger *logger.LogMiddleware
	store  Store
	secret []byte
}

func Connect(ctx context.Context, args AuthConnectProps) *Auth {
	tracer := otel.Tracer("auth/Connect")
	ctx, span := tracer.Start(ctx, "Connect")
	defer span.End()

	args.Logger.Logger(ctx).Info("[Auth] Auth service started")
	return &Auth{logger: args.Logger, store: args.Store, secret: []byte(args.JwtSecret)}
}

type RegisterProps struct {
	Username string
	Email    string
	Password string
}

// Register creates a new student account on the free tier. Email is stored
// lowercased; a taken email surfaces as ErrInvalidInput.
func (a *Auth) Register(ctx context.Context, args RegisterProps) (postgres.User, error) {
	tracer := otel.Tracer("auth/Register")
	ctx, span := tracer.Start(ctx, "Register")
	defer span.End()

	username := strings.TrimSpace(args.Username)
	email := strings.ToLower(strings.TrimSpace(args.Email))
	if username == "" || email == "" || !strings.Contains(email, "@") || len(args.Password) < 8 {
		return postgres.User{}, ErrInvalidInput
	}

	if _, err := a.store.GetUserByEmail(ctx, email); err == nil {
		return postgres.User{}, ErrInvalidInput
	} else if !errors.Is(err, postgres.ErrNotFound) {
		return postgres.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(args.Password), bcrypt.DefaultCost)
	if err != nil {
		span.RecordError(err)
		return postgres.User{}, err
	}

	user, err := a.store.AddUser(ctx, postgres.AddUserParams{
		Username:         username,
		Email:            email,
		PasswordHash:     string(hash),
		Role:             postgres.RoleStudent,
		SubscriptionTier: postgres.TierFree,
	})
	if err != nil {
		span.RecordError(err)
		a.logger.Logger(ctx).Error("[Auth] Could not create user", zap.Error(err), zap.String("email", email))
		return postgres.User{}, err
	}

	span.SetAttributes(attribute.Int64("user.id", user.ID))
	a.logger.Logger(ctx).Info("[Auth] User registered", zap.Int64("user_id", user.ID))
	return user, nil
}

type LoginProps struct {
	Email    string
	Password string
}

type LoginResult struct {
	Token string        `json:"token"`
	User  postgres.User `json:"user"`
}

// Login verifies credentials and issues a signed token. A missing user and a
// wrong password are indistinguishable to the caller.
func (a *Auth) Login(ctx context.Context, args LoginProps) (LoginResult, error) {
	tracer := otel.Tracer("auth/Login")
	ctx, span := tracer.Start(ctx, "Login")
	defer span.End()

	email := strings.ToLower(strings.TrimSpace(args.Email))

	user, err := a.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(args.Password)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := a.issueToken(user)
	if err != nil {
		span.RecordError(err)
		return LoginResult{}, err
	}

	span.SetAttributes(attribute.Int64("user.id", user.ID))
	return LoginResult{Token: token, User: user}, nil
}

type Claims struct {
	UserID int64  `json:"userId"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func (a *Auth) issueToken(user postgres.User) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		UserID: user.ID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenLifetime)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// ParseToken validates signature and expiry and returns the embedded claims.
func (a *Auth) ParseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

type UpdateSubscriptionProps struct {
	UserID int64
	Tier   string
}

// UpdateSubscription switches a user's tier. Any tier other than free marks
// the account subscribed.
func (a *Auth) UpdateSubscription(ctx context.Context, args UpdateSubscriptionProps) (postgres.User, error) {
	tracer := otel.Tracer("auth/UpdateSubscription")
	ctx, span := tracer.Start(ctx, "UpdateSubscription")
	defer span.End()

	switch args.Tier {
	case postgres.TierFree, postgres.TierPremium, postgres.TierUltimate:
	default:
		return postgres.User{}, ErrInvalidInput
	}

	err := a.store.UpdateUserSubscription(ctx, postgres.UpdateUserSubscriptionParams{
		UserID:           args.UserID,
		SubscriptionTier: args.Tier,
		IsSubscribed:     args.Tier != postgres.TierFree,
	})
	if err != nil {
		return postgres.User{}, err
	}
	return a.store.GetUserByID(ctx, args.UserID)
}
