package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/entity"
	repo "github.com/Additional-Code/orderdesk/internal/repository/user"
	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/orderdesk/service/auth")

// Users is the account lookup the auth service depends on.
type Users interface {
	GetByID(ctx context.Context, id string) (*entity.User, error)
	GetByUsername(ctx context.Context, username string) (*entity.User, error)
}

// Identity is the authenticated principal attached to a request.
type Identity struct {
	UserID   string
	Username string
	Role     entity.Role
}

// HasRole reports whether the identity holds one of roles.
func (i Identity) HasRole(roles ...entity.Role) bool {
	for _, r := range roles {
		if i.Role == r {
			return true
		}
	}
	return false
}

// Session is the outcome of a successful login.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *entity.User
}

// Claims are the JWT claims issued at login.
type Claims struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Service issues and verifies access tokens.
type Service struct {
	users  Users
	logger *zap.Logger
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Users  Users
	Config config.Config
	Logger *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := p.Config.Auth.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		users:  p.Users,
		logger: logger,
		secret: []byte(p.Config.Auth.JWTSecret),
		issuer: p.Config.Auth.Issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Login verifies credentials and issues a signed token.
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	ctx, span := serviceTracer.Start(ctx, "AuthService.Login")
	defer span.End()

	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, errorbank.BadRequest("username and password are required")
	}
	span.SetAttributes(attribute.String("user.username", username))

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.logger.Info("login rejected: unknown user", zap.String("username", username))
			return nil, errorbank.Unauthorized("invalid username or password")
		}
		span.RecordError(err)
		return nil, errorbank.Internal("failed to log in", errorbank.WithCause(err))
	}
	if !user.IsActive {
		s.logger.Info("login rejected: account inactive", zap.String("username", username))
		return nil, errorbank.Unauthorized("account is deactivated")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.Info("login rejected: wrong password", zap.String("username", username))
		return nil, errorbank.Unauthorized("invalid username or password")
	}

	token, expiresAt, err := s.issue(user)
	if err != nil {
		span.RecordError(err)
		return nil, errorbank.Internal("failed to issue token", errorbank.WithCause(err))
	}

	s.logger.Info("user logged in", zap.String("user_id", user.ID), zap.String("username", user.Username))
	return &Session{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// Authenticate verifies token and resolves the still-active account behind it.
func (s *Service) Authenticate(ctx context.Context, token string) (Identity, error) {
	ctx, span := serviceTracer.Start(ctx, "AuthService.Authenticate")
	defer span.End()

	claims, err := s.parse(token)
	if err != nil {
		return Identity{}, errorbank.Unauthorized("invalid token", errorbank.WithCause(err))
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return Identity{}, errorbank.Unauthorized("user not found or deactivated")
		}
		span.RecordError(err)
		return Identity{}, errorbank.Internal("failed to verify token", errorbank.WithCause(err))
	}
	if !user.IsActive {
		return Identity{}, errorbank.Unauthorized("user not found or deactivated")
	}

	return Identity{UserID: user.ID, Username: user.Username, Role: user.Role}, nil
}

func (s *Service) issue(user *entity.User) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := Claims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (s *Service) parse(token string) (*Claims, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("token missing")
	}
	claims := &Claims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if _, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}); err != nil {
		return nil, err
	}
	if s.issuer != "" && !claims.VerifyIssuer(s.issuer, true) {
		return nil, errors.New("issuer mismatch")
	}
	if claims.UserID == "" {
		return nil, errors.New("token has no user id")
	}
	return claims, nil
}
