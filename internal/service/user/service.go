package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/entity"
	repo "github.com/Additional-Code/orderdesk/internal/repository/user"
	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/orderdesk/service/user")

// MinPasswordLength is the shortest password accepted for an account.
const MinPasswordLength = 6

// Repository is the storage contract the user service depends on.
type Repository interface {
	Create(ctx context.Context, user *entity.User) error
	GetByID(ctx context.Context, id string) (*entity.User, error)
	GetByUsername(ctx context.Context, username string) (*entity.User, error)
	List(ctx context.Context, filter repo.ListFilter) ([]*entity.User, error)
	Update(ctx context.Context, user *entity.User, columns ...string) error
	Delete(ctx context.Context, id string) error
	CountActiveAdmins(ctx context.Context) (int, error)
	Counts(ctx context.Context) (repo.Counts, error)
}

// ListQuery carries the optional list filters as received from callers.
type ListQuery struct {
	Role   string
	Status string
	Search string
}

// CreateCommand carries the input of account creation.
type CreateCommand struct {
	Username string
	Password string
	Role     string
}

// UpdateCommand carries a partial account update; nil fields are left unchanged.
type UpdateCommand struct {
	Username *string
	Password *string
	Role     *string
	IsActive *bool
}

// Service manages back-office accounts.
type Service struct {
	repo       Repository
	logger     *zap.Logger
	bcryptCost int
	now        func() time.Time
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository Repository
	Config     config.Config
	Logger     *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cost := p.Config.Auth.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Service{
		repo:       p.Repository,
		logger:     logger,
		bcryptCost: cost,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// List returns accounts matching query.
func (s *Service) List(ctx context.Context, query ListQuery) ([]*entity.User, error) {
	ctx, span := serviceTracer.Start(ctx, "UserService.List")
	defer span.End()

	var filter repo.ListFilter
	if raw := strings.TrimSpace(query.Role); raw != "" {
		role, err := parseRole(raw)
		if err != nil {
			return nil, err
		}
		filter.Role = &role
	}
	switch strings.TrimSpace(query.Status) {
	case "":
	case "active":
		active := true
		filter.Active = &active
	case "inactive":
		active := false
		filter.Active = &active
	default:
		return nil, errorbank.BadRequest("status must be active or inactive")
	}
	filter.Search = strings.TrimSpace(query.Search)

	users, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, s.internal(span, err, "failed to list users")
	}
	return users, nil
}

// Stats returns account counts by activity and role.
func (s *Service) Stats(ctx context.Context) (repo.Counts, error) {
	ctx, span := serviceTracer.Start(ctx, "UserService.Stats")
	defer span.End()

	counts, err := s.repo.Counts(ctx)
	if err != nil {
		return repo.Counts{}, s.internal(span, err, "failed to load user stats")
	}
	return counts, nil
}

// Get returns a single account.
func (s *Service) Get(ctx context.Context, id string) (*entity.User, error) {
	ctx, span := serviceTracer.Start(ctx, "UserService.Get", trace.WithAttributes(attribute.String("user.id", id)))
	defer span.End()

	return s.load(ctx, span, id)
}

// Create registers a new active account.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*entity.User, error) {
	ctx, span := serviceTracer.Start(ctx, "UserService.Create")
	defer span.End()

	username := strings.TrimSpace(cmd.Username)
	if username == "" {
		return nil, errorbank.BadRequest("username is required")
	}
	if cmd.Password == "" {
		return nil, errorbank.BadRequest("password is required")
	}
	role := entity.RoleEmployee
	if raw := strings.TrimSpace(cmd.Role); raw != "" {
		parsed, err := parseRole(raw)
		if err != nil {
			return nil, err
		}
		role = parsed
	}
	hash, err := s.HashPassword(cmd.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &entity.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repo.ErrUsernameTaken) {
			return nil, errorbank.Conflict("username already taken", errorbank.WithDetail("username", username))
		}
		return nil, s.internal(span, err, "failed to create user")
	}

	s.logger.Info("user created", zap.String("user_id", user.ID), zap.String("username", username), zap.String("role", string(role)))
	return user, nil
}

// Update applies cmd to the account id on behalf of actorID.
// Actors cannot deactivate themselves, and the last active admin cannot give up the role.
func (s *Service) Update(ctx context.Context, actorID, id string, cmd UpdateCommand) (*entity.User, error) {
	ctx, span := serviceTracer.Start(ctx, "UserService.Update", trace.WithAttributes(attribute.String("user.id", id)))
	defer span.End()

	user, err := s.load(ctx, span, id)
	if err != nil {
		return nil, err
	}

	self := user.ID == actorID
	if self && cmd.IsActive != nil && !*cmd.IsActive {
		return nil, errorbank.BadRequest("cannot deactivate your own account")
	}

	columns := make([]string, 0, 4)
	if cmd.Role != nil {
		role, err := parseRole(*cmd.Role)
		if err != nil {
			return nil, err
		}
		if self && user.Role == entity.RoleAdmin && role != entity.RoleAdmin {
			admins, err := s.repo.CountActiveAdmins(ctx)
			if err != nil {
				return nil, s.internal(span, err, "failed to update user")
			}
			if admins <= 1 {
				return nil, errorbank.BadRequest("cannot change role: you are the only active admin")
			}
		}
		user.Role = role
		columns = append(columns, "role")
	}
	if cmd.Username != nil {
		username := strings.TrimSpace(*cmd.Username)
		if username == "" {
			return nil, errorbank.BadRequest("username cannot be empty")
		}
		user.Username = username
		columns = append(columns, "username")
	}
	if cmd.IsActive != nil {
		user.IsActive = *cmd.IsActive
		columns = append(columns, "is_active")
	}
	if cmd.Password != nil && strings.TrimSpace(*cmd.Password) != "" {
		hash, err := s.HashPassword(*cmd.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
		columns = append(columns, "password_hash")
	}

	user.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, user, columns...); err != nil {
		return nil, s.mapWriteError(span, err, user.Username, "failed to update user")
	}

	s.logger.Info("user updated", zap.String("actor_id", actorID), zap.String("user_id", id), zap.Strings("columns", columns))
	return user, nil
}

// Toggle flips the active flag of another account.
func (s *Service) Toggle(ctx context.Context, actorID, id string) (*entity.User, error) {
	ctx, span := serviceTracer.Start(ctx, "UserService.Toggle", trace.WithAttributes(attribute.String("user.id", id)))
	defer span.End()

	user, err := s.load(ctx, span, id)
	if err != nil {
		return nil, err
	}
	if user.ID == actorID {
		return nil, errorbank.BadRequest("cannot change the status of your own account")
	}

	user.IsActive = !user.IsActive
	user.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, user, "is_active"); err != nil {
		return nil, s.mapWriteError(span, err, user.Username, "failed to update user")
	}

	s.logger.Info("user toggled", zap.String("actor_id", actorID), zap.String("user_id", id), zap.Bool("active", user.IsActive))
	return user, nil
}

// Delete removes an account other than the actor's own and other than an admin's.
func (s *Service) Delete(ctx context.Context, actorID, id string) error {
	ctx, span := serviceTracer.Start(ctx, "UserService.Delete", trace.WithAttributes(attribute.String("user.id", id)))
	defer span.End()

	user, err := s.load(ctx, span, id)
	if err != nil {
		return err
	}
	if user.ID == actorID {
		return errorbank.BadRequest("cannot delete your own account")
	}
	if user.Role == entity.RoleAdmin {
		return errorbank.BadRequest("cannot delete another admin")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return s.mapWriteError(span, err, user.Username, "failed to delete user")
	}

	s.logger.Info("user deleted", zap.String("actor_id", actorID), zap.String("user_id", id))
	return nil
}

// EnsureAdmin creates an active admin account named username unless that username already exists.
// It reports whether an account was created.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) (*entity.User, bool, error) {
	ctx, span := serviceTracer.Start(ctx, "UserService.EnsureAdmin", trace.WithAttributes(attribute.String("user.username", username)))
	defer span.End()

	username = strings.TrimSpace(username)
	if username == "" {
		return nil, false, errorbank.BadRequest("username is required")
	}
	existing, err := s.repo.GetByUsername(ctx, username)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, false, s.internal(span, err, "failed to load user")
	}

	user, err := s.Create(ctx, CreateCommand{Username: username, Password: password, Role: string(entity.RoleAdmin)})
	if err != nil {
		return nil, false, err
	}
	return user, true, nil
}

// HashPassword validates and hashes a plaintext password.
func (s *Service) HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", errorbank.BadRequest("password must be at least 6 characters",
			errorbank.WithDetail("minLength", MinPasswordLength))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", errorbank.BadRequest("password is too long")
		}
		return "", errorbank.Internal("failed to hash password", errorbank.WithCause(err))
	}
	return string(hash), nil
}

func (s *Service) load(ctx context.Context, span trace.Span, id string) (*entity.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errorbank.BadRequest("invalid user id", errorbank.WithCause(err))
	}
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("user not found")
		}
		return nil, s.internal(span, err, "failed to load user")
	}
	return user, nil
}

func (s *Service) mapWriteError(span trace.Span, err error, username, message string) error {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return errorbank.NotFound("user not found")
	case errors.Is(err, repo.ErrUsernameTaken):
		return errorbank.Conflict("username already taken", errorbank.WithDetail("username", username))
	}
	return s.internal(span, err, message)
}

func (s *Service) internal(span trace.Span, err error, message string) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, "repository error")
	s.logger.Error(message, zap.Error(err))
	return errorbank.Internal(message, errorbank.WithCause(err))
}

func parseRole(raw string) (entity.Role, error) {
	role := entity.Role(strings.TrimSpace(raw))
	if !role.Valid() {
		return "", errorbank.BadRequest("invalid role",
			errorbank.WithDetail("validRoles", []string{string(entity.RoleAdmin), string(entity.RoleManager), string(entity.RoleEmployee)}))
	}
	return role, nil
}
