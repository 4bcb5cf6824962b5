package user

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/orderdesk/internal/database"
	"github.com/Additional-Code/orderdesk/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/orderdesk/repository/user")

var (
	// ErrNotFound is returned when a user is missing.
	ErrNotFound = errors.New("user not found")
	// ErrUsernameTaken is returned when the username is already registered.
	ErrUsernameTaken = errors.New("username already taken")
)

// ListFilter narrows the users returned by List.
type ListFilter struct {
	Role   *entity.Role
	Active *bool
	Search string
}

// Counts summarises the user base.
type Counts struct {
	Total     int
	Active    int
	Inactive  int
	Admins    int
	Managers  int
	Employees int
}

type roleCount struct {
	Role     entity.Role `bun:"role"`
	IsActive bool        `bun:"is_active"`
	Count    int         `bun:"user_count"`
}

// Repository encapsulates read/write access for users.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
	}
}

// Create persists a new user.
func (r *Repository) Create(ctx context.Context, user *entity.User) error {
	if user == nil {
		return errors.New("nil user")
	}
	ctx, span := repoTracer.Start(ctx, "UserRepository.Create", trace.WithAttributes(attribute.String("user.username", user.Username)))
	defer span.End()

	if _, err := r.writer.NewInsert().Model(user).Exec(ctx); err != nil {
		if database.IsUniqueViolation(err) {
			return ErrUsernameTaken
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return err
	}
	return nil
}

// GetByID fetches a user by primary key.
func (r *Repository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	ctx, span := repoTracer.Start(ctx, "UserRepository.GetByID", trace.WithAttributes(attribute.String("user.id", id)))
	defer span.End()

	return r.getOne(ctx, span, "u.id = ?", id)
}

// GetByUsername fetches a user by login name.
func (r *Repository) GetByUsername(ctx context.Context, username string) (*entity.User, error) {
	ctx, span := repoTracer.Start(ctx, "UserRepository.GetByUsername", trace.WithAttributes(attribute.String("user.username", username)))
	defer span.End()

	return r.getOne(ctx, span, "u.username = ?", username)
}

func (r *Repository) getOne(ctx context.Context, span trace.Span, where string, arg any) (*entity.User, error) {
	user := new(entity.User)
	err := r.reader.NewSelect().Model(user).Where(where, arg).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return user, nil
}

// List returns users with active accounts first, then by role and newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]*entity.User, error) {
	ctx, span := repoTracer.Start(ctx, "UserRepository.List")
	defer span.End()

	users := make([]*entity.User, 0)
	q := r.reader.NewSelect().Model(&users)
	if filter.Role != nil {
		q = q.Where("u.role = ?", string(*filter.Role))
	}
	if filter.Active != nil {
		q = q.Where("u.is_active = ?", *filter.Active)
	}
	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		q = q.Where("LOWER(u.username) LIKE ?", "%"+search+"%")
	}

	err := q.OrderExpr("u.is_active DESC").
		OrderExpr("u.role ASC").
		OrderExpr("u.created_at DESC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return users, nil
}

// Update writes the given columns of user.
func (r *Repository) Update(ctx context.Context, user *entity.User, columns ...string) error {
	ctx, span := repoTracer.Start(ctx, "UserRepository.Update", trace.WithAttributes(attribute.String("user.id", user.ID)))
	defer span.End()

	res, err := r.writer.NewUpdate().
		Model(user).
		Column(append(columns, "updated_at")...).
		Where("u.id = ?", user.ID).
		Exec(ctx)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrUsernameTaken
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return err
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a user.
func (r *Repository) Delete(ctx context.Context, id string) error {
	ctx, span := repoTracer.Start(ctx, "UserRepository.Delete", trace.WithAttributes(attribute.String("user.id", id)))
	defer span.End()

	res, err := r.writer.NewDelete().Model((*entity.User)(nil)).Where("u.id = ?", id).Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return err
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountActiveAdmins returns the number of active admin accounts.
func (r *Repository) CountActiveAdmins(ctx context.Context) (int, error) {
	return r.reader.NewSelect().
		Model((*entity.User)(nil)).
		Where("u.role = ?", string(entity.RoleAdmin)).
		Where("u.is_active = ?", true).
		Count(ctx)
}

// Counts aggregates users by activity and role.
func (r *Repository) Counts(ctx context.Context) (Counts, error) {
	ctx, span := repoTracer.Start(ctx, "UserRepository.Counts")
	defer span.End()

	var rows []roleCount
	err := r.reader.NewSelect().
		Model((*entity.User)(nil)).
		ColumnExpr("u.role AS role").
		ColumnExpr("u.is_active AS is_active").
		ColumnExpr("COUNT(*) AS user_count").
		GroupExpr("u.role, u.is_active").
		Scan(ctx, &rows)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "aggregate failed")
		return Counts{}, err
	}

	var counts Counts
	for _, row := range rows {
		counts.Total += row.Count
		if row.IsActive {
			counts.Active += row.Count
		} else {
			counts.Inactive += row.Count
		}
		switch row.Role {
		case entity.RoleAdmin:
			counts.Admins += row.Count
		case entity.RoleManager:
			counts.Managers += row.Count
		case entity.RoleEmployee:
			counts.Employees += row.Count
		}
	}
	return counts, nil
}
