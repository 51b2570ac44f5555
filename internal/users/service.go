package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/sassyweb/storefront/internal/permissions"
	"github.com/sassyweb/storefront/internal/session"
	"github.com/sassyweb/storefront/internal/shared"
)

// PasswordCost is the bcrypt cost for new accounts.
const PasswordCost = 10

var fieldMessages = map[string]string{
	"name":     "Name must be at least 3 characters long.",
	"password": "Password must be at least 6 characters long",
	"role":     "Role must be ADMIN or EDITOR",
}

// Service handles user business logic.
type Service struct {
	repo     RepositoryPort
	audit    shared.AuditRecorder
	revoker  session.Revoker
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
	newID    func() string
}

// NewService builds Service instance. audit and revoker may be nil.
func NewService(repo RepositoryPort, audit shared.AuditRecorder, revoker session.Revoker, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	})
	return &Service{
		repo:     repo,
		audit:    audit,
		revoker:  revoker,
		logger:   logger,
		validate: v,
		now:      time.Now,
		newID:    func() string { return "user_" + uuid.NewString() },
	}
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// GetUser returns one user.
func (s *Service) GetUser(ctx context.Context, id string) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// CountUsers returns the number of accounts.
func (s *Service) CountUsers(ctx context.Context) (int, error) {
	return s.repo.CountUsers(ctx)
}

// CreateUser validates input, hashes the password and stores the account.
func (s *Service) CreateUser(ctx context.Context, actorID string, in CreateInput) (User, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Role == "" {
		in.Role = permissions.RoleEditor
	}
	if err := s.check(in); err != nil {
		return User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), PasswordCost)
	if err != nil {
		return User{}, fmt.Errorf("users: hash password: %w", err)
	}
	now := s.now().UTC()
	user, err := s.repo.CreateUser(ctx, User{ID: s.newID(), Name: in.Name, Role: in.Role, CreatedAt: now, UpdatedAt: now}, string(hash))
	if err != nil {
		return User{}, err
	}
	s.record(ctx, actorID, "user.create", user.ID, map[string]any{"name": user.Name, "role": user.Role})
	return user, nil
}

// UpdateRole changes the role of another user and ends their sessions.
func (s *Service) UpdateRole(ctx context.Context, actorID, userID string, in RoleUpdate) (User, error) {
	if actorID == userID {
		return User{}, ErrSelfRoleChange
	}
	if err := s.check(in); err != nil {
		return User{}, err
	}
	user, err := s.repo.UpdateRole(ctx, userID, in.Role, s.now().UTC())
	if err != nil {
		return User{}, err
	}
	s.revoke(ctx, userID)
	s.record(ctx, actorID, "user.role", userID, map[string]any{"role": in.Role})
	return user, nil
}

// DeleteUser removes another user's account and ends their sessions.
func (s *Service) DeleteUser(ctx context.Context, actorID, userID string) error {
	if actorID == userID {
		return ErrSelfDelete
	}
	if err := s.repo.DeleteUser(ctx, userID); err != nil {
		return err
	}
	s.revoke(ctx, userID)
	s.record(ctx, actorID, "user.delete", userID, nil)
	return nil
}

func (s *Service) check(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := ValidationErrors{}
	for _, fe := range fieldErrs {
		out[fe.Field()] = fieldMessages[fe.Field()]
	}
	return out
}

func (s *Service) revoke(ctx context.Context, userID string) {
	if s.revoker == nil {
		return
	}
	if err := s.revoker.Revoke(ctx, userID); err != nil {
		s.logger.Warn("revoke sessions failed", slog.String("user_id", userID), slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, actorID, action, entityID string, meta map[string]any) {
	err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "User", EntityID: entityID, Meta: meta, At: s.now()})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
