// ABOUTME: Account service: login, user CRUD, password and permission changes
// ABOUTME: Revokes sessions on permission change and writes the audit log

package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bluemedia/timechamp/internal/apierr"
	"github.com/bluemedia/timechamp/internal/auth"
	"github.com/bluemedia/timechamp/internal/store"
)

// ErrAlreadyBootstrapped is returned by Bootstrap when users already exist.
var ErrAlreadyBootstrapped = errors.New("users already exist")

// Repository is the persistence the service needs.
type Repository interface {
	store.UserRepository
	store.SettingsRepository
	store.AuditRepository
}

// Service implements account operations.
type Service struct {
	repo     Repository
	sessions *auth.SessionStore
	apiKeys  *auth.APIKeyStore
	hasher   *auth.PasswordHasher
	tokens   *auth.TokenGenerator
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a Service.
func NewService(repo Repository, sessions *auth.SessionStore, apiKeys *auth.APIKeyStore, hasher *auth.PasswordHasher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if hasher == nil {
		hasher = auth.NewPasswordHasher()
	}
	return &Service{
		repo:     repo,
		sessions: sessions,
		apiKeys:  apiKeys,
		hasher:   hasher,
		tokens:   auth.NewTokenGenerator(),
		logger:   logger.With("component", "account"),
		now:      time.Now,
	}
}

// CreateUserRequest describes a new user.
type CreateUserRequest struct {
	Username    string
	Password    string
	Permission  store.Permission
	DisplayName string
	EmployeeID  string
	Department  string
}

func (r *CreateUserRequest) validate() error {
	r.Username = strings.TrimSpace(r.Username)
	if r.Username == "" {
		return apierr.InvalidRequest("username is required")
	}
	if r.Password == "" {
		return apierr.InvalidRequest("password is required")
	}
	if !r.Permission.Valid() {
		return apierr.InvalidRequest("unknown permission %q", r.Permission)
	}
	return nil
}

// Login checks a username and password and opens a session. Unknown users
// and wrong passwords both return apierr.ErrInvalidCredentials after the same
// amount of hashing work.
func (s *Service) Login(ctx context.Context, username, password, userAgent, clientIP string) (*store.User, string, error) {
	user, err := s.repo.GetUserByUsername(ctx, username)
	switch {
	case errors.Is(err, store.ErrUserNotFound):
		s.hasher.VerifyDummy(password)
		s.logger.Warn("failed login", "ip", clientIP, "username", username)
		return nil, "", apierr.ErrInvalidCredentials
	case err != nil:
		return nil, "", fmt.Errorf("looking up user: %w: %w", auth.ErrStoreUnavailable, err)
	}

	if !s.hasher.Verify(password, user.PasswordSalt, user.PasswordHash) {
		s.logger.Warn("failed login", "ip", clientIP, "username", username)
		return nil, "", apierr.ErrInvalidCredentials
	}

	now := s.now().UTC().Truncate(time.Second)
	if err := s.repo.UpdateUserLastLogin(ctx, user.ID, now); err != nil {
		return nil, "", fmt.Errorf("recording login: %w: %w", auth.ErrStoreUnavailable, err)
	}
	user.LastLoginAt = &now

	key, _, err := s.sessions.Issue(ctx, user.ID, auth.DescribeUserAgent(userAgent), clientIP)
	if err != nil {
		return nil, "", err
	}

	s.logger.Info("login", "user_id", user.ID, "ip", clientIP)
	return user, key, nil
}

// CreateUser creates a user and its default settings. Only a MANAGE actor may
// create a MANAGE user.
func (s *Service) CreateUser(ctx context.Context, actor *auth.Principal, req CreateUserRequest) (*store.User, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if !auth.CanGrant(actor.Permission, req.Permission) {
		return nil, auth.ErrForbidden
	}

	user, err := s.createUser(ctx, req)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, actor.UserID, store.AuditCreateUser, store.AuditTargetUser, user.ID, map[string]any{
		"username":   user.Username,
		"permission": string(user.Permission),
	})
	return user, nil
}

func (s *Service) createUser(ctx context.Context, req CreateUserRequest) (*store.User, error) {
	salt, hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &store.User{
		ID:           uuid.New().String(),
		Username:     req.Username,
		PasswordHash: hash,
		PasswordSalt: salt,
		Permission:   req.Permission,
		DisplayName:  req.DisplayName,
		EmployeeID:   req.EmployeeID,
		Department:   req.Department,
		CreatedAt:    s.now().UTC().Truncate(time.Second),
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrUsernameExists) {
			return nil, err
		}
		return nil, fmt.Errorf("creating user: %w: %w", auth.ErrStoreUnavailable, err)
	}

	if err := s.repo.SaveUserSettings(ctx, store.DefaultUserSettings(user.ID)); err != nil {
		return nil, fmt.Errorf("creating user settings: %w: %w", auth.ErrStoreUnavailable, err)
	}
	return user, nil
}

// Bootstrap creates the first MANAGE user with a generated password. It
// refuses to run once any user exists.
func (s *Service) Bootstrap(ctx context.Context, username string) (*store.User, string, error) {
	count, err := s.repo.CountUsers(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("counting users: %w", err)
	}
	if count > 0 {
		return nil, "", ErrAlreadyBootstrapped
	}

	password, err := s.tokens.Next(24, auth.AlphaNumeric)
	if err != nil {
		return nil, "", fmt.Errorf("generating password: %w", err)
	}

	req := CreateUserRequest{Username: username, Password: password, Permission: store.PermissionManage}
	if err := req.validate(); err != nil {
		return nil, "", err
	}
	user, err := s.createUser(ctx, req)
	if err != nil {
		return nil, "", err
	}

	s.audit(ctx, user.ID, store.AuditCreateUser, store.AuditTargetUser, user.ID, map[string]any{
		"username":  user.Username,
		"bootstrap": true,
	})
	return user, password, nil
}

// GetUser returns a user by ID.
func (s *Service) GetUser(ctx context.Context, id string) (*store.User, error) {
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return nil, storeError("getting user", err, store.ErrUserNotFound)
	}
	return user, nil
}

// ListUsers returns all users ordered by username.
func (s *Service) ListUsers(ctx context.Context) ([]*store.User, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w: %w", auth.ErrStoreUnavailable, err)
	}
	if users == nil {
		users = []*store.User{}
	}
	return users, nil
}

// ChangePassword sets a new password for targetID. An API key without MANAGE
// may not change the password of a MANAGE user.
func (s *Service) ChangePassword(ctx context.Context, actor *auth.Principal, targetID, password string) error {
	if password == "" {
		return apierr.InvalidRequest("password is required")
	}

	target, err := s.GetUser(ctx, targetID)
	if err != nil {
		return err
	}
	if actor.IsAPIKey() && actor.Permission != store.PermissionManage && target.Permission == store.PermissionManage {
		return auth.ErrForbidden
	}

	salt, hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if err := s.repo.UpdateUserPassword(ctx, target.ID, hash, salt); err != nil {
		return storeError("updating password", err, store.ErrUserNotFound)
	}

	s.audit(ctx, actor.UserID, store.AuditUpdateUserPassword, store.AuditTargetUser, target.ID, nil)
	return nil
}

// UpdatePermission changes a user's permission and revokes the user's
// sessions so the change cannot be outlived by a cached session.
func (s *Service) UpdatePermission(ctx context.Context, actor *auth.Principal, targetID string, permission store.Permission) (*store.User, error) {
	if !permission.Valid() {
		return nil, apierr.InvalidRequest("unknown permission %q", permission)
	}
	if actor.UserID == targetID {
		return nil, apierr.ErrCantChangeOwnPermission
	}
	if !auth.CanGrant(actor.Permission, permission) {
		return nil, auth.ErrForbidden
	}

	target, err := s.GetUser(ctx, targetID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateUserPermission(ctx, target.ID, permission); err != nil {
		return nil, storeError("updating permission", err, store.ErrUserNotFound)
	}
	revoked, err := s.sessions.RevokeAllForUser(ctx, target.ID)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, actor.UserID, store.AuditUpdateUserPermission, store.AuditTargetUser, target.ID, map[string]any{
		"from":             string(target.Permission),
		"to":               string(permission),
		"sessions_revoked": revoked,
	})

	target.Permission = permission
	return target, nil
}

// DeleteUser removes a user together with its sessions, API keys, settings
// and time entries. A caller cannot delete itself.
func (s *Service) DeleteUser(ctx context.Context, actor *auth.Principal, targetID string) error {
	if actor.UserID == targetID {
		return apierr.ErrCantDeleteOwnUser
	}

	err := s.repo.DeleteUser(ctx, targetID)
	s.sessions.EvictUser(targetID)
	if err != nil {
		return storeError("deleting user", err, store.ErrUserNotFound)
	}

	s.audit(ctx, actor.UserID, store.AuditDeleteUser, store.AuditTargetUser, targetID, nil)
	return nil
}

// Settings returns the settings of userID, or the defaults if none are stored.
func (s *Service) Settings(ctx context.Context, userID string) (*store.UserSettings, error) {
	settings, err := s.repo.GetUserSettings(ctx, userID)
	if errors.Is(err, store.ErrSettingsNotFound) {
		return store.DefaultUserSettings(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting settings: %w: %w", auth.ErrStoreUnavailable, err)
	}
	return settings, nil
}

// SaveSettings validates and stores the settings of userID.
func (s *Service) SaveSettings(ctx context.Context, userID string, settings *store.UserSettings) error {
	if err := validateSettings(settings); err != nil {
		return err
	}
	settings.UserID = userID
	settings.UpdatedAt = s.now().UTC().Truncate(time.Second)

	if err := s.repo.SaveUserSettings(ctx, settings); err != nil {
		return storeError("saving settings", err, store.ErrUserNotFound)
	}
	return nil
}

func validateSettings(st *store.UserSettings) error {
	hours := []float64{
		st.HoursMonday, st.HoursTuesday, st.HoursWednesday, st.HoursThursday,
		st.HoursFriday, st.HoursSaturday, st.HoursSunday,
	}
	for _, h := range hours {
		if h < 0 || h > 24 {
			return apierr.InvalidRequest("daily hours must be between 0 and 24")
		}
	}
	if st.VacationDays < 0 {
		return apierr.InvalidRequest("vacation days must not be negative")
	}
	if st.BreakDurationMinutes < 0 || st.BreakThresholdMinutes < 0 {
		return apierr.InvalidRequest("break durations must not be negative")
	}
	if st.BreakStartTime != "" {
		if _, err := time.Parse("15:04", st.BreakStartTime); err != nil {
			return apierr.InvalidRequest("break start time must be HH:MM")
		}
	}
	return nil
}

// AuditLog returns audit entries matching f.
func (s *Service) AuditLog(ctx context.Context, f store.AuditFilter) ([]store.AuditEntry, error) {
	entries, err := s.repo.ListAuditLog(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("listing audit log: %w: %w", auth.ErrStoreUnavailable, err)
	}
	if entries == nil {
		entries = []store.AuditEntry{}
	}
	return entries, nil
}

// Audit records an administrative action taken outside this service, such as
// API key and session management.
func (s *Service) Audit(ctx context.Context, actorID string, action store.AuditAction, targetType, targetID string, detail map[string]any) {
	s.audit(ctx, actorID, action, targetType, targetID, detail)
}

// audit appends to the audit log. Failures are logged and do not fail the
// action that was already committed.
func (s *Service) audit(ctx context.Context, actorID string, action store.AuditAction, targetType, targetID string, detail map[string]any) {
	entry := &store.AuditEntry{
		ActorUserID: actorID,
		Action:      action,
		TargetType:  targetType,
		TargetID:    targetID,
		Detail:      detail,
	}
	if err := s.repo.AppendAuditLog(ctx, entry); err != nil {
		s.logger.Error("failed to write audit log", "action", action, "target_id", targetID, "error", err)
	}
}

// storeError passes notFound through and marks anything else as a store failure.
func storeError(op string, err, notFound error) error {
	if errors.Is(err, notFound) {
		return notFound
	}
	return fmt.Errorf("%s: %w: %w", op, auth.ErrStoreUnavailable, err)
}
