package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/Skotchmaster/user_service/internal/acl"
	"github.com/Skotchmaster/user_service/internal/events"
	"github.com/Skotchmaster/user_service/internal/hash"
	"github.com/Skotchmaster/user_service/internal/logging"
	"github.com/Skotchmaster/user_service/internal/metrics"
	"github.com/Skotchmaster/user_service/internal/models"
	"github.com/Skotchmaster/user_service/internal/repo"
	"github.com/Skotchmaster/user_service/internal/transport"
)

const (
	minEmailLen    = 4
	maxEmailLen    = 60
	minNameLen     = 3
	maxNameLen     = 30
	minPasswordLen = 8
	maxPasswordLen = 72 // bcrypt input limit
	maxAboutLen    = 256
)

type UserStore interface {
	CreateUserIfNotExists(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUsersByIDs(ctx context.Context, ids []int64) ([]models.User, error)
	ListUsers(ctx context.Context, offset, limit int) ([]models.User, int64, error)
	EmailTaken(ctx context.Context, email string, exceptID int64) (bool, error)
	UpdateUser(ctx context.Context, id int64, updates map[string]any) (*models.User, error)
	DeleteUser(ctx context.Context, id int64) error
}

type UserService struct {
	Store  UserStore
	Auth   *AuthService
	Events events.Publisher
	Hasher hash.Hasher
}

func NewUserService(store UserStore, auth *AuthService, pub events.Publisher, hasher hash.Hasher) *UserService {
	if pub == nil {
		pub = events.LogPublisher{}
	}
	return &UserService{Store: store, Auth: auth, Events: pub, Hasher: hasher}
}

type Registered struct {
	User   *models.User
	Tokens TokenPair
}

func (s *UserService) Register(ctx context.Context, dto transport.CreateUser) (*Registered, error) {
	l := logging.FromContext(ctx).With("svc", "user.register")

	email := strings.TrimSpace(dto.Email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	for field, v := range map[string]string{
		"first_name": dto.FirstName, "last_name": dto.LastName, "patronymic": dto.Patronymic,
	} {
		if err := validateName(field, v); err != nil {
			return nil, err
		}
	}
	if err := validatePassword(dto.Password); err != nil {
		return nil, err
	}

	pwHash, err := s.Hasher.Hash(dto.Password)
	if err != nil {
		l.Error("register_error", "status", 500, "reason", "cannot hash the password", "error", err)
		return nil, err
	}
	user := &models.User{
		Email:        email,
		PasswordHash: pwHash,
		Role:         acl.RoleUser,
		FirstName:    strings.TrimSpace(dto.FirstName),
		LastName:     strings.TrimSpace(dto.LastName),
		Patronymic:   strings.TrimSpace(dto.Patronymic),
	}
	if err := s.Store.CreateUserIfNotExists(ctx, user); err != nil {
		if errors.Is(err, repo.ErrUserAlreadyExist) {
			l.Warn("register_error", "status", 409, "reason", "user already exist")
			return nil, ErrConflict
		}
		l.Error("register_error", "status", 503, "error", err)
		return nil, storageErr("create user", err)
	}

	pair, err := s.Auth.InitUser(ctx, user.ID, user.Role)
	if err != nil {
		// A user without a revision record could never log in; undo the insert.
		if delErr := s.Store.DeleteUser(ctx, user.ID); delErr != nil {
			l.Error("register_rollback_failed", "user_id", user.ID, "error", delErr)
		}
		return nil, err
	}

	s.publish(ctx, events.UserRegistered, user)
	l.Info("register_successful", "user_id", user.ID)
	return &Registered{User: user, Tokens: pair}, nil
}

func (s *UserService) Login(ctx context.Context, email, password string) (*Registered, error) {
	l := logging.FromContext(ctx).With("svc", "user.login")

	user, err := s.Store.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			l.Warn("login_failed", "status", 401, "reason", "invalid email or password")
			return nil, ErrInvalidCredentials
		}
		l.Error("login_failed", "status", 503, "error", err)
		return nil, storageErr("get user", err)
	}
	if !s.Hasher.Check(user.PasswordHash, password) {
		l.Warn("login_failed", "status", 401, "reason", "invalid email or password")
		return nil, ErrInvalidCredentials
	}
	if user.IsBanned {
		metrics.TokenRejections.WithLabelValues(metrics.ReasonBanned).Inc()
		l.Warn("login_failed", "status", 403, "user_id", user.ID, "reason", "account is banned")
		return nil, ErrAccountBanned
	}

	if s.Hasher.NeedsRehash(user.PasswordHash) {
		s.rehash(ctx, user, password)
	}

	pair, err := s.Auth.GenerateKeyPair(ctx, user.ID, user.Role)
	if err != nil {
		return nil, err
	}
	l.Info("login_successful", "user_id", user.ID)
	return &Registered{User: user, Tokens: pair}, nil
}

// IssueAccessToken validates the refresh token, then refuses banned accounts
// even when the token itself is still current.
func (s *UserService) IssueAccessToken(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.Auth.ValidateRefreshToken(ctx, refreshToken)
	if err != nil {
		return "", err
	}
	user, err := s.Store.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return "", ErrNoSuchTokenUser
		}
		return "", storageErr("get user", err)
	}
	if user.IsBanned {
		metrics.TokenRejections.WithLabelValues(metrics.ReasonBanned).Inc()
		logging.FromContext(ctx).Warn("access_token_refused", "user_id", user.ID, "reason", "account is banned")
		return "", ErrAccountBanned
	}
	return s.Auth.accessFromClaims(ctx, claims)
}

func (s *UserService) GetInfo(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.Store.GetUserByID(ctx, id)
	if err != nil {
		return nil, userErr("get user", err)
	}
	return user, nil
}

// GetInfoMany skips ids that do not exist.
func (s *UserService) GetInfoMany(ctx context.Context, ids []int64) ([]models.User, error) {
	users, err := s.Store.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, storageErr("get users", err)
	}
	return users, nil
}

// GetAll returns a page of users and the total count.
func (s *UserService) GetAll(ctx context.Context, offset, limit int) ([]models.User, int64, error) {
	users, total, err := s.Store.ListUsers(ctx, offset, limit)
	if err != nil {
		return nil, 0, storageErr("list users", err)
	}
	return users, total, nil
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := s.Store.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, userErr("get user by email", err)
	}
	return user, nil
}

// SearchMinimal looks a user up by id when given, otherwise by email.
func (s *UserService) SearchMinimal(ctx context.Context, id *int64, email string) (*models.User, error) {
	switch {
	case id != nil:
		return s.GetInfo(ctx, *id)
	case strings.TrimSpace(email) != "":
		return s.GetByEmail(ctx, email)
	default:
		return nil, validationErr("either id or email is required")
	}
}

func (s *UserService) UpdateInfo(ctx context.Context, id int64, dto transport.OptionalUserData) (*models.User, error) {
	updates, err := s.profileUpdates(ctx, id, dto)
	if err != nil {
		return nil, err
	}
	user, err := s.Store.UpdateUser(ctx, id, updates)
	if err != nil {
		return nil, userErr("update user", err)
	}
	return user, nil
}

// AdminUpdate validates every field of patch before writing anything and then
// applies it in a single update. A role change also rotates the revision, so
// refresh tokens carrying the old role stop validating.
func (s *UserService) AdminUpdate(ctx context.Context, actorID, id int64, patch transport.AdminUserPatch) (*models.User, error) {
	if patch.Role != nil {
		if actorID == id {
			return nil, ErrSelfAction
		}
		if !patch.Role.Valid() {
			return nil, validationErr("unknown role %q", *patch.Role)
		}
	}
	if patch.Password != nil {
		if err := validatePassword(*patch.Password); err != nil {
			return nil, err
		}
	}
	updates, err := s.profileUpdates(ctx, id, patch.OptionalUserData)
	if err != nil {
		return nil, err
	}

	if patch.Password != nil {
		pwHash, err := s.Hasher.Hash(*patch.Password)
		if err != nil {
			return nil, err
		}
		updates["password_hash"] = pwHash
	}
	if patch.Role != nil {
		updates["role"] = *patch.Role
	}

	user, err := s.Store.UpdateUser(ctx, id, updates)
	if err != nil {
		return nil, userErr("admin update user", err)
	}
	if patch.Role != nil {
		if _, err := s.Auth.GenerateRefreshToken(ctx, user.ID, user.Role); err != nil {
			return nil, err
		}
		logging.FromContext(ctx).Info("role_changed", "actor_id", actorID, "user_id", id, "role", user.Role)
	}
	return user, nil
}

// profileUpdates validates the profile part of a partial update and returns
// the columns to write.
func (s *UserService) profileUpdates(ctx context.Context, id int64, dto transport.OptionalUserData) (map[string]any, error) {
	updates := map[string]any{}

	if dto.Email != nil {
		email := strings.TrimSpace(*dto.Email)
		if err := validateEmail(email); err != nil {
			return nil, err
		}
		taken, err := s.Store.EmailTaken(ctx, email, id)
		if err != nil {
			return nil, storageErr("check email", err)
		}
		if taken {
			return nil, ErrConflict
		}
		updates["email"] = email
	}
	for column, v := range map[string]*string{
		"first_name": dto.FirstName, "last_name": dto.LastName, "patronymic": dto.Patronymic,
	} {
		if v == nil {
			continue
		}
		if err := validateName(column, *v); err != nil {
			return nil, err
		}
		updates[column] = strings.TrimSpace(*v)
	}
	if dto.About != nil {
		if utf8.RuneCountInString(*dto.About) > maxAboutLen {
			return nil, validationErr("about must be at most %d characters", maxAboutLen)
		}
		updates["about"] = *dto.About
	}
	if dto.Birthday != nil {
		updates["birthday"] = dto.Birthday.UTC()
	}
	return updates, nil
}

// SetBanned flips the flag and bumps the revision. The bump kills every
// outstanding refresh token; unbanning does not bring them back.
func (s *UserService) SetBanned(ctx context.Context, actorID, id int64, banned bool) (*models.User, error) {
	if actorID == id {
		return nil, ErrSelfAction
	}
	user, err := s.Store.UpdateUser(ctx, id, map[string]any{"is_banned": banned})
	if err != nil {
		return nil, userErr("set banned", err)
	}
	if _, err := s.Auth.GenerateRefreshToken(ctx, user.ID, user.Role); err != nil {
		return nil, err
	}

	event := events.UserUnbanned
	if banned {
		event = events.UserBanned
	}
	s.publish(ctx, event, user)
	logging.FromContext(ctx).Info("ban_status_changed", "actor_id", actorID, "user_id", id, "is_banned", banned)
	return user, nil
}

func (s *UserService) Delete(ctx context.Context, actorID, id int64) error {
	if actorID == id {
		return ErrSelfAction
	}
	user, err := s.Store.GetUserByID(ctx, id)
	if err != nil {
		return userErr("get user", err)
	}
	if err := s.Store.DeleteUser(ctx, id); err != nil {
		return userErr("delete user", err)
	}
	s.publish(ctx, events.UserDeleted, user)
	logging.FromContext(ctx).Info("user_deleted", "actor_id", actorID, "user_id", id)
	return nil
}

// rehash upgrades a hash made with an older cost. Failures only cost a retry
// on the next login.
func (s *UserService) rehash(ctx context.Context, user *models.User, password string) {
	l := logging.FromContext(ctx).With("svc", "user.rehash", "user_id", user.ID)
	pwHash, err := s.Hasher.Hash(password)
	if err != nil {
		l.Warn("rehash_failed", "error", err)
		return
	}
	if _, err := s.Store.UpdateUser(ctx, user.ID, map[string]any{"password_hash": pwHash}); err != nil {
		l.Warn("rehash_failed", "error", err)
		return
	}
	user.PasswordHash = pwHash
	l.Debug("password_rehashed", "cost", s.Hasher.Cost())
}

func (s *UserService) publish(ctx context.Context, name string, user *models.User) {
	if err := s.Events.Publish(ctx, name, transport.ToExternal(user)); err != nil {
		logging.FromContext(ctx).Error("event_publish_failed", "event", name, "user_id", user.ID, "error", err)
	}
}

func userErr(op string, err error) error {
	switch {
	case errors.Is(err, repo.ErrUserNotFound):
		return ErrNoSuchUser
	case errors.Is(err, repo.ErrUserAlreadyExist):
		return ErrConflict
	}
	return storageErr(op, err)
}

func validateEmail(email string) error {
	n := utf8.RuneCountInString(email)
	if n < minEmailLen || n > maxEmailLen {
		return validationErr("email must be %d to %d characters", minEmailLen, maxEmailLen)
	}
	if !strings.Contains(email, "@") {
		return validationErr("email must contain @")
	}
	return nil
}

func validateName(field, v string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(v))
	if n < minNameLen || n > maxNameLen {
		return validationErr("%s must be %d to %d characters", field, minNameLen, maxNameLen)
	}
	return nil
}

func validatePassword(p string) error {
	if utf8.RuneCountInString(p) < minPasswordLen {
		return validationErr("password must be at least %d characters", minPasswordLen)
	}
	if len(p) > maxPasswordLen {
		return validationErr("password must be at most %d bytes", maxPasswordLen)
	}
	return nil
}
