package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/Skotchmaster/user_service/internal/acl"
	"github.com/Skotchmaster/user_service/internal/hash"
	"github.com/Skotchmaster/user_service/internal/models"
	"github.com/Skotchmaster/user_service/internal/repo"
	"github.com/Skotchmaster/user_service/internal/tokens"
)

var testSecret = []byte("test-jwt-secret")

type testEnv struct {
	repo  *repo.GormRepo
	codec *tokens.Codec
	auth  *AuthService
	users *UserService
	pub   *recordingPublisher
}

func initTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err, "failed to connect to in-memory db")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(models.All()...), "failed to migrate tables")
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func newTestCodec(t *testing.T) *tokens.Codec {
	t.Helper()
	c, err := tokens.NewCodec(testSecret, 20*time.Minute, 7*24*time.Hour)
	require.NoError(t, err)
	return c
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	r := repo.New(initTestDB(t))
	codec := newTestCodec(t)
	auth := NewAuthService(r, codec)
	pub := &recordingPublisher{}
	return &testEnv{
		repo:  r,
		codec: codec,
		auth:  auth,
		users: NewUserService(r, auth, pub, hash.New(bcrypt.MinCost)),
		pub:   pub,
	}
}

// insertUser stores a user row without a revision record.
func (e *testEnv) insertUser(t *testing.T, email string, role acl.Role) *models.User {
	t.Helper()
	u := &models.User{
		Email:        email,
		PasswordHash: "hash",
		Role:         role,
		FirstName:    "Ivan",
		LastName:     "Petrov",
		Patronymic:   "Ivanovich",
	}
	require.NoError(t, e.repo.CreateUserIfNotExists(context.Background(), u))
	return u
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, name string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, name)
	return p.err
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}
