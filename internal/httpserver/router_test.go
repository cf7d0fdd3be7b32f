package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/Skotchmaster/user_service/internal/acl"
	"github.com/Skotchmaster/user_service/internal/events"
	"github.com/Skotchmaster/user_service/internal/hash"
	"github.com/Skotchmaster/user_service/internal/models"
	"github.com/Skotchmaster/user_service/internal/repo"
	"github.com/Skotchmaster/user_service/internal/service"
	"github.com/Skotchmaster/user_service/internal/tokens"
	"github.com/Skotchmaster/user_service/internal/transport"
	"github.com/Skotchmaster/user_service/internal/util"
)

const (
	apiKey   = "internal-key"
	password = "correct-horse"
)

type server struct {
	e     *echo.Echo
	repo  *repo.GormRepo
	codec *tokens.Codec
}

type serverOpts struct {
	rate  rate.Limit
	burst int
	ready func(ctx context.Context) error
}

func newServer(t *testing.T, opts serverOpts) *server {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.All()...))
	t.Cleanup(func() { _ = sqlDB.Close() })

	r := repo.New(db)
	codec, err := tokens.NewCodec([]byte("http-secret"), 20*time.Minute, 7*24*time.Hour)
	require.NoError(t, err)
	users := service.NewUserService(r, service.NewAuthService(r, codec), events.LogPublisher{}, hash.New(bcrypt.MinCost))

	if opts.rate == 0 {
		opts.rate, opts.burst = rate.Inf, 1
	}

	e := echo.New()
	Register(e, &Deps{
		Logger:         slog.New(slog.NewJSONHandler(io.Discard, nil)),
		Users:          &UsersHTTP{Svc: users},
		Admin:          &AdminHTTP{Svc: users},
		Internal:       &InternalHTTP{Svc: users},
		Gate:           service.NewGate(codec),
		InternalAPIKey: apiKey,
		LoginRate:      opts.rate,
		LoginBurst:     opts.burst,
		Ready:          opts.ready,
	})
	return &server{e: e, repo: r, codec: codec}
}

func (s *server) do(t *testing.T, method, path string, body any, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]any](t, rec)["code"].(string)
}

func (s *server) register(t *testing.T, email string) transport.RegisteredUser {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/", transport.CreateUser{
		Email: email, FirstName: "Ivan", LastName: "Petrov", Patronymic: "Ivanovich", Password: password,
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[transport.RegisteredUser](t, rec)
}

func (s *server) login(t *testing.T, email string) transport.RegisteredUser {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/login", transport.Credentials{Username: email, Password: password}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[transport.RegisteredUser](t, rec)
}

// withRole promotes a registered user and returns a fresh session carrying the role.
func (s *server) withRole(t *testing.T, email string, role acl.Role) transport.RegisteredUser {
	t.Helper()
	u, err := s.repo.GetUserByEmail(context.Background(), email)
	require.NoError(t, err)
	_, err = s.repo.UpdateUser(context.Background(), u.ID, map[string]any{"role": role})
	require.NoError(t, err)
	return s.login(t, email)
}

func userPath(prefix string, id int64) string {
	return prefix + strconv.FormatInt(id, 10)
}

func TestRegisterLoginRefresh(t *testing.T) {
	s := newServer(t, serverOpts{})

	reg := s.register(t, "flow@example.com")
	assert.Equal(t, "flow@example.com", reg.User.Email)
	assert.Equal(t, acl.RoleUser, reg.User.Role)
	assert.Equal(t, "Petrov Ivan Ivanovich", reg.User.FormattedName)

	rec := s.do(t, http.MethodPost, "/", transport.CreateUser{
		Email: "flow@example.com", FirstName: "Ivan", LastName: "Petrov", Patronymic: "Ivanovich", Password: password,
	}, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/access_token", nil, reg.RefreshToken)
	require.Equal(t, http.StatusOK, rec.Code)
	access := decode[transport.AccessToken](t, rec)
	claims, err := s.codec.DecodeAccess(access.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, claims.UserID)

	logged := s.login(t, "flow@example.com")

	rec = s.do(t, http.MethodPost, "/access_token", nil, reg.RefreshToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "stale_revision", errCode(t, rec))

	rec = s.do(t, http.MethodPost, "/access_token", nil, logged.RefreshToken)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/access_token", nil, logged.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "token_invalid", errCode(t, rec))

	rec = s.do(t, http.MethodPost, "/access_token", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "missing_bearer", errCode(t, rec))
}

func TestLogin_FormAndBadCredentials(t *testing.T) {
	s := newServer(t, serverOpts{})
	s.register(t, "form@example.com")

	form := url.Values{"username": {"form@example.com"}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/login", transport.Credentials{Username: "form@example.com", Password: "nope-nope"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_credentials", errCode(t, rec))
}

func TestRegister_Validation(t *testing.T) {
	s := newServer(t, serverOpts{})

	rec := s.do(t, http.MethodPost, "/", transport.CreateUser{
		Email: "v@example.com", FirstName: "Ivan", LastName: "Petrov", Patronymic: "Ivanovich", Password: "short",
	}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", errCode(t, rec))
}

func TestInfo_SelfGetsFullView(t *testing.T) {
	s := newServer(t, serverOpts{})
	me := s.register(t, "me@example.com")
	other := s.register(t, "other@example.com")

	rec := s.do(t, http.MethodGet, userPath("/info/", me.User.ID), nil, me.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "me@example.com", decode[map[string]any](t, rec)["email"])

	rec = s.do(t, http.MethodGet, userPath("/info/", other.User.ID), nil, me.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	_, hasEmail := decode[map[string]any](t, rec)["email"]
	assert.False(t, hasEmail)

	rec = s.do(t, http.MethodGet, "/info/999", nil, me.AccessToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/info/abc", nil, me.AccessToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, userPath("/info/", me.User.ID), nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/info-many", transport.InfoManyRequest{IDs: []int64{other.User.ID, 999, me.User.ID}}, me.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]transport.MinimalUser](t, rec), 2)

	rec = s.do(t, http.MethodGet, "/search-by-email?email=other@example.com", nil, me.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, other.User.ID, decode[transport.MinimalUser](t, rec).ID)
}

func TestUpdateSelf(t *testing.T) {
	s := newServer(t, serverOpts{})
	me := s.register(t, "patch@example.com")

	rec := s.do(t, http.MethodPatch, "/", map[string]any{"first_name": "Pyotr", "about": "hi"}, me.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	full := decode[transport.FullUser](t, rec)
	assert.Equal(t, "Pyotr", full.FirstName)
	require.NotNil(t, full.About)
	assert.Equal(t, "hi", *full.About)
}

func TestAdmin_BanFlow(t *testing.T) {
	s := newServer(t, serverOpts{})
	s.register(t, "org@example.com")
	org := s.withRole(t, "org@example.com", acl.RoleOrganizer)
	victim := s.register(t, "victim@example.com")

	rec := s.do(t, http.MethodPost, userPath("/admin/", victim.User.ID)+"/ban", map[string]any{"is_banned": true}, victim.AccessToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "restricted_permission", errCode(t, rec))

	rec = s.do(t, http.MethodPost, userPath("/admin/", victim.User.ID)+"/ban", map[string]any{}, org.AccessToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, userPath("/admin/", org.User.ID)+"/ban", map[string]any{"is_banned": true}, org.AccessToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "self_action", errCode(t, rec))

	rec = s.do(t, http.MethodPost, userPath("/admin/", victim.User.ID)+"/ban", map[string]any{"is_banned": true}, org.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[transport.FullUser](t, rec).IsBanned)

	rec = s.do(t, http.MethodPost, "/login", transport.Credentials{Username: "victim@example.com", Password: password}, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "account_banned", errCode(t, rec))

	rec = s.do(t, http.MethodPost, "/access_token", nil, victim.RefreshToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "stale_revision", errCode(t, rec))

	rec = s.do(t, http.MethodGet, userPath("/internal/", victim.User.ID), nil, apiKey)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, userPath("/admin/", victim.User.ID)+"/ban", map[string]any{"is_banned": false}, org.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/access_token", nil, victim.RefreshToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	s.login(t, "victim@example.com")
}

func TestAdmin_RoleAndDelete(t *testing.T) {
	s := newServer(t, serverOpts{})
	s.register(t, "org2@example.com")
	org := s.withRole(t, "org2@example.com", acl.RoleOrganizer)
	s.register(t, "root@example.com")
	admin := s.withRole(t, "root@example.com", acl.RoleAdmin)
	target := s.register(t, "target@example.com")
	path := userPath("/admin/", target.User.ID)

	// organizers may edit profiles but not roles; nothing is written on refusal
	rec := s.do(t, http.MethodPatch, path, map[string]any{"first_name": "Changed", "role": "admin"}, org.AccessToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = s.do(t, http.MethodGet, path, nil, org.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Ivan", decode[transport.FullUser](t, rec).FirstName)

	rec = s.do(t, http.MethodPatch, path, map[string]any{"first_name": "Changed"}, org.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Changed", decode[transport.FullUser](t, rec).FirstName)

	rec = s.do(t, http.MethodPatch, path, map[string]any{"role": "judge", "password": "brand-new-pass"}, admin.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, acl.RoleJudge, decode[transport.FullUser](t, rec).Role)

	rec = s.do(t, http.MethodPatch, path, map[string]any{"role": "emperor"}, admin.AccessToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// a rejected patch leaves every field as it was
	rec = s.do(t, http.MethodPatch, path, map[string]any{"first_name": "Rejected", "password": "short"}, admin.AccessToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do(t, http.MethodPatch, path, map[string]any{"last_name": "Renamed", "role": "emperor"}, admin.AccessToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do(t, http.MethodGet, path, nil, admin.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	unchanged := decode[transport.FullUser](t, rec)
	assert.Equal(t, "Changed", unchanged.FirstName)
	assert.Equal(t, "Petrov", unchanged.LastName)
	assert.Equal(t, acl.RoleJudge, unchanged.Role)

	rec = s.do(t, http.MethodPost, "/login", transport.Credentials{Username: "target@example.com", Password: "brand-new-pass"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	claims, err := s.codec.DecodeAccess(decode[transport.RegisteredUser](t, rec).AccessToken)
	require.NoError(t, err)
	assert.Equal(t, acl.RoleJudge, claims.Role)

	rec = s.do(t, http.MethodGet, "/admin?page=1&size=2", nil, admin.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[map[string]any](t, rec)
	assert.Len(t, list["data"], 2)
	meta := list["meta"].(map[string]any)
	assert.EqualValues(t, 3, meta["total"])
	assert.Equal(t, true, meta["has_next"])

	rec = s.do(t, http.MethodGet, "/admin?page=9223372036854775807&size=100", nil, admin.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	far := decode[map[string]any](t, rec)
	assert.Empty(t, far["data"])
	farMeta := far["meta"].(map[string]any)
	assert.EqualValues(t, util.MaxPage, farMeta["page"])
	assert.Equal(t, false, farMeta["has_next"])

	rec = s.do(t, http.MethodDelete, path, nil, org.AccessToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodDelete, userPath("/admin/", admin.User.ID), nil, admin.AccessToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "self_action", errCode(t, rec))

	rec = s.do(t, http.MethodDelete, path, nil, admin.AccessToken)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, path, nil, admin.AccessToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInternal(t *testing.T) {
	s := newServer(t, serverOpts{})
	u := s.register(t, "svc@example.com")

	rec := s.do(t, http.MethodGet, userPath("/internal/", u.User.ID), nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, userPath("/internal/", u.User.ID), nil, "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, userPath("/internal/", u.User.ID), nil, apiKey)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, u.User.ID, decode[transport.MinimalUser](t, rec).ID)

	rec = s.do(t, http.MethodGet, "/internal/search?email=svc@example.com", nil, apiKey)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, u.User.ID, decode[transport.MinimalUser](t, rec).ID)

	rec = s.do(t, http.MethodGet, userPath("/internal/search?id=", u.User.ID), nil, apiKey)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/internal/search", nil, apiKey)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginRateLimit(t *testing.T) {
	s := newServer(t, serverOpts{rate: rate.Every(time.Hour), burst: 2})

	creds := transport.Credentials{Username: "nobody@example.com", Password: password}
	for i := 0; i < 2; i++ {
		rec := s.do(t, http.MethodPost, "/login", creds, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := s.do(t, http.MethodPost, "/login", creds, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", errCode(t, rec))
}

func TestHealth(t *testing.T) {
	s := newServer(t, serverOpts{})
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health/live", nil, "").Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health/ready", nil, "").Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/metrics", nil, "").Code)

	down := newServer(t, serverOpts{ready: func(context.Context) error { return errors.New("db down") }})
	assert.Equal(t, http.StatusServiceUnavailable, down.do(t, http.MethodGet, "/health/ready", nil, "").Code)
}
