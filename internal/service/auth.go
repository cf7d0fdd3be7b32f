package service

import (
	"context"
	"errors"

	"github.com/Skotchmaster/user_service/internal/acl"
	"github.com/Skotchmaster/user_service/internal/logging"
	"github.com/Skotchmaster/user_service/internal/metrics"
	"github.com/Skotchmaster/user_service/internal/models"
	"github.com/Skotchmaster/user_service/internal/repo"
	"github.com/Skotchmaster/user_service/internal/tokens"
)

// RevisionStore is the persistence the auth service needs. *repo.GormRepo implements it.
type RevisionStore interface {
	CreateRevision(ctx context.Context, userID int64) error
	GetRevision(ctx context.Context, userID int64) (*models.UserTokens, error)
	BumpRevision(ctx context.Context, userID int64) (int64, error)
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type AuthService struct {
	Store RevisionStore
	Codec *tokens.Codec
}

func NewAuthService(store RevisionStore, codec *tokens.Codec) *AuthService {
	return &AuthService{Store: store, Codec: codec}
}

// InitUser creates the revision record for a freshly registered user and
// issues the first token pair.
func (s *AuthService) InitUser(ctx context.Context, userID int64, role acl.Role) (TokenPair, error) {
	l := logging.FromContext(ctx).With("svc", "auth.init_user", "user_id", userID)

	if err := s.Store.CreateRevision(ctx, userID); err != nil {
		if errors.Is(err, repo.ErrRevisionExists) {
			l.Error("init_user_failed", "reason", "revision record already exists")
			return TokenPair{}, ErrRevisionExists
		}
		l.Error("init_user_failed", "error", err)
		return TokenPair{}, storageErr("create revision", err)
	}
	return s.GenerateKeyPair(ctx, userID, role)
}

// GenerateKeyPair rotates the session: every refresh token issued before it stops validating.
func (s *AuthService) GenerateKeyPair(ctx context.Context, userID int64, role acl.Role) (TokenPair, error) {
	refresh, err := s.GenerateRefreshToken(ctx, userID, role)
	if err != nil {
		return TokenPair{}, err
	}
	access, err := s.GenerateAccessToken(ctx, refresh)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// GenerateRefreshToken is the only path that moves the revision forward.
func (s *AuthService) GenerateRefreshToken(ctx context.Context, userID int64, role acl.Role) (string, error) {
	l := logging.FromContext(ctx).With("svc", "auth.generate_refresh", "user_id", userID)

	revision, err := s.Store.BumpRevision(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrRevisionNotFound) {
			l.Warn("refresh_not_issued", "reason", "no revision record")
			return "", ErrNoSuchTokenUser
		}
		l.Error("refresh_not_issued", "error", err)
		return "", storageErr("bump revision", err)
	}

	token, _, err := s.Codec.EncodeRefresh(userID, role, revision)
	if err != nil {
		l.Error("refresh_not_issued", "error", err)
		return "", err
	}
	metrics.TokensIssued.WithLabelValues(string(tokens.KindRefresh)).Inc()
	l.Debug("refresh_issued", "token_revision", revision)
	return token, nil
}

// GenerateAccessToken mints an access token from a refresh token that passes
// ValidateRefreshToken. It fails with the same errors.
func (s *AuthService) GenerateAccessToken(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.ValidateRefreshToken(ctx, refreshToken)
	if err != nil {
		return "", err
	}
	return s.accessFromClaims(ctx, claims)
}

func (s *AuthService) accessFromClaims(ctx context.Context, claims *tokens.RefreshClaims) (string, error) {
	token, _, err := s.Codec.EncodeAccess(claims.UserID, claims.Role)
	if err != nil {
		logging.FromContext(ctx).Error("access_not_issued", "svc", "auth.generate_access", "user_id", claims.UserID, "error", err)
		return "", err
	}
	metrics.TokensIssued.WithLabelValues(string(tokens.KindAccess)).Inc()
	return token, nil
}

// ValidateRefreshToken accepts a token only if it decodes, is unexpired, and
// carries exactly the user's current revision.
func (s *AuthService) ValidateRefreshToken(ctx context.Context, token string) (*tokens.RefreshClaims, error) {
	l := logging.FromContext(ctx).With("svc", "auth.validate_refresh")

	claims, err := s.Codec.DecodeRefresh(token)
	if err != nil {
		if errors.Is(err, tokens.ErrTokenExpired) {
			metrics.TokenRejections.WithLabelValues(metrics.ReasonExpired).Inc()
			l.Info("refresh_rejected", "reason", "expired")
			return nil, ErrTokenExpired
		}
		metrics.TokenRejections.WithLabelValues(metrics.ReasonParse).Inc()
		l.Info("refresh_rejected", "reason", "parse", "error", err)
		return nil, err
	}

	l = l.With("user_id", claims.UserID)
	rec, err := s.Store.GetRevision(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrRevisionNotFound) {
			metrics.TokenRejections.WithLabelValues(metrics.ReasonNoSuchUser).Inc()
			l.Info("refresh_rejected", "reason", "no revision record")
			return nil, ErrNoSuchTokenUser
		}
		l.Error("refresh_validation_failed", "error", err)
		return nil, storageErr("get revision", err)
	}

	if rec.TokenRevision != claims.TokenRevision {
		metrics.TokenRejections.WithLabelValues(metrics.ReasonStaleRevision).Inc()
		l.Info("refresh_rejected", "reason", "stale revision",
			"token_revision", claims.TokenRevision, "current_revision", rec.TokenRevision)
		return nil, ErrStaleRevision
	}
	return claims, nil
}
