package service

import (
	"errors"
	"strings"

	"github.com/Skotchmaster/user_service/internal/acl"
	"github.com/Skotchmaster/user_service/internal/metrics"
	"github.com/Skotchmaster/user_service/internal/tokens"
)

const bearerScheme = "bearer"

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, bearerScheme) {
		metrics.TokenRejections.WithLabelValues(metrics.ReasonMissingBearer).Inc()
		return "", ErrMissingBearer
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		metrics.TokenRejections.WithLabelValues(metrics.ReasonMissingBearer).Inc()
		return "", ErrMissingBearer
	}
	return token, nil
}

// Gate decodes the caller's access token and checks it against a permission.
// It never touches storage.
type Gate struct {
	Codec *tokens.Codec
}

func NewGate(codec *tokens.Codec) *Gate {
	return &Gate{Codec: codec}
}

// Check takes the raw Authorization header. Decode failures are returned as
// is; a decoded caller without the right role gets ErrRestrictedPermission.
func (g *Gate) Check(perm acl.Permission, authorization string) (*tokens.AccessClaims, error) {
	raw, err := BearerToken(authorization)
	if err != nil {
		return nil, err
	}
	claims, err := g.Codec.DecodeAccess(raw)
	if err != nil {
		if errors.Is(err, tokens.ErrTokenExpired) {
			metrics.TokenRejections.WithLabelValues(metrics.ReasonExpired).Inc()
		} else {
			metrics.TokenRejections.WithLabelValues(metrics.ReasonParse).Inc()
		}
		return nil, err
	}
	if err := Authorize(perm, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// Authorize checks already decoded claims, for handlers that need a second
// permission on top of the one guarding the route.
func Authorize(perm acl.Permission, claims *tokens.AccessClaims) error {
	if !perm.Allows(claims.Role) {
		metrics.PermissionDenials.WithLabelValues(perm.Action).Inc()
		return ErrRestrictedPermission
	}
	return nil
}
