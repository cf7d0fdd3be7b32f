// Package tokens signs and verifies the access/refresh JWT pair. Both kinds are
// HS256 tokens signed with one shared secret; the expiry lives in the signed
// payload as "exp".
package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Skotchmaster/user_service/internal/acl"
)

var (
	// ErrTokenParse covers malformed, tampered and otherwise unusable tokens.
	ErrTokenParse = errors.New("token parse error")
	// ErrTokenExpired is returned only for a well-formed, correctly signed token past its exp.
	ErrTokenExpired = errors.New("token expired")
	// ErrWrongKind means an access token was presented as a refresh token or vice versa.
	ErrWrongKind = fmt.Errorf("%w: wrong token kind", ErrTokenParse)

	errNegativeRevision = fmt.Errorf("%w: negative token revision", ErrTokenParse)
)

type Codec struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewCodec(secret []byte, accessTTL, refreshTTL time.Duration) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errors.New("token secret is empty")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}
	return &Codec{
		secret:     secret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

// WithClock returns a copy of the codec that reads time from now.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	cp := *c
	cp.now = now
	return &cp
}

func (c *Codec) EncodeAccess(userID int64, role acl.Role) (string, *AccessClaims, error) {
	claims := &AccessClaims{
		UserID: userID,
		Role:   role,
		Kind:   KindAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(c.now().Add(c.accessTTL)),
		},
	}
	if err := claims.check(); err != nil {
		return "", nil, err
	}
	signed, err := c.sign(claims)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

func (c *Codec) EncodeRefresh(userID int64, role acl.Role, revision int64) (string, *RefreshClaims, error) {
	claims := &RefreshClaims{
		UserID:        userID,
		Role:          role,
		TokenRevision: revision,
		Kind:          KindRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(c.now().Add(c.refreshTTL)),
		},
	}
	if err := claims.check(); err != nil {
		return "", nil, err
	}
	signed, err := c.sign(claims)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

func (c *Codec) DecodeAccess(token string) (*AccessClaims, error) {
	var claims AccessClaims
	if err := c.parse(token, &claims); err != nil {
		return nil, err
	}
	if err := claims.check(); err != nil {
		return nil, err
	}
	return &claims, nil
}

func (c *Codec) DecodeRefresh(token string) (*RefreshClaims, error) {
	var claims RefreshClaims
	if err := c.parse(token, &claims); err != nil {
		return nil, err
	}
	if err := claims.check(); err != nil {
		return nil, err
	}
	return &claims, nil
}

func (c *Codec) sign(claims jwt.Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (c *Codec) parse(token string, claims jwt.Claims) error {
	if token == "" {
		return fmt.Errorf("%w: empty token", ErrTokenParse)
	}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return fmt.Errorf("%w: %v", ErrTokenParse, err)
	}
	return nil
}

func checkCommon(got, want Kind, userID int64, role acl.Role) error {
	if got != want {
		return ErrWrongKind
	}
	if userID <= 0 {
		return fmt.Errorf("%w: missing user_id", ErrTokenParse)
	}
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrTokenParse, role)
	}
	return nil
}
