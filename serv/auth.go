package serv

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-http-utils/headers"
	"github.com/golang-jwt/jwt/v5"
	"github.com/patel-ankitb/nestproject-sub000/core"
)

var (
	errTokenNotAccepted = errors.New("bearer tokens are not accepted: auth.jwt.secret is not set")
	errInvalidToken     = errors.New("invalid bearer token")
)

// tokenClaims are the claims read from a bearer token. The user id is
// taken from userId and falls back to the subject.
type tokenClaims struct {
	UserID any    `json:"userId,omitempty"`
	RoleID string `json:"roleId,omitempty"`
	jwt.RegisteredClaims
}

// claims verifies the bearer token of r. No token means no claims.
func (s *dataService) claims(r *http.Request) (*core.Claims, error) {
	tok := bearerToken(r)
	if tok == "" {
		return nil, nil
	}

	ac := s.conf.Auth.JWT
	if ac.Secret == "" {
		return nil, errTokenNotAccepted
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
	}
	if ac.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(ac.Issuer))
	}

	var tc tokenClaims
	_, err := jwt.ParseWithClaims(tok, &tc, func(*jwt.Token) (any, error) {
		return []byte(ac.Secret), nil
	}, opts...)
	if err != nil {
		s.log.Debugw("token rejected", "error", err)
		return nil, errInvalidToken
	}

	c := &core.Claims{UserID: tc.UserID, RoleID: tc.RoleID}
	if c.UserID == nil && tc.Subject != "" {
		c.UserID = tc.Subject
	}
	return c, nil
}

func bearerToken(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get(headers.Authorization))
	if len(v) < 7 || !strings.EqualFold(v[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(v[7:])
}
