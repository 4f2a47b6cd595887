// Package auth carries the already-authenticated actor through a request.
//
// Identity is owned by an upstream service. This package only verifies the
// bearer token it issues (HS256) or, when no secret is configured, trusts the
// X-Actor-* headers set by a gateway.
package auth

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/pesio-ai/be-ops-printshop/internal/platform/errors"
)

// Role values. Department roles share their department's name.
const (
	RoleAdmin = "admin"
)

// Header names used when no JWT secret is configured.
const (
	HeaderActorID    = "X-Actor-Id"
	HeaderActorName  = "X-Actor-Name"
	HeaderActorRole  = "X-Actor-Role"
	HeaderActorAdmin = "X-Actor-Admin"
)

// Actor is the user performing an operation.
type Actor struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Role    string `json:"role"`
	IsAdmin bool   `json:"is_admin"`
}

type actorKey struct{}

// WithActor stores the actor in ctx.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor stored in ctx.
func ActorFromContext(ctx context.Context) (Actor, error) {
	actor, ok := ctx.Value(actorKey{}).(Actor)
	if !ok || actor.ID == "" {
		return Actor{}, apperrors.New(apperrors.ErrCodeUnauthorized, "no authenticated actor")
	}
	return actor, nil
}

// Claims is the token payload issued by the identity service.
type Claims struct {
	jwt.RegisteredClaims
	Name  string `json:"name"`
	Role  string `json:"role"`
	Admin bool   `json:"admin"`
}

// Verifier resolves actors from request credentials.
type Verifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewVerifier creates a verifier. An empty secret enables header trust mode.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// TrustsHeaders reports whether actors come from plain headers.
func (v *Verifier) TrustsHeaders() bool {
	return len(v.secret) == 0
}

// Resolve builds an actor from a header lookup function. The same lookup
// serves HTTP headers and gRPC metadata.
func (v *Verifier) Resolve(get func(key string) string) (Actor, error) {
	if v.TrustsHeaders() {
		return actorFromHeaders(get)
	}

	raw := strings.TrimSpace(get("Authorization"))
	token, ok := strings.CutPrefix(raw, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return Actor{}, apperrors.New(apperrors.ErrCodeUnauthorized, "missing bearer token")
	}
	return v.ParseToken(strings.TrimSpace(token))
}

// ParseToken validates an HS256 token and returns its actor.
func (v *Verifier) ParseToken(token string) (Actor, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return Actor{}, apperrors.Wrap(err, apperrors.ErrCodeUnauthorized, "invalid token")
	}
	if claims.Subject == "" {
		return Actor{}, apperrors.New(apperrors.ErrCodeUnauthorized, "token has no subject")
	}

	return Actor{
		ID:      claims.Subject,
		Name:    claims.Name,
		Role:    strings.ToLower(claims.Role),
		IsAdmin: claims.Admin || strings.EqualFold(claims.Role, RoleAdmin),
	}, nil
}

// IssueToken signs a token for an actor. Used by tooling and tests.
func (v *Verifier) IssueToken(actor Actor, ttl time.Duration) (string, error) {
	if v.TrustsHeaders() {
		return "", fmt.Errorf("no signing secret configured")
	}
	now := v.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Name:  actor.Name,
		Role:  actor.Role,
		Admin: actor.IsAdmin,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func actorFromHeaders(get func(string) string) (Actor, error) {
	id := strings.TrimSpace(get(HeaderActorID))
	if id == "" {
		return Actor{}, apperrors.New(apperrors.ErrCodeUnauthorized, "missing actor id")
	}
	role := strings.ToLower(strings.TrimSpace(get(HeaderActorRole)))
	admin, _ := strconv.ParseBool(get(HeaderActorAdmin))
	return Actor{
		ID:      id,
		Name:    strings.TrimSpace(get(HeaderActorName)),
		Role:    role,
		IsAdmin: admin || role == RoleAdmin,
	}, nil
}
