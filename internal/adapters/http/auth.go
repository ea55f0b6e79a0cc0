package httpadapter

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kirillkom/plan-takeoff/internal/core/domain"
)

// Claims are the bearer token fields the API consumes. UserID falls back
// to the registered subject.
type Claims struct {
	UserID  string `json:"userId,omitempty"`
	IsAdmin bool   `json:"isAdmin,omitempty"`
	jwt.RegisteredClaims
}

type actorContextKey struct{}

func withActor(ctx context.Context, actor domain.Actor) context.Context {
	traceFromContext(ctx).setActor(actor.UserID)
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// actorFromContext returns the anonymous zero actor when none was set.
func actorFromContext(ctx context.Context) domain.Actor {
	actor, _ := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor
}

type authenticator struct {
	secret []byte
	parser *jwt.Parser
}

// newAuthenticator with an empty secret runs every request as the system
// actor.
func newAuthenticator(secret string) *authenticator {
	return &authenticator{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()),
	}
}

func (a *authenticator) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(a.secret) == 0 {
			next.ServeHTTP(w, r.WithContext(withActor(r.Context(), domain.SystemActor)))
			return
		}
		actor, err := a.authenticate(r.Header.Get("Authorization"))
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="plan-takeoff"`)
			writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withActor(r.Context(), actor)))
	})
}

func (a *authenticator) authenticate(header string) (domain.Actor, error) {
	const op = "authenticate"
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return domain.Actor{}, domain.WrapError(domain.ErrUnauthorized, op, errors.New("bearer token is required"))
	}

	var claims Claims
	parsed, err := a.parser.ParseWithClaims(strings.TrimSpace(token), &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil || !parsed.Valid {
		return domain.Actor{}, domain.WrapError(domain.ErrUnauthorized, op, errors.New("invalid or expired token"))
	}

	userID := strings.TrimSpace(claims.UserID)
	if userID == "" {
		userID = strings.TrimSpace(claims.Subject)
	}
	if userID == "" {
		return domain.Actor{}, domain.WrapError(domain.ErrUnauthorized, op, errors.New("token has no subject"))
	}
	return domain.Actor{UserID: userID, IsAdmin: claims.IsAdmin}, nil
}
