package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	apperrors "parkspace/internal/errors"
)

type ctxKey struct{}

// UserID returns the authenticated caller stored by Authenticator.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// Authenticator accepts HS256 bearer tokens issued by the identity service.
// The token subject is the caller's user id.
type Authenticator struct {
	secret []byte
	log    *zap.Logger
}

func NewAuthenticator(secret string, log *zap.Logger) *Authenticator {
	return &Authenticator{secret: []byte(secret), log: log}
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearer(r)
		if !ok {
			apperrors.ErrUnauthorized("missing bearer token").Write(w)
			return
		}
		sub, err := a.subject(raw)
		if err != nil {
			a.log.Debug("rejected bearer token", zap.String("path", r.URL.Path), zap.Error(err))
			apperrors.ErrUnauthorized("invalid token").Write(w)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), sub)))
	})
}

func (a *Authenticator) subject(raw string) (string, error) {
	token, err := jwt.Parse(raw, func(*jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", err
	}
	sub, err := token.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	if sub == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}

// IssueToken signs a token for userID. Used by operators and tests; normal
// tokens come from the identity service sharing the same secret.
func IssueToken(secret, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// CronSecret guards the scheduler trigger. The plain secret arrives as a
// bearer token and is checked against its bcrypt hash. An empty hash
// disables the endpoint.
func CronSecret(hash string, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			secret, ok := bearer(r)
			if !ok || hash == "" {
				apperrors.ErrUnauthorized("missing scheduler secret").Write(w)
				return
			}
			if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); err != nil {
				log.Warn("scheduler secret mismatch", zap.String("remote", r.RemoteAddr))
				apperrors.ErrUnauthorized("invalid scheduler secret").Write(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	return tok, tok != ""
}
