package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/aditya/haggle/internal/errors"
	"github.com/aditya/haggle/pkg/utils"
	"github.com/golang-jwt/jwt/v5"
)

type userIDKey struct{}

// Authenticator verifies HS256 bearer tokens issued by the identity service
// and stores the token subject as the caller's user ID.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

func (a *Authenticator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			utils.Error(w, apperrors.Unauthenticated("missing bearer token"))
			return
		}

		userID, err := a.verify(raw)
		if err != nil {
			utils.Error(w, apperrors.Unauthenticated("invalid bearer token"))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

func (a *Authenticator) verify(raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return claims.Subject, nil
}

// IssueToken signs a token for userID. Used by the seed script and tests.
func (a *Authenticator) IssueToken(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func WithUserID(ctx context.Context, userID string) context.Context {
	if holder, ok := ctx.Value(callerHolderKey{}).(*callerHolder); ok {
		holder.userID = userID
	}
	return context.WithValue(ctx, userIDKey{}, userID)
}

// callerHolder lets outer middleware see the caller once auth has run.
type callerHolder struct {
	userID string
}

type callerHolderKey struct{}

// trackCaller returns r carrying a callerHolder, reusing one set further out.
func trackCaller(r *http.Request) (*http.Request, *callerHolder) {
	if holder, ok := r.Context().Value(callerHolderKey{}).(*callerHolder); ok {
		return r, holder
	}
	holder := &callerHolder{}
	return r.WithContext(context.WithValue(r.Context(), callerHolderKey{}, holder)), holder
}

// UserIDFromContext returns the authenticated caller, if any.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey{}).(string)
	return userID, ok && userID != ""
}
