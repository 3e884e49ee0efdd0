package httpmw

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/cwrk-planet/live-service/pkg/httputil"
)

type ctxKey string

const (
	ctxKeyToken  ctxKey = "token"
	ctxKeyUserID ctxKey = "user_id"
)

var (
	errMissingToken  = errors.New("missing bearer token")
	errMissingUserID = errors.New("missing X-User-ID")
	errInvalidUserID = errors.New("invalid X-User-ID (must be int64)")
)

// TokenVerifier resolves an access token to its user id.
type TokenVerifier interface {
	UserID(token string) (int64, error)
}

// Auth identifies the caller. With a verifier the token is checked (RS256);
// without one the caller is trusted: Bearer + X-User-ID, as the room service
// did behind the gateway.
type Auth struct {
	verifier TokenVerifier
}

func NewAuth(v TokenVerifier) *Auth {
	return &Auth{verifier: v}
}

// Require rejects anonymous requests with 401.
func (a *Auth) Require(next http.Handler) http.Handler {
	return a.handler(next, true)
}

// Optional lets requests without a token through as anonymous (user id 0).
// A token that is present but invalid is still rejected.
func (a *Auth) Optional(next http.Handler) http.Handler {
	return a.handler(next, false)
}

func (a *Auth) handler(next http.Handler, required bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" && !required {
			next.ServeHTTP(w, r)
			return
		}

		uid, err := a.identify(r, token)
		if err != nil {
			httputil.Error(r.Context(), w, http.StatusUnauthorized, "unauthorized", err.Error(), nil)
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyToken, token)
		ctx = WithUserID(ctx, uid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Auth) identify(r *http.Request, token string) (int64, error) {
	if token == "" {
		return 0, errMissingToken
	}
	if a.verifier != nil {
		return a.verifier.UserID(token)
	}

	uidHeader := r.Header.Get("X-User-ID")
	if uidHeader == "" {
		// браузерный WebSocket не умеет слать заголовки
		uidHeader = r.URL.Query().Get("user_id")
	}
	if uidHeader == "" {
		return 0, errMissingUserID
	}
	uid, err := strconv.ParseInt(uidHeader, 10, 64)
	if err != nil || uid <= 0 {
		return 0, errInvalidUserID
	}
	return uid, nil
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") && len(auth) > 7 {
		return strings.TrimSpace(auth[7:])
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}

func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, ctxKeyUserID, userID)
}

func UserIDFromCtx(ctx context.Context) int64 {
	if v := ctx.Value(ctxKeyUserID); v != nil {
		if id, ok := v.(int64); ok {
			return id
		}
	}
	return 0
}

func TokenFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyToken).(string)
	return v
}
